package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DecodeStrict decodes YAML from a reader and rejects any unknown fields.
// This ensures the YAML only contains recognized configuration keys.
func DecodeStrict(r io.Reader, out interface{}) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadFromFile reads a YAML config file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	if err := DecodeStrict(f, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
