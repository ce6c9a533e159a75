package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g., "realtime.url"
	Message string // e.g., "must not be empty"
	Hint    string // e.g., "expected ws:// or wss:// URL"
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate performs validation of the entire config.
// It aggregates all errors and returns them, allowing the caller to print
// all issues at once.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateRealtime()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateGateway()...)

	return errs
}

func (c *Config) validateRealtime() []error {
	var errs []error
	rc := c.Realtime

	if rc.URL == "" {
		errs = append(errs, ValidationError{
			Path:    "realtime.url",
			Message: "must not be empty",
			Hint:    "expected ws:// or wss:// URL",
		})
	} else {
		u, err := url.Parse(rc.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, ValidationError{
				Path:    "realtime.url",
				Message: fmt.Sprintf("invalid websocket URL %q", rc.URL),
				Hint:    "expected ws:// or wss:// URL",
			})
		}
	}

	if rc.HeartbeatInterval <= 0 {
		errs = append(errs, ValidationError{
			Path:    "realtime.heartbeat_interval",
			Message: "must be positive",
		})
	}

	if rc.ReconnectInitialInterval <= 0 || rc.ReconnectMaxInterval <= 0 {
		errs = append(errs, ValidationError{
			Path:    "realtime.reconnect_initial_interval",
			Message: "reconnect intervals must be positive",
		})
	} else if rc.ReconnectInitialInterval > rc.ReconnectMaxInterval {
		errs = append(errs, ValidationError{
			Path:    "realtime.reconnect_max_interval",
			Message: "must be >= reconnect_initial_interval",
		})
	}

	if rc.ReconnectBudget <= 0 {
		errs = append(errs, ValidationError{
			Path:    "realtime.reconnect_budget",
			Message: "must be positive",
			Hint:    "the budget bounds total retry time before consumers see a terminal failure",
		})
	}

	return errs
}

func (c *Config) validateCache() []error {
	var errs []error
	cc := c.Cache

	if len(cc.OlricServers) == 0 {
		errs = append(errs, ValidationError{
			Path:    "cache.olric_servers",
			Message: "must list at least one server address",
		})
	}
	for i, addr := range cc.OlricServers {
		if strings.TrimSpace(addr) == "" {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("cache.olric_servers[%d]", i),
				Message: "must not be empty",
			})
		}
	}

	if cc.DMap == "" {
		errs = append(errs, ValidationError{
			Path:    "cache.dmap",
			Message: "must not be empty",
		})
	}

	if cc.Timeout <= 0 {
		errs = append(errs, ValidationError{
			Path:    "cache.timeout",
			Message: "must be positive",
		})
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("unknown level %q", c.Logging.Level),
			Hint:    "one of: debug, info, warn, error",
		})
	}

	return errs
}

func (c *Config) validateGateway() []error {
	var errs []error
	gc := c.Gateway

	if !gc.Enabled {
		return nil
	}

	if gc.ListenAddr == "" {
		errs = append(errs, ValidationError{
			Path:    "gateway.listen_addr",
			Message: "must not be empty when gateway is enabled",
			Hint:    `e.g., ":8090"`,
		})
	}

	return errs
}
