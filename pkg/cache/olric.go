package cache

import (
	"context"
	"fmt"
	"time"

	olriclib "github.com/olric-data/olric"
	"go.uber.org/zap"

	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/config"
	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/logging"
)

// OlricStore is the production Store: the dashboard's query cache lives
// in one Olric DMap shared by every dashboard instance, so invalidating
// here forces a refetch cluster-wide.
type OlricStore struct {
	client  olriclib.Client
	dmap    olriclib.DMap
	timeout time.Duration
	logger  *logging.ColoredLogger
}

// NewOlricStore connects to the Olric cluster and binds the query-cache
// DMap.
func NewOlricStore(cfg config.CacheConfig, logger *logging.ColoredLogger) (*OlricStore, error) {
	servers := cfg.OlricServers
	if len(servers) == 0 {
		servers = []string{"localhost:3320"}
	}

	client, err := olriclib.NewClusterClient(servers)
	if err != nil {
		return nil, fmt.Errorf("failed to create Olric cluster client: %w", err)
	}

	dmapName := cfg.DMap
	if dmapName == "" {
		dmapName = "query-cache"
	}
	dm, err := client.NewDMap(dmapName)
	if err != nil {
		client.Close(context.Background())
		return nil, fmt.Errorf("failed to bind DMap %q: %w", dmapName, err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &OlricStore{
		client:  client,
		dmap:    dm,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Invalidate implements Store.
func (s *OlricStore) Invalidate(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.dmap.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to invalidate %q: %w", key, err)
	}
	return nil
}

// InvalidateMatching implements Store. The DMap's keys are scanned and
// every match deleted in one call.
func (s *OlricStore) InvalidateMatching(ctx context.Context, match func(string) bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	it, err := s.dmap.Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	var keys []string
	for it.Next() {
		if key := it.Key(); match(key) {
			keys = append(keys, key)
		}
	}
	it.Close()

	if len(keys) == 0 {
		return nil
	}
	if _, err := s.dmap.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to invalidate %d keys: %w", len(keys), err)
	}
	s.logger.ComponentDebug(logging.ComponentCache, "invalidated matching keys",
		zap.Int("count", len(keys)))
	return nil
}

// Health checks connectivity with a put/get round trip.
func (s *OlricStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := fmt.Sprintf("_health_%d", time.Now().UnixNano())
	if err := s.dmap.Put(ctx, key, "ok"); err != nil {
		return fmt.Errorf("health check put failed: %w", err)
	}
	if _, err := s.dmap.Get(ctx, key); err != nil {
		return fmt.Errorf("health check get failed: %w", err)
	}
	_, _ = s.dmap.Delete(ctx, key)
	return nil
}

// Close closes the Olric client connection.
func (s *OlricStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Close(ctx)
}
