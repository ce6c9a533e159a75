package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/logging"
	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/realtime"
)

// invalidationRule maps one table's changes to the cache keys that could
// depend on it. Aggregates are invalidated on every change; list views
// are invalidated by prefix, narrowed by the discriminator column when
// the event carries it.
type invalidationRule struct {
	aggregates    []string
	listPrefix    string
	discriminator string
}

// The mapping is coarse on purpose: a false positive costs one redundant
// refetch, a false negative leaves the dashboard silently stale.
var defaultRules = map[string]invalidationRule{
	realtime.TablePendingProducts: {
		aggregates:    []string{"agent-metrics"},
		listPrefix:    "pending-products",
		discriminator: realtime.ColumnAgentType,
	},
	realtime.TableProducts: {
		aggregates:    []string{"dashboard-metrics"},
		listPrefix:    "products",
		discriminator: realtime.ColumnVendor,
	},
	realtime.TableAgents: {
		aggregates: []string{"agent-metrics", "dashboard-metrics"},
		listPrefix: "agents",
	},
}

// Bridge subscribes to the watched tables without a filter and marks the
// affected cache keys stale on every change event, insert, update, and
// delete alike.
type Bridge struct {
	manager *realtime.Manager
	store   Store
	logger  *logging.ColoredLogger
	rules   map[string]invalidationRule
	timeout time.Duration

	mu      sync.Mutex
	subs    []*realtime.Subscription
	started bool
}

// NewBridge creates a cache-invalidation bridge over the default watched
// tables.
func NewBridge(manager *realtime.Manager, store Store, logger *logging.ColoredLogger) *Bridge {
	return &Bridge{
		manager: manager,
		store:   store,
		logger:  logger,
		rules:   defaultRules,
		timeout: 5 * time.Second,
	}
}

// Start registers the bridge's subscriptions. A failure on any table
// rolls back the ones already made.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	handlers := realtime.Handlers{
		OnInsert: b.onChange,
		OnUpdate: b.onChange,
		OnDelete: b.onChange,
		OnError: func(err error) {
			b.logger.ComponentError(logging.ComponentCache, "watched channel failed terminally",
				zap.Error(err))
		},
	}

	for table := range b.rules {
		sub, err := b.manager.Subscribe(ctx, table, handlers, nil)
		if err != nil {
			for _, s := range b.subs {
				b.manager.Unsubscribe(s)
			}
			b.subs = nil
			return err
		}
		b.subs = append(b.subs, sub)
	}

	b.started = true
	b.logger.ComponentInfo(logging.ComponentCache, "cache invalidation bridge started",
		zap.Int("tables", len(b.subs)))
	return nil
}

// Stop removes the bridge's subscriptions.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		b.manager.Unsubscribe(s)
	}
	b.subs = nil
	b.started = false
}

// onChange computes and invalidates the key set for one event.
func (b *Bridge) onChange(ev realtime.ChangeEvent) {
	rule, ok := b.rules[ev.Table]
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	for _, key := range rule.aggregates {
		if err := b.store.Invalidate(ctx, key); err != nil {
			b.logger.ComponentWarn(logging.ComponentCache, "failed to invalidate aggregate key",
				zap.String("key", key),
				zap.Error(err))
		}
	}

	prefix := listPrefixFor(rule, ev)
	if err := b.store.InvalidateMatching(ctx, func(key string) bool {
		return strings.HasPrefix(key, prefix)
	}); err != nil {
		b.logger.ComponentWarn(logging.ComponentCache, "failed to invalidate list keys",
			zap.String("prefix", prefix),
			zap.Error(err))
	}

	b.logger.ComponentDebug(logging.ComponentCache, "invalidated cache for change",
		zap.String("table", ev.Table),
		zap.String("event_type", string(ev.Type)),
		zap.String("prefix", prefix))
}

// listPrefixFor narrows the list prefix by the discriminator column when
// the event carries it. When the value is unknown (a delete payload with
// only the primary key, say) the bare prefix is used, invalidating every
// list for the table. Over-invalidation is the safe direction.
func listPrefixFor(rule invalidationRule, ev realtime.ChangeEvent) string {
	if rule.discriminator == "" {
		return rule.listPrefix
	}
	for _, row := range []realtime.Row{ev.New, ev.Old} {
		if row == nil {
			continue
		}
		if v, ok := row[rule.discriminator].(string); ok && v != "" {
			return rule.listPrefix + "-" + v
		}
	}
	return rule.listPrefix
}
