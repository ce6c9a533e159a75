package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	errs "github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/errors"
	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/logging"
)

// Manager is the public subscription API. It multiplexes independent
// consumers onto shared channels: N consumers subscribing to the same
// (table, filter) cause exactly one physical connection, and each
// receives every event exactly once, in arrival order.
type Manager struct {
	registry *Registry
	logger   *logging.ColoredLogger
}

// Subscription identifies one consumer's registration. It is returned by
// Subscribe and passed back to Unsubscribe.
type Subscription struct {
	key        string
	consumerID string
	live       *atomic.Bool
	once       sync.Once
}

// Key returns the canonical channel key this subscription is attached to.
func (s *Subscription) Key() string { return s.key }

// NewManager creates a subscription manager over a channel registry.
func NewManager(registry *Registry, logger *logging.ColoredLogger) *Manager {
	return &Manager{
		registry: registry,
		logger:   logger,
	}
}

// Subscribe registers a callback set for a table's change events,
// optionally narrowed by an equality filter. Event types with a nil
// handler are silently dropped for this consumer. Subscribe returns
// before any event is delivered; events then arrive asynchronously, in
// backend order, until Unsubscribe.
func (m *Manager) Subscribe(ctx context.Context, table string, h Handlers, filter *Filter) (*Subscription, error) {
	if table == "" {
		return nil, errs.NewValidationError("table", "must not be empty", table)
	}
	if filter != nil && filter.Column == "" {
		return nil, errs.NewValidationError("filter.column", "must not be empty", filter.Column)
	}

	sub := &Subscription{
		key:        ChannelKey(table, filter),
		consumerID: uuid.New().String(),
		live:       &atomic.Bool{},
	}
	sub.live.Store(true)

	if _, err := m.registry.Acquire(ctx, table, filter, sub.consumerID, h, sub.live); err != nil {
		return nil, err
	}

	m.logger.ComponentDebug(logging.ComponentRealtime, "consumer subscribed",
		zap.String("key", sub.key),
		zap.String("consumer", sub.consumerID))
	return sub, nil
}

// Unsubscribe removes the subscription's handlers and releases its
// reference on the channel. It is idempotent: a second call, a call with
// a subscription whose channel already failed terminally, or a nil
// subscription are all no-ops. The liveness flag is lowered before the
// release so an event already in flight is discarded rather than
// delivered to a torn-down consumer.
func (m *Manager) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.once.Do(func() {
		sub.live.Store(false)
		m.registry.Release(sub.key, sub.consumerID)
		m.logger.ComponentDebug(logging.ComponentRealtime, "consumer unsubscribed",
			zap.String("key", sub.key),
			zap.String("consumer", sub.consumerID))
	})
}

// Close tears down every channel.
func (m *Manager) Close() {
	m.registry.Close()
}

// SubscribePendingProducts watches the pending products queue, optionally
// narrowed to one agent type (e.g., "weight_dimension").
func (m *Manager) SubscribePendingProducts(ctx context.Context, h Handlers, agentType string) (*Subscription, error) {
	var filter *Filter
	if agentType != "" {
		filter = &Filter{Column: ColumnAgentType, Value: agentType}
	}
	return m.Subscribe(ctx, TablePendingProducts, h, filter)
}

// SubscribeProducts watches the products table, optionally narrowed to one
// vendor.
func (m *Manager) SubscribeProducts(ctx context.Context, h Handlers, vendor string) (*Subscription, error) {
	var filter *Filter
	if vendor != "" {
		filter = &Filter{Column: ColumnVendor, Value: vendor}
	}
	return m.Subscribe(ctx, TableProducts, h, filter)
}

// SubscribeAgents watches the agents table.
func (m *Manager) SubscribeAgents(ctx context.Context, h Handlers) (*Subscription, error) {
	return m.Subscribe(ctx, TableAgents, h, nil)
}
