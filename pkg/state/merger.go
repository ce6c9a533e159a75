package state

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/logging"
	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/realtime"
)

// Merger wires a table's change events into one consumer's Collection:
// inserts are prepended, updates replace the matching row in place, and
// an update with no matching row is ignored. Deletes are not wired; the
// cache invalidation path is the only consumer of delete events.
//
// After Close, events still in flight for this consumer are discarded
// without touching the collection.
type Merger struct {
	manager    *realtime.Manager
	collection *Collection
	logger     *logging.ColoredLogger

	sub    *realtime.Subscription
	closed atomic.Bool
}

// NewMerger creates a merger bound to one consumer's collection.
func NewMerger(manager *realtime.Manager, collection *Collection, logger *logging.ColoredLogger) *Merger {
	return &Merger{
		manager:    manager,
		collection: collection,
		logger:     logger,
	}
}

// Attach subscribes the merger to a table's insert and update events,
// optionally narrowed by an equality filter.
func (m *Merger) Attach(ctx context.Context, table string, filter *realtime.Filter) error {
	sub, err := m.manager.Subscribe(ctx, table, realtime.Handlers{
		OnInsert: m.onInsert,
		OnUpdate: m.onUpdate,
		OnError: func(err error) {
			m.logger.ComponentError(logging.ComponentState, "merge channel failed terminally",
				zap.String("table", table),
				zap.Error(err))
		},
	}, filter)
	if err != nil {
		return err
	}
	m.sub = sub
	return nil
}

// Close tears the merger down. The liveness flag flips before the
// unsubscribe so a delivery racing the teardown is inert rather than a
// mutation of a detached collection.
func (m *Merger) Close() {
	m.closed.Store(true)
	m.manager.Unsubscribe(m.sub)
}

func (m *Merger) onInsert(ev realtime.ChangeEvent) {
	if m.closed.Load() {
		return
	}
	m.collection.Prepend(ev.New)
}

func (m *Merger) onUpdate(ev realtime.ChangeEvent) {
	if m.closed.Load() {
		return
	}
	if !m.collection.Replace(ev.New) {
		id, _ := ev.New.PrimaryKey()
		m.logger.ComponentDebug(logging.ComponentState, "update for row not in collection ignored",
			zap.String("table", ev.Table),
			zap.String("id", id))
	}
}
