package realtime

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	errs "github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/errors"
	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/logging"
)

// State is a channel's lifecycle state.
type State int32

const (
	StateOpening State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// consumer is one registered callback set on a channel. The live flag is
// shared with the consumer's Subscription: teardown flips it, and any
// event already in flight is then discarded instead of delivered.
type consumer struct {
	id       string
	handlers Handlers
	live     *atomic.Bool
}

// Channel multiplexes one physical change-feed connection across all
// consumers registered for the same (table, filter) identity. At most one
// Channel exists per key; at most one of its handlers runs at a time.
type Channel struct {
	key    string
	table  string
	filter *Filter

	mu        sync.RWMutex
	state     State
	consumers map[string]*consumer
	conn      StreamConn

	// cancelRun stops the dispatch loop; set once by the registry when
	// the channel is created.
	cancelRun func()
}

func newChannel(key, table string, filter *Filter) *Channel {
	return &Channel{
		key:       key,
		table:     table,
		filter:    filter,
		state:     StateOpening,
		consumers: make(map[string]*consumer),
	}
}

// Key returns the channel's canonical identity.
func (ch *Channel) Key() string { return ch.key }

// Table returns the watched table.
func (ch *Channel) Table() string { return ch.table }

// State returns the current lifecycle state.
func (ch *Channel) State() State {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.state
}

func (ch *Channel) setState(s State) {
	ch.mu.Lock()
	ch.state = s
	ch.mu.Unlock()
}

// ConsumerCount returns the channel's reference count.
func (ch *Channel) ConsumerCount() int {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.consumers)
}

func (ch *Channel) addConsumer(c *consumer) {
	ch.mu.Lock()
	ch.consumers[c.id] = c
	ch.mu.Unlock()
}

// removeConsumer deletes a consumer registration. Removing an unknown
// consumer is a no-op; the second return is the remaining count.
func (ch *Channel) removeConsumer(id string) (removed bool, remaining int) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if _, ok := ch.consumers[id]; !ok {
		return false, len(ch.consumers)
	}
	delete(ch.consumers, id)
	return true, len(ch.consumers)
}

func (ch *Channel) snapshotConsumers() []*consumer {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	out := make([]*consumer, 0, len(ch.consumers))
	for _, c := range ch.consumers {
		out = append(out, c)
	}
	return out
}

func (ch *Channel) setConn(conn StreamConn) {
	ch.mu.Lock()
	ch.conn = conn
	ch.mu.Unlock()
}

func (ch *Channel) getConn() StreamConn {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.conn
}

// dispatch validates one event and fans it out to every live consumer's
// matching handler. It runs on the channel's dispatch goroutine only, so
// handlers of one channel never execute concurrently and consumers see
// events in arrival order.
func (ch *Channel) dispatch(ev ChangeEvent, logger *logging.ColoredLogger) {
	if err := validateEvent(ev); err != nil {
		logger.ComponentWarn(logging.ComponentRealtime, "dropping malformed change event",
			zap.String("channel", ch.key),
			zap.String("event_type", string(ev.Type)),
			zap.Error(err))
		return
	}

	for _, c := range ch.snapshotConsumers() {
		if !c.live.Load() {
			continue
		}
		var h func(ChangeEvent)
		switch ev.Type {
		case EventInsert:
			h = c.handlers.OnInsert
		case EventUpdate:
			h = c.handlers.OnUpdate
		case EventDelete:
			h = c.handlers.OnDelete
		}
		if h == nil {
			continue
		}
		// Re-check after picking the handler: teardown may have landed
		// while an earlier consumer's handler ran.
		if !c.live.Load() {
			continue
		}
		h(ev)
	}
}

// fail delivers the one-time terminal failure notification to every live
// consumer that registered OnError.
func (ch *Channel) fail(err error) {
	for _, c := range ch.snapshotConsumers() {
		if !c.live.Load() || c.handlers.OnError == nil {
			continue
		}
		c.handlers.OnError(err)
	}
}

// validateEvent checks the identity fields each event type requires.
func validateEvent(ev ChangeEvent) error {
	switch ev.Type {
	case EventInsert:
		if _, ok := ev.New.PrimaryKey(); !ok {
			return errs.NewMalformedEventError(ev.Table, string(ev.Type), "new."+PrimaryKeyColumn)
		}
	case EventUpdate:
		if _, ok := ev.New.PrimaryKey(); !ok {
			return errs.NewMalformedEventError(ev.Table, string(ev.Type), "new."+PrimaryKeyColumn)
		}
	case EventDelete:
		if _, ok := ev.Old.PrimaryKey(); !ok {
			return errs.NewMalformedEventError(ev.Table, string(ev.Type), "old."+PrimaryKeyColumn)
		}
	default:
		return errs.NewMalformedEventError(ev.Table, string(ev.Type), "type")
	}
	return nil
}
