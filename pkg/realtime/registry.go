package realtime

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/config"
	errs "github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/errors"
	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/logging"
)

// Registry owns the set of live channels, keyed by canonical channel
// identity. It deduplicates so at most one physical connection exists per
// key regardless of how many consumers want it, and reference-counts
// consumers. Acquire and Release are atomic with respect to each other;
// the key-to-channel map is the only shared mutable state in the layer.
type Registry struct {
	mu       sync.Mutex
	channels map[string]*Channel
	stream   ChangeStream
	cfg      config.RealtimeConfig
	logger   *logging.ColoredLogger
	wg       sync.WaitGroup
	closed   bool
}

// ChannelStatus describes one live channel for introspection.
type ChannelStatus struct {
	Key       string `json:"key"`
	Table     string `json:"table"`
	State     string `json:"state"`
	Consumers int    `json:"consumers"`
}

// NewRegistry creates a channel registry on top of a change stream.
func NewRegistry(stream ChangeStream, cfg config.RealtimeConfig, logger *logging.ColoredLogger) *Registry {
	return &Registry{
		channels: make(map[string]*Channel),
		stream:   stream,
		cfg:      cfg,
		logger:   logger,
	}
}

// Acquire returns the channel for (table, filter), creating it and opening
// its connection on first use, and registers the consumer's handlers on
// it. If the connection cannot be opened no channel is registered and the
// error is returned to the caller.
func (r *Registry) Acquire(ctx context.Context, table string, filter *Filter, consumerID string, h Handlers, live *atomic.Bool) (*Channel, error) {
	key := ChannelKey(table, filter)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errs.Wrap(errs.ErrChannelClosed, "registry closed")
	}

	if ch, ok := r.channels[key]; ok {
		ch.addConsumer(&consumer{id: consumerID, handlers: h, live: live})
		return ch, nil
	}

	ch := newChannel(key, table, filter)
	conn, err := r.stream.Open(ctx, table, filter)
	if err != nil {
		// No partial state: the channel is never registered.
		return nil, errs.NewConnectionError(key, 1, err)
	}
	ch.setConn(conn)
	ch.addConsumer(&consumer{id: consumerID, handlers: h, live: live})
	ch.setState(StateActive)
	r.channels[key] = ch

	runCtx, cancel := context.WithCancel(context.Background())
	ch.cancelRun = cancel
	r.wg.Add(1)
	go r.run(runCtx, ch)

	r.logger.ComponentInfo(logging.ComponentRealtime, "channel opened",
		zap.String("key", key))
	return ch, nil
}

// Release removes a consumer's handlers from the channel for key. When the
// reference count reaches zero the channel transitions through Closing to
// Closed and the underlying connection is closed. Releasing an unknown key
// or an unknown consumer is a no-op.
func (r *Registry) Release(key, consumerID string) {
	r.mu.Lock()
	ch, ok := r.channels[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	removed, remaining := ch.removeConsumer(consumerID)
	if !removed || remaining > 0 {
		r.mu.Unlock()
		return
	}

	ch.setState(StateClosing)
	delete(r.channels, key)
	r.mu.Unlock()

	ch.cancelRun()
	ch.setState(StateClosed)
	r.logger.ComponentInfo(logging.ComponentRealtime, "channel closed",
		zap.String("key", key))
}

// Snapshot reports the live channels sorted by key.
func (r *Registry) Snapshot() []ChannelStatus {
	r.mu.Lock()
	chans := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		chans = append(chans, ch)
	}
	r.mu.Unlock()

	out := make([]ChannelStatus, 0, len(chans))
	for _, ch := range chans {
		out = append(out, ChannelStatus{
			Key:       ch.Key(),
			Table:     ch.Table(),
			State:     ch.State().String(),
			Consumers: ch.ConsumerCount(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Close tears down every channel and waits for their dispatch loops.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	chans := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		chans = append(chans, ch)
	}
	r.channels = make(map[string]*Channel)
	r.mu.Unlock()

	for _, ch := range chans {
		ch.setState(StateClosing)
		ch.cancelRun()
		ch.setState(StateClosed)
	}
	r.wg.Wait()
}

// run is a channel's dispatch loop: it delivers events serially to the
// channel's consumers and drives the reconnect policy when the connection
// drops.
func (r *Registry) run(ctx context.Context, ch *Channel) {
	defer r.wg.Done()

	conn := ch.getConn()
	defer func() {
		if c := ch.getConn(); c != nil {
			c.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-conn.Events():
			if !ok {
				conn.Close()
				conn = r.reopen(ctx, ch, nil)
				if conn == nil {
					return
				}
				continue
			}
			ch.dispatch(ev, r.logger)
		case err := <-conn.Errs():
			// Close the dead connection so its goroutines stop; only
			// then start the replacement.
			conn.Close()
			conn = r.reopen(ctx, ch, err)
			if conn == nil {
				return
			}
		}
	}
}

// reopen retries the channel's connection with exponential backoff inside
// the retry budget. Consumers are not told about transient attempts; only
// a terminal failure after the budget is exhausted reaches them, at which
// point the channel is removed so a later subscribe starts fresh. Events
// produced during the gap may be missed; that loss is accepted here.
func (r *Registry) reopen(ctx context.Context, ch *Channel, cause error) StreamConn {
	r.logger.ComponentWarn(logging.ComponentRealtime, "change feed connection dropped",
		zap.String("key", ch.Key()),
		zap.Error(cause))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.ReconnectInitialInterval
	bo.MaxInterval = r.cfg.ReconnectMaxInterval
	bo.MaxElapsedTime = r.cfg.ReconnectBudget
	bo.Reset()

	attempts := 0
	lastErr := cause
	for {
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		attempts++
		conn, err := r.stream.Open(ctx, ch.table, ch.filter)
		if err == nil {
			ch.setConn(conn)
			r.logger.ComponentInfo(logging.ComponentRealtime, "change feed connection reopened",
				zap.String("key", ch.Key()),
				zap.Int("attempts", attempts))
			return conn
		}
		lastErr = err
		r.logger.ComponentDebug(logging.ComponentRealtime, "reconnect attempt failed",
			zap.String("key", ch.Key()),
			zap.Int("attempt", attempts),
			zap.Error(err))
	}

	// Retry budget exhausted: remove the channel, then notify consumers
	// exactly once. Their registrations die with the channel; a fresh
	// subscribe triggers a fresh acquire.
	r.mu.Lock()
	delete(r.channels, ch.Key())
	r.mu.Unlock()
	ch.setConn(nil)
	ch.setState(StateClosed)

	termErr := errs.NewConnectionError(ch.Key(), attempts, lastErr)
	r.logger.ComponentError(logging.ComponentRealtime, "change feed connection failed terminally",
		zap.String("key", ch.Key()),
		zap.Int("attempts", attempts),
		zap.Error(lastErr))
	ch.fail(termErr)
	return nil
}
