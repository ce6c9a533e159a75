package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/config"
	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/logging"
)

// fakeConn is an in-memory StreamConn driven by the tests.
type fakeConn struct {
	events chan ChangeEvent
	errs   chan error

	mu     sync.Mutex
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		events: make(chan ChangeEvent, 32),
		errs:   make(chan error, 1),
	}
}

func (c *fakeConn) Events() <-chan ChangeEvent { return c.events }
func (c *fakeConn) Errs() <-chan error         { return c.errs }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) emit(ev ChangeEvent) { c.events <- ev }
func (c *fakeConn) drop(err error)      { c.errs <- err }

// fakeStream is an in-memory ChangeStream recording every open.
type fakeStream struct {
	mu         sync.Mutex
	conns      []*fakeConn
	opens      int
	failOpens  int  // fail this many upcoming opens
	alwaysFail bool // fail every open
}

func (s *fakeStream) Open(ctx context.Context, table string, filter *Filter) (StreamConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.alwaysFail {
		return nil, errors.New("dial refused")
	}
	if s.failOpens > 0 {
		s.failOpens--
		return nil, errors.New("dial refused")
	}
	c := newFakeConn()
	s.conns = append(s.conns, c)
	return c, nil
}

func (s *fakeStream) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func (s *fakeStream) conn(i int) *fakeConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 {
		i = len(s.conns) + i
	}
	return s.conns[i]
}

func (s *fakeStream) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *fakeStream) setAlwaysFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alwaysFail = v
}

func testRealtimeConfig() config.RealtimeConfig {
	return config.RealtimeConfig{
		URL:                      "ws://localhost:0/realtime",
		HeartbeatInterval:        time.Second,
		ReconnectInitialInterval: 10 * time.Millisecond,
		ReconnectMaxInterval:     20 * time.Millisecond,
		ReconnectBudget:          250 * time.Millisecond,
	}
}

func newTestManager(t *testing.T) (*Manager, *Registry, *fakeStream) {
	t.Helper()

	logger, err := logging.NewColoredLogger(logging.ComponentGeneral, false)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	stream := &fakeStream{}
	registry := NewRegistry(stream, testRealtimeConfig(), logger)
	mgr := NewManager(registry, logger)
	t.Cleanup(mgr.Close)

	return mgr, registry, stream
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-ticker.C:
			if cond() {
				return
			}
		}
	}
}

func insertEvent(table, id string) ChangeEvent {
	return ChangeEvent{Table: table, Type: EventInsert, New: Row{"id": id}}
}
