package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	errs "github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/errors"
)

func TestRegistryDedup(t *testing.T) {
	mgr, _, stream := newTestManager(t)
	ctx := context.Background()

	sub1, err := mgr.Subscribe(ctx, TablePendingProducts, Handlers{OnInsert: func(ChangeEvent) {}}, nil)
	if err != nil {
		t.Fatalf("first subscribe failed: %v", err)
	}
	sub2, err := mgr.Subscribe(ctx, TablePendingProducts, Handlers{OnInsert: func(ChangeEvent) {}}, nil)
	if err != nil {
		t.Fatalf("second subscribe failed: %v", err)
	}

	if stream.openCount() != 1 {
		t.Errorf("expected exactly 1 physical connection, got %d", stream.openCount())
	}
	if sub1.Key() != sub2.Key() {
		t.Errorf("expected same key, got %q vs %q", sub1.Key(), sub2.Key())
	}

	// A different filter is a different channel identity.
	_, err = mgr.SubscribePendingProducts(ctx, Handlers{OnInsert: func(ChangeEvent) {}}, "weight_dimension")
	if err != nil {
		t.Fatalf("filtered subscribe failed: %v", err)
	}
	if stream.openCount() != 2 {
		t.Errorf("expected 2 physical connections for 2 keys, got %d", stream.openCount())
	}
}

func TestRegistryLifecycle(t *testing.T) {
	mgr, reg, stream := newTestManager(t)
	ctx := context.Background()

	sub1, _ := mgr.Subscribe(ctx, TableAgents, Handlers{}, nil)
	sub2, _ := mgr.Subscribe(ctx, TableAgents, Handlers{}, nil)

	statuses := reg.Snapshot()
	if len(statuses) != 1 || statuses[0].Consumers != 2 || statuses[0].State != "active" {
		t.Fatalf("unexpected snapshot: %+v", statuses)
	}

	mgr.Unsubscribe(sub1)
	if got := reg.Snapshot(); len(got) != 1 || got[0].Consumers != 1 {
		t.Fatalf("expected channel to survive first release, got %+v", got)
	}
	if stream.conn(0).isClosed() {
		t.Fatal("connection must not close while a consumer holds a reference")
	}

	mgr.Unsubscribe(sub2)
	waitFor(t, func() bool { return stream.conn(0).isClosed() },
		"releasing the last consumer must close the connection")
	if got := reg.Snapshot(); len(got) != 0 {
		t.Fatalf("expected empty snapshot after full release, got %+v", got)
	}

	// A closed channel is not reused: the next subscribe opens fresh.
	if _, err := mgr.Subscribe(ctx, TableAgents, Handlers{}, nil); err != nil {
		t.Fatalf("resubscribe failed: %v", err)
	}
	if stream.openCount() != 2 {
		t.Errorf("expected a new connection after full closure, got %d opens", stream.openCount())
	}
}

func TestRegistryOrdering(t *testing.T) {
	mgr, _, stream := newTestManager(t)
	ctx := context.Background()

	var mu sync.Mutex
	var yours, mine []string
	record := func(dst *[]string) Handlers {
		return Handlers{OnInsert: func(ev ChangeEvent) {
			id, _ := ev.New.PrimaryKey()
			mu.Lock()
			*dst = append(*dst, id)
			mu.Unlock()
		}}
	}

	if _, err := mgr.Subscribe(ctx, TableProducts, record(&mine), nil); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if _, err := mgr.Subscribe(ctx, TableProducts, record(&yours), nil); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	conn := stream.conn(0)
	for _, id := range []string{"e1", "e2", "e3"} {
		conn.emit(insertEvent(TableProducts, id))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(mine) == 3 && len(yours) == 3
	}, "both consumers must receive all three events")

	mu.Lock()
	defer mu.Unlock()
	for i, want := range []string{"e1", "e2", "e3"} {
		if mine[i] != want || yours[i] != want {
			t.Fatalf("events delivered out of order: mine=%v yours=%v", mine, yours)
		}
	}
}

func TestRegistryOpenFailureLeavesNoState(t *testing.T) {
	mgr, reg, stream := newTestManager(t)
	ctx := context.Background()
	stream.failOpens = 1

	_, err := mgr.Subscribe(ctx, TablePendingProducts, Handlers{}, nil)
	if err == nil {
		t.Fatal("expected subscribe to surface the connection error")
	}
	if !errs.IsConnectionFailed(err) {
		t.Errorf("expected a connection error, got %v", err)
	}
	if got := reg.Snapshot(); len(got) != 0 {
		t.Fatalf("expected no channel registered after open failure, got %+v", got)
	}

	// The failure is not sticky.
	if _, err := mgr.Subscribe(ctx, TablePendingProducts, Handlers{}, nil); err != nil {
		t.Fatalf("subscribe after recovery failed: %v", err)
	}
}

func TestRegistryTransientReconnect(t *testing.T) {
	mgr, _, stream := newTestManager(t)
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	var failures []error
	_, err := mgr.Subscribe(ctx, TableAgents, Handlers{
		OnInsert: func(ev ChangeEvent) {
			id, _ := ev.New.PrimaryKey()
			mu.Lock()
			got = append(got, id)
			mu.Unlock()
		},
		OnError: func(err error) {
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
		},
	}, nil)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	stream.conn(0).emit(insertEvent(TableAgents, "before"))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "event before the drop must arrive")

	// Drop the connection; the registry reopens it within the budget.
	stream.conn(0).drop(errorForTest("connection reset"))
	waitFor(t, func() bool { return stream.connCount() == 2 }, "expected a reopened connection")
	waitFor(t, func() bool { return stream.conn(0).isClosed() },
		"the dropped connection must be closed, not abandoned")

	stream.conn(1).emit(insertEvent(TableAgents, "after"))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, "event after the reconnect must arrive")

	mu.Lock()
	defer mu.Unlock()
	if len(failures) != 0 {
		t.Errorf("transient reconnects must not be surfaced to consumers, got %v", failures)
	}
}

func TestRegistryTerminalFailure(t *testing.T) {
	mgr, reg, stream := newTestManager(t)
	ctx := context.Background()

	var mu sync.Mutex
	var failures []error
	sub, err := mgr.Subscribe(ctx, TableAgents, Handlers{
		OnError: func(err error) {
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
		},
	}, nil)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	stream.setAlwaysFail(true)
	stream.conn(0).drop(errorForTest("connection reset"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failures) == 1
	}, "expected a one-time terminal failure notification")

	mu.Lock()
	if !errs.IsConnectionFailed(failures[0]) {
		t.Errorf("expected a connection error, got %v", failures[0])
	}
	mu.Unlock()

	if got := reg.Snapshot(); len(got) != 0 {
		t.Fatalf("expected failed channel to be removed, got %+v", got)
	}

	// Unsubscribing the dead handle is a no-op, and a fresh subscribe
	// triggers a fresh acquire once the backend recovers.
	mgr.Unsubscribe(sub)
	stream.setAlwaysFail(false)
	if _, err := mgr.Subscribe(ctx, TableAgents, Handlers{}, nil); err != nil {
		t.Fatalf("resubscribe after terminal failure failed: %v", err)
	}

	// Still exactly one notification.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(failures) != 1 {
		t.Errorf("expected exactly one failure notification, got %d", len(failures))
	}
}

func TestRegistryMalformedEventsDropped(t *testing.T) {
	mgr, _, stream := newTestManager(t)
	ctx := context.Background()

	var mu sync.Mutex
	var updates, inserts int
	_, err := mgr.Subscribe(ctx, TablePendingProducts, Handlers{
		OnInsert: func(ChangeEvent) { mu.Lock(); inserts++; mu.Unlock() },
		OnUpdate: func(ChangeEvent) { mu.Lock(); updates++; mu.Unlock() },
	}, nil)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	conn := stream.conn(0)
	// Update without a primary key: dropped with a diagnostic.
	conn.emit(ChangeEvent{Table: TablePendingProducts, Type: EventUpdate, New: Row{"title": "no id"}})
	// Delete without old row identity: dropped.
	conn.emit(ChangeEvent{Table: TablePendingProducts, Type: EventDelete})
	// A well-formed event after the malformed ones still flows.
	conn.emit(insertEvent(TablePendingProducts, "ok"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return inserts == 1
	}, "well-formed event must survive preceding malformed ones")

	mu.Lock()
	defer mu.Unlock()
	if updates != 0 {
		t.Errorf("malformed update must not reach handlers, got %d", updates)
	}
}

// errorForTest builds a distinct error value.
func errorForTest(msg string) error { return &testError{msg} }

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
