package realtime

import "context"

// ChangeStream opens physical subscriptions to the backend change feed.
// The backend's delivery guarantees are treated as a black box: each
// opened connection delivers an ordered-per-row stream of change events
// until it is closed or drops.
type ChangeStream interface {
	// Open establishes one physical subscription for a table, optionally
	// narrowed by an equality filter. Opening is the only network-visible
	// effect in the subscription layer.
	Open(ctx context.Context, table string, filter *Filter) (StreamConn, error)
}

// StreamConn is one live connection to the backend change feed.
//
// Events delivers decoded change events in backend order and is closed
// when the connection dies. Errs delivers at most one error describing
// why the connection dropped; a connection closed via Close reports
// nothing. Close is safe to call more than once.
type StreamConn interface {
	Events() <-chan ChangeEvent
	Errs() <-chan error
	Close() error
}
