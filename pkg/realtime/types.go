package realtime

import "fmt"

// EventType identifies the kind of row-level change a backend event carries.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Tables watched by the dashboard.
const (
	TablePendingProducts = "pending_products"
	TableProducts        = "products"
	TableAgents          = "agents"
)

// Filterable columns.
const (
	ColumnAgentType = "agent_type"
	ColumnVendor    = "vendor"
)

// PrimaryKeyColumn is the identity column every watched table exposes.
const PrimaryKeyColumn = "id"

// Row is a single table row as delivered by the backend change feed.
type Row map[string]any

// PrimaryKey returns the row's primary key rendered as a string.
// The second return is false when the row carries no usable key.
func (r Row) PrimaryKey() (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r[PrimaryKeyColumn]
	if !ok || v == nil {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		// JSON numbers decode as float64
		if id == float64(int64(id)) {
			return fmt.Sprintf("%d", int64(id)), true
		}
		return fmt.Sprintf("%v", id), true
	default:
		return fmt.Sprint(v), true
	}
}

// ChangeEvent is a single row-level change notification from the backend.
// Insert and Update carry New; Update and Delete carry Old (at minimum the
// primary key). Events are immutable once received.
type ChangeEvent struct {
	Table string
	Type  EventType
	New   Row
	Old   Row
}

// Filter is an optional single-column equality condition narrowing a
// subscription to matching rows.
type Filter struct {
	Column string
	Value  string
}

// Handlers is the per-consumer callback set. Event types with a nil
// handler are silently skipped for that consumer. OnError receives the
// one-time terminal failure notification when a channel's connection
// drops and cannot be reopened within the retry budget.
type Handlers struct {
	OnInsert func(ChangeEvent)
	OnUpdate func(ChangeEvent)
	OnDelete func(ChangeEvent)
	OnError  func(error)
}
