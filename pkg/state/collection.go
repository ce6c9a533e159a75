// Package state applies change events incrementally to in-memory row
// collections held by UI consumers, as an alternative to invalidating
// and refetching.
package state

import (
	"sync"

	"github.com/mcgrocer-com/ai-agents-dashboard-sub005/pkg/realtime"
)

// Collection is an ordered sequence of rows owned by a single consumer.
// It is mutated only through that consumer's merger; collections are
// never shared between consumers.
type Collection struct {
	mu   sync.RWMutex
	rows []realtime.Row
}

// NewCollection creates a collection seeded with the consumer's initial
// query result, newest first.
func NewCollection(rows ...realtime.Row) *Collection {
	c := &Collection{}
	c.rows = append(c.rows, rows...)
	return c
}

// Prepend puts a row at the front of the collection.
func (c *Collection) Prepend(row realtime.Row) {
	c.mu.Lock()
	c.rows = append([]realtime.Row{row}, c.rows...)
	c.mu.Unlock()
}

// Replace swaps the row whose primary key matches, preserving its
// position. It reports whether a match was found; no match means no
// mutation.
func (c *Collection) Replace(row realtime.Row) bool {
	key, ok := row.PrimaryKey()
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.rows {
		if existingKey, ok := existing.PrimaryKey(); ok && existingKey == key {
			c.rows[i] = row
			return true
		}
	}
	return false
}

// Rows returns a snapshot of the collection in order.
func (c *Collection) Rows() []realtime.Row {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]realtime.Row, len(c.rows))
	copy(out, c.rows)
	return out
}

// IDs returns the primary keys of the rows in order.
func (c *Collection) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.rows))
	for _, row := range c.rows {
		id, _ := row.PrimaryKey()
		out = append(out, id)
	}
	return out
}

// Len returns the number of rows.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}
