package events

import (
	"sync"
)

// Buffer is a fixed-capacity, insertion-ordered ring of Records for one
// domain. When full, Append evicts the oldest record so recent activity is
// always visible. Only the Aggregator mutates a Buffer; readers get
// snapshots.
type Buffer struct {
	mu       sync.RWMutex
	records  []Record
	capacity int
	head     int   // index where the next write goes once full
	total    int64 // monotonic count of all records ever appended
}

// NewBuffer creates a buffer holding at most capacity records.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		records:  make([]Record, 0, capacity),
		capacity: capacity,
	}
}

// Append stores a record, evicting the oldest when full. Returns true if an
// eviction happened.
func (b *Buffer) Append(rec Record) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	if len(b.records) < b.capacity {
		b.records = append(b.records, rec)
		return false
	}
	b.records[b.head] = rec
	b.head = (b.head + 1) % b.capacity
	return true
}

// Snapshot returns all buffered records oldest-first. The slice is a copy;
// callers may retain it freely.
func (b *Buffer) Snapshot() []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Record, 0, len(b.records))
	if len(b.records) < b.capacity {
		out = append(out, b.records...)
		return out
	}
	// Full ring: oldest record sits at head.
	out = append(out, b.records[b.head:]...)
	out = append(out, b.records[:b.head]...)
	return out
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// Total returns the monotonic count of records ever appended, including
// evicted ones.
func (b *Buffer) Total() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// Clear drops every buffered record. This is an explicit operation, distinct
// from capacity eviction.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = b.records[:0]
	b.head = 0
}
