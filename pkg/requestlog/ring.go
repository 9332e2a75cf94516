package requestlog

import "sync"

// DefaultRingSize is used when a non-positive capacity is requested.
const DefaultRingSize = 1000

// Ring is a bounded FIFO of entries; the oldest entry is evicted first.
type Ring struct {
	mu      sync.RWMutex
	entries []*Entry
	max     int
}

// NewRing creates a ring holding at most capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingSize
	}
	return &Ring{entries: make([]*Entry, 0, capacity), max: capacity}
}

// Add appends entry, evicting the oldest one at capacity.
func (r *Ring) Add(entry *Entry) {
	if entry == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) >= r.max {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:len(r.entries)-1]
	}
	r.entries = append(r.entries, entry)
}

// Query returns matching entries oldest first. With a limit, only the
// newest Limit matches are kept.
func (r *Ring) Query(f Filter) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Recent returns up to n of the newest entries, oldest first.
func (r *Ring) Recent(n int) []*Entry {
	return r.Query(Filter{Limit: n})
}

// Len returns the number of stored entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear drops every entry.
func (r *Ring) Clear() {
	r.mu.Lock()
	r.entries = make([]*Entry, 0, r.max)
	r.mu.Unlock()
}
