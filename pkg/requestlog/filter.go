package requestlog

import "strings"

// Filter narrows a listing. Zero fields match everything.
type Filter struct {
	Service string
	Method  string
	// Route matches entries whose path starts with it.
	Route  string
	Status int
	// Limit keeps only the newest Limit entries.
	Limit int
}

// Matches reports whether e satisfies every set criterion.
func (f Filter) Matches(e *Entry) bool {
	if f.Service != "" && e.Service != f.Service {
		return false
	}
	if f.Method != "" && !strings.EqualFold(e.Method, f.Method) {
		return false
	}
	if f.Route != "" && !strings.HasPrefix(e.Path, f.Route) {
		return false
	}
	if f.Status != 0 && e.Status != f.Status {
		return false
	}
	return true
}

// Sink receives entries as they are produced.
type Sink interface {
	Publish(entry *Entry)
}
