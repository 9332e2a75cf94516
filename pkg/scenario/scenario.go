// Package scenario holds the active scenario of a service instance.
package scenario

import "sync"

// Service is a single-slot holder for the active scenario name. Reads
// proceed concurrently; a write excludes everything else until it is done.
type Service struct {
	mu     sync.RWMutex
	active *string
}

// New returns a Service with no active scenario.
func New() *Service {
	return &Service{}
}

// Set replaces the active scenario. nil clears it.
func (s *Service) Set(name *string) {
	var v *string
	if name != nil {
		n := *name
		v = &n
	}
	s.mu.Lock()
	s.active = v
	s.mu.Unlock()
}

// Get returns a copy of the active scenario name, or nil.
func (s *Service) Get() *string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil
	}
	n := *s.active
	return &n
}

// Active is Get in comma-ok form.
func (s *Service) Active() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return "", false
	}
	return *s.active, true
}
