// Package ports hands out listening ports to service instances.
package ports

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
)

var (
	// ErrPortInUse is returned when an explicit port is held by another owner.
	ErrPortInUse = errors.New("port in use")
	// ErrNoPortAvailable is returned when the range is exhausted.
	ErrNoPortAvailable = errors.New("no port available")
)

// Range is an inclusive port range.
type Range struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// Validate checks the range bounds.
func (r Range) Validate() error {
	if r.Start < 1 || r.End > 65535 || r.Start > r.End {
		return fmt.Errorf("invalid port range %d-%d", r.Start, r.End)
	}
	return nil
}

// Size is the number of ports in the range.
func (r Range) Size() int { return r.End - r.Start + 1 }

// Contains reports whether port lies inside the range.
func (r Range) Contains(port int) bool { return port >= r.Start && port <= r.End }

func (r Range) String() string { return fmt.Sprintf("%d-%d", r.Start, r.End) }

// ParseRange parses "8000-8999".
func ParseRange(s string) (Range, error) {
	var r Range
	var err error
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			continue
		}
		if r.Start, err = strconv.Atoi(s[:i]); err == nil {
			r.End, err = strconv.Atoi(s[i+1:])
		}
		if err != nil {
			return Range{}, fmt.Errorf("invalid port range %q", s)
		}
		return r, r.Validate()
	}
	return Range{}, fmt.Errorf("invalid port range %q: want start-end", s)
}

// Allocator tracks in-process port reservations. It does not bind sockets;
// OS-level conflicts surface when the owner binds and are handled there.
type Allocator struct {
	rng Range

	mu       sync.Mutex
	reserved map[int]string
}

// NewAllocator creates an allocator for r.
func NewAllocator(r Range) (*Allocator, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &Allocator{rng: r, reserved: make(map[int]string)}, nil
}

// Range returns the configured range.
func (a *Allocator) Range() Range { return a.rng }

// Reserve reserves explicit for owner, or the lowest free port in the range
// when explicit is 0. Reserving a port the owner already holds succeeds.
func (a *Allocator) Reserve(owner string, explicit int) (int, error) {
	if explicit == 0 {
		return a.ReserveAfter(owner, a.rng.Start-1)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if holder, ok := a.reserved[explicit]; ok && holder != owner {
		return 0, fmt.Errorf("port %d reserved by %s: %w", explicit, holder, ErrPortInUse)
	}
	a.reserved[explicit] = owner
	return explicit, nil
}

// ReserveAfter reserves the lowest free port in the range greater than after.
// Callers use it to move past a port that failed to bind.
func (a *Allocator) ReserveAfter(owner string, after int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for port := max(after+1, a.rng.Start); port <= a.rng.End; port++ {
		if _, taken := a.reserved[port]; taken {
			continue
		}
		a.reserved[port] = owner
		return port, nil
	}
	return 0, fmt.Errorf("range %s: %w", a.rng, ErrNoPortAvailable)
}

// Release frees port. Releasing a free port is a no-op.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	delete(a.reserved, port)
	a.mu.Unlock()
}

// Owner returns who holds port.
func (a *Allocator) Owner(port int) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	owner, ok := a.reserved[port]
	return owner, ok
}

// Reserved returns the reserved ports in ascending order.
func (a *Allocator) Reserved() []int {
	a.mu.Lock()
	out := make([]int, 0, len(a.reserved))
	for p := range a.reserved {
		out = append(out, p)
	}
	a.mu.Unlock()
	sort.Ints(out)
	return out
}

// IsAvailable reports whether host:port can be bound right now.
func IsAvailable(host string, port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
