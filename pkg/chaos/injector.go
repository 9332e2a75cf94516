package chaos

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// Config describes the faults to inject. The zero value injects nothing.
type Config struct {
	MinLatency time.Duration
	MaxLatency time.Duration

	// ErrorRate is the probability in [0, 1] that a request fails.
	ErrorRate float64
	// StatusCodes are picked uniformly for failed requests; empty means 500.
	StatusCodes []int
}

// Enabled reports whether the config injects anything.
func (c Config) Enabled() bool {
	return c.MaxLatency > 0 || c.ErrorRate > 0
}

// Stats counts what an Injector has done.
type Stats struct {
	Requests int64 `json:"requests"`
	Faults   int64 `json:"faults"`
	Delayed  int64 `json:"delayed"`
}

// Injector applies a Config. It is safe for concurrent use.
type Injector struct {
	cfg Config

	mu    sync.Mutex
	rng   *rand.Rand
	stats Stats
}

// New creates an injector. Rates outside [0, 1] are clamped.
func New(cfg Config) *Injector {
	if cfg.ErrorRate < 0 {
		cfg.ErrorRate = 0
	}
	if cfg.ErrorRate > 1 {
		cfg.ErrorRate = 1
	}
	if cfg.MaxLatency < cfg.MinLatency {
		cfg.MaxLatency = cfg.MinLatency
	}
	return &Injector{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // chaos does not need crypto randomness
	}
}

// Config returns the effective configuration.
func (i *Injector) Config() Config { return i.cfg }

// Fault decides whether the current request fails, and with which status.
func (i *Injector) Fault() (int, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stats.Requests++

	if i.cfg.ErrorRate <= 0 || i.rng.Float64() >= i.cfg.ErrorRate {
		return 0, false
	}
	i.stats.Faults++
	if len(i.cfg.StatusCodes) == 0 {
		return http.StatusInternalServerError, true
	}
	return i.cfg.StatusCodes[i.rng.Intn(len(i.cfg.StatusCodes))], true
}

// Latency picks a duration in [MinLatency, MaxLatency].
func (i *Injector) Latency() time.Duration {
	if i.cfg.MaxLatency <= 0 {
		return 0
	}
	span := i.cfg.MaxLatency - i.cfg.MinLatency
	if span <= 0 {
		return i.cfg.MinLatency
	}
	i.mu.Lock()
	d := i.cfg.MinLatency + time.Duration(i.rng.Int63n(int64(span)+1))
	i.mu.Unlock()
	return d
}

// Delay sleeps for Latency or until ctx is done.
func (i *Injector) Delay(ctx context.Context) error {
	d := i.Latency()
	if d <= 0 {
		return nil
	}
	i.mu.Lock()
	i.stats.Delayed++
	i.mu.Unlock()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stats returns a snapshot of the counters.
func (i *Injector) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stats
}
