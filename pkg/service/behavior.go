package service

import (
	"time"

	"github.com/getmockd/mockfleet/pkg/chaos"
	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/ratelimit"
)

// behavior is the compiled form of a BehaviorConfig. A nil field disables
// that part.
type behavior struct {
	limiter *ratelimit.Bucket
	chaos   *chaos.Injector
}

func newBehavior(cfg *definition.BehaviorConfig) *behavior {
	b := &behavior{}
	if cfg == nil {
		return b
	}
	if rl := cfg.RateLimiting; rl != nil && rl.Enabled && rl.RequestsPerMinute > 0 {
		b.limiter = ratelimit.PerMinute(rl.RequestsPerMinute)
	}

	var cc chaos.Config
	if l := cfg.Latency; l != nil {
		cc.MinLatency = time.Duration(l.MinMS) * time.Millisecond
		cc.MaxLatency = time.Duration(l.MaxMS) * time.Millisecond
	}
	if es := cfg.ErrorSimulation; es != nil && es.Enabled {
		cc.ErrorRate = es.Rate
		cc.StatusCodes = es.StatusCodes
	}
	if cc.Enabled() {
		b.chaos = chaos.New(cc)
	}
	return b
}
