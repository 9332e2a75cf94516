// Package chaos injects latency and synthetic errors into responses.
//
// An Injector is built from a Config and consulted once per request: first
// Fault decides whether the request is answered with a random error
// status, then Delay sleeps for a random duration within the configured
// window.
//
//	inj := chaos.New(chaos.Config{
//	    MinLatency:  10 * time.Millisecond,
//	    MaxLatency:  50 * time.Millisecond,
//	    ErrorRate:   0.1,
//	    StatusCodes: []int{500, 503},
//	})
//	if status, ok := inj.Fault(); ok {
//	    http.Error(w, "injected", status)
//	    return
//	}
//	if err := inj.Delay(r.Context()); err != nil {
//	    return // client went away
//	}
package chaos
