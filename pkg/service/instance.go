package service

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/netutil"

	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/logging"
	"github.com/getmockd/mockfleet/pkg/requestlog"
	"github.com/getmockd/mockfleet/pkg/scenario"
	"github.com/getmockd/mockfleet/pkg/storage"
	"github.com/getmockd/mockfleet/pkg/template"
)

// DefaultShutdownTimeout bounds Stop when the caller's context has no deadline.
const DefaultShutdownTimeout = 5 * time.Second

// Recorder receives per-request measurements.
type Recorder interface {
	ObserveRequest(service, method string, status int, elapsed time.Duration)
}

// Instance is one running (or runnable) mock service.
type Instance struct {
	id   string
	def  *definition.ServiceDefinition
	host string
	port int

	renderer       template.Renderer
	storage        storage.Storage
	sink           requestlog.Sink
	metrics        Recorder
	log            *slog.Logger
	globalBehavior *definition.BehaviorConfig
	ringSize       int

	ring      *requestlog.Ring
	scenarios *scenario.Service
	data      *store
	endpoints []*endpoint
	graphql   *graphqlMock
	behavior  *behavior
	proxy     *httputil.ReverseProxy

	// recordMu guards the endpoints persisted for record_unknown.
	recordMu     sync.Mutex
	recorded     map[string]bool
	placeholders []definition.EndpointDefinition

	// lifeMu serializes Start and Stop.
	lifeMu sync.Mutex

	mu        sync.RWMutex
	state     State
	err       error
	startedAt time.Time
	srv       *http.Server
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures an Instance.
type Option func(*Instance)

// WithHost sets the interface to bind (default all interfaces).
func WithHost(host string) Option {
	return func(i *Instance) { i.host = host }
}

// WithRenderer replaces the default template engine.
func WithRenderer(r template.Renderer) Option {
	return func(i *Instance) {
		if r != nil {
			i.renderer = r
		}
	}
}

// WithStorage persists logs and recorded endpoints.
func WithStorage(s storage.Storage) Option {
	return func(i *Instance) { i.storage = s }
}

// WithLogSink publishes every log entry, typically to the registry broadcaster.
func WithLogSink(s requestlog.Sink) Option {
	return func(i *Instance) { i.sink = s }
}

// WithMetrics records request counts and durations.
func WithMetrics(m Recorder) Option {
	return func(i *Instance) { i.metrics = m }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Instance) {
		if l != nil {
			i.log = l
		}
	}
}

// WithGlobalBehavior applies b when the definition declares no behavior.
func WithGlobalBehavior(b *definition.BehaviorConfig) Option {
	return func(i *Instance) { i.globalBehavior = b }
}

// WithRingSize sets the capacity of the in-memory log ring.
func WithRingSize(n int) Option {
	return func(i *Instance) { i.ringSize = n }
}

// New compiles def into an Instance that will listen on port. Port 0 binds
// an ephemeral port. Compilation failures wrap ErrInvalidDefinition.
func New(def *definition.ServiceDefinition, port int, opts ...Option) (*Instance, error) {
	if def == nil || def.Name == "" {
		return nil, invalidDefinition("service name is required")
	}
	i := &Instance{
		id:        uuid.NewString(),
		def:       def,
		port:      port,
		renderer:  template.New(),
		log:       logging.Nop(),
		scenarios: scenario.New(),
		ringSize:  requestlog.DefaultRingSize,
		recorded:  map[string]bool{},
	}
	for _, opt := range opts {
		opt(i)
	}
	i.log = logging.Component(i.log, "service", "service", def.Name)
	i.ring = requestlog.NewRing(i.ringSize)

	var err error
	if i.data, err = newStore(def); err != nil {
		return nil, err
	}
	models, err := compileModels(def)
	if err != nil {
		return nil, err
	}
	if i.endpoints, err = compileEndpoints(def, models); err != nil {
		return nil, err
	}
	if def.GraphQL != nil {
		if i.graphql, err = loadGraphQL(def.GraphQL); err != nil {
			return nil, err
		}
	}
	if def.Server.ProxyBaseURL != "" {
		if i.proxy, err = newProxy(def.Server.ProxyBaseURL); err != nil {
			return nil, err
		}
	}
	cfg := def.Behavior
	if cfg == nil {
		cfg = i.globalBehavior
	}
	i.behavior = newBehavior(cfg)
	return i, nil
}

// ID identifies this instance; a rebuilt service gets a new ID.
func (i *Instance) ID() string { return i.id }

// Name returns the service name.
func (i *Instance) Name() string { return i.def.Name }

// Definition returns the definition the instance was built from.
func (i *Instance) Definition() *definition.ServiceDefinition { return i.def }

// Port returns the bound port once started, otherwise the requested one.
func (i *Instance) Port() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.port
}

// State returns the lifecycle state.
func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Err returns the reason for StateFailed.
func (i *Instance) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.err
}

// StartedAt returns when the instance last entered StateRunning.
func (i *Instance) StartedAt() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.startedAt
}

// URL returns the base URL clients use to reach the service.
func (i *Instance) URL() string {
	scheme := "http"
	if i.def.Server.TLSEnabled() {
		scheme = "https"
	}
	host := i.host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	base := i.def.Server.BasePath
	if base == "/" {
		base = ""
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(i.Port())) + base
}

// Scenario returns the active scenario name, or nil.
func (i *Instance) Scenario() *string { return i.scenarios.Get() }

// SetScenario activates a scenario; nil restores default responses.
func (i *Instance) SetScenario(name *string) {
	i.scenarios.Set(name)
	if name == nil {
		i.log.Info("scenario cleared")
		return
	}
	i.log.Info("scenario set", "scenario", *name)
}

// Bucket returns a copy of the bucket.
func (i *Instance) Bucket() map[string]any {
	return cloneMap(i.data.snapshot().bucket)
}

// Fixtures returns a copy of the fixtures.
func (i *Instance) Fixtures() map[string]any {
	return cloneMap(i.data.snapshot().fixtures)
}

// Logs returns ring entries matching f, oldest first.
func (i *Instance) Logs(f requestlog.Filter) []*requestlog.Entry {
	return i.ring.Query(f)
}

// ClearLogs empties the in-memory ring.
func (i *Instance) ClearLogs() { i.ring.Clear() }

func (i *Instance) setState(s State, err error) {
	i.mu.Lock()
	i.state = s
	i.err = err
	if s == StateRunning {
		i.startedAt = time.Now()
	}
	i.mu.Unlock()
}

// Start binds the listener and begins serving. It is valid from
// StateCreated and StateStopped.
func (i *Instance) Start(ctx context.Context) error {
	i.lifeMu.Lock()
	defer i.lifeMu.Unlock()

	if st := i.State(); !st.canStart() {
		return fmt.Errorf("start %s from %s: %w", i.def.Name, st, ErrInvalidState)
	}
	i.setState(StateStarting, nil)

	var tlsConfig *tls.Config
	if i.def.Server.TLSEnabled() {
		cfg, err := buildTLSConfig(i.def.Server.Cert, i.def.Server.Key)
		if err != nil {
			i.setState(StateFailed, err)
			return err
		}
		tlsConfig = cfg
	}

	addr := net.JoinHostPort(i.host, strconv.Itoa(i.port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		if isAddrInUse(err) {
			err = fmt.Errorf("%w: %s: %v", ErrAddressInUse, addr, err)
		} else {
			err = fmt.Errorf("listen %s: %w", addr, err)
		}
		i.setState(StateFailed, err)
		return err
	}

	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		i.mu.Lock()
		i.port = tcp.Port
		i.mu.Unlock()
	}
	if n := i.def.Server.MaxConnections; n > 0 {
		ln = netutil.LimitListener(ln, n)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	serveCtx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           i,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return serveCtx },
		ErrorLog:          slog.NewLogLogger(i.log.Handler(), slog.LevelDebug),
	}
	done := make(chan struct{})

	i.mu.Lock()
	i.srv, i.cancel, i.done = srv, cancel, done
	i.mu.Unlock()

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			i.log.Error("serve loop failed", "error", err)
			i.setState(StateFailed, err)
		}
	}()

	i.setState(StateRunning, nil)
	i.log.Info("service started", "port", i.Port(), "tls", tlsConfig != nil, "endpoints", len(i.endpoints))
	return nil
}

// Stop shuts the listener down, cancels in-flight requests and waits for
// the serve loop to exit, so the port is free when Stop returns. Stopping
// an instance that is not running is a no-op.
func (i *Instance) Stop(ctx context.Context) error {
	i.lifeMu.Lock()
	defer i.lifeMu.Unlock()

	i.mu.RLock()
	st, srv, cancel, done := i.state, i.srv, i.cancel, i.done
	i.mu.RUnlock()

	if srv == nil {
		if st == StateFailed {
			i.setState(StateStopped, nil)
		}
		return nil
	}
	if st != StateFailed {
		i.setState(StateStopping, nil)
	}

	if _, ok := ctx.Deadline(); !ok {
		var c context.CancelFunc
		ctx, c = context.WithTimeout(ctx, DefaultShutdownTimeout)
		defer c()
	}

	// Cancelling first interrupts handlers parked in latency injection.
	cancel()
	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown: %w", err))
		if err := srv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
	}
	<-done

	i.mu.Lock()
	i.srv, i.cancel, i.done = nil, nil, nil
	i.state = StateStopped
	i.err = nil
	i.mu.Unlock()

	i.log.Info("service stopped")
	return errors.Join(errs...)
}
