package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/logging"
	"github.com/getmockd/mockfleet/pkg/ports"
	"github.com/getmockd/mockfleet/pkg/requestlog"
	"github.com/getmockd/mockfleet/pkg/service"
	"github.com/getmockd/mockfleet/pkg/storage"
	"github.com/getmockd/mockfleet/pkg/template"
)

// Metrics is what the registry reports about itself and its services.
type Metrics interface {
	service.Recorder
	SetServicesRunning(n int)
	ObserveReconcile(err error)
}

// Config holds the registry settings.
type Config struct {
	PortRange ports.Range
	// Host is the interface services bind to; empty means all.
	Host string
}

// Registry manages named service instances. All methods are safe for
// concurrent use. Readers share mu; anything that registers, starts or
// stops a service holds it exclusively.
type Registry struct {
	cfg   Config
	alloc *ports.Allocator
	logs  *requestlog.Broadcaster

	storage        storage.Storage
	store          *definition.Store
	metrics        Metrics
	renderer       template.Renderer
	globalBehavior *definition.BehaviorConfig
	ringSize       int
	log            *slog.Logger
	baseLog        *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// entry is one registered definition. port is 0 while no port is reserved.
type entry struct {
	def      *definition.ServiceDefinition
	port     int
	explicit bool
	inst     *service.Instance
}

// Option configures a Registry.
type Option func(*Registry)

// WithStorage shares s with every instance.
func WithStorage(s storage.Storage) Option {
	return func(r *Registry) { r.storage = s }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics reports registry and request metrics to m.
func WithMetrics(m Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithRenderer shares one template renderer between instances.
func WithRenderer(tr template.Renderer) Option {
	return func(r *Registry) { r.renderer = tr }
}

// WithStore sets the definition store used by Start and Reload.
func WithStore(s *definition.Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithGlobalBehavior applies b to services without their own behavior.
func WithGlobalBehavior(b *definition.BehaviorConfig) Option {
	return func(r *Registry) { r.globalBehavior = b }
}

// WithRingSize sets the per-instance log ring capacity.
func WithRingSize(n int) Option {
	return func(r *Registry) { r.ringSize = n }
}

// New creates an empty registry.
func New(cfg Config, opts ...Option) (*Registry, error) {
	alloc, err := ports.NewAllocator(cfg.PortRange)
	if err != nil {
		return nil, fmt.Errorf("create registry: %w", err)
	}
	r := &Registry{
		cfg:      cfg,
		alloc:    alloc,
		logs:     requestlog.NewBroadcaster(),
		renderer: template.New(),
		log:      logging.Nop(),
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.baseLog = logging.OrNop(r.log)
	r.log = logging.Component(r.baseLog, "registry")
	return r, nil
}

// Register records def and reserves its port without starting it.
func (r *Registry) Register(def *definition.ServiceDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(def)
}

func (r *Registry) registerLocked(def *definition.ServiceDefinition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("register: %w", definition.ErrInvalidDefinition)
	}
	if _, ok := r.entries[def.Name]; ok {
		return fmt.Errorf("register %s: %w", def.Name, ErrAlreadyRegistered)
	}
	port, err := r.alloc.Reserve(def.Name, def.Server.Port)
	if err != nil {
		return fmt.Errorf("register %s: %w", def.Name, err)
	}
	r.entries[def.Name] = &entry{def: def, port: port, explicit: def.Server.Port != 0}
	r.log.Debug("service registered", "service", def.Name, "port", port)
	return nil
}

// StartService starts a registered service.
func (r *Registry) StartService(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("start %s: %w", name, ErrNotFound)
	}
	if err := r.startLocked(ctx, e); err != nil {
		return err
	}
	r.reportRunning()
	return nil
}

func (r *Registry) startLocked(ctx context.Context, e *entry) error {
	name := e.def.Name
	if e.inst != nil && e.inst.State() == service.StateRunning {
		return fmt.Errorf("start %s: %w", name, ErrAlreadyRunning)
	}
	if e.inst != nil {
		// A failed instance still owns its server; shut it down before replacing it.
		if err := e.inst.Stop(ctx); err != nil {
			r.log.Warn("stopping failed instance", "service", name, "error", err)
		}
		e.inst = nil
	}
	if e.port == 0 {
		port, err := r.alloc.Reserve(name, e.def.Server.Port)
		if err != nil {
			return fmt.Errorf("start %s: %w", name, err)
		}
		e.port = port
	}

	attempts := 1
	if !e.explicit {
		attempts = r.alloc.Range().Size()
	}
	for attempt := 0; ; attempt++ {
		inst, err := service.New(e.def, e.port, r.instanceOptions()...)
		if err != nil {
			return fmt.Errorf("start %s: %w", name, err)
		}
		err = inst.Start(ctx)
		if err == nil {
			e.inst = inst
			r.log.Info("service running", "service", name, "port", inst.Port(), "id", inst.ID())
			return nil
		}
		if e.explicit || !errors.Is(err, service.ErrAddressInUse) || attempt+1 >= attempts {
			return fmt.Errorf("start %s: %w", name, err)
		}

		// Another process holds the port; move on to the next free one.
		r.log.Warn("allocated port taken, retrying", "service", name, "port", e.port)
		prev := e.port
		r.alloc.Release(prev)
		e.port = 0
		next, rerr := r.alloc.ReserveAfter(name, prev)
		if errors.Is(rerr, ports.ErrNoPortAvailable) {
			// Ran off the end of the range; wrap around to the lowest free port.
			next, rerr = r.alloc.Reserve(name, 0)
		}
		if rerr != nil {
			return fmt.Errorf("start %s: %w", name, rerr)
		}
		e.port = next
	}
}

func (r *Registry) instanceOptions() []service.Option {
	opts := []service.Option{
		service.WithHost(r.cfg.Host),
		service.WithRenderer(r.renderer),
		service.WithLogSink(r.logs),
		service.WithLogger(r.baseLog),
		service.WithGlobalBehavior(r.globalBehavior),
	}
	if r.storage != nil {
		opts = append(opts, service.WithStorage(r.storage))
	}
	if r.metrics != nil {
		opts = append(opts, service.WithMetrics(r.metrics))
	}
	if r.ringSize > 0 {
		opts = append(opts, service.WithRingSize(r.ringSize))
	}
	return opts
}

// StopService stops a service and releases its port. Stopping a stopped
// service is a no-op.
func (r *Registry) StopService(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("stop %s: %w", name, ErrNotFound)
	}
	err := r.stopLocked(ctx, e)
	r.reportRunning()
	return err
}

func (r *Registry) stopLocked(ctx context.Context, e *entry) error {
	var err error
	if e.inst != nil {
		err = e.inst.Stop(ctx)
		e.inst = nil
	}
	if e.port != 0 {
		r.alloc.Release(e.port)
		e.port = 0
	}
	if err != nil {
		return fmt.Errorf("stop %s: %w", e.def.Name, err)
	}
	return nil
}

// Unregister stops a service and forgets its definition.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("unregister %s: %w", name, ErrNotFound)
	}
	err := r.stopLocked(ctx, e)
	delete(r.entries, name)
	r.reportRunning()
	return err
}

// Get returns the running instance for name.
func (r *Registry) Get(name string) (*service.Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok || e.inst == nil {
		return nil, false
	}
	return e.inst, true
}

// Definition returns the registered definition for name.
func (r *Registry) Definition(name string) (*definition.ServiceDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.def, true
}

// SetScenario changes the active scenario of a running service.
func (r *Registry) SetScenario(name string, scenario *string) error {
	inst, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("set scenario on %s: %w", name, ErrNotFound)
	}
	inst.SetScenario(scenario)
	return nil
}

// SubscribeLogs streams the entries of every service. Call cancel when done.
func (r *Registry) SubscribeLogs() (<-chan *requestlog.Entry, func()) {
	return r.logs.Subscribe()
}

// Logs returns up to limit recent entries per running service, oldest first.
func (r *Registry) Logs(limit int) []*requestlog.Entry {
	r.mu.RLock()
	var all []*requestlog.Entry
	for _, e := range r.entries {
		if e.inst != nil {
			all = append(all, e.inst.Logs(requestlog.Filter{Limit: limit})...)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all
}

// History queries persisted log entries, which outlive restarts.
func (r *Registry) History(ctx context.Context, q storage.LogQuery) ([]*requestlog.Entry, error) {
	if r.storage == nil {
		return []*requestlog.Entry{}, nil
	}
	return r.storage.QueryLogs(ctx, q)
}

// ClearLogs empties every ring and the persisted log.
func (r *Registry) ClearLogs(ctx context.Context) error {
	r.mu.RLock()
	for _, e := range r.entries {
		if e.inst != nil {
			e.inst.ClearLogs()
		}
	}
	r.mu.RUnlock()

	if r.storage == nil {
		return nil
	}
	return r.storage.ClearLogs(ctx)
}

// StoredDefinition returns the copy of a service kept in storage, which
// includes endpoints recorded from unmatched traffic.
func (r *Registry) StoredDefinition(ctx context.Context, name string) (*definition.ServiceDefinition, error) {
	if r.storage == nil {
		return nil, fmt.Errorf("stored definition %s: %w", name, storage.ErrNotFound)
	}
	return r.storage.LoadService(ctx, name)
}

// Stop stops every service in parallel and empties the registry.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range r.entries {
		if e.inst == nil {
			continue
		}
		inst := e.inst
		g.Go(func() error {
			if err := inst.Stop(context.WithoutCancel(gctx)); err != nil {
				return fmt.Errorf("stop %s: %w", inst.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	for name, e := range r.entries {
		e.inst = nil
		if e.port != 0 {
			r.alloc.Release(e.port)
		}
		delete(r.entries, name)
	}
	r.reportRunning()
	r.log.Info("registry stopped")
	return err
}

// reportRunning updates the running gauge. Callers hold mu.
func (r *Registry) reportRunning() {
	if r.metrics == nil {
		return
	}
	n := 0
	for _, e := range r.entries {
		if e.inst != nil {
			n++
		}
	}
	r.metrics.SetServicesRunning(n)
}

// ServiceStatus describes one registered service.
type ServiceStatus struct {
	Name      string        `json:"name"`
	ID        string        `json:"id,omitempty"`
	State     service.State `json:"state"`
	Port      int           `json:"port,omitempty"`
	URL       string        `json:"url,omitempty"`
	Endpoints int           `json:"endpoints"`
	Scenario  *string       `json:"scenario"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Source    string        `json:"source,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Status summarises the registry.
type Status struct {
	ServicesCount  int             `json:"services_count"`
	ActiveServices []ServiceStatus `json:"active_services"`
}

// Status returns every registered service, sorted by name.
func (r *Registry) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Status{ServicesCount: len(r.entries), ActiveServices: []ServiceStatus{}}
	for name, e := range r.entries {
		s := ServiceStatus{
			Name:      name,
			State:     service.StateStopped,
			Port:      e.port,
			Endpoints: len(e.def.Endpoints),
			Source:    e.def.SourcePath,
		}
		if inst := e.inst; inst != nil {
			started := inst.StartedAt()
			s.ID = inst.ID()
			s.State = inst.State()
			s.Port = inst.Port()
			s.URL = inst.URL()
			s.Scenario = inst.Scenario()
			s.StartedAt = &started
			if err := inst.Err(); err != nil {
				s.Error = err.Error()
			}
		}
		st.ActiveServices = append(st.ActiveServices, s)
	}
	sort.Slice(st.ActiveServices, func(i, j int) bool {
		return st.ActiveServices[i].Name < st.ActiveServices[j].Name
	})
	return st
}
