package registry

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/service"
)

// Report lists what one reconciliation pass did, by service name.
type Report struct {
	Started   []string `json:"started"`
	Stopped   []string `json:"stopped"`
	Restarted []string `json:"restarted"`
	Unchanged []string `json:"unchanged"`
}

// Changed reports whether the pass started, stopped or restarted anything.
func (r Report) Changed() bool {
	return len(r.Started)+len(r.Stopped)+len(r.Restarted) > 0
}

// Reconcile converges the registry to defs. Services missing from defs are
// stopped and forgotten, new ones are registered and started, and services
// whose definition changed are stopped and started again from the new
// definition, which resets their scenario and state. Identical definitions
// are left running untouched. Failures are returned as a *ReconcileError
// after every service has been processed.
func (r *Registry) Reconcile(ctx context.Context, defs []*definition.ServiceDefinition) (Report, error) {
	r.mu.Lock()
	report, errs := r.reconcileLocked(ctx, defs, nil)
	r.mu.Unlock()

	err := batch(errs)
	r.observe(report, err)
	return report, err
}

// reconcileLocked does the work of Reconcile. Registered services whose
// source file is in keep are never stopped for being absent from defs.
func (r *Registry) reconcileLocked(ctx context.Context, defs []*definition.ServiceDefinition, keep map[string]bool) (Report, []*ServiceError) {
	var report Report
	var errs []*ServiceError
	fail := func(name string, err error) {
		errs = append(errs, &ServiceError{Name: name, Err: err})
	}

	desired := make(map[string]*definition.ServiceDefinition, len(defs))
	for _, def := range defs {
		if def == nil {
			continue
		}
		if _, dup := desired[def.Name]; dup {
			fail(def.Name, fmt.Errorf("duplicate service name in %s", def.SourcePath))
			continue
		}
		desired[def.Name] = def
	}

	// Removals first, so their ports are free for everything below.
	for _, name := range r.sortedNames() {
		e := r.entries[name]
		if _, ok := desired[name]; ok || keep[e.def.SourcePath] {
			continue
		}
		if err := r.stopLocked(ctx, e); err != nil {
			fail(name, err)
		}
		delete(r.entries, name)
		report.Stopped = append(report.Stopped, name)
	}

	// Changed services release their ports before any start, so two
	// services can trade ports in one pass.
	var pending []*definition.ServiceDefinition
	restarted := map[string]bool{}
	for _, name := range sortedKeys(desired) {
		def := desired[name]
		e, ok := r.entries[name]
		switch {
		case !ok:
			pending = append(pending, def)
		case definition.Equal(e.def, def) && !failed(e):
			report.Unchanged = append(report.Unchanged, name)
		default:
			if failed(e) {
				r.log.Info("restarting failed service", "service", name, "error", e.inst.Err())
			} else {
				r.log.Debug("definition changed", "service", name, "diff", definition.Diff(e.def, def))
			}
			if err := r.stopLocked(ctx, e); err != nil {
				fail(name, err)
			}
			delete(r.entries, name)
			restarted[name] = true
			pending = append(pending, def)
		}
	}

	for _, def := range pending {
		if err := r.registerLocked(def); err != nil {
			fail(def.Name, err)
			continue
		}
		e := r.entries[def.Name]
		if err := r.startLocked(ctx, e); err != nil {
			// Forget it so the next pass retries from scratch.
			_ = r.stopLocked(ctx, e)
			delete(r.entries, def.Name)
			fail(def.Name, err)
			continue
		}
		if restarted[def.Name] {
			report.Restarted = append(report.Restarted, def.Name)
		} else {
			report.Started = append(report.Started, def.Name)
		}
	}
	return report, errs
}

// failed reports whether e's instance died after starting.
func failed(e *entry) bool {
	return e.inst != nil && e.inst.State() == service.StateFailed
}

// Start loads the definition store and reconciles against it. Files that
// fail to load are reported; a service already running from such a file
// keeps running on its previous definition.
func (r *Registry) Start(ctx context.Context) error {
	_, err := r.Reload(ctx)
	return err
}

// Reload is Start returning the report; the watcher calls it on changes.
func (r *Registry) Reload(ctx context.Context) (Report, error) {
	if r.store == nil {
		return Report{}, fmt.Errorf("reload: no definition store configured")
	}
	res, err := r.store.Load()
	if err != nil {
		return Report{}, fmt.Errorf("reload: %w", err)
	}

	keep := make(map[string]bool, len(res.Errors))
	for _, path := range res.FailedPaths() {
		keep[path] = true
	}
	var errs []*ServiceError
	for _, le := range res.Errors {
		errs = append(errs, &ServiceError{Name: le.Path, Err: le.Err})
	}

	r.mu.Lock()
	report, rerrs := r.reconcileLocked(ctx, res.Definitions, keep)
	r.mu.Unlock()

	errs = append(errs, rerrs...)
	err = batch(errs)
	r.observe(report, err)
	return report, err
}

func (r *Registry) observe(report Report, err error) {
	if r.metrics != nil {
		r.metrics.ObserveReconcile(err)
		r.mu.RLock()
		r.reportRunning()
		r.mu.RUnlock()
	}
	attrs := []any{
		"started", len(report.Started),
		"stopped", len(report.Stopped),
		"restarted", len(report.Restarted),
		"unchanged", len(report.Unchanged),
	}
	if err != nil {
		r.log.Warn("reconciled with errors", append(attrs, "error", err)...)
		return
	}
	if report.Changed() {
		r.log.Info("reconciled", attrs...)
	}
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func sortedKeys(m map[string]*definition.ServiceDefinition) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
