// Package registry owns the set of running mock services.
//
// A Registry holds the port allocator, one entry per registered definition
// and the broadcaster every instance publishes its request log to.
// Reconcile converges the running set to a list of definitions: new names
// are started, missing names are stopped, changed definitions are
// restarted and identical ones are left alone. A failure of one service
// never stops the others from being processed; failures are returned
// together as a *ReconcileError.
package registry
