package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned for an unknown or stopped service.
	ErrNotFound = errors.New("service not found")
	// ErrAlreadyRunning is returned by StartService for a running service.
	ErrAlreadyRunning = errors.New("service already running")
	// ErrAlreadyRegistered is returned by Register for a taken name.
	ErrAlreadyRegistered = errors.New("service already registered")
)

// ServiceError attributes a failure to one service. Name is the file path
// when the definition could not be loaded at all.
type ServiceError struct {
	Name string
	Err  error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ReconcileError collects the per-service failures of one pass.
type ReconcileError struct {
	Errors []*ServiceError
}

func (e *ReconcileError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, se := range e.Errors {
		msgs[i] = se.Error()
	}
	return fmt.Sprintf("%d service(s) failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *ReconcileError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, se := range e.Errors {
		errs[i] = se
	}
	return errs
}

// batch is the error form of a list of failures: nil when empty.
func batch(errs []*ServiceError) error {
	if len(errs) == 0 {
		return nil
	}
	return &ReconcileError{Errors: errs}
}
