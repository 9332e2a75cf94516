package service

import (
	"errors"
	"fmt"
)

var (
	// ErrAddressInUse is returned by Start when the OS refuses the bind
	// because another process holds the address.
	ErrAddressInUse = errors.New("address in use")
	// ErrTLSConfig is returned by Start when the certificate or key cannot be used.
	ErrTLSConfig = errors.New("tls configuration error")
	// ErrInvalidDefinition is returned when a definition cannot be compiled.
	ErrInvalidDefinition = errors.New("invalid definition")
	// ErrInvalidState is returned for a lifecycle call the current state
	// does not allow.
	ErrInvalidState = errors.New("invalid lifecycle state")
)

func invalidDefinition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
}
