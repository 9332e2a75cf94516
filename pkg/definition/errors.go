package definition

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDefinition is matched by every ConfigError.
var ErrInvalidDefinition = errors.New("invalid service definition")

// ConfigError reports a malformed or invalid definition. Path is the source
// file (if known) and Field the offending field in dotted form.
type ConfigError struct {
	Path  string
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	msg := e.Err.Error()
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInvalidDefinition) hold for any ConfigError.
func (e *ConfigError) Is(target error) bool { return target == ErrInvalidDefinition }

func fieldErr(path, field, format string, args ...any) *ConfigError {
	return &ConfigError{Path: path, Field: field, Err: fmt.Errorf(format, args...)}
}

// LoadError reports a file that could not be turned into a definition.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	msg := e.Err.Error()
	if strings.HasPrefix(msg, e.Path+": ") {
		return msg
	}
	return e.Path + ": " + msg
}

func (e *LoadError) Unwrap() error { return e.Err }
