package config

import (
	"errors"
	"fmt"

	"github.com/getmockd/mockfleet/pkg/definition"
)

// ValidationError reports one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if err := c.PortRange.Validate(); err != nil {
		add("port_range", "%v", err)
	}
	if c.ServicesDir == "" {
		add("services_dir", "must not be empty")
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.DBPath == "" {
			add("db_path", "required for the sqlite driver")
		}
	case DriverMemory:
	case DriverRedis:
		if c.Storage.RedisAddr == "" {
			add("storage.redis_addr", "required for the redis driver")
		}
	default:
		add("storage.driver", "unknown driver %q (want sqlite, memory or redis)", c.Storage.Driver)
	}

	if c.Admin.Enabled && (c.Admin.Port < 0 || c.Admin.Port > 65535) {
		add("admin.port", "%d is out of range", c.Admin.Port)
	}
	if c.Watch.DebounceMS < 0 {
		add("watch.debounce_ms", "must not be negative")
	}
	if c.Watch.PollIntervalMS < 0 {
		add("watch.poll_interval_ms", "must not be negative")
	}
	if err := definition.ValidateBehavior(c.GlobalBehavior); err != nil {
		errs = append(errs, err)
	}
	if c.LogBufferSize < 0 {
		add("log_buffer_size", "must not be negative")
	}
	return errors.Join(errs...)
}
