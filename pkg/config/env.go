package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Environment variables read by ApplyEnv.
const (
	EnvEnabled     = "MOCKFLEET_ENABLED"
	EnvServicesDir = "MOCKFLEET_SERVICES_DIR"
	EnvDBPath      = "MOCKFLEET_DB_PATH"
	EnvAdminPort   = "MOCKFLEET_ADMIN_PORT"

	// EnvAdminToken is read once by the command that builds the admin
	// server, never by this package.
	EnvAdminToken = "MOCKFLEET_ADMIN_TOKEN"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays MOCKFLEET_* variables onto cfg.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if v, ok := lookup(EnvEnabled); ok {
		cfg.Enabled = ParseBool(v)
	}
	if v, ok := lookup(EnvServicesDir); ok && v != "" {
		cfg.ServicesDir = v
	}
	if v, ok := lookup(EnvDBPath); ok && v != "" {
		cfg.DBPath = v
	}
	if v, ok := lookup(EnvAdminPort); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %q is not a port number", EnvAdminPort, v)
		}
		cfg.Admin.Port = port
	}
	return nil
}

// ParseBool accepts true, 1, yes and on in any case. Everything else is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
