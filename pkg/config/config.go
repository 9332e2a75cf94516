package config

import (
	"net"
	"strconv"
	"time"

	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/ports"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Defaults.
const (
	DefaultServicesDir   = "services"
	DefaultHost          = "0.0.0.0"
	DefaultDBPath        = "mockfleet.db"
	DefaultAdminHost     = "127.0.0.1"
	DefaultAdminPort     = 9999
	DefaultDebounceMS    = 300
	DefaultLogBufferSize = 1000
	DefaultRedisAddr     = "localhost:6379"
)

// Config is the process configuration.
type Config struct {
	// Enabled switches the simulator on. A disabled process loads and
	// validates nothing and starts no services.
	Enabled bool `yaml:"enabled"`

	ServicesDir    string                     `yaml:"services_dir"`
	Host           string                     `yaml:"host"`
	PortRange      ports.Range                `yaml:"port_range"`
	DBPath         string                     `yaml:"db_path"`
	Storage        StorageConfig              `yaml:"storage"`
	GlobalBehavior *definition.BehaviorConfig `yaml:"global_behavior,omitempty"`
	Admin          AdminConfig                `yaml:"admin"`
	Watch          WatchConfig                `yaml:"watch"`
	LogBufferSize  int                        `yaml:"log_buffer_size"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	RedisAddr   string `yaml:"redis_addr,omitempty"`
	RedisPrefix string `yaml:"redis_prefix,omitempty"`
}

// AdminConfig configures the admin server. The token is deliberately not
// part of the file format; it comes from MOCKFLEET_ADMIN_TOKEN only.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port.
func (a AdminConfig) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// WatchConfig configures hot reload.
type WatchConfig struct {
	Enabled        bool `yaml:"enabled"`
	DebounceMS     int  `yaml:"debounce_ms"`
	PollIntervalMS int  `yaml:"poll_interval_ms"`
}

// Debounce returns the quiet period as a duration.
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// PollInterval returns the polling interval; zero selects fsnotify.
func (w WatchConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMS) * time.Millisecond
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Enabled:     true,
		ServicesDir: DefaultServicesDir,
		Host:        DefaultHost,
		PortRange:   ports.Range{Start: 8000, End: 8999},
		DBPath:      DefaultDBPath,
		Storage: StorageConfig{
			Driver:    DriverSQLite,
			RedisAddr: DefaultRedisAddr,
		},
		Admin: AdminConfig{
			Enabled: true,
			Host:    DefaultAdminHost,
			Port:    DefaultAdminPort,
		},
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMS: DefaultDebounceMS,
		},
		LogBufferSize: DefaultLogBufferSize,
	}
}
