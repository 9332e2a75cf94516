package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/getmockd/mockfleet/pkg/admin"
	"github.com/getmockd/mockfleet/pkg/config"
	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/logging"
	"github.com/getmockd/mockfleet/pkg/metrics"
	"github.com/getmockd/mockfleet/pkg/ports"
	"github.com/getmockd/mockfleet/pkg/registry"
	"github.com/getmockd/mockfleet/pkg/storage"
	"github.com/getmockd/mockfleet/pkg/storage/redisstore"
	"github.com/getmockd/mockfleet/pkg/storage/sqlite"
	"github.com/getmockd/mockfleet/pkg/template"
	"github.com/getmockd/mockfleet/pkg/watcher"
)

const shutdownTimeout = 10 * time.Second

type startFlags struct {
	configPath  string
	servicesDir string
	host        string
	portRange   string
	adminPort   int
	noAdmin     bool
	watch       bool
	dbPath      string
	storage     string
	logLevel    string
	logFormat   string
	logFile     string
}

func newStartCommand() *cobra.Command {
	var f startFlags
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start every service in the services directory",
		Long: `Start every service defined in the services directory, serve the admin
API and reload services when their files change. Runs until interrupted.

The admin API requires MOCKFLEET_ADMIN_TOKEN; without it every admin
request is rejected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, &f)
			if err != nil {
				return err
			}
			logger, closeLog, err := buildLogger(cmd.ErrOrStderr(), &f)
			if err != nil {
				return err
			}
			defer closeLog()

			if !cfg.Enabled {
				logger.Info("simulator disabled, nothing to start", "env", config.EnvEnabled)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, os.Getenv(config.EnvAdminToken), logger)
			if err != nil {
				return err
			}
			return a.run(ctx)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "config file (YAML)")
	fl.StringVar(&f.servicesDir, "services-dir", config.DefaultServicesDir, "directory of service definitions")
	fl.StringVar(&f.host, "host", config.DefaultHost, "interface services listen on")
	fl.StringVar(&f.portRange, "port-range", "8000-8999", "ports handed to services without an explicit port")
	fl.IntVar(&f.adminPort, "admin-port", config.DefaultAdminPort, "admin API port")
	fl.BoolVar(&f.noAdmin, "no-admin", false, "do not start the admin API")
	fl.BoolVar(&f.watch, "watch", true, "reload services when definition files change")
	fl.StringVar(&f.dbPath, "db", config.DefaultDBPath, "SQLite database path")
	fl.StringVar(&f.storage, "storage", config.DriverSQLite, "storage driver: sqlite, memory or redis")
	fl.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fl.StringVar(&f.logFormat, "log-format", "text", "log format: text or json")
	fl.StringVar(&f.logFile, "log-file", "", "also write JSON logs to this file")
	return cmd
}

// resolveConfig layers file, environment and explicitly set flags.
func resolveConfig(cmd *cobra.Command, f *startFlags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("services-dir") {
		cfg.ServicesDir = f.servicesDir
	}
	if changed("host") {
		cfg.Host = f.host
	}
	if changed("port-range") {
		r, err := ports.ParseRange(f.portRange)
		if err != nil {
			return nil, err
		}
		cfg.PortRange = r
	}
	if changed("admin-port") {
		cfg.Admin.Port = f.adminPort
	}
	if changed("no-admin") {
		cfg.Admin.Enabled = !f.noAdmin
	}
	if changed("watch") {
		cfg.Watch.Enabled = f.watch
	}
	if changed("db") {
		cfg.DBPath = f.dbPath
	}
	if changed("storage") {
		cfg.Storage.Driver = f.storage
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func buildLogger(stderr io.Writer, f *startFlags) (*slog.Logger, func(), error) {
	lc := logging.Config{
		Level:  logging.ParseLevel(f.logLevel),
		Format: logging.ParseFormat(f.logFormat),
		Output: stderr,
	}
	closeFn := func() {}
	if f.logFile != "" {
		file, err := logging.OpenFile(f.logFile)
		if err != nil {
			return nil, nil, err
		}
		lc.File = file
		closeFn = func() { _ = file.Close() }
	}
	return logging.New(lc), closeFn, nil
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return storage.NewMemory(), nil
	case config.DriverRedis:
		return redisstore.Open(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisPrefix)
	default:
		return sqlite.Open(cfg.DBPath)
	}
}

// app is one running mockfleet process.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	store   storage.Storage
	reg     *registry.Registry
	admin   *admin.Server
	watcher *watcher.Watcher
}

// newApp builds and starts the registry and admin server. Services that
// fail to start are logged; the rest keep running.
func newApp(ctx context.Context, cfg *config.Config, token string, logger *slog.Logger) (*app, error) {
	m := metrics.New(metrics.NewRegistry())

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}

	defs := definition.NewStore(cfg.ServicesDir, definition.WithLogger(logger))
	reg, err := registry.New(
		registry.Config{PortRange: cfg.PortRange, Host: cfg.Host},
		registry.WithStorage(store),
		registry.WithLogger(logger),
		registry.WithMetrics(m),
		registry.WithRenderer(template.New()),
		registry.WithStore(defs),
		registry.WithGlobalBehavior(cfg.GlobalBehavior),
		registry.WithRingSize(cfg.LogBufferSize),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: logger, store: store, reg: reg}

	if err := reg.Start(ctx); err != nil {
		var rerr *registry.ReconcileError
		if !errors.As(err, &rerr) {
			_ = store.Close()
			return nil, err
		}
		for _, se := range rerr.Errors {
			logger.Warn("service not started", "service", se.Name, "error", se.Err)
		}
	}

	if cfg.Admin.Enabled {
		if token == "" {
			logger.Warn("admin token not set, every admin request will be rejected", "env", config.EnvAdminToken)
		}
		a.admin = admin.New(reg,
			admin.WithToken(token),
			admin.WithAddr(cfg.Admin.Addr()),
			admin.WithLogger(logger),
			admin.WithGatherer(m.Gatherer()),
		)
		if err := a.admin.Start(); err != nil {
			a.shutdown()
			return nil, err
		}
	}

	if cfg.Watch.Enabled {
		a.watcher = watcher.New(cfg.ServicesDir,
			func(ctx context.Context) error {
				_, err := reg.Reload(ctx)
				return err
			},
			watcher.WithDebounce(cfg.Watch.Debounce()),
			watcher.WithPollInterval(cfg.Watch.PollInterval()),
			watcher.WithStore(defs),
			watcher.WithLogger(logger),
		)
	}
	return a, nil
}

// run blocks until ctx is done, then shuts everything down.
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if a.watcher != nil {
		g.Go(func() error {
			if err := a.watcher.Run(gctx); err != nil {
				a.log.Error("hot reload disabled", "error", err)
			}
			return nil
		})
	}

	st := a.reg.Status()
	a.log.Info("mockfleet running", "services", st.ServicesCount, "admin", a.adminAddr())
	<-ctx.Done()
	a.log.Info("shutting down")

	err := errors.Join(g.Wait(), a.shutdown())
	return err
}

func (a *app) adminAddr() string {
	if a.admin == nil {
		return ""
	}
	return a.admin.Addr()
}

func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if a.admin != nil {
		errs = append(errs, a.admin.Stop(ctx))
	}
	errs = append(errs, a.reg.Stop(ctx), a.store.Close())
	return errors.Join(errs...)
}
