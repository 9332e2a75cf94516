package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/logging"
	"github.com/getmockd/mockfleet/pkg/registry"
	"github.com/getmockd/mockfleet/pkg/requestlog"
	"github.com/getmockd/mockfleet/pkg/storage"
)

// DefaultAddr is where the admin server listens unless told otherwise.
const DefaultAddr = "127.0.0.1:9999"

// Registry is the part of the service registry the admin server uses.
type Registry interface {
	Logs(limit int) []*requestlog.Entry
	History(ctx context.Context, q storage.LogQuery) ([]*requestlog.Entry, error)
	ClearLogs(ctx context.Context) error
	SubscribeLogs() (<-chan *requestlog.Entry, func())
	Status() registry.Status
	SetScenario(name string, scenario *string) error
	StoredDefinition(ctx context.Context, name string) (*definition.ServiceDefinition, error)
}

// Server is the admin HTTP server.
type Server struct {
	reg      Registry
	token    string
	addr     string
	gatherer prometheus.Gatherer
	log      *slog.Logger
	handler  http.Handler

	mu        sync.Mutex
	srv       *http.Server
	ln        net.Listener
	cancel    context.CancelFunc
	startTime time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithToken sets the bearer token. The value is copied; changing the
// environment afterwards has no effect on a running server.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithGatherer exposes g on the metrics route.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates an admin server for reg.
func New(reg Registry, opts ...Option) *Server {
	s := &Server{
		reg:  reg,
		addr: DefaultAddr,
		log:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.Component(s.log, "admin")
	s.handler = s.routes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/health", s.handleHealth)
	r.Route("/mockfleet-admin", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/logs", s.handleLogs)
		r.Delete("/logs", s.handleClearLogs)
		r.Get("/logs/history", s.handleHistory)
		r.Get("/logs/stream", s.handleLogStream)
		r.Get("/services", s.handleServices)
		r.Put("/services/{name}/scenario", s.handleSetScenario)
		r.Get("/services/{name}/definition", s.handleStoredDefinition)
		r.Get("/metrics", s.handleMetrics)
	})
	return r
}

// accessLog writes one debug line per admin request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("admin server already running")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("admin listen %s: %w", s.addr, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.srv, s.ln, s.cancel = srv, ln, cancel
	s.startTime = time.Now()

	s.log.Info("admin server started", "addr", ln.Addr().String(), "auth", s.token != "")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("admin server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Uptime reports how long the server has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return 0
	}
	return time.Since(s.startTime)
}

// Stop shuts the server down and closes open log streams.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, cancel := s.srv, s.cancel
	s.srv, s.ln, s.cancel = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	cancel()
	if _, ok := ctx.Deadline(); !ok {
		var c context.CancelFunc
		ctx, c = context.WithTimeout(ctx, 5*time.Second)
		defer c()
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
		return err
	}
	s.log.Info("admin server stopped")
	return nil
}
