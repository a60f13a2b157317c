// Package server wires the jitserve request handler, static fallback and
// live-reload hub into an HTTP server.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/conneroisu/jitserve/internal/cache"
	"github.com/conneroisu/jitserve/internal/config"
	"github.com/conneroisu/jitserve/internal/container"
	"github.com/conneroisu/jitserve/internal/errors"
	"github.com/conneroisu/jitserve/internal/logging"
	"github.com/conneroisu/jitserve/internal/metrics"
	"github.com/conneroisu/jitserve/internal/specifier"
	"github.com/conneroisu/jitserve/internal/transform"
	"github.com/conneroisu/jitserve/internal/version"
	"github.com/conneroisu/jitserve/internal/watcher"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

// Reserved routes.
const (
	SocketPath  = "/_jitserve/ws"
	MetricsPath = "/_jitserve/metrics"
	HealthPath  = "/_jitserve/health"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Config *config.Config
	Logger logging.Logger
	// OnError receives every pipeline error. Defaults to errors.ErrorHandler.
	OnError ErrorSink
	// OnChange receives every aggregated change set after live-reload clients.
	OnChange watcher.ChangeSink
	// Container replaces the default plugin container for module transforms.
	Container container.Container
	// Factory replaces the default request-scoped container factory.
	Factory container.Factory
	Metrics *metrics.Metrics
}

// Server is the jitserve development server.
type Server struct {
	config     *config.Config
	logger     logging.Logger
	store      *cache.Store
	container  container.Container
	pipelines  *transform.Pipelines
	middleware *Middleware
	static     *Static
	hub        *Hub
	watcher    *watcher.FileWatcher
	metrics    *metrics.Metrics
	errors     *errors.ErrorCollector
	onChange   watcher.ChangeSink

	httpServer *http.Server
	ready      chan struct{}
	addr       string
	startTime  time.Time

	shutdownOnce sync.Once
	shutdownErr  error
}

// New assembles a server from options. Nothing is started.
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
		m.RegisterRuntime()
	}

	s := &Server{
		config:    cfg,
		logger:    logger.WithComponent("server"),
		metrics:   m,
		errors:    errors.NewErrorCollector(50),
		onChange:  opts.OnChange,
		ready:     make(chan struct{}),
		startTime: time.Now(),
	}

	s.store = cache.NewStore(cfg.Out, cache.WithMirrorErrorHandler(func(id string, err error) {
		s.logger.Warn(context.Background(), err, "Failed to mirror cache entry", "module", id, "out", cfg.Out)
	}))
	m.RegisterCache(func() metrics.CacheStats {
		stats := s.store.Stats()
		return metrics.CacheStats{
			Entries:       stats.Entries,
			Hits:          stats.Hits,
			Misses:        stats.Misses,
			Invalidations: stats.Invalidations,
			MirrorErrors:  stats.MirrorErrors,
		}
	})

	containerOpts := container.Options{
		Root:             cfg.Root,
		RuntimeSpecifier: specifier.RuntimeSpecifier,
		Sourcemap:        cfg.Sourcemap,
		Mode:             "development",
		Emitter:          s.store,
		Logger:           logger,
	}
	s.container = opts.Container
	if s.container == nil {
		s.container = container.Default(containerOpts)
	}
	factory := opts.Factory
	if factory == nil {
		factory = container.DefaultFactory(containerOpts)
	}

	s.pipelines = transform.New(transform.Config{
		Store:     s.store,
		Container: s.container,
		Factory:   factory,
		Aliases:   cfg.Aliases,
		Client: transform.ClientConfig{
			LiveReload: cfg.Server.LiveReload,
			SocketPath: SocketPath,
		},
	})

	onError := opts.OnError
	if onError == nil {
		onError = errors.NewErrorHandler(logger).Handle
	}
	s.middleware = NewMiddleware(MiddlewareConfig{
		Root:      cfg.Root,
		Pipelines: s.pipelines,
		OnError:   s.errors.Sink(onError),
		Logger:    logger,
		Metrics:   m,
		Profile:   cfg.Profile,
	})

	clientPath := ""
	if cfg.Server.LiveReload {
		clientPath = specifier.RuntimeClientPath
	}
	s.static = NewStatic(cfg.Root, clientPath, logger)
	s.hub = NewHub(HubConfig{Logger: logger, Metrics: m})

	if cfg.Watch.Enabled {
		fw, err := watcher.NewFileWatcher(watcher.Config{
			Root:     cfg.Root,
			Manifest: cfg.ManifestPath(),
			Exclude:  []string{cfg.Out, cfg.DistPath()},
			Ignore:   cfg.Watch.Ignore,
			Debounce: cfg.Watch.Debounce,
		}, s.store, s.container, s.notify, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		s.watcher = fw
	}

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler returns the full route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	if s.config.Server.LiveReload {
		r.Get(SocketPath, s.hub.ServeHTTP)
	}
	r.Method(http.MethodGet, MetricsPath, s.metrics.Handler())
	r.Get(HealthPath, s.handleHealth)
	r.Handle("/*", s.middleware.Handler(s.static))

	return r
}

// Store returns the module cache.
func (s *Server) Store() *cache.Store {
	return s.store
}

// Hub returns the live-reload hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Watcher returns the file watcher, or nil when watching is disabled.
func (s *Server) Watcher() *watcher.FileWatcher {
	return s.watcher
}

// Errors returns the most recent pipeline errors.
func (s *Server) Errors() *errors.ErrorCollector {
	return s.errors
}

// Ready is closed once the server accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listening address. Valid after Ready is closed.
func (s *Server) Addr() string {
	return s.addr
}

// Run starts the container, the watcher and the HTTP listener, and blocks
// until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.container.BuildStart(ctx); err != nil {
		return fmt.Errorf("container build start: %w", err)
	}

	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start file watcher: %w", err)
		}
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		if s.watcher != nil {
			_ = s.watcher.Stop()
		}
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	s.addr = listener.Addr().String()
	close(s.ready)

	s.logger.Info(ctx, "Server listening",
		"addr", s.addr,
		"root", s.config.Root,
		"out", s.config.Out,
		"live_reload", s.config.Server.LiveReload)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops the watcher, disconnects live-reload clients, stops the
// listener and waits for pending mirror writes.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		if s.watcher != nil {
			if err := s.watcher.Stop(); err != nil {
				s.logger.Warn(ctx, err, "Failed to stop file watcher")
			}
		}

		s.hub.Close()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.shutdownErr = err
		}

		s.store.Wait()
	})
	return s.shutdownErr
}

// notify is the watcher's change sink.
func (s *Server) notify(changes watcher.ChangeSet) {
	s.logger.Debug(context.Background(), "Files changed",
		"count", len(changes.Changes),
		"duration_ms", changes.Duration.Milliseconds())

	s.hub.Notify(changes)
	if s.onChange != nil {
		s.onChange(changes)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// handleHealth returns the server health status for health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if s.errors.HasErrors() {
		status = "degraded"
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
		"version":   version.GetShortVersion(),
		"root":      s.config.Root,
		"out":       s.store.OutDir(),
		"cache":     s.store.Stats(),
		"checks": map[string]interface{}{
			"watcher":     map[string]interface{}{"enabled": s.watcher != nil},
			"live_reload": map[string]interface{}{"enabled": s.config.Server.LiveReload, "clients": s.hub.Count()},
			"errors":      map[string]interface{}{"recent": len(s.errors.GetErrors())},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode health response")
	}
}
