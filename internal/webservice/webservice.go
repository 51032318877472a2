// Package webservice provides the HTTP server of the grievance dashboard.
package webservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/openaviation/grievance-insights/internal/webservice/handlers"
	"github.com/openaviation/grievance-insights/internal/webservice/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is a struct that holds the HTTP server and its configuration.
type Server struct {
	httpServer *http.Server

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context lets in-flight requests finish before stopping.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc

	addr net.Addr
	mu   sync.RWMutex

	log *slog.Logger
}

// StaticConfig holds the static configuration for the server.
type StaticConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxHeaderBytes int

	// RefreshInterval is how often the dashboard page reloads itself. Zero disables it.
	RefreshInterval time.Duration

	ListenHost string
	ListenPort int
}

type options struct {
	logger *slog.Logger
}

// Options represents an optional function to override Server default values.
type Options func(*options)

// WithLogger sets the logger used by the server and its handlers.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New creates the dashboard server on top of dash.
//
// Endpoint metrics are registered on reg and served with the Go runtime metrics on /metrics.
func New(ctx context.Context, dash handlers.Dashboard, reg *prometheus.Registry, sc StaticConfig, args ...Options) (*Server, error) {
	if dash == nil {
		return nil, errors.New("dashboard is required")
	}

	opts := options{logger: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}

	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	s := Server{
		ctx:    ctx,
		cancel: cancel,

		gracefulCtx:    gCtx,
		gracefulCancel: gCancel,

		log: opts.logger,
	}

	h := handlers.New(dash, opts.logger, handlers.WithRefreshInterval(sc.RefreshInterval))
	mw := metrics.NewEndpointMiddleware(reg)

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", mw.Wrap("page", http.HandlerFunc(h.Page)))
	mux.Handle("GET /api/dashboard", mw.Wrap("api_dashboard", http.HandlerFunc(h.API)))
	mux.Handle("GET /api/airlines", mw.Wrap("api_airlines", http.HandlerFunc(h.Airlines)))
	mux.Handle("GET /api/date-range", mw.Wrap("api_date_range", http.HandlerFunc(h.DateRange)))
	mux.Handle("GET /export/csv", mw.Wrap("export_csv", http.HandlerFunc(h.ExportCSV)))
	mux.Handle("GET /export/report", mw.Wrap("export_report", http.HandlerFunc(h.ExportReport)))
	mux.Handle("GET /version", mw.Wrap("version", http.HandlerFunc(handlers.VersionHandler)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:           net.JoinHostPort(sc.ListenHost, strconv.Itoa(sc.ListenPort)),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		Handler:        handlers.WithRequestID(http.TimeoutHandler(mux, sc.RequestTimeout, "Request timed out")),
		MaxHeaderBytes: sc.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return ctx },
	}

	return &s, nil
}

// Run starts the HTTP server and listens for incoming requests.
func (s *Server) Run() error {
	s.log.Info("Starting server", "addr", s.httpServer.Addr)

	// already asked to quit?
	select {
	case <-s.gracefulCtx.Done():
		return errors.New("server is already shutting down")
	default:
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen on %s: %v", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.addr = listener.Addr()
	s.mu.Unlock()

	serverErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-s.gracefulCtx.Done():
		s.log.Info("Graceful shutdown initiated")
		// Use the parent ctx so that a forced quit unblocks Shutdown immediately.
		if err := s.httpServer.Shutdown(s.ctx); err != nil {
			s.log.Error("Graceful shutdown failed", "err", err)
			return err
		}
		s.log.Info("Server shut down gracefully")
		s.cancel()
		return nil

	case err := <-serverErr:
		s.cancel()
		if err != nil {
			s.log.Error("Server encountered error", "err", err)
			return err
		}
		return nil
	}
}

// Quit shuts down the HTTP server, gracefully unless force is set.
//
// A graceful quit lets Run drain the in-flight requests.
func (s *Server) Quit(force bool) {
	if force {
		s.httpServer.Close()
		s.cancel()
	} else {
		s.gracefulCancel()
	}
	s.log.Info("Server quit")
}

// Addr returns the address the server listens on, or an empty string before Run.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}
