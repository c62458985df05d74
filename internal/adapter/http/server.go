package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/ports"
)

// Server represents the HTTP server
type Server struct {
	server *http.Server
	logger logger.Logger
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Addr                string
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	AllowedOrigins      []string
	AllowCredentials    bool
	AllowUserHeader     bool
	CorrelationIDHeader string
	EnableRequestLog    bool
}

// Options carries the optional collaborators of the router
type Options struct {
	Tokens   TokenValidator
	Limiter  ports.Limiter
	Registry *prometheus.Registry
	Health   func(ctx context.Context) error
	Logger   logger.Logger
}

// NewRouter builds the API router wrapped in the outer middleware chain.
func NewRouter(cfg ServerConfig, services Services, opts Options) (http.Handler, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewDiscard()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	metrics, err := newHTTPMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register http metrics: %w", err)
	}

	router := mux.NewRouter()
	router.Use(loggingMiddleware(log, metrics, cfg.EnableRequestLog))
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "Route not found")
	})

	router.HandleFunc("/health", healthHandler(opts.Health)).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(authMiddleware(opts.Tokens, cfg.AllowUserHeader, log))

	NewContractHandler(services.Contracts, services.Permissions, services.Stages).RegisterRoutes(api)
	NewCollaboratorHandler(services.Collaborators).RegisterRoutes(api)
	NewDraftHandler(services.Drafts, opts.Limiter, log).RegisterRoutes(api)
	NewVersionHandler(services.Versions).RegisterRoutes(api)
	NewAuditHandler(services.Audit).RegisterRoutes(api)

	var handler http.Handler = router
	handler = corsMiddleware(cfg.AllowedOrigins, cfg.AllowCredentials)(handler)
	handler = correlationMiddleware(cfg.CorrelationIDHeader)(handler)
	handler = recoveryMiddleware(log)(handler)
	return handler, nil
}

// NewServer creates a new HTTP server
func NewServer(cfg ServerConfig, services Services, opts Options) (*Server, error) {
	handler, err := NewRouter(cfg, services, opts)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewDiscard()
	}

	return &Server{
		logger: log,
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}, nil
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "Starting HTTP server", map[string]interface{}{"addr": s.server.Addr})
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "Shutting down HTTP server", nil)
	return s.server.Shutdown(ctx)
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, "UNHEALTHY", "Service unavailable")
				return
			}
		}
		writeSuccess(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
	}
}
