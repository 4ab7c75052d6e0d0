// Package adminapi exposes the small operational HTTP surface operators and
// test harnesses use to inspect and drive a running proxy: recorder reads,
// CA status/import, and on-demand flow debug execution. It is not the
// visual editor; it carries none of that tool's persistence or rendering
// logic, only a thin read/invoke layer over the engine's own interfaces.
package adminapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/r3e-network/debugproxy/infrastructure/logging"
	"github.com/r3e-network/debugproxy/infrastructure/metrics"
	"github.com/r3e-network/debugproxy/infrastructure/middleware"
	"github.com/r3e-network/debugproxy/internal/ca"
	"github.com/r3e-network/debugproxy/internal/flow"
	"github.com/r3e-network/debugproxy/internal/recorder"
)

var errUnloadedCA = errors.New("root CA not loaded")

// Options configures the admin server's cross-cutting middleware.
type Options struct {
	CORSOrigins     []string
	RateLimitPerSec int

	// RequestTimeout bounds how long a single admin request may run before
	// the server answers 504 Gateway Timeout. <= 0 applies a conservative
	// default.
	RequestTimeout time.Duration
}

// Server wires the Recorder, CA authority, and Flow Engine into an HTTP
// router. It holds no state of its own beyond what those three already own.
type Server struct {
	rec     *recorder.Recorder
	ca      *ca.Authority
	flows   *flow.Engine
	metrics *metrics.Metrics
	log     *logging.Logger

	opts  Options
	ready bool
}

// New constructs a Server. metrics and log may be nil; a nil logger is
// replaced by logging.NewFromEnv("adminapi"), and a nil metrics disables the
// /metrics route and the metrics middleware.
func New(rec *recorder.Recorder, authority *ca.Authority, flows *flow.Engine, m *metrics.Metrics, log *logging.Logger, opts Options) *Server {
	if log == nil {
		log = logging.NewFromEnv("adminapi")
	}
	return &Server{rec: rec, ca: authority, flows: flows, metrics: m, log: log, opts: opts, ready: true}
}

// SetReady flips the readiness probe's answer. A new Server starts ready;
// cmd/proxyd clears it when shutdown begins.
func (s *Server) SetReady(ready bool) {
	s.ready = ready
}

// Router builds the mux.Router, middleware stack included. Call once at
// startup; the returned router is safe for concurrent use by net/http.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.LoggingMiddleware(s.log))
	router.Use(middleware.NewRecoveryMiddleware(s.log).Handler)
	router.Use(middleware.NewTimeoutMiddleware(s.opts.RequestTimeout).Handler)
	if s.metrics != nil {
		router.Use(middleware.MetricsMiddleware(s.metrics))
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	router.Use(middleware.NewSecurityHeadersMiddleware(nil).Handler)
	router.Use(middleware.NewCORSMiddleware(&middleware.CORSConfig{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Trace-ID"},
		ExposedHeaders:   []string{"X-Trace-ID"},
		AllowCredentials: false,
		MaxAgeSeconds:    3600,
	}).Handler)
	router.Use(middleware.NewBodyLimitMiddleware(0).Handler)
	router.Use(middleware.NewValidationMiddleware(middleware.DefaultValidationConfig()).Handler)

	if s.opts.RateLimitPerSec > 0 {
		rl := middleware.NewRateLimiter(s.opts.RateLimitPerSec, s.opts.RateLimitPerSec*2, s.log)
		router.Use(rl.Handler)
	}

	health := middleware.NewHealthChecker("debugproxy")
	if s.ca != nil {
		health.RegisterCheck("ca", func() error {
			if st := s.ca.StatusReport(context.Background()); !st.Loaded {
				return errUnloadedCA
			}
			return nil
		})
	}
	router.HandleFunc("/healthz", health.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", middleware.ReadinessHandler(&s.ready)).Methods(http.MethodGet)

	router.HandleFunc("/api/requests", s.listRequests).Methods(http.MethodGet)
	router.HandleFunc("/api/requests", s.clearRequests).Methods(http.MethodDelete)
	router.HandleFunc("/api/requests/{id}", s.getRequest).Methods(http.MethodGet)

	router.HandleFunc("/api/ca/status", s.caStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/ca/import", s.caImport).Methods(http.MethodPost)

	router.HandleFunc("/api/flows/{id}/debug", s.debugFlow).Methods(http.MethodPost)

	return router
}
