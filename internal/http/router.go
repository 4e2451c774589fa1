// Package httpapi assembles the public HTTP surface from the domain handlers.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raceday/internal/platform/metrics"
	"raceday/internal/platform/middleware"
	"raceday/pkg/platform/httputil"
	"raceday/pkg/platform/middleware/metadata"
	"raceday/pkg/platform/middleware/requesttime"
)

const defaultRequestTimeout = 30 * time.Second

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Mounter is implemented by the domain handlers.
type Mounter interface {
	Register(r chi.Router)
}

// Deps carries everything the router needs. Nil handlers are skipped.
type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Validator      middleware.JWTValidator
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
	HealthChecks   map[string]HealthCheck

	// Public routes, mounted without authentication.
	Public []PublicMounter
	// JSON routes behind bearer authentication.
	Protected []Mounter
	// Routes behind bearer authentication that negotiate their own content type.
	ProtectedRaw []Mounter
}

// PublicMounter is implemented by handlers exposing unauthenticated routes.
type PublicMounter interface {
	RegisterPublic(r chi.Router)
}

// NewRouter wires middleware, health, metrics and the domain handlers.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger, d.Metrics))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.LatencyMiddleware(d.Metrics))

	r.Get("/health", healthHandler(d.HealthChecks))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		for _, h := range d.Public {
			h.RegisterPublic(r)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Use(middleware.RequireAuth(d.Validator, logger))
		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			for _, h := range d.Protected {
				h.Register(r)
			}
		})
		for _, h := range d.ProtectedRaw {
			h.Register(r)
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
