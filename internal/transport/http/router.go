package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kycflow/internal/platform/middleware"
)

// HealthChecker reports whether a backing service is reachable.
type HealthChecker func(ctx context.Context) error

// RouterConfig wires the router. Metrics and TokenValidator are optional.
type RouterConfig struct {
	Logger         *slog.Logger
	Flows          *FlowHandler
	Catalog        *CatalogHandler
	Metrics        http.Handler
	TokenValidator middleware.TokenValidator
	// RateLimit wraps the versioned API when set.
	RateLimit func(http.Handler) http.Handler
	Health    map[string]HealthChecker
}

// NewRouter builds the chi router with the shared middleware chain. The
// versioned API sits behind service-token auth when a validator is set.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Device)
	r.Use(middleware.Logger(logger))

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit)
		}
		if cfg.TokenValidator != nil {
			r.Use(middleware.RequireServiceToken(cfg.TokenValidator, logger))
		}
		if cfg.Flows != nil {
			cfg.Flows.Register(r)
		}
		if cfg.Catalog != nil {
			cfg.Catalog.Register(r)
		}
	})
	return r
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		writeJSON(w, status, map[string]any{"status": state, "checks": results})
	}
}
