package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parkwise/parkwise/internal/observability"
	"github.com/parkwise/parkwise/internal/platform/httpx"
	"github.com/parkwise/parkwise/internal/pricing"
	"github.com/parkwise/parkwise/internal/returns"
	"github.com/parkwise/parkwise/internal/sessions"
	"github.com/parkwise/parkwise/internal/subscriptions"
	"github.com/parkwise/parkwise/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	PricingHandler      *pricing.Handler
	SessionsHandler     *sessions.Handler
	SubscriptionHandler *subscriptions.Handler
	ReturnsHandler      *returns.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with ParkWise defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if params.PricingHandler != nil {
			r.Route("/pricing", params.PricingHandler.MountRoutes)
		}
		if params.SessionsHandler != nil {
			r.Route("/sessions", params.SessionsHandler.MountRoutes)
		}
		if params.SubscriptionHandler != nil {
			params.SubscriptionHandler.MountRoutes(r)
		}
		if params.ReturnsHandler != nil {
			params.ReturnsHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	return r
}
