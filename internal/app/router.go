package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gridline-energy/gridline/internal/exchange/inbox"
	"github.com/gridline-energy/gridline/internal/exchange/outbox"
	"github.com/gridline-energy/gridline/internal/observability"
	"github.com/gridline-energy/gridline/internal/process"
	"github.com/gridline-energy/gridline/internal/settlement"
	"github.com/gridline-energy/gridline/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	ProcessHandler    *process.Handler
	SettlementHandler *settlement.Handler
	OutboxHandler     *outbox.Handler
	InboxHandler      *inbox.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Gridline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.ProcessHandler != nil {
		r.Route("/processes", params.ProcessHandler.MountRoutes)
	}
	if params.SettlementHandler != nil {
		r.Route("/settlements", params.SettlementHandler.MountRoutes)
	}
	if params.OutboxHandler != nil {
		r.Route("/outbox", params.OutboxHandler.MountRoutes)
	}
	if params.InboxHandler != nil {
		r.Route("/inbox", params.InboxHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
