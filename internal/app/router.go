package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-pos/meridian-pos/internal/adjustment"
	"github.com/meridian-pos/meridian-pos/internal/alerts"
	"github.com/meridian-pos/meridian-pos/internal/batch"
	"github.com/meridian-pos/meridian-pos/internal/goodsreceipt"
	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/observability"
	"github.com/meridian-pos/meridian-pos/internal/returns"
	"github.com/meridian-pos/meridian-pos/internal/transfer"
	"github.com/meridian-pos/meridian-pos/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	LedgerHandler     *ledger.Handler
	BatchHandler      *batch.Handler
	ReceiptHandler    *goodsreceipt.Handler
	TransferHandler   *transfer.Handler
	AdjustmentHandler *adjustment.Handler
	ReturnsHandler    *returns.Handler
	AlertsHandler     *alerts.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with the full API surface.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.LedgerHandler != nil {
		params.LedgerHandler.MountRoutes(r)
	}
	if params.BatchHandler != nil {
		params.BatchHandler.MountRoutes(r)
	}
	if params.ReceiptHandler != nil {
		params.ReceiptHandler.MountRoutes(r)
	}
	if params.TransferHandler != nil {
		params.TransferHandler.MountRoutes(r)
	}
	if params.AdjustmentHandler != nil {
		params.AdjustmentHandler.MountRoutes(r)
	}
	if params.ReturnsHandler != nil {
		params.ReturnsHandler.MountRoutes(r)
	}
	if params.AlertsHandler != nil {
		params.AlertsHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
