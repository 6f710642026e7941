package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hisaab-erp/hisaab-erp/internal/balance"
	"github.com/hisaab-erp/hisaab-erp/internal/inventory"
	"github.com/hisaab-erp/hisaab-erp/internal/ledger"
	"github.com/hisaab-erp/hisaab-erp/internal/observability"
	"github.com/hisaab-erp/hisaab-erp/internal/orders"
	"github.com/hisaab-erp/hisaab-erp/internal/purchasing"
	"github.com/hisaab-erp/hisaab-erp/internal/returns"
	"github.com/hisaab-erp/hisaab-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	LedgerHandler     *ledger.Handler
	InventoryHandler  *inventory.Handler
	BalanceHandler    *balance.Handler
	ReturnsHandler    *returns.Handler
	PurchasingHandler *purchasing.Handler
	OrdersHandler     *orders.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
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

	r.Route("/api/v1", func(r chi.Router) {
		if params.LedgerHandler != nil {
			params.LedgerHandler.MountRoutes(r)
		}
		if params.InventoryHandler != nil {
			params.InventoryHandler.MountRoutes(r)
		}
		if params.BalanceHandler != nil {
			params.BalanceHandler.MountRoutes(r)
		}
		if params.ReturnsHandler != nil {
			params.ReturnsHandler.MountRoutes(r)
		}
		if params.PurchasingHandler != nil {
			params.PurchasingHandler.MountRoutes(r)
		}
		if params.OrdersHandler != nil {
			params.OrdersHandler.MountRoutes(r)
		}
	})

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
