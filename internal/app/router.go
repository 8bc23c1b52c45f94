package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacen-erp/almacen-erp/internal/adjustments"
	"github.com/almacen-erp/almacen-erp/internal/audit"
	"github.com/almacen-erp/almacen-erp/internal/auth"
	"github.com/almacen-erp/almacen-erp/internal/catalog"
	"github.com/almacen-erp/almacen-erp/internal/counts"
	"github.com/almacen-erp/almacen-erp/internal/entries"
	"github.com/almacen-erp/almacen-erp/internal/fuel"
	"github.com/almacen-erp/almacen-erp/internal/inventory"
	"github.com/almacen-erp/almacen-erp/internal/loans"
	"github.com/almacen-erp/almacen-erp/internal/observability"
	"github.com/almacen-erp/almacen-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthService        *auth.Service
	AuthHandler        *auth.Handler
	InventoryHandler   *inventory.Handler
	AdjustmentsHandler *adjustments.Handler
	LoansHandler       *loans.Handler
	CountsHandler      *counts.Handler
	EntriesHandler     *entries.Handler
	FuelHandler        *fuel.Handler
	CatalogHandler     *catalog.Handler
	AuditHandler       *audit.Handler
	JobsHandler        *jobs.Handler
	Pool               *pgxpool.Pool
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults. Every
// /api/v1 route except login sits behind the bearer-token middleware.
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
		status := http.StatusOK
		body := `{"status":"ok"}`
		if params.Pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), params.Config.AppRequestTimeout)
			defer cancel()
			if err := params.Pool.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body = `{"status":"degraded"}`
			}
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/auth", params.AuthHandler.MountRoutes)

		api.Group(func(protected chi.Router) {
			protected.Use(auth.Middleware(params.AuthService))
			protected.Route("/inventario", params.InventoryHandler.MountRoutes)
			protected.Route("/ajustes", params.AdjustmentsHandler.MountRoutes)
			protected.Route("/prestamos", params.LoansHandler.MountRoutes)
			protected.Route("/conteos", params.CountsHandler.MountRoutes)
			protected.Route("/documentos", params.EntriesHandler.MountRoutes)
			protected.Route("/combustible", params.FuelHandler.MountRoutes)
			protected.Route("/catalogo", params.CatalogHandler.MountRoutes)
			protected.Route("/auditoria", params.AuditHandler.MountRoutes)
			if params.JobsHandler != nil {
				protected.Route("/tareas", params.JobsHandler.MountRoutes)
			}
		})
	})

	return r
}
