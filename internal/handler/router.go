// Package handler exposes the ledger core over HTTP. The routes are a
// thin adapter: capture adapters and operator tooling call them with
// already-computed amounts; tax computation and request authentication
// live upstream.
package handler

import (
	"net/http"

	"github.com/taxtrail/compliance-ledger-go/internal/infra/observability"
	"github.com/taxtrail/compliance-ledger-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services groups the ledger core services the router dispatches to.
type Services struct {
	Journal    *service.JournalService
	Category   *service.CategoryService
	Balance    *service.BalanceService
	Verify     *service.VerifyService
	Designated *service.DesignatedService
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svcs Services, readyz func(r *http.Request) error, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.TracePropagation)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyzHandler(readyz, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Route("/orgs/{orgId}", func(r chi.Router) {
			// Journal
			r.Post("/journal", appendJournalHandler(svcs.Journal, metrics, logger))
			r.Get("/journal", listJournalHandler(svcs.Journal, logger))

			// Category ledger
			r.Post("/category-entries", appendCategoryHandler(svcs.Category, logger))
			r.Get("/category-entries", listCategoryHandler(svcs.Category, logger))

			// Balances
			r.Get("/balances/categories", categoryBalancesHandler(svcs.Balance, logger))
			r.Get("/accounts/{accountId}/balance", accountBalanceHandler(svcs.Balance, logger))
			r.Get("/accounts/{accountId}/inflow", accountInflowHandler(svcs.Balance, logger))

			// Chain verification
			r.Get("/verify", verifyChainHandler(svcs.Verify, logger))
			r.Get("/verify/all", verifyAllHandler(svcs.Verify, logger))

			// Designated accounts
			r.Post("/designated-accounts", provisionAccountHandler(svcs.Designated, logger))
			r.Get("/designated-accounts/{accountType}", getDesignatedAccountHandler(svcs.Designated, logger))
			r.Get("/designated-accounts/{accountType}/transfers", listTransfersHandler(svcs.Designated, logger))
			r.Post("/designated-transfers", applyTransferHandler(svcs.Designated, logger))
		})

		// Ops snapshot for dashboards and runbooks
		r.Get("/ops/snapshot", opsSnapshotHandler(metrics))
	})

	return r
}

func readyzHandler(check func(r *http.Request) error, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r); err != nil {
				logger.Warn("readiness check failed", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func opsSnapshotHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetOpsSnapshot())
	}
}
