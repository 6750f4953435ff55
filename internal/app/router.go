package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/approvals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/periods"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/reports"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/valuation"
	"github.com/mandir-erp/mandir-ledger/internal/ap"
	"github.com/mandir-erp/mandir-ledger/internal/integration"
	"github.com/mandir-erp/mandir-ledger/internal/observability"
	"github.com/mandir-erp/mandir-ledger/internal/platform/httpx"
	"github.com/mandir-erp/mandir-ledger/internal/shared"
	"github.com/mandir-erp/mandir-ledger/jobs"
)

// SessionStore is the session surface the router needs.
type SessionStore interface {
	SessionLoader
	Revoke(ctx context.Context, id string) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	Sessions    SessionStore
	Idempotency IdempotencyGuard
	Metrics     *observability.Metrics

	LedgerHandler    *ledgers.Handler
	JournalHandler   *journals.Handler
	ApprovalHandler  *approvals.Handler
	ReportHandler    *reports.Handler
	MigrationHandler *integration.Handler
	PayablesHandler  *ap.Handler
	PeriodHandler    *periods.Handler
	ValuationHandler *valuation.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with ledger defaults. Everything under
// /api requires a session.
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
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(ActorMiddleware(params.Sessions, params.Logger))
		if params.Idempotency != nil {
			r.Use(IdempotencyMiddleware(params.Idempotency, params.Logger))
		}

		r.Get("/session", func(w http.ResponseWriter, r *http.Request) {
			actor, _ := shared.ActorFromContext(r.Context())
			httpx.JSON(w, http.StatusOK, actor)
		})
		r.Delete("/session", func(w http.ResponseWriter, r *http.Request) {
			sess, err := params.Sessions.Load(r.Context(), r)
			if err == nil {
				err = params.Sessions.Revoke(r.Context(), sess.ID)
			}
			if err != nil {
				params.Logger.Warn("revoke session", slog.Any("error", err))
			}
			w.WriteHeader(http.StatusNoContent)
		})

		if params.LedgerHandler != nil {
			params.LedgerHandler.MountRoutes(r)
		}
		if params.ApprovalHandler != nil {
			params.ApprovalHandler.MountRoutes(r)
		}
		if params.ReportHandler != nil {
			params.ReportHandler.MountRoutes(r)
		}
		if params.JournalHandler != nil {
			r.Route("/journals", params.JournalHandler.MountRoutes)
		}
		if params.MigrationHandler != nil {
			r.Route("/migrations", params.MigrationHandler.MountRoutes)
		}
		if params.PayablesHandler != nil {
			r.Route("/ap", params.PayablesHandler.MountRoutes)
		}
		if params.PeriodHandler != nil {
			r.Route("/periods", params.PeriodHandler.MountRoutes)
		}
		if params.ValuationHandler != nil {
			r.Route("/valuation", params.ValuationHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
