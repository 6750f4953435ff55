package integration

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/platform/httpx"
	internalShared "github.com/mandir-erp/mandir-ledger/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	migrator *Migrator
}

func NewHandler(logger *slog.Logger, migrator *Migrator) *Handler {
	return &Handler{logger: logger, migrator: migrator}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/retry", h.retryAll)
	r.Post("/{module}/{id}", h.migrate)
}

type retryRequest struct {
	From  string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To    string `json:"to" validate:"omitempty,datetime=2006-01-02"`
	Limit int    `json:"limit" validate:"gte=0,lte=5000"`
}

type retryView struct {
	Migrated int               `json:"migrated"`
	Skipped  int               `json:"skipped"`
	Failed   int               `json:"failed"`
	Results  []MigrationResult `json:"results"`
}

func (h *Handler) migrate(w http.ResponseWriter, r *http.Request) {
	if _, ok := internalShared.ActorFromContext(r.Context()); !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	adapter, err := h.migrator.Adapter(chi.URLParam(r, "module"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, httpx.ErrBadRequest)
		return
	}
	res, err := adapter.Migrate(r.Context(), id)
	if err != nil {
		if shared.KindOf(err) == shared.KindPersistence {
			h.logger.Error("migrate", slog.String("module", res.Module), slog.Int64("source_id", id), slog.Any("error", err))
			res.Message = ""
		}
		httpx.JSON(w, httpx.StatusFor(shared.KindOf(err)), res)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) retryAll(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if !actor.Privileged() {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	var req retryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var f RetryFilter
	f.From, _ = parseDate(req.From)
	f.To, _ = parseDate(req.To)
	f.Limit = req.Limit
	results, err := h.migrator.RetryAll(r.Context(), f)
	if err != nil && len(results) == 0 {
		h.logger.Error("retry migrations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if err != nil {
		h.logger.Warn("retry migrations partially listed", slog.Any("error", err))
	}
	migrated, skipped, failed := Summarize(results)
	httpx.JSON(w, http.StatusOK, retryView{Migrated: migrated, Skipped: skipped, Failed: failed, Results: results})
}

func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("empty date")
	}
	return time.Parse(time.DateOnly, v)
}
