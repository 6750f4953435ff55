package valuation

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/platform/httpx"
)

// Handler serves stock positions for inventory ledgers.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock", h.List)
	r.Get("/stock/{ledgerID}", h.Get)
	r.Get("/stock/{ledgerID}/history", h.History)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Snapshots(r.Context())
	if err != nil {
		h.fail(w, "stock snapshots", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ledgerID(w, r)
	if !ok {
		return
	}
	snap, err := h.service.Snapshot(r.Context(), id)
	if err != nil {
		h.fail(w, "stock snapshot", err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := ledgerID(w, r)
	if !ok {
		return
	}
	lines, err := h.service.History(r.Context(), id)
	if err != nil {
		h.fail(w, "stock history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lines)
}

func ledgerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "ledgerID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, httpx.ErrBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindPersistence {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
