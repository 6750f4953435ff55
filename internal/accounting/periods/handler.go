package periods

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/platform/httpx"
	internalShared "github.com/mandir-erp/mandir-ledger/internal/shared"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/years", h.List)
	r.Get("/years/active", h.Active)
	r.Post("/years", h.Open)
	r.Post("/years/{id}/close", h.Close)
}

type openRequest struct {
	From int `json:"from" validate:"required,min=190001"`
	To   int `json:"to" validate:"required,min=190001"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	years, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list years", err)
		return
	}
	httpx.JSON(w, http.StatusOK, years)
}

func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	year, err := h.service.ActiveYear(r.Context())
	if err != nil {
		h.fail(w, "active year", err)
		return
	}
	httpx.JSON(w, http.StatusOK, year)
}

func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	actor, _ := internalShared.ActorFromContext(r.Context())
	if !actor.Privileged() {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	var req openRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	year, err := h.service.Open(r.Context(), YearMonth(req.From), YearMonth(req.To))
	if err != nil {
		h.fail(w, "open year", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, year)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrBadRequest)
		return
	}
	actor, _ := internalShared.ActorFromContext(r.Context())
	year, err := h.service.Close(r.Context(), id, actor)
	if err != nil {
		h.fail(w, "close year", err)
		return
	}
	httpx.JSON(w, http.StatusOK, year)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindPersistence {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
