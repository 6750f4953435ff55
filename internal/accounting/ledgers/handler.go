package ledgers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/groups", h.ListGroups)
	r.Get("/ledgers", h.ListByRange)
	r.Get("/ledgers/inventory", h.ListInventory)
	r.Get("/ledgers/{id}", h.Get)
	r.Post("/ledgers", h.Create)
}

type createRequest struct {
	GroupCode string `json:"group_code" validate:"required,numeric"`
	Name      string `json:"name" validate:"required,max=120"`
	CashBank  bool   `json:"cash_bank"`
	Inventory bool   `json:"inventory"`
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGroups(r.Context())
	if err != nil {
		h.fail(w, "list groups", err)
		return
	}
	httpx.JSON(w, http.StatusOK, groups)
}

func (h *Handler) ListByRange(w http.ResponseWriter, r *http.Request) {
	start, end := 0, 9999
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httpx.RespondError(w, httpx.ErrBadRequest)
			return
		}
		start = n
	}
	if v := r.URL.Query().Get("to"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httpx.RespondError(w, httpx.ErrBadRequest)
			return
		}
		end = n
	}
	list, err := h.service.ByGroupCodeRange(r.Context(), start, end)
	if err != nil {
		h.fail(w, "list ledgers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) ListInventory(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Inventory(r.Context())
	if err != nil {
		h.fail(w, "list inventory ledgers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrBadRequest)
		return
	}
	l, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get ledger", err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreateInput{GroupCode: req.GroupCode, Name: req.Name, Inventory: req.Inventory}
	if req.CashBank {
		in.Type = LedgerTypeCashBank
	}
	l, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create ledger", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, l)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindPersistence {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
