package approvals

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
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
	r.Post("/payments", h.SubmitPayment)
	r.Get("/approvals", h.ListPending)
	r.Get("/approvals/{id}", h.Get)
	r.Post("/approvals/{id}/approve", h.Approve)
	r.Post("/approvals/{id}/reject", h.Reject)
}

type submitRequest struct {
	Date      string                  `json:"date" validate:"required,datetime=2006-01-02"`
	FundID    int64                   `json:"fund_id" validate:"gte=0"`
	Narration string                  `json:"narration" validate:"max=500"`
	Payment   journals.PaymentRequest `json:"payment"`
	Lines     []journals.LineRequest  `json:"lines" validate:"required,min=2,dive"`
}

type rejectRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

type lineView struct {
	LedgerID   int64  `json:"ledger_id"`
	Amount     string `json:"amount"`
	Side       string `json:"dc"`
	Details    string `json:"details,omitempty"`
	IsDiscount bool   `json:"is_discount"`
}

type approvalView struct {
	ID          int64      `json:"id"`
	Ref         string     `json:"ref"`
	Date        string     `json:"date"`
	Narration   string     `json:"narration"`
	Total       string     `json:"total"`
	Status      Status     `json:"approval_status"`
	SubmittedBy int64      `json:"submitted_by"`
	ApprovedBy  *int64     `json:"approved_by,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	EntryID     *int64     `json:"entry_id,omitempty"`
	Lines       []lineView `json:"lines,omitempty"`
}

type submitView struct {
	Status   Outcome             `json:"status"`
	Entry    *journals.EntryView `json:"entry,omitempty"`
	Approval *approvalView       `json:"approval,omitempty"`
}

func toView(a Approval) approvalView {
	v := approvalView{
		ID:          a.ID,
		Ref:         a.Ref.String(),
		Date:        a.Date.Format(time.DateOnly),
		Narration:   a.Narration,
		Total:       a.Total.StringFixed(2),
		Status:      a.Status,
		SubmittedBy: a.SubmittedBy,
		ApprovedBy:  a.ApprovedBy,
		Notes:       a.Notes,
		EntryID:     a.EntryID,
	}
	for _, l := range a.Lines {
		v.Lines = append(v.Lines, lineView{LedgerID: l.LedgerID, Amount: l.Amount.StringFixed(2), Side: string(l.Side), Details: l.Details, IsDiscount: l.IsDiscount})
	}
	return v
}

func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := time.Parse(time.DateOnly, req.Date)
	res, err := h.service.SubmitPayment(r.Context(), SubmitInput{
		Date:      date,
		FundID:    req.FundID,
		Narration: req.Narration,
		Payment:   journals.ToPayment(req.Payment),
		Lines:     journals.ToLines(req.Lines),
		ActorID:   actor.ID,
	})
	if err != nil {
		h.fail(w, "submit payment", err)
		return
	}
	out := submitView{Status: res.Status}
	status := http.StatusCreated
	if res.Entry != nil {
		v := journals.View(*res.Entry)
		out.Entry = &v
	}
	if res.Approval != nil {
		v := toView(*res.Approval)
		out.Approval = &v
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, out)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPending(r.Context())
	if err != nil {
		h.fail(w, "list approvals", err)
		return
	}
	views := make([]approvalView, 0, len(list))
	for _, a := range list {
		views = append(views, toView(a))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := approvalID(w, r)
	if !ok {
		return
	}
	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get approval", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(a))
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, ok := approvalID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Approve(r.Context(), id, actor)
	if err != nil {
		h.fail(w, "approve payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, journals.View(entry))
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, ok := approvalID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.service.Reject(r.Context(), id, actor, req.Notes)
	if err != nil {
		h.fail(w, "reject payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(a))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindPersistence {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func approvalID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, httpx.ErrBadRequest)
		return 0, false
	}
	return id, true
}
