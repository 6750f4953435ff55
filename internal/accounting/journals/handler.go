package journals

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

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

// LineRequest is the wire form of an entry line.
type LineRequest struct {
	LedgerID   int64               `json:"ledger_id" validate:"required,gt=0"`
	Amount     decimal.Decimal     `json:"amount"`
	Side       string              `json:"side" validate:"required,oneof=D C"`
	Details    string              `json:"details" validate:"max=255"`
	Quantity   decimal.NullDecimal `json:"quantity"`
	UnitPrice  decimal.NullDecimal `json:"unit_price"`
	IsDiscount bool                `json:"is_discount"`
}

type PaymentRequest struct {
	ChequeNo       string `json:"cheque_no" validate:"max=40"`
	ChequeDate     string `json:"cheque_date" validate:"omitempty,datetime=2006-01-02"`
	BankName       string `json:"bank_name" validate:"max=120"`
	TransactionRef string `json:"transaction_ref" validate:"max=120"`
}

type postRequest struct {
	Kind      int            `json:"entrytype_id" validate:"required,min=1,max=7"`
	Date      string         `json:"date" validate:"required,datetime=2006-01-02"`
	FundID    int64          `json:"fund_id" validate:"gte=0"`
	Narration string         `json:"narration" validate:"max=500"`
	Payment   PaymentRequest `json:"payment"`
	Lines     []LineRequest  `json:"lines" validate:"required,min=2,dive"`
}

type updateRequest struct {
	Date      string         `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Narration string         `json:"narration" validate:"max=500"`
	Payment   PaymentRequest `json:"payment"`
	Lines     []LineRequest  `json:"lines" validate:"required,min=2,dive"`
}

type openingStockRequest struct {
	LedgerID       int64           `json:"ledger_id" validate:"required,gt=0"`
	WarehouseID    int64           `json:"warehouse_id" validate:"required,gt=0"`
	OffsetLedgerID int64           `json:"offset_ledger_id" validate:"required,gt=0"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Date           string          `json:"date" validate:"required,datetime=2006-01-02"`
}

type ItemView struct {
	ID         int64               `json:"id"`
	LedgerID   int64               `json:"ledger_id"`
	Amount     string              `json:"amount"`
	Side       string              `json:"dc"`
	Details    string              `json:"details,omitempty"`
	Quantity   decimal.NullDecimal `json:"quantity"`
	UnitPrice  decimal.NullDecimal `json:"unit_price"`
	IsDiscount bool                `json:"is_discount"`
}

type EntryView struct {
	ID              int64      `json:"id"`
	EntryTypeID     int        `json:"entrytype_id"`
	Kind            string     `json:"kind"`
	Number          string     `json:"number"`
	Date            string     `json:"date"`
	DrTotal         string     `json:"dr_total"`
	CrTotal         string     `json:"cr_total"`
	Narration       string     `json:"narration"`
	FundID          int64      `json:"fund_id"`
	SystemGenerated bool       `json:"system_generated"`
	CreatedBy       int64      `json:"created_by"`
	Items           []ItemView `json:"items,omitempty"`
}

// View renders an entry for JSON responses.
func View(e Entry) EntryView {
	v := EntryView{
		ID:              e.ID,
		EntryTypeID:     int(e.Kind),
		Kind:            e.Kind.String(),
		Number:          e.Number,
		Date:            e.Date.Format(time.DateOnly),
		DrTotal:         e.DrTotal.StringFixed(2),
		CrTotal:         e.CrTotal.StringFixed(2),
		Narration:       e.Narration,
		FundID:          e.FundID,
		SystemGenerated: e.IsSystemGenerated(),
		CreatedBy:       e.CreatedBy,
	}
	for _, it := range e.Items {
		v.Items = append(v.Items, ItemView{
			ID:         it.ID,
			LedgerID:   it.LedgerID,
			Amount:     it.Amount.StringFixed(2),
			Side:       string(it.Side),
			Details:    it.Details,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			IsDiscount: it.IsDiscount,
		})
	}
	return v
}

func ToLines(reqs []LineRequest) []LineInput {
	lines := make([]LineInput, 0, len(reqs))
	for _, l := range reqs {
		lines = append(lines, LineInput{
			LedgerID:   l.LedgerID,
			Amount:     l.Amount,
			Side:       Side(l.Side),
			Details:    l.Details,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice,
			IsDiscount: l.IsDiscount,
		})
	}
	return lines
}

func ToPayment(p PaymentRequest) PaymentMeta {
	meta := PaymentMeta{ChequeNo: p.ChequeNo, BankName: p.BankName, TransactionRef: p.TransactionRef}
	if d, err := time.Parse(time.DateOnly, p.ChequeDate); err == nil {
		meta.ChequeDate = &d
	}
	return meta
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter ListFilter
	var err error
	if v := q.Get("entrytype_id"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			httpx.RespondError(w, httpx.ErrBadRequest)
			return
		}
		if filter.Kind, err = ParseKind(n); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if filter.From, err = parseOptionalDate(q.Get("from")); err != nil {
		httpx.RespondError(w, httpx.ErrBadRequest)
		return
	}
	if filter.To, err = parseOptionalDate(q.Get("to")); err != nil {
		httpx.RespondError(w, httpx.ErrBadRequest)
		return
	}
	filter.LedgerID, _ = strconv.ParseInt(q.Get("ledger_id"), 10, 64)
	page := internalShared.PageFromQuery(q)
	filter.Limit, filter.Offset = page.Limit(), page.Offset()
	if v := q.Get("system_generated"); v != "" {
		b, convErr := strconv.ParseBool(v)
		if convErr != nil {
			httpx.RespondError(w, httpx.ErrBadRequest)
			return
		}
		filter.SystemGenerated = &b
	}
	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list entries", err)
		return
	}
	views := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, View(e))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, View(entry))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	kind, err := ParseKind(req.Kind)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := time.Parse(time.DateOnly, req.Date)
	entry, err := h.service.Post(r.Context(), PostInput{
		Kind:      kind,
		Date:      date,
		FundID:    req.FundID,
		Narration: req.Narration,
		Payment:   ToPayment(req.Payment),
		Lines:     ToLines(req.Lines),
		CreatedBy: actor.ID,
	})
	if err != nil {
		h.fail(w, "post entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, View(entry))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := parseOptionalDate(req.Date)
	entry, err := h.service.Update(r.Context(), UpdateInput{
		EntryID:   id,
		Date:      date,
		Narration: req.Narration,
		Payment:   ToPayment(req.Payment),
		Lines:     ToLines(req.Lines),
		ActorID:   actor.ID,
	})
	if err != nil {
		h.fail(w, "update entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, View(entry))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), DeleteInput{EntryID: id, ActorID: actor.ID}); err != nil {
		h.fail(w, "delete entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) OpeningStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req openingStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := time.Parse(time.DateOnly, req.Date)
	entry, err := h.service.PostOpeningStock(r.Context(), OpeningStockInput{
		LedgerID:       req.LedgerID,
		WarehouseID:    req.WarehouseID,
		OffsetLedgerID: req.OffsetLedgerID,
		Quantity:       req.Quantity,
		UnitPrice:      req.UnitPrice,
		Date:           date,
		ActorID:        actor.ID,
	})
	if err != nil {
		h.fail(w, "opening stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, View(entry))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindPersistence {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func entryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, httpx.ErrBadRequest)
		return 0, false
	}
	return id, true
}

func parseOptionalDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, v)
}
