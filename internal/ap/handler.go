package ap

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/platform/httpx"
	internalShared "github.com/mandir-erp/mandir-ledger/internal/shared"
)

// Handler exposes read access to purchase records and their ledger state.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.listInvoices)
	r.Get("/invoices/{id}", h.showInvoice)
	r.Get("/payments", h.listPayments)
	r.Get("/payments/{id}", h.showPayment)
	r.Get("/backlog", h.backlog)
}

type invoiceView struct {
	ID           int64  `json:"id"`
	Number       string `json:"number"`
	SupplierID   int64  `json:"supplier_id"`
	SupplierName string `json:"supplier_name"`
	Date         string `json:"date"`
	Subtotal     string `json:"subtotal"`
	TaxAmount    string `json:"tax_amount"`
	Discount     string `json:"discount"`
	Total        string `json:"total"`
	Status       string `json:"status"`
	Migrated     bool   `json:"account_migration"`
	EntryID      *int64 `json:"entry_id,omitempty"`
	TotalsError  string `json:"totals_error,omitempty"`
}

type paymentView struct {
	ID           int64  `json:"id"`
	Number       string `json:"number"`
	SupplierID   int64  `json:"supplier_id"`
	SupplierName string `json:"supplier_name"`
	InvoiceID    *int64 `json:"invoice_id,omitempty"`
	Amount       string `json:"amount"`
	PaidAt       string `json:"paid_at"`
	Migrated     bool   `json:"account_migration"`
	EntryID      *int64 `json:"entry_id,omitempty"`
}

func toInvoiceView(inv Invoice) invoiceView {
	return invoiceView{
		ID:           inv.ID,
		Number:       inv.Number,
		SupplierID:   inv.SupplierID,
		SupplierName: inv.SupplierName,
		Date:         inv.Date.Format(time.DateOnly),
		Subtotal:     inv.Subtotal.StringFixed(2),
		TaxAmount:    inv.TaxAmount.StringFixed(2),
		Discount:     inv.Discount.StringFixed(2),
		Total:        inv.Total.StringFixed(2),
		Status:       string(inv.Status),
		Migrated:     inv.Migrated,
		EntryID:      inv.EntryID,
	}
}

func toPaymentView(p Payment) paymentView {
	return paymentView{
		ID:           p.ID,
		Number:       p.Number,
		SupplierID:   p.SupplierID,
		SupplierName: p.SupplierName,
		InvoiceID:    p.InvoiceID,
		Amount:       p.Amount.StringFixed(2),
		PaidAt:       p.PaidAt.Format(time.DateOnly),
		Migrated:     p.Migrated,
		EntryID:      p.EntryID,
	}
}

func parseFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	var f ListFilter
	var err error
	if v := q.Get("supplier_id"); v != "" {
		if f.SupplierID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return f, httpx.ErrBadRequest
		}
	}
	if v := q.Get("migrated"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, httpx.ErrBadRequest
		}
		f.Migrated = &b
	}
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if v := q.Get(key); v != "" {
			if *dst, err = time.Parse(time.DateOnly, v); err != nil {
				return f, httpx.ErrBadRequest
			}
		}
	}
	page := internalShared.PageFromQuery(q)
	f.Limit, f.Offset = page.Limit(), page.Offset()
	return f, nil
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListInvoices(r.Context(), f)
	if err != nil {
		h.fail(w, "list purchase invoices", err)
		return
	}
	out := make([]invoiceView, 0, len(list))
	for _, inv := range list {
		out = append(out, toInvoiceView(inv))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) showInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.fail(w, "get purchase invoice", err)
		return
	}
	v := toInvoiceView(d.Invoice)
	v.TotalsError = d.TotalsError
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListPayments(r.Context(), f)
	if err != nil {
		h.fail(w, "list purchase payments", err)
		return
	}
	out := make([]paymentView, 0, len(list))
	for _, p := range list {
		out = append(out, toPaymentView(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) showPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		h.fail(w, "get purchase payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentView(p))
}

func (h *Handler) backlog(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	f.Limit, f.Offset = 0, 0
	b, err := h.service.Unposted(r.Context(), f)
	if err != nil {
		h.fail(w, "purchase backlog", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoices":       b.Invoices,
		"invoice_amount": b.InvoiceAmount.StringFixed(2),
		"payments":       b.Payments,
		"payment_amount": b.PaymentAmount.StringFixed(2),
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindPersistence {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, httpx.ErrBadRequest)
		return 0, false
	}
	return id, true
}
