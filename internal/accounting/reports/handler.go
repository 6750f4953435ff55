package reports

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

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
	r.Route("/reports", func(r chi.Router) {
		r.Get("/transactions", h.Transactions)
		r.Get("/daily-closing", h.DailyClosing)
		r.Get("/trial-balance", h.TrialBalance)
		r.Get("/income-expenditure", h.IncomeExpenditure)
		r.Get("/ledgers/{id}/statement", h.Statement)
	})
}

func dateParam(q url.Values, key string) (time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, httpx.ErrBadRequest
	}
	return t, nil
}

func idParam(q url.Values, key string) (int64, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, httpx.ErrBadRequest
	}
	return n, nil
}

func rangeParams(q url.Values) (time.Time, time.Time, error) {
	from, err := dateParam(q, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := dateParam(q, "to")
	return from, to, err
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	q := r.URL.Query()
	var f Filter
	var err error
	if f.From, f.To, err = rangeParams(q); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if f.DonationTypeID, err = idParam(q, "donation_type_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if f.PaymentModeID, err = idParam(q, "payment_mode_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.TransactionReport(r.Context(), f, actor)
	if err != nil {
		h.fail(w, "transaction report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) DailyClosing(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	date, err := dateParam(r.URL.Query(), "date")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if date.IsZero() {
		date = time.Now()
	}
	closing, err := h.service.DailyClosing(r.Context(), date, actor)
	if err != nil {
		h.fail(w, "daily closing", err)
		return
	}
	httpx.JSON(w, http.StatusOK, closing)
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	from, to, err := rangeParams(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), from, to, actor)
	if err != nil {
		h.fail(w, "trial balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) IncomeExpenditure(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	from, to, err := rangeParams(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ie, err := h.service.IncomeExpenditure(r.Context(), from, to, actor)
	if err != nil {
		h.fail(w, "income and expenditure", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ie)
}

func (h *Handler) Statement(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrBadRequest)
		return
	}
	from, to, err := rangeParams(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	st, err := h.service.Statement(r.Context(), id, from, to, actor)
	if err != nil {
		h.fail(w, "ledger statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindPersistence {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
