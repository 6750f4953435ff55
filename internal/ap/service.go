package ap

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// InvoiceDetail is an invoice with its posting health.
type InvoiceDetail struct {
	Invoice
	LedgerPosted bool
	TotalsError  string
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (InvoiceDetail, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return InvoiceDetail{}, shared.Persistence("get purchase invoice", err)
	}
	d := InvoiceDetail{Invoice: inv, LedgerPosted: inv.Migrated && inv.EntryID != nil}
	if err := inv.CheckTotals(); err != nil {
		d.TotalsError = err.Error()
	}
	return d, nil
}

func (s *Service) ListInvoices(ctx context.Context, f ListFilter) ([]Invoice, error) {
	list, err := s.repo.ListInvoices(ctx, f)
	return list, shared.Persistence("list purchase invoices", err)
}

func (s *Service) GetPayment(ctx context.Context, id int64) (Payment, error) {
	p, err := s.repo.GetPayment(ctx, id)
	return p, shared.Persistence("get purchase payment", err)
}

func (s *Service) ListPayments(ctx context.Context, f ListFilter) ([]Payment, error) {
	list, err := s.repo.ListPayments(ctx, f)
	return list, shared.Persistence("list purchase payments", err)
}

// Backlog counts what is still waiting for the ledger.
type Backlog struct {
	Invoices      int
	InvoiceAmount decimal.Decimal
	Payments      int
	PaymentAmount decimal.Decimal
}

// Unposted summarises unmigrated invoices and payments in the filter window.
func (s *Service) Unposted(ctx context.Context, f ListFilter) (Backlog, error) {
	no := false
	f.Migrated = &no
	var b Backlog
	invoices, err := s.repo.ListInvoices(ctx, f)
	if err != nil {
		return Backlog{}, shared.Persistence("unposted invoices", err)
	}
	for _, inv := range invoices {
		if !inv.Status.Postable() {
			continue
		}
		b.Invoices++
		b.InvoiceAmount = b.InvoiceAmount.Add(inv.Total)
	}
	payments, err := s.repo.ListPayments(ctx, f)
	if err != nil {
		return Backlog{}, shared.Persistence("unposted payments", err)
	}
	for _, p := range payments {
		b.Payments++
		b.PaymentAmount = b.PaymentAmount.Add(p.Amount)
	}
	return b, nil
}
