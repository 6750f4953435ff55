package integration_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/mappings"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/ap"
	"github.com/mandir-erp/mandir-ledger/internal/donations"
	"github.com/mandir-erp/mandir-ledger/internal/integration"
	"github.com/mandir-erp/mandir-ledger/internal/testing/ledgerfake"
)

// sources holds bookings, purchases and mappings, rolling back with the book.
type sources struct {
	mu       sync.Mutex
	bookings map[int64]donations.Booking
	types    map[int64]donations.DonationType
	invoices map[int64]ap.Invoice
	payments map[int64]ap.Payment
	modes    map[int64]mappings.PaymentMode
	accounts map[string]int64
	failMark error
}

func newSources() *sources {
	return &sources{
		bookings: make(map[int64]donations.Booking),
		types:    make(map[int64]donations.DonationType),
		invoices: make(map[int64]ap.Invoice),
		payments: make(map[int64]ap.Payment),
		modes:    make(map[int64]mappings.PaymentMode),
		accounts: make(map[string]int64),
	}
}

func clone[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *sources) Snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	bookings, invoices, payments := clone(s.bookings), clone(s.invoices), clone(s.payments)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.bookings, s.invoices, s.payments = bookings, invoices, payments
	}
}

func (s *sources) booking(id int64) donations.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookings[id]
}

func (s *sources) invoice(id int64) ap.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invoices[id]
}

func (s *sources) payment(id int64) ap.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[id]
}

// donations.TxRepository

func (s *sources) LockBooking(_ context.Context, id int64) (donations.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return donations.Booking{}, fmt.Errorf("booking %d: %w", id, shared.ErrSourceNotFound)
	}
	return b, nil
}

func (s *sources) DonationType(_ context.Context, id int64) (donations.DonationType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.types[id]
	if !ok {
		return donations.DonationType{}, shared.ErrSourceNotFound
	}
	return t, nil
}

func (s *sources) MarkMigrated(_ context.Context, id, entryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMark != nil {
		return s.failMark
	}
	b := s.bookings[id]
	if b.Migrated {
		return shared.ErrAlreadyMigrated
	}
	b.Migrated, b.EntryID = true, &entryID
	s.bookings[id] = b
	return nil
}

// ap.TxRepository

func (s *sources) LockInvoice(_ context.Context, id int64) (ap.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return ap.Invoice{}, shared.ErrSourceNotFound
	}
	return inv, nil
}

func (s *sources) LockPayment(_ context.Context, id int64) (ap.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return ap.Payment{}, shared.ErrSourceNotFound
	}
	return p, nil
}

func (s *sources) MarkInvoiceMigrated(_ context.Context, id, entryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := s.invoices[id]
	inv.Migrated, inv.EntryID = true, &entryID
	s.invoices[id] = inv
	return nil
}

func (s *sources) MarkPaymentMigrated(_ context.Context, id, entryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.payments[id]
	p.Migrated, p.EntryID = true, &entryID
	s.payments[id] = p
	return nil
}

// mappings.Repository

func (s *sources) Get(_ context.Context, module, key string) (mappings.AccountMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.accounts[module+"/"+key]
	if !ok {
		return mappings.AccountMapping{}, fmt.Errorf("%s/%s: %w", module, key, shared.ErrMappingNotFound)
	}
	return mappings.AccountMapping{Module: module, Key: key, LedgerID: id}, nil
}

func (s *sources) GetPaymentMode(_ context.Context, id int64) (mappings.PaymentMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modes[id]
	if !ok {
		return mappings.PaymentMode{}, shared.ErrMappingNotFound
	}
	return m, nil
}

func (s *sources) ListPaymentModes(context.Context) ([]mappings.PaymentMode, error) {
	return nil, errors.New("not used")
}

func (s *sources) DefaultFund(context.Context) (mappings.Fund, error) {
	return mappings.Fund{ID: 1, Name: "General", IsDefault: true}, nil
}

// integration.PendingSource

func (s *sources) PendingIDs(_ context.Context, module journals.SourceModule, _ integration.RetryFilter) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	switch module {
	case journals.SourceDonation:
		for id, b := range s.bookings {
			if !b.Migrated && b.Status == donations.StatusConfirmed {
				ids = append(ids, id)
			}
		}
	case journals.SourcePurchaseInvoice:
		for id, inv := range s.invoices {
			if !inv.Migrated && inv.Status.Postable() {
				ids = append(ids, id)
			}
		}
	case journals.SourcePurchasePayment:
		for id, p := range s.payments {
			if !p.Migrated {
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type scope struct {
	tx  *ledgerfake.Tx
	src *sources
}

func (s scope) Journals() journals.TxRepository { return s.tx }
func (s scope) Ledgers() ledgers.TxRepository { return s.tx }
func (s scope) Mappings() mappings.Repository { return s.src }
func (s scope) Donations() donations.TxRepository { return s.src }
func (s scope) Purchases() ap.TxRepository { return s.src }

type unitOfWork struct {
	book *ledgerfake.Book
	src  *sources
}

func (u unitOfWork) WithTx(ctx context.Context, fn func(context.Context, integration.TxScope) error) error {
	return u.book.Tx(ctx, func(ctx context.Context, tx *ledgerfake.Tx) error {
		return fn(ctx, scope{tx: tx, src: u.src})
	})
}
