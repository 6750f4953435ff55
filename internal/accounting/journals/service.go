package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/sequence"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	internalShared "github.com/mandir-erp/mandir-ledger/internal/shared"
)

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// StockInvalidator drops cached inventory snapshots.
type StockInvalidator interface {
	Invalidate(ctx context.Context)
}

// MetricsPort counts committed writes.
type MetricsPort interface {
	EntryWritten(kind, op string)
}

type Service struct {
	repo    Repository
	audit   AuditPort
	stock   StockInvalidator
	metrics MetricsPort
	fundID  int64
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithStockInvalidator registers the valuation cache.
func (s *Service) WithStockInvalidator(inv StockInvalidator) { s.stock = inv }

// WithDefaultFund sets the fund stamped on entries posted without one.
func (s *Service) WithDefaultFund(id int64) { s.fundID = id }

// FundOrDefault returns id, or the default fund when id is zero.
func (s *Service) FundOrDefault(id int64) int64 {
	if id == 0 {
		return s.fundID
	}
	return id
}

// WithMetrics registers write counters.
func (s *Service) WithMetrics(m MetricsPort) { s.metrics = m }

func (s *Service) Get(ctx context.Context, id int64) (Entry, error) {
	e, err := s.repo.Get(ctx, id)
	return e, shared.Persistence("get entry", err)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("%w: date range", shared.ErrValidation)
	}
	entries, err := s.repo.List(ctx, filter)
	return entries, shared.Persistence("list entries", err)
}

// Post validates and persists a new entry in its own transaction.
func (s *Service) Post(ctx context.Context, in PostInput) (Entry, error) {
	if _, _, err := Normalize(in.Kind, in.Lines); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.PostTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return Entry{}, shared.Persistence("post entry", err)
	}
	s.Committed(ctx, "post", entry, in.CreatedBy)
	return entry, nil
}

// PostTx posts inside a caller-owned transaction. The caller reports the
// commit through Committed.
func (s *Service) PostTx(ctx context.Context, tx TxRepository, in PostInput) (Entry, error) {
	items, totals, err := Normalize(in.Kind, in.Lines)
	if err != nil {
		return Entry{}, err
	}
	year, err := tx.ActiveYear(ctx)
	if err != nil {
		return Entry{}, err
	}
	if !year.Covers(in.Date) {
		return Entry{}, fmt.Errorf("%s outside %s..%s: %w", in.Date.Format(time.DateOnly), year.FromYearMonth, year.ToYearMonth, shared.ErrNoFiscalYear)
	}
	if year.HasClosed {
		return Entry{}, fmt.Errorf("fiscal year %s..%s closed: %w", year.FromYearMonth, year.ToYearMonth, shared.ErrEntryLocked)
	}
	if err := validateAgainstChart(ctx, tx, in.Kind, nil, items, 0); err != nil {
		return Entry{}, err
	}
	in.FundID = s.FundOrDefault(in.FundID)
	header := Entry{
		Kind:      in.Kind,
		Date:      in.Date,
		DrTotal:   totals.Debit,
		CrTotal:   totals.Credit,
		Narration: in.Narration,
		FundID:    in.FundID,
		Payment:   in.Payment,
		Source:    in.Source,
		CreatedBy: in.CreatedBy,
	}
	var inserted Entry
	_, err = sequence.Allocate(ctx, tx, in.Kind.Prefix(), int(in.Kind), in.Date, func(code string) error {
		header.Number = code
		var err error
		inserted, err = tx.InsertEntry(ctx, header)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	inserted.Items, err = tx.InsertItems(ctx, inserted.ID, items)
	if err != nil {
		return Entry{}, err
	}
	return inserted, nil
}

// Validate runs the chart-dependent rules for kind inside tx.
func Validate(ctx context.Context, tx TxRepository, kind Kind, lines []LineInput) (Totals, error) {
	items, totals, err := Normalize(kind, lines)
	if err != nil {
		return Totals{}, err
	}
	return totals, validateAgainstChart(ctx, tx, kind, nil, items, 0)
}

// Update replaces the lines of a manual entry.
func (s *Service) Update(ctx context.Context, in UpdateInput) (Entry, error) {
	if in.EntryID == 0 {
		return Entry{}, fmt.Errorf("%w: entry id required", shared.ErrValidation)
	}
	var before, after Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if err := ensureEditable(ctx, tx, current); err != nil {
			return err
		}
		items, totals, err := Normalize(current.Kind, in.Lines)
		if err != nil {
			return err
		}
		date := in.Date
		if date.IsZero() {
			date = current.Date
		}
		if date.Format(time.DateOnly) != current.Date.Format(time.DateOnly) {
			year, err := tx.ActiveYear(ctx)
			if err != nil {
				return err
			}
			if !year.Editable(date) {
				return fmt.Errorf("new date %s: %w", date.Format(time.DateOnly), shared.ErrEntryLocked)
			}
		}
		if err := validateAgainstChart(ctx, tx, current.Kind, current.Items, items, current.ID); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, current.ID); err != nil {
			return err
		}
		updated := current
		updated.Date = date
		updated.Narration = in.Narration
		updated.Payment = in.Payment
		updated.DrTotal = totals.Debit
		updated.CrTotal = totals.Credit
		if err := tx.UpdateEntryHeader(ctx, updated); err != nil {
			return err
		}
		updated.Items, err = tx.InsertItems(ctx, current.ID, items)
		if err != nil {
			return err
		}
		updated.UpdatedAt = s.now()
		before, after = current, updated
		return nil
	})
	if err != nil {
		return Entry{}, shared.Persistence("update entry", err)
	}
	s.committedChange(ctx, "update", before, after, in.ActorID)
	return after, nil
}

// Delete removes a manual entry and its lines.
func (s *Service) Delete(ctx context.Context, in DeleteInput) error {
	if in.EntryID == 0 {
		return fmt.Errorf("%w: entry id required", shared.ErrValidation)
	}
	var removed Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if err := ensureEditable(ctx, tx, current); err != nil {
			return err
		}
		if err := guardStock(ctx, tx, current.Items, nil, current.ID); err != nil {
			return err
		}
		if err := tx.DeleteItems(ctx, current.ID); err != nil {
			return err
		}
		if err := tx.DeleteEntry(ctx, current.ID); err != nil {
			return err
		}
		removed = current
		return nil
	})
	if err != nil {
		return shared.Persistence("delete entry", err)
	}
	s.Committed(ctx, "delete", removed, in.ActorID)
	return nil
}

// OpeningStockInput records the first stock of a product in a warehouse.
type OpeningStockInput struct {
	LedgerID       int64
	WarehouseID    int64
	OffsetLedgerID int64
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	Date           time.Time
	FundID         int64
	ActorID        int64
}

// PostOpeningStock posts an inventory journal at most once per (ledger, warehouse).
func (s *Service) PostOpeningStock(ctx context.Context, in OpeningStockInput) (Entry, error) {
	amount := shared.Round2(in.Quantity.Mul(in.UnitPrice))
	post := PostInput{
		Kind:      KindInventoryJournal,
		Date:      in.Date,
		FundID:    in.FundID,
		Narration: "Opening stock",
		CreatedBy: in.ActorID,
		Lines: []LineInput{
			{LedgerID: in.LedgerID, Amount: amount, Side: Debit, Quantity: decimal.NewNullDecimal(in.Quantity), UnitPrice: decimal.NewNullDecimal(in.UnitPrice), Details: "Opening stock"},
			{LedgerID: in.OffsetLedgerID, Amount: amount, Side: Credit, Details: "Opening stock"},
		},
	}
	if _, _, err := Normalize(post.Kind, post.Lines); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.ReserveOpeningStock(ctx, in.LedgerID, in.WarehouseID)
		if err != nil {
			return err
		}
		post.Source = &SourceRef{Module: SourceOpeningStock, ID: id}
		entry, err = s.PostTx(ctx, tx, post)
		if err != nil {
			return err
		}
		return tx.LinkOpeningStock(ctx, id, entry.ID)
	})
	if err != nil {
		return Entry{}, shared.Persistence("opening stock", err)
	}
	s.Committed(ctx, "post", entry, in.ActorID)
	return entry, nil
}

// Committed runs post-commit side effects for an entry written by any caller.
func (s *Service) Committed(ctx context.Context, op string, e Entry, actorID int64) {
	s.committedChange(ctx, op, Entry{}, e, actorID)
}

func (s *Service) committedChange(ctx context.Context, op string, before, after Entry, actorID int64) {
	if s.metrics != nil {
		s.metrics.EntryWritten(after.Kind.String(), op)
	}
	if s.stock != nil && (touchesStock(before) || touchesStock(after)) {
		s.stock.Invalidate(ctx)
	}
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"number":   after.Number,
		"kind":     after.Kind.String(),
		"dr_total": after.DrTotal.StringFixed(2),
		"cr_total": after.CrTotal.StringFixed(2),
	}
	if after.Source != nil {
		meta["source_module"] = after.Source.Module.String()
		meta["source_id"] = after.Source.ID
	}
	if before.ID != 0 {
		meta["previous_dr_total"] = before.DrTotal.StringFixed(2)
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   "entry." + op,
		Entity:   internalShared.AuditEntityEntry,
		EntityID: fmt.Sprintf("%d", after.ID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit entry write", slog.String("op", op), slog.Int64("entry_id", after.ID), slog.Any("error", err))
	}
}

func touchesStock(e Entry) bool {
	for _, it := range e.Items {
		if it.IsStock() {
			return true
		}
	}
	return false
}

func ensureEditable(ctx context.Context, tx TxRepository, e Entry) error {
	if e.IsSystemGenerated() {
		return fmt.Errorf("entry %s created by %s: %w", e.Number, e.Source.Module, shared.ErrEntryLocked)
	}
	year, err := tx.ActiveYear(ctx)
	if errors.Is(err, shared.ErrNoFiscalYear) {
		return fmt.Errorf("entry %s: %w", e.Number, shared.ErrEntryLocked)
	}
	if err != nil {
		return err
	}
	if !year.Editable(e.Date) {
		return fmt.Errorf("entry %s outside open fiscal year: %w", e.Number, shared.ErrEntryLocked)
	}
	return nil
}

// validateAgainstChart resolves every ledger, applies the kind rule and checks that
// replacing before with items keeps every inventory ledger at or above zero.
func validateAgainstChart(ctx context.Context, tx TxRepository, kind Kind, before, items []Item, excludeEntry int64) error {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, it := range items {
		if !seen[it.LedgerID] {
			seen[it.LedgerID] = true
			ids = append(ids, it.LedgerID)
		}
	}
	chart, err := tx.GetLedgers(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := chart[id]; !ok {
			return fmt.Errorf("ledger %d: %w", id, shared.ErrLedgerNotFound)
		}
	}
	if err := kinds[kind].rule(items, chart); err != nil {
		return err
	}
	return guardStock(ctx, tx, before, items, excludeEntry)
}

// guardStock locks every inventory ledger touched by before or after and rejects the
// change when one of them would end below zero. before are the lines of excludeEntry
// being replaced or removed. A ledger already negative may still move upwards.
func guardStock(ctx context.Context, tx TxRepository, before, after []Item, excludeEntry int64) error {
	was, will := stockDelta(before), stockDelta(after)
	ids := make([]int64, 0, len(was)+len(will))
	for id := range was {
		ids = append(ids, id)
	}
	for id := range will {
		if _, ok := was[id]; !ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if err := tx.LockLedgers(ctx, ids); err != nil {
		return err
	}
	positions, err := tx.StockPositions(ctx, ids, excludeEntry)
	if err != nil {
		return err
	}
	for _, id := range ids {
		base := positions[id].Quantity
		available := base.Add(was[id])
		remaining := base.Add(will[id])
		if remaining.IsNegative() && remaining.LessThan(available) {
			return fmt.Errorf("ledger %d: available %s, change leaves %s: %w",
				id, available.String(), remaining.String(), shared.ErrInsufficientQuantity)
		}
	}
	return nil
}
