// Package ledgerfake is an in-memory chart and journal store for tests. Every
// transaction runs under one mutex and is rolled back by restoring a snapshot.
package ledgerfake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/periods"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/sequence"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/valuation"
)

type opening struct {
	ledgerID    int64
	warehouseID int64
	entryID     int64
}

type state struct {
	groups   map[int64]ledgers.Group
	ledgers  map[int64]ledgers.Ledger
	entries  map[int64]journals.Entry
	items    map[int64][]journals.Item
	openings map[int64]opening
	seq      map[sequence.Bucket]int64
	year     *periods.AcYear
	nextID   int64
}

func (s *state) clone() *state {
	c := &state{
		groups:   make(map[int64]ledgers.Group, len(s.groups)),
		ledgers:  make(map[int64]ledgers.Ledger, len(s.ledgers)),
		entries:  make(map[int64]journals.Entry, len(s.entries)),
		items:    make(map[int64][]journals.Item, len(s.items)),
		openings: make(map[int64]opening, len(s.openings)),
		seq:      make(map[sequence.Bucket]int64, len(s.seq)),
		nextID:   s.nextID,
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.ledgers {
		c.ledgers[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]journals.Item(nil), v...)
	}
	for k, v := range s.openings {
		c.openings[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	if s.year != nil {
		y := *s.year
		c.year = &y
	}
	return c
}

// Book is the shared store.
type Book struct {
	mu sync.Mutex
	st *state
	// Fail makes the named Tx method return the error.
	Fail map[string]error
	exts []Extension
}

// Extension is extra state that rolls back with the book, such as a fake
// source table living in the same transaction.
type Extension interface {
	// Snapshot captures the state and returns a func restoring it.
	Snapshot() (restore func())
}

// Attach adds ext to every later transaction.
func (b *Book) Attach(ext Extension) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exts = append(b.exts, ext)
}

// New returns a Book whose active year covers year.
func New(year int) *Book {
	y := periods.AcYear{ID: 1, FromYearMonth: periods.YearMonth(year*100 + 1), ToYearMonth: periods.YearMonth(year*100 + 12), Active: true}
	return &Book{
		st: &state{
			groups:   make(map[int64]ledgers.Group),
			ledgers:  make(map[int64]ledgers.Ledger),
			entries:  make(map[int64]journals.Entry),
			items:    make(map[int64][]journals.Item),
			openings: make(map[int64]opening),
			seq:      make(map[sequence.Bucket]int64),
			year:     &y,
		},
		Fail: make(map[string]error),
	}
}

// Tx runs fn atomically. A returned error discards every change fn made.
func (b *Book) Tx(ctx context.Context, fn func(context.Context, *Tx) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot := b.st.clone()
	restores := make([]func(), 0, len(b.exts))
	for _, ext := range b.exts {
		restores = append(restores, ext.Snapshot())
	}
	if err := fn(ctx, &Tx{book: b}); err != nil {
		b.st = snapshot
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// Journals adapts the book to journals.Repository.
func (b *Book) Journals() journals.Repository { return journalRepo{b} }

// Ledgers adapts the book to ledgers.Repository.
func (b *Book) Ledgers() ledgers.Repository { return ledgerRepo{b} }

// SetYear replaces the active year. Nil removes it.
func (b *Book) SetYear(y *periods.AcYear) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.st.year = y
}

// CloseYear marks the active year closed.
func (b *Book) CloseYear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.st.year != nil {
		b.st.year.HasClosed = true
	}
}

// AddLedger seeds a ledger, creating its group on demand.
func (b *Book) AddLedger(groupCode, name string, typ ledgers.LedgerType, iv bool) int64 {
	var id int64
	_ = b.Tx(context.Background(), func(ctx context.Context, tx *Tx) error {
		g, err := tx.LockGroupByCode(ctx, groupCode)
		if err != nil {
			group, ok := ledgers.WellKnownGroup(groupCode)
			if !ok {
				group = ledgers.Group{Name: "Group " + groupCode, Code: groupCode}
			}
			_ = tx.InsertGroup(ctx, group)
			g, _ = tx.LockGroupByCode(ctx, groupCode)
		}
		max, _ := tx.MaxRightCode(ctx, g.ID)
		id, _, err = tx.InsertLedger(ctx, ledgers.Ledger{GroupID: g.ID, Name: name, LeftCode: g.Code, RightCode: fmt.Sprintf("%04d", max+1), Type: typ, Inventory: iv})
		return err
	})
	return id
}

// Entries returns every stored entry with items, ordered by id.
func (b *Book) Entries() []journals.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]journals.Entry, 0, len(b.st.entries))
	for id, e := range b.st.entries {
		e.Items = append([]journals.Item(nil), b.st.items[id]...)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LedgersInGroup lists the ledgers of a group code.
func (b *Book) LedgersInGroup(code string) []ledgers.Ledger {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []ledgers.Ledger
	for _, l := range b.st.ledgers {
		if l.LeftCode == code {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RightCode < out[j].RightCode })
	return out
}

// Position folds the stock lines of a ledger.
func (b *Book) Position(ledgerID int64) valuation.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return valuation.Fold(ledgerID, b.movements(), 0)
}

func (b *Book) movements() []valuation.Movement {
	var out []valuation.Movement
	for entryID, items := range b.st.items {
		for _, it := range items {
			if !it.IsStock() {
				continue
			}
			out = append(out, valuation.Movement{
				LedgerID:  it.LedgerID,
				EntryID:   entryID,
				Debit:     it.Side == journals.Debit,
				Quantity:  it.Quantity.Decimal,
				UnitPrice: it.UnitPrice.Decimal,
			})
		}
	}
	return out
}

func (b *Book) id() int64 {
	b.st.nextID++
	return b.st.nextID
}

// Tx implements journals.TxRepository and ledgers.TxRepository.
type Tx struct {
	book *Book
}

// NewID hands out an id from the book's sequence.
func (t *Tx) NewID() int64 { return t.book.id() }

func (t *Tx) fail(method string) error {
	return t.book.Fail[method]
}

func (t *Tx) NextValue(_ context.Context, bucket sequence.Bucket) (int64, error) {
	if err := t.fail("NextValue"); err != nil {
		return 0, err
	}
	t.book.st.seq[bucket]++
	return t.book.st.seq[bucket], nil
}

func (t *Tx) CodeTaken(_ context.Context, code string) (bool, error) {
	for _, e := range t.book.st.entries {
		if e.Number == code {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tx) InsertEntry(ctx context.Context, e journals.Entry) (journals.Entry, error) {
	if err := t.fail("InsertEntry"); err != nil {
		return journals.Entry{}, err
	}
	if taken, _ := t.CodeTaken(ctx, e.Number); taken {
		return journals.Entry{}, shared.ErrSequenceCollision
	}
	e.ID = t.book.id()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	e.Items = nil
	t.book.st.entries[e.ID] = e
	return e, nil
}

func (t *Tx) InsertItems(_ context.Context, entryID int64, items []journals.Item) ([]journals.Item, error) {
	if err := t.fail("InsertItems"); err != nil {
		return nil, err
	}
	out := make([]journals.Item, 0, len(items))
	for _, it := range items {
		it.ID = t.book.id()
		it.EntryID = entryID
		out = append(out, it)
	}
	t.book.st.items[entryID] = append(t.book.st.items[entryID], out...)
	return out, nil
}

func (t *Tx) GetEntryForUpdate(_ context.Context, id int64) (journals.Entry, error) {
	e, ok := t.book.st.entries[id]
	if !ok {
		return journals.Entry{}, shared.ErrJournalNotFound
	}
	e.Items = append([]journals.Item(nil), t.book.st.items[id]...)
	return e, nil
}

func (t *Tx) UpdateEntryHeader(_ context.Context, e journals.Entry) error {
	if _, ok := t.book.st.entries[e.ID]; !ok {
		return shared.ErrJournalNotFound
	}
	e.Items = nil
	e.UpdatedAt = time.Now()
	t.book.st.entries[e.ID] = e
	return nil
}

func (t *Tx) DeleteItems(_ context.Context, entryID int64) error {
	delete(t.book.st.items, entryID)
	return nil
}

func (t *Tx) DeleteEntry(_ context.Context, entryID int64) error {
	if _, ok := t.book.st.entries[entryID]; !ok {
		return shared.ErrJournalNotFound
	}
	delete(t.book.st.entries, entryID)
	return nil
}

func (t *Tx) GetLedgers(_ context.Context, ids []int64) (map[int64]ledgers.Ledger, error) {
	out := make(map[int64]ledgers.Ledger, len(ids))
	for _, id := range ids {
		if l, ok := t.book.st.ledgers[id]; ok {
			out[id] = l
		}
	}
	return out, nil
}

func (t *Tx) LockLedgers(context.Context, []int64) error { return nil }

func (t *Tx) StockPositions(_ context.Context, ledgerIDs []int64, excludeEntryID int64) (map[int64]valuation.Position, error) {
	movements := t.book.movements()
	out := make(map[int64]valuation.Position, len(ledgerIDs))
	for _, id := range ledgerIDs {
		out[id] = valuation.Fold(id, movements, excludeEntryID)
	}
	return out, nil
}

func (t *Tx) ActiveYear(context.Context) (periods.AcYear, error) {
	if t.book.st.year == nil {
		return periods.AcYear{}, shared.ErrNoFiscalYear
	}
	return *t.book.st.year, nil
}

func (t *Tx) ReserveOpeningStock(_ context.Context, ledgerID, warehouseID int64) (int64, error) {
	for _, o := range t.book.st.openings {
		if o.ledgerID == ledgerID && o.warehouseID == warehouseID {
			return 0, shared.ErrOpeningStockExists
		}
	}
	id := t.book.id()
	t.book.st.openings[id] = opening{ledgerID: ledgerID, warehouseID: warehouseID}
	return id, nil
}

func (t *Tx) LinkOpeningStock(_ context.Context, id, entryID int64) error {
	o := t.book.st.openings[id]
	o.entryID = entryID
	t.book.st.openings[id] = o
	return nil
}

func (t *Tx) LockGroupByCode(_ context.Context, code string) (ledgers.Group, error) {
	for _, g := range t.book.st.groups {
		if g.Code == code {
			return g, nil
		}
	}
	return ledgers.Group{}, shared.ErrGroupNotFound
}

func (t *Tx) InsertGroup(ctx context.Context, g ledgers.Group) error {
	if _, err := t.LockGroupByCode(ctx, g.Code); err == nil {
		return nil
	}
	g.ID = t.book.id()
	t.book.st.groups[g.ID] = g
	return nil
}

func (t *Tx) FindLedgerByName(_ context.Context, groupID int64, name string) (ledgers.Ledger, error) {
	key := ledgers.NameKey(name)
	for _, l := range t.book.st.ledgers {
		if l.GroupID == groupID && ledgers.NameKey(l.Name) == key {
			return l, nil
		}
	}
	return ledgers.Ledger{}, shared.ErrLedgerNotFound
}

func (t *Tx) MaxRightCode(_ context.Context, groupID int64) (int, error) {
	max := 0
	for _, l := range t.book.st.ledgers {
		if l.GroupID != groupID {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(l.RightCode, "%d", &n); err == nil && n > max {
			max = n
		}
	}
	return max, nil
}

func (t *Tx) InsertLedger(ctx context.Context, l ledgers.Ledger) (int64, bool, error) {
	if err := t.fail("InsertLedger"); err != nil {
		return 0, false, err
	}
	if _, err := t.FindLedgerByName(ctx, l.GroupID, l.Name); err == nil {
		return 0, false, nil
	}
	l.ID = t.book.id()
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt
	t.book.st.ledgers[l.ID] = l
	return l.ID, true, nil
}

var (
	_ journals.TxRepository = (*Tx)(nil)
	_ ledgers.TxRepository  = (*Tx)(nil)
)

// Dec parses a decimal literal.
func Dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
