package ledgerfake

import (
	"context"
	"sort"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
)

type journalRepo struct{ b *Book }

func (r journalRepo) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return r.b.Tx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

func (r journalRepo) Get(_ context.Context, id int64) (journals.Entry, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	e, ok := r.b.st.entries[id]
	if !ok {
		return journals.Entry{}, shared.ErrJournalNotFound
	}
	e.Items = append([]journals.Item(nil), r.b.st.items[id]...)
	return e, nil
}

func (r journalRepo) List(_ context.Context, f journals.ListFilter) ([]journals.Entry, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	var out []journals.Entry
	for id, e := range r.b.st.entries {
		if f.Kind != 0 && e.Kind != f.Kind {
			continue
		}
		if !f.From.IsZero() && e.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.Date.After(f.To) {
			continue
		}
		if f.CreatedBy != 0 && e.CreatedBy != f.CreatedBy {
			continue
		}
		if f.SystemGenerated != nil && e.IsSystemGenerated() != *f.SystemGenerated {
			continue
		}
		if f.LedgerID != 0 && !touches(r.b.st.items[id], f.LedgerID) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func touches(items []journals.Item, ledgerID int64) bool {
	for _, it := range items {
		if it.LedgerID == ledgerID {
			return true
		}
	}
	return false
}

type ledgerRepo struct{ b *Book }

func (r ledgerRepo) WithTx(ctx context.Context, fn func(context.Context, ledgers.TxRepository) error) error {
	return r.b.Tx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

func (r ledgerRepo) Get(_ context.Context, id int64) (ledgers.Ledger, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	l, ok := r.b.st.ledgers[id]
	if !ok {
		return ledgers.Ledger{}, shared.ErrLedgerNotFound
	}
	return l, nil
}

func (r ledgerRepo) GetMany(_ context.Context, ids []int64) (map[int64]ledgers.Ledger, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	out := make(map[int64]ledgers.Ledger, len(ids))
	for _, id := range ids {
		if l, ok := r.b.st.ledgers[id]; ok {
			out[id] = l
		}
	}
	return out, nil
}

func (r ledgerRepo) ByGroupCodeRange(_ context.Context, start, end int) ([]ledgers.Ledger, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	var out []ledgers.Ledger
	for _, l := range r.b.st.ledgers {
		g := r.b.st.groups[l.GroupID]
		var code int
		for _, ch := range g.Code {
			code = code*10 + int(ch-'0')
		}
		if code >= start && code <= end {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
	return out, nil
}

func (r ledgerRepo) Inventory(_ context.Context) ([]ledgers.Ledger, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	var out []ledgers.Ledger
	for _, l := range r.b.st.ledgers {
		if l.Inventory {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r ledgerRepo) ListGroups(_ context.Context) ([]ledgers.Group, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	out := make([]ledgers.Group, 0, len(r.b.st.groups))
	for _, g := range r.b.st.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
