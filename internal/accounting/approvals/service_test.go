package approvals_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/approvals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	internalShared "github.com/mandir-erp/mandir-ledger/internal/shared"
	"github.com/mandir-erp/mandir-ledger/internal/testing/ledgerfake"
)

var day = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

type memApprovals struct {
	mu   sync.Mutex
	book *ledgerfake.Book
	rows map[int64]approvals.Approval
}

func (m *memApprovals) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[int64]approvals.Approval, len(m.rows))
	for k, v := range m.rows {
		saved[k] = v
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.rows = saved
	}
}

func (m *memApprovals) WithTx(ctx context.Context, fn func(context.Context, approvals.TxScope) error) error {
	return m.book.Tx(ctx, func(ctx context.Context, tx *ledgerfake.Tx) error {
		return fn(ctx, scope{a: &memTx{store: m, tx: tx}, j: tx})
	})
}

func (m *memApprovals) Get(_ context.Context, id int64) (approvals.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return approvals.Approval{}, shared.ErrApprovalNotFound
	}
	return a, nil
}

func (m *memApprovals) List(_ context.Context, status approvals.Status) ([]approvals.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []approvals.Approval
	for _, a := range m.rows {
		if a.Status == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type scope struct {
	a approvals.TxRepository
	j journals.TxRepository
}

func (s scope) Approvals() approvals.TxRepository { return s.a }

func (s scope) Journals() journals.TxRepository { return s.j }

type memTx struct {
	store *memApprovals
	tx    *ledgerfake.Tx
}

func (t *memTx) Insert(_ context.Context, a approvals.Approval) (approvals.Approval, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	a.ID = t.tx.NewID()
	a.CreatedAt = time.Now()
	t.store.rows[a.ID] = a
	return a, nil
}

func (t *memTx) GetForUpdate(ctx context.Context, id int64) (approvals.Approval, error) {
	return t.store.Get(ctx, id)
}

func (t *memTx) MarkApproved(_ context.Context, id, approverID, entryID int64, at time.Time) error {
	return t.decide(id, func(a *approvals.Approval) {
		a.Status = approvals.StatusApproved
		a.ApprovedBy = &approverID
		a.ApprovedAt = &at
		a.EntryID = &entryID
	})
}

func (t *memTx) MarkRejected(_ context.Context, id, approverID int64, notes string, at time.Time) error {
	return t.decide(id, func(a *approvals.Approval) {
		a.Status = approvals.StatusRejected
		a.ApprovedBy = &approverID
		a.ApprovedAt = &at
		a.Notes = notes
	})
}

func (t *memTx) decide(id int64, apply func(*approvals.Approval)) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	a, ok := t.store.rows[id]
	if !ok || a.Status != approvals.StatusPending {
		return shared.ErrAlreadyProcessed
	}
	apply(&a)
	t.store.rows[id] = a
	return nil
}

type recordingRecorder struct {
	mu   sync.Mutex
	logs []internalShared.ApprovalLog
}

func (r *recordingRecorder) Record(_ context.Context, log internalShared.ApprovalLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

func (r *recordingRecorder) actions() []internalShared.ApprovalAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]internalShared.ApprovalAction, 0, len(r.logs))
	for _, l := range r.logs {
		out = append(out, l.Action)
	}
	return out
}

type fixture struct {
	book     *ledgerfake.Book
	store    *memApprovals
	recorder *recordingRecorder
	svc      *approvals.Service
	cash     int64
	expense  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	book := ledgerfake.New(2025)
	store := &memApprovals{book: book, rows: make(map[int64]approvals.Approval)}
	book.Attach(store)
	f := &fixture{
		book:     book,
		store:    store,
		recorder: &recordingRecorder{},
		cash:     book.AddLedger(ledgers.GroupCurrentAssets, "Cash", ledgers.LedgerTypeCashBank, false),
		expense:  book.AddLedger(ledgers.GroupExpenses, "Electricity", ledgers.LedgerTypeGeneral, false),
	}
	posting := journals.NewService(book.Journals(), nil, nil)
	f.svc = approvals.NewService(store, posting, decimal.NewFromInt(500), f.recorder, nil)
	return f
}

func (f *fixture) payment(amount string) approvals.SubmitInput {
	lines, _ := journals.BuildPayment(f.cash, []journals.LineInput{{LedgerID: f.expense, Amount: decimal.RequireFromString(amount), Details: "EB bill"}})
	return approvals.SubmitInput{Date: day, FundID: 1, Narration: "March bill", Lines: lines, ActorID: 21}
}

var (
	accountant = internalShared.Actor{ID: 5, Role: internalShared.RoleAccountant}
	operator   = internalShared.Actor{ID: 21, Role: internalShared.RoleOperator}
)

func TestSubmitBelowThresholdPostsDirectly(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.SubmitPayment(context.Background(), f.payment("499.99"))
	require.NoError(t, err)
	require.Equal(t, approvals.OutcomePosted, res.Status)
	require.NotNil(t, res.Entry)
	require.Nil(t, res.Approval)
	require.Equal(t, "499.99", res.Entry.DrTotal.StringFixed(2))
	require.Len(t, f.book.Entries(), 1)
	require.Empty(t, f.store.rows)
	require.Empty(t, f.recorder.actions())
}

func TestSubmitAtThresholdWaitsThenApproves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.SubmitPayment(ctx, f.payment("1000"))
	require.NoError(t, err)
	require.Equal(t, approvals.OutcomePending, res.Status)
	require.Nil(t, res.Entry)
	require.NotNil(t, res.Approval)
	require.Empty(t, f.book.Entries())

	pending, err := f.svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, approvals.StatusPending, pending[0].Status)
	require.Equal(t, "1000.00", pending[0].Total.StringFixed(2))

	entry, err := f.svc.Approve(ctx, res.Approval.ID, accountant)
	require.NoError(t, err)
	require.Equal(t, "1000.00", entry.DrTotal.StringFixed(2))
	require.Equal(t, "1000.00", entry.CrTotal.StringFixed(2))
	require.EqualValues(t, 21, entry.CreatedBy)
	require.True(t, entry.IsSystemGenerated())
	require.Equal(t, journals.SourceApproval, entry.Source.Module)

	stored, err := f.svc.Get(ctx, res.Approval.ID)
	require.NoError(t, err)
	require.Equal(t, approvals.StatusApproved, stored.Status)
	require.Equal(t, entry.ID, *stored.EntryID)
	require.EqualValues(t, accountant.ID, *stored.ApprovedBy)
	require.Len(t, f.book.Entries(), 1)
	require.Equal(t, []internalShared.ApprovalAction{internalShared.ApprovalSubmit, internalShared.ApprovalApprove}, f.recorder.actions())
}

func TestSubmitExactlyAtThresholdIsPending(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.SubmitPayment(context.Background(), f.payment("500"))
	require.NoError(t, err)
	require.Equal(t, approvals.OutcomePending, res.Status)
}

func TestApproveTwiceIsAlreadyProcessed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.SubmitPayment(ctx, f.payment("800"))
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, res.Approval.ID, accountant)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, res.Approval.ID, accountant)
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)
	require.Len(t, f.book.Entries(), 1)
}

func TestApproveRequiresPrivilegedActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.SubmitPayment(ctx, f.payment("800"))
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, res.Approval.ID, operator)
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = f.svc.Reject(ctx, res.Approval.ID, operator, "no")
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.Empty(t, f.book.Entries())
}

func TestRejectLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.SubmitPayment(ctx, f.payment("2500"))
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, res.Approval.ID, accountant, "  duplicate bill ")
	require.NoError(t, err)
	require.Equal(t, approvals.StatusRejected, rejected.Status)
	require.Equal(t, "duplicate bill", rejected.Notes)
	require.Empty(t, f.book.Entries())

	_, err = f.svc.Approve(ctx, res.Approval.ID, accountant)
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)
	_, err = f.svc.Reject(ctx, res.Approval.ID, accountant, "")
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)
}

func TestApproveFailureKeepsApprovalPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.SubmitPayment(ctx, f.payment("900"))
	require.NoError(t, err)

	f.book.CloseYear()
	_, err = f.svc.Approve(ctx, res.Approval.ID, accountant)
	require.ErrorIs(t, err, shared.ErrEntryLocked)

	stored, err := f.svc.Get(ctx, res.Approval.ID)
	require.NoError(t, err)
	require.Equal(t, approvals.StatusPending, stored.Status)
	require.Nil(t, stored.EntryID)
	require.Empty(t, f.book.Entries())
}

func TestSubmitRejectsInvalidPayment(t *testing.T) {
	f := newFixture(t)
	in := f.payment("1200")
	// Crediting a non-cash ledger is not a payment.
	in.Lines[1].LedgerID = f.expense

	_, err := f.svc.SubmitPayment(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrInvalidLedgerType)
	require.Empty(t, f.store.rows)
}

func TestApprovedEntryIsLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.SubmitPayment(ctx, f.payment("700"))
	require.NoError(t, err)
	entry, err := f.svc.Approve(ctx, res.Approval.ID, accountant)
	require.NoError(t, err)

	posting := journals.NewService(f.book.Journals(), nil, nil)
	err = posting.Delete(ctx, journals.DeleteInput{EntryID: entry.ID, ActorID: accountant.ID})
	require.ErrorIs(t, err, shared.ErrEntryLocked)
}

func TestApproveUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Approve(context.Background(), 404, accountant)
	require.ErrorIs(t, err, shared.ErrApprovalNotFound)
}

func TestPendingSubmitWithoutFundUsesDefaultFund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posting := journals.NewService(f.book.Journals(), nil, nil)
	posting.WithDefaultFund(7)
	svc := approvals.NewService(f.store, posting, decimal.NewFromInt(500), f.recorder, nil)

	in := f.payment("1000")
	in.FundID = 0
	res, err := svc.SubmitPayment(ctx, in)
	require.NoError(t, err)
	require.Equal(t, approvals.OutcomePending, res.Status)
	require.EqualValues(t, 7, res.Approval.FundID)

	entry, err := svc.Approve(ctx, res.Approval.ID, accountant)
	require.NoError(t, err)
	require.EqualValues(t, 7, entry.FundID)
}
