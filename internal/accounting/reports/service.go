package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	internalShared "github.com/mandir-erp/mandir-ledger/internal/shared"
)

// Service computes reports from posted rows on every call. Identical requests in
// flight at the same time share one computation.
type Service struct {
	repo   Repository
	group  singleflight.Group
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// shareTimeout bounds a shared computation once it no longer follows any caller.
const shareTimeout = 2 * time.Minute

// share runs fn once for all concurrent callers of key. fn gets a context detached
// from the first caller, so one caller going away does not fail the others; that
// caller alone returns its own context error.
func (s *Service) share(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, bool, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), shareTimeout)
		defer cancel()
		return fn(detached)
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	}
}

// scope returns the actor id rows are restricted to, or 0 for privileged actors.
func scope(actor internalShared.Actor) int64 {
	if actor.Privileged() {
		return 0
	}
	return actor.ID
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// window fills a missing bound from the active fiscal year.
func (s *Service) window(ctx context.Context, from, to time.Time) (time.Time, time.Time, error) {
	if from.IsZero() || to.IsZero() {
		year, err := s.repo.ActiveYear(ctx)
		if err != nil {
			return time.Time{}, time.Time{}, shared.Persistence("active year", err)
		}
		if from.IsZero() {
			from = year.Start()
		}
		if to.IsZero() {
			to = year.End()
		}
	}
	from, to = day(from), day(to)
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from %s after to %s", shared.ErrValidation, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	return from, to, nil
}

func needActor(actor internalShared.Actor) error {
	if actor.ID == 0 {
		return fmt.Errorf("%w: actor required", shared.ErrForbidden)
	}
	return nil
}

// TransactionReport lists confirmed bookings in the window with totals and
// breakdowns. Non-privileged actors see only bookings they created or are
// assigned to.
func (s *Service) TransactionReport(ctx context.Context, f Filter, actor internalShared.Actor) (TransactionReport, error) {
	if err := needActor(actor); err != nil {
		return TransactionReport{}, err
	}
	from, to, err := s.window(ctx, f.From, f.To)
	if err != nil {
		return TransactionReport{}, err
	}
	q := Query{From: from, To: to, DonationTypeID: f.DonationTypeID, PaymentModeID: f.PaymentModeID, ActorID: scope(actor)}
	key := fmt.Sprintf("tx:%s:%s:%d:%d:%d", from.Format(time.DateOnly), to.Format(time.DateOnly), q.DonationTypeID, q.PaymentModeID, q.ActorID)
	v, dup, err := s.share(ctx, key, func(ctx context.Context) (any, error) {
		var rows []TransactionRow
		var credits []InventoryCredit
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			rows, err = s.repo.Transactions(gctx, q)
			return err
		})
		g.Go(func() error {
			var err error
			credits, err = s.repo.InventoryCredits(gctx, q)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return BuildTransactionReport(from, to, rows, credits), nil
	})
	if err != nil {
		return TransactionReport{}, shared.Persistence("transaction report", err)
	}
	if dup {
		s.logger.Debug("transaction report shared", slog.String("key", key))
	}
	return v.(TransactionReport), nil
}

// DailyClosing summarises every cash/bank ledger for one day.
func (s *Service) DailyClosing(ctx context.Context, date time.Time, actor internalShared.Actor) (DailyClosing, error) {
	if err := needActor(actor); err != nil {
		return DailyClosing{}, err
	}
	if date.IsZero() {
		return DailyClosing{}, fmt.Errorf("%w: date required", shared.ErrValidation)
	}
	date = day(date)
	actorID := scope(actor)
	key := fmt.Sprintf("closing:%s:%d", date.Format(time.DateOnly), actorID)
	v, _, err := s.share(ctx, key, func(ctx context.Context) (any, error) {
		movements, err := s.repo.CashMovements(ctx, date, actorID)
		if err != nil {
			return nil, err
		}
		return BuildDailyClosing(date, movements), nil
	})
	if err != nil {
		return DailyClosing{}, shared.Persistence("daily closing", err)
	}
	return v.(DailyClosing), nil
}

// Statement is a ledger's running balance over the window. Ledger-wide views are
// for privileged actors only.
func (s *Service) Statement(ctx context.Context, ledgerID int64, from, to time.Time, actor internalShared.Actor) (Statement, error) {
	if !actor.Privileged() {
		return Statement{}, shared.ErrForbidden
	}
	from, to, err := s.window(ctx, from, to)
	if err != nil {
		return Statement{}, err
	}
	opening, err := s.repo.LedgerOpening(ctx, ledgerID, from)
	if err != nil {
		return Statement{}, shared.Persistence("ledger opening", err)
	}
	lines, err := s.repo.LedgerLines(ctx, ledgerID, from, to)
	if err != nil {
		return Statement{}, shared.Persistence("ledger lines", err)
	}
	return BuildStatement(ledgerID, from, to, opening, lines), nil
}

func (s *Service) balances(ctx context.Context, from, to time.Time, actor internalShared.Actor) ([]AccountBalance, error) {
	if !actor.Privileged() {
		return nil, shared.ErrForbidden
	}
	from, to, err := s.window(ctx, from, to)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("balances:%s:%s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	v, _, err := s.share(ctx, key, func(ctx context.Context) (any, error) {
		return s.repo.Balances(ctx, from, to)
	})
	if err != nil {
		return nil, shared.Persistence("balances", err)
	}
	return v.([]AccountBalance), nil
}

func (s *Service) TrialBalance(ctx context.Context, from, to time.Time, actor internalShared.Actor) (TrialBalance, error) {
	accounts, err := s.balances(ctx, from, to, actor)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := BuildTrialBalance(accounts)
	if !tb.Balanced() {
		s.logger.Error("trial balance out of balance",
			slog.String("debit", tb.TotalDebit.StringFixed(2)),
			slog.String("credit", tb.TotalCredit.StringFixed(2)))
	}
	return tb, nil
}

func (s *Service) IncomeExpenditure(ctx context.Context, from, to time.Time, actor internalShared.Actor) (IncomeExpenditure, error) {
	accounts, err := s.balances(ctx, from, to, actor)
	if err != nil {
		return IncomeExpenditure{}, err
	}
	return BuildIncomeExpenditure(accounts), nil
}
