package approvals

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	internalShared "github.com/mandir-erp/mandir-ledger/internal/shared"
)

// DefaultThreshold applies when no threshold is configured.
var DefaultThreshold = decimal.RequireFromString("500.00")

// RecorderPort keeps the approval history.
type RecorderPort interface {
	Record(ctx context.Context, log internalShared.ApprovalLog) error
}

// MetricsPort counts decisions.
type MetricsPort interface {
	ApprovalDecided(outcome string)
}

type Service struct {
	repo      Repository
	journals  *journals.Service
	threshold decimal.Decimal
	recorder  RecorderPort
	metrics   MetricsPort
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, journalSvc *journals.Service, threshold decimal.Decimal, recorder RecorderPort, logger *slog.Logger) *Service {
	if !threshold.IsPositive() {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, journals: journalSvc, threshold: threshold, recorder: recorder, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics registers decision counters.
func (s *Service) WithMetrics(m MetricsPort) { s.metrics = m }

// Threshold is the amount from which payments wait for approval.
func (s *Service) Threshold() decimal.Decimal { return s.threshold }

// SubmitPayment posts a payment below the threshold directly. At or above it the
// voucher is stored as PENDING and nothing reaches the ledger.
func (s *Service) SubmitPayment(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	_, totals, err := journals.Normalize(journals.KindPayment, in.Lines)
	if err != nil {
		return SubmitResult{}, err
	}
	total := totals.Total()
	if total.LessThan(s.threshold) {
		entry, err := s.journals.Post(ctx, journals.PostInput{
			Kind:      journals.KindPayment,
			Date:      in.Date,
			FundID:    in.FundID,
			Narration: in.Narration,
			Payment:   in.Payment,
			Lines:     in.Lines,
			CreatedBy: in.ActorID,
		})
		if err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Status: OutcomePosted, Entry: &entry}, nil
	}

	var pending Approval
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxScope) error {
		if _, err := journals.Validate(ctx, tx.Journals(), journals.KindPayment, in.Lines); err != nil {
			return err
		}
		var err error
		pending, err = tx.Approvals().Insert(ctx, Approval{
			Ref:         uuid.New(),
			Kind:        journals.KindPayment,
			Date:        in.Date,
			FundID:      s.journals.FundOrDefault(in.FundID),
			Narration:   in.Narration,
			Payment:     in.Payment,
			Total:       total,
			Status:      StatusPending,
			SubmittedBy: in.ActorID,
			Lines:       toLines(in.Lines),
		})
		return err
	})
	if err != nil {
		return SubmitResult{}, shared.Persistence("submit payment", err)
	}
	s.record(ctx, pending, in.ActorID, internalShared.ApprovalSubmit, "")
	return SubmitResult{Status: OutcomePending, Approval: &pending}, nil
}

// Approve promotes a pending voucher into a ledger entry in one transaction.
// The entry is stamped with the approval as its source, so it is locked from then on.
func (s *Service) Approve(ctx context.Context, id int64, actor internalShared.Actor) (journals.Entry, error) {
	if !actor.Privileged() {
		return journals.Entry{}, shared.ErrForbidden
	}
	var (
		entry    journals.Entry
		approval Approval
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxScope) error {
		current, err := tx.Approvals().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return fmt.Errorf("approval %d is %s: %w", id, current.Status, shared.ErrAlreadyProcessed)
		}
		entry, err = s.journals.PostTx(ctx, tx.Journals(), journals.PostInput{
			Kind:      current.Kind,
			Date:      current.Date,
			FundID:    current.FundID,
			Narration: current.Narration,
			Payment:   current.Payment,
			Lines:     current.lineInputs(),
			Source:    &journals.SourceRef{Module: journals.SourceApproval, ID: current.ID},
			CreatedBy: current.SubmittedBy,
		})
		if err != nil {
			return err
		}
		if err := tx.Approvals().MarkApproved(ctx, id, actor.ID, entry.ID, s.now()); err != nil {
			return err
		}
		approval = current
		return nil
	})
	if err != nil {
		return journals.Entry{}, shared.Persistence("approve payment", err)
	}
	s.journals.Committed(ctx, "post", entry, actor.ID)
	s.record(ctx, approval, actor.ID, internalShared.ApprovalApprove, entry.Number)
	return entry, nil
}

// Reject closes a pending voucher without ledger effect.
func (s *Service) Reject(ctx context.Context, id int64, actor internalShared.Actor, notes string) (Approval, error) {
	if !actor.Privileged() {
		return Approval{}, shared.ErrForbidden
	}
	notes = strings.TrimSpace(notes)
	var rejected Approval
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxScope) error {
		current, err := tx.Approvals().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return fmt.Errorf("approval %d is %s: %w", id, current.Status, shared.ErrAlreadyProcessed)
		}
		at := s.now()
		if err := tx.Approvals().MarkRejected(ctx, id, actor.ID, notes, at); err != nil {
			return err
		}
		rejected = current
		rejected.Status = StatusRejected
		rejected.ApprovedBy = &actor.ID
		rejected.ApprovedAt = &at
		rejected.Notes = notes
		return nil
	})
	if err != nil {
		return Approval{}, shared.Persistence("reject payment", err)
	}
	s.record(ctx, rejected, actor.ID, internalShared.ApprovalReject, notes)
	return rejected, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Approval, error) {
	a, err := s.repo.Get(ctx, id)
	return a, shared.Persistence("get approval", err)
}

func (s *Service) ListPending(ctx context.Context) ([]Approval, error) {
	list, err := s.repo.List(ctx, StatusPending)
	return list, shared.Persistence("list approvals", err)
}

func (s *Service) record(ctx context.Context, a Approval, actorID int64, action internalShared.ApprovalAction, note string) {
	if s.metrics != nil {
		s.metrics.ApprovalDecided(string(action))
	}
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, internalShared.ApprovalLog{
		Module:  "entry_approval",
		RefID:   a.Ref,
		ActorID: actorID,
		Action:  action,
		Note:    note,
		At:      s.now(),
	}); err != nil {
		s.logger.Warn("record approval", slog.Int64("approval_id", a.ID), slog.Any("error", err))
	}
}

func toLines(in []journals.LineInput) []Line {
	out := make([]Line, 0, len(in))
	for _, l := range in {
		out = append(out, Line{LedgerID: l.LedgerID, Amount: shared.Round2(l.Amount), Side: l.Side, Details: l.Details, IsDiscount: l.IsDiscount})
	}
	return out
}
