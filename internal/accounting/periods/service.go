package periods

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	internalShared "github.com/mandir-erp/mandir-ledger/internal/shared"
)

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) ActiveYear(ctx context.Context) (AcYear, error) {
	return s.repo.ActiveYear(ctx)
}

func (s *Service) List(ctx context.Context) ([]AcYear, error) {
	return s.repo.List(ctx)
}

// Open starts a new active year.
func (s *Service) Open(ctx context.Context, from, to YearMonth) (AcYear, error) {
	if !from.Valid() || !to.Valid() || to < from {
		return AcYear{}, fmt.Errorf("%w: year range %s..%s", shared.ErrValidation, from, to)
	}
	return s.repo.Create(ctx, AcYear{FromYearMonth: from, ToYearMonth: to})
}

// Close marks the year closed. Entries dated inside it become locked.
func (s *Service) Close(ctx context.Context, id int64, actor internalShared.Actor) (AcYear, error) {
	if !actor.Privileged() {
		return AcYear{}, shared.ErrForbidden
	}
	year, err := s.repo.Close(ctx, id, actor.ID)
	if err != nil {
		return AcYear{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, internalShared.AuditLog{
			ActorID:  actor.ID,
			Action:   "acyear.close",
			Entity:   internalShared.AuditEntityYear,
			EntityID: fmt.Sprintf("%d", year.ID),
			Meta:     map[string]any{"from": year.FromYearMonth.String(), "to": year.ToYearMonth.String()},
			At:       s.now(),
		}); err != nil {
			s.logger.Warn("audit year close", slog.Int64("year_id", year.ID), slog.Any("error", err))
		}
	}
	return year, nil
}
