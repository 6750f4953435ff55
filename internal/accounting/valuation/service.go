package valuation

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
)

// HistoryLine is a movement with the running position after it.
type HistoryLine struct {
	Movement Movement `json:"movement"`
	Running  Snapshot `json:"running"`
}

type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
}

func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Snapshot returns quantity, value and average cost for one ledger.
func (s *Service) Snapshot(ctx context.Context, ledgerID int64) (Snapshot, error) {
	key, err := s.cache.BuildKey(ctx, "ledger", strconv.FormatInt(ledgerID, 10))
	if err != nil {
		return Snapshot{}, err
	}
	var out Snapshot
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		positions, err := s.repo.Positions(ctx, []int64{ledgerID})
		if err != nil {
			return nil, shared.Persistence("valuation positions", err)
		}
		return NewSnapshot(positions[ledgerID]), nil
	})
	return out, err
}

// Snapshots returns every inventory ledger's position.
func (s *Service) Snapshots(ctx context.Context) ([]Snapshot, error) {
	key, err := s.cache.BuildKey(ctx, "all")
	if err != nil {
		return nil, err
	}
	var out []Snapshot
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		ids, err := s.repo.InventoryLedgerIDs(ctx)
		if err != nil {
			return nil, shared.Persistence("valuation ledgers", err)
		}
		positions, err := s.repo.Positions(ctx, ids)
		if err != nil {
			return nil, shared.Persistence("valuation positions", err)
		}
		list := make([]Snapshot, 0, len(ids))
		for _, id := range ids {
			list = append(list, NewSnapshot(positions[id]))
		}
		return list, nil
	})
	return out, err
}

// History replays a ledger's movements. It always reads the database.
func (s *Service) History(ctx context.Context, ledgerID int64) ([]HistoryLine, error) {
	movements, err := s.repo.Movements(ctx, ledgerID)
	if err != nil {
		return nil, shared.Persistence("valuation movements", err)
	}
	pos := Position{LedgerID: ledgerID}
	out := make([]HistoryLine, 0, len(movements))
	for _, m := range movements {
		pos = pos.Apply(m)
		out = append(out, HistoryLine{Movement: m, Running: NewSnapshot(pos)})
	}
	return out, nil
}

// Invalidate drops cached snapshots after an inventory write commits. Failures are
// logged; the next successful bump or key expiry clears stale data.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("valuation cache bump failed", slog.Any("error", err))
	}
}
