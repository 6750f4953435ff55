package ledgers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput describes a manually created ledger.
type CreateInput struct {
	GroupCode string
	Name      string
	Type      LedgerType
	Inventory bool
}

// ResolveOrCreate returns the id of the named general ledger in the group,
// creating the group and ledger when they do not exist yet.
func (s *Service) ResolveOrCreate(ctx context.Context, groupCode, name string) (int64, error) {
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = ResolveOrCreate(ctx, tx, groupCode, name)
		return err
	})
	return id, err
}

// Create adds a ledger to an existing group. Duplicate names are rejected.
func (s *Service) Create(ctx context.Context, in CreateInput) (Ledger, error) {
	var created Ledger
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		group, err := lockOrProvisionGroup(ctx, tx, in.GroupCode)
		if err != nil {
			return err
		}
		if _, err := tx.FindLedgerByName(ctx, group.ID, in.Name); err == nil {
			return fmt.Errorf("%w: ledger %q already exists in group %s", shared.ErrValidation, in.Name, group.Code)
		} else if !errors.Is(err, shared.ErrLedgerNotFound) {
			return err
		}
		l, inserted, err := insertNext(ctx, tx, group, Ledger{Name: strings.TrimSpace(in.Name), Type: in.Type, Inventory: in.Inventory})
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("%w: ledger %q already exists in group %s", shared.ErrValidation, in.Name, group.Code)
		}
		created = l
		return nil
	})
	return created, err
}

func (s *Service) Get(ctx context.Context, id int64) (Ledger, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ByGroupCodeRange(ctx context.Context, start, end int) ([]Ledger, error) {
	if start > end {
		return nil, fmt.Errorf("%w: group code range %d-%d", shared.ErrValidation, start, end)
	}
	return s.repo.ByGroupCodeRange(ctx, start, end)
}

func (s *Service) Inventory(ctx context.Context) ([]Ledger, error) {
	return s.repo.Inventory(ctx)
}

func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	return s.repo.ListGroups(ctx)
}

// ResolveOrCreate is the transaction-bound form used by posting adapters. The group row
// stays locked until tx ends, serializing right_code allocation per group.
func ResolveOrCreate(ctx context.Context, tx TxRepository, groupCode, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: ledger name required", shared.ErrValidation)
	}
	group, err := lockOrProvisionGroup(ctx, tx, groupCode)
	if err != nil {
		return 0, err
	}
	existing, err := tx.FindLedgerByName(ctx, group.ID, name)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, shared.ErrLedgerNotFound) {
		return 0, err
	}
	l, _, err := insertNext(ctx, tx, group, Ledger{Name: name, Type: LedgerTypeGeneral})
	if err != nil {
		return 0, err
	}
	return l.ID, nil
}

func lockOrProvisionGroup(ctx context.Context, tx TxRepository, code string) (Group, error) {
	group, err := tx.LockGroupByCode(ctx, code)
	if err == nil || !errors.Is(err, shared.ErrGroupNotFound) {
		return group, err
	}
	wk, ok := WellKnownGroup(code)
	if !ok {
		return Group{}, fmt.Errorf("group %s: %w", code, shared.ErrGroupNotFound)
	}
	if err := tx.InsertGroup(ctx, wk); err != nil {
		return Group{}, err
	}
	return tx.LockGroupByCode(ctx, code)
}

// insertNext allocates the next right_code. When a concurrent writer won the name,
// the winner is returned with inserted=false.
func insertNext(ctx context.Context, tx TxRepository, group Group, l Ledger) (Ledger, bool, error) {
	max, err := tx.MaxRightCode(ctx, group.ID)
	if err != nil {
		return Ledger{}, false, err
	}
	l.GroupID = group.ID
	l.LeftCode = group.Code
	l.RightCode = fmt.Sprintf("%04d", max+1)
	id, inserted, err := tx.InsertLedger(ctx, l)
	if err != nil {
		return Ledger{}, false, err
	}
	if !inserted {
		winner, err := tx.FindLedgerByName(ctx, group.ID, l.Name)
		return winner, false, err
	}
	l.ID = id
	return l, true, nil
}
