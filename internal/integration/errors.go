package integration

import (
	"errors"
	"fmt"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
)

// MigrationError reports why a source record did not reach the ledger.
// Nothing was written when it is returned.
type MigrationError struct {
	Module    journals.SourceModule
	SourceID  int64
	Err       error
	Retryable bool
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migrate %s %d: %v", e.Module, e.SourceID, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

func wrapMigrationError(module journals.SourceModule, id int64, err error) *MigrationError {
	if err == nil {
		return nil
	}
	var me *MigrationError
	if errors.As(err, &me) {
		return me
	}
	return &MigrationError{Module: module, SourceID: id, Err: err, Retryable: retryable(err)}
}

// retryable marks failures that can clear without editing the source record.
func retryable(err error) bool {
	switch shared.KindOf(err) {
	case shared.KindMissingLedgerMapping, shared.KindEntryLocked, shared.KindSequenceCollision, shared.KindPersistence, shared.KindInsufficientQuantity:
		return true
	case shared.KindValidation:
		return errors.Is(err, shared.ErrNoFiscalYear)
	default:
		return false
	}
}
