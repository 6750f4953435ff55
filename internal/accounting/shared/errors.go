package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrInvalidAmount indicates a zero or negative line amount.
	ErrInvalidAmount = errors.New("accounting: line amount must be positive")
	// ErrInvalidLedgerType indicates a leg breaks the cash/bank rule of its entry kind.
	ErrInvalidLedgerType = errors.New("accounting: ledger type not allowed for entry kind")
	// ErrInvalidKind indicates an unknown entry type id.
	ErrInvalidKind = errors.New("accounting: unknown entry type")
	// ErrValidation wraps malformed input that is not covered by a more specific error.
	ErrValidation = errors.New("accounting: invalid input")
	// ErrLedgerNotFound indicates a referenced ledger does not exist.
	ErrLedgerNotFound = errors.New("accounting: ledger not found")
	// ErrGroupNotFound indicates a referenced group does not exist.
	ErrGroupNotFound = errors.New("accounting: group not found")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrEntryLocked indicates the entry is system generated or its fiscal year is closed.
	ErrEntryLocked = errors.New("accounting: entry locked")
	// ErrNoFiscalYear indicates no fiscal year covers the entry date.
	ErrNoFiscalYear = errors.New("accounting: no fiscal year covers date")
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = errors.New("accounting: account mapping not found")
	// ErrInsufficientQuantity indicates an inventory sale exceeds available stock.
	ErrInsufficientQuantity = errors.New("accounting: insufficient quantity")
	// ErrAlreadyMigrated indicates the source record was already posted to the ledger.
	ErrAlreadyMigrated = errors.New("accounting: already migrated")
	// ErrAlreadyProcessed indicates an approval is no longer pending.
	ErrAlreadyProcessed = errors.New("accounting: approval already processed")
	// ErrSequenceCollision indicates a generated code is already used.
	ErrSequenceCollision = errors.New("accounting: sequence collision")
	// ErrForbidden indicates the actor lacks the privileged role.
	ErrForbidden = errors.New("accounting: forbidden")
	// ErrApprovalNotFound indicates a missing approval request.
	ErrApprovalNotFound = errors.New("accounting: approval not found")
	// ErrSourceNotFound indicates the module source record does not exist.
	ErrSourceNotFound = errors.New("accounting: source record not found")
	// ErrOpeningStockExists indicates opening stock was already recorded.
	ErrOpeningStockExists = errors.New("accounting: opening stock already recorded")
)

// Kind is the stable classification surfaced to callers.
type Kind string

const (
	KindUnbalancedEntry      Kind = "UnbalancedEntry"
	KindInvalidLedgerType    Kind = "InvalidLedgerType"
	KindEntryLocked          Kind = "EntryLocked"
	KindMissingLedgerMapping Kind = "MissingLedgerMapping"
	KindInsufficientQuantity Kind = "InsufficientQuantity"
	KindAlreadyMigrated      Kind = "AlreadyMigrated"
	KindAlreadyProcessed     Kind = "AlreadyProcessed"
	KindSequenceCollision    Kind = "SequenceCollision"
	KindNotFound             Kind = "NotFound"
	KindValidation           Kind = "Validation"
	KindForbidden            Kind = "Forbidden"
	KindPersistence          Kind = "PersistenceError"
)

// PersistenceError wraps storage failures; the surrounding transaction is rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("accounting: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence wraps err as a PersistenceError unless it already carries a domain kind.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if k := KindOf(err); k != KindPersistence {
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// KindOf classifies err. Unknown errors are persistence failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return KindPersistence
	}
	switch {
	case errors.Is(err, ErrUnbalanced):
		return KindUnbalancedEntry
	case errors.Is(err, ErrInvalidLedgerType):
		return KindInvalidLedgerType
	case errors.Is(err, ErrEntryLocked):
		return KindEntryLocked
	case errors.Is(err, ErrMappingNotFound):
		return KindMissingLedgerMapping
	case errors.Is(err, ErrInsufficientQuantity):
		return KindInsufficientQuantity
	case errors.Is(err, ErrAlreadyMigrated):
		return KindAlreadyMigrated
	case errors.Is(err, ErrAlreadyProcessed):
		return KindAlreadyProcessed
	case errors.Is(err, ErrSequenceCollision):
		return KindSequenceCollision
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrLedgerNotFound),
		errors.Is(err, ErrGroupNotFound),
		errors.Is(err, ErrJournalNotFound),
		errors.Is(err, ErrApprovalNotFound),
		errors.Is(err, ErrSourceNotFound):
		return KindNotFound
	case errors.Is(err, ErrTooFewLines),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidKind),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrNoFiscalYear),
		errors.Is(err, ErrOpeningStockExists):
		return KindValidation
	default:
		return KindPersistence
	}
}

// IsBenign reports idempotency guard trips that callers treat as no-ops.
func IsBenign(err error) bool {
	k := KindOf(err)
	return k == KindAlreadyMigrated || k == KindAlreadyProcessed
}
