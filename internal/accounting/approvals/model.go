package approvals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
)

// Status enumerates approval lifecycle values. APPROVED and REJECTED are terminal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Outcome is what SubmitPayment did with the voucher.
type Outcome string

const (
	OutcomePosted  Outcome = "POSTED"
	OutcomePending Outcome = "PENDING"
)

// Approval is a shadow entry waiting for a privileged decision.
type Approval struct {
	ID          int64
	Ref         uuid.UUID
	Kind        journals.Kind
	Date        time.Time
	FundID      int64
	Narration   string
	Payment     journals.PaymentMeta
	Total       decimal.Decimal
	Status      Status
	SubmittedBy int64
	ApprovedBy  *int64
	ApprovedAt  *time.Time
	Notes       string
	EntryID     *int64
	CreatedAt   time.Time
	Lines       []Line
}

// Line mirrors an entry line.
type Line struct {
	ID         int64
	LedgerID   int64
	Amount     decimal.Decimal
	Side       journals.Side
	Details    string
	IsDiscount bool
}

// SubmitInput describes a payment voucher.
type SubmitInput struct {
	Date      time.Time
	FundID    int64
	Narration string
	Payment   journals.PaymentMeta
	Lines     []journals.LineInput
	ActorID   int64
}

// SubmitResult reports the outcome. Entry is set for POSTED, Approval for PENDING.
type SubmitResult struct {
	Status   Outcome
	Entry    *journals.Entry
	Approval *Approval
}

func (a Approval) lineInputs() []journals.LineInput {
	out := make([]journals.LineInput, 0, len(a.Lines))
	for _, l := range a.Lines {
		out = append(out, journals.LineInput{LedgerID: l.LedgerID, Amount: l.Amount, Side: l.Side, Details: l.Details, IsDiscount: l.IsDiscount})
	}
	return out
}
