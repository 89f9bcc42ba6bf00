package domain

import "time"

// RepairType classifies why a RepairRecord exists (spec §3).
type RepairType string

const (
	RepairDebitFailed         RepairType = "DEBIT_FAILED"
	RepairCreditFailed        RepairType = "CREDIT_FAILED"
	RepairDebitTimeout        RepairType = "DEBIT_TIMEOUT"
	RepairCreditTimeout       RepairType = "CREDIT_TIMEOUT"
	RepairDebitCreditMismatch RepairType = "DEBIT_CREDIT_MISMATCH"
	RepairPartialSuccess      RepairType = "PARTIAL_SUCCESS"
	RepairSystemError         RepairType = "SYSTEM_ERROR"
	RepairManualReview        RepairType = "MANUAL_REVIEW"
)

// RepairStatus is the lifecycle state of a RepairRecord.
type RepairStatus string

const (
	RepairPending    RepairStatus = "PENDING"
	RepairAssigned   RepairStatus = "ASSIGNED"
	RepairInProgress RepairStatus = "IN_PROGRESS"
	RepairResolved   RepairStatus = "RESOLVED"
	RepairFailed     RepairStatus = "FAILED"
	RepairCancelled  RepairStatus = "CANCELLED"
)

// IsTerminal reports whether status is one PickNextBatch will never select.
func (s RepairStatus) IsTerminal() bool {
	return s == RepairResolved || s == RepairCancelled
}

// LegStatus tracks the state of one leg (debit or credit) of a payment.
type LegStatus string

const (
	LegNotStarted LegStatus = "NOT_STARTED"
	LegSucceeded  LegStatus = "SUCCEEDED"
	LegFailed     LegStatus = "FAILED"
	LegTimedOut   LegStatus = "TIMED_OUT"
	LegReversed   LegStatus = "REVERSED"
)

// CorrectiveAction is the operator- or engine-chosen action applied to a
// RepairRecord (spec §4.7).
type CorrectiveAction string

const (
	ActionRetryDebit         CorrectiveAction = "RETRY_DEBIT"
	ActionRetryCredit        CorrectiveAction = "RETRY_CREDIT"
	ActionRetryBoth          CorrectiveAction = "RETRY_BOTH"
	ActionReverseDebit       CorrectiveAction = "REVERSE_DEBIT"
	ActionReverseCredit      CorrectiveAction = "REVERSE_CREDIT"
	ActionReverseBoth        CorrectiveAction = "REVERSE_BOTH"
	ActionManualCredit       CorrectiveAction = "MANUAL_CREDIT"
	ActionManualDebit        CorrectiveAction = "MANUAL_DEBIT"
	ActionManualBoth         CorrectiveAction = "MANUAL_BOTH"
	ActionCancelTransaction  CorrectiveAction = "CANCEL_TRANSACTION"
	ActionEscalate           CorrectiveAction = "ESCALATE"
	ActionNoAction           CorrectiveAction = "NO_ACTION"
)

// RepairRecord is the durable record of a payment whose legs left the
// system in an inconsistent or ambiguous state. Identity is
// (TransactionReference, TenantID).
type RepairRecord struct {
	TransactionReference string
	TenantID             string
	RepairType           RepairType
	RepairStatus         RepairStatus
	DebitStatus          LegStatus
	CreditStatus         LegStatus
	DebitLegID           string
	CreditLegID          string
	FromAccount          string
	ToAccount            string
	Amount               Money
	RetryCount           int
	MaxRetries           int
	NextRetryAt          time.Time
	TimeoutAt            *time.Time
	Priority             int
	CorrectiveAction     CorrectiveAction
	ResolutionNotes      string
	ResolvedAt           *time.Time
	ResolvedBy           string
	CreatedAt            time.Time
	ClaimToken           string
}

// CanPick reports whether PickNextBatch may select this record (spec §4.7).
func (r RepairRecord) CanPick(now time.Time) bool {
	return r.RepairStatus == RepairPending && r.RetryCount < r.MaxRetries && !r.NextRetryAt.After(now)
}
