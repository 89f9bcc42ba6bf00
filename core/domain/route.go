package domain

import "time"

// RouteType classifies how a payment must be executed (spec §4.5).
type RouteType string

const (
	RouteSameBank         RouteType = "SAME_BANK"
	RouteOtherBank        RouteType = "OTHER_BANK"
	RouteIncomingClearing RouteType = "INCOMING_CLEARING"
)

// Route is the output of C5.Decide.
type Route struct {
	Type               RouteType
	ClearingSystemCode string
	Endpoint           *Endpoint
	ProcessingMode     ProcessingMode
	MessageFormat      string

	// AckTimeout is the configured window C6 waits for a clearing ack
	// before opening a CREDIT_TIMEOUT repair: the selected Endpoint's own
	// timeout, falling back to the clearing system's DefaultTimeout. Zero
	// for routes that never dispatch to a clearing system.
	AckTimeout time.Duration
}

// OrchestratorState enumerates the payment state machine's states (spec §4.6).
type OrchestratorState string

const (
	StateCreated              OrchestratorState = "CREATED"
	StateFraudCheck            OrchestratorState = "FRAUD_CHECK"
	StateRouted                OrchestratorState = "ROUTED"
	StateDebit                 OrchestratorState = "DEBIT"
	StateCredit                OrchestratorState = "CREDIT"
	StateDispatchClearing      OrchestratorState = "DISPATCH_CLEARING"
	StateCompletedPendingAck   OrchestratorState = "COMPLETED_PENDING_ACK"
	StateReversalRequired      OrchestratorState = "REVERSAL_REQUIRED"
	StateRepair                OrchestratorState = "REPAIR"
	StateCompleted             OrchestratorState = "COMPLETED"
	StateFailed                OrchestratorState = "FAILED"
)

// OutcomeStatus is the caller-visible result of Process (spec §7).
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "COMPLETED"
	OutcomeRejected  OutcomeStatus = "REJECTED"
	OutcomePending   OutcomeStatus = "PENDING"
	OutcomeFailed    OutcomeStatus = "FAILED"
)

// Outcome is what SubmitPayment / Process return to the caller.
type Outcome struct {
	Status               OutcomeStatus
	State                OrchestratorState
	TransactionReference string
	RejectCode           string
	RepairID             string
	FailReason           string
}
