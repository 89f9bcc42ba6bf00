package domain

import "time"

// PaymentSource identifies where an instruction originated.
type PaymentSource string

const (
	SourceBankClient     PaymentSource = "BANK_CLIENT"
	SourceClearingSystem PaymentSource = "CLEARING_SYSTEM"
)

// PaymentType classifies the kind of payment being made.
type PaymentType string

const (
	PaymentTypeWireDomestic PaymentType = "WIRE_DOMESTIC"
	PaymentTypeSEPACredit   PaymentType = "SEPA_CREDIT"
	PaymentTypeRTP          PaymentType = "RTP"
)

// PaymentInstruction is the immutable record of a single payment to execute.
// Identity is TransactionReference, unique per tenant.
type PaymentInstruction struct {
	TransactionReference string
	TenantID             string
	FromAccount          string
	ToAccount            string
	Amount               Money
	PaymentType          PaymentType
	LocalInstrument      string
	ChargeBearer         string
	ValueDate            time.Time
	RemittanceInfo       string
	CorrelationID        string
	Source               PaymentSource
	OriginalPayload      []byte
	CreatedAt            time.Time
}

// LegID returns the deterministic idempotency key for a leg of this
// instruction's execution (spec §4.6): "<transaction_reference>-<suffix>".
// Downstream adapters must treat a repeated LegID as a lookup, never a
// re-execution, which is what makes the orchestrator state machine
// re-entrant after a crash.
func (p *PaymentInstruction) LegID(suffix string) string {
	return p.TransactionReference + "-" + suffix
}

const (
	LegDebit    = "DEBIT"
	LegCredit   = "CREDIT"
	LegRollback = "ROLLBACK"
	LegDispatch = "DISPATCH"
)

// AccountInfo is what the core-banking adapter returns for an account.
type AccountInfo struct {
	AccountNumber string
	BankCode      string
	TenantID      string
	Currency      string
}
