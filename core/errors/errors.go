// Package errors defines the typed error taxonomy shared by every core
// component (spec §7). Callers use errors.Is/errors.As against these
// sentinels and wrapper types rather than matching on string content.
package errors

import (
	"errors"
	"fmt"
)

// Validation errors surface to the caller immediately; they never create a repair.
var (
	ErrMissingField          = errors.New("missing required field")
	ErrInvalidCurrency       = errors.New("invalid currency")
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	ErrExpressionEval        = errors.New("expression evaluation failed")
)

// Routing/Config errors.
var (
	ErrNoRouteFound   = errors.New("no route found")
	ErrNoConfigFound  = errors.New("no config found")
	ErrAmbiguousConfig = errors.New("ambiguous config")
)

// Downstream transient errors are retryable by C3.
var (
	ErrTimeout      = errors.New("timeout")
	ErrCircuitOpen  = errors.New("circuit open")
	ErrBulkheadFull = errors.New("bulkhead full")
	ErrNetwork      = errors.New("network error")
)

// Downstream terminal errors are not retryable.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountClosed     = errors.New("account closed")
)

// Business partial-failure errors always materialize a repair record.
var (
	ErrDebitOkCreditFailed   = errors.New("debit succeeded, credit failed")
	ErrDebitOkDispatchFailed = errors.New("debit succeeded, clearing dispatch failed")
	ErrAckTimeout            = errors.New("clearing acknowledgement timed out")
	ErrDebitCreditMismatch   = errors.New("debit/credit mismatch")
)

// Fraud errors.
var (
	ErrFraudRejected      = errors.New("fraud rejected")
	ErrFraudManualReview  = errors.New("fraud manual review required")
	ErrFraudUnavailable   = errors.New("fraud service unavailable")
)

// Orchestrator terminal errors.
var (
	ErrReversed    = errors.New("payment reversed")
	ErrNeedsRepair = errors.New("payment needs repair")
)

// Rejected wraps a terminal downstream rejection carrying a reason code,
// e.g. Rejected{Code: "ACCT_FROZEN"}.
type Rejected struct {
	Code string
}

func (r *Rejected) Error() string { return fmt.Sprintf("rejected: %s", r.Code) }

// NewRejected builds a *Rejected error for the given reason code.
func NewRejected(code string) error { return &Rejected{Code: code} }

// AsRejected extracts a *Rejected from err, if any.
func AsRejected(err error) (*Rejected, bool) {
	var r *Rejected
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// AmbiguousConfigErr carries the ids of the two configs that tied, so the
// caller can surface the misconfiguration to an operator.
type AmbiguousConfigErr struct {
	Kind       string
	FirstID    string
	SecondID   string
}

func (e *AmbiguousConfigErr) Error() string {
	return fmt.Sprintf("%s: ambiguous %s config between %s and %s", ErrAmbiguousConfig, e.Kind, e.FirstID, e.SecondID)
}

func (e *AmbiguousConfigErr) Unwrap() error { return ErrAmbiguousConfig }

// NeedsRepairErr carries the reason a leg needs repair attention.
type NeedsRepairErr struct {
	Reason string
}

func (e *NeedsRepairErr) Error() string { return fmt.Sprintf("%s: %s", ErrNeedsRepair, e.Reason) }
func (e *NeedsRepairErr) Unwrap() error  { return ErrNeedsRepair }

// NewNeedsRepair builds a *NeedsRepairErr for the given reason.
func NewNeedsRepair(reason string) error { return &NeedsRepairErr{Reason: reason} }

// IsRetryable reports whether err is one of the downstream-transient errors
// that C3's retry layer should treat as retryable by default.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrNetwork), errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrBulkheadFull):
		return true
	default:
		return false
	}
}
