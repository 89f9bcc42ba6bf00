// Package primary defines the driving ports of the core: the operations
// external callers (HTTP/gRPC transports, which are out of scope per spec
// §1, webhooks, CLIs) invoke against the core.
package primary

import (
	"context"

	"github.com/ruudy-sib/corepay/core/domain"
)

// PaymentService is the primary port for inbound payment intake (spec §6).
type PaymentService interface {
	// SubmitPayment accepts a PaymentInstruction from a bank client and
	// drives it through the full orchestrator state machine.
	SubmitPayment(ctx context.Context, instruction *domain.PaymentInstruction) (domain.Outcome, error)

	// HandleClearingMessage accepts an inbound ISO 20022 message from a
	// clearing system (pacs.008, pacs.002, ...) identified by messageType
	// and clearingSystemCode, with the raw opaque payload and any
	// signature material needed for authenticity verification.
	HandleClearingMessage(ctx context.Context, clearingSystemCode, messageType string, payload []byte, sig []byte) (domain.Outcome, error)
}

// RepairOperator is the primary port operators use to drive repair recovery.
type RepairOperator interface {
	PickNextBatch(ctx context.Context, tenantID string, limit int) ([]domain.RepairRecord, error)
	Apply(ctx context.Context, rec *domain.RepairRecord, action domain.CorrectiveAction) error
	Sweep(ctx context.Context) error
}
