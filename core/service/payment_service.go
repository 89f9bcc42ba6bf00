// Package service adapts the core's internal components (C1-C7) to the
// driving ports of core/port/primary, the way the teacher's domain/service
// package adapts its scheduler+producer pair to primary.TaskService.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ruudy-sib/corepay/core/domain"
	"github.com/ruudy-sib/corepay/core/mapping"
	"github.com/ruudy-sib/corepay/core/orchestrator"
	"github.com/ruudy-sib/corepay/core/port/primary"
	"github.com/ruudy-sib/corepay/core/port/secondary"
)

// outboundMessageType is the ISO 20022 message an originated payment is
// carried in when it leaves this bank for another (spec §4.5 endpoint
// selection keys off this).
const outboundMessageType = "pacs.008"

// ConfigResolver is the narrow slice of C1 this service needs to build the
// inbound-mapping lookup key for HandleClearingMessage.
type ConfigResolver interface {
	Resolve(ctx context.Context, callCtx domain.CallContext) (domain.ResolvedConfig, error)
}

// IDGenerator mints the transaction_reference for inbound clearing
// messages, which never carry one of their own.
type IDGenerator interface {
	UUID() string
}

// PaymentService implements primary.PaymentService over an Orchestrator.
type PaymentService struct {
	orchestrator *orchestrator.Orchestrator
	config       ConfigResolver
	transformer  *mapping.Transformer
	idgen        IDGenerator
	clock        secondary.Clock
}

// NewPaymentService builds a PaymentService.
func NewPaymentService(orch *orchestrator.Orchestrator, config ConfigResolver, transformer *mapping.Transformer, idgen IDGenerator, clock secondary.Clock) *PaymentService {
	return &PaymentService{orchestrator: orch, config: config, transformer: transformer, idgen: idgen, clock: clock}
}

// SubmitPayment drives a bank-client-originated instruction through the
// orchestrator as an outbound pacs.008 (spec §6).
func (s *PaymentService) SubmitPayment(ctx context.Context, instruction *domain.PaymentInstruction) (domain.Outcome, error) {
	if instruction.Source == "" {
		instruction.Source = domain.SourceBankClient
	}
	if instruction.CreatedAt.IsZero() {
		instruction.CreatedAt = s.now()
	}
	if err := validateSubmission(instruction); err != nil {
		return domain.Outcome{}, err
	}
	return s.orchestrator.Process(ctx, instruction, outboundMessageType)
}

// HandleClearingMessage decodes an inbound ISO 20022 payload using the
// tenant's configured inbound PayloadMapping, builds the resulting
// PaymentInstruction, and drives it through the orchestrator as an
// INCOMING_CLEARING credit (spec §4.2/§4.5/§4.6).
//
// Signature verification of sig is left to the transport adapter that
// terminates the webhook/connection (spec §6 names clearing-webhook
// authenticity as an adapter concern, not a core one); this method trusts
// that payload has already been authenticated by its caller.
func (s *PaymentService) HandleClearingMessage(ctx context.Context, clearingSystemCode, messageType string, payload []byte, sig []byte) (domain.Outcome, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return domain.Outcome{}, fmt.Errorf("decoding inbound %s payload: %w", messageType, err)
	}

	tenantID, _ := raw["tenant_id"].(string)
	now := s.now()

	resolved, err := s.config.Resolve(ctx, domain.CallContext{
		TenantID:  tenantID,
		Direction: string(domain.DirectionRequest),
		Endpoint:  clearingSystemCode + ":" + messageType,
		Now:       now,
	})
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("resolving inbound mapping for %s/%s: %w", clearingSystemCode, messageType, err)
	}

	fields := raw
	if resolved.Mapping != nil {
		fields, err = s.transformer.Transform(*resolved.Mapping, domain.DirectionRequest, raw)
		if err != nil {
			return domain.Outcome{}, fmt.Errorf("transforming inbound %s payload: %w", messageType, err)
		}
	}

	instr, err := instructionFromFields(fields, tenantID, clearingSystemCode, payload, now, s.idgen)
	if err != nil {
		return domain.Outcome{}, err
	}
	instr.Source = domain.SourceClearingSystem

	if err := validateInboundCredit(instr); err != nil {
		return domain.Outcome{}, err
	}

	return s.orchestrator.Process(ctx, instr, messageType)
}

func (s *PaymentService) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now()
}

func instructionFromFields(fields map[string]any, tenantID, clearingSystemCode string, originalPayload []byte, now time.Time, idgen IDGenerator) (*domain.PaymentInstruction, error) {
	txRef, _ := fields["transaction_reference"].(string)
	if txRef == "" {
		txRef = idgen.UUID()
	}

	amount, err := amountFromFields(fields)
	if err != nil {
		return nil, err
	}

	instr := &domain.PaymentInstruction{
		TransactionReference: txRef,
		TenantID:             tenantID,
		FromAccount:          stringField(fields, "from_account"),
		ToAccount:            stringField(fields, "to_account"),
		Amount:               amount,
		PaymentType:          domain.PaymentType(stringField(fields, "payment_type")),
		LocalInstrument:      stringField(fields, "local_instrument"),
		ChargeBearer:         stringField(fields, "charge_bearer"),
		RemittanceInfo:       stringField(fields, "remittance_info"),
		CorrelationID:        stringField(fields, "correlation_id"),
		OriginalPayload:      originalPayload,
		CreatedAt:            now,
	}
	if instr.TenantID == "" {
		instr.TenantID = tenantID
	}
	_ = clearingSystemCode
	return instr, nil
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func amountFromFields(fields map[string]any) (domain.Money, error) {
	currency := stringField(fields, "currency")
	scale := 2
	if s, ok := fields["scale"].(float64); ok {
		scale = int(s)
	}
	switch v := fields["amount_minor"].(type) {
	case float64:
		return domain.Money{Currency: currency, Scale: scale, Minor: int64(v)}, nil
	case string:
		var minor int64
		if _, err := fmt.Sscanf(v, "%d", &minor); err != nil {
			return domain.Money{}, fmt.Errorf("parsing amount_minor %q: %w", v, err)
		}
		return domain.Money{Currency: currency, Scale: scale, Minor: minor}, nil
	default:
		return domain.Money{}, fmt.Errorf("missing or unreadable amount_minor field")
	}
}

var _ primary.PaymentService = (*PaymentService)(nil)
