package service

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/ruudy-sib/corepay/core/domain"
)

// validate is a package-level validator instance, safe for concurrent use
// once built (per go-playground/validator's own documented contract).
var validate = validator.New()

// instructionDTO mirrors the caller-facing subset of PaymentInstruction
// that SubmitPayment and HandleClearingMessage must validate at the
// boundary before it enters the orchestrator (spec §6 names this a
// transport/adapter-layer concern, kept out of core/domain itself so the
// domain model carries no validator-library struct tags).
type instructionDTO struct {
	TransactionReference string `validate:"required"`
	TenantID             string `validate:"required"`
	FromAccount          string `validate:"omitempty"`
	ToAccount            string `validate:"required"`
	Currency             string `validate:"required,len=3"`
	AmountMinor          int64  `validate:"gt=0"`
	PaymentType          string `validate:"required"`
}

func toInstructionDTO(instr *domain.PaymentInstruction) instructionDTO {
	return instructionDTO{
		TransactionReference: instr.TransactionReference,
		TenantID:             instr.TenantID,
		FromAccount:          instr.FromAccount,
		ToAccount:            instr.ToAccount,
		Currency:             instr.Amount.Currency,
		AmountMinor:          instr.Amount.Minor,
		PaymentType:          string(instr.PaymentType),
	}
}

// validateSubmission enforces the full field set for a bank-client-
// originated instruction (spec §6): both legs of the transfer must be
// identified before it reaches the orchestrator.
func validateSubmission(instr *domain.PaymentInstruction) error {
	dto := toInstructionDTO(instr)
	if err := validate.Var(dto.FromAccount, "required"); err != nil {
		return fmt.Errorf("invalid payment instruction: from_account is required")
	}
	if err := validate.Struct(dto); err != nil {
		return fmt.Errorf("invalid payment instruction: %w", err)
	}
	return nil
}

// validateInboundCredit enforces only the fields an INCOMING_CLEARING
// credit must carry; a clearing message's originator account is
// informational and not always present in the wire payload.
func validateInboundCredit(instr *domain.PaymentInstruction) error {
	if err := validate.Struct(toInstructionDTO(instr)); err != nil {
		return fmt.Errorf("invalid inbound clearing instruction: %w", err)
	}
	return nil
}
