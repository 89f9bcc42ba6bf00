package service

import (
	"testing"

	"github.com/ruudy-sib/corepay/core/domain"
)

func validInstruction() *domain.PaymentInstruction {
	return &domain.PaymentInstruction{
		TransactionReference: "tx-1",
		TenantID:             "tenant-1",
		FromAccount:          "acct-from",
		ToAccount:            "acct-to",
		Amount:               domain.Money{Minor: 100, Scale: 2, Currency: "USD"},
		PaymentType:          domain.PaymentTypeWireDomestic,
	}
}

func TestValidateSubmission_AcceptsCompleteInstruction(t *testing.T) {
	if err := validateSubmission(validInstruction()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateSubmission_RejectsBadCurrencyLength(t *testing.T) {
	instr := validInstruction()
	instr.Amount.Currency = "US"
	if err := validateSubmission(instr); err == nil {
		t.Error("expected an error for a non-ISO-4217-length currency code")
	}
}

func TestValidateInboundCredit_AllowsMissingFromAccount(t *testing.T) {
	instr := validInstruction()
	instr.FromAccount = ""
	if err := validateInboundCredit(instr); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateInboundCredit_RejectsMissingToAccount(t *testing.T) {
	instr := validInstruction()
	instr.ToAccount = ""
	if err := validateInboundCredit(instr); err == nil {
		t.Error("expected an error for a missing to_account")
	}
}
