package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ruudy-sib/corepay/core/domain"
	coreerrors "github.com/ruudy-sib/corepay/core/errors"
)

// fakeCoreBanking implements secondary.CoreBankingAdapter for testing.
type fakeCoreBanking struct {
	accounts map[string]domain.AccountInfo
}

func (f *fakeCoreBanking) GetAccountInfo(ctx context.Context, tenantID, account string) (domain.AccountInfo, error) {
	a, ok := f.accounts[account]
	if !ok {
		return domain.AccountInfo{}, errors.New("account not found")
	}
	return a, nil
}
func (f *fakeCoreBanking) ValidateAccount(ctx context.Context, tenantID, account string) error { return nil }
func (f *fakeCoreBanking) GetBalance(ctx context.Context, tenantID, account string) (domain.Money, error) {
	return domain.Money{}, nil
}
func (f *fakeCoreBanking) HasSufficientFunds(ctx context.Context, tenantID, account string, amount domain.Money) (bool, error) {
	return true, nil
}
func (f *fakeCoreBanking) ProcessDebit(ctx context.Context, legID, tenantID, account string, amount domain.Money) error {
	return nil
}
func (f *fakeCoreBanking) ProcessCredit(ctx context.Context, legID, tenantID, account string, amount domain.Money) error {
	return nil
}
func (f *fakeCoreBanking) ProcessTransfer(ctx context.Context, legID, tenantID, from, to string, amount domain.Money) error {
	return nil
}
func (f *fakeCoreBanking) HoldFunds(ctx context.Context, legID, tenantID, account string, amount domain.Money) error {
	return nil
}
func (f *fakeCoreBanking) ReleaseFunds(ctx context.Context, legID, tenantID, account string) error {
	return nil
}
func (f *fakeCoreBanking) GetTransactionStatus(ctx context.Context, legID string) (string, error) {
	return "", nil
}

// fakeRoutingRepo implements secondary.ConfigRepository for routing tests.
type fakeRoutingRepo struct {
	mappings  []domain.TenantClearingMapping
	clearing  map[string]domain.ClearingSystem
}

func (r *fakeRoutingRepo) ActiveConfigLayers(ctx context.Context, kind string, ctxKey domain.CallContext) ([]domain.ConfigLayer, error) {
	return nil, nil
}
func (r *fakeRoutingRepo) ClearingSystem(ctx context.Context, code string) (domain.ClearingSystem, error) {
	cs, ok := r.clearing[code]
	if !ok {
		return domain.ClearingSystem{}, errors.New("clearing system not found")
	}
	return cs, nil
}
func (r *fakeRoutingRepo) TenantMappings(ctx context.Context, tenantID string, paymentType domain.PaymentType, localInstrument string) ([]domain.TenantClearingMapping, error) {
	return r.mappings, nil
}
func (r *fakeRoutingRepo) PayloadMapping(ctx context.Context, tenantID, name string) (domain.PayloadMapping, error) {
	return domain.PayloadMapping{}, nil
}

func testInstruction(source domain.PaymentSource) *domain.PaymentInstruction {
	return &domain.PaymentInstruction{
		TransactionReference: "tx-1",
		TenantID:             "tenant-1",
		FromAccount:          "acct-from",
		ToAccount:            "acct-to",
		PaymentType:          domain.PaymentTypeWireDomestic,
		Source:               source,
	}
}

func TestDecide_IncomingClearing(t *testing.T) {
	d := NewDecider(&fakeCoreBanking{}, &fakeRoutingRepo{})
	route, err := d.Decide(context.Background(), testInstruction(domain.SourceClearingSystem), "pacs.008")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Type != domain.RouteIncomingClearing {
		t.Errorf("expected INCOMING_CLEARING, got %v", route.Type)
	}
}

func TestDecide_SameBank(t *testing.T) {
	bank := &fakeCoreBanking{accounts: map[string]domain.AccountInfo{
		"acct-from": {BankCode: "BANK-A"},
		"acct-to":   {BankCode: "BANK-A"},
	}}
	d := NewDecider(bank, &fakeRoutingRepo{})
	route, err := d.Decide(context.Background(), testInstruction(domain.SourceBankClient), "pacs.008")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Type != domain.RouteSameBank {
		t.Errorf("expected SAME_BANK, got %v", route.Type)
	}
}

func TestDecide_OtherBankSelectsBestMappingAndEndpoint(t *testing.T) {
	bank := &fakeCoreBanking{accounts: map[string]domain.AccountInfo{
		"acct-from": {BankCode: "BANK-A"},
		"acct-to":   {BankCode: "BANK-B"},
	}}
	repo := &fakeRoutingRepo{
		mappings: []domain.TenantClearingMapping{
			{TenantID: "tenant-1", PaymentType: domain.PaymentTypeWireDomestic, ClearingSystemCode: "FEDWIRE", Priority: 5, Active: true},
		},
		clearing: map[string]domain.ClearingSystem{
			"FEDWIRE": {
				Code:           "FEDWIRE",
				ProcessingMode: domain.ProcessingSync,
				Endpoints: []domain.Endpoint{
					{ClearingSystemCode: "FEDWIRE", Name: "primary", Type: domain.EndpointSync, MessageType: "pacs.008", Priority: 2, Active: true},
					{ClearingSystemCode: "FEDWIRE", Name: "backup", Type: domain.EndpointSync, MessageType: "pacs.008", Priority: 1, Active: true},
				},
			},
		},
	}
	d := NewDecider(bank, repo)
	route, err := d.Decide(context.Background(), testInstruction(domain.SourceBankClient), "pacs.008")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Type != domain.RouteOtherBank {
		t.Fatalf("expected OTHER_BANK, got %v", route.Type)
	}
	if route.Endpoint == nil || route.Endpoint.Name != "backup" {
		t.Errorf("expected lowest-priority endpoint 'backup' to win the tie, got %+v", route.Endpoint)
	}
}

func TestDecide_OtherBankAckTimeoutPrefersEndpointOverClearingSystemDefault(t *testing.T) {
	bank := &fakeCoreBanking{accounts: map[string]domain.AccountInfo{
		"acct-from": {BankCode: "BANK-A"},
		"acct-to":   {BankCode: "BANK-B"},
	}}
	repo := &fakeRoutingRepo{
		mappings: []domain.TenantClearingMapping{
			{TenantID: "tenant-1", PaymentType: domain.PaymentTypeWireDomestic, ClearingSystemCode: "FEDWIRE", Active: true},
		},
		clearing: map[string]domain.ClearingSystem{
			"FEDWIRE": {
				Code:           "FEDWIRE",
				ProcessingMode: domain.ProcessingSync,
				DefaultTimeout: 30 * time.Second,
				Endpoints: []domain.Endpoint{
					{ClearingSystemCode: "FEDWIRE", Name: "primary", Type: domain.EndpointSync, MessageType: "pacs.008", Active: true, Timeout: 60 * time.Second},
				},
			},
		},
	}
	d := NewDecider(bank, repo)
	route, err := d.Decide(context.Background(), testInstruction(domain.SourceBankClient), "pacs.008")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.AckTimeout != 60*time.Second {
		t.Errorf("expected the endpoint's own timeout to win, got %v", route.AckTimeout)
	}
}

func TestDecide_OtherBankAckTimeoutFallsBackToClearingSystemDefault(t *testing.T) {
	bank := &fakeCoreBanking{accounts: map[string]domain.AccountInfo{
		"acct-from": {BankCode: "BANK-A"},
		"acct-to":   {BankCode: "BANK-B"},
	}}
	repo := &fakeRoutingRepo{
		mappings: []domain.TenantClearingMapping{
			{TenantID: "tenant-1", PaymentType: domain.PaymentTypeWireDomestic, ClearingSystemCode: "FEDWIRE", Active: true},
		},
		clearing: map[string]domain.ClearingSystem{
			"FEDWIRE": {
				Code:           "FEDWIRE",
				ProcessingMode: domain.ProcessingSync,
				DefaultTimeout: 30 * time.Second,
				Endpoints: []domain.Endpoint{
					{ClearingSystemCode: "FEDWIRE", Name: "primary", Type: domain.EndpointSync, MessageType: "pacs.008", Active: true},
				},
			},
		},
	}
	d := NewDecider(bank, repo)
	route, err := d.Decide(context.Background(), testInstruction(domain.SourceBankClient), "pacs.008")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.AckTimeout != 30*time.Second {
		t.Errorf("expected the clearing system's default timeout, got %v", route.AckTimeout)
	}
}

func TestDecide_NoRouteFoundWhenNoMapping(t *testing.T) {
	bank := &fakeCoreBanking{accounts: map[string]domain.AccountInfo{
		"acct-from": {BankCode: "BANK-A"},
		"acct-to":   {BankCode: "BANK-B"},
	}}
	d := NewDecider(bank, &fakeRoutingRepo{})
	_, err := d.Decide(context.Background(), testInstruction(domain.SourceBankClient), "pacs.008")
	if !errors.Is(err, coreerrors.ErrNoRouteFound) {
		t.Fatalf("expected NoRouteFound, got %v", err)
	}
}

func TestDecide_UnsupportedMessageType(t *testing.T) {
	bank := &fakeCoreBanking{accounts: map[string]domain.AccountInfo{
		"acct-from": {BankCode: "BANK-A"},
		"acct-to":   {BankCode: "BANK-B"},
	}}
	repo := &fakeRoutingRepo{
		mappings: []domain.TenantClearingMapping{
			{TenantID: "tenant-1", PaymentType: domain.PaymentTypeWireDomestic, ClearingSystemCode: "FEDWIRE", Active: true},
		},
		clearing: map[string]domain.ClearingSystem{
			"FEDWIRE": {Code: "FEDWIRE", ProcessingMode: domain.ProcessingSync},
		},
	}
	d := NewDecider(bank, repo)
	_, err := d.Decide(context.Background(), testInstruction(domain.SourceBankClient), "pacs.008")
	if !errors.Is(err, coreerrors.ErrUnsupportedMessageType) {
		t.Fatalf("expected UnsupportedMessageType, got %v", err)
	}
}
