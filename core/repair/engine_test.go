package repair

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/core/domain"
)

type fakeRepairStore struct {
	records      map[string]*domain.RepairRecord
	createCalls  int
	updateCalls  int
	dueForSweep  []domain.RepairRecord
	pickBatch    []domain.RepairRecord
}

func newFakeRepairStore() *fakeRepairStore {
	return &fakeRepairStore{records: make(map[string]*domain.RepairRecord)}
}

func (s *fakeRepairStore) Create(ctx context.Context, rec *domain.RepairRecord) error {
	s.createCalls++
	s.records[rec.TransactionReference] = rec
	return nil
}

func (s *fakeRepairStore) Get(ctx context.Context, txRef, tenantID string) (domain.RepairRecord, error) {
	r, ok := s.records[txRef]
	if !ok {
		return domain.RepairRecord{}, errors.New("not found")
	}
	return *r, nil
}

func (s *fakeRepairStore) PickNextBatch(ctx context.Context, tenantID string, limit int) ([]domain.RepairRecord, error) {
	return s.pickBatch, nil
}

func (s *fakeRepairStore) Update(ctx context.Context, rec *domain.RepairRecord) error {
	s.updateCalls++
	cp := *rec
	s.records[rec.TransactionReference] = &cp
	return nil
}

func (s *fakeRepairStore) DueForTimeout(ctx context.Context, now time.Time) ([]domain.RepairRecord, error) {
	return s.dueForSweep, nil
}

// bankCall records one ProcessDebit/ProcessCredit invocation so tests can
// assert the engine resolved a real account and amount rather than the
// zero value.
type bankCall struct {
	legID, tenantID, account string
	amount                   domain.Money
}

type fakeBankAdapter struct {
	debitErr  error
	creditErr error

	debitCalls  []bankCall
	creditCalls []bankCall
}

func (f *fakeBankAdapter) GetAccountInfo(ctx context.Context, tenantID, account string) (domain.AccountInfo, error) {
	return domain.AccountInfo{}, nil
}
func (f *fakeBankAdapter) ValidateAccount(ctx context.Context, tenantID, account string) error { return nil }
func (f *fakeBankAdapter) GetBalance(ctx context.Context, tenantID, account string) (domain.Money, error) {
	return domain.Money{}, nil
}
func (f *fakeBankAdapter) HasSufficientFunds(ctx context.Context, tenantID, account string, amount domain.Money) (bool, error) {
	return true, nil
}
func (f *fakeBankAdapter) ProcessDebit(ctx context.Context, legID, tenantID, account string, amount domain.Money) error {
	f.debitCalls = append(f.debitCalls, bankCall{legID, tenantID, account, amount})
	return f.debitErr
}
func (f *fakeBankAdapter) ProcessCredit(ctx context.Context, legID, tenantID, account string, amount domain.Money) error {
	f.creditCalls = append(f.creditCalls, bankCall{legID, tenantID, account, amount})
	return f.creditErr
}
func (f *fakeBankAdapter) ProcessTransfer(ctx context.Context, legID, tenantID, from, to string, amount domain.Money) error {
	return nil
}
func (f *fakeBankAdapter) HoldFunds(ctx context.Context, legID, tenantID, account string, amount domain.Money) error {
	return nil
}
func (f *fakeBankAdapter) ReleaseFunds(ctx context.Context, legID, tenantID, account string) error {
	return nil
}
func (f *fakeBankAdapter) GetTransactionStatus(ctx context.Context, legID string) (string, error) {
	return "", nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func testBackoff() Backoff {
	return Backoff{BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Hour, JitterPercent: 0.1}
}

func TestApply_SuccessfulRetryResolves(t *testing.T) {
	store := newFakeRepairStore()
	bank := &fakeBankAdapter{}
	e := NewEngine(store, bank, fixedClock{t: time.Unix(1000, 0)}, testBackoff(), zap.NewNop())

	rec := &domain.RepairRecord{
		TransactionReference: "tx-1",
		RepairType:           domain.RepairDebitFailed,
		MaxRetries:           5,
		DebitLegID:           "leg-debit-1",
		TenantID:             "tenant-1",
		FromAccount:          "acct-from-1",
		Amount:               domain.Money{Minor: 1000, Scale: 2, Currency: "USD"},
	}
	if err := e.Apply(context.Background(), rec, domain.ActionRetryDebit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.RepairStatus != domain.RepairResolved {
		t.Errorf("expected RESOLVED, got %v", rec.RepairStatus)
	}
	if rec.ResolvedAt == nil || rec.ResolvedBy == "" {
		t.Errorf("expected resolved_at/resolved_by to be set")
	}
	if len(bank.debitCalls) != 1 {
		t.Fatalf("expected one ProcessDebit call, got %d", len(bank.debitCalls))
	}
	got := bank.debitCalls[0]
	want := bankCall{legID: "leg-debit-1", tenantID: "tenant-1", account: "acct-from-1", amount: rec.Amount}
	if got != want {
		t.Errorf("ProcessDebit called with %+v, want %+v", got, want)
	}
	if len(bank.creditCalls) != 0 {
		t.Errorf("expected no ProcessCredit call for RETRY_DEBIT, got %d", len(bank.creditCalls))
	}
}

func TestApply_RetryCreditUsesCreditLegAndToAccount(t *testing.T) {
	store := newFakeRepairStore()
	bank := &fakeBankAdapter{}
	e := NewEngine(store, bank, fixedClock{t: time.Unix(1000, 0)}, testBackoff(), zap.NewNop())

	rec := &domain.RepairRecord{
		TransactionReference: "tx-1b",
		RepairType:           domain.RepairCreditFailed,
		MaxRetries:           5,
		CreditLegID:          "leg-credit-1",
		TenantID:             "tenant-1",
		ToAccount:            "acct-to-1",
		Amount:               domain.Money{Minor: 500, Scale: 2, Currency: "USD"},
	}
	if err := e.Apply(context.Background(), rec, domain.ActionRetryCredit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bank.creditCalls) != 1 {
		t.Fatalf("expected one ProcessCredit call, got %d", len(bank.creditCalls))
	}
	got := bank.creditCalls[0]
	want := bankCall{legID: "leg-credit-1", tenantID: "tenant-1", account: "acct-to-1", amount: rec.Amount}
	if got != want {
		t.Errorf("ProcessCredit called with %+v, want %+v", got, want)
	}
	if len(bank.debitCalls) != 0 {
		t.Errorf("expected no ProcessDebit call for RETRY_CREDIT, got %d", len(bank.debitCalls))
	}
}

func TestApply_RetryBothDrivesBothLegs(t *testing.T) {
	store := newFakeRepairStore()
	bank := &fakeBankAdapter{}
	e := NewEngine(store, bank, fixedClock{t: time.Unix(1000, 0)}, testBackoff(), zap.NewNop())

	rec := &domain.RepairRecord{
		TransactionReference: "tx-1c",
		RepairType:           domain.RepairPartialSuccess,
		MaxRetries:           5,
		DebitLegID:           "leg-debit-2",
		CreditLegID:          "leg-credit-2",
		TenantID:             "tenant-1",
		FromAccount:          "acct-from-2",
		ToAccount:            "acct-to-2",
		Amount:               domain.Money{Minor: 750, Scale: 2, Currency: "USD"},
	}
	if err := e.Apply(context.Background(), rec, domain.ActionRetryBoth); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bank.debitCalls) != 1 || bank.debitCalls[0].account != "acct-from-2" {
		t.Errorf("expected ProcessDebit against acct-from-2, got %+v", bank.debitCalls)
	}
	if len(bank.creditCalls) != 1 || bank.creditCalls[0].account != "acct-to-2" {
		t.Errorf("expected ProcessCredit against acct-to-2, got %+v", bank.creditCalls)
	}
}

func TestApply_ReverseDebitCreditsBackOriginatingAccount(t *testing.T) {
	store := newFakeRepairStore()
	bank := &fakeBankAdapter{}
	e := NewEngine(store, bank, fixedClock{t: time.Unix(1000, 0)}, testBackoff(), zap.NewNop())

	rec := &domain.RepairRecord{
		TransactionReference: "tx-2a",
		RepairType:           domain.RepairCreditFailed,
		MaxRetries:           5,
		DebitLegID:           "leg-debit-3",
		TenantID:             "tenant-1",
		FromAccount:          "acct-from-3",
		Amount:               domain.Money{Minor: 250, Scale: 2, Currency: "USD"},
	}
	if err := e.Apply(context.Background(), rec, domain.ActionReverseDebit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bank.creditCalls) != 1 {
		t.Fatalf("expected the reversal to credit the originating account, got %d calls", len(bank.creditCalls))
	}
	got := bank.creditCalls[0]
	want := bankCall{legID: "leg-debit-3", tenantID: "tenant-1", account: "acct-from-3", amount: rec.Amount}
	if got != want {
		t.Errorf("reversal credit called with %+v, want %+v", got, want)
	}
	if len(bank.debitCalls) != 0 {
		t.Errorf("expected no ProcessDebit call for REVERSE_DEBIT, got %d", len(bank.debitCalls))
	}
	if rec.DebitStatus != domain.LegReversed {
		t.Errorf("expected debit_status REVERSED, got %v", rec.DebitStatus)
	}
}

func TestApply_ReverseCreditDebitsBackReceivingAccount(t *testing.T) {
	store := newFakeRepairStore()
	bank := &fakeBankAdapter{}
	e := NewEngine(store, bank, fixedClock{t: time.Unix(1000, 0)}, testBackoff(), zap.NewNop())

	rec := &domain.RepairRecord{
		TransactionReference: "tx-2b",
		RepairType:           domain.RepairDebitFailed,
		MaxRetries:           5,
		CreditLegID:          "leg-credit-3",
		TenantID:             "tenant-1",
		ToAccount:            "acct-to-3",
		Amount:               domain.Money{Minor: 125, Scale: 2, Currency: "USD"},
	}
	if err := e.Apply(context.Background(), rec, domain.ActionReverseCredit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bank.debitCalls) != 1 {
		t.Fatalf("expected the reversal to debit the receiving account, got %d calls", len(bank.debitCalls))
	}
	got := bank.debitCalls[0]
	want := bankCall{legID: "leg-credit-3", tenantID: "tenant-1", account: "acct-to-3", amount: rec.Amount}
	if got != want {
		t.Errorf("reversal debit called with %+v, want %+v", got, want)
	}
	if rec.CreditStatus != domain.LegReversed {
		t.Errorf("expected credit_status REVERSED, got %v", rec.CreditStatus)
	}
}

func TestApply_ReverseBothUnwindsBothLegsInOrder(t *testing.T) {
	store := newFakeRepairStore()
	bank := &fakeBankAdapter{}
	e := NewEngine(store, bank, fixedClock{t: time.Unix(1000, 0)}, testBackoff(), zap.NewNop())

	rec := &domain.RepairRecord{
		TransactionReference: "tx-2c",
		RepairType:           domain.RepairDebitCreditMismatch,
		MaxRetries:           5,
		DebitLegID:           "leg-debit-4",
		CreditLegID:          "leg-credit-4",
		TenantID:             "tenant-1",
		FromAccount:          "acct-from-4",
		ToAccount:            "acct-to-4",
		Amount:               domain.Money{Minor: 900, Scale: 2, Currency: "USD"},
	}
	if err := e.Apply(context.Background(), rec, domain.ActionReverseBoth); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bank.creditCalls) != 1 || bank.creditCalls[0].account != "acct-from-4" {
		t.Errorf("expected the debit leg reversed via ProcessCredit to acct-from-4, got %+v", bank.creditCalls)
	}
	if len(bank.debitCalls) != 1 || bank.debitCalls[0].account != "acct-to-4" {
		t.Errorf("expected the credit leg reversed via ProcessDebit to acct-to-4, got %+v", bank.debitCalls)
	}
	if rec.DebitStatus != domain.LegReversed || rec.CreditStatus != domain.LegReversed {
		t.Errorf("expected both legs REVERSED, got debit=%v credit=%v", rec.DebitStatus, rec.CreditStatus)
	}
}

func TestApply_ReverseBothStopsAfterFirstLegFailure(t *testing.T) {
	store := newFakeRepairStore()
	bank := &fakeBankAdapter{creditErr: errors.New("ledger unavailable")}
	e := NewEngine(store, bank, fixedClock{t: time.Unix(1000, 0)}, testBackoff(), zap.NewNop())

	rec := &domain.RepairRecord{
		TransactionReference: "tx-2d",
		RepairType:           domain.RepairDebitCreditMismatch,
		MaxRetries:           5,
		DebitLegID:           "leg-debit-5",
		CreditLegID:          "leg-credit-5",
		TenantID:             "tenant-1",
		FromAccount:          "acct-from-5",
		ToAccount:            "acct-to-5",
		Amount:               domain.Money{Minor: 400, Scale: 2, Currency: "USD"},
	}
	if err := e.Apply(context.Background(), rec, domain.ActionReverseBoth); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bank.debitCalls) != 0 {
		t.Errorf("expected the credit leg's own reversal never attempted once the debit leg's reversal failed, got %d calls", len(bank.debitCalls))
	}
	if rec.DebitStatus == domain.LegReversed {
		t.Errorf("expected debit_status to stay unreversed when its own reversal call failed")
	}
	if rec.RepairStatus == domain.RepairResolved {
		t.Errorf("expected the repair to remain unresolved when a leg reversal fails")
	}
}

func TestApply_FailedRetryReschedulesWithBackoff(t *testing.T) {
	store := newFakeRepairStore()
	bank := &fakeBankAdapter{debitErr: errors.New("still down")}
	now := time.Unix(1000, 0)
	e := NewEngine(store, bank, fixedClock{t: now}, testBackoff(), zap.NewNop())

	rec := &domain.RepairRecord{TransactionReference: "tx-2", RepairType: domain.RepairDebitFailed, MaxRetries: 5, RetryCount: 0}
	if err := e.Apply(context.Background(), rec, domain.ActionRetryDebit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.RepairStatus == domain.RepairResolved {
		t.Fatalf("expected repair to remain unresolved")
	}
	if rec.RetryCount != 1 {
		t.Errorf("expected retry_count=1, got %d", rec.RetryCount)
	}
	if !rec.NextRetryAt.After(now) {
		t.Errorf("expected next_retry_at to move into the future, got %v (now=%v)", rec.NextRetryAt, now)
	}
}

func TestApply_ExhaustedRetriesEscalatesAndClampsPriority(t *testing.T) {
	store := newFakeRepairStore()
	bank := &fakeBankAdapter{debitErr: errors.New("still down")}
	e := NewEngine(store, bank, fixedClock{t: time.Unix(1000, 0)}, testBackoff(), zap.NewNop())

	rec := &domain.RepairRecord{TransactionReference: "tx-3", RepairType: domain.RepairDebitFailed, MaxRetries: 1, RetryCount: 0, Priority: 3}
	if err := e.Apply(context.Background(), rec, domain.ActionRetryDebit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.CorrectiveAction != domain.ActionEscalate {
		t.Errorf("expected action ESCALATE once retries exhausted, got %v", rec.CorrectiveAction)
	}
	if rec.Priority != 10 {
		t.Errorf("expected priority clamped to 10, got %d", rec.Priority)
	}
	if rec.RepairStatus != domain.RepairFailed {
		t.Errorf("expected FAILED, got %v", rec.RepairStatus)
	}
}

func TestSweep_TransitionsTimedOutRepairsToFailed(t *testing.T) {
	store := newFakeRepairStore()
	store.dueForSweep = []domain.RepairRecord{
		{TransactionReference: "tx-4", Priority: 10},
		{TransactionReference: "tx-5", Priority: 2},
	}
	e := NewEngine(store, &fakeBankAdapter{}, fixedClock{t: time.Unix(2000, 0)}, testBackoff(), zap.NewNop())

	n, err := e.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 swept records, got %d", n)
	}
	if store.updateCalls != 2 {
		t.Errorf("expected 2 store updates, got %d", store.updateCalls)
	}
}

func TestProcessBatch_AppliesEachRecordsCorrectiveAction(t *testing.T) {
	store := newFakeRepairStore()
	store.pickBatch = []domain.RepairRecord{
		{TransactionReference: "tx-6", RepairType: domain.RepairCreditFailed, MaxRetries: 5, CorrectiveAction: domain.ActionRetryCredit},
	}
	bank := &fakeBankAdapter{}
	e := NewEngine(store, bank, fixedClock{t: time.Unix(3000, 0)}, testBackoff(), zap.NewNop())

	n, err := e.ProcessBatch(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 processed, got %d", n)
	}
	if store.updateCalls != 1 {
		t.Errorf("expected the batch item to be updated, got %d updates", store.updateCalls)
	}
}
