package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/core/domain"
	"github.com/ruudy-sib/corepay/core/port/secondary"
	"github.com/ruudy-sib/corepay/core/resilience"
)

type fakeResolver struct {
	cfg domain.ResolvedConfig
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, callCtx domain.CallContext) (domain.ResolvedConfig, error) {
	return f.cfg, f.err
}

type fakeFraudAdapter struct {
	resultFunc func(ctx context.Context, request map[string]any) (secondary.FraudAPIResult, error)
}

func (f *fakeFraudAdapter) Assess(ctx context.Context, request map[string]any) (secondary.FraudAPIResult, error) {
	return f.resultFunc(ctx, request)
}

type fakeAssessmentStore struct {
	saved []*domain.FraudAssessment
}

func (s *fakeAssessmentStore) Save(ctx context.Context, a *domain.FraudAssessment) error {
	s.saved = append(s.saved, a)
	return nil
}

type fixedIDGen struct{ id string }

func (g fixedIDGen) UUID() string                               { return g.id }
func (g fixedIDGen) Sequential(prefix string, length int) string { return prefix }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func resiliencyForTest() domain.ResiliencyConfig {
	return domain.ResiliencyConfig{
		SlidingWindowSize:  5,
		MinimumCalls:       2,
		SuccessThreshold:   1,
		MaxConcurrentCalls: 5,
		Timeout:            time.Second,
		MaxWaitDuration:    time.Second,
		Retry:              domain.RetryPolicy{MaxAttempts: 1},
		Fallback:           domain.FallbackPropagate,
	}
}

func newTestGate(resolver ConfigResolver, adapter secondary.FraudAdapter, store secondary.FraudAssessmentStore) *Gate {
	clock := fixedClock{t: time.Unix(0, 0)}
	dispatcher := resilience.NewDispatcher(nil, nil, clock, resilience.NewMetrics(prometheus.NewRegistry()), zap.NewNop())
	return NewGate(resolver, nil, dispatcher, adapter, store, fixedIDGen{id: "assessment-1"}, clock)
}

func testInstruction() *domain.PaymentInstruction {
	return &domain.PaymentInstruction{
		TransactionReference: "tx-1",
		TenantID:             "tenant-1",
		FromAccount:          "a",
		ToAccount:            "b",
		Amount:               domain.Money{Minor: 10000, Scale: 2, Currency: "USD"},
		PaymentType:          domain.PaymentTypeWireDomestic,
	}
}

func TestEvaluate_DisabledReturnsApprove(t *testing.T) {
	resolver := &fakeResolver{cfg: domain.ResolvedConfig{Fraud: domain.FraudToggle{Enabled: false, Reason: "toggle off"}}}
	g := newTestGate(resolver, nil, nil)

	a, err := g.Evaluate(context.Background(), testInstruction())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Decision != domain.DecisionApprove {
		t.Errorf("expected APPROVE when fraud disabled, got %v", a.Decision)
	}
}

func TestEvaluate_AppliesThresholds(t *testing.T) {
	resolver := &fakeResolver{cfg: domain.ResolvedConfig{
		Resiliency: resiliencyForTest(),
		Fraud: domain.FraudToggle{
			Enabled: true,
			Thresholds: domain.FraudThresholds{
				ApproveThreshold: 0.3,
				RejectThreshold:  0.8,
			},
		},
	}}
	adapter := &fakeFraudAdapter{resultFunc: func(ctx context.Context, request map[string]any) (secondary.FraudAPIResult, error) {
		return secondary.FraudAPIResult{RiskScore: 0.9, RiskLevel: domain.RiskHigh}, nil
	}}
	store := &fakeAssessmentStore{}
	g := newTestGate(resolver, adapter, store)

	a, err := g.Evaluate(context.Background(), testInstruction())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Decision != domain.DecisionReject {
		t.Errorf("expected REJECT for score 0.9 >= rejectThreshold 0.8, got %v", a.Decision)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected assessment to be persisted, got %d saves", len(store.saved))
	}
}

func TestEvaluate_FailedCallNeverSilentlyApproves(t *testing.T) {
	resolver := &fakeResolver{cfg: domain.ResolvedConfig{
		Resiliency: resiliencyForTest(),
		Fraud:      domain.FraudToggle{Enabled: true, Thresholds: domain.FraudThresholds{ApproveThreshold: 0.3, RejectThreshold: 0.8}},
	}}
	adapter := &fakeFraudAdapter{resultFunc: func(ctx context.Context, request map[string]any) (secondary.FraudAPIResult, error) {
		return secondary.FraudAPIResult{}, errors.New("fraud api unreachable")
	}}
	store := &fakeAssessmentStore{}
	g := newTestGate(resolver, adapter, store)

	a, err := g.Evaluate(context.Background(), testInstruction())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Decision != domain.DecisionManualReview {
		t.Errorf("a failed fraud call must never silently approve, got %v", a.Decision)
	}
	if a.RiskLevel != domain.RiskMedium {
		t.Errorf("expected MEDIUM risk level on fallback, got %v", a.RiskLevel)
	}
}
