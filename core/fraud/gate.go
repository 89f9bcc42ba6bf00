// Package fraud implements C4, the Fraud Gate: consulting the fraud-toggle
// hierarchy and, when enabled, calling the fraud capability through C3 and
// translating its verdict into an action (spec §4.4).
package fraud

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ruudy-sib/corepay/core/domain"
	"github.com/ruudy-sib/corepay/core/mapping"
	"github.com/ruudy-sib/corepay/core/port/secondary"
	"github.com/ruudy-sib/corepay/core/resilience"
)

// ConfigResolver is the subset of C1 this gate needs.
type ConfigResolver interface {
	Resolve(ctx context.Context, callCtx domain.CallContext) (domain.ResolvedConfig, error)
}

// Gate is C4.
type Gate struct {
	config      ConfigResolver
	transformer *mapping.Transformer
	dispatcher  *resilience.Dispatcher
	adapter     secondary.FraudAdapter
	store       secondary.FraudAssessmentStore
	idgen       secondary.IDGenerator
	clock       secondary.Clock
}

// NewGate builds a Gate.
func NewGate(config ConfigResolver, transformer *mapping.Transformer, dispatcher *resilience.Dispatcher, adapter secondary.FraudAdapter, store secondary.FraudAssessmentStore, idgen secondary.IDGenerator, clock secondary.Clock) *Gate {
	return &Gate{config: config, transformer: transformer, dispatcher: dispatcher, adapter: adapter, store: store, idgen: idgen, clock: clock}
}

// Evaluate runs the fraud-gate pipeline for instr (spec §4.4).
func (g *Gate) Evaluate(ctx context.Context, instr *domain.PaymentInstruction) (domain.FraudAssessment, error) {
	callCtx := domain.CallContext{
		TenantID:    instr.TenantID,
		PaymentType: instr.PaymentType,
		ServiceType: "fraud-api",
		Now:         g.now(),
	}
	resolved, err := g.config.Resolve(ctx, callCtx)
	if err != nil {
		return domain.FraudAssessment{}, err
	}

	if !resolved.Fraud.Enabled {
		return domain.FraudAssessment{
			AssessmentID:         g.idgen.UUID(),
			TransactionReference: instr.TransactionReference,
			TenantID:             instr.TenantID,
			Source:               sourceFor(instr),
			Decision:             domain.DecisionApprove,
			Status:               "fraud disabled: " + resolved.Fraud.Reason,
			CreatedAt:            g.now(),
		}, nil
	}

	source := map[string]any{
		"transaction_reference": instr.TransactionReference,
		"tenant_id":              instr.TenantID,
		"from_account":           instr.FromAccount,
		"to_account":             instr.ToAccount,
		"amount":                 instr.Amount.Float64(),
		"currency":               instr.Amount.Currency,
		"payment_type":           string(instr.PaymentType),
	}
	request := source
	if resolved.Mapping != nil {
		request, err = g.transformer.Transform(*resolved.Mapping, domain.DirectionFraudAPIRequest, source)
		if err != nil {
			return domain.FraudAssessment{}, err
		}
	}

	start := g.now()
	callResult, err := resilience.Call(ctx, g.dispatcher, resilience.CallSpec[secondary.FraudAPIResult]{
		Key:    resilience.ServiceKey{ServiceName: "fraud-api", TenantID: instr.TenantID},
		Config: resolved.Resiliency,
		Do: func(ctx context.Context) (secondary.FraudAPIResult, error) {
			return g.adapter.Assess(ctx, request)
		},
	})
	processingTime := g.now().Sub(start)

	var apiResult secondary.FraudAPIResult
	if err != nil {
		// Invariant: a failed fraud call never silently approves.
		apiResult = secondary.FraudAPIResult{RiskScore: -1, RiskLevel: domain.RiskMedium, Decision: domain.DecisionManualReview}
	} else if callResult.FallbackUsed {
		apiResult = secondary.FraudAPIResult{RiskScore: -1, RiskLevel: domain.RiskMedium, Decision: domain.DecisionManualReview}
	} else {
		apiResult = callResult.Value
	}

	responsePayload := apiResult.RawResponse
	if resolved.Mapping != nil && responsePayload != nil {
		responsePayload, err = g.transformer.Transform(*resolved.Mapping, domain.DirectionFraudAPIResponse, responsePayload)
		if err != nil {
			return domain.FraudAssessment{}, err
		}
	}

	decision := apiResult.Decision
	if apiResult.RiskScore >= 0 {
		decision = applyThresholds(apiResult.RiskScore, resolved.Fraud.Thresholds)
	}

	requestBlob, _ := json.Marshal(request)
	responseBlob, _ := json.Marshal(responsePayload)

	assessment := domain.FraudAssessment{
		AssessmentID:         g.idgen.UUID(),
		TransactionReference: instr.TransactionReference,
		TenantID:             instr.TenantID,
		Source:               sourceFor(instr),
		RiskScore:            apiResult.RiskScore,
		RiskLevel:            apiResult.RiskLevel,
		Decision:             decision,
		RequestPayload:       requestBlob,
		ResponsePayload:      responseBlob,
		ProcessingTime:       processingTime,
		Status:               "evaluated",
		CreatedAt:            g.now(),
	}

	if g.store != nil {
		if err := g.store.Save(ctx, &assessment); err != nil {
			return domain.FraudAssessment{}, err
		}
	}
	return assessment, nil
}

// applyThresholds converts a risk score into a decision per spec §4.4 step
// 5: APPROVE iff score <= approveThreshold, REJECT iff score >=
// rejectThreshold, else MANUAL_REVIEW; HOLD/ESCALATE fire first if their
// dedicated thresholds are crossed.
func applyThresholds(score float64, t domain.FraudThresholds) domain.FraudDecision {
	if t.EscalateThreshold > 0 && score >= t.EscalateThreshold {
		return domain.DecisionEscalate
	}
	if t.HoldThreshold > 0 && score >= t.HoldThreshold {
		return domain.DecisionHold
	}
	if score >= t.RejectThreshold && t.RejectThreshold > 0 {
		return domain.DecisionReject
	}
	if score <= t.ApproveThreshold {
		return domain.DecisionApprove
	}
	return domain.DecisionManualReview
}

func sourceFor(instr *domain.PaymentInstruction) domain.FraudSource {
	if instr.Source == domain.SourceClearingSystem {
		return domain.FraudSourceClearingSystem
	}
	return domain.FraudSourceBankClient
}

func (g *Gate) now() time.Time {
	if g.clock == nil {
		return time.Now()
	}
	return g.clock.Now()
}
