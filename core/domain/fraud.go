package domain

import "time"

// FraudSource identifies which side's data fed into a FraudAssessment.
type FraudSource string

const (
	FraudSourceBankClient     FraudSource = "BANK_CLIENT"
	FraudSourceClearingSystem FraudSource = "CLEARING_SYSTEM"
	FraudSourceBoth           FraudSource = "BOTH"
)

// RiskLevel buckets a risk score for display and threshold routing.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// FraudDecision is the verdict C4 returns to the orchestrator.
type FraudDecision string

const (
	DecisionApprove      FraudDecision = "APPROVE"
	DecisionReject       FraudDecision = "REJECT"
	DecisionManualReview FraudDecision = "MANUAL_REVIEW"
	DecisionHold         FraudDecision = "HOLD"
	DecisionEscalate     FraudDecision = "ESCALATE"
)

// FraudThresholds configures the score cutoffs that turn a risk score into
// a FraudDecision (spec §4.4 step 5).
type FraudThresholds struct {
	ApproveThreshold float64
	RejectThreshold  float64
	HoldThreshold    float64
	EscalateThreshold float64
}

// FraudAssessment is the durable record of one fraud evaluation.
type FraudAssessment struct {
	AssessmentID         string
	TransactionReference string
	TenantID             string
	Source               FraudSource
	RiskScore            float64
	RiskLevel            RiskLevel
	Decision             FraudDecision
	RequestPayload       []byte
	ResponsePayload       []byte
	ProcessingTime       time.Duration
	Status               string
	ExpiresAt            time.Time
	CreatedAt            time.Time
}
