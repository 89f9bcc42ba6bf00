// Package secondary defines the driven ports: interfaces the core requires
// of its surrounding collaborators (spec §1/§6). Adapters under
// adapter/secondary/... implement these against real infrastructure.
package secondary

import (
	"context"
	"time"

	"github.com/ruudy-sib/corepay/core/domain"
)

// CoreBankingAdapter is the required capability set over core banking
// (spec §6). Implementations may be REST or gRPC; the choice is per-tenant
// config and irrelevant to the core.
type CoreBankingAdapter interface {
	GetAccountInfo(ctx context.Context, tenantID, account string) (domain.AccountInfo, error)
	ValidateAccount(ctx context.Context, tenantID, account string) error
	GetBalance(ctx context.Context, tenantID, account string) (domain.Money, error)
	HasSufficientFunds(ctx context.Context, tenantID, account string, amount domain.Money) (bool, error)
	ProcessDebit(ctx context.Context, legID, tenantID, account string, amount domain.Money) error
	ProcessCredit(ctx context.Context, legID, tenantID, account string, amount domain.Money) error
	ProcessTransfer(ctx context.Context, legID, tenantID, from, to string, amount domain.Money) error
	HoldFunds(ctx context.Context, legID, tenantID, account string, amount domain.Money) error
	ReleaseFunds(ctx context.Context, legID, tenantID, account string) error
	GetTransactionStatus(ctx context.Context, legID string) (string, error)
}

// ClearingAdapter dispatches outbound clearing-network calls.
type ClearingAdapter interface {
	Dispatch(ctx context.Context, endpoint domain.Endpoint, payload []byte, headers map[string]string) (ClearingStatus, error)
}

// ClearingStatus is the logical result of a clearing dispatch.
type ClearingStatus struct {
	Result ClearingResult
	Code   string
}

type ClearingResult string

const (
	ClearingAccepted  ClearingResult = "ACCEPTED"
	ClearingRejected  ClearingResult = "REJECTED"
	ClearingAckPending ClearingResult = "ACK_PENDING"
)

// FraudAdapter calls the external fraud capability.
type FraudAdapter interface {
	Assess(ctx context.Context, request map[string]any) (FraudAPIResult, error)
}

// FraudAPIResult is the raw result from the fraud capability before C4
// applies threshold routing.
type FraudAPIResult struct {
	RiskScore  float64
	RiskLevel  domain.RiskLevel
	Decision   domain.FraudDecision
	Factors    []string
	RawResponse map[string]any
}

// MessageSender delivers a raw queued message to its preserved
// URL/method/payload (spec §4.8). Implementations may be HTTP, Kafka, or
// any other transport the original call's service key resolved to.
type MessageSender interface {
	Send(ctx context.Context, msg domain.QueuedMessage) error
}

// Clock abstracts wall-clock time so tests can control it.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts id generation for C2 auto-generation rules.
type IDGenerator interface {
	UUID() string
	Sequential(prefix string, length int) string
}

// HealthChecker is a named liveness probe for a dependency.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// ConfigRepository is the persistence contract for every config-shaped
// entity of spec §3/§6.
type ConfigRepository interface {
	ActiveConfigLayers(ctx context.Context, kind string, ctxKey domain.CallContext) ([]domain.ConfigLayer, error)
	ClearingSystem(ctx context.Context, code string) (domain.ClearingSystem, error)
	TenantMappings(ctx context.Context, tenantID string, paymentType domain.PaymentType, localInstrument string) ([]domain.TenantClearingMapping, error)
	PayloadMapping(ctx context.Context, tenantID, name string) (domain.PayloadMapping, error)
}

// QueueStore is the persistence contract for QueuedMessage (spec §3/§4.8).
type QueueStore interface {
	Enqueue(ctx context.Context, msg *domain.QueuedMessage) error
	ClaimDue(ctx context.Context, limit int) ([]domain.QueuedMessage, error)
	MarkProcessed(ctx context.Context, messageID string, result string) error
	MarkFailed(ctx context.Context, messageID, errDetail string, nextRetryAt time.Time) error
	MarkExpired(ctx context.Context, messageID string) error
	ReclaimStuck(ctx context.Context, cutoff time.Time) (int, error)
}

// RepairStore is the persistence contract for RepairRecord (spec §3/§4.7).
type RepairStore interface {
	Create(ctx context.Context, rec *domain.RepairRecord) error
	Get(ctx context.Context, txRef, tenantID string) (domain.RepairRecord, error)
	PickNextBatch(ctx context.Context, tenantID string, limit int) ([]domain.RepairRecord, error)
	Update(ctx context.Context, rec *domain.RepairRecord) error
	DueForTimeout(ctx context.Context, now time.Time) ([]domain.RepairRecord, error)
}

// FraudAssessmentStore persists FraudAssessment records.
type FraudAssessmentStore interface {
	Save(ctx context.Context, a *domain.FraudAssessment) error
}

// LastKnownGoodCache stores the last successful response per (serviceKey,
// tenant) for C3's "cached" fallback strategy.
type LastKnownGoodCache interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
}
