// Package repair implements C7, the Repair Engine: the only component
// permitted to retry or compensate a leg once C6 has handed a transaction
// off (spec §4.7). It owns backoff scheduling, escalation, and timeout
// sweeps over the durable repair table.
package repair

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/core/domain"
	"github.com/ruudy-sib/corepay/core/port/secondary"
)

// Backoff configures the next_retry_at schedule.
type Backoff struct {
	BaseDelay     time.Duration
	Multiplier    float64
	MaxDelay      time.Duration
	JitterPercent float64 // e.g. 0.1 for +/-10%
}

func (b Backoff) delay(retryCount int) time.Duration {
	mult := b.Multiplier
	if mult <= 0 {
		mult = 2
	}
	base := b.BaseDelay
	if base <= 0 {
		base = 30 * time.Second
	}
	d := time.Duration(float64(base) * math.Pow(mult, float64(retryCount)))
	if b.MaxDelay > 0 && d > b.MaxDelay {
		d = b.MaxDelay
	}
	jitter := b.JitterPercent
	if jitter <= 0 {
		jitter = 0.1
	}
	spread := float64(d) * jitter
	offset := (rand.Float64()*2 - 1) * spread
	d = time.Duration(float64(d) + offset)
	if d < 0 {
		d = 0
	}
	return d
}

// Engine is C7.
type Engine struct {
	store   secondary.RepairStore
	bank    secondary.CoreBankingAdapter
	clock   secondary.Clock
	backoff Backoff
	logger  *zap.Logger
}

// NewEngine builds an Engine.
func NewEngine(store secondary.RepairStore, bank secondary.CoreBankingAdapter, clock secondary.Clock, backoff Backoff, logger *zap.Logger) *Engine {
	return &Engine{store: store, bank: bank, clock: clock, backoff: backoff, logger: logger.Named("repair")}
}

// Create persists a new repair record, called by C6 on any partial-failure
// transition.
func (e *Engine) Create(ctx context.Context, rec *domain.RepairRecord) error {
	return e.store.Create(ctx, rec)
}

// PickNextBatch returns up to limit repairs ready to be worked, ordered
// priority DESC, created_at ASC (spec §4.7).
func (e *Engine) PickNextBatch(ctx context.Context, tenantID string, limit int) ([]domain.RepairRecord, error) {
	return e.store.PickNextBatch(ctx, tenantID, limit)
}

// ProcessBatch picks and applies the next batch of repairs for tenantID (or
// every tenant when tenantID is empty), returning how many were processed.
func (e *Engine) ProcessBatch(ctx context.Context, tenantID string, limit int) (int, error) {
	batch, err := e.PickNextBatch(ctx, tenantID, limit)
	if err != nil {
		return 0, err
	}
	for i := range batch {
		rec := batch[i]
		if err := e.Apply(ctx, &rec, rec.CorrectiveAction); err != nil {
			e.logger.Error("repair apply failed",
				zap.String("transaction_reference", rec.TransactionReference),
				zap.Error(err),
			)
		}
	}
	return len(batch), nil
}

// Apply executes the chosen corrective action against the downstream legs
// and updates repair_status per spec §4.7's retry-outcome rules.
func (e *Engine) Apply(ctx context.Context, rec *domain.RepairRecord, action domain.CorrectiveAction) error {
	if action == "" {
		action = defaultActionFor(rec.RepairType)
	}
	rec.CorrectiveAction = action

	var err error
	switch action {
	case domain.ActionRetryDebit:
		err = e.bank.ProcessDebit(ctx, rec.DebitLegID, rec.TenantID, rec.FromAccount, rec.Amount)
	case domain.ActionRetryCredit:
		err = e.bank.ProcessCredit(ctx, rec.CreditLegID, rec.TenantID, rec.ToAccount, rec.Amount)
	case domain.ActionRetryBoth:
		if err = e.bank.ProcessDebit(ctx, rec.DebitLegID, rec.TenantID, rec.FromAccount, rec.Amount); err == nil {
			err = e.bank.ProcessCredit(ctx, rec.CreditLegID, rec.TenantID, rec.ToAccount, rec.Amount)
		}
	case domain.ActionReverseDebit:
		// Reverse a successful debit: credit the amount back to the
		// originating account.
		err = e.bank.ProcessCredit(ctx, rec.DebitLegID, rec.TenantID, rec.FromAccount, rec.Amount)
		if err == nil {
			rec.DebitStatus = domain.LegReversed
		}
	case domain.ActionReverseCredit:
		// Reverse a successful credit: debit the amount back out of the
		// receiving account.
		err = e.bank.ProcessDebit(ctx, rec.CreditLegID, rec.TenantID, rec.ToAccount, rec.Amount)
		if err == nil {
			rec.CreditStatus = domain.LegReversed
		}
	case domain.ActionReverseBoth:
		err = e.bank.ProcessCredit(ctx, rec.DebitLegID, rec.TenantID, rec.FromAccount, rec.Amount)
		if err == nil {
			rec.DebitStatus = domain.LegReversed
			err = e.bank.ProcessDebit(ctx, rec.CreditLegID, rec.TenantID, rec.ToAccount, rec.Amount)
			if err == nil {
				rec.CreditStatus = domain.LegReversed
			}
		}
	case domain.ActionManualCredit, domain.ActionManualDebit, domain.ActionManualBoth, domain.ActionCancelTransaction, domain.ActionEscalate, domain.ActionNoAction:
		// These require operator action outside the engine; no automatic
		// downstream call is made.
	}

	now := e.now()
	if err == nil {
		rec.RepairStatus = domain.RepairResolved
		resolvedAt := now
		rec.ResolvedAt = &resolvedAt
		rec.ResolvedBy = "repair-engine"
		return e.store.Update(ctx, rec)
	}

	rec.RetryCount++
	if rec.RetryCount >= rec.MaxRetries {
		rec.CorrectiveAction = domain.ActionEscalate
		rec.RepairStatus = domain.RepairFailed
		if rec.Priority < 10 {
			rec.Priority = 10
		}
		rec.ResolutionNotes = err.Error()
		return e.store.Update(ctx, rec)
	}

	rec.NextRetryAt = now.Add(e.backoff.delay(rec.RetryCount))
	rec.ResolutionNotes = err.Error()
	return e.store.Update(ctx, rec)
}

// Sweep transitions repairs whose timeout_at has passed to FAILED (or
// ESCALATE when priority is already maxed) per spec §4.7.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	due, err := e.store.DueForTimeout(ctx, e.now())
	if err != nil {
		return 0, err
	}
	for i := range due {
		rec := due[i]
		if rec.Priority >= 10 {
			rec.CorrectiveAction = domain.ActionEscalate
		}
		rec.RepairStatus = domain.RepairFailed
		if err := e.store.Update(ctx, &rec); err != nil {
			e.logger.Error("repair sweep update failed",
				zap.String("transaction_reference", rec.TransactionReference),
				zap.Error(err),
			)
		}
	}
	return len(due), nil
}

func defaultActionFor(t domain.RepairType) domain.CorrectiveAction {
	switch t {
	case domain.RepairDebitFailed, domain.RepairDebitTimeout:
		return domain.ActionRetryDebit
	case domain.RepairCreditFailed, domain.RepairCreditTimeout:
		return domain.ActionRetryCredit
	case domain.RepairDebitCreditMismatch, domain.RepairPartialSuccess:
		return domain.ActionManualBoth
	case domain.RepairManualReview:
		return domain.ActionEscalate
	default:
		return domain.ActionNoAction
	}
}

func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock.Now()
}
