// Package orchestrator implements C6, the Payment Orchestrator: the
// two-phase debit/credit (or debit/dispatch, or credit-only) state machine
// with compensation on partial failure (spec §4.6). It never retries a leg
// itself — a leg that needs another attempt is handed to C7.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/ruudy-sib/corepay/core/domain"
	coreerrors "github.com/ruudy-sib/corepay/core/errors"
	"github.com/ruudy-sib/corepay/core/fraud"
	"github.com/ruudy-sib/corepay/core/port/secondary"
	"github.com/ruudy-sib/corepay/core/resilience"
	"github.com/ruudy-sib/corepay/core/routing"
)

// ConfigResolver is the subset of C1 the orchestrator needs.
type ConfigResolver interface {
	Resolve(ctx context.Context, callCtx domain.CallContext) (domain.ResolvedConfig, error)
}

// Orchestrator is C6.
type Orchestrator struct {
	config     ConfigResolver
	fraudGate  *fraud.Gate
	router     *routing.Decider
	dispatcher *resilience.Dispatcher
	bank       secondary.CoreBankingAdapter
	clearing   secondary.ClearingAdapter
	repairs    secondary.RepairStore
	clock      secondary.Clock

	locks *txLocks
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(config ConfigResolver, fraudGate *fraud.Gate, router *routing.Decider, dispatcher *resilience.Dispatcher, bank secondary.CoreBankingAdapter, clearing secondary.ClearingAdapter, repairs secondary.RepairStore, clock secondary.Clock) *Orchestrator {
	return &Orchestrator{
		config: config, fraudGate: fraudGate, router: router, dispatcher: dispatcher,
		bank: bank, clearing: clearing, repairs: repairs, clock: clock,
		locks: newTxLocks(),
	}
}

// Process runs instr through the full state machine and returns the
// caller-visible Outcome (spec §4.6).
func (o *Orchestrator) Process(ctx context.Context, instr *domain.PaymentInstruction, messageType string) (domain.Outcome, error) {
	unlock := o.locks.acquire(instr.TransactionReference)
	defer unlock()

	state := domain.StateCreated

	state = domain.StateFraudCheck
	assessment, err := o.fraudGate.Evaluate(ctx, instr)
	if err != nil {
		return o.toRepair(ctx, instr, domain.RepairSystemError, domain.LegNotStarted, domain.LegNotStarted, err)
	}
	switch assessment.Decision {
	case domain.DecisionReject:
		return domain.Outcome{Status: domain.OutcomeRejected, State: state, TransactionReference: instr.TransactionReference, RejectCode: "FRAUD_REJECTED"}, coreerrors.NewRejected("FRAUD_REJECTED")
	case domain.DecisionHold, domain.DecisionEscalate, domain.DecisionManualReview:
		return o.toRepair(ctx, instr, domain.RepairManualReview, domain.LegNotStarted, domain.LegNotStarted, coreerrors.ErrFraudManualReview)
	}

	state = domain.StateRouted
	route, err := o.router.Decide(ctx, instr, messageType)
	if err != nil {
		if errors.Is(err, coreerrors.ErrNoRouteFound) || errors.Is(err, coreerrors.ErrUnsupportedMessageType) {
			return domain.Outcome{Status: domain.OutcomeFailed, State: state, TransactionReference: instr.TransactionReference, FailReason: err.Error()}, err
		}
		return o.toRepair(ctx, instr, domain.RepairSystemError, domain.LegNotStarted, domain.LegNotStarted, err)
	}

	switch route.Type {
	case domain.RouteSameBank:
		return o.processSameBank(ctx, instr)
	case domain.RouteOtherBank:
		return o.processOtherBank(ctx, instr, route)
	case domain.RouteIncomingClearing:
		return o.processIncomingClearing(ctx, instr, route)
	default:
		return o.toRepair(ctx, instr, domain.RepairSystemError, domain.LegNotStarted, domain.LegNotStarted, errors.New("unknown route type"))
	}
}

func (o *Orchestrator) processSameBank(ctx context.Context, instr *domain.PaymentInstruction) (domain.Outcome, error) {
	debitErr := o.debit(ctx, instr)
	if debitErr != nil {
		return o.toRepair(ctx, instr, domain.RepairDebitFailed, domain.LegFailed, domain.LegNotStarted, debitErr)
	}

	creditErr := o.credit(ctx, instr)
	if creditErr == nil {
		return domain.Outcome{Status: domain.OutcomeCompleted, State: domain.StateCompleted, TransactionReference: instr.TransactionReference}, nil
	}

	// Credit failed after a successful debit: compensate with a rollback
	// credit back to the source account (spec §4.6 "Same-bank").
	rollbackErr := o.rollback(ctx, instr)
	if rollbackErr != nil {
		rec := &domain.RepairRecord{
			TransactionReference: instr.TransactionReference,
			TenantID:             instr.TenantID,
			RepairType:           domain.RepairDebitCreditMismatch,
			RepairStatus:         domain.RepairPending,
			DebitStatus:          domain.LegSucceeded,
			CreditStatus:         domain.LegFailed,
			DebitLegID:           instr.LegID(domain.LegDebit),
			CreditLegID:          instr.LegID(domain.LegCredit),
			FromAccount:          instr.FromAccount,
			ToAccount:            instr.ToAccount,
			Amount:               instr.Amount,
			MaxRetries:           5,
			NextRetryAt:          o.now(),
			Priority:             8,
			CreatedAt:            o.now(),
		}
		if err := o.repairs.Create(ctx, rec); err != nil {
			return domain.Outcome{}, err
		}
		return domain.Outcome{Status: domain.OutcomeFailed, State: domain.StateReversalRequired, TransactionReference: instr.TransactionReference, RepairID: rec.TransactionReference, FailReason: "debit-credit mismatch: compensation failed"}, coreerrors.NewNeedsRepair("compensating credit failed")
	}

	return domain.Outcome{Status: domain.OutcomeFailed, State: domain.StateReversalRequired, TransactionReference: instr.TransactionReference, FailReason: "credit failed, debit reversed"}, coreerrors.ErrReversed
}

func (o *Orchestrator) processOtherBank(ctx context.Context, instr *domain.PaymentInstruction, route domain.Route) (domain.Outcome, error) {
	debitErr := o.debit(ctx, instr)
	if debitErr != nil {
		return o.toRepair(ctx, instr, domain.RepairDebitFailed, domain.LegFailed, domain.LegNotStarted, debitErr)
	}

	status, dispatchErr := o.dispatch(ctx, instr, route)
	if dispatchErr != nil {
		// Dispatch failed terminally: compensate the debit.
		if rollbackErr := o.rollback(ctx, instr); rollbackErr != nil {
			return o.toRepairWithLegs(ctx, instr, domain.RepairDebitCreditMismatch, domain.LegSucceeded, domain.LegFailed, 8, rollbackErr)
		}
		return domain.Outcome{Status: domain.OutcomeFailed, State: domain.StateReversalRequired, TransactionReference: instr.TransactionReference, FailReason: "clearing dispatch failed, debit reversed"}, coreerrors.ErrReversed
	}

	if status.Result == secondary.ClearingAckPending {
		// Ack timed out: do NOT auto-reverse; create a CREDIT_TIMEOUT repair
		// with a timeout window instead, sized from the route's configured
		// ack window (the dispatched endpoint's timeout, or the clearing
		// system's default).
		ackWindow := o.now().Add(o.ackWindow(route))
		rec := &domain.RepairRecord{
			TransactionReference: instr.TransactionReference,
			TenantID:             instr.TenantID,
			RepairType:           domain.RepairCreditTimeout,
			RepairStatus:         domain.RepairPending,
			DebitStatus:          domain.LegSucceeded,
			CreditStatus:         domain.LegTimedOut,
			DebitLegID:           instr.LegID(domain.LegDebit),
			CreditLegID:          instr.LegID(domain.LegDispatch),
			FromAccount:          instr.FromAccount,
			ToAccount:            instr.ToAccount,
			Amount:               instr.Amount,
			MaxRetries:           3,
			NextRetryAt:          o.now(),
			TimeoutAt:            &ackWindow,
			Priority:             4,
			CreatedAt:            o.now(),
		}
		if err := o.repairs.Create(ctx, rec); err != nil {
			return domain.Outcome{}, err
		}
		return domain.Outcome{Status: domain.OutcomePending, State: domain.StateCompletedPendingAck, TransactionReference: instr.TransactionReference, RepairID: rec.TransactionReference}, nil
	}

	if status.Result == secondary.ClearingRejected {
		if rollbackErr := o.rollback(ctx, instr); rollbackErr != nil {
			return o.toRepairWithLegs(ctx, instr, domain.RepairDebitCreditMismatch, domain.LegSucceeded, domain.LegFailed, 8, rollbackErr)
		}
		return domain.Outcome{Status: domain.OutcomeFailed, State: domain.StateReversalRequired, TransactionReference: instr.TransactionReference, FailReason: "clearing rejected: " + status.Code}, coreerrors.ErrReversed
	}

	return domain.Outcome{Status: domain.OutcomeCompleted, State: domain.StateCompleted, TransactionReference: instr.TransactionReference}, nil
}

func (o *Orchestrator) processIncomingClearing(ctx context.Context, instr *domain.PaymentInstruction, route domain.Route) (domain.Outcome, error) {
	creditErr := o.credit(ctx, instr)
	if creditErr != nil {
		// Never auto-reverses the counterparty's debit.
		return o.toRepair(ctx, instr, domain.RepairCreditFailed, domain.LegNotStarted, domain.LegFailed, creditErr)
	}
	return domain.Outcome{Status: domain.OutcomeCompleted, State: domain.StateCompleted, TransactionReference: instr.TransactionReference}, nil
}

func (o *Orchestrator) debit(ctx context.Context, instr *domain.PaymentInstruction) error {
	resolved, err := o.resolveResiliency(ctx, instr, "core-banking")
	if err != nil {
		return err
	}
	result, err := resilience.Call(ctx, o.dispatcher, resilience.CallSpec[struct{}]{
		Key:    resilience.ServiceKey{ServiceName: "core-banking", TenantID: instr.TenantID},
		Config: resolved,
		Do: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, o.bank.ProcessDebit(ctx, instr.LegID(domain.LegDebit), instr.TenantID, instr.FromAccount, instr.Amount)
		},
	})
	if err != nil {
		return err
	}
	if result.FallbackUsed {
		return coreerrors.NewNeedsRepair("debit fell back, not confirmed")
	}
	return nil
}

func (o *Orchestrator) credit(ctx context.Context, instr *domain.PaymentInstruction) error {
	resolved, err := o.resolveResiliency(ctx, instr, "core-banking")
	if err != nil {
		return err
	}
	result, err := resilience.Call(ctx, o.dispatcher, resilience.CallSpec[struct{}]{
		Key:    resilience.ServiceKey{ServiceName: "core-banking", TenantID: instr.TenantID},
		Config: resolved,
		Do: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, o.bank.ProcessCredit(ctx, instr.LegID(domain.LegCredit), instr.TenantID, instr.ToAccount, instr.Amount)
		},
	})
	if err != nil {
		return err
	}
	if result.FallbackUsed {
		return coreerrors.NewNeedsRepair("credit fell back, not confirmed")
	}
	return nil
}

func (o *Orchestrator) rollback(ctx context.Context, instr *domain.PaymentInstruction) error {
	resolved, err := o.resolveResiliency(ctx, instr, "core-banking")
	if err != nil {
		return err
	}
	result, err := resilience.Call(ctx, o.dispatcher, resilience.CallSpec[struct{}]{
		Key:    resilience.ServiceKey{ServiceName: "core-banking", TenantID: instr.TenantID},
		Config: resolved,
		Do: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, o.bank.ProcessCredit(ctx, instr.LegID(domain.LegRollback), instr.TenantID, instr.FromAccount, instr.Amount)
		},
	})
	if err != nil {
		return err
	}
	if result.FallbackUsed {
		return coreerrors.NewNeedsRepair("compensating rollback fell back, not confirmed")
	}
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, instr *domain.PaymentInstruction, route domain.Route) (secondary.ClearingStatus, error) {
	resolved, err := o.resolveResiliency(ctx, instr, "clearing-"+route.ClearingSystemCode)
	if err != nil {
		return secondary.ClearingStatus{}, err
	}
	result, err := resilience.Call(ctx, o.dispatcher, resilience.CallSpec[secondary.ClearingStatus]{
		Key:    resilience.ServiceKey{ServiceName: "clearing-" + route.ClearingSystemCode, TenantID: instr.TenantID},
		Config: resolved,
		Do: func(ctx context.Context) (secondary.ClearingStatus, error) {
			if route.Endpoint == nil {
				return secondary.ClearingStatus{}, errors.New("route has no endpoint")
			}
			return o.clearing.Dispatch(ctx, *route.Endpoint, instr.OriginalPayload, route.Endpoint.Headers)
		},
	})
	if err != nil {
		return secondary.ClearingStatus{}, err
	}
	if result.FallbackUsed {
		return secondary.ClearingStatus{Result: secondary.ClearingAckPending}, nil
	}
	return result.Value, nil
}

func (o *Orchestrator) resolveResiliency(ctx context.Context, instr *domain.PaymentInstruction, serviceType string) (domain.ResiliencyConfig, error) {
	resolved, err := o.config.Resolve(ctx, domain.CallContext{
		TenantID:    instr.TenantID,
		PaymentType: instr.PaymentType,
		ServiceType: serviceType,
		Now:         o.now(),
	})
	if err != nil {
		return domain.ResiliencyConfig{}, err
	}
	return resolved.Resiliency, nil
}

func (o *Orchestrator) toRepair(ctx context.Context, instr *domain.PaymentInstruction, repairType domain.RepairType, debitStatus, creditStatus domain.LegStatus, cause error) (domain.Outcome, error) {
	return o.toRepairWithLegs(ctx, instr, repairType, debitStatus, creditStatus, 5, cause)
}

func (o *Orchestrator) toRepairWithLegs(ctx context.Context, instr *domain.PaymentInstruction, repairType domain.RepairType, debitStatus, creditStatus domain.LegStatus, priority int, cause error) (domain.Outcome, error) {
	rec := &domain.RepairRecord{
		TransactionReference: instr.TransactionReference,
		TenantID:             instr.TenantID,
		RepairType:           repairType,
		RepairStatus:         domain.RepairPending,
		DebitStatus:          debitStatus,
		CreditStatus:         creditStatus,
		DebitLegID:           instr.LegID(domain.LegDebit),
		CreditLegID:          instr.LegID(domain.LegCredit),
		FromAccount:          instr.FromAccount,
		ToAccount:            instr.ToAccount,
		Amount:               instr.Amount,
		MaxRetries:           5,
		NextRetryAt:          o.now(),
		Priority:             priority,
		ResolutionNotes:      cause.Error(),
		CreatedAt:            o.now(),
	}
	if err := o.repairs.Create(ctx, rec); err != nil {
		return domain.Outcome{}, err
	}
	return domain.Outcome{Status: domain.OutcomeFailed, State: domain.StateRepair, TransactionReference: instr.TransactionReference, RepairID: rec.TransactionReference, FailReason: cause.Error()}, coreerrors.NewNeedsRepair(cause.Error())
}

func (o *Orchestrator) now() time.Time {
	if o.clock == nil {
		return time.Now()
	}
	return o.clock.Now()
}

// defaultAckWindow is used only when a route carries no configured
// ack-timeout (neither the endpoint nor its clearing system set one).
const defaultAckWindow = 24 * time.Hour

func (o *Orchestrator) ackWindow(route domain.Route) time.Duration {
	if route.AckTimeout > 0 {
		return route.AckTimeout
	}
	return defaultAckWindow
}
