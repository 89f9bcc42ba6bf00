// Package routing implements C5, the Routing Decider: classifying a
// payment as SAME_BANK, OTHER_BANK, or INCOMING_CLEARING and selecting the
// clearing system and endpoint to use (spec §4.5).
package routing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ruudy-sib/corepay/core/domain"
	coreerrors "github.com/ruudy-sib/corepay/core/errors"
	"github.com/ruudy-sib/corepay/core/port/secondary"
)

// Decider is C5.
type Decider struct {
	bank secondary.CoreBankingAdapter
	repo secondary.ConfigRepository
}

// NewDecider builds a Decider.
func NewDecider(bank secondary.CoreBankingAdapter, repo secondary.ConfigRepository) *Decider {
	return &Decider{bank: bank, repo: repo}
}

// Decide classifies instr and, for OTHER_BANK, selects the clearing system
// and endpoint to dispatch the given ISO 20022 messageType through.
func (d *Decider) Decide(ctx context.Context, instr *domain.PaymentInstruction, messageType string) (domain.Route, error) {
	if instr.Source == domain.SourceClearingSystem {
		return domain.Route{Type: domain.RouteIncomingClearing, MessageFormat: messageType}, nil
	}

	from, err := d.bank.GetAccountInfo(ctx, instr.TenantID, instr.FromAccount)
	if err != nil {
		return domain.Route{}, err
	}
	to, err := d.bank.GetAccountInfo(ctx, instr.TenantID, instr.ToAccount)
	if err != nil {
		return domain.Route{}, err
	}
	if from.BankCode == to.BankCode {
		return domain.Route{Type: domain.RouteSameBank, MessageFormat: messageType}, nil
	}

	mapping, err := d.bestMapping(ctx, instr)
	if err != nil {
		return domain.Route{}, err
	}

	cs, err := d.repo.ClearingSystem(ctx, mapping.ClearingSystemCode)
	if err != nil {
		return domain.Route{}, err
	}

	endpoint, err := selectEndpoint(cs, messageType, cs.ProcessingMode)
	if err != nil {
		return domain.Route{}, err
	}

	return domain.Route{
		Type:               domain.RouteOtherBank,
		ClearingSystemCode: cs.Code,
		Endpoint:           &endpoint,
		ProcessingMode:     cs.ProcessingMode,
		MessageFormat:      messageType,
		AckTimeout:         ackTimeout(cs, endpoint),
	}, nil
}

// ackTimeout resolves the window C6 waits for a clearing ack: the
// endpoint's own Timeout if set, else the clearing system's DefaultTimeout.
func ackTimeout(cs domain.ClearingSystem, endpoint domain.Endpoint) time.Duration {
	if endpoint.Timeout > 0 {
		return endpoint.Timeout
	}
	return cs.DefaultTimeout
}

// bestMapping selects the best-match Tenant Clearing Mapping per spec §4.5:
// (tenant,paymentType,localInstrument) > (tenant,paymentType,NULL), ties
// broken by stored priority ascending.
func (d *Decider) bestMapping(ctx context.Context, instr *domain.PaymentInstruction) (domain.TenantClearingMapping, error) {
	candidates, err := d.repo.TenantMappings(ctx, instr.TenantID, instr.PaymentType, instr.LocalInstrument)
	if err != nil {
		return domain.TenantClearingMapping{}, err
	}

	var active []domain.TenantClearingMapping
	for _, m := range candidates {
		if m.Active {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		return domain.TenantClearingMapping{}, fmt.Errorf("%w: no clearing mapping for tenant %s payment type %s", coreerrors.ErrNoRouteFound, instr.TenantID, instr.PaymentType)
	}

	sort.SliceStable(active, func(i, j int) bool {
		si, sj := active[i].Specificity(), active[j].Specificity()
		if si != sj {
			return si > sj
		}
		return active[i].Priority < active[j].Priority
	})
	return active[0], nil
}

// selectEndpoint picks the Endpoint of cs whose MessageType matches
// messageType and whose EndpointType is compatible with mode, breaking ties
// by priority ascending (spec §4.5).
func selectEndpoint(cs domain.ClearingSystem, messageType string, mode domain.ProcessingMode) (domain.Endpoint, error) {
	var candidates []domain.Endpoint
	for _, ep := range cs.Endpoints {
		if !ep.Active || ep.MessageType != messageType {
			continue
		}
		if !endpointCompatible(ep.Type, mode) {
			continue
		}
		candidates = append(candidates, ep)
	}
	if len(candidates) == 0 {
		return domain.Endpoint{}, fmt.Errorf("%w: clearing system %s has no endpoint for message type %s", coreerrors.ErrUnsupportedMessageType, cs.Code, messageType)
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Priority < candidates[j].Priority })
	return candidates[0], nil
}

func endpointCompatible(epType domain.EndpointType, mode domain.ProcessingMode) bool {
	switch mode {
	case domain.ProcessingSync:
		return epType == domain.EndpointSync
	case domain.ProcessingAsync:
		return epType == domain.EndpointAsync || epType == domain.EndpointWebhook
	case domain.ProcessingBatch:
		return epType == domain.EndpointPolling || epType == domain.EndpointAsync
	default:
		return true
	}
}
