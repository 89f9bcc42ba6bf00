// Package config implements C1, the Config Resolver: walking the
// four-level precedence chain (DOWNSTREAM_CALL > PAYMENT_TYPE > TENANT >
// CLEARING_SYSTEM) to compute the effective resiliency, auth, mapping, and
// fraud-toggle configuration for a call context (spec §4.1).
package config

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ruudy-sib/corepay/core/domain"
	coreerrors "github.com/ruudy-sib/corepay/core/errors"
	"github.com/ruudy-sib/corepay/core/port/secondary"
)

// precedence ranks the levels from least to most specific so a later merge
// pass overrides an earlier one (spec: "merge field-by-field from
// least-specific to most-specific").
var precedence = []domain.ConfigLevel{
	domain.LevelClearingSystem,
	domain.LevelTenant,
	domain.LevelPaymentType,
	domain.LevelDownstreamCall,
}

type cacheEntry struct {
	value     domain.ResolvedConfig
	expiresAt time.Time
}

// Resolver is C1. One Resolver instance is shared process-wide; its cache
// is a plain read-mostly map guarded by a mutex, snapshot-invalidated on
// any config write (spec §4.1 "invalidated on any config write").
type Resolver struct {
	repo secondary.ConfigRepository
	ttl  time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewResolver builds a Resolver. ttl is the cache lifetime for a resolved
// context; pass 0 to disable caching.
func NewResolver(repo secondary.ConfigRepository, ttl time.Duration) *Resolver {
	return &Resolver{repo: repo, ttl: ttl, cache: make(map[string]cacheEntry)}
}

// Invalidate drops every cached entry. Call this after any config write.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]cacheEntry)
}

func cacheKey(ctx domain.CallContext) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		ctx.TenantID, ctx.PaymentType, ctx.LocalInstrument, ctx.ClearingSystem,
		ctx.ServiceType, ctx.Endpoint, ctx.Direction)
}

// Resolve computes the effective ResolvedConfig for ctx (spec §4.1).
func (r *Resolver) Resolve(ctx context.Context, callCtx domain.CallContext) (domain.ResolvedConfig, error) {
	key := cacheKey(callCtx)
	if r.ttl > 0 {
		r.mu.RLock()
		entry, ok := r.cache[key]
		r.mu.RUnlock()
		if ok && callCtx.Now.Before(entry.expiresAt) {
			return entry.value, nil
		}
	}

	resiliencyLayers, err := r.activeLayers(ctx, callCtx, "RESILIENCY")
	if err != nil {
		return domain.ResolvedConfig{}, err
	}
	authLayers, err := r.activeLayers(ctx, callCtx, "AUTH")
	if err != nil {
		return domain.ResolvedConfig{}, err
	}
	mappingLayers, err := r.activeLayers(ctx, callCtx, "MAPPING")
	if err != nil {
		return domain.ResolvedConfig{}, err
	}
	fraudLayers, err := r.activeLayers(ctx, callCtx, "FRAUD")
	if err != nil {
		return domain.ResolvedConfig{}, err
	}

	var resolved domain.ResolvedConfig

	mergedResiliency, err := mergeResiliency(resiliencyLayers)
	if err != nil {
		return domain.ResolvedConfig{}, err
	}
	resolved.Resiliency = mergedResiliency

	mergedAuth, err := mergeAuth(authLayers)
	if err != nil {
		return domain.ResolvedConfig{}, err
	}
	resolved.Auth = mergedAuth

	mapping, err := firstMapping(mappingLayers)
	if err != nil {
		return domain.ResolvedConfig{}, err
	}
	resolved.Mapping = mapping

	fraud, err := firstFraudToggle(fraudLayers)
	if err != nil {
		return domain.ResolvedConfig{}, err
	}
	resolved.Fraud = fraud

	if r.ttl > 0 {
		r.mu.Lock()
		r.cache[key] = cacheEntry{value: resolved, expiresAt: callCtx.Now.Add(r.ttl)}
		r.mu.Unlock()
	}
	return resolved, nil
}

// activeLayers fetches, filters by time window, and ranks (level, then
// priority ascending, then created_at ascending) the layers of one kind,
// from least to most specific so callers can fold them in order.
func (r *Resolver) activeLayers(ctx context.Context, callCtx domain.CallContext, kind string) ([]domain.ConfigLayer, error) {
	layers, err := r.repo.ActiveConfigLayers(ctx, kind, callCtx)
	if err != nil {
		return nil, err
	}

	var inWindow []domain.ConfigLayer
	for _, l := range layers {
		if l.InWindow(callCtx.Now) {
			inWindow = append(inWindow, l)
		}
	}

	levelRank := func(l domain.ConfigLevel) int {
		for i, p := range precedence {
			if p == l {
				return i
			}
		}
		return -1
	}

	sort.SliceStable(inWindow, func(i, j int) bool {
		ri, rj := levelRank(inWindow[i].Level), levelRank(inWindow[j].Level)
		if ri != rj {
			return ri < rj
		}
		if inWindow[i].Priority != inWindow[j].Priority {
			return inWindow[i].Priority < inWindow[j].Priority
		}
		return inWindow[i].CreatedAt.Before(inWindow[j].CreatedAt)
	})

	if err := detectAmbiguity(kind, inWindow); err != nil {
		return nil, err
	}
	return inWindow, nil
}

// detectAmbiguity flags two active layers that share the same level, same
// key set, and same priority: spec §4.1 treats this as misconfiguration.
func detectAmbiguity(kind string, layers []domain.ConfigLayer) error {
	seen := make(map[string]string) // dedupe-key -> layer id
	for _, l := range layers {
		dedupe := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d", l.Level, l.TenantID, l.PaymentType, l.LocalInstrument, l.ClearingSystem, l.ServiceKey, l.Priority)
		if otherID, ok := seen[dedupe]; ok {
			return &coreerrors.AmbiguousConfigErr{Kind: kind, FirstID: otherID, SecondID: l.ID}
		}
		seen[dedupe] = l.ID
	}
	return nil
}

func mergeResiliency(layers []domain.ConfigLayer) (domain.ResiliencyConfig, error) {
	var out domain.ResiliencyConfig
	found := false
	for _, l := range layers {
		if l.Resiliency == nil {
			continue
		}
		found = true
		out = out.Merge(*l.Resiliency)
	}
	if !found {
		return domain.ResiliencyConfig{}, fmt.Errorf("%w: no resiliency config", coreerrors.ErrNoConfigFound)
	}
	return out, nil
}

func mergeAuth(layers []domain.ConfigLayer) (domain.AuthDescriptor, error) {
	var out domain.AuthDescriptor
	found := false
	for _, l := range layers {
		if l.Auth == nil {
			continue
		}
		found = true
		out = out.Merge(*l.Auth)
	}
	if !found {
		return domain.AuthDescriptor{}, fmt.Errorf("%w: no auth config", coreerrors.ErrNoConfigFound)
	}
	return out, nil
}

// firstMapping returns the most-specific mapping present, since payload
// mappings are not field-merged (spec §3: identity (tenant_id, name), not a
// partial overlay like resiliency/auth).
func firstMapping(layers []domain.ConfigLayer) (*domain.PayloadMapping, error) {
	for i := len(layers) - 1; i >= 0; i-- {
		if layers[i].Mapping != nil {
			return layers[i].Mapping, nil
		}
	}
	return nil, nil // mapping is optional: a call site without one passes payload through untouched
}

// firstFraudToggle returns "the first match in the precedence chain" per
// spec §4.1, i.e. the most specific layer that sets a fraud toggle.
func firstFraudToggle(layers []domain.ConfigLayer) (domain.FraudToggle, error) {
	for i := len(layers) - 1; i >= 0; i-- {
		if layers[i].Fraud != nil {
			return *layers[i].Fraud, nil
		}
	}
	return domain.FraudToggle{Enabled: false, Reason: "no fraud toggle configured"}, nil
}
