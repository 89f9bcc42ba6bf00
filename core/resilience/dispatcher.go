// Package resilience implements C3, the Resilient Dispatcher: every
// outbound call is wrapped in bulkhead + per-attempt timeout + retry with
// backoff + circuit breaker (outermost) + fallback (spec §4.3).
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ruudy-sib/corepay/core/domain"
	coreerrors "github.com/ruudy-sib/corepay/core/errors"
	"github.com/ruudy-sib/corepay/core/port/secondary"
)

// ServiceKey identifies one circuit-breaker/bulkhead domain: spec §5 gives
// each (serviceName, tenant) pair independent state so no tenant can cause
// head-of-line blocking for another.
type ServiceKey struct {
	ServiceName string
	TenantID    string
}

func (k ServiceKey) String() string { return k.ServiceName + "|" + k.TenantID }

// keyState bundles the per-key collaborators the dispatcher maintains.
type keyState struct {
	window  *slidingWindow
	sem     *semaphore.Weighted
	semCap  int64
	breaker *gobreaker.CircuitBreaker[any]
}

// Dispatcher is C3. One Dispatcher instance is shared by every call site;
// its internal maps are keyed per ServiceKey so tenants never contend.
type Dispatcher struct {
	mu      sync.Mutex
	keys    map[ServiceKey]*keyState
	queue   secondary.QueueStore
	cache   secondary.LastKnownGoodCache
	clock   secondary.Clock
	metrics *Metrics
	logger  *zap.Logger
}

// NewDispatcher builds a Dispatcher. queue and cache back the fallback
// strategies of spec §4.3 and may be nil if those strategies are never
// configured.
func NewDispatcher(queue secondary.QueueStore, cache secondary.LastKnownGoodCache, clock secondary.Clock, metrics *Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		keys:    make(map[ServiceKey]*keyState),
		queue:   queue,
		cache:   cache,
		clock:   clock,
		metrics: metrics,
		logger:  logger.Named("dispatcher"),
	}
}

func (d *Dispatcher) stateFor(key ServiceKey, cfg domain.ResiliencyConfig) *keyState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ks, ok := d.keys[key]; ok && ks.semCap == capFor(cfg) {
		return ks
	}
	var window *slidingWindow
	if ks, ok := d.keys[key]; ok {
		window = ks.window // preserve history across a config refresh
	} else {
		window = newSlidingWindow(cfg.SlidingWindowSize)
	}
	cap64 := capFor(cfg)
	ks := &keyState{
		window: window,
		sem:    semaphore.NewWeighted(cap64),
		semCap: cap64,
	}
	ks.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        key.String(),
		MaxRequests: halfOpenMaxRequests(cfg),
		Interval:    0,
		Timeout:     cfg.WaitDurationInOpen,
		ReadyToTrip: func(_ gobreaker.Counts) bool {
			failRate, slowRate, n := window.Rates()
			if n < cfg.MinimumCalls {
				return false
			}
			return failRate >= cfg.FailureThreshold || (cfg.SlowCallRateThreshold > 0 && slowRate >= cfg.SlowCallRateThreshold)
		},
		IsSuccessful: func(err error) bool { return err == nil },
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Info("breaker state transition",
				zap.String("key", name),
				zap.String("from", stateName(from)),
				zap.String("to", stateName(to)),
			)
			if d.metrics != nil {
				d.metrics.setState(key.ServiceName, key.TenantID, stateValue(to))
			}
		},
	})
	d.keys[key] = ks
	return ks
}

// halfOpenMaxRequests derives gobreaker's MaxRequests, the single counter
// it uses both to admit HALF_OPEN probes and to decide when enough
// consecutive successes have landed to close. Configuration wants up to
// PermittedCallsInHalfOpen probes admitted and SuccessThreshold of them
// succeeding before the breaker closes; gobreaker has no separate knob for
// the two, so the larger of the two wins, guaranteeing at least
// SuccessThreshold consecutive successes are required and at least
// PermittedCallsInHalfOpen probes are admitted.
func halfOpenMaxRequests(cfg domain.ResiliencyConfig) uint32 {
	return uint32(maxInt(maxInt(cfg.PermittedCallsInHalfOpen, cfg.SuccessThreshold), 1))
}

func capFor(cfg domain.ResiliencyConfig) int64 {
	if cfg.MaxConcurrentCalls <= 0 {
		return 1
	}
	return int64(cfg.MaxConcurrentCalls)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func stateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "CLOSED"
	case gobreaker.StateHalfOpen:
		return "HALF_OPEN"
	case gobreaker.StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func currentStateString(ks *keyState) string {
	return stateName(ks.breaker.State())
}

// Attempt is the downstream call C3 wraps.
type Attempt[T any] func(ctx context.Context) (T, error)

// CallSpec bundles the per-call configuration and fallback materials.
type CallSpec[T any] struct {
	Key         ServiceKey
	Config      domain.ResiliencyConfig
	Do          Attempt[T]
	CacheKey    string                       // used when Config.Fallback == FallbackCached
	BuildQueued func() *domain.QueuedMessage // used when Config.Fallback == FallbackQueue
	DecodeCache func([]byte) (T, error)      // used when Config.Fallback == FallbackCached
}

// Result is what Call returns: either a real value, or — when every layer
// exhausts itself — a fallback outcome the caller (C6) must treat as
// not-yet-completed (spec §4.3: "the orchestrator sees fallback-used and
// treats it as not-yet-completed").
type Result[T any] struct {
	Value        T
	FallbackUsed bool
}

// Call executes spec.Do through bulkhead -> per-attempt timeout -> retry
// with backoff, with the whole retried sequence wrapped by the circuit
// breaker (outermost), and applies the configured fallback on terminal
// failure (spec §4.3).
func Call[T any](ctx context.Context, d *Dispatcher, spec CallSpec[T]) (Result[T], error) {
	ks := d.stateFor(spec.Key, spec.Config)

	raw, breakerErr := ks.breaker.Execute(func() (any, error) {
		return retryLoop(ctx, d, spec, ks)
	})

	if breakerErr != nil {
		if errors.Is(breakerErr, gobreaker.ErrOpenState) || errors.Is(breakerErr, gobreaker.ErrTooManyRequests) {
			d.emit(spec.Key, "circuit_open", 0, currentStateString(ks))
			return fallback(ctx, d, spec, coreerrors.ErrCircuitOpen)
		}
		return fallback(ctx, d, spec, breakerErr)
	}
	if v, ok := raw.(T); ok {
		return Result[T]{Value: v}, nil
	}
	var zero T
	return Result[T]{Value: zero}, nil
}

// retryLoop runs spec.Do up to Config.Retry.MaxAttempts times with
// exponential backoff, each attempt bounded by the bulkhead and the
// per-attempt timeout (spec §4.3 layers 1-3). Every attempt's outcome is
// recorded into the key's sliding window and metrics regardless of which
// attempt eventually succeeds, since the breaker's trip decision depends on
// attempt-level rates, not call-level ones.
func retryLoop[T any](ctx context.Context, d *Dispatcher, spec CallSpec[T], ks *keyState) (T, error) {
	policy := spec.Config.Retry
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	var zero T
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := attemptOnce(ctx, d, spec, ks)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == maxAttempts || !shouldRetry(err, policy) {
			return zero, lastErr
		}

		delay := backoffDelay(policy, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// attemptOnce acquires the bulkhead slot, runs spec.Do under a per-attempt
// timeout, and records the outcome into the key's sliding window and
// metrics (spec §4.3 layers 1-2).
func attemptOnce[T any](ctx context.Context, d *Dispatcher, spec CallSpec[T], ks *keyState) (T, error) {
	var zero T

	waitCtx := ctx
	var cancelWait context.CancelFunc
	if spec.Config.MaxWaitDuration > 0 {
		waitCtx, cancelWait = context.WithTimeout(ctx, spec.Config.MaxWaitDuration)
		defer cancelWait()
	}
	if err := ks.sem.Acquire(waitCtx, 1); err != nil {
		d.emit(spec.Key, "bulkhead_full", 0, currentStateString(ks))
		return zero, coreerrors.ErrBulkheadFull
	}
	defer ks.sem.Release(1)

	attemptCtx := ctx
	var cancelAttempt context.CancelFunc
	if spec.Config.Timeout > 0 {
		attemptCtx, cancelAttempt = context.WithTimeout(ctx, spec.Config.Timeout)
		defer cancelAttempt()
	}

	start := d.now()
	v, err := spec.Do(attemptCtx)
	latency := d.now().Sub(start)

	if err == nil {
		ks.window.Record(false, latency, spec.Config.SlowCallThreshold)
		d.emit(spec.Key, "success", latency, currentStateString(ks))
		return v, nil
	}

	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = coreerrors.ErrTimeout
	}
	ks.window.Record(true, latency, spec.Config.SlowCallThreshold)
	d.emit(spec.Key, "failure", latency, currentStateString(ks))
	return zero, err
}

func (d *Dispatcher) now() time.Time {
	if d.clock == nil {
		return time.Now()
	}
	return d.clock.Now()
}

func shouldRetry(err error, policy domain.RetryPolicy) bool {
	for _, ignored := range policy.IgnoreErrors {
		if ignored != "" && errorNameMatches(err, ignored) {
			return false
		}
	}
	if len(policy.RetryOnErrors) > 0 {
		for _, name := range policy.RetryOnErrors {
			if errorNameMatches(err, name) {
				return true
			}
		}
		return false
	}
	return coreerrors.IsRetryable(err)
}

func errorNameMatches(err error, name string) bool {
	switch name {
	case "TIMEOUT":
		return errors.Is(err, coreerrors.ErrTimeout)
	case "NETWORK":
		return errors.Is(err, coreerrors.ErrNetwork)
	case "ACK_TIMEOUT":
		return errors.Is(err, coreerrors.ErrAckTimeout)
	case "BULKHEAD_FULL":
		return errors.Is(err, coreerrors.ErrBulkheadFull)
	default:
		return false
	}
}

func backoffDelay(policy domain.RetryPolicy, attempt int) time.Duration {
	base := policy.WaitDuration
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	mult := policy.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	delay := time.Duration(float64(base) * math.Pow(mult, float64(attempt-1)))
	if policy.MaxWaitDuration > 0 && delay > policy.MaxWaitDuration {
		delay = policy.MaxWaitDuration
	}
	return delay
}

func (d *Dispatcher) emit(key ServiceKey, outcome string, latency time.Duration, state string) {
	if d.metrics == nil {
		return
	}
	d.metrics.observe(domainCallOutcome{
		service:        key.ServiceName,
		tenant:         key.TenantID,
		outcome:        outcome,
		state:          state,
		latencySeconds: latency.Seconds(),
	})
}

// fallback applies the configured fallback strategy once every retry and
// the breaker have been exhausted (spec §4.3: QUEUE, CACHED, PROPAGATE).
func fallback[T any](ctx context.Context, d *Dispatcher, spec CallSpec[T], cause error) (Result[T], error) {
	var zero T
	switch spec.Config.Fallback {
	case domain.FallbackQueue:
		if spec.BuildQueued == nil || d.queue == nil {
			return Result[T]{}, cause
		}
		msg := spec.BuildQueued()
		if err := d.queue.Enqueue(ctx, msg); err != nil {
			return Result[T]{}, fmt.Errorf("fallback queue enqueue failed: %w (after: %v)", err, cause)
		}
		return Result[T]{Value: zero, FallbackUsed: true}, nil

	case domain.FallbackCached:
		if d.cache == nil || spec.CacheKey == "" || spec.DecodeCache == nil {
			return Result[T]{}, cause
		}
		raw, ok, err := d.cache.Get(ctx, spec.CacheKey)
		if err != nil || !ok {
			return Result[T]{}, cause
		}
		v, err := spec.DecodeCache(raw)
		if err != nil {
			return Result[T]{}, cause
		}
		return Result[T]{Value: v, FallbackUsed: true}, nil

	default: // FallbackPropagate, or unset
		return Result[T]{}, cause
	}
}
