package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/core/domain"
	coreerrors "github.com/ruudy-sib/corepay/core/errors"
)

// fakeClock implements secondary.Clock with a fixed, advanceable time.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// fakeQueue implements secondary.QueueStore for testing the QUEUE fallback.
type fakeQueue struct {
	enqueued []*domain.QueuedMessage
	err      error
}

func (q *fakeQueue) Enqueue(ctx context.Context, msg *domain.QueuedMessage) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, msg)
	return nil
}
func (q *fakeQueue) ClaimDue(ctx context.Context, limit int) ([]domain.QueuedMessage, error) { return nil, nil }
func (q *fakeQueue) MarkProcessed(ctx context.Context, messageID, result string) error       { return nil }
func (q *fakeQueue) MarkFailed(ctx context.Context, messageID, errDetail string, nextRetryAt time.Time) error {
	return nil
}
func (q *fakeQueue) MarkExpired(ctx context.Context, messageID string) error          { return nil }
func (q *fakeQueue) ReclaimStuck(ctx context.Context, cutoff time.Time) (int, error) { return 0, nil }

// fakeCache implements secondary.LastKnownGoodCache for testing the CACHED fallback.
type fakeCache struct {
	values map[string][]byte
}

func (c *fakeCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.values == nil {
		c.values = make(map[string][]byte)
	}
	c.values[key] = value
	return nil
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := c.values[key]
	return v, ok, nil
}

func newTestDispatcher() *Dispatcher {
	return NewDispatcher(&fakeQueue{}, &fakeCache{}, &fakeClock{now: time.Unix(0, 0)}, NewMetrics(prometheus.NewRegistry()), zap.NewNop())
}

func baseConfig() domain.ResiliencyConfig {
	return domain.ResiliencyConfig{
		FailureThreshold:      0.5,
		SlidingWindowSize:     5,
		MinimumCalls:          2,
		SuccessThreshold:      1,
		WaitDurationInOpen:    10 * time.Millisecond,
		Timeout:               50 * time.Millisecond,
		MaxConcurrentCalls:    2,
		MaxWaitDuration:       50 * time.Millisecond,
		Retry: domain.RetryPolicy{
			MaxAttempts:       3,
			WaitDuration:      time.Millisecond,
			BackoffMultiplier: 1,
		},
		Fallback: domain.FallbackPropagate,
	}
}

func TestCall_SucceedsOnFirstAttempt(t *testing.T) {
	d := newTestDispatcher()
	spec := CallSpec[string]{
		Key:    ServiceKey{ServiceName: "core-banking", TenantID: "tenant-a"},
		Config: baseConfig(),
		Do:     func(ctx context.Context) (string, error) { return "ok", nil },
	}

	res, err := Call(context.Background(), d, spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value != "ok" {
		t.Errorf("got value %q, want %q", res.Value, "ok")
	}
	if res.FallbackUsed {
		t.Error("fallback should not be used on success")
	}
}

func TestCall_RetriesThenSucceeds(t *testing.T) {
	d := newTestDispatcher()
	attempts := 0
	cfg := baseConfig()
	spec := CallSpec[int]{
		Key:    ServiceKey{ServiceName: "clearing", TenantID: "tenant-b"},
		Config: cfg,
		Do: func(ctx context.Context) (int, error) {
			attempts++
			if attempts < 3 {
				return 0, coreerrors.ErrNetwork
			}
			return 42, nil
		},
	}

	res, err := Call(context.Background(), d, spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Value != 42 {
		t.Errorf("got %d, want 42", res.Value)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestCall_NonRetryableErrorStopsImmediately(t *testing.T) {
	d := newTestDispatcher()
	attempts := 0
	cfg := baseConfig()
	sentinel := errors.New("boom")
	spec := CallSpec[int]{
		Key:    ServiceKey{ServiceName: "fraud-api", TenantID: "tenant-c"},
		Config: cfg,
		Do: func(ctx context.Context) (int, error) {
			attempts++
			return 0, sentinel
		},
	}

	_, err := Call(context.Background(), d, spec)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("non-retryable error should stop after one attempt, got %d", attempts)
	}
}

func TestCall_FallbackQueueOnExhaustion(t *testing.T) {
	queue := &fakeQueue{}
	d := NewDispatcher(queue, &fakeCache{}, &fakeClock{now: time.Unix(0, 0)}, NewMetrics(prometheus.NewRegistry()), zap.NewNop())

	cfg := baseConfig()
	cfg.Fallback = domain.FallbackQueue
	cfg.Retry.MaxAttempts = 1

	spec := CallSpec[string]{
		Key:    ServiceKey{ServiceName: "clearing", TenantID: "tenant-d"},
		Config: cfg,
		Do:     func(ctx context.Context) (string, error) { return "", coreerrors.ErrNetwork },
		BuildQueued: func() *domain.QueuedMessage {
			return &domain.QueuedMessage{MessageID: "m-1", ServiceName: "clearing", TenantID: "tenant-d"}
		},
	}

	res, err := Call(context.Background(), d, spec)
	if err != nil {
		t.Fatalf("fallback should absorb the error, got %v", err)
	}
	if !res.FallbackUsed {
		t.Error("expected FallbackUsed to be true")
	}
	if len(queue.enqueued) != 1 {
		t.Fatalf("expected one enqueued message, got %d", len(queue.enqueued))
	}
	if queue.enqueued[0].MessageID != "m-1" {
		t.Errorf("unexpected enqueued message id %q", queue.enqueued[0].MessageID)
	}
}

func TestCall_FallbackCachedOnExhaustion(t *testing.T) {
	cache := &fakeCache{values: map[string][]byte{"balance:acct-1": []byte("100.00")}}
	d := NewDispatcher(&fakeQueue{}, cache, &fakeClock{now: time.Unix(0, 0)}, NewMetrics(prometheus.NewRegistry()), zap.NewNop())

	cfg := baseConfig()
	cfg.Fallback = domain.FallbackCached
	cfg.Retry.MaxAttempts = 1

	spec := CallSpec[string]{
		Key:      ServiceKey{ServiceName: "core-banking", TenantID: "tenant-e"},
		Config:   cfg,
		Do:       func(ctx context.Context) (string, error) { return "", coreerrors.ErrNetwork },
		CacheKey: "balance:acct-1",
		DecodeCache: func(b []byte) (string, error) {
			return string(b), nil
		},
	}

	res, err := Call(context.Background(), d, spec)
	if err != nil {
		t.Fatalf("fallback should absorb the error, got %v", err)
	}
	if !res.FallbackUsed || res.Value != "100.00" {
		t.Errorf("expected cached fallback value, got %+v", res)
	}
}

func TestCall_BulkheadRejectsBeyondCapacity(t *testing.T) {
	d := newTestDispatcher()
	cfg := baseConfig()
	cfg.MaxConcurrentCalls = 1
	cfg.MaxWaitDuration = 5 * time.Millisecond
	cfg.Retry.MaxAttempts = 1
	cfg.Fallback = domain.FallbackPropagate

	release := make(chan struct{})
	started := make(chan struct{})
	key := ServiceKey{ServiceName: "core-banking", TenantID: "tenant-f"}

	go func() {
		spec := CallSpec[string]{
			Key:    key,
			Config: cfg,
			Do: func(ctx context.Context) (string, error) {
				close(started)
				<-release
				return "first", nil
			},
		}
		_, _ = Call(context.Background(), d, spec)
	}()

	<-started
	spec := CallSpec[string]{
		Key:    key,
		Config: cfg,
		Do:     func(ctx context.Context) (string, error) { return "second", nil },
	}
	_, err := Call(context.Background(), d, spec)
	close(release)

	if !errors.Is(err, coreerrors.ErrBulkheadFull) {
		t.Fatalf("expected bulkhead-full error, got %v", err)
	}
}

func TestCall_CircuitOpensAfterFailureThreshold(t *testing.T) {
	d := newTestDispatcher()
	cfg := baseConfig()
	cfg.MinimumCalls = 2
	cfg.SlidingWindowSize = 2
	cfg.FailureThreshold = 0.5
	cfg.Retry.MaxAttempts = 1
	cfg.Fallback = domain.FallbackPropagate
	key := ServiceKey{ServiceName: "clearing", TenantID: "tenant-g"}

	failing := CallSpec[string]{
		Key:    key,
		Config: cfg,
		Do:     func(ctx context.Context) (string, error) { return "", coreerrors.ErrNetwork },
	}
	for i := 0; i < 2; i++ {
		if _, err := Call(context.Background(), d, failing); err == nil {
			t.Fatalf("expected failure on warm-up call %d", i)
		}
	}

	_, err := Call(context.Background(), d, failing)
	if !errors.Is(err, coreerrors.ErrCircuitOpen) {
		t.Fatalf("expected circuit-open error once the window trips, got %v", err)
	}
}

func TestCall_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	d := newTestDispatcher()
	cfg := baseConfig()
	cfg.MinimumCalls = 2
	cfg.SlidingWindowSize = 2
	cfg.FailureThreshold = 0.5
	cfg.WaitDurationInOpen = 5 * time.Millisecond
	cfg.PermittedCallsInHalfOpen = 3
	cfg.SuccessThreshold = 2
	cfg.Retry.MaxAttempts = 1
	cfg.Fallback = domain.FallbackPropagate
	key := ServiceKey{ServiceName: "clearing", TenantID: "tenant-h"}

	failing := CallSpec[string]{
		Key:    key,
		Config: cfg,
		Do:     func(ctx context.Context) (string, error) { return "", coreerrors.ErrNetwork },
	}
	for i := 0; i < 2; i++ {
		if _, err := Call(context.Background(), d, failing); err == nil {
			t.Fatalf("expected failure on warm-up call %d", i)
		}
	}
	if _, err := Call(context.Background(), d, failing); !errors.Is(err, coreerrors.ErrCircuitOpen) {
		t.Fatalf("expected circuit-open once the window trips, got %v", err)
	}

	time.Sleep(2 * cfg.WaitDurationInOpen)

	succeeding := CallSpec[string]{
		Key:    key,
		Config: cfg,
		Do:     func(ctx context.Context) (string, error) { return "ok", nil },
	}
	// gobreaker closes only once MaxRequests consecutive successes land, and
	// MaxRequests here is max(PermittedCallsInHalfOpen, SuccessThreshold) —
	// larger than SuccessThreshold alone whenever PermittedCallsInHalfOpen
	// asks for more probes than SuccessThreshold requires successes.
	for i := 0; i < int(halfOpenMaxRequests(cfg)); i++ {
		res, err := Call(context.Background(), d, succeeding)
		if err != nil {
			t.Fatalf("half-open probe %d should be admitted, got %v", i, err)
		}
		if res.Value != "ok" {
			t.Errorf("probe %d: got %q, want %q", i, res.Value, "ok")
		}
	}

	// The breaker should now be CLOSED: a fresh failing call is recorded
	// against the sliding window rather than rejected as circuit-open.
	if _, err := Call(context.Background(), d, failing); !errors.Is(err, coreerrors.ErrNetwork) {
		t.Fatalf("expected the closed breaker to let the call through to the sliding window, got %v", err)
	}
}

func TestCall_HalfOpenReopensOnFailure(t *testing.T) {
	d := newTestDispatcher()
	cfg := baseConfig()
	cfg.MinimumCalls = 2
	cfg.SlidingWindowSize = 2
	cfg.FailureThreshold = 0.5
	cfg.WaitDurationInOpen = 5 * time.Millisecond
	cfg.PermittedCallsInHalfOpen = 3
	cfg.SuccessThreshold = 2
	cfg.Retry.MaxAttempts = 1
	cfg.Fallback = domain.FallbackPropagate
	key := ServiceKey{ServiceName: "clearing", TenantID: "tenant-i"}

	failing := CallSpec[string]{
		Key:    key,
		Config: cfg,
		Do:     func(ctx context.Context) (string, error) { return "", coreerrors.ErrNetwork },
	}
	for i := 0; i < 2; i++ {
		if _, err := Call(context.Background(), d, failing); err == nil {
			t.Fatalf("expected failure on warm-up call %d", i)
		}
	}
	if _, err := Call(context.Background(), d, failing); !errors.Is(err, coreerrors.ErrCircuitOpen) {
		t.Fatalf("expected circuit-open once the window trips, got %v", err)
	}

	time.Sleep(2 * cfg.WaitDurationInOpen)

	// A single failed probe in HALF_OPEN must reopen the breaker immediately.
	if _, err := Call(context.Background(), d, failing); !errors.Is(err, coreerrors.ErrNetwork) {
		t.Fatalf("expected the half-open probe itself to surface the network error, got %v", err)
	}
	if _, err := Call(context.Background(), d, failing); !errors.Is(err, coreerrors.ErrCircuitOpen) {
		t.Fatalf("expected the breaker to be OPEN again after the half-open probe failed, got %v", err)
	}
}
