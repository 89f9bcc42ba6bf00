package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/core/domain"
	coreerrors "github.com/ruudy-sib/corepay/core/errors"
	"github.com/ruudy-sib/corepay/core/resilience"
)

type fakeQueueStore struct {
	due             []domain.QueuedMessage
	processed       []string
	failed          []string
	expired         []string
	reclaimedCutoff time.Time
	reclaimCount    int
}

func (s *fakeQueueStore) Enqueue(ctx context.Context, msg *domain.QueuedMessage) error { return nil }

func (s *fakeQueueStore) ClaimDue(ctx context.Context, limit int) ([]domain.QueuedMessage, error) {
	return s.due, nil
}

func (s *fakeQueueStore) MarkProcessed(ctx context.Context, messageID string, result string) error {
	s.processed = append(s.processed, messageID)
	return nil
}

func (s *fakeQueueStore) MarkFailed(ctx context.Context, messageID, errDetail string, nextRetryAt time.Time) error {
	s.failed = append(s.failed, messageID)
	return nil
}

func (s *fakeQueueStore) MarkExpired(ctx context.Context, messageID string) error {
	s.expired = append(s.expired, messageID)
	return nil
}

func (s *fakeQueueStore) ReclaimStuck(ctx context.Context, cutoff time.Time) (int, error) {
	s.reclaimedCutoff = cutoff
	return s.reclaimCount, nil
}

type fakeSender struct {
	sendFunc func(ctx context.Context, msg domain.QueuedMessage) error
}

func (f *fakeSender) Send(ctx context.Context, msg domain.QueuedMessage) error {
	return f.sendFunc(ctx, msg)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestDrain(store *fakeQueueStore, sender *fakeSender, clock fixedClock) *Drain {
	dispatcher := resilience.NewDispatcher(nil, nil, clock, resilience.NewMetrics(prometheus.NewRegistry()), zap.NewNop())
	return NewDrain(store, sender, dispatcher, nil, clock, Backoff{BaseDelay: time.Second, Multiplier: 2}, 10, zap.NewNop())
}

func TestTick_ProcessesDueMessageSuccessfully(t *testing.T) {
	store := &fakeQueueStore{due: []domain.QueuedMessage{
		{MessageID: "m1", MaxRetries: 3},
	}}
	sender := &fakeSender{sendFunc: func(ctx context.Context, msg domain.QueuedMessage) error { return nil }}
	d := newTestDrain(store, sender, fixedClock{t: time.Unix(100, 0)})

	n, err := d.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 claimed, got %d", n)
	}
	if len(store.processed) != 1 || store.processed[0] != "m1" {
		t.Errorf("expected m1 marked processed, got %v", store.processed)
	}
}

func TestTick_RetryableFailureReschedules(t *testing.T) {
	store := &fakeQueueStore{due: []domain.QueuedMessage{
		{MessageID: "m2", MaxRetries: 3, RetryCount: 0},
	}}
	sender := &fakeSender{sendFunc: func(ctx context.Context, msg domain.QueuedMessage) error { return coreerrors.ErrTimeout }}
	d := newTestDrain(store, sender, fixedClock{t: time.Unix(100, 0)})

	_, err := d.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.failed) != 1 || store.failed[0] != "m2" {
		t.Errorf("expected m2 marked failed/rescheduled, got %v", store.failed)
	}
}

func TestTick_ExhaustedRetriesExpires(t *testing.T) {
	store := &fakeQueueStore{due: []domain.QueuedMessage{
		{MessageID: "m3", MaxRetries: 1, RetryCount: 0},
	}}
	sender := &fakeSender{sendFunc: func(ctx context.Context, msg domain.QueuedMessage) error { return coreerrors.ErrTimeout }}
	d := newTestDrain(store, sender, fixedClock{t: time.Unix(100, 0)})

	_, err := d.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.expired) != 1 || store.expired[0] != "m3" {
		t.Errorf("expected m3 marked expired, got %v", store.expired)
	}
}

func TestTick_NonRetryableFailureExpiresImmediately(t *testing.T) {
	store := &fakeQueueStore{due: []domain.QueuedMessage{
		{MessageID: "m4", MaxRetries: 5, RetryCount: 0},
	}}
	sender := &fakeSender{sendFunc: func(ctx context.Context, msg domain.QueuedMessage) error { return errors.New("bad request") }}
	d := newTestDrain(store, sender, fixedClock{t: time.Unix(100, 0)})

	_, err := d.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.expired) != 1 {
		t.Errorf("expected non-retryable failure to expire immediately, got expired=%v failed=%v", store.expired, store.failed)
	}
}

func TestTick_AlreadyExpiredMessageSkipsSend(t *testing.T) {
	past := time.Unix(50, 0)
	store := &fakeQueueStore{due: []domain.QueuedMessage{
		{MessageID: "m5", MaxRetries: 5, ExpiresAt: past},
	}}
	called := false
	sender := &fakeSender{sendFunc: func(ctx context.Context, msg domain.QueuedMessage) error { called = true; return nil }}
	d := newTestDrain(store, sender, fixedClock{t: time.Unix(100, 0)})

	_, err := d.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Errorf("expected send to be skipped for an already-expired message")
	}
	if len(store.expired) != 1 {
		t.Errorf("expected m5 marked expired, got %v", store.expired)
	}
}

func TestReclaimStuck_DelegatesWithCutoff(t *testing.T) {
	store := &fakeQueueStore{reclaimCount: 3}
	d := newTestDrain(store, &fakeSender{sendFunc: func(ctx context.Context, msg domain.QueuedMessage) error { return nil }}, fixedClock{t: time.Unix(1000, 0)})

	n, err := d.ReclaimStuck(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 reclaimed, got %d", n)
	}
	wantCutoff := time.Unix(1000, 0).Add(-10 * time.Minute)
	if !store.reclaimedCutoff.Equal(wantCutoff) {
		t.Errorf("expected cutoff %v, got %v", wantCutoff, store.reclaimedCutoff)
	}
}
