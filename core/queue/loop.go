// Package queue implements C8, the Queued-Message Loop: the background
// drain of messages C3 deferred under its QUEUE fallback (spec §4.8).
package queue

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/core/domain"
	coreerrors "github.com/ruudy-sib/corepay/core/errors"
	"github.com/ruudy-sib/corepay/core/port/secondary"
	"github.com/ruudy-sib/corepay/core/resilience"
)

// Backoff configures the next_retry_at schedule for a retried message.
type Backoff struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

func (b Backoff) delay(retryCount int) time.Duration {
	base := b.BaseDelay
	if base <= 0 {
		base = 5 * time.Second
	}
	mult := b.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := time.Duration(float64(base) * math.Pow(mult, float64(retryCount)))
	if b.MaxDelay > 0 && d > b.MaxDelay {
		d = b.MaxDelay
	}
	return d
}

// ResiliencyProvider is the subset of C1 the drain loop needs to look up
// the resiliency config for a queued message's original service key.
type ResiliencyProvider interface {
	Resolve(ctx context.Context, callCtx domain.CallContext) (domain.ResolvedConfig, error)
}

// Drain is C8's per-tick batch processor.
type Drain struct {
	store      secondary.QueueStore
	sender     secondary.MessageSender
	dispatcher *resilience.Dispatcher
	config     ResiliencyProvider
	clock      secondary.Clock
	backoff    Backoff
	batchSize  int
	logger     *zap.Logger
}

// NewDrain builds a Drain.
func NewDrain(store secondary.QueueStore, sender secondary.MessageSender, dispatcher *resilience.Dispatcher, config ResiliencyProvider, clock secondary.Clock, backoff Backoff, batchSize int, logger *zap.Logger) *Drain {
	return &Drain{store: store, sender: sender, dispatcher: dispatcher, config: config, clock: clock, backoff: backoff, batchSize: batchSize, logger: logger.Named("queue-drain")}
}

// Tick claims up to batchSize due messages and processes each one,
// returning how many were claimed (spec §4.8).
func (d *Drain) Tick(ctx context.Context) (int, error) {
	due, err := d.store.ClaimDue(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}
	for i := range due {
		d.process(ctx, due[i])
	}
	return len(due), nil
}

func (d *Drain) process(ctx context.Context, msg domain.QueuedMessage) {
	now := d.now()
	if !msg.ExpiresAt.IsZero() && !msg.ExpiresAt.After(now) {
		if err := d.store.MarkExpired(ctx, msg.MessageID); err != nil {
			d.logger.Error("mark expired failed", zap.String("message_id", msg.MessageID), zap.Error(err))
		}
		return
	}

	resiliency := domain.ResiliencyConfig{Retry: domain.RetryPolicy{MaxAttempts: 1}, Fallback: domain.FallbackPropagate}
	if d.config != nil {
		resolved, err := d.config.Resolve(ctx, domain.CallContext{TenantID: msg.TenantID, ServiceType: msg.ServiceName, Now: now})
		if err == nil {
			resiliency = resolved.Resiliency
		}
	}

	start := d.now()
	_, err := resilience.Call(ctx, d.dispatcher, resilience.CallSpec[struct{}]{
		Key:    resilience.ServiceKey{ServiceName: msg.ServiceName, TenantID: msg.TenantID},
		Config: resiliency,
		Do: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, d.sender.Send(ctx, msg)
		},
	})
	elapsed := d.now().Sub(start)

	if err == nil {
		if markErr := d.store.MarkProcessed(ctx, msg.MessageID, "ok"); markErr != nil {
			d.logger.Error("mark processed failed", zap.String("message_id", msg.MessageID), zap.Error(markErr))
		}
		d.logger.Debug("queued message processed",
			zap.String("message_id", msg.MessageID),
			zap.Duration("processing_time", elapsed),
		)
		return
	}

	if !coreerrors.IsRetryable(err) || msg.RetryCount+1 >= msg.MaxRetries {
		if markErr := d.store.MarkExpired(ctx, msg.MessageID); markErr != nil {
			d.logger.Error("mark expired failed", zap.String("message_id", msg.MessageID), zap.Error(markErr))
		}
		return
	}

	nextRetryAt := now.Add(d.backoff.delay(msg.RetryCount))
	if markErr := d.store.MarkFailed(ctx, msg.MessageID, err.Error(), nextRetryAt); markErr != nil {
		d.logger.Error("mark failed failed", zap.String("message_id", msg.MessageID), zap.Error(markErr))
	}
}

// ReclaimStuck reclaims PROCESSING records older than cutoff back to RETRY.
func (d *Drain) ReclaimStuck(ctx context.Context, cutoff time.Duration) (int, error) {
	return d.store.ReclaimStuck(ctx, d.now().Add(-cutoff))
}

func (d *Drain) now() time.Time {
	if d.clock == nil {
		return time.Now()
	}
	return d.clock.Now()
}
