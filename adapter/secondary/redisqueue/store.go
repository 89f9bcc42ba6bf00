package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/core/domain"
	"github.com/ruudy-sib/corepay/core/port/secondary"
)

const (
	keyMessages  = "corepay:queue:messages"  // hash: message_id -> JSON
	keyPending   = "corepay:queue:pending"   // sorted set: message_id, score=next_retry_at
	keyProcessing = "corepay:queue:processing" // sorted set: message_id, score=claimed_at
)

// messageDTO is the Redis-specific representation of a QueuedMessage,
// adapted from the teacher's taskDTO JSON-in-sorted-set pattern.
type messageDTO struct {
	MessageID             string            `json:"message_id"`
	Type                  string            `json:"type"`
	TenantID              string            `json:"tenant_id"`
	ServiceName           string            `json:"service_name"`
	URL                   string            `json:"url"`
	Method                string            `json:"method"`
	Payload               []byte            `json:"payload"`
	Headers               map[string]string `json:"headers"`
	Status                string            `json:"status"`
	Priority              int               `json:"priority"`
	RetryCount            int               `json:"retry_count"`
	MaxRetries            int               `json:"max_retries"`
	NextRetryAt           int64             `json:"next_retry_at"`
	ExpiresAt             int64             `json:"expires_at"`
	ProcessingCompletedAt int64             `json:"processing_completed_at,omitempty"`
	ProcessingTimeMS      int64             `json:"processing_time_ms,omitempty"`
	Result                string            `json:"result,omitempty"`
	ErrorDetail           string            `json:"error_detail,omitempty"`
	CorrelationID         string            `json:"correlation_id"`
	ParentMessageID       string            `json:"parent_message_id"`
	ClaimToken            string            `json:"claim_token"`
	CreatedAt             int64             `json:"created_at"`
}

func toDTO(m *domain.QueuedMessage) messageDTO {
	d := messageDTO{
		MessageID:       m.MessageID,
		Type:            m.Type,
		TenantID:        m.TenantID,
		ServiceName:     m.ServiceName,
		URL:             m.URL,
		Method:          m.Method,
		Payload:         m.Payload,
		Headers:         m.Headers,
		Status:          string(m.Status),
		Priority:        m.Priority,
		RetryCount:      m.RetryCount,
		MaxRetries:      m.MaxRetries,
		NextRetryAt:     m.NextRetryAt.Unix(),
		ExpiresAt:       m.ExpiresAt.Unix(),
		ProcessingTimeMS: m.ProcessingTimeMS,
		Result:          m.Result,
		ErrorDetail:     m.ErrorDetail,
		CorrelationID:   m.CorrelationID,
		ParentMessageID: m.ParentMessageID,
		ClaimToken:      m.ClaimToken,
		CreatedAt:       m.CreatedAt.Unix(),
	}
	if m.ProcessingCompletedAt != nil {
		d.ProcessingCompletedAt = m.ProcessingCompletedAt.Unix()
	}
	return d
}

func (d messageDTO) toEntity() domain.QueuedMessage {
	m := domain.QueuedMessage{
		MessageID:       d.MessageID,
		Type:            d.Type,
		TenantID:        d.TenantID,
		ServiceName:     d.ServiceName,
		URL:             d.URL,
		Method:          d.Method,
		Payload:         d.Payload,
		Headers:         d.Headers,
		Status:          domain.QueuedMessageStatus(d.Status),
		Priority:        d.Priority,
		RetryCount:      d.RetryCount,
		MaxRetries:      d.MaxRetries,
		NextRetryAt:     time.Unix(d.NextRetryAt, 0),
		ExpiresAt:       time.Unix(d.ExpiresAt, 0),
		Result:          d.Result,
		ErrorDetail:     d.ErrorDetail,
		CorrelationID:   d.CorrelationID,
		ParentMessageID: d.ParentMessageID,
		ClaimToken:      d.ClaimToken,
		CreatedAt:       time.Unix(d.CreatedAt, 0),
	}
	if d.ProcessingCompletedAt != 0 {
		t := time.Unix(d.ProcessingCompletedAt, 0)
		m.ProcessingCompletedAt = &t
	}
	m.ProcessingTimeMS = d.ProcessingTimeMS
	return m
}

// Store implements secondary.QueueStore over two Redis sorted sets
// (pending/processing) plus a hash of message bodies, generalizing the
// teacher's single ZADD/ZRANGEBYSCORE/ZREM retry queue to the PENDING ->
// PROCESSING -> {PROCESSED, RETRY, EXPIRED} lifecycle of spec §4.8.
type Store struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewStore builds a redisqueue.Store.
func NewStore(client redis.UniversalClient, logger *zap.Logger) secondary.QueueStore {
	return &Store{client: client, logger: logger.Named("redis-queue")}
}

func (s *Store) put(ctx context.Context, msg *domain.QueuedMessage) error {
	data, err := json.Marshal(toDTO(msg))
	if err != nil {
		return fmt.Errorf("marshaling queued message: %w", err)
	}
	return s.client.HSet(ctx, keyMessages, msg.MessageID, data).Err()
}

func (s *Store) get(ctx context.Context, messageID string) (domain.QueuedMessage, error) {
	raw, err := s.client.HGet(ctx, keyMessages, messageID).Result()
	if err != nil {
		return domain.QueuedMessage{}, fmt.Errorf("loading queued message %s: %w", messageID, err)
	}
	var dto messageDTO
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		return domain.QueuedMessage{}, fmt.Errorf("decoding queued message %s: %w", messageID, err)
	}
	return dto.toEntity(), nil
}

// Enqueue stores msg and schedules it for the PENDING sorted set (spec §4.3
// QUEUE fallback / §4.8).
func (s *Store) Enqueue(ctx context.Context, msg *domain.QueuedMessage) error {
	if msg.Status == "" {
		msg.Status = domain.QMPending
	}
	if err := s.put(ctx, msg); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, keyPending, redis.Z{
		Score:  float64(msg.NextRetryAt.Unix()),
		Member: msg.MessageID,
	}).Err()
}

// ClaimDue pops up to limit due PENDING/RETRY messages, moving each into
// PROCESSING (spec §4.8).
func (s *Store) ClaimDue(ctx context.Context, limit int) ([]domain.QueuedMessage, error) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	ids, err := s.client.ZRangeByScore(ctx, keyPending, &redis.ZRangeBy{
		Min:   "0",
		Max:   now,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("claiming due queued messages: %w", err)
	}

	claimed := make([]domain.QueuedMessage, 0, len(ids))
	for _, id := range ids {
		if err := s.client.ZRem(ctx, keyPending, id).Err(); err != nil {
			s.logger.Error("failed removing message from pending set", zap.String("message_id", id), zap.Error(err))
			continue
		}
		msg, err := s.get(ctx, id)
		if err != nil {
			s.logger.Warn("dropping unreadable queued message", zap.String("message_id", id), zap.Error(err))
			continue
		}
		msg.Status = domain.QMProcessing
		if err := s.put(ctx, &msg); err != nil {
			s.logger.Error("failed marking message processing", zap.String("message_id", id), zap.Error(err))
			continue
		}
		if err := s.client.ZAdd(ctx, keyProcessing, redis.Z{Score: float64(time.Now().Unix()), Member: id}).Err(); err != nil {
			s.logger.Error("failed adding message to processing set", zap.String("message_id", id), zap.Error(err))
		}
		claimed = append(claimed, msg)
	}
	return claimed, nil
}

// MarkProcessed finalizes messageID as PROCESSED (spec §4.8).
func (s *Store) MarkProcessed(ctx context.Context, messageID string, result string) error {
	msg, err := s.get(ctx, messageID)
	if err != nil {
		return err
	}
	now := time.Now()
	msg.Status = domain.QMProcessed
	msg.Result = result
	msg.ProcessingCompletedAt = &now
	if err := s.put(ctx, &msg); err != nil {
		return err
	}
	return s.client.ZRem(ctx, keyProcessing, messageID).Err()
}

// MarkFailed transitions messageID to RETRY with an incremented retry count
// and reschedules it in the PENDING set (spec §4.8).
func (s *Store) MarkFailed(ctx context.Context, messageID, errDetail string, nextRetryAt time.Time) error {
	msg, err := s.get(ctx, messageID)
	if err != nil {
		return err
	}
	msg.Status = domain.QMRetry
	msg.RetryCount++
	msg.ErrorDetail = errDetail
	msg.NextRetryAt = nextRetryAt
	if err := s.put(ctx, &msg); err != nil {
		return err
	}
	if err := s.client.ZRem(ctx, keyProcessing, messageID).Err(); err != nil {
		s.logger.Warn("failed removing message from processing set", zap.String("message_id", messageID), zap.Error(err))
	}
	return s.client.ZAdd(ctx, keyPending, redis.Z{Score: float64(nextRetryAt.Unix()), Member: messageID}).Err()
}

// MarkExpired transitions messageID to the terminal EXPIRED state.
func (s *Store) MarkExpired(ctx context.Context, messageID string) error {
	msg, err := s.get(ctx, messageID)
	if err != nil {
		return err
	}
	msg.Status = domain.QMExpired
	if err := s.put(ctx, &msg); err != nil {
		return err
	}
	s.client.ZRem(ctx, keyPending, messageID)
	return s.client.ZRem(ctx, keyProcessing, messageID).Err()
}

// ReclaimStuck moves PROCESSING messages claimed before cutoff back to
// PENDING/RETRY (spec §4.8, §5 "at-most-one concurrent executor per id").
func (s *Store) ReclaimStuck(ctx context.Context, cutoff time.Time) (int, error) {
	max := fmt.Sprintf("%d", cutoff.Unix())
	ids, err := s.client.ZRangeByScore(ctx, keyProcessing, &redis.ZRangeBy{Min: "0", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("scanning stuck processing messages: %w", err)
	}
	now := time.Now()
	for _, id := range ids {
		msg, err := s.get(ctx, id)
		if err != nil {
			s.logger.Warn("dropping unreadable stuck message", zap.String("message_id", id), zap.Error(err))
			s.client.ZRem(ctx, keyProcessing, id)
			continue
		}
		msg.Status = domain.QMRetry
		if err := s.put(ctx, &msg); err != nil {
			continue
		}
		s.client.ZRem(ctx, keyProcessing, id)
		s.client.ZAdd(ctx, keyPending, redis.Z{Score: float64(now.Unix()), Member: id})
	}
	return len(ids), nil
}
