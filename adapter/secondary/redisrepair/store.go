// Package redisrepair implements secondary.RepairStore over Redis,
// adapted from the teacher's redisstore sorted-set scheduling pattern.
package redisrepair

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
	keyRecords = "corepay:repair:records" // hash: "tenant:tx_ref" -> JSON
	keyPending = "corepay:repair:pending" // sorted set: member, score encodes priority DESC + created_at ASC
	keyTimeout = "corepay:repair:timeout" // sorted set: member, score=timeout_at unix
)

type recordDTO struct {
	TransactionReference string `json:"transaction_reference"`
	TenantID             string `json:"tenant_id"`
	RepairType           string `json:"repair_type"`
	RepairStatus         string `json:"repair_status"`
	DebitStatus          string `json:"debit_status"`
	CreditStatus         string `json:"credit_status"`
	DebitLegID           string `json:"debit_leg_id"`
	CreditLegID          string `json:"credit_leg_id"`
	FromAccount          string `json:"from_account"`
	ToAccount            string `json:"to_account"`
	AmountMinor          int64  `json:"amount_minor"`
	AmountScale          int    `json:"amount_scale"`
	AmountCurrency       string `json:"amount_currency"`
	RetryCount           int    `json:"retry_count"`
	MaxRetries           int    `json:"max_retries"`
	NextRetryAt          int64  `json:"next_retry_at"`
	TimeoutAt            int64  `json:"timeout_at,omitempty"`
	Priority             int    `json:"priority"`
	CorrectiveAction     string `json:"corrective_action"`
	ResolutionNotes      string `json:"resolution_notes"`
	ResolvedAt           int64  `json:"resolved_at,omitempty"`
	ResolvedBy           string `json:"resolved_by"`
	CreatedAt            int64  `json:"created_at"`
	ClaimToken           string `json:"claim_token"`
}

func toDTO(r *domain.RepairRecord) recordDTO {
	d := recordDTO{
		TransactionReference: r.TransactionReference,
		TenantID:             r.TenantID,
		RepairType:           string(r.RepairType),
		RepairStatus:         string(r.RepairStatus),
		DebitStatus:          string(r.DebitStatus),
		CreditStatus:         string(r.CreditStatus),
		DebitLegID:           r.DebitLegID,
		CreditLegID:          r.CreditLegID,
		FromAccount:          r.FromAccount,
		ToAccount:            r.ToAccount,
		AmountMinor:          r.Amount.Minor,
		AmountScale:          r.Amount.Scale,
		AmountCurrency:       r.Amount.Currency,
		RetryCount:           r.RetryCount,
		MaxRetries:           r.MaxRetries,
		NextRetryAt:          r.NextRetryAt.Unix(),
		Priority:             r.Priority,
		CorrectiveAction:     string(r.CorrectiveAction),
		ResolutionNotes:      r.ResolutionNotes,
		ResolvedBy:           r.ResolvedBy,
		CreatedAt:            r.CreatedAt.Unix(),
		ClaimToken:           r.ClaimToken,
	}
	if r.TimeoutAt != nil {
		d.TimeoutAt = r.TimeoutAt.Unix()
	}
	if r.ResolvedAt != nil {
		d.ResolvedAt = r.ResolvedAt.Unix()
	}
	return d
}

func (d recordDTO) toEntity() domain.RepairRecord {
	r := domain.RepairRecord{
		TransactionReference: d.TransactionReference,
		TenantID:             d.TenantID,
		RepairType:           domain.RepairType(d.RepairType),
		RepairStatus:         domain.RepairStatus(d.RepairStatus),
		DebitStatus:          domain.LegStatus(d.DebitStatus),
		CreditStatus:         domain.LegStatus(d.CreditStatus),
		DebitLegID:           d.DebitLegID,
		CreditLegID:          d.CreditLegID,
		FromAccount:          d.FromAccount,
		ToAccount:            d.ToAccount,
		Amount:               domain.Money{Minor: d.AmountMinor, Scale: d.AmountScale, Currency: d.AmountCurrency},
		RetryCount:           d.RetryCount,
		MaxRetries:           d.MaxRetries,
		NextRetryAt:          time.Unix(d.NextRetryAt, 0),
		Priority:             d.Priority,
		CorrectiveAction:     domain.CorrectiveAction(d.CorrectiveAction),
		ResolutionNotes:      d.ResolutionNotes,
		ResolvedBy:           d.ResolvedBy,
		CreatedAt:            time.Unix(d.CreatedAt, 0),
		ClaimToken:           d.ClaimToken,
	}
	if d.TimeoutAt != 0 {
		t := time.Unix(d.TimeoutAt, 0)
		r.TimeoutAt = &t
	}
	if d.ResolvedAt != 0 {
		t := time.Unix(d.ResolvedAt, 0)
		r.ResolvedAt = &t
	}
	return r
}

func recordKey(txRef, tenantID string) string { return tenantID + ":" + txRef }

// priorityScore encodes "priority DESC, created_at ASC" into a single
// sorted-set score: higher priority always outranks lower priority, and
// within one priority an earlier created_at outranks a later one.
func priorityScore(priority int, createdAt time.Time) float64 {
	return float64(priority)*1e12 - float64(createdAt.Unix())
}

// Store implements secondary.RepairStore over Redis.
type Store struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewStore builds a redisrepair.Store.
func NewStore(client redis.UniversalClient, logger *zap.Logger) secondary.RepairStore {
	return &Store{client: client, logger: logger.Named("redis-repair")}
}

func (s *Store) put(ctx context.Context, rec *domain.RepairRecord) error {
	data, err := json.Marshal(toDTO(rec))
	if err != nil {
		return fmt.Errorf("marshaling repair record: %w", err)
	}
	return s.client.HSet(ctx, keyRecords, recordKey(rec.TransactionReference, rec.TenantID), data).Err()
}

// Create persists a new repair record and indexes it for pickup (spec §4.7).
func (s *Store) Create(ctx context.Context, rec *domain.RepairRecord) error {
	if err := s.put(ctx, rec); err != nil {
		return err
	}
	key := recordKey(rec.TransactionReference, rec.TenantID)
	if err := s.client.ZAdd(ctx, keyPending, redis.Z{Score: priorityScore(rec.Priority, rec.CreatedAt), Member: key}).Err(); err != nil {
		return err
	}
	if rec.TimeoutAt != nil {
		return s.client.ZAdd(ctx, keyTimeout, redis.Z{Score: float64(rec.TimeoutAt.Unix()), Member: key}).Err()
	}
	return nil
}

// Get loads one repair record by (txRef, tenantID).
func (s *Store) Get(ctx context.Context, txRef, tenantID string) (domain.RepairRecord, error) {
	raw, err := s.client.HGet(ctx, keyRecords, recordKey(txRef, tenantID)).Result()
	if err != nil {
		return domain.RepairRecord{}, fmt.Errorf("loading repair %s/%s: %w", tenantID, txRef, err)
	}
	var dto recordDTO
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		return domain.RepairRecord{}, fmt.Errorf("decoding repair %s/%s: %w", tenantID, txRef, err)
	}
	return dto.toEntity(), nil
}

// PickNextBatch returns up to limit PENDING, retryable repairs ordered
// priority DESC, created_at ASC (spec §4.7). tenantID filters when non-empty.
func (s *Store) PickNextBatch(ctx context.Context, tenantID string, limit int) ([]domain.RepairRecord, error) {
	keys, err := s.client.ZRevRange(ctx, keyPending, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("scanning pending repairs: %w", err)
	}

	now := time.Now()
	var batch []domain.RepairRecord
	for _, key := range keys {
		if len(batch) >= limit {
			break
		}
		raw, err := s.client.HGet(ctx, keyRecords, key).Result()
		if err != nil {
			continue
		}
		var dto recordDTO
		if err := json.Unmarshal([]byte(raw), &dto); err != nil {
			s.logger.Warn("dropping unreadable repair record", zap.String("key", key), zap.Error(err))
			continue
		}
		rec := dto.toEntity()
		if tenantID != "" && rec.TenantID != tenantID {
			continue
		}
		if !rec.CanPick(now) {
			continue
		}
		batch = append(batch, rec)
	}
	return batch, nil
}

// Update persists rec's current state and re-indexes it: resolved, cancelled
// and failed records leave the pending and timeout sets, others are
// re-scored in the pending set by priority and created_at.
func (s *Store) Update(ctx context.Context, rec *domain.RepairRecord) error {
	if err := s.put(ctx, rec); err != nil {
		return err
	}
	key := recordKey(rec.TransactionReference, rec.TenantID)
	if rec.RepairStatus.IsTerminal() || rec.RepairStatus == domain.RepairFailed {
		s.client.ZRem(ctx, keyPending, key)
		s.client.ZRem(ctx, keyTimeout, key)
		return nil
	}
	return s.client.ZAdd(ctx, keyPending, redis.Z{Score: priorityScore(rec.Priority, rec.CreatedAt), Member: key}).Err()
}

// DueForTimeout returns repairs whose timeout_at has passed (spec §4.7 Sweep).
func (s *Store) DueForTimeout(ctx context.Context, now time.Time) ([]domain.RepairRecord, error) {
	max := fmt.Sprintf("%d", now.Unix())
	keys, err := s.client.ZRangeByScore(ctx, keyTimeout, &redis.ZRangeBy{Min: "0", Max: max}).Result()
	if err != nil {
		return nil, fmt.Errorf("scanning timed-out repairs: %w", err)
	}
	due := make([]domain.RepairRecord, 0, len(keys))
	for _, key := range keys {
		raw, err := s.client.HGet(ctx, keyRecords, key).Result()
		if err != nil {
			continue
		}
		var dto recordDTO
		if err := json.Unmarshal([]byte(raw), &dto); err != nil {
			continue
		}
		due = append(due, dto.toEntity())
		s.client.ZRem(ctx, keyTimeout, key)
	}
	return due, nil
}
