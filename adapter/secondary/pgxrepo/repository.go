// Package pgxrepo implements secondary.ConfigRepository over Postgres,
// grounded on the pgxpool.Pool query/scan idiom of the payments-store
// reference package (manual Scan loops, no ORM).
package pgxrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/core/domain"
	"github.com/ruudy-sib/corepay/core/port/secondary"
)

// Repository implements secondary.ConfigRepository against a pool of the
// five config/clearing tables of spec §3/§6: config_layers,
// clearing_systems, endpoints, tenant_clearing_mappings, payload_mappings.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository builds a pgxrepo.Repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) secondary.ConfigRepository {
	return &Repository{pool: pool, logger: logger.Named("pgx-repo")}
}

// layerPayload is the kind-specific blob stored in config_layers.payload,
// decoded into whichever of ConfigLayer's four pointer fields matches kind.
type layerPayload struct {
	Resiliency *domain.ResiliencyConfig `json:"resiliency,omitempty"`
	Auth       *domain.AuthDescriptor   `json:"auth,omitempty"`
	Mapping    *domain.PayloadMapping   `json:"mapping,omitempty"`
	Fraud      *domain.FraudToggle      `json:"fraud,omitempty"`
}

// ActiveConfigLayers returns every config_layers row of the given kind
// whose key columns either wildcard-match (NULL) or equal the call
// context's corresponding field. Time-window filtering is left to the
// caller (spec §4.1 folds InWindow after ranking).
func (r *Repository) ActiveConfigLayers(ctx context.Context, kind string, ctxKey domain.CallContext) ([]domain.ConfigLayer, error) {
	const query = `
SELECT id, level, tenant_id, payment_type, local_instrument, clearing_system,
       service_key, priority, created_at, effective_from, effective_until, payload
FROM config_layers
WHERE kind = $1
  AND (tenant_id IS NULL OR tenant_id = $2)
  AND (payment_type IS NULL OR payment_type = $3)
  AND (local_instrument IS NULL OR local_instrument = $4)
  AND (clearing_system IS NULL OR clearing_system = $5)
  AND (service_key IS NULL OR service_key = $6)`

	rows, err := r.pool.Query(ctx, query, kind, ctxKey.TenantID, string(ctxKey.PaymentType), ctxKey.LocalInstrument, ctxKey.ClearingSystem, ctxKey.ServiceType)
	if err != nil {
		return nil, fmt.Errorf("querying config_layers kind=%s: %w", kind, err)
	}
	defer rows.Close()

	var layers []domain.ConfigLayer
	for rows.Next() {
		var (
			l                              domain.ConfigLayer
			level                          string
			tenantID, paymentType          *string
			localInstrument, clearingSys   *string
			serviceKey                     *string
			effectiveFrom, effectiveUntil  *time.Time
			rawPayload                     []byte
		)
		if err := rows.Scan(&l.ID, &level, &tenantID, &paymentType, &localInstrument, &clearingSys,
			&serviceKey, &l.Priority, &l.CreatedAt, &effectiveFrom, &effectiveUntil, &rawPayload); err != nil {
			return nil, fmt.Errorf("scanning config_layers row: %w", err)
		}
		l.Level = levelFromString(level)
		if tenantID != nil {
			l.TenantID = *tenantID
		}
		if paymentType != nil {
			l.PaymentType = domain.PaymentType(*paymentType)
		}
		if localInstrument != nil {
			l.LocalInstrument = *localInstrument
		}
		if clearingSys != nil {
			l.ClearingSystem = *clearingSys
		}
		if serviceKey != nil {
			l.ServiceKey = *serviceKey
		}
		l.EffectiveFrom = effectiveFrom
		l.EffectiveUntil = effectiveUntil

		var payload layerPayload
		if len(rawPayload) > 0 {
			if err := json.Unmarshal(rawPayload, &payload); err != nil {
				return nil, fmt.Errorf("decoding config_layers payload for %s: %w", l.ID, err)
			}
		}
		l.Resiliency = payload.Resiliency
		l.Auth = payload.Auth
		l.Mapping = payload.Mapping
		l.Fraud = payload.Fraud

		layers = append(layers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating config_layers kind=%s: %w", kind, err)
	}
	return layers, nil
}

func levelFromString(s string) domain.ConfigLevel {
	switch s {
	case "PAYMENT_TYPE":
		return domain.LevelPaymentType
	case "TENANT":
		return domain.LevelTenant
	case "CLEARING_SYSTEM":
		return domain.LevelClearingSystem
	default:
		return domain.LevelDownstreamCall
	}
}

// ClearingSystem loads one clearing system row plus its endpoints (spec §3
// clearing_systems/endpoints, §4.5 endpoint selection).
func (r *Repository) ClearingSystem(ctx context.Context, code string) (domain.ClearingSystem, error) {
	const systemQuery = `
SELECT code, name, country, currency, processing_mode, default_timeout_ms,
       supported_message_types, supported_payment_types, supported_local_instruments, auth
FROM clearing_systems
WHERE code = $1`

	var (
		cs                   domain.ClearingSystem
		processingMode       string
		defaultTimeoutMS     int64
		supportedPaymentRaw  []string
		rawAuth              []byte
	)
	row := r.pool.QueryRow(ctx, systemQuery, code)
	if err := row.Scan(&cs.Code, &cs.Name, &cs.Country, &cs.Currency, &processingMode, &defaultTimeoutMS,
		&cs.SupportedMessageTypes, &supportedPaymentRaw, &cs.SupportedLocalInstr, &rawAuth); err != nil {
		return domain.ClearingSystem{}, fmt.Errorf("loading clearing system %s: %w", code, err)
	}
	cs.ProcessingMode = domain.ProcessingMode(processingMode)
	cs.DefaultTimeout = time.Duration(defaultTimeoutMS) * time.Millisecond
	for _, pt := range supportedPaymentRaw {
		cs.SupportedPaymentTypes = append(cs.SupportedPaymentTypes, domain.PaymentType(pt))
	}
	if len(rawAuth) > 0 {
		if err := json.Unmarshal(rawAuth, &cs.Auth); err != nil {
			return domain.ClearingSystem{}, fmt.Errorf("decoding auth for clearing system %s: %w", code, err)
		}
	}

	endpoints, err := r.endpointsFor(ctx, code)
	if err != nil {
		return domain.ClearingSystem{}, err
	}
	cs.Endpoints = endpoints
	return cs, nil
}

func (r *Repository) endpointsFor(ctx context.Context, clearingSystemCode string) ([]domain.Endpoint, error) {
	const query = `
SELECT clearing_system_code, name, type, message_type, url, method,
       timeout_ms, retry_attempts, auth, headers, priority, active
FROM endpoints
WHERE clearing_system_code = $1
ORDER BY priority ASC`

	rows, err := r.pool.Query(ctx, query, clearingSystemCode)
	if err != nil {
		return nil, fmt.Errorf("querying endpoints for %s: %w", clearingSystemCode, err)
	}
	defer rows.Close()

	var endpoints []domain.Endpoint
	for rows.Next() {
		var (
			e            domain.Endpoint
			epType       string
			timeoutMS    int64
			rawAuth      []byte
			rawHeaders   []byte
		)
		if err := rows.Scan(&e.ClearingSystemCode, &e.Name, &epType, &e.MessageType, &e.URL, &e.Method,
			&timeoutMS, &e.RetryAttempts, &rawAuth, &rawHeaders, &e.Priority, &e.Active); err != nil {
			return nil, fmt.Errorf("scanning endpoint row: %w", err)
		}
		e.Type = domain.EndpointType(epType)
		e.Timeout = time.Duration(timeoutMS) * time.Millisecond
		if len(rawAuth) > 0 {
			if err := json.Unmarshal(rawAuth, &e.Auth); err != nil {
				return nil, fmt.Errorf("decoding endpoint auth for %s/%s: %w", e.ClearingSystemCode, e.Name, err)
			}
		}
		if len(rawHeaders) > 0 {
			if err := json.Unmarshal(rawHeaders, &e.Headers); err != nil {
				return nil, fmt.Errorf("decoding endpoint headers for %s/%s: %w", e.ClearingSystemCode, e.Name, err)
			}
		}
		endpoints = append(endpoints, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating endpoints for %s: %w", clearingSystemCode, err)
	}
	return endpoints, nil
}

// TenantMappings returns every active tenant_clearing_mappings row for
// (tenantID, paymentType), including wildcard-localInstrument rows, letting
// the caller rank by Specificity (spec §4.5 best-match routing).
func (r *Repository) TenantMappings(ctx context.Context, tenantID string, paymentType domain.PaymentType, localInstrument string) ([]domain.TenantClearingMapping, error) {
	const query = `
SELECT tenant_id, payment_type, local_instrument, clearing_system_code, priority, active
FROM tenant_clearing_mappings
WHERE tenant_id = $1
  AND payment_type = $2
  AND active = TRUE
  AND (local_instrument IS NULL OR local_instrument = $3)`

	rows, err := r.pool.Query(ctx, query, tenantID, string(paymentType), localInstrument)
	if err != nil {
		return nil, fmt.Errorf("querying tenant_clearing_mappings for %s/%s: %w", tenantID, paymentType, err)
	}
	defer rows.Close()

	var mappings []domain.TenantClearingMapping
	for rows.Next() {
		var (
			m           domain.TenantClearingMapping
			paymentRaw  string
			localInstr  *string
		)
		if err := rows.Scan(&m.TenantID, &paymentRaw, &localInstr, &m.ClearingSystemCode, &m.Priority, &m.Active); err != nil {
			return nil, fmt.Errorf("scanning tenant_clearing_mappings row: %w", err)
		}
		m.PaymentType = domain.PaymentType(paymentRaw)
		m.LocalInstrument = localInstr
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tenant_clearing_mappings for %s/%s: %w", tenantID, paymentType, err)
	}
	return mappings, nil
}

// PayloadMapping loads one named mapping (spec §3/§4.2 transformation rules).
func (r *Repository) PayloadMapping(ctx context.Context, tenantID, name string) (domain.PayloadMapping, error) {
	const query = `
SELECT tenant_id, name, direction, type, field_map, assignments, derived,
       auto_gen, conditionals, defaults, priority
FROM payload_mappings
WHERE tenant_id = $1 AND name = $2`

	var (
		m                                                                           domain.PayloadMapping
		direction, mappingType                                                      string
		rawFieldMap, rawAssignments, rawDerived, rawAutoGen, rawConditionals, rawDef []byte
	)
	row := r.pool.QueryRow(ctx, query, tenantID, name)
	if err := row.Scan(&m.TenantID, &m.Name, &direction, &mappingType, &rawFieldMap, &rawAssignments,
		&rawDerived, &rawAutoGen, &rawConditionals, &rawDef, &m.Priority); err != nil {
		return domain.PayloadMapping{}, fmt.Errorf("loading payload mapping %s/%s: %w", tenantID, name, err)
	}
	m.Direction = domain.MappingDirection(direction)
	m.Type = domain.MappingType(mappingType)

	for raw, target := range map[*[]byte]any{
		&rawFieldMap:     &m.FieldMap,
		&rawAssignments:  &m.Assignments,
		&rawDerived:      &m.Derived,
		&rawAutoGen:      &m.AutoGen,
		&rawConditionals: &m.Conditionals,
		&rawDef:          &m.Defaults,
	} {
		if len(*raw) == 0 {
			continue
		}
		if err := json.Unmarshal(*raw, target); err != nil {
			return domain.PayloadMapping{}, fmt.Errorf("decoding payload mapping %s/%s: %w", tenantID, name, err)
		}
	}
	return m, nil
}
