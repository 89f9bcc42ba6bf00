package domain

import "time"

// ConfigLevel ranks the four precedence levels of spec §3/§4.1, most
// specific first.
type ConfigLevel int

const (
	LevelDownstreamCall ConfigLevel = iota
	LevelPaymentType
	LevelTenant
	LevelClearingSystem
)

func (l ConfigLevel) String() string {
	switch l {
	case LevelDownstreamCall:
		return "DOWNSTREAM_CALL"
	case LevelPaymentType:
		return "PAYMENT_TYPE"
	case LevelTenant:
		return "TENANT"
	case LevelClearingSystem:
		return "CLEARING_SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// RetryPolicy configures C3's retry layer.
type RetryPolicy struct {
	MaxAttempts       int
	WaitDuration      time.Duration
	BackoffMultiplier float64
	MaxWaitDuration   time.Duration
	RetryOnErrors     []string
	IgnoreErrors      []string
}

// FallbackStrategy enumerates the fallback behaviors of spec §4.3.
type FallbackStrategy string

const (
	FallbackQueue     FallbackStrategy = "QUEUE"
	FallbackCached    FallbackStrategy = "CACHED"
	FallbackPropagate FallbackStrategy = "PROPAGATE"
)

// ResiliencyConfig configures the whole C3 pipeline for one (service,tenant) key.
type ResiliencyConfig struct {
	FailureThreshold         float64
	SlowCallThreshold        time.Duration
	SlowCallRateThreshold    float64
	SlidingWindowSize        int
	MinimumCalls             int
	WaitDurationInOpen       time.Duration
	PermittedCallsInHalfOpen int
	SuccessThreshold         int
	Timeout                  time.Duration
	MaxConcurrentCalls       int
	MaxWaitDuration          time.Duration
	Retry                    RetryPolicy
	Fallback                 FallbackStrategy
}

// Merge overrides each field of base with override's value when the
// override value is non-zero, implementing spec §3's "narrower overrides
// only the fields it sets" rule.
func (base ResiliencyConfig) Merge(override ResiliencyConfig) ResiliencyConfig {
	out := base
	if override.FailureThreshold != 0 {
		out.FailureThreshold = override.FailureThreshold
	}
	if override.SlowCallThreshold != 0 {
		out.SlowCallThreshold = override.SlowCallThreshold
	}
	if override.SlowCallRateThreshold != 0 {
		out.SlowCallRateThreshold = override.SlowCallRateThreshold
	}
	if override.SlidingWindowSize != 0 {
		out.SlidingWindowSize = override.SlidingWindowSize
	}
	if override.MinimumCalls != 0 {
		out.MinimumCalls = override.MinimumCalls
	}
	if override.WaitDurationInOpen != 0 {
		out.WaitDurationInOpen = override.WaitDurationInOpen
	}
	if override.PermittedCallsInHalfOpen != 0 {
		out.PermittedCallsInHalfOpen = override.PermittedCallsInHalfOpen
	}
	if override.SuccessThreshold != 0 {
		out.SuccessThreshold = override.SuccessThreshold
	}
	if override.Timeout != 0 {
		out.Timeout = override.Timeout
	}
	if override.MaxConcurrentCalls != 0 {
		out.MaxConcurrentCalls = override.MaxConcurrentCalls
	}
	if override.MaxWaitDuration != 0 {
		out.MaxWaitDuration = override.MaxWaitDuration
	}
	if override.Retry.MaxAttempts != 0 {
		out.Retry = override.Retry
	}
	if override.Fallback != "" {
		out.Fallback = override.Fallback
	}
	return out
}

// FraudToggle resolves whether fraud checking is enabled for a call context,
// plus the score thresholds C4 applies to the fraud capability's verdict.
type FraudToggle struct {
	Enabled        bool
	Reason         string
	EffectiveFrom  *time.Time
	EffectiveUntil *time.Time
	Thresholds     FraudThresholds
}

// ConfigLayer is one overlay row at a given level for a given key set.
type ConfigLayer struct {
	ID              string
	Level           ConfigLevel
	TenantID        string
	PaymentType     PaymentType
	LocalInstrument string
	ClearingSystem  string
	ServiceKey      string
	Priority        int
	CreatedAt       time.Time
	EffectiveFrom   *time.Time
	EffectiveUntil  *time.Time

	Resiliency *ResiliencyConfig
	Auth       *AuthDescriptor
	Mapping    *PayloadMapping
	Fraud      *FraudToggle
}

// InWindow reports whether now falls within [EffectiveFrom, EffectiveUntil],
// treating nil bounds as open.
func (c ConfigLayer) InWindow(now time.Time) bool {
	if c.EffectiveFrom != nil && now.Before(*c.EffectiveFrom) {
		return false
	}
	if c.EffectiveUntil != nil && now.After(*c.EffectiveUntil) {
		return false
	}
	return true
}

// CallContext is the lookup key passed into C1.Resolve.
type CallContext struct {
	TenantID        string
	PaymentType     PaymentType
	LocalInstrument string
	ClearingSystem  string
	ServiceType     string
	Endpoint        string
	Direction       string
	Now             time.Time
}

// ResolvedConfig is the merged output of C1.Resolve.
type ResolvedConfig struct {
	Resiliency ResiliencyConfig
	Auth       AuthDescriptor
	Mapping    *PayloadMapping
	Fraud      FraudToggle
}
