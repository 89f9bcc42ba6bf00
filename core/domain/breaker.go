package domain

import "time"

// BreakerState mirrors spec §3's circuit-breaker state machine.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerSnapshot is an observability view of one (ServiceName,Tenant)
// breaker, emitted on every state transition (spec §4.3 observability hooks).
type BreakerSnapshot struct {
	ServiceName   string
	TenantID      string
	State         BreakerState
	FailureRate   float64
	SlowCallRate  float64
	WindowSamples int
	At            time.Time
}

// CallOutcome is the observability tuple emitted per attempt.
type CallOutcome struct {
	ServiceName string
	TenantID    string
	Outcome     string // success | failure | timeout | circuit_open | bulkhead_full
	Latency     time.Duration
	State       BreakerState
	At          time.Time
}
