package domain

import "time"

// ProcessingMode describes how a clearing system exchanges messages.
type ProcessingMode string

const (
	ProcessingSync  ProcessingMode = "SYNCHRONOUS"
	ProcessingAsync ProcessingMode = "ASYNCHRONOUS"
	ProcessingBatch ProcessingMode = "BATCH"
)

// EndpointType describes the transport shape of an Endpoint.
type EndpointType string

const (
	EndpointSync    EndpointType = "SYNC"
	EndpointAsync   EndpointType = "ASYNC"
	EndpointPolling EndpointType = "POLLING"
	EndpointWebhook EndpointType = "WEBHOOK"
)

// AuthType enumerates the supported authentication schemes (spec §3/§6).
type AuthType string

const (
	AuthNone   AuthType = "NONE"
	AuthAPIKey AuthType = "API_KEY"
	AuthJWT    AuthType = "JWT"
	AuthJWS    AuthType = "JWS"
	AuthOAuth2 AuthType = "OAUTH2"
	AuthMTLS   AuthType = "MTLS"
)

// AuthDescriptor carries the auth parameters for an Endpoint or a config layer.
type AuthDescriptor struct {
	Type       AuthType
	APIKey     string
	JWTSecret  string
	JWTIssuer  string
	OAuth2URL  string
	ClientID   string
	ClientSecret string
}

// Merge overrides fields of base with any non-zero field of override,
// implementing the narrower-wins rule of spec §3.
func (base AuthDescriptor) Merge(override AuthDescriptor) AuthDescriptor {
	out := base
	if override.Type != "" {
		out.Type = override.Type
	}
	if override.APIKey != "" {
		out.APIKey = override.APIKey
	}
	if override.JWTSecret != "" {
		out.JWTSecret = override.JWTSecret
	}
	if override.JWTIssuer != "" {
		out.JWTIssuer = override.JWTIssuer
	}
	if override.OAuth2URL != "" {
		out.OAuth2URL = override.OAuth2URL
	}
	if override.ClientID != "" {
		out.ClientID = override.ClientID
	}
	if override.ClientSecret != "" {
		out.ClientSecret = override.ClientSecret
	}
	return out
}

// ClearingSystem is an external settlement network (FEDWIRE, CHAPS, SEPA, ...).
type ClearingSystem struct {
	Code                  string
	Name                  string
	Country               string
	Currency              string
	ProcessingMode        ProcessingMode
	DefaultTimeout        time.Duration
	SupportedMessageTypes []string
	SupportedPaymentTypes []PaymentType
	SupportedLocalInstr   []string
	Auth                  AuthDescriptor
	Endpoints             []Endpoint
}

// Endpoint is a concrete (URL, method, auth, message-type) binding of a
// ClearingSystem. Identity is (ClearingSystemCode, Name).
type Endpoint struct {
	ClearingSystemCode string
	Name               string
	Type               EndpointType
	MessageType        string
	URL                string
	Method             string
	Timeout            time.Duration
	RetryAttempts      int
	Auth               AuthDescriptor
	Headers            map[string]string
	Priority           int
	Active             bool
}

// TenantClearingMapping points a (tenant, paymentType, localInstrument?) key
// at the clearing system used to route OTHER_BANK payments.
type TenantClearingMapping struct {
	TenantID           string
	PaymentType        PaymentType
	LocalInstrument    *string // nil matches any
	ClearingSystemCode string
	Priority           int
	Active             bool
}

// Specificity ranks a mapping for best-match selection (spec §4.5):
// (tenant,paymentType,localInstrument) > (tenant,paymentType,NULL).
func (m TenantClearingMapping) Specificity() int {
	if m.LocalInstrument != nil {
		return 2
	}
	return 1
}
