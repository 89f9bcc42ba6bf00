// Package httpdispatch implements secondary.ClearingAdapter,
// secondary.MessageSender, and secondary.FraudAdapter over plain HTTP,
// adapted from the teacher's httpproducer.Producer.
package httpdispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/adapter/secondary/jwtauth"
	"github.com/ruudy-sib/corepay/core/domain"
	"github.com/ruudy-sib/corepay/core/port/secondary"
)

// bearerTTL is the lifetime of outbound JWT bearer tokens minted for
// AUTH_JWT endpoints; short enough that a captured token is near-useless
// past the dispatch call it was minted for.
const bearerTTL = 2 * time.Minute

// Producer sends payloads via HTTP POST.
type Producer struct {
	client    *http.Client
	fraudURL  string
	logger    *zap.Logger
}

// NewProducer creates an HTTP producer with the given client timeout.
// fraudURL is the fixed endpoint Assess posts to; leave empty if this
// producer is only used for clearing dispatch / queue delivery.
func NewProducer(timeout time.Duration, fraudURL string, logger *zap.Logger) *Producer {
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	logger.Info("http producer initialized", zap.Duration("timeout", timeout))
	return &Producer{client: client, fraudURL: fraudURL, logger: logger.Named("http-dispatch")}
}

func (p *Producer) post(ctx context.Context, url, method string, payload []byte, headers map[string]string) ([]byte, int, error) {
	if url == "" {
		return nil, 0, fmt.Errorf("destination URL is required for HTTP delivery")
	}
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("creating http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("executing http request to %q: %w", url, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, resp.StatusCode, fmt.Errorf("http request to %q failed with status %d: %s", url, resp.StatusCode, string(body))
	}
	return body, resp.StatusCode, nil
}

// Dispatch implements secondary.ClearingAdapter for an HTTP (synchronous or
// webhook) clearing endpoint (spec §4.5/§4.6).
func (p *Producer) Dispatch(ctx context.Context, endpoint domain.Endpoint, payload []byte, headers map[string]string) (secondary.ClearingStatus, error) {
	merged := make(map[string]string, len(endpoint.Headers)+len(headers)+1)
	for k, v := range endpoint.Headers {
		merged[k] = v
	}
	for k, v := range headers {
		merged[k] = v
	}
	if name, value, err := jwtauth.AuthorizationHeader(endpoint.Auth, endpoint.ClearingSystemCode, bearerTTL); err != nil {
		return secondary.ClearingStatus{}, fmt.Errorf("building auth header for %s: %w", endpoint.Name, err)
	} else if name != "" {
		merged[name] = value
	}

	body, status, err := p.post(ctx, endpoint.URL, endpoint.Method, payload, merged)
	if err != nil {
		return secondary.ClearingStatus{Result: secondary.ClearingRejected, Code: fmt.Sprintf("HTTP_%d", status)}, err
	}
	p.logger.Debug("clearing dispatch sent",
		zap.String("url", endpoint.URL),
		zap.Int("status_code", status),
		zap.Int("response_size", len(body)),
	)
	return secondary.ClearingStatus{Result: secondary.ClearingAccepted, Code: fmt.Sprintf("HTTP_%d", status)}, nil
}

// Send implements secondary.MessageSender for queued messages whose
// original call targeted an HTTP endpoint (spec §4.8).
func (p *Producer) Send(ctx context.Context, msg domain.QueuedMessage) error {
	_, _, err := p.post(ctx, msg.URL, msg.Method, msg.Payload, msg.Headers)
	return err
}

// Assess implements secondary.FraudAdapter by POSTing request as JSON and
// decoding the response back into a FraudAPIResult (spec §4.4/§6).
func (p *Producer) Assess(ctx context.Context, request map[string]any) (secondary.FraudAPIResult, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return secondary.FraudAPIResult{}, fmt.Errorf("marshaling fraud request: %w", err)
	}
	body, _, err := p.post(ctx, p.fraudURL, http.MethodPost, payload, nil)
	if err != nil {
		return secondary.FraudAPIResult{}, err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return secondary.FraudAPIResult{}, fmt.Errorf("decoding fraud response: %w", err)
	}
	return secondary.FraudAPIResult{
		RiskScore:   asFloat(raw["risk_score"]),
		RiskLevel:   domain.RiskLevel(asString(raw["risk_level"])),
		Decision:    domain.FraudDecision(asString(raw["decision"])),
		RawResponse: raw,
	}, nil
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// Close releases the underlying HTTP client's idle connections.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.CloseIdleConnections()
	}
	return nil
}
