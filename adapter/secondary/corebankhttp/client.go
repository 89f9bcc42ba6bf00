// Package corebankhttp implements secondary.CoreBankingAdapter over a
// REST core-banking API, adapted from httpdispatch.Producer's HTTP-POST
// pattern (spec §6 treats the transport choice as irrelevant to the
// core — this is the default REST implementation a standalone deployment
// wires in; an embedder is free to supply a gRPC one instead).
package corebankhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/core/domain"
	"github.com/ruudy-sib/corepay/core/port/secondary"
)

// Client calls a core-banking REST API rooted at baseURL.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient builds a corebankhttp.Client.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("core-bank-http"),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling core banking %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("core banking %s %s returned %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// GetAccountInfo implements secondary.CoreBankingAdapter.
func (c *Client) GetAccountInfo(ctx context.Context, tenantID, account string) (domain.AccountInfo, error) {
	var out domain.AccountInfo
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tenants/%s/accounts/%s", tenantID, account), nil, &out)
	return out, err
}

// ValidateAccount implements secondary.CoreBankingAdapter.
func (c *Client) ValidateAccount(ctx context.Context, tenantID, account string) error {
	return c.do(ctx, http.MethodGet, fmt.Sprintf("/tenants/%s/accounts/%s/validate", tenantID, account), nil, nil)
}

// GetBalance implements secondary.CoreBankingAdapter.
func (c *Client) GetBalance(ctx context.Context, tenantID, account string) (domain.Money, error) {
	var out domain.Money
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tenants/%s/accounts/%s/balance", tenantID, account), nil, &out)
	return out, err
}

// HasSufficientFunds implements secondary.CoreBankingAdapter.
func (c *Client) HasSufficientFunds(ctx context.Context, tenantID, account string, amount domain.Money) (bool, error) {
	var out struct {
		Sufficient bool `json:"sufficient"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/tenants/%s/accounts/%s/funds-check", tenantID, account), amount, &out)
	return out.Sufficient, err
}

// ProcessDebit implements secondary.CoreBankingAdapter.
func (c *Client) ProcessDebit(ctx context.Context, legID, tenantID, account string, amount domain.Money) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tenants/%s/accounts/%s/debit", tenantID, account), map[string]any{
		"leg_id": legID, "amount": amount,
	}, nil)
}

// ProcessCredit implements secondary.CoreBankingAdapter.
func (c *Client) ProcessCredit(ctx context.Context, legID, tenantID, account string, amount domain.Money) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tenants/%s/accounts/%s/credit", tenantID, account), map[string]any{
		"leg_id": legID, "amount": amount,
	}, nil)
}

// ProcessTransfer implements secondary.CoreBankingAdapter.
func (c *Client) ProcessTransfer(ctx context.Context, legID, tenantID, from, to string, amount domain.Money) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tenants/%s/transfers", tenantID), map[string]any{
		"leg_id": legID, "from_account": from, "to_account": to, "amount": amount,
	}, nil)
}

// HoldFunds implements secondary.CoreBankingAdapter.
func (c *Client) HoldFunds(ctx context.Context, legID, tenantID, account string, amount domain.Money) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tenants/%s/accounts/%s/hold", tenantID, account), map[string]any{
		"leg_id": legID, "amount": amount,
	}, nil)
}

// ReleaseFunds implements secondary.CoreBankingAdapter.
func (c *Client) ReleaseFunds(ctx context.Context, legID, tenantID, account string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tenants/%s/accounts/%s/release", tenantID, account), map[string]any{
		"leg_id": legID,
	}, nil)
}

// GetTransactionStatus implements secondary.CoreBankingAdapter.
func (c *Client) GetTransactionStatus(ctx context.Context, legID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/legs/%s/status", legID), nil, &out)
	return out.Status, err
}

// Close releases idle HTTP connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

var _ secondary.CoreBankingAdapter = (*Client)(nil)
