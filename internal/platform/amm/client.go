// Package amm contains the REST client for the external automated market
// maker that receives graduated markets' liquidity.
package amm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/holiman/uint256"

	"github.com/quorumlabs/launchpad/internal/crypto"
	"github.com/quorumlabs/launchpad/internal/domain"
)

// Client is the REST client for the liquidity venue API. It implements
// domain.LiquidityProvisioner.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	httpClient *http.Client
}

var _ domain.LiquidityProvisioner = (*Client)(nil)

// NewClient creates a new liquidity venue client.
//
// baseURL is the API root, e.g. "https://amm.example.com/api".
func NewClient(baseURL, apiKey, apiSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		auth:    &crypto.HMACAuth{Key: apiKey, Secret: apiSecret},
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// provisionRequest is the pool-creation payload. Amounts travel as decimal
// strings to preserve precision across the JSON boundary.
type provisionRequest struct {
	MarketID int64  `json:"market_id"`
	Symbol   string `json:"symbol"`
	Tokens   string `json:"tokens"`
	Value    string `json:"value"`
}

// poolResponse is the venue's representation of a liquidity pool.
type poolResponse struct {
	PoolID   string `json:"pool_id"`
	MarketID int64  `json:"market_id"`
	Symbol   string `json:"symbol"`
	Tokens   string `json:"tokens"`
	Value    string `json:"value"`
	Status   string `json:"status"`
}

// errorResponse is the venue's error envelope.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Provision creates a liquidity pool seeded with the graduated market's
// remaining tokens and reserve share. The venue deduplicates on market_id,
// so a retried call after a transport failure is safe.
func (c *Client) Provision(ctx context.Context, marketID int64, symbol string, tokens, value *uint256.Int) error {
	req := provisionRequest{
		MarketID: marketID,
		Symbol:   symbol,
		Tokens:   tokens.Dec(),
		Value:    value.Dec(),
	}

	body, err := c.doSignedRequest(ctx, http.MethodPost, "/v1/pools", req)
	if err != nil {
		return fmt.Errorf("amm: provision market %d: %w", marketID, err)
	}

	var resp poolResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("amm: decode provision response: %w", err)
	}

	if resp.Status != "active" && resp.Status != "pending" {
		return fmt.Errorf("amm: pool for market %d in unexpected status %q", marketID, resp.Status)
	}

	return nil
}

// GetPool returns the venue's pool for the given market, if one exists.
func (c *Client) GetPool(ctx context.Context, marketID int64) (poolResponse, error) {
	path := fmt.Sprintf("/v1/pools/%s", url.PathEscape(fmt.Sprintf("%d", marketID)))

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return poolResponse{}, fmt.Errorf("amm: get pool %d: %w", marketID, err)
	}

	var resp poolResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return poolResponse{}, fmt.Errorf("amm: decode pool: %w", err)
	}

	return resp, nil
}

// doSignedRequest builds, signs, sends, and reads an HTTP request against
// the venue API.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var (
		bodyReader io.Reader
		bodyStr    string
	)
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
		bodyStr = string(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	for k, v := range c.auth.SignedHeaders(method, path, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusConflict:
		return fmt.Errorf("conflict: %s (%s)", apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
