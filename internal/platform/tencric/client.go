// Package tencric is the GraphQL client for the 10CRIC sportsbook. It
// implements event discovery, market fetching and bet placement.
package tencric

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

// Config holds the client settings.
type Config struct {
	BaseURL           string
	Tenant            string
	SportID           string
	LeagueName        string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	// HistoryMaxPages caps the bet-page requests of one history fetch.
	HistoryMaxPages int
}

// Client talks to the platform's GraphQL endpoint. Calls are paced by a
// token bucket shared across all operations.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	sessions   domain.SessionProvider
}

// New creates a Client. sessions supplies credentials for requests; it may be
// nil for anonymous access.
func New(cfg Config, sessions domain.SessionProvider) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Tenant == "" {
		cfg.Tenant = "10CRIC"
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.HistoryMaxPages <= 0 {
		cfg.HistoryMaxPages = 10
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		sessions: sessions,
	}
}

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Query         string         `json:"query"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// session returns credentials when available. Anonymous calls are allowed to
// proceed and the server decides.
func (c *Client) session(ctx context.Context) *domain.Session {
	if c.sessions == nil {
		return nil
	}
	s, err := c.sessions.Token(ctx)
	if err != nil {
		return nil
	}
	return &s
}

// do posts a GraphQL operation and returns the raw response body.
func (c *Client) do(ctx context.Context, sess *domain.Session, req gqlRequest) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal %s: %w", req.OperationName, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-tenant", c.cfg.Tenant)
	if sess != nil {
		httpReq.Header.Set("x-player-id", sess.PlayerID)
		httpReq.Header.Set("x-sportsbook-token", sess.Token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("execute %s: %w", req.OperationName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// query runs a read operation. Transport failures and server errors wrap
// domain.ErrFetch; 401/403 wrap domain.ErrUnauthorized.
func (c *Client) query(ctx context.Context, req gqlRequest) ([]byte, error) {
	return c.queryAs(ctx, c.session(ctx), req)
}

// queryAs is query with explicit credentials.
func (c *Client) queryAs(ctx context.Context, sess *domain.Session, req gqlRequest) ([]byte, error) {
	body, status, err := c.do(ctx, sess, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	if err := checkHTTPStatus(status, body); err != nil {
		return nil, err
	}

	var parsed gqlResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrFetch, req.OperationName, err)
	}
	if len(parsed.Errors) > 0 && isNull(parsed.Data) {
		e := parsed.Errors[0]
		if isAuthCode(e.Extensions.Code) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnauthorized, e.Message)
		}
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrFetch, req.OperationName, e.Message)
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := truncate(string(body), 512)
	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %s", domain.ErrFetch, domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrFetch, statusCode, bodyStr)
	}
}

func isAuthCode(code string) bool {
	switch code {
	case "UNAUTHENTICATED", "UNAUTHORIZED", "FORBIDDEN":
		return true
	}
	return false
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var (
	_ domain.EventSource  = (*Client)(nil)
	_ domain.MarketSource = (*Client)(nil)
	_ domain.BetPlacer    = (*Client)(nil)

	_ domain.BetHistorySource = (*Client)(nil)
)
