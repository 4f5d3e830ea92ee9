package dataapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/liamashdown/coordwatch/internal/config"
	"github.com/liamashdown/coordwatch/internal/metrics"
	"github.com/liamashdown/coordwatch/internal/ratelimit"
)

// Client handles communication with the Polymarket Data API
type Client struct {
	baseURL       string
	httpClient    *http.Client
	authMode      config.AuthMode
	bearerToken   string
	apiKey        string
	extraHeaders  map[string]string
	tradesLimiter *ratelimit.Limiter
	userLimiter   *ratelimit.Limiter
}

// NewClient creates a new Data API client
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:       cfg.DataAPIBaseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		authMode:      cfg.DataAPIAuthMode,
		bearerToken:   cfg.DataAPIBearerToken,
		apiKey:        cfg.DataAPIAPIKey,
		extraHeaders:  cfg.DataAPIExtraHeaders,
		tradesLimiter: ratelimit.New(cfg.DataAPITradesRPS, cfg.RateLimitBurst),
		userLimiter:   ratelimit.New(cfg.DataAPIUserRPS, cfg.RateLimitBurst),
	}
}

// GetTrades fetches recent trades from the feed, newest first
func (c *Client) GetTrades(ctx context.Context, params TradeParams) ([]Trade, error) {
	q := url.Values{}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}
	if params.TakerOnly {
		q.Set("takerOnly", "true")
	}
	if params.FilterType != "" {
		q.Set("filterType", params.FilterType)
	}
	if params.FilterAmount > 0 {
		q.Set("filterAmount", strconv.FormatFloat(params.FilterAmount, 'f', 2, 64))
	}
	if params.Market != "" {
		q.Set("market", params.Market)
	}
	if params.User != "" {
		q.Set("user", params.User)
	}
	if params.Side != "" {
		q.Set("side", params.Side)
	}

	var trades []Trade
	if err := c.get(ctx, c.tradesLimiter, "/trades", q, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// GetUserTrades fetches a wallet's most recent trades
func (c *Client) GetUserTrades(ctx context.Context, wallet string, limit int) ([]Trade, error) {
	q := url.Values{}
	q.Set("user", wallet)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var trades []Trade
	if err := c.get(ctx, c.userLimiter, "/trades", q, &trades); err != nil {
		return nil, fmt.Errorf("user %s: %w", wallet, err)
	}
	return trades, nil
}

func (c *Client) get(ctx context.Context, limiter *ratelimit.Limiter, endpoint string, q url.Values, out interface{}) (err error) {
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	defer func() {
		metrics.RecordAPIRequest("data", endpoint, time.Since(start), err)
	}()

	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return fmt.Errorf("parse URL: %w", err)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("401 Unauthorized (auth_mode=%s) - check credentials", c.authMode)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var apiErr ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && (apiErr.Error != "" || apiErr.Message != "") {
			return fmt.Errorf("unexpected status %d: %s %s", resp.StatusCode, apiErr.Error, apiErr.Message)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setAuthHeaders(req *http.Request) {
	switch c.authMode {
	case config.AuthModeBearer:
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	case config.AuthModeAPIKey:
		req.Header.Set("X-API-KEY", c.apiKey)
	case config.AuthModeNone:
	}

	for k, v := range c.extraHeaders {
		req.Header.Set(k, v)
	}
}
