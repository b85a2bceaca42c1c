// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpclient wraps net/http with status-aware retries and maps
// upstream failures to UpstreamError.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	ConservativeRetry
	SmartRetry
)

type RateLimitInfo struct {
	RetryAfter        time.Duration
	ResetTime         int64
	RequestsRemaining int
	TokensRemaining   int
}

type RateLimitHeaderParser func(http.Header) RateLimitInfo

type RetryStrategyFunc func(int) RetryStrategy

// Client sends requests to a single upstream service.
type Client struct {
	client       *http.Client
	service      string
	maxRetries   int
	baseDelay    time.Duration
	headerParser RateLimitHeaderParser
	strategyFunc RetryStrategyFunc
	headers      http.Header
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client = &http.Client{Timeout: timeout, Transport: c.client.Transport}
	}
}

// WithService names the upstream in errors and logs.
func WithService(name string) Option {
	return func(c *Client) {
		c.service = name
	}
}

func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

func WithHeaderParser(parser RateLimitHeaderParser) Option {
	return func(c *Client) {
		c.headerParser = parser
	}
}

func WithRetryStrategy(strategyFunc RetryStrategyFunc) Option {
	return func(c *Client) {
		c.strategyFunc = strategyFunc
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithBearerToken sets the Authorization header when token is non-empty.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// New creates a client. Retries are off unless WithMaxRetries is given.
func New(opts ...Option) *Client {
	client := &Client{
		client:       &http.Client{Timeout: 60 * time.Second},
		service:      "upstream",
		baseDelay:    2 * time.Second,
		headerParser: ParseRetryAfter,
		strategyFunc: DefaultRetryStrategy,
		headers:      make(http.Header),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Service returns the upstream name used in errors.
func (c *Client) Service() string {
	return c.service
}

func DefaultRetryStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// Do sends req, retrying retryable statuses. Transport failures and non-2xx
// responses are returned as *UpstreamError; the response body is consumed in
// that case.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for key, values := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header[key] = values
		}
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, &UpstreamError{Service: c.service, Message: "request failed", Err: err}
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		strategy := c.strategyFunc(resp.StatusCode)
		var info RateLimitInfo
		if c.headerParser != nil {
			info = c.headerParser(resp.Header)
		}
		delay := c.calculateDelay(strategy, attempt, info)

		if strategy == NoRetry || attempt >= c.maxRetries || delay <= 0 {
			upErr := newUpstreamError(c.service, resp)
			upErr.RetryAfter = info.RetryAfter
			return nil, upErr
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		c.logRetry(strategy, delay, attempt, resp.StatusCode)

		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, &UpstreamError{Service: c.service, Message: "request cancelled during retry", Err: req.Context().Err()}
		case <-timer.C:
		}
	}
}

// DoJSON marshals in as the request body, sends it and decodes the response
// into out. A nil in sends no body; a nil out discards the response.
func (c *Client) DoJSON(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Service: c.service, StatusCode: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	return nil
}

func (c *Client) calculateDelay(strategy RetryStrategy, attempt int, retryInfo RateLimitInfo) time.Duration {
	switch strategy {
	case SmartRetry:
		if retryInfo.RetryAfter > 0 {
			return retryInfo.RetryAfter
		}

		if retryInfo.ResetTime > 0 {
			delay := time.Until(time.Unix(retryInfo.ResetTime, 0))
			if delay > 0 {
				return delay
			}
		}

		exponentialDelay := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		jitter := time.Duration(float64(exponentialDelay) * 0.1)
		return exponentialDelay + jitter

	case ConservativeRetry:
		// At most two quick retries for server errors.
		if attempt >= 2 {
			return 0
		}
		return time.Duration(1+attempt) * c.baseDelay

	default:
		return 0
	}
}

func (c *Client) logRetry(strategy RetryStrategy, delay time.Duration, attempt, statusCode int) {
	switch strategy {
	case SmartRetry:
		slog.Warn("Rate limited, retrying",
			"service", c.service,
			"status", statusCode,
			"delay", delay,
			"attempt", attempt+1,
			"max_retries", c.maxRetries)
	case ConservativeRetry:
		slog.Warn("Server error, retrying",
			"service", c.service,
			"status", statusCode,
			"delay", delay,
			"attempt", attempt+1)
	}
}
