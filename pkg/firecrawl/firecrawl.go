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

// Package firecrawl is a client for the Firecrawl crawling service.
//
// A crawl is started over REST and then watched over a WebSocket that
// pushes documents as pages are scraped:
//
//	POST /v1/crawl           -> {success, id}
//	WS   /v1/crawl/{id}      -> catchup | document | error | done
package firecrawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kadirpekel/docsagent/pkg/httpclient"
)

const (
	serviceName = "firecrawl"

	defaultTimeout          = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// Config configures a Client.
type Config struct {
	// APIURL is the base URL of the Firecrawl API, without /v1.
	APIURL string `yaml:"api_url"`

	// APIKey is sent as a bearer token when set.
	APIKey string `yaml:"api_key"`

	Timeout time.Duration `yaml:"timeout"`

	HTTPClient *http.Client `yaml:"-"`
}

// Client talks to one Firecrawl deployment.
type Client struct {
	apiURL *url.URL
	apiKey string
	http   *httpclient.Client
	dialer *websocket.Dialer
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, errors.New("firecrawl: api url is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.APIURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("firecrawl: invalid api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("firecrawl: api url must be http or https, got %q", cfg.APIURL)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	opts := []httpclient.Option{
		httpclient.WithService(serviceName),
		httpclient.WithTimeout(cfg.Timeout),
		httpclient.WithBearerToken(cfg.APIKey),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, httpclient.WithHTTPClient(cfg.HTTPClient))
	}

	return &Client{
		apiURL: u,
		apiKey: cfg.APIKey,
		http:   httpclient.New(opts...),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
	}, nil
}

// CrawlRequest describes a crawl.
type CrawlRequest struct {
	URL   string
	Limit int
}

type scrapeOptions struct {
	Formats []string `json:"formats"`
}

type crawlBody struct {
	URL           string        `json:"url"`
	Limit         int           `json:"limit,omitempty"`
	ScrapeOptions scrapeOptions `json:"scrapeOptions"`
}

type crawlResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StartCrawl submits a crawl job and returns its id.
func (c *Client) StartCrawl(ctx context.Context, req CrawlRequest) (string, error) {
	if req.URL == "" {
		return "", errors.New("firecrawl: url is required")
	}

	body := crawlBody{
		URL:           req.URL,
		Limit:         req.Limit,
		ScrapeOptions: scrapeOptions{Formats: []string{"markdown"}},
	}
	var resp crawlResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, c.apiURL.String()+"/v1/crawl", body, &resp); err != nil {
		return "", httpclient.Upstream(serviceName, err)
	}
	if !resp.Success || resp.ID == "" {
		msg := resp.Error
		if msg == "" {
			msg = "crawl was not accepted"
		}
		return "", &httpclient.UpstreamError{Service: serviceName, Message: msg}
	}
	return resp.ID, nil
}

// watchURL maps the API URL to the WebSocket URL of job id.
func (c *Client) watchURL(id string) string {
	u := *c.apiURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/crawl/" + url.PathEscape(id)
	return u.String()
}

func (c *Client) authHeader() http.Header {
	h := make(http.Header)
	if c.apiKey != "" {
		h.Set("Authorization", "Bearer "+c.apiKey)
	}
	return h
}
