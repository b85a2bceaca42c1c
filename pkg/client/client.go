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

// Package client talks to a running docsagent server.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kadirpekel/docsagent/pkg/httpclient"
	"github.com/kadirpekel/docsagent/pkg/protocol"
	"github.com/kadirpekel/docsagent/pkg/vector"
	"github.com/kadirpekel/docsagent/pkg/vectorstore"
)

const serviceName = "docsagent"

// Client calls the REST, SSE and WebSocket endpoints.
type Client struct {
	baseURL string
	http    *httpclient.Client
	stream  *http.Client
}

// Option configures a Client.
type Option func(*options)

type options struct {
	timeout    time.Duration
	httpClient *http.Client
}

// WithTimeout bounds non-streaming requests.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithHTTPClient replaces the client used for every request.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// New creates a client for baseURL (for example http://localhost:8000).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}

	o := options{timeout: 60 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	requests := o.httpClient
	streams := o.httpClient
	if requests == nil {
		requests = &http.Client{Timeout: o.timeout}
		streams = &http.Client{}
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: httpclient.New(
			httpclient.WithHTTPClient(requests),
			httpclient.WithService(serviceName),
		),
		stream: streams,
	}, nil
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AddDocument stores a document and returns its id.
func (c *Client) AddDocument(ctx context.Context, req protocol.AddDocumentRequest) (string, error) {
	var resp protocol.AddDocumentResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/vector-store/documents", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Search queries a collection. A 404 is returned as *vector.CollectionNotFoundError.
func (c *Client) Search(ctx context.Context, req protocol.SearchRequest) ([]vectorstore.Match, error) {
	var resp protocol.SearchResponse
	err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/vector-store/search", req, &resp)
	var upErr *httpclient.UpstreamError
	if errors.As(err, &upErr) && upErr.StatusCode == http.StatusNotFound {
		return nil, &vector.CollectionNotFoundError{Collection: req.CollectionName}
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ListCollections returns collection names.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	var resp protocol.CollectionsResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/vector-store/collections", nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Collections))
	for _, col := range resp.Collections {
		names = append(names, col.Name)
	}
	return names, nil
}

// CreateCollection creates a collection; an existing one is not an error.
func (c *Client) CreateCollection(ctx context.Context, name string) error {
	endpoint := c.baseURL + "/vector-store/collections/" + url.PathEscape(name)
	return c.http.DoJSON(ctx, http.MethodPut, endpoint, nil, nil)
}

// StartCrawl starts a background crawl.
func (c *Client) StartCrawl(ctx context.Context, req protocol.CrawlRequest) (*protocol.CrawlResponse, error) {
	var resp protocol.CrawlResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/firecrawl/crawl", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Chat sends one message and waits for the full answer.
func (c *Client) Chat(ctx context.Context, threadID string, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	var resp protocol.ChatResponse
	endpoint := c.baseURL + "/agent/chat/" + url.PathEscape(threadID) + "?stream=false"
	if err := c.http.DoJSON(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
