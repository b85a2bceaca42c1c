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

// Package webtool provides the web search tool backed by the Tavily API.
package webtool

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/docsagent/pkg/httpclient"
	"github.com/kadirpekel/docsagent/pkg/tool"
	"github.com/kadirpekel/docsagent/pkg/tool/functiontool"
)

const (
	// Name is the tool name the model calls.
	Name = "web_search"

	// MaxResults caps the results of one search.
	MaxResults = 2

	defaultBaseURL = "https://api.tavily.com"
	serviceName    = "tavily"
)

// SearchArgs defines the parameters of a web search.
type SearchArgs struct {
	Query string `json:"query" jsonschema:"required,description=The search query"`
}

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Config configures the web search tool.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type tavilyRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// New creates the web_search tool.
func New(cfg Config) (tool.Tool, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	hc := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		httpclient.WithService(serviceName),
		httpclient.WithBearerToken(cfg.APIKey),
	)
	endpoint := strings.TrimSuffix(cfg.BaseURL, "/") + "/search"

	return functiontool.NewWithValidation(
		functiontool.Config{
			Name:        Name,
			Description: "Search the web for up-to-date information. Returns at most two results with title, URL and snippet.",
		},
		func(ctx context.Context, args SearchArgs) (any, error) {
			results, err := search(ctx, hc, endpoint, args.Query)
			if err != nil {
				slog.Error("Web search failed", "error", err)
				return fmt.Sprintf("web search failed: %v", err), nil
			}
			return results, nil
		},
		func(args SearchArgs) error {
			if strings.TrimSpace(args.Query) == "" {
				return fmt.Errorf("query is required")
			}
			return nil
		},
	)
}

func search(ctx context.Context, hc *httpclient.Client, endpoint, query string) ([]Result, error) {
	var resp tavilyResponse
	req := tavilyRequest{Query: query, MaxResults: MaxResults}
	if err := hc.DoJSON(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return nil, err
	}

	results := make([]Result, 0, MaxResults)
	for _, r := range resp.Results {
		if len(results) == MaxResults {
			break
		}
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return results, nil
}
