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

// Package openai provides a chat model backed by the OpenAI Chat Completions API.
//
// The client implements model.LLM:
//   - Unified GenerateContent method with stream boolean
//   - Returns iter.Seq2[*Response, error]
//   - Streaming yields text deltas with Partial=true, then one aggregated response
//   - Tool call fragments are assembled by index while streaming
//
// Calls are never retried; a failed call is reported as *httpclient.UpstreamError.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kadirpekel/docsagent/pkg/httpclient"
	"github.com/kadirpekel/docsagent/pkg/model"
	"github.com/kadirpekel/docsagent/pkg/tool"
)

const (
	serviceName    = "openai"
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 120 * time.Second
)

// Config configures the OpenAI client.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64
	BaseURL     string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Option configures the OpenAI client.
type Option func(*Config)

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithMaxTokens sets the maximum output tokens.
func WithMaxTokens(maxTokens int) Option {
	return func(c *Config) {
		c.MaxTokens = maxTokens
	}
}

// WithTemperature sets the temperature.
func WithTemperature(temp float64) Option {
	return func(c *Config) {
		c.Temperature = &temp
	}
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// Client is an OpenAI chat model.
type Client struct {
	httpClient  *httpclient.Client
	baseURL     string
	modelName   string
	maxTokens   int
	temperature *float64
}

var _ model.LLM = (*Client)(nil)

// New creates a new OpenAI client.
func New(apiKey string, opts ...Option) (*Client, error) {
	cfg := Config{APIKey: apiKey}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewFromConfig(cfg)
}

// NewFromConfig creates a client from an explicit Config.
func NewFromConfig(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(hc),
			httpclient.WithService(serviceName),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
			httpclient.WithBearerToken(cfg.APIKey),
		),
		baseURL:     baseURL,
		modelName:   modelName,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Name returns the model identifier.
func (c *Client) Name() string {
	return c.modelName
}

// GenerateContent produces responses for the given request.
func (c *Client) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	if stream {
		return c.generateStream(ctx, req)
	}

	return func(yield func(*model.Response, error) bool) {
		resp, err := c.generate(ctx, req)
		yield(resp, err)
	}
}

// Close releases resources.
func (c *Client) Close() error {
	return nil
}

func (c *Client) completionsURL() string {
	return c.baseURL + "/chat/completions"
}

// generate performs non-streaming generation.
func (c *Client) generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	var apiResp chatResponse
	if err := c.httpClient.DoJSON(ctx, http.MethodPost, c.completionsURL(), c.buildRequest(req, false), &apiResp); err != nil {
		return nil, err
	}
	if len(apiResp.Choices) == 0 {
		return nil, &httpclient.UpstreamError{Service: serviceName, Message: "response has no choices"}
	}

	choice := apiResp.Choices[0]
	msg, err := fromWireMessage(choice.Message)
	if err != nil {
		return nil, err
	}
	return &model.Response{
		Message:      msg,
		Usage:        apiResp.Usage.toModel(),
		FinishReason: choice.FinishReason,
	}, nil
}

// generateStream performs streaming generation over server-sent events.
func (c *Client) generateStream(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		body, err := json.Marshal(c.buildRequest(req, true))
		if err != nil {
			yield(nil, fmt.Errorf("failed to marshal request: %w", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(body))
		if err != nil {
			yield(nil, fmt.Errorf("failed to create request: %w", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		agg := newStreamAggregator()
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				yield(nil, &httpclient.UpstreamError{Service: serviceName, Message: "stream read error", Err: err})
				return
			}

			data, ok := sseData(line)
			if ok {
				if string(data) == "[DONE]" {
					break
				}
				var chunk chatResponse
				if jerr := json.Unmarshal(data, &chunk); jerr != nil {
					slog.Debug("Failed to parse streaming chunk", "error", jerr)
				} else if delta := agg.add(&chunk); delta != "" {
					if !yield(&model.Response{Delta: delta, Partial: true}, nil) {
						return
					}
				}
			}

			if errors.Is(err, io.EOF) {
				break
			}
		}

		final, err := agg.close()
		yield(final, err)
	}
}

// sseData returns the payload of a "data:" line.
func sseData(line []byte) ([]byte, bool) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, false
	}
	return bytes.TrimSpace(line[len("data:"):]), true
}

// buildRequest creates an API request from model.Request.
func (c *Client) buildRequest(req *model.Request, stream bool) *chatRequest {
	apiReq := &chatRequest{
		Model:    c.modelName,
		Messages: make([]wireMessage, 0, len(req.Messages)),
		Stream:   stream,
	}

	if c.maxTokens > 0 {
		apiReq.MaxTokens = &c.maxTokens
	}
	apiReq.Temperature = c.temperature
	if req.Temperature != nil {
		apiReq.Temperature = req.Temperature
	}
	if stream {
		apiReq.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	for _, msg := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, toWireMessage(msg))
	}

	if len(req.Tools) > 0 {
		apiReq.Tools = convertTools(req.Tools)
		apiReq.ToolChoice = "auto"
	}

	if req.JSONMode {
		apiReq.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	return apiReq
}

func convertTools(defs []tool.Definition) []apiTool {
	tools := make([]apiTool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, apiTool{
			Type: "function",
			Function: apiFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return tools
}

func toWireMessage(msg model.Message) wireMessage {
	wm := wireMessage{
		Role:       string(msg.Role),
		Content:    &msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	if msg.Role == model.RoleTool {
		wm.Name = msg.Name
	}
	for _, tc := range msg.ToolCalls {
		args, _ := json.Marshal(tc.Args)
		if tc.Args == nil {
			args = []byte("{}")
		}
		wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: wireFunctionCall{
				Name:      tc.Name,
				Arguments: string(args),
			},
		})
	}
	if len(wm.ToolCalls) > 0 && msg.Content == "" {
		wm.Content = nil
	}
	return wm
}

func fromWireMessage(wm wireMessage) (model.Message, error) {
	msg := model.Message{Role: model.RoleAssistant}
	if wm.Content != nil {
		msg.Content = *wm.Content
	}
	for _, tc := range wm.ToolCalls {
		call, err := parseToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments)
		if err != nil {
			return model.Message{}, err
		}
		msg.ToolCalls = append(msg.ToolCalls, call)
	}
	return msg, nil
}

func parseToolCall(id, name, rawArgs string) (model.ToolCall, error) {
	if name == "" {
		return model.ToolCall{}, &httpclient.UpstreamError{Service: serviceName, Message: "tool call without a name"}
	}
	args := make(map[string]any)
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return model.ToolCall{}, &httpclient.UpstreamError{
				Service: serviceName,
				Message: fmt.Sprintf("invalid arguments for tool %q", name),
				Err:     err,
			}
		}
	}
	return model.ToolCall{ID: id, Name: name, Args: args}, nil
}

// streamAggregator accumulates chunks into the final response.
type streamAggregator struct {
	content      strings.Builder
	calls        map[int]*partialCall
	finishReason string
	usage        *model.Usage
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

func newStreamAggregator() *streamAggregator {
	return &streamAggregator{calls: make(map[int]*partialCall)}
}

// add folds a chunk in and returns its text delta.
func (a *streamAggregator) add(chunk *chatResponse) string {
	if chunk.Usage != nil {
		a.usage = chunk.Usage.toModel()
	}
	if len(chunk.Choices) == 0 {
		return ""
	}

	choice := chunk.Choices[0]
	if choice.FinishReason != "" {
		a.finishReason = choice.FinishReason
	}
	for _, tc := range choice.Delta.ToolCalls {
		pc, ok := a.calls[tc.Index]
		if !ok {
			pc = &partialCall{}
			a.calls[tc.Index] = pc
		}
		if tc.ID != "" {
			pc.id = tc.ID
		}
		if tc.Function.Name != "" {
			pc.name = tc.Function.Name
		}
		pc.args.WriteString(tc.Function.Arguments)
	}

	if choice.Delta.Content == nil {
		return ""
	}
	a.content.WriteString(*choice.Delta.Content)
	return *choice.Delta.Content
}

func (a *streamAggregator) close() (*model.Response, error) {
	msg := model.NewAssistantMessage(a.content.String())

	indexes := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		pc := a.calls[i]
		call, err := parseToolCall(pc.id, pc.name, pc.args.String())
		if err != nil {
			return nil, err
		}
		msg.ToolCalls = append(msg.ToolCalls, call)
	}

	return &model.Response{
		Message:      msg,
		Usage:        a.usage,
		FinishReason: a.finishReason,
	}, nil
}
