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

package embedder

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kadirpekel/docsagent/pkg/httpclient"
)

const (
	ollamaService      = "ollama"
	ollamaDefaultModel = "all-minilm"
	ollamaDefaultURL   = "http://localhost:11434"
)

// Ollama's runner fails on concurrent embedding requests, so calls are serialized.
var ollamaEmbedMu sync.Mutex

// Ollama calls a local Ollama server.
type Ollama struct {
	client     *httpclient.Client
	baseURL    string
	model      string
	dimension  int
	maxRetries int
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllama creates an Ollama embedder. all-minilm yields 384 dimensions.
func NewOllama(cfg Config) *Ollama {
	e := &Ollama{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		maxRetries: cfg.MaxRetries,
	}
	if e.baseURL == "" {
		e.baseURL = ollamaDefaultURL
	}
	if e.model == "" {
		e.model = ollamaDefaultModel
	}
	if e.dimension == 0 {
		e.dimension = DefaultDimension
	}
	e.client = httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		httpclient.WithService(ollamaService),
	)
	return e
}

func (e *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	req := ollamaEmbedRequest{Model: e.model, Prompt: text}

	var err error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		var resp ollamaEmbedResponse
		err = e.client.DoJSON(ctx, http.MethodPost, e.baseURL+"/api/embeddings", req, &resp)
		if err == nil {
			if len(resp.Embedding) == 0 {
				return nil, &httpclient.UpstreamError{Service: ollamaService, Message: "received empty embedding"}
			}
			return resp.Embedding, nil
		}

		if attempt < e.maxRetries {
			slog.Debug("Ollama embedding retry", "attempt", attempt+1, "error", err, "text_length", len(text))
			select {
			case <-ctx.Done():
				return nil, httpclient.Upstream(ollamaService, ctx.Err())
			case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
			}
		}
	}

	slog.Error("Ollama embedding failed", "error", err, "model", e.model)
	return nil, err
}

func (e *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *Ollama) Dimension() int {
	return e.dimension
}

func (e *Ollama) Model() string {
	return e.model
}

func (e *Ollama) Close() error {
	return nil
}
