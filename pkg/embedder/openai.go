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
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/docsagent/pkg/httpclient"
)

const (
	openAIService      = "openai-embeddings"
	openAIDefaultModel = "text-embedding-3-small"
	openAIDefaultURL   = "https://api.openai.com/v1"
	openAIBatchSize    = 100
)

// OpenAI calls the OpenAI embeddings API. The text-embedding-3 models are
// asked for a reduced dimension so vectors fit the collections.
type OpenAI struct {
	client    *httpclient.Client
	baseURL   string
	model     string
	dimension int
}

type openAIEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI embedder")
	}

	model := cfg.Model
	if model == "" {
		model = openAIDefaultModel
	}
	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = DefaultDimension
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIDefaultURL
	}

	return &OpenAI{
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			httpclient.WithService(openAIService),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
			httpclient.WithBearerToken(cfg.APIKey),
		),
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
	}, nil
}

func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += openAIBatchSize {
		batch := texts[i:min(i+openAIBatchSize, len(texts))]

		var resp openAIEmbedResponse
		req := openAIEmbedRequest{Model: e.model, Input: batch, Dimensions: e.dimension}
		if err := e.client.DoJSON(ctx, http.MethodPost, e.baseURL+"/embeddings", req, &resp); err != nil {
			return nil, err
		}

		// Sort embeddings by index to match input order
		embeddings := make([][]float32, len(batch))
		for _, item := range resp.Data {
			if item.Index >= 0 && item.Index < len(embeddings) {
				embeddings[item.Index] = item.Embedding
			}
		}
		for j, vec := range embeddings {
			if len(vec) == 0 {
				return nil, &httpclient.UpstreamError{Service: openAIService, Message: fmt.Sprintf("missing embedding for input %d", i+j)}
			}
		}
		results = append(results, embeddings...)
	}

	return results, nil
}

func (e *OpenAI) Dimension() int {
	return e.dimension
}

func (e *OpenAI) Model() string {
	return e.model
}

func (e *OpenAI) Close() error {
	return nil
}
