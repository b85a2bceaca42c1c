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

// Package model defines conversation messages and the chat model interface.
package model

import (
	"context"
	"iter"

	"github.com/kadirpekel/docsagent/pkg/tool"
)

// LLM is a chat model that can call tools.
type LLM interface {
	// Name returns the model identifier.
	Name() string

	// GenerateContent produces responses for the given request.
	//
	// When stream=false:
	//   - Yields exactly one Response with Partial=false
	//
	// When stream=true:
	//   - Yields partial Responses (Partial=true) carrying Delta text
	//   - Finally yields the aggregated Response with Partial=false
	GenerateContent(ctx context.Context, req *Request, stream bool) iter.Seq2[*Response, error]

	// Close releases any resources held by the LLM.
	Close() error
}

// Request is a single model call.
type Request struct {
	// Messages is the conversation history, system message included.
	Messages []Message

	// Tools available for the model to call.
	Tools []tool.Definition

	// JSONMode asks the model for a single JSON object.
	JSONMode bool

	// Temperature overrides the client default when set.
	Temperature *float64
}

// Response is a (possibly partial) model reply.
type Response struct {
	// Message is the aggregated reply. Empty on partial responses.
	Message Message

	// Delta is the text added since the previous partial response.
	Delta string

	// Partial marks a streaming chunk.
	Partial bool

	Usage        *Usage
	FinishReason string
}

// Usage reports token accounting for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Generate runs a non-streaming call and returns its single response.
func Generate(ctx context.Context, llm LLM, req *Request) (*Response, error) {
	var final *Response
	for resp, err := range llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return nil, err
		}
		if !resp.Partial {
			final = resp
		}
	}
	if final == nil {
		return nil, ErrEmptyResponse
	}
	return final, nil
}
