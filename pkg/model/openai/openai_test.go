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

package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docsagent/pkg/httpclient"
	"github.com/kadirpekel/docsagent/pkg/model"
	"github.com/kadirpekel/docsagent/pkg/tool"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New("sk-test", WithBaseURL(srv.URL+"/"), WithModel("gpt-test"), WithTemperature(0))
	require.NoError(t, err)
	return c
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestGenerate_ToolCalls(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":null,
			"tool_calls":[{"id":"call_1","type":"function","function":{"name":"vector_search","arguments":"{\"query\":\"hockey\"}"}}]},
			"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	})

	req := &model.Request{
		Messages: []model.Message{model.NewSystemMessage("sys"), model.NewUserMessage("What about hockey?")},
		Tools:    []tool.Definition{{Name: "vector_search", Description: "search", Parameters: map[string]any{"type": "object"}}},
	}
	resp, err := model.Generate(context.Background(), c, req)
	require.NoError(t, err)

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)
	assert.Equal(t, "vector_search", got.Tools[0].Function.Name)
	assert.Equal(t, "auto", got.ToolChoice)
	require.NotNil(t, got.Temperature)
	assert.Zero(t, *got.Temperature)
	assert.False(t, got.Stream)

	require.Len(t, resp.Message.ToolCalls, 1)
	call := resp.Message.ToolCalls[0]
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, "vector_search", call.Name)
	assert.Equal(t, "hockey", call.Args["query"])
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestGenerate_JSONModeAndToolMessages(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"binary_score\":\"yes\"}"},"finish_reason":"stop"}]}`)
	})

	call := model.ToolCall{ID: "c1", Name: "web_search", Args: map[string]any{"query": "q"}}
	req := &model.Request{
		Messages: []model.Message{
			model.NewUserMessage("q"),
			{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{call}},
			model.NewToolMessage(call, "result"),
		},
		JSONMode: true,
	}
	resp, err := model.Generate(context.Background(), c, req)
	require.NoError(t, err)
	assert.Equal(t, `{"binary_score":"yes"}`, resp.Message.Content)

	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 3)
	assert.Nil(t, got.Messages[1].Content)
	assert.Equal(t, `{"query":"q"}`, got.Messages[1].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "c1", got.Messages[2].ToolCallID)
	assert.Equal(t, "tool", got.Messages[2].Role)
}

func TestGenerate_UpstreamError(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprint(w, `{"error":{"message":"overloaded"}}`)
	})

	_, err := model.Generate(context.Background(), c, &model.Request{Messages: []model.Message{model.NewUserMessage("hi")}})
	require.Error(t, err)

	var upErr *httpclient.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "openai", upErr.Service)
	assert.Equal(t, http.StatusServiceUnavailable, upErr.StatusCode)
	assert.Equal(t, "overloaded", upErr.Message)
	assert.Equal(t, 1, calls)
}

func TestGenerate_InvalidToolArguments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","tool_calls":[{"id":"c","function":{"name":"x","arguments":"{oops"}}]}}]}`)
	})
	_, err := model.Generate(context.Background(), c, &model.Request{})
	assert.True(t, httpclient.IsUpstream(err))
}

func TestGenerateStream(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"web_search","arguments":"{\"que"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ry\":\"go\"}"}}]},"finish_reason":"tool_calls"}]}`,
			`{"choices":[],"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`,
		}
		for _, chunk := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var deltas []string
	var final *model.Response
	for resp, err := range c.GenerateContent(context.Background(), &model.Request{}, true) {
		require.NoError(t, err)
		if resp.Partial {
			deltas = append(deltas, resp.Delta)
			continue
		}
		final = resp
	}

	assert.True(t, got.Stream)
	require.NotNil(t, got.StreamOptions)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	require.NotNil(t, final)
	assert.Equal(t, "Hello", final.Message.Content)
	require.Len(t, final.Message.ToolCalls, 1)
	assert.Equal(t, "go", final.Message.ToolCalls[0].Args["query"])
	assert.Equal(t, "tool_calls", final.FinishReason)
	assert.Equal(t, 7, final.Usage.TotalTokens)
}

func TestGenerateStream_StopEarly(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 5; i++ {
			_, _ = fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"%d\"}}]}\n\n", i)
		}
	})

	n := 0
	for range c.GenerateContent(context.Background(), &model.Request{}, true) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}
