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

package model

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingToolCalls(t *testing.T) {
	calls := []ToolCall{{ID: "c1", Name: "vector_search"}, {ID: "c2", Name: "web_search"}}
	conv := Conversation{
		NewSystemMessage("sys"),
		NewUserMessage("What about hockey?"),
		{Role: RoleAssistant, ToolCalls: calls},
		NewToolMessage(calls[0], "hockey results"),
	}

	pending := conv.PendingToolCalls()
	require.Len(t, pending, 1)
	assert.Equal(t, "c2", pending[0].ID)

	conv = append(conv, NewToolMessage(calls[1], "web results"))
	assert.Empty(t, conv.PendingToolCalls())
}

func TestConversationCloneIsDeep(t *testing.T) {
	conv := Conversation{{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Args: map[string]any{"query": "a"}}}}}
	clone := conv.Clone()
	clone[0].ToolCalls[0].Args["query"] = "b"

	assert.Equal(t, "a", conv[0].ToolCalls[0].Args["query"])
	assert.True(t, conv.Equal(clone))
}

func TestLastAndLastOfRole(t *testing.T) {
	var empty Conversation
	_, ok := empty.Last()
	assert.False(t, ok)

	conv := Conversation{NewUserMessage("q"), NewAssistantMessage("a"), NewUserMessage("q2")}
	last, ok := conv.Last()
	require.True(t, ok)
	assert.Equal(t, "q2", last.Content)

	asst, ok := conv.LastOfRole(RoleAssistant)
	require.True(t, ok)
	assert.Equal(t, "a", asst.Content)
}

func TestToolMessagesAfter(t *testing.T) {
	call := ToolCall{ID: "c1"}
	conv := Conversation{
		NewToolMessage(call, "old"),
		{Role: RoleAssistant, ToolCalls: []ToolCall{call}},
		NewToolMessage(call, "new"),
	}
	msgs := conv.ToolMessagesAfter(1)
	require.Len(t, msgs, 1)
	assert.Equal(t, "new", msgs[0].Content)
	assert.Empty(t, conv.ToolMessagesAfter(10))
}

type seqLLM struct {
	responses []*Response
	err       error
}

func (s *seqLLM) Name() string { return "seq" }
func (s *seqLLM) Close() error { return nil }
func (s *seqLLM) GenerateContent(ctx context.Context, req *Request, stream bool) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		if s.err != nil {
			yield(nil, s.err)
			return
		}
		for _, r := range s.responses {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func TestGenerate(t *testing.T) {
	llm := &seqLLM{responses: []*Response{
		{Partial: true, Delta: "Hel"},
		{Message: NewAssistantMessage("Hello")},
	}}
	resp, err := Generate(context.Background(), llm, &Request{})
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Message.Content)

	_, err = Generate(context.Background(), &seqLLM{}, &Request{})
	assert.ErrorIs(t, err, ErrEmptyResponse)

	boom := errors.New("boom")
	_, err = Generate(context.Background(), &seqLLM{err: boom}, &Request{})
	assert.ErrorIs(t, err, boom)
}
