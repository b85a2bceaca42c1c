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
	"errors"
	"maps"
	"slices"
)

// ErrEmptyResponse is returned when a model call yields nothing.
var ErrEmptyResponse = errors.New("model returned no response")

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a request by the assistant to invoke a named tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Message is one entry of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that request tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Name are set on tool messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// NewSystemMessage returns a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage returns a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage returns an assistant message without tool calls.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage returns the tool-role answer to call.
func NewToolMessage(call ToolCall, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: call.ID, Name: call.Name}
}

// HasToolCalls reports whether the message requests tools.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	if m.ToolCalls != nil {
		calls := make([]ToolCall, len(m.ToolCalls))
		for i, c := range m.ToolCalls {
			c.Args = maps.Clone(c.Args)
			calls[i] = c
		}
		m.ToolCalls = calls
	}
	return m
}

// Conversation is an ordered, append-only list of messages.
type Conversation []Message

// Clone returns a deep copy of c.
func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	for i, m := range c {
		out[i] = m.Clone()
	}
	return out
}

// Last returns the last message and whether there is one.
func (c Conversation) Last() (Message, bool) {
	if len(c) == 0 {
		return Message{}, false
	}
	return c[len(c)-1], true
}

// LastOfRole returns the most recent message with role.
func (c Conversation) LastOfRole(role Role) (Message, bool) {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Role == role {
			return c[i], true
		}
	}
	return Message{}, false
}

// PendingToolCalls returns tool calls that have no matching tool message.
func (c Conversation) PendingToolCalls() []ToolCall {
	answered := make(map[string]int)
	for _, m := range c {
		if m.Role == RoleTool {
			answered[m.ToolCallID]++
		}
	}

	var pending []ToolCall
	for _, m := range c {
		for _, call := range m.ToolCalls {
			if answered[call.ID] == 0 {
				pending = append(pending, call)
				continue
			}
			answered[call.ID]--
		}
	}
	return pending
}

// ToolMessagesAfter returns the tool messages that follow index i.
func (c Conversation) ToolMessagesAfter(i int) []Message {
	var out []Message
	for _, m := range c[min(i+1, len(c)):] {
		if m.Role == RoleTool {
			out = append(out, m)
		}
	}
	return out
}

// Equal reports whether two conversations hold the same messages.
func (c Conversation) Equal(other Conversation) bool {
	return slices.EqualFunc(c, other, func(a, b Message) bool {
		if a.Role != b.Role || a.Content != b.Content || a.ToolCallID != b.ToolCallID || a.Name != b.Name {
			return false
		}
		return slices.EqualFunc(a.ToolCalls, b.ToolCalls, func(x, y ToolCall) bool {
			return x.ID == y.ID && x.Name == y.Name
		})
	})
}
