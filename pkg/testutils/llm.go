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

package testutils

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/kadirpekel/docsagent/pkg/model"
)

// Reply is one scripted model answer.
type Reply struct {
	Message model.Message
	Err     error
	// Block makes the call wait until its context ends.
	Block bool
}

// ScriptedLLM answers calls in order from a script and records requests.
// When streaming, the content is emitted word by word before the final message.
type ScriptedLLM struct {
	mu       sync.Mutex
	script   []Reply
	requests []*model.Request

	// Handler, when set, is used instead of the script.
	Handler func(call int, req *model.Request) (model.Message, error)
}

// NewScriptedLLM returns an LLM that answers with replies in order.
func NewScriptedLLM(replies ...Reply) *ScriptedLLM {
	return &ScriptedLLM{script: replies}
}

// Text is a plain assistant reply.
func Text(content string) Reply {
	return Reply{Message: model.NewAssistantMessage(content)}
}

// ToolCalls is an assistant reply requesting tools.
func ToolCalls(calls ...model.ToolCall) Reply {
	return Reply{Message: model.Message{Role: model.RoleAssistant, ToolCalls: calls}}
}

// Fail is a failed call.
func Fail(err error) Reply {
	return Reply{Err: err}
}

// Hang is a call that never answers and fails once its context ends.
func Hang() Reply {
	return Reply{Block: true}
}

func (l *ScriptedLLM) Name() string { return "scripted" }
func (l *ScriptedLLM) Close() error { return nil }

// Requests returns the recorded requests.
func (l *ScriptedLLM) Requests() []*model.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*model.Request(nil), l.requests...)
}

// Calls returns the number of calls made.
func (l *ScriptedLLM) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

func (l *ScriptedLLM) next(req *model.Request) Reply {
	l.mu.Lock()
	call := len(l.requests)
	l.requests = append(l.requests, &model.Request{
		Messages:    model.Conversation(req.Messages).Clone(),
		Tools:       req.Tools,
		JSONMode:    req.JSONMode,
		Temperature: req.Temperature,
	})
	handler := l.Handler
	var reply Reply
	exhausted := call >= len(l.script)
	if !exhausted {
		reply = l.script[call]
	}
	l.mu.Unlock()

	if handler != nil {
		msg, err := handler(call, req)
		return Reply{Message: msg, Err: err}
	}
	if exhausted {
		return Reply{Err: fmt.Errorf("scripted llm: no reply for call %d", call+1)}
	}
	reply.Message = reply.Message.Clone()
	return reply
}

func (l *ScriptedLLM) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		reply := l.next(req)
		if reply.Block {
			<-ctx.Done()
			yield(nil, ctx.Err())
			return
		}
		msg, err := reply.Message, reply.Err
		if err != nil {
			yield(nil, err)
			return
		}
		if msg.Role == "" {
			msg.Role = model.RoleAssistant
		}
		if stream && msg.Content != "" {
			for _, word := range strings.SplitAfter(msg.Content, " ") {
				if !yield(&model.Response{Delta: word, Partial: true}, nil) {
					return
				}
			}
		}
		yield(&model.Response{Message: msg, FinishReason: "stop"}, nil)
	}
}
