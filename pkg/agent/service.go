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

package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kadirpekel/docsagent/pkg/checkpoint"
	"github.com/kadirpekel/docsagent/pkg/model"
)

// ErrInvalidRequest is returned for chat requests missing a message or a
// collection.
var ErrInvalidRequest = errors.New("invalid chat request")

// ChatRequest is one user turn on a thread.
type ChatRequest struct {
	ThreadID   string
	Message    string
	Collection string
}

// Result is a completed turn.
type Result struct {
	ThreadID string
	Answer   string
	Messages model.Conversation
	Rewrites int
}

// Service runs chat turns against per-thread conversations.
type Service struct {
	graph *Graph
	store checkpoint.Store
}

// NewService creates a Service. A nil store selects an in-memory one.
func NewService(graph *Graph, store checkpoint.Store) *Service {
	if store == nil {
		store = checkpoint.NewMemoryStore()
	}
	return &Service{graph: graph, store: store}
}

// Store returns the checkpoint store.
func (s *Service) Store() checkpoint.Store {
	return s.store
}

// Chat runs one turn. The thread's conversation is saved only when the
// run succeeds. An empty ThreadID starts a new thread.
func (s *Service) Chat(ctx context.Context, req ChatRequest, emit Emitter) (*Result, error) {
	if req.Message == "" || req.Collection == "" {
		err := fmt.Errorf("%w: message and collection are required", ErrInvalidRequest)
		emit.emit(Event{Type: EventError, Content: err.Error()})
		return nil, err
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}

	history, _ := s.store.Load(req.ThreadID)
	history = seed(history, req.Collection)
	history = append(history, model.NewUserMessage(req.Message))

	res, err := s.graph.Run(ctx, RunInput{Messages: history, Collection: req.Collection}, emit)
	if err != nil {
		slog.Error("Chat turn failed", "thread_id", req.ThreadID, "collection", req.Collection, "error", err)
		emit.emit(Event{Type: EventError, Content: err.Error()})
		return nil, err
	}

	s.store.Save(req.ThreadID, res.Messages)
	emit.emit(Event{Type: EventFinal, Content: res.Answer})
	return &Result{
		ThreadID: req.ThreadID,
		Answer:   res.Answer,
		Messages: res.Messages,
		Rewrites: res.Rewrites,
	}, nil
}

// seed adds the system prompt on the first turn, and again when the
// thread switches collection.
func seed(history model.Conversation, collection string) model.Conversation {
	prompt := SystemPrompt(collection)
	if last, ok := history.LastOfRole(model.RoleSystem); ok && last.Content == prompt {
		return history
	}
	return append(history, model.NewSystemMessage(prompt))
}

// Stream runs one turn and yields its events. A failed run ends with an
// EventError paired with the error. Stopping the iteration cancels the run.
func (s *Service) Stream(ctx context.Context, req ChatRequest) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		events := make(chan Event, 64)
		var runErr error
		go func() {
			defer close(events)
			_, runErr = s.Chat(ctx, req, func(ev Event) {
				if ev.Type == EventError {
					return
				}
				select {
				case events <- ev:
				case <-ctx.Done():
				}
			})
		}()

		for ev := range events {
			if !yield(ev, nil) {
				cancel()
				for range events {
				}
				return
			}
		}
		if runErr != nil {
			yield(Event{Type: EventError, Content: runErr.Error()}, runErr)
		}
	}
}
