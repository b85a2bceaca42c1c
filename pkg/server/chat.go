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

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/kadirpekel/docsagent/pkg/agent"
	"github.com/kadirpekel/docsagent/pkg/protocol"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body protocol.ChatRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	req := agent.ChatRequest{
		ThreadID:   chi.URLParam(r, "thread_id"),
		Message:    body.Message,
		Collection: body.CollectionName,
	}

	if !wantsStream(r) {
		res, err := s.deps.Chat.Chat(r.Context(), req, nil)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, protocol.ChatResponse{Response: res.Answer, ThreadID: res.ThreadID})
		return
	}

	// Failed runs end with the error frame emitted by the service.
	sse := newSSEWriter(w)
	if _, err := s.deps.Chat.Chat(r.Context(), req, func(ev agent.Event) {
		if err := sse.Data(chatFrame(ev)); err != nil {
			slog.Debug("Failed to write chat event", "thread_id", req.ThreadID, "error", err)
		}
	}); err != nil {
		slog.Warn("Streamed chat ended with error", "thread_id", req.ThreadID, "error", err)
	}
}

// wantsStream is true unless the client asked for a plain JSON answer.
func wantsStream(r *http.Request) bool {
	if r.URL.Query().Get("stream") == "false" {
		return false
	}
	accept := r.Header.Get("Accept")
	return !strings.Contains(accept, "application/json") || strings.Contains(accept, "text/event-stream")
}

func chatFrame(ev agent.Event) protocol.ChatFrame {
	return protocol.ChatFrame{Type: string(ev.Type), Content: ev.Content}
}

func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread_id")
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("WebSocket upgrade failed", "error", err)
		return
	}
	conn := &wsConn{conn: c}
	defer conn.Close(websocket.CloseNormalClosure, "")
	slog.Info("Chat WebSocket connection established", "thread_id", threadID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reading happens on its own goroutine so a disconnect cancels a
	// running turn.
	messages := make(chan []byte)
	go func() {
		defer close(messages)
		defer cancel()
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			select {
			case messages <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for data := range messages {
		var body protocol.ChatRequest
		if err := json.Unmarshal(data, &body); err != nil {
			_ = conn.WriteJSON(protocol.ChatFrame{Type: protocol.ChatError, Content: "invalid message: " + err.Error()})
			continue
		}
		if err := validateRequest(&body); err != nil {
			_ = conn.WriteJSON(protocol.ChatFrame{Type: protocol.ChatError, Content: err.Error()})
			continue
		}

		req := agent.ChatRequest{ThreadID: threadID, Message: body.Message, Collection: body.CollectionName}
		if _, err := s.deps.Chat.Chat(ctx, req, func(ev agent.Event) {
			_ = conn.WriteJSON(chatFrame(ev))
		}); err != nil {
			slog.Warn("Chat turn failed", "thread_id", threadID, "error", err)
		}
	}
	slog.Debug("Chat WebSocket closed", "thread_id", threadID)
}
