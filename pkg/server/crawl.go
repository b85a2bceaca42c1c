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
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kadirpekel/docsagent/pkg/crawl"
	"github.com/kadirpekel/docsagent/pkg/protocol"
)

// Default page limits per endpoint.
const (
	defaultCrawlLimit  = 10
	defaultSocketLimit = 500
)

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req protocol.CrawlRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultCrawlLimit
	}

	err := s.crawls.Go(func(ctx context.Context) {
		summary, err := s.deps.Crawl.Run(ctx, crawl.Request{URL: req.URL, Limit: req.Limit}, crawl.Discard)
		if err != nil {
			slog.Error("Background crawl failed", "url", req.URL, "error", err)
			return
		}
		slog.Info("Background crawl completed", "url", req.URL, "collection", summary.Collection, "persisted", summary.Persisted)
	})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, protocol.ErrorResponse{Error: err.Error(), Code: protocol.CodeInternal})
		return
	}
	writeJSON(w, http.StatusOK, protocol.CrawlResponse{
		Status:  "success",
		Message: "Crawl started for " + req.URL,
	})
}

func (s *Server) handleStreamCrawl(w http.ResponseWriter, r *http.Request) {
	req := protocol.CrawlRequest{URL: r.URL.Query().Get("url"), Limit: defaultCrawlLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, badRequest("limit must be an integer"))
			return
		}
		req.Limit = n
	}
	if err := validateRequest(&req); err != nil {
		writeError(w, r, err)
		return
	}

	sink := &sseCrawlSink{sse: newSSEWriter(w)}
	if _, err := s.deps.Crawl.Run(r.Context(), crawl.Request{URL: req.URL, Limit: req.Limit}, sink); err != nil {
		slog.Warn("Streamed crawl ended with error", "url", req.URL, "error", err)
	}
}

func (s *Server) handleCrawlSocket(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied.
		slog.Debug("WebSocket upgrade failed", "error", err)
		return
	}
	conn := &wsConn{conn: c}
	defer conn.Close(websocket.CloseNormalClosure, "")
	slog.Info("Crawl WebSocket connection established")

	var req protocol.CrawlRequest
	_ = c.SetReadDeadline(time.Now().Add(time.Minute))
	if err := c.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(protocol.CrawlSocketFrame{Event: protocol.CrawlEventError, Error: "invalid crawl request: " + err.Error()})
		return
	}
	_ = c.SetReadDeadline(time.Time{})
	if req.Limit == 0 {
		req.Limit = defaultSocketLimit
	}
	if err := validateRequest(&req); err != nil {
		_ = conn.WriteJSON(protocol.CrawlSocketFrame{Event: protocol.CrawlEventError, Error: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go watchClose(c, cancel)

	if _, err := s.deps.Crawl.Run(ctx, crawl.Request{URL: req.URL, Limit: req.Limit}, &socketCrawlSink{conn: conn}); err != nil {
		slog.Warn("Socket crawl ended with error", "url", req.URL, "error", err)
	}
}

// watchClose drains client frames and cancels once the client goes away.
func watchClose(c *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

// sseCrawlSink frames crawl events as `data: {"event": ..., "data": ...}`.
type sseCrawlSink struct {
	sse *sseWriter
}

func (s *sseCrawlSink) Send(ctx context.Context, ev crawl.Event) error {
	return s.sse.Data(streamFrame(ev))
}

func (s *sseCrawlSink) Heartbeat(ctx context.Context) error {
	return s.sse.Comment("keep-alive")
}

func streamFrame(ev crawl.Event) protocol.CrawlStreamFrame {
	switch ev.Type {
	case crawl.EventStarted:
		return protocol.CrawlStreamFrame{Event: protocol.CrawlEventSuccess, Data: map[string]string{"message": ev.Message, "collection": ev.Collection}}
	case crawl.EventDocument:
		return protocol.CrawlStreamFrame{Event: protocol.CrawlEventDocument, Data: map[string]string{"url": ev.URL}}
	case crawl.EventError:
		return protocol.CrawlStreamFrame{Event: protocol.CrawlEventError, Data: map[string]string{"error": ev.Error}}
	default:
		return protocol.CrawlStreamFrame{Event: protocol.CrawlEventDone, Data: map[string]string{"status": ev.Status}}
	}
}

// socketCrawlSink pushes crawl events as flat JSON frames with empty
// binary keep-alives.
type socketCrawlSink struct {
	conn *wsConn
}

func (s *socketCrawlSink) Send(ctx context.Context, ev crawl.Event) error {
	return s.conn.WriteJSON(socketFrame(ev))
}

func (s *socketCrawlSink) Heartbeat(ctx context.Context) error {
	return s.conn.KeepAlive()
}

func socketFrame(ev crawl.Event) protocol.CrawlSocketFrame {
	switch ev.Type {
	case crawl.EventStarted:
		return protocol.CrawlSocketFrame{Event: protocol.CrawlEventSuccess, Message: ev.Message}
	case crawl.EventDocument:
		return protocol.CrawlSocketFrame{Event: protocol.CrawlEventDocument, URL: ev.URL}
	case crawl.EventError:
		return protocol.CrawlSocketFrame{Event: protocol.CrawlEventError, Error: ev.Error}
	default:
		return protocol.CrawlSocketFrame{Event: protocol.CrawlEventDone, Status: ev.Status}
	}
}
