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
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// FirecrawlScript describes what a FirecrawlServer does for every crawl.
type FirecrawlScript struct {
	// Documents are pushed one message each, except the first Catchup
	// documents, which are sent together in a catchup message.
	Documents []map[string]any
	Catchup   int

	// Errors are sent after the documents.
	Errors []string

	// SkipDone closes the socket without a done message.
	SkipDone bool

	// Hold keeps the socket open after the script until the client leaves.
	Hold bool

	// RejectStatus makes POST /v1/crawl fail with this status.
	RejectStatus int
}

// FirecrawlServer is an in-process stand-in for the Firecrawl API.
type FirecrawlServer struct {
	*httptest.Server
	script FirecrawlScript

	mu       sync.Mutex
	requests []map[string]any
	auth     []string
	closed   chan struct{}
}

// NewFirecrawlServer starts a server following script. It is closed when
// the test ends.
func NewFirecrawlServer(t testing.TB, script FirecrawlScript) *FirecrawlServer {
	t.Helper()
	s := &FirecrawlServer{script: script, closed: make(chan struct{}, 16)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/crawl", s.handleCrawl)
	mux.HandleFunc("GET /v1/crawl/{id}", s.handleWatch)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Page builds a crawled document with a source URL.
func Page(url, markdown string) map[string]any {
	return map[string]any{
		"markdown": markdown,
		"metadata": map[string]any{
			"sourceURL":  url,
			"title":      "Page " + url,
			"statusCode": 200,
		},
	}
}

// Requests returns the decoded crawl request bodies.
func (s *FirecrawlServer) Requests() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.requests...)
}

// Authorizations returns the Authorization headers seen on all requests.
func (s *FirecrawlServer) Authorizations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auth...)
}

// Closed receives a value each time a held watch socket is released by the
// client.
func (s *FirecrawlServer) Closed() <-chan struct{} {
	return s.closed
}

func (s *FirecrawlServer) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.requests = append(s.requests, body)
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	id := fmt.Sprintf("job-%d", len(s.requests))
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if s.script.RejectStatus != 0 {
		w.WriteHeader(s.script.RejectStatus)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "crawl rejected"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "id": id})
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func (s *FirecrawlServer) handleWatch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	s.mu.Unlock()

	if !strings.HasPrefix(r.PathValue("id"), "job-") {
		http.NotFound(w, r)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	docs := s.script.Documents
	if n := min(s.script.Catchup, len(docs)); n > 0 {
		if conn.WriteJSON(map[string]any{
			"type": "catchup",
			"data": map[string]any{"status": "scraping", "data": docs[:n]},
		}) != nil {
			return
		}
		docs = docs[n:]
	}
	for _, doc := range docs {
		if conn.WriteJSON(map[string]any{"type": "document", "data": doc}) != nil {
			return
		}
	}
	for _, e := range s.script.Errors {
		if conn.WriteJSON(map[string]any{"type": "error", "error": e}) != nil {
			return
		}
	}

	if s.script.Hold {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.closed <- struct{}{}
				return
			}
		}
	}
	if !s.script.SkipDone {
		_ = conn.WriteJSON(map[string]any{"type": "done"})
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
