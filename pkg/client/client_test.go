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

package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docsagent/pkg/protocol"
	"github.com/kadirpekel/docsagent/pkg/testutils"
	"github.com/kadirpekel/docsagent/pkg/vector"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL + "/")
	require.NoError(t, err)
	return c
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("localhost")
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /vector-store/search", func(w http.ResponseWriter, r *http.Request) {
		var req protocol.SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.CollectionName == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = fmt.Fprint(w, `{"error":"collection \"missing\" not found","code":"collection_not_found"}`)
			return
		}
		assert.Equal(t, "hockey", req.Query)
		_, _ = fmt.Fprint(w, `[{"id":"1","document":"hockey text","score":0.9,"metadata":{"sourceURL":"https://example.com"}}]`)
	})
	c := newTestClient(t, mux)
	ctx := testutils.TestContext(t)

	matches, err := c.Search(ctx, protocol.SearchRequest{CollectionName: "examplecom", Query: "hockey"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "hockey text", matches[0].Document)
	assert.Equal(t, "https://example.com", matches[0].Metadata["sourceURL"])

	_, err = c.Search(ctx, protocol.SearchRequest{CollectionName: "missing", Query: "q"})
	assert.ErrorIs(t, err, vector.ErrCollectionNotFound)
}

func TestCollections(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /vector-store/collections", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"collections":[{"name":"a"},{"name":"b"}]}`)
	})
	var created string
	mux.HandleFunc("PUT /vector-store/collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		created = r.PathValue("name")
		_, _ = fmt.Fprint(w, `{"message":"ok"}`)
	})
	c := newTestClient(t, mux)
	ctx := testutils.TestContext(t)

	names, err := c.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, c.CreateCollection(ctx, "docs"))
	assert.Equal(t, "docs", created)
}

func TestStreamCrawl(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /firecrawl/stream-crawl", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://example.com", r.URL.Query().Get("url"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "data: {\"event\":\"document\",\"data\":{\"url\":\"https://example.com/a\"}}\n\n")
		_, _ = fmt.Fprint(w, ": keep-alive\n\n")
		_, _ = fmt.Fprint(w, "data: {\"event\":\"done\",\"data\":{\"status\":\"completed\"}}\n\n")
	})
	c := newTestClient(t, mux)

	var events []string
	for frame, err := range c.StreamCrawl(testutils.TestContext(t), protocol.CrawlRequest{URL: "https://example.com", Limit: 5}) {
		require.NoError(t, err)
		events = append(events, frame.Event)
	}
	assert.Equal(t, []string{"document", "done"}, events)
}

func TestStreamChat_ErrorStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /agent/chat/{thread}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprint(w, `{"error":"message is required"}`)
	})
	c := newTestClient(t, mux)

	var gotErr error
	for _, err := range c.StreamChat(testutils.TestContext(t), "t1", protocol.ChatRequest{}) {
		gotErr = err
	}
	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "message is required")
}

func TestChat(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /agent/chat/{thread}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", r.URL.Query().Get("stream"))
		_, _ = fmt.Fprintf(w, `{"response":"hi","thread_id":%q}`, r.PathValue("thread"))
	})
	c := newTestClient(t, mux)

	resp, err := c.Chat(testutils.TestContext(t), "t1", protocol.ChatRequest{Message: "hello", CollectionName: "docs"})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Response)
	assert.Equal(t, "t1", resp.ThreadID)
}

func TestDialChat(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/agent/ws/{thread}", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var req protocol.ChatRequest
		require.NoError(t, conn.ReadJSON(&req))
		_ = conn.WriteJSON(protocol.ChatFrame{Type: protocol.ChatFinal, Content: "echo: " + req.Message})
	})
	c := newTestClient(t, mux)

	conn, err := c.DialChat(testutils.TestContext(t), "t1")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(protocol.ChatRequest{Message: "hi", CollectionName: "docs"}))
	frame, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, protocol.ChatFrame{Type: "final", Content: "echo: hi"}, frame)
}

func TestCrawlSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/firecrawl/ws/crawl", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var req protocol.CrawlRequest
		require.NoError(t, conn.ReadJSON(&req))
		_ = conn.WriteJSON(protocol.CrawlSocketFrame{Event: "success", Message: "Starting crawl of " + req.URL})
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{})
		_ = conn.WriteJSON(protocol.CrawlSocketFrame{Event: "done", Status: "completed"})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	c := newTestClient(t, mux)

	var frames []protocol.CrawlSocketFrame
	err := c.CrawlSocket(testutils.TestContext(t), protocol.CrawlRequest{URL: "https://example.com"}, func(f protocol.CrawlSocketFrame) error {
		frames = append(frames, f)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "Starting crawl of https://example.com", frames[0].Message)
	assert.Equal(t, "done", frames[1].Event)
}
