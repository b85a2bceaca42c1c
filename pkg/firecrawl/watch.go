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

package firecrawl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/kadirpekel/docsagent/pkg/httpclient"
)

// DefaultBuffer is the event channel capacity used when Watch gets 0.
const DefaultBuffer = 16

// EventType is the kind of a crawl event.
type EventType string

const (
	EventDocument EventType = "document"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Event is one crawl event.
type Event struct {
	Type     EventType
	Document *Document
	Error    string
	Status   string
}

// wireMessage is one message of the watch socket.
type wireMessage struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
	Status string          `json:"status,omitempty"`
}

type catchup struct {
	Status string     `json:"status"`
	Data   []Document `json:"data"`
}

// Watch subscribes to the events of crawl id. Events are delivered on a
// channel with the given capacity; the channel is closed after a done
// event, when the socket closes, or when ctx ends. Cancelling ctx closes
// the socket.
func (c *Client) Watch(ctx context.Context, id string, buffer int) (<-chan Event, error) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.watchURL(id), c.authHeader())
	if err != nil {
		if resp != nil {
			return nil, &httpclient.UpstreamError{
				Service:    serviceName,
				StatusCode: resp.StatusCode,
				Message:    "watch handshake failed",
				Err:        err,
			}
		}
		return nil, httpclient.Upstream(serviceName, fmt.Errorf("watch crawl %s: %w", id, err))
	}

	events := make(chan Event, buffer)
	w := &watcher{conn: conn, events: events, id: id}
	go w.run(ctx)
	return events, nil
}

type watcher struct {
	conn   *websocket.Conn
	events chan Event
	id     string
}

func (w *watcher) run(ctx context.Context) {
	done := make(chan struct{})
	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { _ = w.conn.Close() }) }

	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	defer func() {
		close(done)
		closeConn()
		close(w.events)
	}()

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("Crawl watch socket closed", "crawl_id", w.id, "error", err)
			}
			return
		}

		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Ignoring malformed crawl message", "crawl_id", w.id, "error", err)
			continue
		}

		finished, ok := w.dispatch(ctx, msg)
		if !ok || finished {
			return
		}
	}
}

// dispatch turns one socket message into events. It reports whether the
// crawl finished and whether delivery may continue.
func (w *watcher) dispatch(ctx context.Context, msg wireMessage) (finished bool, ok bool) {
	switch msg.Type {
	case "catchup":
		var c catchup
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			slog.Warn("Ignoring malformed catchup", "crawl_id", w.id, "error", err)
			return false, true
		}
		for i := range c.Data {
			if !w.send(ctx, documentEvent(&c.Data[i])) {
				return false, false
			}
		}
		return false, true

	case "document":
		var doc Document
		if err := json.Unmarshal(msg.Data, &doc); err != nil {
			slog.Warn("Ignoring malformed document", "crawl_id", w.id, "error", err)
			return false, true
		}
		return false, w.send(ctx, documentEvent(&doc))

	case "error":
		errMsg := msg.Error
		if errMsg == "" {
			errMsg = errorFromData(msg.Data)
		}
		return false, w.send(ctx, Event{Type: EventError, Error: errMsg, Status: "failed"})

	case "done":
		status := msg.Status
		if status == "" {
			status = "completed"
		}
		return true, w.send(ctx, Event{Type: EventDone, Status: status})

	default:
		slog.Debug("Ignoring crawl message", "crawl_id", w.id, "type", msg.Type)
		return false, true
	}
}

func (w *watcher) send(ctx context.Context, ev Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func documentEvent(doc *Document) Event {
	text, err := doc.Text()
	if err != nil {
		slog.Warn("HTML conversion failed, keeping raw markdown", "url", doc.SourceURL(), "error", err)
	} else {
		doc.Markdown = text
	}
	return Event{Type: EventDocument, Document: doc}
}

func errorFromData(data json.RawMessage) string {
	var v struct {
		Error string `json:"error"`
	}
	if len(data) > 0 && json.Unmarshal(data, &v) == nil && v.Error != "" {
		return v.Error
	}
	return "crawl reported an error"
}
