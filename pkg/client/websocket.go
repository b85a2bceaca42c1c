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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/kadirpekel/docsagent/pkg/httpclient"
	"github.com/kadirpekel/docsagent/pkg/protocol"
)

// ChatConn is an open /agent/ws/{thread_id} session.
type ChatConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// DialChat opens a chat WebSocket for threadID.
func (c *Client) DialChat(ctx context.Context, threadID string) (*ChatConn, error) {
	conn, err := c.dial(ctx, "/agent/ws/"+url.PathEscape(threadID))
	if err != nil {
		return nil, err
	}
	return &ChatConn{conn: conn}, nil
}

// Send writes a chat message.
func (cc *ChatConn) Send(req protocol.ChatRequest) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.conn.WriteJSON(req)
}

// Receive blocks until the next frame arrives.
func (cc *ChatConn) Receive() (protocol.ChatFrame, error) {
	var frame protocol.ChatFrame
	err := cc.conn.ReadJSON(&frame)
	return frame, err
}

// Close closes the connection with a normal closure frame.
func (cc *ChatConn) Close() error {
	cc.mu.Lock()
	_ = cc.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	cc.mu.Unlock()
	return cc.conn.Close()
}

// CrawlSocket runs a crawl over /firecrawl/ws/crawl and calls fn for every
// frame until the server closes the socket. Keep-alive frames are skipped.
func (c *Client) CrawlSocket(ctx context.Context, req protocol.CrawlRequest, fn func(protocol.CrawlSocketFrame) error) error {
	conn, err := c.dial(ctx, "/firecrawl/ws/crawl")
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("failed to send crawl request: %w", err)
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if msgType == websocket.BinaryMessage && len(data) == 0 {
			continue
		}
		frame, err := decodeCrawlFrame(data)
		if err != nil {
			return err
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
}

func (c *Client) dial(ctx context.Context, path string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + path
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		upErr := &httpclient.UpstreamError{Service: serviceName, Message: "websocket dial failed", Err: err}
		if resp != nil {
			upErr.StatusCode = resp.StatusCode
			_ = resp.Body.Close()
		}
		return nil, upErr
	}
	if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
		_ = conn.Close()
		return nil, &httpclient.UpstreamError{Service: serviceName, StatusCode: resp.StatusCode, Message: "unexpected handshake status"}
	}
	return conn, nil
}

func decodeCrawlFrame(data []byte) (protocol.CrawlSocketFrame, error) {
	var frame protocol.CrawlSocketFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return frame, fmt.Errorf("invalid crawl frame: %w", err)
	}
	return frame, nil
}
