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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kadirpekel/docsagent/pkg/httpclient"
	"github.com/kadirpekel/docsagent/pkg/protocol"
)

// StreamCrawl runs a crawl over SSE and yields its frames until the server
// closes the stream. Frames with an error event are yielded, not returned.
func (c *Client) StreamCrawl(ctx context.Context, req protocol.CrawlRequest) iter.Seq2[protocol.CrawlStreamFrame, error] {
	q := url.Values{"url": {req.URL}}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	return streamFrames[protocol.CrawlStreamFrame](ctx, c, http.MethodGet, c.baseURL+"/firecrawl/stream-crawl?"+q.Encode(), nil)
}

// StreamChat sends a message and yields the agent's frames.
func (c *Client) StreamChat(ctx context.Context, threadID string, req protocol.ChatRequest) iter.Seq2[protocol.ChatFrame, error] {
	body, err := json.Marshal(req)
	if err != nil {
		return func(yield func(protocol.ChatFrame, error) bool) {
			yield(protocol.ChatFrame{}, fmt.Errorf("failed to marshal request: %w", err))
		}
	}
	return streamFrames[protocol.ChatFrame](ctx, c, http.MethodPost, c.baseURL+"/agent/chat/"+url.PathEscape(threadID), body)
}

func streamFrames[T any](ctx context.Context, c *Client, method, endpoint string, body []byte) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			yield(zero, fmt.Errorf("failed to create request: %w", err))
			return
		}
		req.Header.Set("Accept", "text/event-stream")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.stream.Do(req)
		if err != nil {
			yield(zero, &httpclient.UpstreamError{Service: serviceName, Message: "request failed", Err: err})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var errResp protocol.ErrorResponse
			_ = json.NewDecoder(resp.Body).Decode(&errResp)
			yield(zero, &httpclient.UpstreamError{Service: serviceName, StatusCode: resp.StatusCode, Message: errResp.Error})
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if !bytes.HasPrefix(line, []byte("data:")) {
				continue
			}
			var frame T
			if err := json.Unmarshal(bytes.TrimSpace(line[len("data:"):]), &frame); err != nil {
				if !yield(zero, fmt.Errorf("invalid frame: %w", err)) {
					return
				}
				continue
			}
			if !yield(frame, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
			yield(zero, &httpclient.UpstreamError{Service: serviceName, Message: "stream read error", Err: err})
		}
	}
}
