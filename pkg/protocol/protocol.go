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

// Package protocol holds the JSON shapes exchanged over the HTTP, SSE and
// WebSocket boundary. The server and the Go client share them.
package protocol

import "github.com/kadirpekel/docsagent/pkg/vectorstore"

// Error codes carried in ErrorResponse.Code.
const (
	CodeCollectionNotFound = "collection_not_found"
	CodeInvalidRequest     = "invalid_request"
	CodeUpstream           = "upstream_error"
	CodeToolNotFound       = "tool_not_found"
	CodeInternal           = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// AddDocumentRequest is the body of POST /vector-store/documents.
type AddDocumentRequest struct {
	CollectionName string         `json:"collection_name" validate:"required"`
	Document       string         `json:"document" validate:"required"`
	Metadata       map[string]any `json:"metadata"`
	ID             string         `json:"id"`
}

// AddDocumentResponse acknowledges a stored document.
type AddDocumentResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// SearchRequest is the body of POST /vector-store/search.
type SearchRequest struct {
	CollectionName string `json:"collection_name" validate:"required"`
	Query          string `json:"query" validate:"required"`
	TopK           int    `json:"top_k,omitempty" validate:"gte=0,lte=20"`
}

// SearchResponse is the ranked result list, best match first.
type SearchResponse []vectorstore.Match

// CollectionInfo names one collection.
type CollectionInfo struct {
	Name string `json:"name"`
}

// CollectionsResponse is returned by POST /vector-store/collections.
type CollectionsResponse struct {
	Collections []CollectionInfo `json:"collections"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// CrawlRequest starts a crawl. Limit 0 selects the endpoint default.
type CrawlRequest struct {
	URL   string `json:"url" validate:"required,http_url"`
	Limit int    `json:"limit,omitempty" validate:"gte=0"`
}

// CrawlResponse acknowledges a background crawl.
type CrawlResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Crawl event names used on the SSE and WebSocket crawl streams.
const (
	CrawlEventSuccess  = "success"
	CrawlEventDocument = "document"
	CrawlEventError    = "error"
	CrawlEventDone     = "done"
)

// CrawlStreamFrame is one SSE frame of GET /firecrawl/stream-crawl.
type CrawlStreamFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// CrawlSocketFrame is one frame pushed on /firecrawl/ws/crawl.
type CrawlSocketFrame struct {
	Event   string `json:"event"`
	Message string `json:"message,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
	Status  string `json:"status,omitempty"`
}

// ChatRequest is the body of POST /agent/chat/{thread_id} and the client
// frame on /agent/ws/{thread_id}.
type ChatRequest struct {
	Message        string `json:"message" validate:"required"`
	CollectionName string `json:"collection_name" validate:"required"`
}

// ChatResponse is the non-streaming chat answer.
type ChatResponse struct {
	Response string `json:"response"`
	ThreadID string `json:"thread_id"`
}

// Chat frame types.
const (
	ChatInfo  = "info"
	ChatDelta = "delta"
	ChatFinal = "final"
	ChatError = "error"
)

// ChatFrame is one streamed chat event.
type ChatFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}
