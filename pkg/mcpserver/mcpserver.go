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

// Package mcpserver exposes the vector store to MCP clients.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kadirpekel/docsagent/pkg/protocol"
	"github.com/kadirpekel/docsagent/pkg/vector"
	"github.com/kadirpekel/docsagent/pkg/vectorstore"
)

// Tool names.
const (
	SearchTool          = "search_documents"
	ListCollectionsTool = "list_collections"
)

// Store is what the tools query. *client.Client implements it.
type Store interface {
	Search(ctx context.Context, req protocol.SearchRequest) ([]vectorstore.Match, error)
	ListCollections(ctx context.Context) ([]string, error)
}

// New creates an MCP server with the document tools registered.
func New(store Store, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"docsagent",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	h := &handlers{store: store}

	s.AddTool(mcp.NewTool(SearchTool,
		mcp.WithDescription("Search crawled documentation in a collection and return the closest passages with their source URLs."),
		mcp.WithString("collection_name",
			mcp.Required(),
			mcp.Description("Collection to search, as returned by list_collections"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search text"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Number of results (1-20, default 1)"),
			mcp.Min(0),
			mcp.Max(vectorstore.MaxTopK),
		),
	), h.search)

	s.AddTool(mcp.NewTool(ListCollectionsTool,
		mcp.WithDescription("List the document collections available for search."),
	), h.listCollections)

	return s
}

// ServeStdio serves s over stdin and stdout until ctx is cancelled or
// the input closes.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

type handlers struct {
	store Store
}

func (h *handlers) search(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	collection, err := request.RequireString("collection_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topK := request.GetInt("top_k", 0)
	if topK < 0 || topK > vectorstore.MaxTopK {
		return mcp.NewToolResultError(fmt.Sprintf("top_k must be between 0 and %d", vectorstore.MaxTopK)), nil
	}

	matches, err := h.store.Search(ctx, protocol.SearchRequest{CollectionName: collection, Query: query, TopK: topK})
	if errors.Is(err, vector.ErrCollectionNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("collection %q does not exist", collection)), nil
	}
	if err != nil {
		slog.Warn("MCP search failed", "collection", collection, "error", err)
		return mcp.NewToolResultErrorFromErr("search failed", err), nil
	}
	return jsonResult(matches)
}

func (h *handlers) listCollections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := h.store.ListCollections(ctx)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to list collections", err), nil
	}
	if names == nil {
		names = []string{}
	}
	return jsonResult(names)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
