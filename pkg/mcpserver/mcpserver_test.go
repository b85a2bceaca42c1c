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

package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docsagent/pkg/protocol"
	"github.com/kadirpekel/docsagent/pkg/testutils"
	"github.com/kadirpekel/docsagent/pkg/vector"
	"github.com/kadirpekel/docsagent/pkg/vectorstore"
)

type gatewayStore struct {
	g *vectorstore.Gateway
}

func (s gatewayStore) Search(ctx context.Context, req protocol.SearchRequest) ([]vectorstore.Match, error) {
	return s.g.Search(ctx, req.CollectionName, req.Query, req.TopK)
}

func (s gatewayStore) ListCollections(ctx context.Context) ([]string, error) {
	return s.g.ListCollections(ctx)
}

func newTestClient(t *testing.T) (*client.Client, *vectorstore.Gateway) {
	t.Helper()
	ctx := testutils.TestContext(t)

	provider, err := vector.NewChromemProvider(vector.ChromemConfig{})
	require.NoError(t, err)
	gw, err := vectorstore.New(provider, testutils.NewHashEmbedder())
	require.NoError(t, err)

	c, err := client.NewInProcessClient(New(gatewayStore{g: gw}, "test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Start(ctx))

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "1.0.0"}
	_, err = c.Initialize(ctx, initReq)
	require.NoError(t, err)
	return c, gw
}

func callTool(t *testing.T, c *client.Client, name string, args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(testutils.TestContext(t), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "unexpected content %T", res.Content[0])
	return text.Text, res.IsError
}

func TestListTools(t *testing.T) {
	c, _ := newTestClient(t)

	res, err := c.ListTools(testutils.TestContext(t), mcp.ListToolsRequest{})
	require.NoError(t, err)
	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{SearchTool, ListCollectionsTool}, names)
}

func TestSearchDocuments(t *testing.T) {
	c, gw := newTestClient(t)
	ctx := testutils.TestContext(t)
	_, err := gw.AddDocument(ctx, "examplecom", "The hockey league season starts in October",
		map[string]any{"sourceURL": "https://example.com/hockey"}, "doc-1")
	require.NoError(t, err)

	text, isErr := callTool(t, c, SearchTool, map[string]any{
		"collection_name": "examplecom",
		"query":           "hockey",
		"top_k":           3,
	})
	require.False(t, isErr, text)

	var matches []vectorstore.Match
	require.NoError(t, json.Unmarshal([]byte(text), &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, "doc-1", matches[0].ID)
	assert.Equal(t, "https://example.com/hockey", matches[0].Metadata["sourceURL"])
}

func TestSearchDocuments_Errors(t *testing.T) {
	c, _ := newTestClient(t)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing query", map[string]any{"collection_name": "docs"}, "query"},
		{"missing collection", map[string]any{"collection_name": "docs", "query": "q"}, `collection "docs" does not exist`},
		{"top_k too large", map[string]any{"collection_name": "docs", "query": "q", "top_k": 50}, "top_k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := callTool(t, c, SearchTool, tt.args)
			assert.True(t, isErr)
			assert.Contains(t, text, tt.want)
		})
	}
}

func TestListCollections(t *testing.T) {
	c, gw := newTestClient(t)
	ctx := testutils.TestContext(t)

	text, isErr := callTool(t, c, ListCollectionsTool, nil)
	require.False(t, isErr)
	assert.JSONEq(t, `[]`, text)

	require.NoError(t, gw.CreateCollection(ctx, "docs"))
	text, _ = callTool(t, c, ListCollectionsTool, nil)
	assert.JSONEq(t, `["docs"]`, text)
}
