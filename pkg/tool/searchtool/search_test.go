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

package searchtool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docsagent/pkg/protocol"
	"github.com/kadirpekel/docsagent/pkg/tool"
	"github.com/kadirpekel/docsagent/pkg/vector"
	"github.com/kadirpekel/docsagent/pkg/vectorstore"
)

type fakeSearcher struct {
	got     protocol.SearchRequest
	matches []vectorstore.Match
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, req protocol.SearchRequest) ([]vectorstore.Match, error) {
	f.got = req
	return f.matches, f.err
}

func TestSearchTool(t *testing.T) {
	searcher := &fakeSearcher{matches: []vectorstore.Match{{
		ID: "1", Document: "hockey rules", Score: 0.8,
		Metadata: map[string]any{"sourceURL": "https://example.com/hockey"},
	}}}
	st, err := New(Config{Searcher: searcher})
	require.NoError(t, err)
	assert.Equal(t, "search_vector_store", st.Name())

	out, err := st.Call(context.Background(), map[string]any{"collection_name": "examplesite", "query": "hockey"})
	require.NoError(t, err)
	assert.Equal(t, "examplesite", searcher.got.CollectionName)
	assert.Equal(t, "hockey", searcher.got.Query)

	var matches []vectorstore.Match
	require.NoError(t, json.Unmarshal([]byte(out), &matches))
	require.Len(t, matches, 1)
	assert.Equal(t, "https://example.com/hockey", matches[0].Metadata["sourceURL"])
}

func TestSearchTool_CollectionFromContext(t *testing.T) {
	searcher := &fakeSearcher{}
	st, err := New(Config{Searcher: searcher})
	require.NoError(t, err)

	ctx := tool.WithCollection(context.Background(), "fromctx")
	out, err := st.Call(ctx, map[string]any{"query": "q"})
	require.NoError(t, err)
	assert.Equal(t, "fromctx", searcher.got.CollectionName)
	assert.Contains(t, out, "no documents found")
}

func TestSearchTool_FailuresAreText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"transport", errors.New("connection refused"), "vector store search failed: connection refused"},
		{"missing collection", &vector.CollectionNotFoundError{Collection: "x"}, `collection "x" does not exist`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := New(Config{Searcher: &fakeSearcher{err: tt.err}})
			require.NoError(t, err)

			out, err := st.Call(context.Background(), map[string]any{"collection_name": "x", "query": "q"})
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestSearchTool_RequiresSearcher(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
