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

package vectorstore

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docsagent/pkg/testutils"
	"github.com/kadirpekel/docsagent/pkg/vector"
)

func newGateway(t *testing.T) *Gateway {
	t.Helper()
	provider, err := vector.NewChromemProvider(vector.ChromemConfig{})
	require.NoError(t, err)
	g, err := New(provider, testutils.NewHashEmbedder())
	require.NoError(t, err)
	return g
}

func TestNew_RejectsWrongDimension(t *testing.T) {
	provider, err := vector.NewChromemProvider(vector.ChromemConfig{})
	require.NoError(t, err)

	_, err = New(provider, &testutils.HashEmbedder{Dim: 768})
	assert.Error(t, err)
}

func TestAddDocumentSearchRoundTrip(t *testing.T) {
	ctx := testutils.TestContext(t)
	g := newGateway(t)

	meta := map[string]any{
		"sourceURL": "https://example.com/hockey",
		"title":     "Hockey",
		"depth":     2,
		"tags":      []any{"sport", "ice"},
	}
	id, err := g.AddDocument(ctx, "examplecom", "ice hockey is played on a rink", meta, "X")
	require.NoError(t, err)
	assert.Equal(t, "X", id)
	_, err = g.AddDocument(ctx, "examplecom", "baking bread needs flour and yeast", nil, "Y")
	require.NoError(t, err)

	matches, err := g.Search(ctx, "examplecom", "hockey rink", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "X", matches[0].ID)
	assert.Equal(t, "ice hockey is played on a rink", matches[0].Document)
	assert.Equal(t, vector.NormalizeMetadata(meta), matches[0].Metadata)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestSearchDefaultsToOneResult(t *testing.T) {
	ctx := testutils.TestContext(t)
	g := newGateway(t)
	for _, id := range []string{"a", "b", "c"} {
		_, err := g.AddDocument(ctx, "docs", "text "+id, nil, id)
		require.NoError(t, err)
	}

	matches, err := g.Search(ctx, "docs", "text", 0)
	require.NoError(t, err)
	assert.Len(t, matches, DefaultTopK)
}

func TestAddDocumentIsIdempotentByID(t *testing.T) {
	ctx := testutils.TestContext(t)
	g := newGateway(t)

	_, err := g.AddDocument(ctx, "docs", "first version", map[string]any{"v": 1}, "same")
	require.NoError(t, err)
	_, err = g.AddDocument(ctx, "docs", "second version", map[string]any{"v": 2}, "same")
	require.NoError(t, err)

	matches, err := g.Search(ctx, "docs", "version", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "second version", matches[0].Document)
	assert.Equal(t, float64(2), matches[0].Metadata["v"])
}

func TestAddDocumentGeneratesID(t *testing.T) {
	g := newGateway(t)
	id, err := g.AddDocument(testutils.TestContext(t), "docs", "text", nil, "")
	require.NoError(t, err)
	assert.Len(t, id, 36)
}

func TestSearchMissingCollection(t *testing.T) {
	g := newGateway(t)
	_, err := g.Search(testutils.TestContext(t), "missing", "query", 1)

	var notFound *vector.CollectionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Collection)
}

func TestCreateCollectionTwiceLogsAndSucceeds(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := testutils.TestContext(t)
	g := newGateway(t)

	require.NoError(t, g.CreateCollection(ctx, "docs"))
	require.NoError(t, g.CreateCollection(ctx, "docs"))
	assert.Contains(t, buf.String(), "level=ERROR")

	names, err := g.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, names)
}

func TestConcurrentFirstWritesCreateOnce(t *testing.T) {
	ctx := testutils.TestContext(t)
	g := newGateway(t)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.AddDocument(ctx, "race", "concurrent text", nil, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	names, err := g.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"race"}, names)
}

func TestEmbedderFailure(t *testing.T) {
	provider, err := vector.NewChromemProvider(vector.ChromemConfig{})
	require.NoError(t, err)
	boom := errors.New("embedder down")
	g, err := New(provider, &testutils.HashEmbedder{Dim: Dimension, Err: boom})
	require.NoError(t, err)

	_, err = g.AddDocument(context.Background(), "docs", "text", nil, "1")
	assert.ErrorIs(t, err, boom)
}
