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

package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChromem(t *testing.T) *ChromemProvider {
	t.Helper()
	p, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	return p
}

func TestChromem_CreateAndList(t *testing.T) {
	ctx := context.Background()
	p := newChromem(t)

	require.NoError(t, p.CreateCollection(ctx, "b", 3))
	require.NoError(t, p.CreateCollection(ctx, "a", 3))
	assert.ErrorIs(t, p.CreateCollection(ctx, "a", 3), ErrCollectionExists)

	names, err := p.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	ok, err := p.CollectionExists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChromem_SearchMissingCollection(t *testing.T) {
	_, err := newChromem(t).Search(context.Background(), "nope", []float32{1, 0, 0}, 1)

	assert.ErrorIs(t, err, ErrCollectionNotFound)
	var notFound *CollectionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.Collection)
}

func TestChromem_UpsertSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newChromem(t)
	require.NoError(t, p.CreateCollection(ctx, "docs", 3))

	meta := map[string]any{"source": "a.md", "page": 3, "tags": []string{"x"}, "nested": map[string]any{"ok": true}}
	require.NoError(t, p.Upsert(ctx, "docs",
		Point{ID: "1", Vector: []float32{1, 0, 0}, Content: "alpha", Metadata: meta},
		Point{ID: "2", Vector: []float32{0, 1, 0}, Content: "beta"},
	))

	results, err := p.Search(ctx, "docs", []float32{1, 0.1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2, "topK is clamped to the collection size")
	assert.Equal(t, "1", results[0].ID)
	assert.Equal(t, "alpha", results[0].Content)
	assert.Equal(t, NormalizeMetadata(meta), results[0].Metadata)
	assert.Equal(t, float64(3), results[0].Metadata["page"])
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	assert.Empty(t, results[1].Metadata)
}

func TestChromem_UpsertSameIDOverwrites(t *testing.T) {
	ctx := context.Background()
	p := newChromem(t)
	require.NoError(t, p.CreateCollection(ctx, "docs", 3))

	for i := 0; i < 2; i++ {
		require.NoError(t, p.Upsert(ctx, "docs", Point{ID: "same", Vector: []float32{1, 0, 0}, Content: "text"}))
	}

	results, err := p.Search(ctx, "docs", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChromem_EmptyCollection(t *testing.T) {
	ctx := context.Background()
	p := newChromem(t)
	require.NoError(t, p.CreateCollection(ctx, "empty", 3))

	results, err := p.Search(ctx, "empty", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromem_UpsertMissingCollection(t *testing.T) {
	err := newChromem(t).Upsert(context.Background(), "nope", Point{ID: "1", Vector: []float32{1}})
	assert.True(t, errors.Is(err, ErrCollectionNotFound))
}

func TestParseQdrantURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		port int
		want QdrantConfig
	}{
		{"https cloud", "https://xyz.cloud.qdrant.io:6333", 0, QdrantConfig{Host: "xyz.cloud.qdrant.io", Port: 6334, APIKey: "k", UseTLS: true}},
		{"plain", "http://localhost:6333", 0, QdrantConfig{Host: "localhost", Port: 6334, APIKey: "k"}},
		{"no scheme custom port", "qdrant", 7000, QdrantConfig{Host: "qdrant", Port: 7000, APIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQdrantURL(tt.url, "k", tt.port)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseQdrantURL("http://", "", 0)
	assert.Error(t, err)
}

func TestPointUUID(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, id, pointUUID(id))

	derived := pointUUID("doc-1")
	_, err := uuid.Parse(derived)
	require.NoError(t, err)
	assert.Equal(t, derived, pointUUID("doc-1"))
	assert.NotEqual(t, derived, pointUUID("doc-2"))
}

func TestConvertQdrantResults(t *testing.T) {
	meta, err := qdrant.NewValue(map[string]any{"source": "a.md", "n": 2.0, "list": []any{"x", true}})
	require.NoError(t, err)

	points := []*qdrant.ScoredPoint{{
		Id:    qdrant.NewID(pointUUID("doc-1")),
		Score: 0.9,
		Payload: map[string]*qdrant.Value{
			payloadDocument:   {Kind: &qdrant.Value_StringValue{StringValue: "hello"}},
			payloadDocumentID: {Kind: &qdrant.Value_StringValue{StringValue: "doc-1"}},
			payloadMetadata:   meta,
		},
	}}

	results := convertQdrantResults(points)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].ID)
	assert.Equal(t, "hello", results[0].Content)
	assert.Equal(t, float32(0.9), results[0].Score)
	assert.Equal(t, map[string]any{"source": "a.md", "n": 2.0, "list": []any{"x", true}}, results[0].Metadata)
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider(&ProviderConfig{})
	assert.ErrorContains(t, err, "qdrant provider needs a host")

	p, err := NewProvider(&ProviderConfig{Type: ProviderChromem})
	require.NoError(t, err)
	assert.Equal(t, "chromem", p.Name())

	_, err = NewProvider(&ProviderConfig{Type: "milvus"})
	assert.ErrorContains(t, err, "unknown vector provider")
}
