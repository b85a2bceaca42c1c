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

// Package vectorstore is the single entry point for document storage and
// semantic search. It embeds text and delegates to a vector.Provider.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/kadirpekel/docsagent/pkg/embedder"
	"github.com/kadirpekel/docsagent/pkg/vector"
)

const (
	// Dimension of every collection.
	Dimension = 384

	// DefaultTopK is used when a search asks for zero results.
	DefaultTopK = 1

	// MaxTopK caps a single search.
	MaxTopK = 20
)

// Match is one ranked search result.
type Match struct {
	ID       string         `json:"id"`
	Document string         `json:"document"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// Gateway adds, searches and manages collections.
type Gateway struct {
	provider vector.Provider
	embedder embedder.Embedder

	group singleflight.Group
	mu    sync.RWMutex
	known map[string]struct{}
}

// New creates a gateway. The embedder must produce Dimension-sized vectors.
func New(provider vector.Provider, emb embedder.Embedder) (*Gateway, error) {
	if provider == nil || emb == nil {
		return nil, errors.New("vectorstore: provider and embedder are required")
	}
	if emb.Dimension() != Dimension {
		return nil, fmt.Errorf("vectorstore: embedder %s produces %d dimensions, need %d", emb.Model(), emb.Dimension(), Dimension)
	}
	return &Gateway{
		provider: provider,
		embedder: emb,
		known:    make(map[string]struct{}),
	}, nil
}

// AddDocument embeds text and stores it under id, replacing any previous
// document with that id. An empty id gets a random UUID. The collection is
// created on first use.
func (g *Gateway) AddDocument(ctx context.Context, collection, text string, metadata map[string]any, id string) (string, error) {
	if collection == "" {
		return "", errors.New("collection name is required")
	}
	if id == "" {
		id = uuid.NewString()
	}

	if err := g.ensureCollection(ctx, collection); err != nil {
		return "", err
	}

	vec, err := g.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("failed to embed document %s: %w", id, err)
	}

	slog.Debug("Adding document", "collection", collection, "id", id)
	err = g.provider.Upsert(ctx, collection, vector.Point{
		ID:       id,
		Vector:   vec,
		Content:  text,
		Metadata: vector.NormalizeMetadata(metadata),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Search returns up to topK matches by descending score. A missing collection
// yields *vector.CollectionNotFoundError.
func (g *Gateway) Search(ctx context.Context, collection, query string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	topK = min(topK, MaxTopK)

	exists, err := g.provider.CollectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &vector.CollectionNotFoundError{Collection: collection}
	}

	vec, err := g.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := g.provider.Search(ctx, collection, vec, topK)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			ID:       r.ID,
			Document: r.Content,
			Score:    r.Score,
			Metadata: r.Metadata,
		})
	}
	return matches, nil
}

// CreateCollection creates a 384-dimension cosine collection. An existing
// collection is logged as an error and is not reported to the caller.
func (g *Gateway) CreateCollection(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("collection name is required")
	}
	slog.Info("Creating collection", "collection", name)

	err := g.provider.CreateCollection(ctx, name, Dimension)
	if errors.Is(err, vector.ErrCollectionExists) {
		slog.Error("Failed to create collection", "collection", name, "error", err)
		g.remember(name)
		return nil
	}
	if err != nil {
		return err
	}
	g.remember(name)
	return nil
}

// ListCollections returns every collection name.
func (g *Gateway) ListCollections(ctx context.Context) ([]string, error) {
	return g.provider.ListCollections(ctx)
}

// Close releases the provider and the embedder.
func (g *Gateway) Close() error {
	return errors.Join(g.provider.Close(), g.embedder.Close())
}

// ensureCollection creates the collection once per name, collapsing
// concurrent first writes.
func (g *Gateway) ensureCollection(ctx context.Context, name string) error {
	g.mu.RLock()
	_, ok := g.known[name]
	g.mu.RUnlock()
	if ok {
		return nil
	}

	_, err, _ := g.group.Do(name, func() (any, error) {
		exists, err := g.provider.CollectionExists(ctx, name)
		if err != nil {
			return nil, err
		}
		if !exists {
			err = g.provider.CreateCollection(ctx, name, Dimension)
			if err != nil && !errors.Is(err, vector.ErrCollectionExists) {
				return nil, err
			}
			slog.Info("Created collection", "collection", name)
		}
		g.remember(name)
		return nil, nil
	})
	return err
}

func (g *Gateway) remember(name string) {
	g.mu.Lock()
	g.known[name] = struct{}{}
	g.mu.Unlock()
}
