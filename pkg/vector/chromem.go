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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/philippgille/chromem-go"
)

// metadataKey holds the JSON-encoded metadata; chromem only stores strings.
const metadataKey = "_metadata"

// ChromemProvider implements Provider using chromem-go for embedded vector storage.
//
// It stores vectors in memory with optional file persistence and needs no
// external service. Used for local development and tests.
//
// Limitations:
//   - Single-process only (no distributed search)
//   - Memory-bound (all vectors in RAM)
type ChromemProvider struct {
	db *chromem.DB
	mu sync.Mutex

	// embeddingFunc is never called; vectors are computed by the embedder package.
	embeddingFunc chromem.EmbeddingFunc
}

// ChromemConfig configures the chromem provider.
type ChromemConfig struct {
	// PersistPath for file persistence (optional).
	// If empty, vectors are stored in memory only.
	// Directory will be created if it doesn't exist.
	PersistPath string `yaml:"persist_path,omitempty"`

	// Compress enables gzip compression for persistence.
	Compress bool `yaml:"compress,omitempty"`
}

// NewChromemProvider creates a new chromem-based vector provider.
func NewChromemProvider(cfg ChromemConfig) (*ChromemProvider, error) {
	db := chromem.NewDB()
	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector database at %s: %w", cfg.PersistPath, err)
		}
		slog.Info("Opened persistent vector database", "path", cfg.PersistPath)
	} else {
		slog.Debug("Created in-memory vector database (no persistence)")
	}

	return &ChromemProvider{
		db: db,
		embeddingFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("embedding function called but vectors should be pre-computed")
		},
	}, nil
}

// Name returns the provider name.
func (p *ChromemProvider) Name() string {
	return "chromem"
}

func (p *ChromemProvider) CreateCollection(ctx context.Context, name string, dimension int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db.GetCollection(name, p.embeddingFunc) != nil {
		return ErrCollectionExists
	}
	if _, err := p.db.CreateCollection(name, nil, p.embeddingFunc); err != nil {
		return fmt.Errorf("failed to create collection %q: %w", name, err)
	}
	return nil
}

func (p *ChromemProvider) CollectionExists(ctx context.Context, name string) (bool, error) {
	return p.db.GetCollection(name, p.embeddingFunc) != nil, nil
}

func (p *ChromemProvider) ListCollections(ctx context.Context) ([]string, error) {
	cols := p.db.ListCollections()
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (p *ChromemProvider) Upsert(ctx context.Context, collection string, points ...Point) error {
	col := p.db.GetCollection(collection, p.embeddingFunc)
	if col == nil {
		return &CollectionNotFoundError{Collection: collection}
	}

	docs := make([]chromem.Document, 0, len(points))
	for _, pt := range points {
		encoded, err := json.Marshal(NormalizeMetadata(pt.Metadata))
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %q: %w", pt.ID, err)
		}
		docs = append(docs, chromem.Document{
			ID:        pt.ID,
			Content:   pt.Content,
			Metadata:  map[string]string{metadataKey: string(encoded)},
			Embedding: pt.Vector,
		})
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert documents: %w", err)
	}
	return nil
}

func (p *ChromemProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	col := p.db.GetCollection(collection, p.embeddingFunc)
	if col == nil {
		return nil, &CollectionNotFoundError{Collection: collection}
	}

	// chromem rejects nResults larger than the collection.
	n := min(topK, col.Count())
	if n <= 0 {
		return []Result{}, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		metadata := map[string]any{}
		if raw, ok := r.Metadata[metadataKey]; ok {
			if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
				slog.Warn("Dropping undecodable metadata", "collection", collection, "id", r.ID, "error", err)
			}
		}
		out = append(out, Result{
			ID:       r.ID,
			Score:    r.Similarity,
			Content:  r.Content,
			Metadata: metadata,
		})
	}
	return out, nil
}

// Close releases resources. Persistent databases write on every change.
func (p *ChromemProvider) Close() error {
	return nil
}

// Ensure ChromemProvider implements Provider.
var _ Provider = (*ChromemProvider)(nil)
