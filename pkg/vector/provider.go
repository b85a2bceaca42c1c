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

// Package vector stores embedded documents in named collections and runs
// cosine similarity search over them.
package vector

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCollectionNotFound matches any CollectionNotFoundError.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists is returned by CreateCollection for a taken name.
	ErrCollectionExists = errors.New("collection already exists")
)

// CollectionNotFoundError reports a search or write against a missing collection.
type CollectionNotFoundError struct {
	Collection string
}

func (e *CollectionNotFoundError) Error() string {
	return fmt.Sprintf("collection %q not found", e.Collection)
}

func (e *CollectionNotFoundError) Is(target error) bool {
	return target == ErrCollectionNotFound
}

// Point is a document with its embedding.
type Point struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]any
}

// Result is a scored match. Metadata is exactly what was stored.
type Result struct {
	ID       string
	Content  string
	Score    float32
	Metadata map[string]any
}

// Provider is a vector database backend.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// CreateCollection creates a cosine collection of the given dimension.
	// Returns ErrCollectionExists when the name is taken.
	CreateCollection(ctx context.Context, name string, dimension int) error

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// ListCollections returns all collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// Upsert inserts points, replacing any with the same ID.
	Upsert(ctx context.Context, collection string, points ...Point) error

	// Search returns up to topK results by descending score.
	// Returns *CollectionNotFoundError when the collection is missing.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// Close releases resources.
	Close() error
}
