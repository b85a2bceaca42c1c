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

// Package testutils provides deterministic fakes shared by package tests.
package testutils

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"testing"
	"time"
	"unicode"
)

// TestContext returns a context with timeout that is cancelled when the test ends.
func TestContext(t testing.TB) context.Context {
	return TestContextWithTimeout(t, 5*time.Second)
}

// TestContextWithTimeout returns a context with custom timeout that is
// cancelled when the test ends.
func TestContextWithTimeout(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// HashEmbedder embeds text as a normalized bag of hashed words. Texts that
// share words score higher, which is enough for ranking tests.
type HashEmbedder struct {
	Dim int
	Err error
}

// NewHashEmbedder returns a 384-dimension HashEmbedder.
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{Dim: 384}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	vec := make([]float32, e.Dim)
	// Constant component keeps the vector non-zero for empty text.
	vec[0] = 0.01

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[1+int(h.Sum32())%(e.Dim-1)] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *HashEmbedder) Dimension() int { return e.Dim }
func (e *HashEmbedder) Model() string  { return "hash" }
func (e *HashEmbedder) Close() error   { return nil }
