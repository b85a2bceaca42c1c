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

package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct{ name string }

func (s stubTool) Name() string           { return s.name }
func (s stubTool) Description() string    { return "stub " + s.name }
func (s stubTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (s stubTool) Call(ctx context.Context, args map[string]any) (string, error) {
	return s.name, nil
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(stubTool{"web_search"}, stubTool{"vector_search"})
	require.NoError(t, err)

	got, err := r.Get("web_search")
	require.NoError(t, err)
	assert.Equal(t, "web_search", got.Name())

	assert.Equal(t, []string{"vector_search", "web_search"}, r.Names())

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "vector_search", defs[0].Name)
	assert.Equal(t, "stub vector_search", defs[0].Description)
	assert.Equal(t, "object", defs[0].Parameters["type"])
}

func TestRegistryUnknownTool(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	_, err = r.Get("calculator")
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "calculator", notFound.Name)
	assert.Contains(t, err.Error(), "calculator")
}

func TestRegistryDuplicate(t *testing.T) {
	_, err := NewRegistry(stubTool{"a"}, stubTool{"a"})
	assert.Error(t, err)

	_, err = NewRegistry(stubTool{""})
	assert.Error(t, err)
}

func TestCollectionContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CollectionFromContext(ctx))

	ctx = WithCollection(ctx, "examplesite")
	assert.Equal(t, "examplesite", CollectionFromContext(ctx))
}
