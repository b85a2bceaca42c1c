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

package functiontool_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docsagent/pkg/tool/functiontool"
)

type searchArgs struct {
	Query string `json:"query" jsonschema:"required,description=Search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum results"`
}

type hit struct {
	URL string `json:"url"`
}

func TestNew_Schema(t *testing.T) {
	search, err := functiontool.New(
		functiontool.Config{Name: "search", Description: "Search documents"},
		func(ctx context.Context, args searchArgs) ([]hit, error) { return nil, nil },
	)
	require.NoError(t, err)

	assert.Equal(t, "search", search.Name())
	assert.Equal(t, "Search documents", search.Description())

	schema := search.Schema()
	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "query")
	assert.Contains(t, props, "limit")
	assert.Equal(t, []any{"query"}, schema["required"])
	assert.NotContains(t, schema, "$schema")
}

func TestNew_ConfigValidation(t *testing.T) {
	fn := func(ctx context.Context, args searchArgs) (string, error) { return "", nil }

	_, err := functiontool.New(functiontool.Config{Description: "x"}, fn)
	assert.Error(t, err)

	_, err = functiontool.New(functiontool.Config{Name: "x"}, fn)
	assert.Error(t, err)
}

func TestCall(t *testing.T) {
	search, err := functiontool.New(
		functiontool.Config{Name: "search", Description: "Search documents"},
		func(ctx context.Context, args searchArgs) ([]hit, error) {
			return []hit{{URL: fmt.Sprintf("https://example.com/%s/%d", args.Query, args.Limit)}}, nil
		},
	)
	require.NoError(t, err)

	out, err := search.Call(context.Background(), map[string]any{"query": "hockey", "limit": 2})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"url":"https://example.com/hockey/2"}]`, out)
}

func TestCall_StringResultPassesThrough(t *testing.T) {
	echo, err := functiontool.New(
		functiontool.Config{Name: "echo", Description: "Echo"},
		func(ctx context.Context, args searchArgs) (string, error) { return args.Query, nil },
	)
	require.NoError(t, err)

	out, err := echo.Call(context.Background(), map[string]any{"query": "plain text"})
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
}

func TestCall_BadArgumentsReportedAsText(t *testing.T) {
	echo, err := functiontool.New(
		functiontool.Config{Name: "echo", Description: "Echo"},
		func(ctx context.Context, args searchArgs) (string, error) { return args.Query, nil },
	)
	require.NoError(t, err)

	out, err := echo.Call(context.Background(), map[string]any{"query": 42})
	require.NoError(t, err)
	assert.Contains(t, out, "invalid arguments for echo")
}

func TestCall_FunctionErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	failing, err := functiontool.New(
		functiontool.Config{Name: "failing", Description: "Fails"},
		func(ctx context.Context, args searchArgs) (string, error) { return "", boom },
	)
	require.NoError(t, err)

	_, err = failing.Call(context.Background(), map[string]any{"query": "q"})
	assert.ErrorIs(t, err, boom)
}

func TestNewWithValidation(t *testing.T) {
	search, err := functiontool.NewWithValidation(
		functiontool.Config{Name: "search", Description: "Search documents"},
		func(ctx context.Context, args searchArgs) (string, error) { return "ran", nil },
		func(args searchArgs) error {
			if args.Query == "" {
				return errors.New("query is required")
			}
			return nil
		},
	)
	require.NoError(t, err)

	out, err := search.Call(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out, "query is required")

	out, err = search.Call(context.Background(), map[string]any{"query": "q"})
	require.NoError(t, err)
	assert.Equal(t, "ran", out)
}

func TestCall_JSONNumbersNarrowToInt(t *testing.T) {
	search, err := functiontool.New(
		functiontool.Config{Name: "search", Description: "Search documents"},
		func(ctx context.Context, args searchArgs) (string, error) {
			return fmt.Sprintf("%s/%d", args.Query, args.Limit), nil
		},
	)
	require.NoError(t, err)

	out, err := search.Call(context.Background(), map[string]any{"query": "q", "limit": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, "q/3", out)
}
