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

// Package functiontool builds tools from typed Go functions.
//
// The argument struct doubles as the tool's JSON schema: field names come
// from json tags and descriptions and required flags from jsonschema tags.
//
//	type SearchArgs struct {
//	    Query string `json:"query" jsonschema:"required,description=Search query"`
//	}
//
//	search, err := functiontool.New(
//	    functiontool.Config{Name: "search", Description: "Search documents"},
//	    func(ctx context.Context, args SearchArgs) ([]Hit, error) { ... },
//	)
//
// A string result is passed to the model unchanged; any other result is
// JSON-encoded.
package functiontool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kadirpekel/docsagent/pkg/tool"
)

// Config defines the configuration for a function tool.
type Config struct {
	// Name is the unique identifier for this tool (required).
	Name string

	// Description explains what the tool does (required).
	Description string
}

// New creates a tool from a typed function.
func New[Args, Result any](cfg Config, fn func(context.Context, Args) (Result, error)) (tool.Tool, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	schema, err := schemaFor[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}

	return &functionTool[Args, Result]{
		config: cfg,
		fn:     fn,
		schema: schema,
	}, nil
}

// NewWithValidation creates a tool whose arguments pass validate before fn
// runs. A validation failure is reported to the model, not raised.
func NewWithValidation[Args, Result any](
	cfg Config,
	fn func(context.Context, Args) (Result, error),
	validate func(Args) error,
) (tool.Tool, error) {
	base, err := New(cfg, fn)
	if err != nil {
		return nil, err
	}
	ft := base.(*functionTool[Args, Result])
	ft.validate = validate
	return ft, nil
}

type functionTool[Args, Result any] struct {
	config   Config
	fn       func(context.Context, Args) (Result, error)
	validate func(Args) error
	schema   map[string]any
}

func (t *functionTool[Args, Result]) Name() string {
	return t.config.Name
}

func (t *functionTool[Args, Result]) Description() string {
	return t.config.Description
}

func (t *functionTool[Args, Result]) Schema() map[string]any {
	return t.schema
}

// Call decodes args into Args, runs the function and encodes its result.
func (t *functionTool[Args, Result]) Call(ctx context.Context, args map[string]any) (string, error) {
	var typedArgs Args
	if err := decodeArgs(args, &typedArgs); err != nil {
		return fmt.Sprintf("invalid arguments for %s: %v", t.config.Name, err), nil
	}

	if t.validate != nil {
		if err := t.validate(typedArgs); err != nil {
			return fmt.Sprintf("invalid arguments for %s: %v", t.config.Name, err), nil
		}
	}

	result, err := t.fn(ctx, typedArgs)
	if err != nil {
		return "", err
	}
	return encodeResult(result)
}

func encodeResult(result any) (string, error) {
	if s, ok := result.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode tool result: %w", err)
	}
	return string(data), nil
}

func validateConfig(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return fmt.Errorf("tool description is required")
	}
	return nil
}

var _ tool.Tool = (*functionTool[struct{}, string])(nil)
