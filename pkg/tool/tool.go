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

// Package tool defines the callable tool contract the agent binds to its
// chat model, plus a name-keyed registry.
package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Tool is a named capability the model may request.
//
// Call returns the text appended to the conversation as the tool message.
// Adapter failures the model should see (an unreachable backend, a bad
// argument) are returned as a descriptive string with a nil error; a non-nil
// error fails the whole run.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description is shown to the model to decide when to use the tool.
	Description() string

	// Schema returns the JSON schema of the tool's arguments.
	Schema() map[string]any

	// Call executes the tool with the model-supplied arguments.
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Definition is the model-facing description of a tool.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToDefinition converts a Tool into its Definition.
func ToDefinition(t Tool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Schema(),
	}
}

// NotFoundError is returned when the model requests a tool that is not
// registered.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %q", e.Name)
}

// Registry holds tools by name. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns a registry holding tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t. Names must be unique.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.Name() == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Get returns the tool called name or a *NotFoundError.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return t, nil
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the definitions of all tools, sorted by name.
func (r *Registry) Definitions() []Definition {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			defs = append(defs, ToDefinition(t))
		}
	}
	return defs
}
