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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Loader loads configuration from an optional YAML file and the
// environment, and reloads it when the file changes.
type Loader struct {
	path     string
	validate bool
	onChange func(*Config)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOnChange sets a callback invoked with each reloaded config.
func WithOnChange(fn func(*Config)) LoaderOption {
	return func(l *Loader) {
		l.onChange = fn
	}
}

// WithValidation makes Load validate the result.
func WithValidation() LoaderOption {
	return func(l *Loader) {
		l.validate = true
	}
}

// NewLoader creates a Loader. An empty path loads from the environment
// only.
func NewLoader(path string, opts ...LoaderOption) (*Loader, error) {
	l := &Loader{}
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path: %w", err)
		}
		l.path = abs
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the absolute config file path, or "".
func (l *Loader) Path() string {
	return l.path
}

// Load reads, parses, and processes the configuration.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	rawMap := map[string]any{}
	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, &ConfigurationError{Err: fmt.Errorf("failed to read config file %s: %w", l.path, err)}
		}
		if rawMap, err = parseBytes(data); err != nil {
			return nil, &ConfigurationError{Err: fmt.Errorf("failed to parse config: %w", err)}
		}
	}

	cfg := &Config{}
	if err := decodeConfig(expandEnvVars(rawMap), cfg); err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("failed to decode config: %w", err)}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()

	if l.validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Load is a convenience for NewLoader(path).Load without validation.
func Load(ctx context.Context, path string) (*Config, error) {
	l, err := NewLoader(path)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx)
}

// parseBytes parses raw bytes into a map.
// Supports YAML (primary) and JSON (fallback).
func parseBytes(data []byte) (map[string]any, error) {
	var result map[string]any

	if err := yaml.Unmarshal(data, &result); err == nil {
		if result == nil {
			result = map[string]any{}
		}
		return result, nil
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse as YAML or JSON: %w", err)
	}
	return result, nil
}

// decodeConfig decodes a map into a Config struct using mapstructure.
func decodeConfig(input map[string]any, output *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(input)
}
