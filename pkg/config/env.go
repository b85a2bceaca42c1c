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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultEnvFiles are loaded by LoadEnvFiles when no paths are given.
var DefaultEnvFiles = []string{".env.local", ".env"}

// LoadEnvFiles loads .env files into the process environment. Variables
// already set are never overridden, and missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = DefaultEnvFiles
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

type binding struct {
	name  string
	apply func(c *Config, value string) error
}

func str(target func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*target(c) = v
		return nil
	}
}

func port(target func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("invalid port %q", v)
		}
		*target(c) = n
		return nil
	}
}

// bindings maps environment variables onto fields. They win over the
// config file.
var bindings = []binding{
	{"QDRANT_URL", str(func(c *Config) *string { return &c.Vector.Qdrant.URL })},
	{"QDRANT_API_KEY", str(func(c *Config) *string { return &c.Vector.Qdrant.APIKey })},
	{"QDRANT_GRPC_PORT", port(func(c *Config) *int { return &c.Vector.Qdrant.GRPCPort })},
	{"VECTOR_BACKEND", str(func(c *Config) *string { return &c.Vector.Backend })},
	{"FIRECRAWL_API_URL", str(func(c *Config) *string { return &c.Firecrawl.APIURL })},
	{"FIRECRAWL_API_KEY", str(func(c *Config) *string { return &c.Firecrawl.APIKey })},
	{"FASTAPI_BACKEND", str(func(c *Config) *string { return &c.Agent.BackendURL })},
	{"OPENAI_API_KEY", str(func(c *Config) *string { return &c.Model.APIKey })},
	{"OPENAI_BASE_URL", str(func(c *Config) *string { return &c.Model.BaseURL })},
	{"OPENAI_MODEL", str(func(c *Config) *string { return &c.Model.Name })},
	{"EMBEDDER_PROVIDER", str(func(c *Config) *string { return &c.Embedder.Provider })},
	{"TAVILY_API_KEY", str(func(c *Config) *string { return &c.Search.APIKey })},
	{"HOST", str(func(c *Config) *string { return &c.Server.Host })},
	{"PORT", port(func(c *Config) *int { return &c.Server.Port })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Logger.Level })},
	{"LOG_FILE", str(func(c *Config) *string { return &c.Logger.File })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Logger.Format })},
}

// ApplyEnv overrides fields from the environment. Empty variables are
// ignored.
func ApplyEnv(c *Config) error {
	var fields, details []string
	for _, b := range bindings {
		v, ok := os.LookupEnv(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(c, v); err != nil {
			fields = append(fields, b.name)
			details = append(details, fmt.Sprintf("%s: %v", b.name, err))
		}
	}
	if len(fields) > 0 {
		return &ConfigurationError{Fields: fields, Err: errors.New(strings.Join(details, "; "))}
	}
	return nil
}

// envVarPattern matches ${VAR}, ${VAR:-default}, and $VAR
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvString(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if strings.HasPrefix(match, "${") {
			inner := match[2 : len(match)-1]
			if name, def, ok := strings.Cut(inner, ":-"); ok {
				if val := os.Getenv(name); val != "" {
					return val
				}
				return def
			}
			return os.Getenv(inner)
		}
		return os.Getenv(match[1:])
	})
}

// expandEnvVars recursively expands environment references in decoded
// YAML.
func expandEnvVars(input map[string]any) map[string]any {
	result := make(map[string]any, len(input))
	for k, v := range input {
		result[k] = expandValue(v)
	}
	return result
}

func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]any:
		return expandEnvVars(val)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = expandValue(item)
		}
		return result
	default:
		return v
	}
}
