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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docsagent/pkg/vector"
)

// clearEnv blanks every bound variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, b := range bindings {
		t.Setenv(b.name, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("QDRANT_URL", "http://localhost:6333")
	t.Setenv("FIRECRAWL_API_URL", "http://localhost:3002")
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingQdrantURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("FIRECRAWL_API_URL", "http://localhost:3002")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	l, err := NewLoader("", WithValidation())
	require.NoError(t, err)
	_, err = l.Load(context.Background())
	require.Error(t, err)

	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"QDRANT_URL"}, ce.Fields)
	assert.Contains(t, err.Error(), "QDRANT_URL")
	assert.True(t, IsConfigurationError(err))
}

func TestLoad_ReportsEveryMissingVariable(t *testing.T) {
	clearEnv(t)

	l, err := NewLoader("", WithValidation())
	require.NoError(t, err)
	_, err = l.Load(context.Background())

	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.ElementsMatch(t, []string{"FIRECRAWL_API_URL", "OPENAI_API_KEY", "QDRANT_URL"}, ce.Fields)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	l, err := NewLoader("", WithValidation())
	require.NoError(t, err)
	cfg, err := l.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "simple", cfg.Logger.Format)
	assert.Equal(t, "qdrant", cfg.Vector.Backend)
	assert.Equal(t, DefaultQdrantGRPCPort, cfg.Vector.Qdrant.GRPCPort)
	assert.Equal(t, DefaultModel, cfg.Model.Name)
	assert.Equal(t, "openai", cfg.Embedder.Provider)
	assert.Equal(t, "sk-test", cfg.Embedder.APIKey)
	assert.Equal(t, DefaultBackendURL, cfg.Agent.BackendURL)
	assert.Equal(t, 3, cfg.Agent.MaxRewrites)
	assert.Equal(t, 60*time.Second, cfg.Agent.CallTimeout)
	assert.Equal(t, 30*time.Second, cfg.Crawl.Heartbeat)
	assert.False(t, cfg.Observability.Metrics.Enabled)
}

func TestLoad_FileWithExpansionAndOverrides(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("QDRANT_URL", "https://qdrant.example.com:6333")
	t.Setenv("DOCSAGENT_TEST_KEY", "tvly-123")

	path := writeFile(t, t.TempDir(), "docsagent.yaml", `
server:
  port: ${DOCSAGENT_TEST_PORT:-9000}
  shutdown_timeout: 5s
vector:
  qdrant:
    url: http://ignored:6333
    grpc_port: 7334
search:
  api_key: ${DOCSAGENT_TEST_KEY}
agent:
  max_rewrites: 2
  call_timeout: 15s
  backend_url: http://agent.internal:8000
crawl:
  heartbeat: 45s
  workers: 8
`)

	l, err := NewLoader(path, WithValidation())
	require.NoError(t, err)
	cfg, err := l.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "https://qdrant.example.com:6333", cfg.Vector.Qdrant.URL, "env wins over the file")
	assert.Equal(t, 7334, cfg.Vector.Qdrant.GRPCPort)
	assert.Equal(t, "tvly-123", cfg.Search.APIKey)
	assert.Equal(t, 2, cfg.Agent.MaxRewrites)
	assert.Equal(t, 15*time.Second, cfg.Agent.CallTimeout)
	assert.Equal(t, "http://agent.internal:8000", cfg.Agent.BackendURL)
	assert.Equal(t, 45*time.Second, cfg.Crawl.Heartbeat)
	assert.Equal(t, 8, cfg.Crawl.Workers)

	pc, err := cfg.Vector.ProviderConfig()
	require.NoError(t, err)
	assert.Equal(t, vector.ProviderQdrant, pc.Type)
	assert.Equal(t, "qdrant.example.com", pc.Qdrant.Host)
	assert.Equal(t, 7334, pc.Qdrant.Port)
	assert.True(t, pc.Qdrant.UseTLS)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, IsConfigurationError(err))
}

func TestLoad_ChromemNeedsNoQdrant(t *testing.T) {
	clearEnv(t)
	t.Setenv("VECTOR_BACKEND", "chromem")
	t.Setenv("FIRECRAWL_API_URL", "http://localhost:3002")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	l, err := NewLoader("", WithValidation())
	require.NoError(t, err)
	cfg, err := l.Load(context.Background())
	require.NoError(t, err)

	pc, err := cfg.Vector.ProviderConfig()
	require.NoError(t, err)
	assert.Equal(t, vector.ProviderChromem, pc.Type)
	assert.NotNil(t, pc.Chromem)
}

func TestValidate_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		field string
	}{
		{name: "unknown backend", key: "VECTOR_BACKEND", value: "pinecone", field: "VECTOR_BACKEND"},
		{name: "unknown embedder", key: "EMBEDDER_PROVIDER", value: "cohere", field: "EMBEDDER_PROVIDER"},
		{name: "bad firecrawl url", key: "FIRECRAWL_API_URL", value: "not a url", field: "FIRECRAWL_API_URL"},
		{name: "bad log level", key: "LOG_LEVEL", value: "loud", field: "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			l, err := NewLoader("", WithValidation())
			require.NoError(t, err)
			_, err = l.Load(context.Background())

			var ce *ConfigurationError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Contains(t, ce.Fields, tt.field)
		})
	}
}

func TestApplyEnv_InvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")

	err := ApplyEnv(&Config{})
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"PORT"}, ce.Fields)
}

func TestLoadWithoutValidation(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultBackendURL, cfg.Agent.BackendURL)
	assert.Error(t, cfg.Validate())
}

func TestExpandEnvString(t *testing.T) {
	t.Setenv("DOCSAGENT_TEST_SET", "value")
	t.Setenv("DOCSAGENT_TEST_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${DOCSAGENT_TEST_SET}", "value"},
		{"$DOCSAGENT_TEST_SET/path", "value/path"},
		{"${DOCSAGENT_TEST_EMPTY:-fallback}", "fallback"},
		{"${DOCSAGENT_TEST_SET:-fallback}", "value"},
		{"${DOCSAGENT_TEST_UNSET_XYZ}", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandEnvString(tt.in), tt.in)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	const fresh, preset = "DOCSAGENT_TEST_FRESH", "DOCSAGENT_TEST_PRESET"
	require.NoError(t, os.Unsetenv(fresh))
	t.Cleanup(func() { os.Unsetenv(fresh) })
	t.Setenv(preset, "from-env")

	dir := t.TempDir()
	path := writeFile(t, dir, ".env", fresh+"=from-file\n"+preset+"=from-file\n")

	require.NoError(t, LoadEnvFiles(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv(fresh))
	assert.Equal(t, "from-env", os.Getenv(preset))
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "docsagent.yaml", "logger:\n  level: info\n")

	reloaded := make(chan *Config, 4)
	l, err := NewLoader(path, WithOnChange(func(c *Config) { reloaded <- c }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("logger:\n  level: debug\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.Logger.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
