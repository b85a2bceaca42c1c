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

// Package config loads docsagent configuration.
//
// Sources, lowest priority first:
//
//	defaults < YAML file (${VAR} expanded) < .env files < environment
//
// Validation failures are reported as *ConfigurationError naming the
// environment variables that need fixing.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kadirpekel/docsagent/pkg/agent"
	"github.com/kadirpekel/docsagent/pkg/crawl"
	"github.com/kadirpekel/docsagent/pkg/observability"
	"github.com/kadirpekel/docsagent/pkg/vector"
)

// Defaults.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8000
	DefaultShutdownTimeout = 30 * time.Second
	DefaultQdrantGRPCPort  = 6334
	DefaultModel           = "gpt-4o-mini"
	DefaultBackendURL      = "http://localhost:8000"
)

// Config is the root configuration.
type Config struct {
	Server        ServerConfig         `yaml:"server"`
	Logger        LoggerConfig         `yaml:"logger"`
	Vector        VectorConfig         `yaml:"vector"`
	Firecrawl     FirecrawlConfig      `yaml:"firecrawl"`
	Model         ModelConfig          `yaml:"model"`
	Embedder      EmbedderConfig       `yaml:"embedder"`
	Search        SearchConfig         `yaml:"search"`
	Agent         AgentConfig          `yaml:"agent"`
	Crawl         crawl.Config         `yaml:"crawl"`
	Observability observability.Config `yaml:"observability"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT" validate:"gte=1,lte=65535"`

	// ShutdownTimeout bounds graceful shutdown, including draining
	// background crawls.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// CORSOrigins defaults to every origin.
	CORSOrigins []string `yaml:"cors_origins"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoggerConfig configures logging.
type LoggerConfig struct {
	// Level specifies the log level (debug, info, warn, error).
	// Default: info
	Level string `yaml:"level" env:"LOG_LEVEL" validate:"oneof=debug info warn warning error"`

	// File specifies the log file path. Empty logs to stderr.
	File string `yaml:"file" env:"LOG_FILE"`

	// Format is one of simple, verbose or json.
	// Default: simple
	Format string `yaml:"format" env:"LOG_FORMAT" validate:"oneof=simple verbose json"`
}

// VectorConfig selects and configures the vector database.
type VectorConfig struct {
	// Backend is qdrant (default) or chromem.
	Backend string              `yaml:"backend" env:"VECTOR_BACKEND" validate:"oneof=qdrant chromem"`
	Qdrant  QdrantConfig        `yaml:"qdrant"`
	Chromem vector.ChromemConfig `yaml:"chromem"`
}

// QdrantConfig locates the Qdrant server.
type QdrantConfig struct {
	// URL is required with the qdrant backend.
	URL      string `yaml:"url" env:"QDRANT_URL" validate:"omitempty,url"`
	APIKey   string `yaml:"api_key" env:"QDRANT_API_KEY"`
	GRPCPort int    `yaml:"grpc_port" env:"QDRANT_GRPC_PORT" validate:"gte=1,lte=65535"`
}

// ProviderConfig converts the section to a vector.ProviderConfig.
func (c VectorConfig) ProviderConfig() (*vector.ProviderConfig, error) {
	if c.Backend == string(vector.ProviderChromem) {
		chromem := c.Chromem
		return &vector.ProviderConfig{Type: vector.ProviderChromem, Chromem: &chromem}, nil
	}
	q, err := vector.ParseQdrantURL(c.Qdrant.URL, c.Qdrant.APIKey, c.Qdrant.GRPCPort)
	if err != nil {
		return nil, &ConfigurationError{Fields: []string{"QDRANT_URL"}, Err: err}
	}
	return &vector.ProviderConfig{Type: vector.ProviderQdrant, Qdrant: &q}, nil
}

// FirecrawlConfig locates the Firecrawl API.
type FirecrawlConfig struct {
	APIURL  string        `yaml:"api_url" env:"FIRECRAWL_API_URL" validate:"required,url"`
	APIKey  string        `yaml:"api_key" env:"FIRECRAWL_API_KEY"`
	Timeout time.Duration `yaml:"timeout"`
}

// ModelConfig configures the chat model.
type ModelConfig struct {
	APIKey  string        `yaml:"api_key" env:"OPENAI_API_KEY" validate:"required"`
	BaseURL string        `yaml:"base_url" env:"OPENAI_BASE_URL" validate:"omitempty,url"`
	Name    string        `yaml:"name" env:"OPENAI_MODEL"`
	Timeout time.Duration `yaml:"timeout"`
}

// EmbedderConfig configures the embedding provider. The OpenAI key and
// base URL default to the model's.
type EmbedderConfig struct {
	Provider string `yaml:"provider" env:"EMBEDDER_PROVIDER" validate:"oneof=openai ollama"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`

	// MaxRetries enables retries of failed embedding requests. Zero sends
	// each request once.
	MaxRetries int `yaml:"max_retries" validate:"gte=0,lte=10"`
}

// SearchConfig configures Tavily web search.
type SearchConfig struct {
	APIKey  string `yaml:"api_key" env:"TAVILY_API_KEY"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
}

// AgentConfig configures the agent graph and how it reaches the server.
type AgentConfig struct {
	agent.Config `yaml:",squash"`

	// BackendURL is the base URL of the HTTP boundary used by the vector
	// search tool and the CLI clients.
	BackendURL string `yaml:"backend_url" env:"FASTAPI_BACKEND" validate:"required,url"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "simple"
	}

	if c.Vector.Backend == "" {
		c.Vector.Backend = string(vector.ProviderQdrant)
	}
	if c.Vector.Qdrant.GRPCPort == 0 {
		c.Vector.Qdrant.GRPCPort = DefaultQdrantGRPCPort
	}

	if c.Model.Name == "" {
		c.Model.Name = DefaultModel
	}

	if c.Embedder.Provider == "" {
		c.Embedder.Provider = "openai"
	}
	if c.Embedder.Provider == "openai" {
		if c.Embedder.APIKey == "" {
			c.Embedder.APIKey = c.Model.APIKey
		}
		if c.Embedder.BaseURL == "" {
			c.Embedder.BaseURL = c.Model.BaseURL
		}
	}

	if c.Agent.BackendURL == "" {
		c.Agent.BackendURL = DefaultBackendURL
	}
	c.Agent.Config.SetDefaults()
	c.Crawl.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks everything `serve` needs. Call SetDefaults first.
func (c *Config) Validate() error {
	fields, details := structErrors(c)
	if c.Vector.Backend == string(vector.ProviderQdrant) && c.Vector.Qdrant.URL == "" {
		fields = append(fields, "QDRANT_URL")
		details = append(details, "QDRANT_URL is required by the qdrant backend")
	}
	if len(fields) > 0 {
		return &ConfigurationError{Fields: fields, Err: errors.New(strings.Join(details, "; "))}
	}
	if err := c.Observability.Validate(); err != nil {
		return &ConfigurationError{Err: fmt.Errorf("observability: %w", err)}
	}
	return nil
}
