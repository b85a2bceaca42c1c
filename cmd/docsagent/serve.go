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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kadirpekel/docsagent/pkg/agent"
	"github.com/kadirpekel/docsagent/pkg/client"
	"github.com/kadirpekel/docsagent/pkg/config"
	"github.com/kadirpekel/docsagent/pkg/crawl"
	"github.com/kadirpekel/docsagent/pkg/embedder"
	"github.com/kadirpekel/docsagent/pkg/firecrawl"
	"github.com/kadirpekel/docsagent/pkg/model/openai"
	"github.com/kadirpekel/docsagent/pkg/observability"
	"github.com/kadirpekel/docsagent/pkg/server"
	"github.com/kadirpekel/docsagent/pkg/tool"
	"github.com/kadirpekel/docsagent/pkg/tool/searchtool"
	"github.com/kadirpekel/docsagent/pkg/tool/webtool"
	"github.com/kadirpekel/docsagent/pkg/vector"
	"github.com/kadirpekel/docsagent/pkg/vectorstore"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Host  string `help:"Address to listen on (overrides HOST)."`
	Port  int    `help:"Port to listen on (overrides PORT)."`
	Watch bool   `help:"Watch the config file and apply log level changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []config.LoaderOption{config.WithValidation()}
	if c.Watch {
		opts = append(opts, config.WithOnChange(func(cfg *config.Config) {
			if err := applyLogLevel(cli.LogLevel, cfg.Logger); err != nil {
				slog.Warn("Ignoring reloaded log level", "error", err)
				return
			}
			slog.Info("Configuration reloaded", "log_level", cfg.Logger.Level)
		}))
	}
	loader, err := config.NewLoader(cli.Config, opts...)
	if err != nil {
		return err
	}

	// Configuration problems stop startup before anything is initialized.
	cfg, err := loader.Load(ctx)
	if err != nil {
		var ce *config.ConfigurationError
		if errors.As(err, &ce) && len(ce.Fields) > 0 {
			slog.Error("Invalid configuration", "fields", ce.Fields)
		}
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if err := applyLogLevel(cli.LogLevel, cfg.Logger); err != nil {
		return err
	}

	if c.Watch && loader.Path() != "" {
		go func() {
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Config watch error", "error", err)
			}
		}()
	}

	app, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	fmt.Printf("\ndocsagent server ready\n")
	fmt.Printf("   Health:      http://%s/health\n", app.server.Address())
	fmt.Printf("   Vector DB:   %s\n", cfg.Vector.Backend)
	fmt.Printf("   Model:       %s\n", cfg.Model.Name)
	if app.observability.MetricsEnabled() {
		fmt.Printf("   Metrics:     http://%s%s\n", app.server.Address(), app.observability.MetricsEndpoint())
	}
	fmt.Println("\nPress Ctrl+C to stop")

	return app.server.Start(ctx)
}

// application holds the wired components of a running server.
type application struct {
	observability *observability.Manager
	gateway       *vectorstore.Gateway
	server        *server.Server
}

func (a *application) close() {
	if a.gateway != nil {
		if err := a.gateway.Close(); err != nil {
			slog.Warn("Failed to close vector store", "error", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.observability.Shutdown(ctx); err != nil {
		slog.Warn("Failed to shut down observability", "error", err)
	}
}

// build wires every component from a validated config. On failure, whatever
// was already built is released.
func build(ctx context.Context, cfg *config.Config) (*application, error) {
	obs, err := observability.New(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	app := &application{observability: obs}

	providerCfg, err := cfg.Vector.ProviderConfig()
	if err != nil {
		app.close()
		return nil, err
	}
	provider, err := vector.NewProvider(providerCfg)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to create vector provider: %w", err)
	}
	emb, err := embedder.New(embedder.Config{
		Provider:   cfg.Embedder.Provider,
		Model:      cfg.Embedder.Model,
		APIKey:     cfg.Embedder.APIKey,
		BaseURL:    cfg.Embedder.BaseURL,
		MaxRetries: cfg.Embedder.MaxRetries,
	})
	if err != nil {
		_ = provider.Close()
		app.close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	gateway, err := vectorstore.New(provider, emb)
	if err != nil {
		_ = provider.Close()
		_ = emb.Close()
		app.close()
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	app.gateway = gateway

	llm, err := openai.NewFromConfig(openai.Config{
		APIKey:  cfg.Model.APIKey,
		Model:   cfg.Model.Name,
		BaseURL: cfg.Model.BaseURL,
		Timeout: cfg.Model.Timeout,
	})
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	// The search tool goes through the HTTP boundary like an external agent.
	backend, err := client.New(cfg.Agent.BackendURL)
	if err != nil {
		app.close()
		return nil, err
	}
	search, err := searchtool.New(searchtool.Config{Searcher: backend})
	if err != nil {
		app.close()
		return nil, err
	}
	tools := []tool.Tool{search}
	if cfg.Search.APIKey != "" {
		web, err := webtool.New(webtool.Config{APIKey: cfg.Search.APIKey, BaseURL: cfg.Search.BaseURL})
		if err != nil {
			app.close()
			return nil, err
		}
		tools = append(tools, web)
	} else {
		slog.Warn("TAVILY_API_KEY is not set, web search is disabled")
	}
	registry, err := tool.NewRegistry(tools...)
	if err != nil {
		app.close()
		return nil, err
	}
	graph, err := agent.NewGraph(llm, registry, cfg.Agent.Config, agent.WithObservability(obs))
	if err != nil {
		app.close()
		return nil, err
	}

	crawler, err := firecrawl.New(firecrawl.Config{
		APIURL:  cfg.Firecrawl.APIURL,
		APIKey:  cfg.Firecrawl.APIKey,
		Timeout: cfg.Firecrawl.Timeout,
	})
	if err != nil {
		app.close()
		return nil, err
	}

	app.server = server.New(cfg.Server, server.Deps{
		Store: gateway,
		Crawl: crawl.NewRelay(crawler, gateway, cfg.Crawl, crawl.WithObservability(obs)),
		Chat:  agent.NewService(graph, nil),
	}, server.WithObservability(obs))
	return app, nil
}
