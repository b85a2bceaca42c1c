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
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/docsagent/pkg/config"
	"github.com/kadirpekel/docsagent/pkg/observability"
	"github.com/kadirpekel/docsagent/pkg/protocol"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context, error) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Name("docsagent"))
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	return cli, ctx, err
}

func TestParse_Chat(t *testing.T) {
	cli, ctx, err := parse(t, "chat", "thread-1", "--collection", "examplecom", "--server", "http://localhost:9000")
	require.NoError(t, err)
	assert.Equal(t, "chat <thread>", ctx.Command())
	assert.Equal(t, "thread-1", cli.Chat.Thread)
	assert.Equal(t, "examplecom", cli.Chat.Collection)
	assert.Equal(t, "http://localhost:9000", cli.Chat.Server)
}

func TestParse_ChatRequiresCollection(t *testing.T) {
	_, _, err := parse(t, "chat", "thread-1")
	require.Error(t, err)
}

func TestParse_Crawl(t *testing.T) {
	cli, ctx, err := parse(t, "crawl", "https://example.com", "--socket")
	require.NoError(t, err)
	assert.Equal(t, "crawl <url>", ctx.Command())
	assert.Equal(t, "https://example.com", cli.Crawl.URL)
	assert.Equal(t, 10, cli.Crawl.Limit)
	assert.True(t, cli.Crawl.Socket)
}

func TestParse_Serve(t *testing.T) {
	cli, ctx, err := parse(t, "--log-level", "debug", "serve", "--port", "9000", "--watch")
	require.NoError(t, err)
	assert.Equal(t, "serve", ctx.Command())
	assert.Equal(t, 9000, cli.Serve.Port)
	assert.True(t, cli.Serve.Watch)
	assert.Equal(t, "debug", cli.LogLevel)
}

func TestCrawlProgress(t *testing.T) {
	var p crawlProgress
	p.stream(protocol.CrawlStreamFrame{Event: protocol.CrawlEventSuccess, Data: map[string]any{"message": "Starting", "collection": "examplecom"}})
	p.stream(protocol.CrawlStreamFrame{Event: protocol.CrawlEventDocument, Data: map[string]any{"url": "https://example.com/a"}})
	p.socket(protocol.CrawlSocketFrame{Event: protocol.CrawlEventDocument, URL: "https://example.com/b"})
	p.socket(protocol.CrawlSocketFrame{Event: protocol.CrawlEventError, Error: "timeout"})
	assert.False(t, p.done)

	p.stream(protocol.CrawlStreamFrame{Event: protocol.CrawlEventDone, Data: map[string]any{"status": "completed"}})
	assert.Equal(t, 2, p.documents)
	assert.Equal(t, 1, p.errors)
	assert.True(t, p.done)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestBuild_FailureReleasesComponents(t *testing.T) {
	tests := []struct {
		name     string
		embedder config.EmbedderConfig
	}{
		{name: "unknown provider", embedder: config.EmbedderConfig{Provider: "cohere"}},
		{name: "missing key", embedder: config.EmbedderConfig{Provider: "openai"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Vector:   config.VectorConfig{Backend: "chromem"},
				Embedder: tt.embedder,
			}
			app, err := build(context.Background(), cfg)
			require.Error(t, err)
			assert.Nil(t, app)
		})
	}
}

func TestApplication_CloseWithoutGateway(t *testing.T) {
	obs, err := observability.New(context.Background(), observability.Config{})
	require.NoError(t, err)
	app := &application{observability: obs}
	assert.NotPanics(t, app.close)
}

func TestRunThenCleanup(t *testing.T) {
	boom := errors.New("boom")
	var order []string
	err := runThenCleanup(func() error {
		order = append(order, "run")
		return boom
	}, func() {
		order = append(order, "cleanup")
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"run", "cleanup"}, order)

	assert.NoError(t, runThenCleanup(func() error { return nil }, nil))
}
