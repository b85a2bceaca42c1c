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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/docsagent/pkg/client"
	"github.com/kadirpekel/docsagent/pkg/config"
	"github.com/kadirpekel/docsagent/pkg/mcpserver"
	"github.com/kadirpekel/docsagent/pkg/protocol"
)

// ServerFlag selects the server the client commands talk to.
type ServerFlag struct {
	Server string `help:"Server base URL (defaults to FASTAPI_BACKEND or the config file)."`
}

// connect builds a client for the configured server. The config is loaded
// without validation since server-side settings are not needed here.
func (f ServerFlag) connect(ctx context.Context, cli *CLI) (*client.Client, error) {
	baseURL := f.Server
	if baseURL == "" {
		cfg, err := config.Load(ctx, cli.Config)
		if err != nil {
			return nil, err
		}
		baseURL = cfg.Agent.BackendURL
	}
	return client.New(baseURL)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// CrawlCmd crawls a site through a running server.
type CrawlCmd struct {
	ServerFlag

	URL    string `arg:"" help:"Site to crawl."`
	Limit  int    `help:"Maximum number of pages." default:"10"`
	Socket bool   `help:"Use the WebSocket endpoint instead of Server-Sent Events."`
}

func (c *CrawlCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	api, err := c.connect(ctx, cli)
	if err != nil {
		return err
	}
	req := protocol.CrawlRequest{URL: c.URL, Limit: c.Limit}

	var p crawlProgress
	if c.Socket {
		err = api.CrawlSocket(ctx, req, func(frame protocol.CrawlSocketFrame) error {
			p.socket(frame)
			return nil
		})
	} else {
		for frame, ferr := range api.StreamCrawl(ctx, req) {
			if ferr != nil {
				err = ferr
				break
			}
			p.stream(frame)
		}
	}
	if err != nil {
		return err
	}
	fmt.Printf("\n%d documents, %d errors\n", p.documents, p.errors)
	if !p.done {
		return fmt.Errorf("crawl of %s did not complete", c.URL)
	}
	return nil
}

type crawlProgress struct {
	documents int
	errors    int
	done      bool
}

func (p *crawlProgress) stream(frame protocol.CrawlStreamFrame) {
	data, _ := frame.Data.(map[string]any)
	switch frame.Event {
	case protocol.CrawlEventSuccess:
		fmt.Printf("%v (collection %v)\n", data["message"], data["collection"])
	case protocol.CrawlEventDocument:
		p.documents++
		fmt.Printf("  + %v\n", data["url"])
	case protocol.CrawlEventError:
		p.errors++
		fmt.Printf("  ! %v\n", data["error"])
	case protocol.CrawlEventDone:
		p.done = true
		fmt.Printf("done: %v\n", data["status"])
	}
}

func (p *crawlProgress) socket(frame protocol.CrawlSocketFrame) {
	switch frame.Event {
	case protocol.CrawlEventSuccess:
		fmt.Println(frame.Message)
	case protocol.CrawlEventDocument:
		p.documents++
		fmt.Printf("  + %s\n", frame.URL)
	case protocol.CrawlEventError:
		p.errors++
		fmt.Printf("  ! %s\n", frame.Error)
	case protocol.CrawlEventDone:
		p.done = true
		fmt.Printf("done: %s\n", frame.Status)
	}
}

// MCPCmd serves the document tools over stdio.
type MCPCmd struct {
	ServerFlag
}

func (c *MCPCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	api, err := c.connect(ctx, cli)
	if err != nil {
		return err
	}
	slog.Info("Serving MCP over stdio", "backend", api.BaseURL())
	return mcpserver.ServeStdio(ctx, mcpserver.New(api, buildVersion()), os.Stdin, os.Stdout)
}
