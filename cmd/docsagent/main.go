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

// Command docsagent crawls documentation sites into a vector store and
// answers questions about them.
//
// Usage:
//
//	docsagent serve --config docsagent.yaml
//	docsagent crawl https://example.com --limit 20
//	docsagent chat my-thread --collection examplecom
//	docsagent mcp
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/docsagent/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = ""

// CLI defines the command-line interface.
type CLI struct {
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP server."`
	Crawl   CrawlCmd   `cmd:"" help:"Crawl a site through a running server and show progress."`
	Chat    ChatCmd    `cmd:"" help:"Chat with the agent about a crawled collection."`
	MCP     MCPCmd     `cmd:"" name:"mcp" help:"Serve document search to MCP clients over stdio."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path" env:"DOCSAGENT_CONFIG"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, json)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("docsagent version %s\n", buildVersion())
	return nil
}

func buildVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("docsagent"),
		kong.Description("Documentation crawler and question answering agent"),
		kong.UsageOnError(),
	)

	cleanup, err := initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// FatalIfErrorf exits the process, so cleanup cannot be deferred.
	ctx.FatalIfErrorf(runThenCleanup(func() error { return ctx.Run(&cli) }, cleanup))
}

// runThenCleanup runs fn and then cleanup, returning fn's error.
func runThenCleanup(fn func() error, cleanup func()) error {
	err := fn()
	if cleanup != nil {
		cleanup()
	}
	return err
}
