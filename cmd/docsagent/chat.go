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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/kadirpekel/docsagent/pkg/client"
	"github.com/kadirpekel/docsagent/pkg/protocol"
)

// ChatCmd is an interactive chat over the agent WebSocket.
type ChatCmd struct {
	ServerFlag

	Thread     string `arg:"" help:"Thread id; reuse it to continue a conversation."`
	Collection string `short:"C" required:"" help:"Collection to answer from."`
	Verbose    bool   `short:"v" help:"Show agent progress events."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	api, err := c.connect(ctx, cli)
	if err != nil {
		return err
	}
	conn, err := api.DialChat(ctx, c.Thread)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Printf("Chatting on thread %s about %s. Ctrl+D to quit.\n", c.Thread, c.Collection)
	}
	return c.repl(conn, os.Stdin, os.Stdout, interactive)
}

func (c *ChatCmd) repl(conn *client.ChatConn, in io.Reader, out io.Writer, prompt bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if prompt {
			fmt.Fprint(out, "\n> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := conn.Send(protocol.ChatRequest{Message: line, CollectionName: c.Collection}); err != nil {
			return err
		}
		if err := c.printTurn(conn, out); err != nil {
			return err
		}
	}
}

// printTurn prints frames until the turn ends. Deltas are printed as they
// arrive; the final answer only when nothing was streamed.
func (c *ChatCmd) printTurn(conn *client.ChatConn, out io.Writer) error {
	streamed := false
	for {
		frame, err := conn.Receive()
		if err != nil {
			return err
		}
		switch frame.Type {
		case protocol.ChatInfo:
			if c.Verbose {
				fmt.Fprintf(os.Stderr, "[%s]\n", frame.Content)
			}
		case protocol.ChatDelta:
			streamed = true
			fmt.Fprint(out, frame.Content)
		case protocol.ChatFinal:
			if !streamed {
				fmt.Fprint(out, frame.Content)
			}
			fmt.Fprintln(out)
			return nil
		case protocol.ChatError:
			fmt.Fprintf(out, "error: %s\n", frame.Content)
			return nil
		}
	}
}
