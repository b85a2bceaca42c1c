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

// Package searchtool provides the vector store search tool. It queries the
// server's /vector-store/search endpoint rather than the store directly, so
// the agent can run in a separate process.
package searchtool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/docsagent/pkg/protocol"
	"github.com/kadirpekel/docsagent/pkg/tool"
	"github.com/kadirpekel/docsagent/pkg/tool/functiontool"
	"github.com/kadirpekel/docsagent/pkg/vector"
	"github.com/kadirpekel/docsagent/pkg/vectorstore"
)

// Name is the tool name the model calls.
const Name = "search_vector_store"

// Searcher runs a vector store search. *client.Client implements it.
type Searcher interface {
	Search(ctx context.Context, req protocol.SearchRequest) ([]vectorstore.Match, error)
}

// SearchArgs defines the parameters of a vector store search.
type SearchArgs struct {
	CollectionName string `json:"collection_name,omitempty" jsonschema:"description=The name of the collection to search in"`
	Query          string `json:"query" jsonschema:"required,description=The search query string"`
}

// Config configures the search tool.
type Config struct {
	Searcher Searcher

	// TopK is passed to the server; 0 keeps the server default.
	TopK int
}

// New creates the search_vector_store tool.
func New(cfg Config) (tool.Tool, error) {
	if cfg.Searcher == nil {
		return nil, errors.New("searchtool: searcher is required")
	}

	return functiontool.NewWithValidation(
		functiontool.Config{
			Name: Name,
			Description: "Search the vector store for relevant documents. " +
				"The results include their metadata which contains the sourceURL.",
		},
		func(ctx context.Context, args SearchArgs) (any, error) {
			collection := args.CollectionName
			if collection == "" {
				collection = tool.CollectionFromContext(ctx)
			}
			if collection == "" {
				return "vector store search failed: no collection given", nil
			}

			matches, err := cfg.Searcher.Search(ctx, protocol.SearchRequest{
				CollectionName: collection,
				Query:          args.Query,
				TopK:           cfg.TopK,
			})
			if err != nil {
				slog.Error("Vector store search failed", "collection", collection, "error", err)
				if errors.Is(err, vector.ErrCollectionNotFound) {
					return fmt.Sprintf("vector store search failed: collection %q does not exist", collection), nil
				}
				return fmt.Sprintf("vector store search failed: %v", err), nil
			}
			if len(matches) == 0 {
				return fmt.Sprintf("no documents found in collection %q", collection), nil
			}
			return matches, nil
		},
		func(args SearchArgs) error {
			if strings.TrimSpace(args.Query) == "" {
				return fmt.Errorf("query is required")
			}
			return nil
		},
	)
}
