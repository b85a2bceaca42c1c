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

package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/docsagent/pkg/protocol"
)

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var req protocol.AddDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id, err := s.deps.Store.AddDocument(r.Context(), req.CollectionName, req.Document, req.Metadata, req.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.AddDocumentResponse{
		Message: fmt.Sprintf("Document %s added successfully", id),
		ID:      id,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req protocol.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	matches, err := s.deps.Store.Search(r.Context(), req.CollectionName, req.Query, req.TopK)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.SearchResponse(matches))
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.deps.Store.ListCollections(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := protocol.CollectionsResponse{Collections: make([]protocol.CollectionInfo, 0, len(names))}
	for _, name := range names {
		resp.Collections = append(resp.Collections, protocol.CollectionInfo{Name: name})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		writeError(w, r, badRequest("collection name is required"))
		return
	}
	if err := s.deps.Store.CreateCollection(r.Context(), name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.MessageResponse{Message: fmt.Sprintf("Collection %s is ready", name)})
}
