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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kadirpekel/docsagent/pkg/agent"
	"github.com/kadirpekel/docsagent/pkg/crawl"
	"github.com/kadirpekel/docsagent/pkg/httpclient"
	"github.com/kadirpekel/docsagent/pkg/protocol"
	"github.com/kadirpekel/docsagent/pkg/tool"
	"github.com/kadirpekel/docsagent/pkg/vector"
)

const maxBodyBytes = 10 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// requestError is a client mistake, answered with 400.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// decodeJSON reads and validates a request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is required")
		}
		return badRequest("invalid JSON body: %v", err)
	}
	return validateRequest(v)
}

func validateRequest(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return badRequest("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeField(fe))
	}
	return badRequest("%s", strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "http_url":
		return name + " must be an http(s) URL"
	default:
		return fmt.Sprintf("%s failed %s=%s", name, fe.Tag(), fe.Param())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

// errorResponse maps err onto a status code and body.
func errorResponse(err error) (int, protocol.ErrorResponse) {
	var (
		reqErr   *requestError
		notFound *tool.NotFoundError
	)
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, agent.ErrInvalidRequest),
		errors.Is(err, crawl.ErrInvalidURL):
		return http.StatusBadRequest, protocol.ErrorResponse{Error: err.Error(), Code: protocol.CodeInvalidRequest}
	case errors.Is(err, vector.ErrCollectionNotFound):
		return http.StatusNotFound, protocol.ErrorResponse{Error: err.Error(), Code: protocol.CodeCollectionNotFound}
	case errors.As(err, &notFound):
		return http.StatusInternalServerError, protocol.ErrorResponse{Error: err.Error(), Code: protocol.CodeToolNotFound}
	case httpclient.IsUpstream(err):
		return http.StatusInternalServerError, protocol.ErrorResponse{Error: err.Error(), Code: protocol.CodeUpstream}
	default:
		return http.StatusInternalServerError, protocol.ErrorResponse{Error: err.Error(), Code: protocol.CodeInternal}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}
