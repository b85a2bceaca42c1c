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

package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 4 << 10

// UpstreamError reports an unreachable or failing external service
// (vector database, crawler, search API, model API).
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString(e.Service)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, " (retry after %v)", e.RetryAfter)
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a later attempt may succeed.
func (e *UpstreamError) IsRetryable() bool {
	return e.StatusCode == 0 || DefaultRetryStrategy(e.StatusCode) != NoRetry
}

// Upstream wraps err as an UpstreamError for service unless it already is one.
func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return err
	}
	return &UpstreamError{Service: service, Err: err}
}

// IsUpstream reports whether err carries an UpstreamError.
func IsUpstream(err error) bool {
	var upErr *UpstreamError
	return errors.As(err, &upErr)
}

// newUpstreamError builds an error from a non-2xx response and closes its body.
func newUpstreamError(service string, resp *http.Response) *UpstreamError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &UpstreamError{
		Service:    service,
		StatusCode: resp.StatusCode,
		Message:    errorMessage(body, resp.Status),
	}
}

// errorMessage extracts a message from common JSON error envelopes.
func errorMessage(body []byte, fallback string) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if len(envelope.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var flat string
			if json.Unmarshal(envelope.Error, &flat) == nil && flat != "" {
				return flat
			}
		}
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Detail != "" {
			return envelope.Detail
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fallback
}
