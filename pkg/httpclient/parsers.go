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
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{}
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return info
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		info.RetryAfter = time.Duration(seconds) * time.Second
	} else if at, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(at); d > 0 {
			info.RetryAfter = d
		}
	}
	return info
}

// ParseOpenAIHeaders extracts rate limit info from OpenAI-compatible APIs.
func ParseOpenAIHeaders(headers http.Header) RateLimitInfo {
	info := ParseRetryAfter(headers)

	if remaining := headers.Get("x-ratelimit-remaining-requests"); remaining != "" {
		_, _ = fmt.Sscanf(remaining, "%d", &info.RequestsRemaining)
	}
	if remaining := headers.Get("x-ratelimit-remaining-tokens"); remaining != "" {
		_, _ = fmt.Sscanf(remaining, "%d", &info.TokensRemaining)
	}

	return info
}
