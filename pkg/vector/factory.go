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

package vector

import (
	"fmt"
)

// ProviderType names a vector database backend.
type ProviderType string

const (
	// ProviderQdrant talks to a Qdrant server over gRPC.
	ProviderQdrant ProviderType = "qdrant"

	// ProviderChromem keeps vectors in process, optionally persisted to disk.
	ProviderChromem ProviderType = "chromem"
)

// ProviderConfig selects a backend. Only the section matching Type is read;
// an empty Type means Qdrant.
type ProviderConfig struct {
	Type    ProviderType   `yaml:"type"`
	Qdrant  *QdrantConfig  `yaml:"qdrant,omitempty"`
	Chromem *ChromemConfig `yaml:"chromem,omitempty"`
}

// NewProvider opens the backend named by cfg.Type.
func NewProvider(cfg *ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case ProviderChromem:
		var c ChromemConfig
		if cfg.Chromem != nil {
			c = *cfg.Chromem
		}
		return NewChromemProvider(c)
	case "", ProviderQdrant:
		if cfg.Qdrant == nil || cfg.Qdrant.Host == "" {
			return nil, fmt.Errorf("qdrant provider needs a host")
		}
		return NewQdrantProvider(*cfg.Qdrant)
	default:
		return nil, fmt.Errorf("unknown vector provider %q (supported: %s, %s)", cfg.Type, ProviderQdrant, ProviderChromem)
	}
}
