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
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/kadirpekel/docsagent/pkg/httpclient"
)

const (
	qdrantService     = "qdrant"
	defaultQdrantGRPC = 6334

	payloadDocument   = "document"
	payloadDocumentID = "document_id"
	payloadMetadata   = "metadata"
)

// QdrantConfig configures the Qdrant vector provider.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`

	// Port is the Qdrant gRPC port (default: 6334).
	Port int `yaml:"port"`

	// APIKey for authenticated access (optional).
	APIKey string `yaml:"api_key,omitempty"`

	// UseTLS enables TLS connections.
	UseTLS bool `yaml:"use_tls,omitempty"`
}

// ParseQdrantURL derives a gRPC configuration from a Qdrant URL such as
// https://xyz.cloud.qdrant.io:6333. The REST port in the URL is ignored;
// grpcPort 0 selects 6334.
func ParseQdrantURL(rawURL, apiKey string, grpcPort int) (QdrantConfig, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return QdrantConfig{}, fmt.Errorf("invalid qdrant url: %w", err)
	}
	if u.Hostname() == "" {
		return QdrantConfig{}, fmt.Errorf("invalid qdrant url %q: missing host", rawURL)
	}
	if grpcPort == 0 {
		grpcPort = defaultQdrantGRPC
	}
	return QdrantConfig{
		Host:   u.Hostname(),
		Port:   grpcPort,
		APIKey: apiKey,
		UseTLS: u.Scheme == "https",
	}, nil
}

// QdrantProvider implements Provider using Qdrant over gRPC.
//
// Qdrant only accepts UUID or integer point ids, so other ids are mapped to
// a UUIDv5 and the caller's id is kept in the payload.
type QdrantProvider struct {
	client *qdrant.Client
	config QdrantConfig
}

// NewQdrantProvider creates a new Qdrant provider.
func NewQdrantProvider(cfg QdrantConfig) (*QdrantProvider, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = defaultQdrantGRPC
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, &httpclient.UpstreamError{
			Service: qdrantService,
			Message: fmt.Sprintf("failed to create client for %s:%d", cfg.Host, cfg.Port),
			Err:     err,
		}
	}

	return &QdrantProvider{
		client: client,
		config: cfg,
	}, nil
}

// Name returns the provider name.
func (p *QdrantProvider) Name() string {
	return "qdrant"
}

func (p *QdrantProvider) CreateCollection(ctx context.Context, name string, dimension int) error {
	exists, err := p.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return ErrCollectionExists
	}

	err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return ErrCollectionExists
		}
		return &httpclient.UpstreamError{Service: qdrantService, Message: "failed to create collection", Err: err}
	}
	return nil
}

func (p *QdrantProvider) CollectionExists(ctx context.Context, name string) (bool, error) {
	exists, err := p.client.CollectionExists(ctx, name)
	if err != nil {
		return false, &httpclient.UpstreamError{Service: qdrantService, Message: "failed to check collection", Err: err}
	}
	return exists, nil
}

func (p *QdrantProvider) ListCollections(ctx context.Context) ([]string, error) {
	names, err := p.client.ListCollections(ctx)
	if err != nil {
		return nil, &httpclient.UpstreamError{Service: qdrantService, Message: "failed to list collections", Err: err}
	}
	sort.Strings(names)
	return names, nil
}

func (p *QdrantProvider) Upsert(ctx context.Context, collection string, points ...Point) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, pt := range points {
		meta, err := qdrant.NewValue(NormalizeMetadata(pt.Metadata))
		if err != nil {
			return fmt.Errorf("failed to convert metadata of %q: %w", pt.ID, err)
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointUUID(pt.ID)),
			Vectors: qdrant.NewVectors(pt.Vector...),
			Payload: map[string]*qdrant.Value{
				payloadDocument:   {Kind: &qdrant.Value_StringValue{StringValue: pt.Content}},
				payloadDocumentID: {Kind: &qdrant.Value_StringValue{StringValue: pt.ID}},
				payloadMetadata:   meta,
			},
		})
	}

	wait := true
	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return &httpclient.UpstreamError{Service: qdrantService, Message: "failed to upsert points", Err: err}
	}
	return nil
}

func (p *QdrantProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	exists, err := p.CollectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &CollectionNotFoundError{Collection: collection}
	}

	searchResult, err := p.client.GetPointsClient().Search(ctx, &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, &httpclient.UpstreamError{Service: qdrantService, Message: "failed to search points", Err: err}
	}

	return convertQdrantResults(searchResult.GetResult()), nil
}

// Close closes the Qdrant client.
func (p *QdrantProvider) Close() error {
	return p.client.Close()
}

// pointUUID returns id when it is a UUID and a stable UUIDv5 otherwise.
func pointUUID(id string) string {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

// convertQdrantResults converts Qdrant results to our Result type.
func convertQdrantResults(points []*qdrant.ScoredPoint) []Result {
	results := make([]Result, 0, len(points))

	for _, point := range points {
		payload := point.GetPayload()

		id := payload[payloadDocumentID].GetStringValue()
		if id == "" && point.GetId() != nil {
			switch idType := point.GetId().GetPointIdOptions().(type) {
			case *qdrant.PointId_Uuid:
				id = idType.Uuid
			case *qdrant.PointId_Num:
				id = strconv.FormatUint(idType.Num, 10)
			}
		}

		metadata, _ := fromQdrantValue(payload[payloadMetadata]).(map[string]any)
		if metadata == nil {
			metadata = map[string]any{}
		}

		results = append(results, Result{
			ID:       id,
			Content:  payload[payloadDocument].GetStringValue(),
			Score:    point.GetScore(),
			Metadata: metadata,
		})
	}

	return results
}

// fromQdrantValue decodes a payload value into plain Go values. Numbers
// come back as float64, matching JSON-normalized metadata.
func fromQdrantValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return float64(kind.IntegerValue)
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(kind.StructValue.GetFields()))
		for k, field := range kind.StructValue.GetFields() {
			out[k] = fromQdrantValue(field)
		}
		return out
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, len(values))
		for i, item := range values {
			out[i] = fromQdrantValue(item)
		}
		return out
	default:
		return nil
	}
}

// Ensure QdrantProvider implements Provider.
var _ Provider = (*QdrantProvider)(nil)
