// Package esindex implements the vector/keyword half of the storage
// layer on top of Elasticsearch: one index per tenant holding
// {document_id -> {embedding, snippet, properties}}, queried by kNN and
// boolean filters.
package esindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/connexus-ai/discovery-engine/internal/model"
	"github.com/connexus-ai/discovery-engine/internal/retry"
)

// Client is a tenant-scoped handle onto one Elasticsearch index.
type Client struct {
	es         *elasticsearch.Client
	indexName  string
	dimensions int
	maxProps   int
}

// Config configures the shared Elasticsearch connection.
type Config struct {
	Addresses  []string
	Username   string
	Password   string
	Dimensions int
	MaxIndexedProperties int
}

// NewFactory returns a function that builds a Client scoped to one
// tenant's index name, sharing a single underlying transport.
func NewFactory(cfg Config) (func(indexName string) (*Client, error), error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("esindex.NewFactory: %w", err)
	}

	return func(indexName string) (*Client, error) {
		return &Client{es: es, indexName: indexName, dimensions: cfg.Dimensions, maxProps: cfg.MaxIndexedProperties}, nil
	}, nil
}

// EnsureIndex creates the tenant's index with the standard mapping if it
// does not already exist.
func (c *Client) EnsureIndex(ctx context.Context) error {
	existsReq := esapi.IndicesExistsRequest{Index: []string{c.indexName}}
	res, err := existsReq.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("esindex.EnsureIndex: exists check: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	mapping := c.indexMapping()
	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("esindex.EnsureIndex: marshal mapping: %w", err)
	}

	createReq := esapi.IndicesCreateRequest{Index: c.indexName, Body: bytes.NewReader(body)}
	_, err = retry.Do(ctx, retry.DefaultPolicy, "esindex.create_index", func() (*struct{}, error) {
		res, err := createReq.Do(ctx, c.es)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
			return nil, fmt.Errorf("create index %s: %s", c.indexName, res.String())
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("esindex.EnsureIndex: %w", err)
	}
	return nil
}

// indexMapping builds the per-tenant mapping body: dense_vector embedding,
// text snippet, a top-level publication_date date field, and a dynamic
// object properties field. The mapping itself places no cap on the
// number of properties subfields; maxProps is not used here.
func (c *Client) indexMapping() map[string]any {
	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"embedding": map[string]any{
					"type":       "dense_vector",
					"dims":       c.dimensions,
					"index":      true,
					"similarity": "cosine",
				},
				"snippet": map[string]any{"type": "text"},
				"publication_date": map[string]any{"type": "date"},
				"properties": map[string]any{
					"type":    "object",
					"dynamic": true,
				},
			},
		},
	}
}

func documentID(id model.DocumentID) string { return string(id) }
