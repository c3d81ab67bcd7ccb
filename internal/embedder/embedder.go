// Package embedder adapts the opaque text→unit-vector and
// text→shorter-text interfaces to concrete, replaceable REST clients,
// following the same oauth2/google-credentialed REST pattern as the
// teacher's Vertex AI adapters.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2/google"

	"github.com/connexus-ai/discovery-engine/internal/retry"
)

// Embedder maps text to a D-dimensional vector. Implementations are not
// required to return a unit vector; the ingestion pipeline normalizes
// defensively.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Summarizer maps text to a shorter text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// TextEmbeddingClient calls a Vertex AI–style text-embedding REST
// endpoint. One real implementation standing in for the opaque embedder
// interface spec.md treats as external.
type TextEmbeddingClient struct {
	project  string
	location string
	model    string
	client   *http.Client
}

// NewTextEmbeddingClient creates a TextEmbeddingClient using default
// application credentials shared across tenants via httpClient.
func NewTextEmbeddingClient(ctx context.Context, project, location, model string, httpClient *http.Client) (*TextEmbeddingClient, error) {
	if httpClient == nil {
		var err error
		httpClient, err = google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return nil, fmt.Errorf("embedder.NewTextEmbeddingClient: %w", err)
		}
	}
	return &TextEmbeddingClient{project: project, location: location, model: model, client: httpClient}, nil
}

type embeddingRequest struct {
	Instances []embeddingInstance `json:"instances"`
}

type embeddingInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type"`
}

type embeddingResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

// Embed generates document-retrieval embeddings for a batch of texts.
func (a *TextEmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return retry.Do(ctx, retry.DefaultPolicy, "embedder.embed", func() ([][]float32, error) {
		return a.doEmbed(ctx, texts, "RETRIEVAL_DOCUMENT")
	})
}

// EmbedQuery generates a query embedding, using the asymmetric-retrieval
// task type optimized for search queries rather than stored documents.
func (a *TextEmbeddingClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := retry.Do(ctx, retry.DefaultPolicy, "embedder.embed_query", func() ([][]float32, error) {
		return a.doEmbed(ctx, []string{text}, "RETRIEVAL_QUERY")
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder.EmbedQuery: empty response")
	}
	return vectors[0], nil
}

func (a *TextEmbeddingClient) doEmbed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	instances := make([]embeddingInstance, len(texts))
	for i, t := range texts {
		instances[i] = embeddingInstance{Content: t, TaskType: taskType}
	}

	reqBody, err := json.Marshal(embeddingRequest{Instances: instances})
	if err != nil {
		return nil, fmt.Errorf("embedder.doEmbed: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.endpointURL(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embedder.doEmbed: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder.doEmbed: call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedder.doEmbed: status %d: %s", resp.StatusCode, body)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedder.doEmbed: decode: %w", err)
	}

	out := make([][]float32, len(parsed.Predictions))
	for i, p := range parsed.Predictions {
		out[i] = p.Embeddings.Values
	}
	return out, nil
}

func (a *TextEmbeddingClient) endpointURL() string {
	if a.location == "global" {
		return fmt.Sprintf(
			"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:predict",
			a.project, a.model)
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		a.location, a.project, a.location, a.model)
}
