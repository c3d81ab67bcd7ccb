package esindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/connexus-ai/discovery-engine/internal/model"
	"github.com/connexus-ai/discovery-engine/internal/retry"
)

// esDocument is the on-the-wire shape of one indexed document.
type esDocument struct {
	Embedding       []float32                  `json:"embedding"`
	Snippet         string                     `json:"snippet"`
	Properties      map[string]json.RawMessage `json:"properties"`
	PublicationDate *time.Time                 `json:"publication_date,omitempty"`
}

// Upsert writes or overwrites one document. This is always called before
// the matching relational row write, per the storage layer's ordering
// guarantee.
func (c *Client) Upsert(ctx context.Context, doc model.Document) error {
	body, err := json.Marshal(esDocument{
		Embedding:       doc.Embedding,
		Snippet:         doc.Snippet,
		Properties:      doc.Properties,
		PublicationDate: doc.PublicationDate,
	})
	if err != nil {
		return fmt.Errorf("esindex.Upsert: marshal: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.indexName,
		DocumentID: documentID(doc.ID),
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}
	_, err = retry.Do(ctx, retry.DefaultPolicy, "esindex.upsert", func() (*struct{}, error) {
		res, err := req.Do(ctx, c.es)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		if res.IsError() {
			return nil, fmt.Errorf("index %s: %s", doc.ID, res.String())
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("esindex.Upsert: %w", err)
	}
	return nil
}

// Delete removes a document; idempotent (not-found is not an error).
func (c *Client) Delete(ctx context.Context, id model.DocumentID) error {
	req := esapi.DeleteRequest{Index: c.indexName, DocumentID: documentID(id)}
	_, err := retry.Do(ctx, retry.DefaultPolicy, "esindex.delete", func() (*struct{}, error) {
		res, err := req.Do(ctx, c.es)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		if res.IsError() && res.StatusCode != 404 {
			return nil, fmt.Errorf("delete %s: %s", id, res.String())
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("esindex.Delete: %w", err)
	}
	return nil
}

// Get fetches one document by id.
func (c *Client) Get(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	req := esapi.GetRequest{Index: c.indexName, DocumentID: documentID(id)}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, fmt.Errorf("esindex.Get: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("esindex.Get: %s", res.String())
	}

	var wrapper struct {
		Source esDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("esindex.Get: decode: %w", err)
	}
	return &model.Document{
		ID:              id,
		Snippet:         wrapper.Source.Snippet,
		Properties:      wrapper.Source.Properties,
		Embedding:       wrapper.Source.Embedding,
		PublicationDate: wrapper.Source.PublicationDate,
	}, nil
}

// Candidate is one retrieval hit, carrying enough signal for re-ranking.
type Candidate struct {
	DocumentID         model.DocumentID
	Embedding          []float32
	Snippet            string
	Properties         map[string]json.RawMessage
	PublicationDate    *time.Time
	MaxProbeSimilarity float64
	BM25Score          float64
}

// Query parameterizes find_candidates: probe vectors are disjuncted via
// kNN, queryText drives the BM25 leg, filter/publishedAfter/excludeIDs
// are pushed to the index, K bounds the result size.
type Query struct {
	Probes        [][]float32
	QueryText      string
	Filter         *model.FilterExpr
	PublishedAfter *time.Time
	ExcludeIDs     []model.DocumentID
	K              int
}

// FindCandidates issues one hybrid kNN+BM25 query against the tenant's
// index, returning up to K candidates with both scoring legs populated.
func (c *Client) FindCandidates(ctx context.Context, q Query) ([]Candidate, error) {
	filterClauses := []map[string]any{}
	if q.Filter != nil {
		compiled, err := compileFilter(*q.Filter)
		if err != nil {
			return nil, fmt.Errorf("esindex.FindCandidates: %w", err)
		}
		filterClauses = append(filterClauses, compiled)
	}
	if q.PublishedAfter != nil {
		filterClauses = append(filterClauses, map[string]any{
			"range": map[string]any{"publication_date": map[string]any{"gt": q.PublishedAfter.Format(time.RFC3339)}},
		})
	}
	if len(q.ExcludeIDs) > 0 {
		ids := make([]string, len(q.ExcludeIDs))
		for i, id := range q.ExcludeIDs {
			ids[i] = string(id)
		}
		filterClauses = append(filterClauses, map[string]any{
			"bool": map[string]any{"must_not": map[string]any{"ids": map[string]any{"values": ids}}},
		})
	}

	body := map[string]any{"size": q.K}

	if q.QueryText != "" {
		body["query"] = map[string]any{
			"bool": map[string]any{
				"must":   []map[string]any{{"match": map[string]any{"snippet": q.QueryText}}},
				"filter": filterClauses,
			},
		}
	} else if len(filterClauses) > 0 {
		body["query"] = map[string]any{"bool": map[string]any{"filter": filterClauses}}
	}

	if len(q.Probes) > 0 {
		knn := make([]map[string]any, 0, len(q.Probes))
		for _, probe := range q.Probes {
			k := map[string]any{
				"field":          "embedding",
				"query_vector":   probe,
				"k":              q.K,
				"num_candidates": q.K * 4,
			}
			if len(filterClauses) > 0 {
				k["filter"] = map[string]any{"bool": map[string]any{"filter": filterClauses}}
			}
			knn = append(knn, k)
		}
		body["knn"] = knn
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("esindex.FindCandidates: marshal query: %w", err)
	}

	req := esapi.SearchRequest{Index: []string{c.indexName}, Body: bytes.NewReader(payload)}
	result, err := retry.Do(ctx, retry.DefaultPolicy, "esindex.search", func() (*searchResponse, error) {
		res, err := req.Do(ctx, c.es)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		if res.IsError() {
			return nil, fmt.Errorf("search: %s", res.String())
		}
		var parsed searchResponse
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("decode search response: %w", err)
		}
		return &parsed, nil
	})
	if err != nil {
		return nil, fmt.Errorf("esindex.FindCandidates: %w", err)
	}

	candidates := make([]Candidate, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		cand := Candidate{
			DocumentID:      model.DocumentID(hit.ID),
			Embedding:       hit.Source.Embedding,
			Snippet:         hit.Source.Snippet,
			Properties:      hit.Source.Properties,
			PublicationDate: hit.Source.PublicationDate,
			BM25Score:       hit.Score,
		}
		for pi, probe := range q.Probes {
			sim := cosineSimilarity(probe, cand.Embedding)
			if pi == 0 || sim > cand.MaxProbeSimilarity {
				cand.MaxProbeSimilarity = sim
			}
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string     `json:"_id"`
			Score  float64    `json:"_score"`
			Source esDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// cosineSimilarity mirrors the CoI engine's clamped-cosine convention:
// either vector being all-zero yields similarity 1.
func cosineSimilarity(a, b []float32) float64 {
	if model.ZeroVector(a) || model.ZeroVector(b) {
		return 1
	}
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}
