// Package recommend implements the recommend/personalize_stateless/
// semantic_search pipeline: candidate retrieval, composite re-ranking
// with NaN-safe ordering, history filtering, and pagination, following
// the teacher's weighted-rerank shape generalized to spec.md §4.3.
package recommend

import (
	"math"
	"sort"
	"time"

	"github.com/connexus-ai/discovery-engine/internal/coi"
	"github.com/connexus-ai/discovery-engine/internal/esindex"
	"github.com/connexus-ai/discovery-engine/internal/model"
)

// RankedDocument is one re-ranked, not-yet-paginated result.
type RankedDocument struct {
	Document   model.Document
	FinalScore float64
}

// recencyHorizon bounds how far back publication_date still contributes
// recency signal, mirroring the CoI decay horizon's shape but scoped to
// document age rather than interaction age.
const recencyHorizon = 365 * 24 * time.Hour

// recency returns decay(publication_date, now, horizon), or a fixed
// neutral value (0.5) when publication_date is absent.
func recency(pubDate *time.Time, now time.Time) float64 {
	if pubDate == nil {
		return 0.5
	}
	if now.Before(*pubDate) {
		return 1
	}
	elapsed := now.Sub(*pubDate)
	d := 1 - float64(elapsed)/float64(recencyHorizon)
	if d < 0 {
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}

// bm25Normalized min-max normalizes raw BM25 _score across the candidate
// set, returning 0 for every candidate when the range is degenerate.
func bm25Normalized(candidates []esindex.Candidate) []float64 {
	out := make([]float64, len(candidates))
	if len(candidates) == 0 {
		return out
	}
	min, max := candidates[0].BM25Score, candidates[0].BM25Score
	for _, c := range candidates {
		if c.BM25Score < min {
			min = c.BM25Score
		}
		if c.BM25Score > max {
			max = c.BM25Score
		}
	}
	if max == min {
		return out
	}
	for i, c := range candidates {
		out[i] = (c.BM25Score - min) / (max - min)
	}
	return out
}

// Rerank computes the composite score for each candidate and returns
// them sorted descending, NaN-safe (any NaN sorts as the smallest
// value) with ties broken by document id.
func Rerank(candidates []esindex.Candidate, positiveCoIs []model.CoI, engine *coi.Engine, w Weights, now time.Time) []RankedDocument {
	bm25 := bm25Normalized(candidates)

	out := make([]RankedDocument, len(candidates))
	for i, c := range candidates {
		coiScore := engine.Score(c.Embedding, positiveCoIs, now)
		score := w.CoI*coiScore + w.Vector*c.MaxProbeSimilarity + w.Keyword*bm25[i] + w.Recency*recency(c.PublicationDate, now)

		out[i] = RankedDocument{
			Document: model.Document{
				ID:              c.DocumentID,
				Snippet:         c.Snippet,
				Properties:      c.Properties,
				Embedding:       c.Embedding,
				PublicationDate: c.PublicationDate,
			},
			FinalScore: score,
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return less(out[j].FinalScore, out[i].FinalScore, string(out[j].Document.ID), string(out[i].Document.ID))
	})
	return out
}

// less orders a before b using the NaN-as-smallest convention, with
// document id as the tiebreaker for equal scores.
func less(a, b float64, aID, bID string) bool {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return aID < bID
	case aNaN:
		return true
	case bNaN:
		return false
	case a == b:
		return aID < bID
	default:
		return a < b
	}
}

// WeightsForState scales w_coi by the Warming-state linear ramp
// fraction, leaving other weights untouched.
func WeightsForState(w Weights, state coi.State, ramp float64) Weights {
	if state == coi.StateWarming {
		w.CoI *= ramp
	}
	if state == coi.StateUnknown {
		w.CoI = 0
	}
	return w
}

// FilterHistory removes documents present in history (exact DocumentId
// match), preserving order.
func FilterHistory(ranked []RankedDocument, history map[model.DocumentID]bool) []RankedDocument {
	if len(history) == 0 {
		return ranked
	}
	out := make([]RankedDocument, 0, len(ranked))
	for _, r := range ranked {
		if !history[r.Document.ID] {
			out = append(out, r)
		}
	}
	return out
}

// Paginate returns the zero-indexed page of pageSize items, capped at
// maxPageSize; a short final page simply returns fewer items.
func Paginate(ranked []RankedDocument, page, pageSize, maxPageSize int) []RankedDocument {
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if pageSize <= 0 {
		return nil
	}
	start := page * pageSize
	if start >= len(ranked) {
		return nil
	}
	end := start + pageSize
	if end > len(ranked) {
		end = len(ranked)
	}
	return ranked[start:end]
}

// OverfetchCount computes k = (page+1)*page_size*overfetch_factor,
// rounded up, for the candidate-retrieval request size (page is
// zero-indexed).
func OverfetchCount(page, pageSize int, overfetchFactor float64) int {
	k := float64((page+1)*pageSize) * overfetchFactor
	return int(math.Ceil(k))
}
