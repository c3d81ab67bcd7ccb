// Package coi implements the Centers-of-Interest online clustering
// algorithm: per-user positive/negative centroids, updated from
// interaction events and scored against candidate documents.
package coi

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/connexus-ai/discovery-engine/internal/config"
	"github.com/connexus-ai/discovery-engine/internal/model"
)

// Engine holds the CoI configuration and exposes the pure operations
// over a UserProfile. It carries no state of its own; persistence is the
// caller's (pgstore's) job.
type Engine struct {
	cfg config.CoIConfig
}

func New(cfg config.CoIConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Similarity is clamped cosine similarity, with the convention that
// either vector being all-zero yields similarity 1.
func Similarity(a, b []float32) float64 {
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

// closest finds the nearest CoI to e by cosine distance, breaking ties
// by lower CoI id (lexicographic on UUID bytes). Returns -1 if cois is
// empty.
func closest(e []float32, cois []model.CoI) (idx int, distance float64) {
	best := -1
	bestDist := math.Inf(1)
	for i, c := range cois {
		d := 1 - Similarity(e, c.Point)
		if d < bestDist || (d == bestDist && compareUUID(c.ID, cois[best].ID) < 0) {
			best = i
			bestDist = d
		}
	}
	return best, bestDist
}

func compareUUID(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// normalize returns v scaled to unit length; the zero vector is returned
// unchanged since it is rejected at the boundary and never expected here.
func normalize(v []float32) []float32 {
	var normSq float64
	for _, c := range v {
		normSq += float64(c) * float64(c)
	}
	if normSq == 0 {
		return v
	}
	norm := math.Sqrt(normSq)
	out := make([]float32, len(v))
	for i, c := range v {
		out[i] = float32(float64(c) / norm)
	}
	return out
}

// Assign applies the nearest-centroid assignment rule: it either updates
// the closest existing CoI in place (within threshold) or creates a new
// one, returning the updated slice.
func (e *Engine) Assign(cois []model.CoI, observation []float32, now time.Time) []model.CoI {
	idx, dist := closest(observation, cois)
	if idx < 0 || dist > e.cfg.Threshold {
		return append(cois, model.CoI{
			ID:        uuid.New(),
			Point:     append([]float32(nil), observation...),
			ViewCount: 1,
			LastView:  now,
			Created:   now,
		})
	}

	c := &cois[idx]
	shifted := make([]float32, len(c.Point))
	for i := range shifted {
		shifted[i] = c.Point[i] + float32(e.cfg.ShiftFactor)*(observation[i]-c.Point[i])
	}
	c.Point = normalize(shifted)
	c.ViewCount++
	c.LastView = now
	return cois
}

// decay is max(0, 1-((t-t0)/horizon)) for t >= t0, and 1 for t < t0
// (clock skew tolerance).
func decay(lastView, now time.Time, horizon time.Duration) float64 {
	if now.Before(lastView) {
		return 1
	}
	if horizon <= 0 {
		return 0
	}
	elapsed := now.Sub(lastView)
	d := 1 - float64(elapsed)/float64(horizon)
	if d < 0 {
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}

// relevance is log(1+n) * decay.
func relevance(c model.CoI, now time.Time, horizon time.Duration) float64 {
	return math.Log1p(float64(c.ViewCount)) * decay(c.LastView, now, horizon)
}

// Relevances returns, for each positive CoI, its relevance normalized so
// the set sums to 1 (or all zero if there are no positive CoIs).
func (e *Engine) Relevances(positive []model.CoI, now time.Time) []float64 {
	out := make([]float64, len(positive))
	if len(positive) == 0 {
		return out
	}
	var sum float64
	for i, c := range positive {
		out[i] = relevance(c, now, e.cfg.Horizon)
		sum += out[i]
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Score computes coi_score(q, C+, t) = sum relevance(c,t) * cos(q, c.point).
func (e *Engine) Score(q []float32, positive []model.CoI, now time.Time) float64 {
	if len(positive) == 0 {
		return 0
	}
	rel := e.Relevances(positive, now)
	var score float64
	for i, c := range positive {
		score += rel[i] * Similarity(q, c.Point)
	}
	return score
}

// State classifies a user's profile per spec.md's ramp.
type State string

const (
	StateUnknown      State = "Unknown"
	StateWarming      State = "Warming"
	StatePersonalized State = "Personalized"
)

// Classify returns the profile state and, for Warming, the linear ramp
// fraction |C+|/min_positive_cois used to scale w_coi.
func (e *Engine) Classify(positive []model.CoI) (State, float64) {
	n := len(positive)
	switch {
	case n == 0:
		return StateUnknown, 0
	case n < e.cfg.MinPositiveCoIs:
		return StateWarming, float64(n) / float64(e.cfg.MinPositiveCoIs)
	default:
		return StatePersonalized, 1
	}
}

// ProbeVectors returns up to maxProbes positive CoI points, ordered by
// descending relevance, for use as kNN query vectors.
func (e *Engine) ProbeVectors(positive []model.CoI, now time.Time, maxProbes int) [][]float32 {
	if len(positive) == 0 {
		return nil
	}
	rel := e.Relevances(positive, now)
	order := make([]int, len(positive))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return rel[order[i]] > rel[order[j]] })

	if maxProbes > len(order) {
		maxProbes = len(order)
	}
	probes := make([][]float32, 0, maxProbes)
	for _, idx := range order[:maxProbes] {
		probes = append(probes, positive[idx].Point)
	}
	return probes
}

// FiniteVector reports whether every component of v is finite
// (rejecting NaN/Inf per the failure semantics of §4.2).
func FiniteVector(v []float32) bool {
	for _, c := range v {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return false
		}
	}
	return true
}
