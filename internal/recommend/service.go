package recommend

import (
	"context"
	"time"

	"github.com/connexus-ai/discovery-engine/internal/apierror"
	"github.com/connexus-ai/discovery-engine/internal/coi"
	"github.com/connexus-ai/discovery-engine/internal/config"
	"github.com/connexus-ai/discovery-engine/internal/esindex"
	"github.com/connexus-ai/discovery-engine/internal/model"
	"github.com/connexus-ai/discovery-engine/internal/pgstore"
)

// QueryEmbedder is the subset of embedder.TextEmbeddingClient the
// pipeline needs for query-time embedding.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Service implements recommend, personalize_stateless, and
// semantic_search over one tenant's backends.
type Service struct {
	index  *esindex.Client
	repo   *pgstore.Repository
	embed  QueryEmbedder
	engine *coi.Engine
	pCfg   config.PersonalizationConfig
	weights Weights
	overfetchFactor float64
	maxPageSize     int
}

func New(index *esindex.Client, repo *pgstore.Repository, embed QueryEmbedder, engine *coi.Engine, pCfg config.PersonalizationConfig, w Weights, overfetchFactor float64, maxPageSize int) *Service {
	return &Service{index: index, repo: repo, embed: embed, engine: engine, pCfg: pCfg, weights: w, overfetchFactor: overfetchFactor, maxPageSize: maxPageSize}
}

// Request bundles the parameters shared by recommend/personalize/search.
type Request struct {
	Page              int
	PageSize          int
	Filter            *model.FilterExpr
	PublishedAfter    *time.Time
	ExcludeHistory     bool
	QueryText          string
	QueryVector        []float32
	MinSimilarity      float64
	InlineHistory      []model.UserHistoryEntry
	Strict             bool
}

// Recommend implements recommend(user_id, ...): personalized, backed by
// the user's persisted CoI profile and history. Under Strict, a user
// with zero positive CoIs fails with NotEnoughInteractions instead of
// falling back to an unpersonalized ranking.
func (s *Service) Recommend(ctx context.Context, userID model.UserID, req Request) ([]RankedDocument, error) {
	profile, err := s.repo.LoadUserProfile(ctx, userID)
	if err != nil {
		return nil, apierror.Upstream("relational store unavailable", err)
	}

	state, ramp := s.engine.Classify(profile.Positive)
	if req.Strict && state == coi.StateUnknown {
		return nil, apierror.NotEnoughInteractions(string(userID))
	}

	now := time.Now().UTC()
	probes := s.engine.ProbeVectors(profile.Positive, now, s.pCfg.MaxCoisForKNN)

	candidates, err := s.retrieveCandidates(ctx, req, probes)
	if err != nil {
		return nil, err
	}

	w := WeightsForState(s.weights, state, ramp)
	ranked := Rerank(candidates, profile.Positive, s.engine, w, now)

	if req.ExcludeHistory {
		history, err := s.repo.LoadHistory(ctx, userID, nil)
		if err != nil {
			return nil, apierror.Upstream("relational store unavailable", err)
		}
		ranked = FilterHistory(ranked, historySet(history))
	}

	return Paginate(ranked, req.Page, req.PageSize, s.maxPageSize), nil
}

// PersonalizeStateless implements personalize_stateless: history is
// passed inline and no persistent state is touched. No CoIs are built
// from the inline history, so there are no probes: unless the request
// carries a query text or vector, retrieval is a filter-only index query
// with the inline history ids excluded, and w_coi contributes nothing.
func (s *Service) PersonalizeStateless(ctx context.Context, req Request) ([]RankedDocument, error) {
	candidates, err := s.retrieveCandidates(ctx, req, nil)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	w := s.weights
	w.CoI = 0
	ranked := Rerank(candidates, nil, s.engine, w, now)

	if req.ExcludeHistory {
		set := make(map[model.DocumentID]bool, len(req.InlineHistory))
		for _, h := range req.InlineHistory {
			set[h.DocumentID] = true
		}
		ranked = FilterHistory(ranked, set)
	}

	return Paginate(ranked, req.Page, req.PageSize, s.maxPageSize), nil
}

// SemanticSearch implements semantic_search: non-personalized similarity
// search, optionally filtered by a minimum similarity floor.
func (s *Service) SemanticSearch(ctx context.Context, req Request) ([]RankedDocument, error) {
	candidates, err := s.retrieveCandidates(ctx, req, nil)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	w := Weights{Vector: 1}
	ranked := Rerank(candidates, nil, s.engine, w, now)

	if req.MinSimilarity > 0 {
		filtered := ranked[:0]
		for _, r := range ranked {
			if r.FinalScore >= req.MinSimilarity {
				filtered = append(filtered, r)
			}
		}
		ranked = filtered
	}

	return Paginate(ranked, req.Page, req.PageSize, s.maxPageSize), nil
}

func (s *Service) retrieveCandidates(ctx context.Context, req Request, probes [][]float32) ([]esindex.Candidate, error) {
	queryVec := req.QueryVector
	if queryVec == nil && req.QueryText != "" {
		var err error
		queryVec, err = s.embed.EmbedQuery(ctx, req.QueryText)
		if err != nil {
			return nil, apierror.Upstream("embedder unavailable", err)
		}
	}
	if queryVec != nil {
		probes = append(probes, queryVec)
	}

	k := OverfetchCount(req.Page, req.PageSize, s.overfetchFactor)

	var excludeIDs []model.DocumentID
	for _, h := range req.InlineHistory {
		excludeIDs = append(excludeIDs, h.DocumentID)
	}

	candidates, err := s.index.FindCandidates(ctx, esindex.Query{
		Probes:         probes,
		QueryText:      req.QueryText,
		Filter:         req.Filter,
		PublishedAfter: req.PublishedAfter,
		ExcludeIDs:     excludeIDs,
		K:              k,
	})
	if err != nil {
		return nil, apierror.Upstream("vector index unavailable", err)
	}
	return candidates, nil
}

func historySet(entries []model.UserHistoryEntry) map[model.DocumentID]bool {
	set := make(map[model.DocumentID]bool, len(entries))
	for _, e := range entries {
		set[e.DocumentID] = true
	}
	return set
}
