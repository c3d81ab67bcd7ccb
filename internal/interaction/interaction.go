// Package interaction appends positive user-document interactions,
// updating the caller's CoI profile under a per-user lock so the
// read-modify-write of the profile never races itself.
package interaction

import (
	"context"
	"time"

	"github.com/connexus-ai/discovery-engine/internal/apierror"
	"github.com/connexus-ai/discovery-engine/internal/coi"
	"github.com/connexus-ai/discovery-engine/internal/config"
	"github.com/connexus-ai/discovery-engine/internal/model"
	"github.com/connexus-ai/discovery-engine/internal/pgstore"
)

// DocumentGetter fetches an indexed document's embedding by id.
type DocumentGetter interface {
	Get(ctx context.Context, id model.DocumentID) (*model.Document, error)
}

// Service appends interactions for one tenant's backends.
type Service struct {
	repo   *pgstore.Repository
	index  DocumentGetter
	engine *coi.Engine
	pCfg   config.PersonalizationConfig
	locks  *coi.UserLocks
}

func New(repo *pgstore.Repository, index DocumentGetter, engine *coi.Engine, pCfg config.PersonalizationConfig, locks *coi.UserLocks) *Service {
	return &Service{repo: repo, index: index, engine: engine, pCfg: pCfg, locks: locks}
}

// Append records one positive interaction per target, folding each
// target's embedding into the user's CoI profile in order before a
// single SaveUserProfile commits the result. It returns the user's
// resulting CoI state so callers can track personalization-readiness.
func (s *Service) Append(ctx context.Context, userID model.UserID, targets []model.SnippetID) (coi.State, error) {
	unlock := s.locks.Lock(string(userID))
	defer unlock()

	now := time.Now().UTC()
	profile, err := s.repo.LoadUserProfile(ctx, userID)
	if err != nil {
		return "", apierror.Upstream("relational store unavailable", err)
	}

	positive := profile.Positive
	for _, target := range targets {
		doc, err := s.index.Get(ctx, target.DocumentID)
		if err != nil {
			return "", apierror.Upstream("vector index unavailable", err)
		}
		if doc == nil {
			return "", apierror.DocumentNotFound(string(target.DocumentID))
		}

		positive = s.engine.Assign(positive, doc.Embedding, now)

		if err := s.repo.AppendInteraction(ctx, userID, target, now); err != nil {
			return "", apierror.Upstream("relational store unavailable", err)
		}
		if s.pCfg.StoreUserHistory {
			if err := s.repo.AppendHistory(ctx, userID, target.DocumentID, now); err != nil {
				return "", apierror.Upstream("relational store unavailable", err)
			}
		}
	}

	if err := s.repo.SaveUserProfile(ctx, userID, positive, profile.Negative); err != nil {
		return "", apierror.Upstream("relational store unavailable", err)
	}

	state, _ := s.engine.Classify(positive)
	return state, nil
}
