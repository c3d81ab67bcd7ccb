package interaction

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/discovery-engine/internal/coi"
	"github.com/connexus-ai/discovery-engine/internal/config"
	"github.com/connexus-ai/discovery-engine/internal/model"
	"github.com/connexus-ai/discovery-engine/internal/pgstore"
)

type fakeIndex struct {
	docs map[model.DocumentID]*model.Document
}

func (f *fakeIndex) Get(ctx context.Context, id model.DocumentID) (*model.Document, error) {
	return f.docs[id], nil
}

// TestAssign_NewCoIFromFirstObservation exercises the pure CoI-folding
// logic Append relies on, without touching storage.
func TestAssign_NewCoIFromFirstObservation(t *testing.T) {
	engine := coi.New(config.Defaults().CoI)

	var positive []model.CoI
	positive = engine.Assign(positive, []float32{1, 0, 0}, time.Now().UTC())

	if len(positive) != 1 {
		t.Fatalf("expected one CoI after first observation, got %d", len(positive))
	}
	if positive[0].ViewCount != 1 {
		t.Errorf("ViewCount = %d, want 1", positive[0].ViewCount)
	}
}

// TestService_Append_Integration exercises the full Append path against
// a real tenant schema; skipped unless DATABASE_URL is set.
func TestService_Append_Integration(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("pgxpool.New() error: %v", err)
	}
	defer pool.Close()

	const schema = "tenant_interaction_test"
	if err := pgstore.EnsureTenantSchema(ctx, pool, schema); err != nil {
		t.Fatalf("EnsureTenantSchema() error: %v", err)
	}

	repo := pgstore.NewRepository(pool, schema)
	doc := &model.Document{ID: "doc-1", Embedding: []float32{1, 0, 0}}
	idx := &fakeIndex{docs: map[model.DocumentID]*model.Document{"doc-1": doc}}
	engine := coi.New(config.Defaults().CoI)

	svc := New(repo, idx, engine, config.Defaults().Personalization, coi.NewUserLocks(4))

	if _, err := svc.Append(ctx, "user-1", []model.SnippetID{{DocumentID: "doc-1", Index: 0}}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	profile, err := repo.LoadUserProfile(ctx, "user-1")
	if err != nil {
		t.Fatalf("LoadUserProfile() error: %v", err)
	}
	if len(profile.Positive) != 1 {
		t.Errorf("len(Positive) = %d, want 1", len(profile.Positive))
	}
}

func TestService_Append_UnknownDocumentReturnsError(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("pgxpool.New() error: %v", err)
	}
	defer pool.Close()

	const schema = "tenant_interaction_missing_doc_test"
	if err := pgstore.EnsureTenantSchema(ctx, pool, schema); err != nil {
		t.Fatalf("EnsureTenantSchema() error: %v", err)
	}

	repo := pgstore.NewRepository(pool, schema)
	idx := &fakeIndex{docs: map[model.DocumentID]*model.Document{}}
	engine := coi.New(config.Defaults().CoI)
	svc := New(repo, idx, engine, config.Defaults().Personalization, coi.NewUserLocks(4))

	_, err = svc.Append(ctx, "user-1", []model.SnippetID{{DocumentID: "missing", Index: 0}})
	if err == nil {
		t.Fatal("expected error for unknown document")
	}
}
