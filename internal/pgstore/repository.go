package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/discovery-engine/internal/model"
)

// Repository implements the relational half of the storage layer for
// one tenant's schema.
type Repository struct {
	pool       *pgxpool.Pool
	schemaName string
}

// NewRepository binds a Repository to a tenant's already-provisioned
// schema.
func NewRepository(pool *pgxpool.Pool, schemaName string) *Repository {
	return &Repository{pool: pool, schemaName: schemaName}
}

func (r *Repository) qualify(table string) string {
	return pgx.Identifier{r.schemaName, table}.Sanitize()
}

// UpsertDocumentMetadata writes the relational row half of a document;
// called after the matching vector-index write (pgstore.Repository is
// the source of truth for existence and properties, not for vectors).
func (r *Repository) UpsertDocumentMetadata(ctx context.Context, doc model.Document) error {
	props, err := json.Marshal(doc.Properties)
	if err != nil {
		return fmt.Errorf("pgstore.UpsertDocumentMetadata: marshal properties: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, properties_json, publication_date, preprocessing_step, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			properties_json = EXCLUDED.properties_json,
			publication_date = EXCLUDED.publication_date,
			preprocessing_step = EXCLUDED.preprocessing_step,
			updated_at = now()`, r.qualify("document"))

	_, err = r.pool.Exec(ctx, query, string(doc.ID), props, doc.PublicationDate, string(doc.PreprocessingStep))
	if err != nil {
		return fmt.Errorf("pgstore.UpsertDocumentMetadata: %w", err)
	}
	return nil
}

// DeleteDocumentMetadata removes the relational row for id; idempotent.
func (r *Repository) DeleteDocumentMetadata(ctx context.Context, id model.DocumentID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.qualify("document"))
	if _, err := r.pool.Exec(ctx, query, string(id)); err != nil {
		return fmt.Errorf("pgstore.DeleteDocumentMetadata: %w", err)
	}
	return nil
}

// ExistingDocumentIDs returns the subset of ids that have a relational
// row, used by the reconciliation step to find orphaned index entries.
func (r *Repository) ExistingDocumentIDs(ctx context.Context, ids []model.DocumentID) (map[model.DocumentID]bool, error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = string(id)
	}
	query := fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1)`, r.qualify("document"))
	rows, err := r.pool.Query(ctx, query, strIDs)
	if err != nil {
		return nil, fmt.Errorf("pgstore.ExistingDocumentIDs: %w", err)
	}
	defer rows.Close()

	out := make(map[model.DocumentID]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgstore.ExistingDocumentIDs: scan: %w", err)
		}
		out[model.DocumentID(id)] = true
	}
	return out, rows.Err()
}

// AppendInteraction records one interaction in server-observed arrival
// order (append-only, no ordering guarantee across users).
func (r *Repository) AppendInteraction(ctx context.Context, userID model.UserID, target model.SnippetID, ts time.Time) error {
	query := fmt.Sprintf(`INSERT INTO %s (user_id, document_id, snippet_idx, timestamp) VALUES ($1, $2, $3, $4)`,
		r.qualify("interactions"))
	_, err := r.pool.Exec(ctx, query, string(userID), string(target.DocumentID), target.Index, ts)
	if err != nil {
		return fmt.Errorf("pgstore.AppendInteraction: %w", err)
	}
	return nil
}

// AppendHistory records one interacted-document event, gated by the
// store_user_history config flag at the caller.
func (r *Repository) AppendHistory(ctx context.Context, userID model.UserID, docID model.DocumentID, ts time.Time) error {
	query := fmt.Sprintf(`INSERT INTO %s (user_id, document_id, timestamp) VALUES ($1, $2, $3)`, r.qualify("user_history"))
	_, err := r.pool.Exec(ctx, query, string(userID), string(docID), ts)
	if err != nil {
		return fmt.Errorf("pgstore.AppendHistory: %w", err)
	}
	return nil
}

// LoadHistory returns the user's interacted-document history, optionally
// bounded to entries at or after since.
func (r *Repository) LoadHistory(ctx context.Context, userID model.UserID, since *time.Time) ([]model.UserHistoryEntry, error) {
	query := fmt.Sprintf(`SELECT document_id, timestamp FROM %s WHERE user_id = $1`, r.qualify("user_history"))
	args := []any{string(userID)}
	if since != nil {
		query += ` AND timestamp >= $2`
		args = append(args, *since)
	}
	query += ` ORDER BY timestamp DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore.LoadHistory: %w", err)
	}
	defer rows.Close()

	var out []model.UserHistoryEntry
	for rows.Next() {
		var docID string
		var ts time.Time
		if err := rows.Scan(&docID, &ts); err != nil {
			return nil, fmt.Errorf("pgstore.LoadHistory: scan: %w", err)
		}
		out = append(out, model.UserHistoryEntry{UserID: userID, DocumentID: model.DocumentID(docID), ShownAt: ts})
	}
	return out, rows.Err()
}

// LoadUserProfile loads a user's positive and negative CoIs.
func (r *Repository) LoadUserProfile(ctx context.Context, userID model.UserID) (model.UserProfile, error) {
	query := fmt.Sprintf(`SELECT coi_id, point, view_count, last_view, created, kind FROM %s WHERE user_id = $1`,
		r.qualify("coi"))
	rows, err := r.pool.Query(ctx, query, string(userID))
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("pgstore.LoadUserProfile: %w", err)
	}
	defer rows.Close()

	profile := model.UserProfile{UserID: userID}
	for rows.Next() {
		var id uuid.UUID
		var point []float32
		var viewCount uint64
		var lastView, created time.Time
		var kind string
		if err := rows.Scan(&id, &point, &viewCount, &lastView, &created, &kind); err != nil {
			return model.UserProfile{}, fmt.Errorf("pgstore.LoadUserProfile: scan: %w", err)
		}
		coi := model.CoI{ID: id, Point: point, ViewCount: viewCount, LastView: lastView, Created: created}
		if kind == "Positive" {
			profile.Positive = append(profile.Positive, coi)
		} else {
			profile.Negative = append(profile.Negative, coi)
		}
	}
	return profile, rows.Err()
}

// SaveUserProfile replaces a user's positive and negative CoI sets in
// one transaction.
func (r *Repository) SaveUserProfile(ctx context.Context, userID model.UserID, positive, negative []model.CoI) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgstore.SaveUserProfile: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	delQuery := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, r.qualify("coi"))
	if _, err := tx.Exec(ctx, delQuery, string(userID)); err != nil {
		return fmt.Errorf("pgstore.SaveUserProfile: clear: %w", err)
	}

	insQuery := fmt.Sprintf(`
		INSERT INTO %s (user_id, coi_id, point, view_count, last_view, created, kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, r.qualify("coi"))

	insertAll := func(cois []model.CoI, kind string) error {
		for _, c := range cois {
			if _, err := tx.Exec(ctx, insQuery, string(userID), c.ID, c.Point, c.ViewCount, c.LastView, c.Created, kind); err != nil {
				return err
			}
		}
		return nil
	}
	if err := insertAll(positive, "Positive"); err != nil {
		return fmt.Errorf("pgstore.SaveUserProfile: insert positive: %w", err)
	}
	if err := insertAll(negative, "Negative"); err != nil {
		return fmt.Errorf("pgstore.SaveUserProfile: insert negative: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgstore.SaveUserProfile: commit: %w", err)
	}
	return nil
}
