package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// managementSchemaSQL creates the process-wide tenant registry. It is run
// once at startup, before any tenant schema is provisioned.
const managementSchemaSQL = `
CREATE SCHEMA IF NOT EXISTS management;

CREATE TABLE IF NOT EXISTS management.tenant (
	tenant_id      text PRIMARY KEY,
	schema_name    text NOT NULL,
	es_index_name  text NOT NULL,
	is_legacy      boolean NOT NULL DEFAULT false,
	created_at     timestamptz NOT NULL DEFAULT now()
);
`

// tenantSchemaSQLTemplate is the per-tenant DDL, parameterized on the schema
// name. Tables mirror spec.md §6's relational schema exactly.
const tenantSchemaSQLTemplate = `
CREATE SCHEMA IF NOT EXISTS %[1]q;

CREATE TABLE IF NOT EXISTS %[1]q.coi (
	user_id    text NOT NULL,
	coi_id     uuid NOT NULL,
	point      real[] NOT NULL,
	view_count bigint NOT NULL DEFAULT 1,
	last_view  timestamptz NOT NULL,
	created    timestamptz NOT NULL DEFAULT now(),
	kind       text NOT NULL CHECK (kind IN ('Positive', 'Negative')),
	PRIMARY KEY (user_id, coi_id)
);

CREATE TABLE IF NOT EXISTS %[1]q.interactions (
	user_id     text NOT NULL,
	document_id text NOT NULL,
	snippet_idx integer NOT NULL DEFAULT 0,
	timestamp   timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS interactions_user_idx ON %[1]q.interactions (user_id, timestamp);

CREATE TABLE IF NOT EXISTS %[1]q.user_history (
	user_id     text NOT NULL,
	document_id text NOT NULL,
	timestamp   timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS user_history_user_idx ON %[1]q.user_history (user_id, timestamp);

CREATE TABLE IF NOT EXISTS %[1]q.document (
	id                 text PRIMARY KEY,
	properties_json    jsonb NOT NULL DEFAULT '{}',
	publication_date   timestamptz,
	preprocessing_step text NOT NULL DEFAULT 'None',
	created_at         timestamptz NOT NULL DEFAULT now(),
	updated_at         timestamptz NOT NULL DEFAULT now()
);
`

// EnsureManagementSchema creates the management.tenant registry table.
// Safe to call concurrently and repeatedly; idempotent via IF NOT EXISTS.
func EnsureManagementSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, managementSchemaSQL); err != nil {
		return fmt.Errorf("pgstore.EnsureManagementSchema: %w", err)
	}
	return nil
}

// EnsureTenantSchema runs the per-tenant DDL under a schema-scoped
// advisory lock, so concurrent first-requests for the same unknown
// tenant don't race to create the same schema.
func EnsureTenantSchema(ctx context.Context, pool *pgxpool.Pool, schemaName string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgstore.EnsureTenantSchema: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	lockKey := advisoryLockKey(schemaName)
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey); err != nil {
		return fmt.Errorf("pgstore.EnsureTenantSchema: acquire lock: %w", err)
	}

	ddl := fmt.Sprintf(tenantSchemaSQLTemplate, schemaName)
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("pgstore.EnsureTenantSchema: apply DDL: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgstore.EnsureTenantSchema: commit: %w", err)
	}
	return nil
}

// advisoryLockKey derives a stable 64-bit lock key from a schema name
// using FNV-1a, so the lock is scoped to this one tenant's schema.
func advisoryLockKey(schemaName string) int64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	var h uint64 = offset64
	for i := 0; i < len(schemaName); i++ {
		h ^= uint64(schemaName[i])
		h *= prime64
	}
	return int64(h)
}
