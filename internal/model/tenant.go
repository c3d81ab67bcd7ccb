// Package model holds the core data types shared across storage, the CoI
// engine, the ingestion pipeline, and the recommender/search pipeline.
package model

import (
	"regexp"
	"time"
)

// tenantIDPattern matches spec's printable-ASCII tenant id grammar.
var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9_:@.\-]{1,50}$`)

// TenantID identifies an isolated logical workspace: its own relational
// schema and its own vector/keyword index namespace.
type TenantID string

// Valid reports whether t matches the lexical grammar [A-Za-z0-9_:@.-]{1,50}.
func (t TenantID) Valid() bool {
	return tenantIDPattern.MatchString(string(t))
}

func (t TenantID) String() string { return string(t) }

// Tenant is the management-schema record for a provisioned tenant.
type Tenant struct {
	ID          TenantID
	SchemaName  string
	EsIndexName string
	IsLegacy    bool
	CreatedAt   time.Time
}

// SchemaNameFor derives a safe Postgres schema name from a tenant id.
// Only called on tenant ids that already passed Valid(), so the result
// contains no characters that could break out of an identifier.
func SchemaNameFor(id TenantID) string {
	return "tenant_" + sanitizeIdent(string(id))
}

// IndexNameFor derives the Elasticsearch index name for a tenant, scoped
// under the configured index prefix.
func IndexNameFor(prefix string, id TenantID) string {
	if prefix == "" {
		prefix = "docs"
	}
	return prefix + "-" + sanitizeIdent(string(id))
}

// sanitizeIdent lowercases and replaces any character outside [a-z0-9_]
// with an underscore, so a TenantID can be safely embedded in a SQL
// identifier or index name.
func sanitizeIdent(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r-'A'+'a')
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
