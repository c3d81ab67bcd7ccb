package tenantrouter

import (
	"context"
	"errors"
	"testing"

	"github.com/connexus-ai/discovery-engine/internal/model"
)

func TestResolve_NoHeaderAndLegacyDisabledReturnsErrNoTenant(t *testing.T) {
	r := New(nil, nil, "docs", false, "")
	_, err := r.Resolve(context.Background(), "")
	var noTenant ErrNoTenant
	if !errors.As(err, &noTenant) {
		t.Errorf("Resolve() error = %v, want ErrNoTenant", err)
	}
}

func TestResolve_InvalidTenantIDIsRejected(t *testing.T) {
	r := New(nil, nil, "docs", false, "")
	_, err := r.Resolve(context.Background(), "has a space")
	if err == nil {
		t.Fatal("expected an error for an invalid tenant id")
	}
}

func TestResolve_CachesPreProvisionedBackends(t *testing.T) {
	r := New(nil, nil, "docs", false, "")
	want := &Backends{Tenant: model.Tenant{ID: "acme"}}
	r.cache.Store(model.TenantID("acme"), want)

	got, err := r.Resolve(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got != want {
		t.Error("Resolve() should return the cached Backends without calling provision")
	}
}

func TestResolve_EmptyHeaderFallsBackToLegacyTenant(t *testing.T) {
	r := New(nil, nil, "docs", true, "legacy")
	want := &Backends{Tenant: model.Tenant{ID: "legacy"}}
	r.cache.Store(model.TenantID("legacy"), want)

	got, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if got != want {
		t.Error("Resolve() should resolve the empty header to the legacy tenant's cached Backends")
	}
}
