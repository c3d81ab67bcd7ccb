package handler

import "testing"

func TestCacheQueryKey_StableForEquivalentRequests(t *testing.T) {
	a := recommendRequest{Count: 5, IncludeProperties: true}
	b := recommendRequest{Count: 5, IncludeProperties: true}

	if cacheQueryKey(a) != cacheQueryKey(b) {
		t.Error("expected identical requests to produce the same cache query key")
	}
}

func TestCacheQueryKey_DiffersOnRequestFields(t *testing.T) {
	a := recommendRequest{Count: 5}
	b := recommendRequest{Count: 10}

	if cacheQueryKey(a) == cacheQueryKey(b) {
		t.Error("expected different requests to produce different cache query keys")
	}
}
