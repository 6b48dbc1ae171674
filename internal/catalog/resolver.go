package catalog

import (
	"context"
	"errors"
	"sync"
)

// ProviderLookup resolves a provider name against the directory.
type ProviderLookup interface {
	ResolveProviderID(ctx context.Context, providerName string) (int64, error)
}

// CachingResolver memoizes provider lookups for the duration of one run.
// Create a new one per run so directory edits are picked up.
type CachingResolver struct {
	lookup ProviderLookup

	mu    sync.Mutex
	cache map[string]resolved
}

type resolved struct {
	id    int64
	found bool
}

// NewCachingResolver wraps lookup with a per-run cache.
func NewCachingResolver(lookup ProviderLookup) *CachingResolver {
	return &CachingResolver{lookup: lookup, cache: make(map[string]resolved)}
}

// Resolve returns the provider id and whether it exists. Lookup failures other
// than ErrNotFound are returned and not cached.
func (r *CachingResolver) Resolve(ctx context.Context, providerName string) (int64, bool, error) {
	key := NormalizeName(providerName)

	r.mu.Lock()
	hit, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return hit.id, hit.found, nil
	}

	id, err := r.lookup.ResolveProviderID(ctx, providerName)
	switch {
	case errors.Is(err, ErrNotFound):
		hit = resolved{}
	case err != nil:
		return 0, false, err
	default:
		hit = resolved{id: id, found: true}
	}

	r.mu.Lock()
	r.cache[key] = hit
	r.mu.Unlock()
	return hit.id, hit.found, nil
}
