package compiler

import (
	"context"
	"sync"
)

// Resolver is the cross-batch deduplication authority. Two mentions with the
// same canonical key must resolve to the same canonical entity even when
// they arrive in different batches or processes, so the resolver is expected
// to be backed by the store (insert-if-absent semantics) when batches share
// a graph. Implementations must serialize concurrent resolves for the same
// key.
type Resolver interface {
	// ResolveEntity records the canonical key and reports whether it already
	// existed in the running graph.
	ResolveEntity(ctx context.Context, entityType, normalizedKey string) (existed bool, err error)
}

// MemoryResolver is a process-local Resolver for single-writer runs and
// tests. Safe for concurrent use.
type MemoryResolver struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewMemoryResolver creates an empty in-memory resolver.
func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{seen: make(map[string]bool)}
}

// ResolveEntity implements Resolver.
func (r *MemoryResolver) ResolveEntity(_ context.Context, entityType, normalizedKey string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entityType + "\x1f" + normalizedKey
	if r.seen[key] {
		return true, nil
	}
	r.seen[key] = true
	return false, nil
}

// Len returns the number of distinct canonical keys seen.
func (r *MemoryResolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}
