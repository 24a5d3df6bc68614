// Package auth verifies bearer tokens against a JWKS endpoint and resolves
// them to family members.
package auth

import (
	"context"
	"sync"
	"time"
)

// Principal is the authenticated family member attached to a request.
type Principal struct {
	UserID    string
	FamilyID  string
	FirstName string
}

type ctxKey int

const principalKey ctxKey = 1

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

type memoEntry[V any] struct {
	val V
	exp time.Time
}

// memo is a small in-process TTL map for verified tokens.
type memo[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]memoEntry[V]
}

func newMemo[K comparable, V any]() *memo[K, V] {
	return &memo[K, V]{data: make(map[K]memoEntry[V])}
}

func (m *memo[K, V]) Get(k K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[k]
	if !ok || time.Now().After(e.exp) {
		var zero V
		return zero, false
	}
	return e.val, true
}

func (m *memo[K, V]) Set(k K, v V, exp time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[k] = memoEntry[V]{val: v, exp: exp}
}
