package retention

import (
	"context"
	"sync"
)

// PolicyStore is the durable side of the registry. The in-memory map in
// Registry is a cache, not the source of truth: every change goes through
// the store synchronously and the registry reloads from it at startup.
type PolicyStore interface {
	Save(ctx context.Context, policy Policy) error
	FindAll(ctx context.Context) ([]Policy, error)
}

// InMemoryPolicyStore backs the registry in tests and single-process
// deployments without durable configuration.
type InMemoryPolicyStore struct {
	mu       sync.RWMutex
	policies map[Key]Policy
}

func NewInMemoryPolicyStore() *InMemoryPolicyStore {
	return &InMemoryPolicyStore{policies: make(map[Key]Policy)}
}

func (s *InMemoryPolicyStore) Save(_ context.Context, policy Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policy.Key()] = policy
	return nil
}

func (s *InMemoryPolicyStore) FindAll(_ context.Context) ([]Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	return out, nil
}

var _ PolicyStore = (*InMemoryPolicyStore)(nil)
