package alert

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// RuleStore is the durable side of the rule registry. The engine's in-memory
// map is a cache rebuilt from the store at startup; every configuration
// change writes through synchronously.
type RuleStore interface {
	Save(ctx context.Context, rule Rule) error
	FindAll(ctx context.Context) ([]Rule, error)
}

// InMemoryRuleStore backs the engine in tests and single-process
// deployments.
type InMemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[uuid.UUID]Rule
}

func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{rules: make(map[uuid.UUID]Rule)}
}

func (s *InMemoryRuleStore) Save(_ context.Context, rule Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = rule
	return nil
}

func (s *InMemoryRuleStore) FindAll(_ context.Context) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	return out, nil
}

var _ RuleStore = (*InMemoryRuleStore)(nil)
