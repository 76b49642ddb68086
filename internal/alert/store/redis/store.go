// Package redis mirrors the alert rule registry into Redis so a restarted
// process reloads its configuration instead of starting empty.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"bitacora/internal/alert"
)

const rulesKey = "bitacora:alert_rules"

// Store persists alert rules as JSON values in a Redis hash keyed by rule ID.
type Store struct {
	client *goredis.Client
}

func New(client *goredis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Save(ctx context.Context, rule alert.Rule) error {
	raw, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshal alert rule: %w", err)
	}
	if err := s.client.HSet(ctx, rulesKey, rule.ID.String(), raw).Err(); err != nil {
		return fmt.Errorf("persist alert rule: %w", err)
	}
	return nil
}

func (s *Store) FindAll(ctx context.Context) ([]alert.Rule, error) {
	entries, err := s.client.HGetAll(ctx, rulesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load alert rules: %w", err)
	}

	rules := make([]alert.Rule, 0, len(entries))
	for id, raw := range entries {
		var rule alert.Rule
		if err := json.Unmarshal([]byte(raw), &rule); err != nil {
			return nil, fmt.Errorf("decode alert rule %s: %w", id, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

var _ alert.RuleStore = (*Store)(nil)
