package retention

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bitacora/internal/audit"
	dErrors "bitacora/pkg/domain-errors"
)

// Registry is the process-wide retention policy map. Reads (ingestion,
// archival) and writes (configuration calls) interleave from concurrent
// goroutines, so the map is mutex-guarded. Durability comes from the
// backing PolicyStore: Upsert writes through synchronously and Load
// rebuilds the cache at startup.
type Registry struct {
	mu       sync.RWMutex
	policies map[Key]Policy

	store  PolicyStore
	logger *slog.Logger
}

type RegistryOption func(*Registry)

func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

func NewRegistry(store PolicyStore, opts ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, errors.New("policy store is required")
	}
	r := &Registry{
		policies: make(map[Key]Policy),
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Load rebuilds the in-memory cache from the durable store. Call at startup
// before serving ingestion.
func (r *Registry) Load(ctx context.Context) error {
	policies, err := r.store.FindAll(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load retention policies")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies = make(map[Key]Policy, len(policies))
	for _, p := range policies {
		r.policies[p.Key()] = p
	}
	return nil
}

// Resolve returns the registered policy for the pair, or the severity-only
// default when none exists. Resolution is deterministic for all pairs.
func (r *Registry) Resolve(category audit.Category, severity audit.Severity) Policy {
	r.mu.RLock()
	policy, ok := r.policies[Key{Category: category, Severity: severity}]
	r.mu.RUnlock()
	if ok {
		return policy
	}
	return DefaultPolicy(category, severity)
}

// Upsert validates and persists a policy, then refreshes the cache. The
// durable store is written first so a crash between the two steps loses
// only the cache, which Load rebuilds.
func (r *Registry) Upsert(ctx context.Context, policy Policy) (Policy, error) {
	if policy.Category == "" || policy.Severity == "" {
		return Policy{}, dErrors.New(dErrors.CodeValidation, "retention policy requires category and severity")
	}
	if policy.RetentionDays <= 0 {
		return Policy{}, dErrors.New(dErrors.CodeValidation, "retention_days must be positive")
	}
	if policy.HardDeleteAfterDays > 0 && policy.HardDeleteAfterDays < policy.RetentionDays {
		return Policy{}, dErrors.New(dErrors.CodePolicyConflict,
			"hard deletion cannot precede the retention window")
	}

	now := time.Now()
	r.mu.Lock()
	existing, ok := r.policies[policy.Key()]
	r.mu.Unlock()
	if ok {
		policy.ID = existing.ID
		policy.CreatedAt = existing.CreatedAt
	} else {
		policy.ID = uuid.New()
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now

	if err := r.store.Save(ctx, policy); err != nil {
		return Policy{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist retention policy")
	}

	r.mu.Lock()
	r.policies[policy.Key()] = policy
	r.mu.Unlock()

	r.logger.Info("retention policy upserted",
		"category", policy.Category,
		"severity", policy.Severity,
		"retention_days", policy.RetentionDays,
	)
	return policy, nil
}

// Snapshot returns a copy of every registered policy, for the archival pass.
func (r *Registry) Snapshot() []Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Policy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p)
	}
	return out
}
