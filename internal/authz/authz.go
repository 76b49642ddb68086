// Package authz restates permission checks as capability queries. The core
// never inspects role hierarchies; it asks the policy collaborator whether
// an actor holds a capability and treats the answer as final.
package authz

import (
	"context"
	"sync"

	dErrors "bitacora/pkg/domain-errors"
	"bitacora/pkg/requestcontext"
)

// Capability names one permission the audit core cares about.
type Capability string

const (
	CapModifyEvents       Capability = "audit:modify"
	CapDeleteEvents       Capability = "audit:delete"
	CapPurgeEvents        Capability = "audit:purge"
	CapExportSensitive    Capability = "audit:export_sensitive"
	CapConfigureAlerts    Capability = "audit:configure_alerts"
	CapConfigureRetention Capability = "audit:configure_retention"
)

// Authorizer answers capability queries. Implementations may consult an
// external policy service; the static implementation below serves tests and
// bootstrap configurations.
type Authorizer interface {
	Allow(ctx context.Context, actorID string, capability Capability) error
}

// Static grants capabilities from a fixed in-memory table.
type Static struct {
	mu     sync.RWMutex
	grants map[string]map[Capability]bool
}

func NewStatic() *Static {
	return &Static{grants: make(map[string]map[Capability]bool)}
}

// Grant gives an actor a capability.
func (s *Static) Grant(actorID string, capabilities ...Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grants[actorID] == nil {
		s.grants[actorID] = make(map[Capability]bool)
	}
	for _, c := range capabilities {
		s.grants[actorID][c] = true
	}
}

func (s *Static) Allow(_ context.Context, actorID string, capability Capability) error {
	if actorID == "" {
		return dErrors.New(dErrors.CodeForbidden, "actor identity is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.grants[actorID][capability] {
		return nil
	}
	return dErrors.Newf(dErrors.CodeForbidden, "actor lacks capability %s", capability)
}

var _ Authorizer = (*Static)(nil)

// AllowAll grants everything; useful in tests exercising the happy path.
type AllowAll struct{}

func (AllowAll) Allow(context.Context, string, Capability) error { return nil }

// Claims answers capability queries from the token claims the auth
// middleware stored in the request context.
type Claims struct{}

func (Claims) Allow(ctx context.Context, actorID string, capability Capability) error {
	if actorID == "" {
		return dErrors.New(dErrors.CodeForbidden, "actor identity is required")
	}
	for _, granted := range requestcontext.Capabilities(ctx) {
		if Capability(granted) == capability {
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeForbidden, "actor lacks capability %s", capability)
}

var _ Authorizer = Claims{}
