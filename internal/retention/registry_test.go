package retention

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bitacora/internal/audit"
	dErrors "bitacora/pkg/domain-errors"
)

// =============================================================================
// Retention Registry Test Suite
// =============================================================================
// Justification for unit tests: resolution must be deterministic for every
// (category, severity) pair, registered or not, and the policy-conflict rules
// guard legal retention windows. Both are pure registry behavior.

type RegistrySuite struct {
	suite.Suite
	store    *InMemoryPolicyStore
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.store = NewInMemoryPolicyStore()

	var err error
	s.registry, err = NewRegistry(s.store)
	s.Require().NoError(err)
}

func (s *RegistrySuite) TestResolve_Defaults() {
	s.Run("unregistered pair falls back to severity default", func() {
		policy := s.registry.Resolve(audit.CategoryAuthentication, audit.SeverityInfo)
		s.Equal(90, policy.RetentionDays)
		s.True(policy.AutoArchive)
		s.True(policy.ExemptComplianceCritical)
	})

	s.Run("severity table drives the fallback window", func() {
		cases := map[audit.Severity]int{
			audit.SeverityCritical: 2555,
			audit.SeverityError:    365,
			audit.SeverityWarning:  180,
			audit.SeverityInfo:     90,
			audit.SeverityDebug:    30,
		}
		for severity, days := range cases {
			policy := s.registry.Resolve(audit.CategorySystem, severity)
			s.Equal(days, policy.RetentionDays, "severity %s", severity)
		}
	})

	s.Run("unknown severity gets the info window", func() {
		policy := s.registry.Resolve(audit.CategorySystem, audit.Severity("bogus"))
		s.Equal(90, policy.RetentionDays)
	})

	s.Run("resolution is deterministic", func() {
		first := s.registry.Resolve(audit.CategorySecurity, audit.SeverityError)
		second := s.registry.Resolve(audit.CategorySecurity, audit.SeverityError)
		s.Equal(first, second)
	})
}

func (s *RegistrySuite) TestUpsert() {
	ctx := context.Background()

	s.Run("registered policy overrides the default", func() {
		_, err := s.registry.Upsert(ctx, Policy{
			Category:      audit.CategorySecurity,
			Severity:      audit.SeverityWarning,
			RetentionDays: 730,
			AutoArchive:   true,
		})
		s.Require().NoError(err)

		policy := s.registry.Resolve(audit.CategorySecurity, audit.SeverityWarning)
		s.Equal(730, policy.RetentionDays)
	})

	s.Run("missing category or severity is rejected", func() {
		_, err := s.registry.Upsert(ctx, Policy{Severity: audit.SeverityInfo, RetentionDays: 10})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.registry.Upsert(ctx, Policy{Category: audit.CategorySystem, RetentionDays: 10})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("non-positive retention is rejected", func() {
		_, err := s.registry.Upsert(ctx, Policy{
			Category: audit.CategorySystem,
			Severity: audit.SeverityInfo,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("hard deletion inside the retention window is a policy conflict", func() {
		_, err := s.registry.Upsert(ctx, Policy{
			Category:            audit.CategorySystem,
			Severity:            audit.SeverityInfo,
			RetentionDays:       365,
			HardDeleteAfterDays: 30,
		})
		s.True(dErrors.HasCode(err, dErrors.CodePolicyConflict))
	})

	s.Run("re-upserting the same pair preserves identity", func() {
		first, err := s.registry.Upsert(ctx, Policy{
			Category:      audit.CategoryCompliance,
			Severity:      audit.SeverityCritical,
			RetentionDays: 2555,
		})
		s.Require().NoError(err)
		s.NotEqual(uuid.Nil, first.ID)

		second, err := s.registry.Upsert(ctx, Policy{
			Category:      audit.CategoryCompliance,
			Severity:      audit.SeverityCritical,
			RetentionDays: 3650,
		})
		s.Require().NoError(err)
		s.Equal(first.ID, second.ID)
		s.Equal(first.CreatedAt, second.CreatedAt)
		s.Equal(3650, second.RetentionDays)
	})
}

func (s *RegistrySuite) TestLoad() {
	ctx := context.Background()

	_, err := s.registry.Upsert(ctx, Policy{
		Category:      audit.CategoryUsers,
		Severity:      audit.SeverityInfo,
		RetentionDays: 45,
	})
	s.Require().NoError(err)

	// A fresh registry over the same store sees the persisted policy.
	fresh, err := NewRegistry(s.store)
	s.Require().NoError(err)
	s.Require().NoError(fresh.Load(ctx))

	policy := fresh.Resolve(audit.CategoryUsers, audit.SeverityInfo)
	s.Equal(45, policy.RetentionDays)
}
