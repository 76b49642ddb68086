// Package postgres persists retention policies so the registry survives
// restarts. One row per (category, severity) pair.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"bitacora/internal/retention"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Save(ctx context.Context, policy retention.Policy) error {
	criteria, err := marshalCriteria(policy.Criteria)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO retention_policies (
			id, category, severity, retention_days, auto_archive,
			compress_on_archive, hard_delete_after_days,
			exempt_compliance_critical, criteria, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (category, severity) DO UPDATE SET
			retention_days = EXCLUDED.retention_days,
			auto_archive = EXCLUDED.auto_archive,
			compress_on_archive = EXCLUDED.compress_on_archive,
			hard_delete_after_days = EXCLUDED.hard_delete_after_days,
			exempt_compliance_critical = EXCLUDED.exempt_compliance_critical,
			criteria = EXCLUDED.criteria,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		policy.ID,
		string(policy.Category),
		string(policy.Severity),
		policy.RetentionDays,
		policy.AutoArchive,
		policy.CompressOnArchive,
		policy.HardDeleteAfterDays,
		policy.ExemptComplianceCritical,
		criteria,
		policy.CreatedAt,
		policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("persist retention policy: %w", err)
	}
	return nil
}

func (s *Store) FindAll(ctx context.Context) ([]retention.Policy, error) {
	query := `
		SELECT id, category, severity, retention_days, auto_archive,
			compress_on_archive, hard_delete_after_days,
			exempt_compliance_critical, criteria, created_at, updated_at
		FROM retention_policies
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query retention policies: %w", err)
	}
	defer rows.Close()

	var policies []retention.Policy
	for rows.Next() {
		var (
			policy   retention.Policy
			criteria []byte
		)
		err := rows.Scan(
			&policy.ID,
			(*string)(&policy.Category),
			(*string)(&policy.Severity),
			&policy.RetentionDays,
			&policy.AutoArchive,
			&policy.CompressOnArchive,
			&policy.HardDeleteAfterDays,
			&policy.ExemptComplianceCritical,
			&criteria,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan retention policy: %w", err)
		}
		if len(criteria) > 0 {
			if err := json.Unmarshal(criteria, &policy.Criteria); err != nil {
				return nil, fmt.Errorf("decode policy criteria: %w", err)
			}
		}
		policies = append(policies, policy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retention policies: %w", err)
	}
	return policies, nil
}

func marshalCriteria(criteria map[string]any) ([]byte, error) {
	if len(criteria) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(criteria)
	if err != nil {
		return nil, fmt.Errorf("marshal policy criteria: %w", err)
	}
	return raw, nil
}

var _ retention.PolicyStore = (*Store)(nil)

// Schema is the reference DDL for the retention_policies table.
const Schema = `
CREATE TABLE IF NOT EXISTS retention_policies (
	id UUID PRIMARY KEY,
	category TEXT NOT NULL,
	severity TEXT NOT NULL,
	retention_days INTEGER NOT NULL,
	auto_archive BOOLEAN NOT NULL DEFAULT TRUE,
	compress_on_archive BOOLEAN NOT NULL DEFAULT FALSE,
	hard_delete_after_days INTEGER NOT NULL DEFAULT 0,
	exempt_compliance_critical BOOLEAN NOT NULL DEFAULT TRUE,
	criteria JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (category, severity)
);
`
