// Package postgres implements the event store gateway on PostgreSQL.
// Events live in a single audit_events table; the structured payload is a
// JSONB column so category-specific fields stay schemaless.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"bitacora/internal/audit"
	"bitacora/internal/audit/store"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const eventColumns = `
	id, correlation_id, transaction_id, type, category, severity, state,
	description, detail, payload, actor_id, actor_name, tenant_id,
	timestamp, created_at, integrity_digest, requires_notification,
	compliance_critical, retention_days, archive, archived_at,
	modified_at, modified_by`

func (s *Store) Create(ctx context.Context, event audit.Event) error {
	payload, err := marshalPayload(event.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`
	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		event.CorrelationID,
		event.TransactionID,
		string(event.Type),
		string(event.Category),
		string(event.Severity),
		string(event.State),
		event.Description,
		event.Detail,
		payload,
		event.ActorID,
		event.ActorName,
		event.TenantID,
		event.Timestamp,
		event.CreatedAt,
		event.IntegrityDigest,
		event.RequiresNotification,
		event.ComplianceCritical,
		event.RetentionDays,
		event.Archive,
		event.ArchivedAt,
		event.ModifiedAt,
		event.ModifiedBy,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (audit.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM audit_events WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, id)

	event, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return audit.Event{}, store.ErrNotFound
		}
		return audit.Event{}, fmt.Errorf("query audit event: %w", err)
	}
	return event, nil
}

func (s *Store) FindMany(ctx context.Context, filter audit.Filter, page, pageSize int) (audit.Page, error) {
	page, pageSize = store.Normalize(page, pageSize)
	where, args := buildWhere(filter)

	total, err := s.countWhere(ctx, where, args)
	if err != nil {
		return audit.Page{}, err
	}

	query := `SELECT ` + eventColumns + ` FROM audit_events` + where +
		orderBy(filter) +
		fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return audit.Page{}, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return audit.Page{}, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return audit.Page{}, fmt.Errorf("iterate audit events: %w", err)
	}

	return audit.Page{
		Data:       events,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: store.TotalPages(total, pageSize),
	}, nil
}

func (s *Store) Count(ctx context.Context, filter audit.Filter) (int, error) {
	where, args := buildWhere(filter)
	return s.countWhere(ctx, where, args)
}

func (s *Store) countWhere(ctx context.Context, where string, args []any) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return total, nil
}

func (s *Store) Update(ctx context.Context, event audit.Event) error {
	payload, err := marshalPayload(event.Payload)
	if err != nil {
		return err
	}

	query := `
		UPDATE audit_events SET
			state = $2, description = $3, detail = $4, payload = $5,
			integrity_digest = $6, requires_notification = $7,
			retention_days = $8, archive = $9, archived_at = $10,
			modified_at = $11, modified_by = $12
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.State),
		event.Description,
		event.Detail,
		payload,
		event.IntegrityDigest,
		event.RequiresNotification,
		event.RetentionDays,
		event.Archive,
		event.ArchivedAt,
		event.ModifiedAt,
		event.ModifiedBy,
	)
	if err != nil {
		return fmt.Errorf("update audit event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update audit event: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// buildWhere translates a filter into a WHERE clause with $n placeholders.
// It mirrors audit.Filter.Matches; keep the two in sync.
func buildWhere(f audit.Filter) (string, []any) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Types) > 0 {
		conds = append(conds, "type = ANY("+arg(pq.Array(asStrings(f.Types)))+")")
	}
	if len(f.Categories) > 0 {
		conds = append(conds, "category = ANY("+arg(pq.Array(asStrings(f.Categories)))+")")
	}
	if len(f.Severities) > 0 {
		conds = append(conds, "severity = ANY("+arg(pq.Array(asStrings(f.Severities)))+")")
	}
	if f.State != "" {
		conds = append(conds, "state = "+arg(string(f.State)))
	}
	if f.ExcludeArchived {
		conds = append(conds, "state <> "+arg(string(audit.StateArchived)))
	}
	if len(f.ActorIDs) > 0 {
		conds = append(conds, "actor_id = ANY("+arg(pq.Array(f.ActorIDs))+")")
	}
	if f.TenantID != "" {
		conds = append(conds, "tenant_id = "+arg(f.TenantID))
	}
	if !f.From.IsZero() {
		conds = append(conds, "timestamp >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "timestamp <= "+arg(f.To))
	}
	if f.DescriptionContains != "" {
		conds = append(conds, "description ILIKE "+arg("%"+f.DescriptionContains+"%"))
	}
	if f.ComplianceCriticalOnly {
		conds = append(conds, "compliance_critical = TRUE")
	}
	if f.NotificationRequiredOnly {
		conds = append(conds, "requires_notification = TRUE")
	}
	if f.CorrelationID != "" {
		conds = append(conds, "correlation_id = "+arg(f.CorrelationID))
	}
	if f.TransactionID != "" {
		conds = append(conds, "transaction_id = "+arg(f.TransactionID))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderBy whitelists sortable columns so filter input can never inject SQL.
func orderBy(f audit.Filter) string {
	column := "timestamp"
	switch f.SortField {
	case "created_at", "severity":
		column = f.SortField
	}
	direction := "DESC"
	if f.SortDirection == audit.SortAsc {
		direction = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", column, direction)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (audit.Event, error) {
	var (
		event      audit.Event
		payload    []byte
		archivedAt sql.NullTime
		modifiedAt sql.NullTime
	)

	err := row.Scan(
		&event.ID,
		&event.CorrelationID,
		&event.TransactionID,
		(*string)(&event.Type),
		(*string)(&event.Category),
		(*string)(&event.Severity),
		(*string)(&event.State),
		&event.Description,
		&event.Detail,
		&payload,
		&event.ActorID,
		&event.ActorName,
		&event.TenantID,
		&event.Timestamp,
		&event.CreatedAt,
		&event.IntegrityDigest,
		&event.RequiresNotification,
		&event.ComplianceCritical,
		&event.RetentionDays,
		&event.Archive,
		&archivedAt,
		&modifiedAt,
		&event.ModifiedBy,
	)
	if err != nil {
		return audit.Event{}, err
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &event.Payload); err != nil {
			return audit.Event{}, fmt.Errorf("decode payload: %w", err)
		}
	}
	if archivedAt.Valid {
		t := archivedAt.Time
		event.ArchivedAt = &t
	}
	if modifiedAt.Valid {
		t := modifiedAt.Time
		event.ModifiedAt = &t
	}
	return event, nil
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return raw, nil
}

func asStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// Schema is the reference DDL for the audit_events table. Migrations own the
// real schema; this constant keeps tests and local setups self-contained.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id UUID PRIMARY KEY,
	correlation_id TEXT NOT NULL DEFAULT '',
	transaction_id TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	category TEXT NOT NULL,
	severity TEXT NOT NULL,
	state TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT '',
	payload JSONB,
	actor_id TEXT NOT NULL DEFAULT '',
	actor_name TEXT NOT NULL DEFAULT '',
	tenant_id TEXT NOT NULL DEFAULT '',
	timestamp TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	integrity_digest TEXT NOT NULL DEFAULT '',
	requires_notification BOOLEAN NOT NULL DEFAULT FALSE,
	compliance_critical BOOLEAN NOT NULL DEFAULT FALSE,
	retention_days INTEGER NOT NULL DEFAULT 0,
	archive BOOLEAN NOT NULL DEFAULT FALSE,
	archived_at TIMESTAMPTZ,
	modified_at TIMESTAMPTZ,
	modified_by TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events (timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_category_severity ON audit_events (category, severity);
CREATE INDEX IF NOT EXISTS idx_audit_events_correlation ON audit_events (correlation_id);
`
