package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/complyvault/compliance-backend/internal/domain/audit"
	"github.com/complyvault/compliance-backend/internal/infrastructure/database"
)

// AuditEventRepository persists the append-only change log. Events are only
// ever inserted; there is no update or delete path by design.
type AuditEventRepository struct {
	db database.Querier
}

// NewAuditEventRepository creates an audit event repository bound to a pool.
func NewAuditEventRepository(db database.Querier) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

const auditEventColumns = `id, seq, organization_id, table_name, record_id, action,
	old_values, new_values, changed_fields, actor_id, actor_email, session_id,
	application_context, created_at`

// Insert appends one event. It runs on the passed querier so the recorder can
// join the transaction of the mutation it describes; the assigned insertion
// sequence is read back into the event.
func (r *AuditEventRepository) Insert(ctx context.Context, q database.Querier, event *audit.Event) error {
	oldValues, err := audit.MarshalFields(event.OldValues)
	if err != nil {
		return fmt.Errorf("marshaling old values: %w", err)
	}
	newValues, err := audit.MarshalFields(event.NewValues)
	if err != nil {
		return fmt.Errorf("marshaling new values: %w", err)
	}
	var appContext []byte
	if event.ApplicationContext != nil {
		if appContext, err = json.Marshal(event.ApplicationContext); err != nil {
			return fmt.Errorf("marshaling application context: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			id, organization_id, table_name, record_id, action,
			old_values, new_values, changed_fields, actor_id, actor_email,
			session_id, application_context, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING seq`

	err = q.QueryRow(ctx, query,
		event.ID, event.OrganizationID, event.TableName, event.RecordID, event.Action,
		oldValues, newValues, event.ChangedFields, event.ActorID, nullIfEmpty(event.ActorEmail),
		nullIfEmpty(event.SessionID), appContext, event.CreatedAt,
	).Scan(&event.Seq)
	if err != nil {
		return WrapRepositoryError(err, "insert audit event")
	}
	return nil
}

// LatestAt returns the newest event for (table, recordID) with
// (created_at, seq) not exceeding ts, scoped to the organization. Returns
// ErrNotFound when the record has no history at or before ts.
func (r *AuditEventRepository) LatestAt(ctx context.Context, q database.Querier, orgID uuid.UUID, table, recordID string, ts time.Time) (*audit.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_events
		WHERE organization_id = $1 AND table_name = $2 AND record_id = $3
		  AND created_at <= $4
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`, auditEventColumns)

	row := q.QueryRow(ctx, query, orgID, table, recordID, ts)
	event, err := scanEvent(row)
	if err != nil {
		return nil, WrapRepositoryError(err, "latest audit event at timestamp")
	}
	return event, nil
}

// ListByRecord returns a record's full history, oldest first.
func (r *AuditEventRepository) ListByRecord(ctx context.Context, orgID uuid.UUID, table, recordID string, limit int) ([]*audit.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_events
		WHERE organization_id = $1 AND table_name = $2 AND record_id = $3
		ORDER BY created_at ASC, seq ASC
		LIMIT $4`, auditEventColumns)

	rows, err := r.db.Query(ctx, query, orgID, table, recordID, limitOrDefault(limit))
	if err != nil {
		return nil, WrapRepositoryError(err, "list audit events by record")
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListBySession returns a session's events newest first, the order session
// restore needs for correct inversion. RESTORE events are excluded: an undo
// must never treat a previous undo as a domain change.
func (r *AuditEventRepository) ListBySession(ctx context.Context, orgID uuid.UUID, sessionID string, limit int) ([]*audit.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_events
		WHERE organization_id = $1 AND session_id = $2 AND action <> $3
		ORDER BY created_at DESC, seq DESC
		LIMIT $4`, auditEventColumns)

	rows, err := r.db.Query(ctx, query, orgID, sessionID, audit.ActionRestore, limitOrDefault(limit))
	if err != nil {
		return nil, WrapRepositoryError(err, "list audit events by session")
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListSince returns all of an organization's events from the given time
// onward, oldest first. The restore-point detector buckets these in memory.
func (r *AuditEventRepository) ListSince(ctx context.Context, orgID uuid.UUID, since time.Time, limit int) ([]*audit.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_events
		WHERE organization_id = $1 AND created_at >= $2
		ORDER BY created_at ASC, seq ASC
		LIMIT $3`, auditEventColumns)

	if limit <= 0 {
		limit = 10000
	}
	rows, err := r.db.Query(ctx, query, orgID, since, limit)
	if err != nil {
		return nil, WrapRepositoryError(err, "list audit events since")
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ActivitySummaries aggregates per-actor change and session counts within the
// review window, busiest actors first.
func (r *AuditEventRepository) ActivitySummaries(ctx context.Context, orgID uuid.UUID, start, end time.Time) ([]audit.ActivitySummary, error) {
	query := `
		SELECT actor_id,
		       COALESCE(MAX(actor_email), '') AS actor_email,
		       COUNT(*) AS change_count,
		       COUNT(DISTINCT session_id) FILTER (WHERE session_id IS NOT NULL) AS session_count,
		       array_agg(DISTINCT table_name) AS tables,
		       MIN(created_at) AS first_change,
		       MAX(created_at) AS last_change
		FROM audit_events
		WHERE organization_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY actor_id
		ORDER BY change_count DESC`

	rows, err := r.db.Query(ctx, query, orgID, start, end)
	if err != nil {
		return nil, WrapRepositoryError(err, "activity summaries")
	}
	defer rows.Close()

	var summaries []audit.ActivitySummary
	for rows.Next() {
		var s audit.ActivitySummary
		if err := rows.Scan(&s.ActorID, &s.ActorEmail, &s.ChangeCount, &s.SessionCount, &s.Tables, &s.FirstChange, &s.LastChange); err != nil {
			return nil, WrapRepositoryError(err, "scan activity summary")
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func scanEvent(row pgx.Row) (*audit.Event, error) {
	var (
		event      audit.Event
		oldValues  []byte
		newValues  []byte
		appContext []byte
		actorEmail *string
		sessionID  *string
	)

	err := row.Scan(
		&event.ID, &event.Seq, &event.OrganizationID, &event.TableName, &event.RecordID,
		&event.Action, &oldValues, &newValues, &event.ChangedFields, &event.ActorID,
		&actorEmail, &sessionID, &appContext, &event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if event.OldValues, err = audit.UnmarshalFields(oldValues); err != nil {
		return nil, fmt.Errorf("decoding old values: %w", err)
	}
	if event.NewValues, err = audit.UnmarshalFields(newValues); err != nil {
		return nil, fmt.Errorf("decoding new values: %w", err)
	}
	if len(appContext) > 0 {
		if err := json.Unmarshal(appContext, &event.ApplicationContext); err != nil {
			return nil, fmt.Errorf("decoding application context: %w", err)
		}
	}
	if actorEmail != nil {
		event.ActorEmail = *actorEmail
	}
	if sessionID != nil {
		event.SessionID = *sessionID
	}
	return &event, nil
}

func scanEvents(rows pgx.Rows) ([]*audit.Event, error) {
	var events []*audit.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, WrapRepositoryError(err, "scan audit event")
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 500
	}
	return limit
}
