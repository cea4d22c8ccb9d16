package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/complyvault/compliance-backend/internal/domain/audit"
	"github.com/complyvault/compliance-backend/internal/infrastructure/database"
)

// RestoreHistoryRepository persists one immutable summary row per restore
// operation, independent of the RESTORE audit events it summarizes.
type RestoreHistoryRepository struct {
	db database.Querier
}

// NewRestoreHistoryRepository creates a restore history repository.
func NewRestoreHistoryRepository(db database.Querier) *RestoreHistoryRepository {
	return &RestoreHistoryRepository{db: db}
}

// Insert writes a restore history entry.
func (r *RestoreHistoryRepository) Insert(ctx context.Context, history *audit.RestoreHistory) error {
	summary, err := json.Marshal(history.ChangesSummary)
	if err != nil {
		return fmt.Errorf("marshaling changes summary: %w", err)
	}

	query := `
		INSERT INTO restore_history (
			id, organization_id, restored_by, restore_type, restore_point,
			affected_table, affected_records, reason, changes_summary, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		history.ID, history.OrganizationID, history.RestoredBy, history.RestoreType,
		history.RestorePoint, nullIfEmpty(history.AffectedTable), history.AffectedRecords,
		history.Reason, summary, history.CreatedAt,
	)
	return WrapRepositoryError(err, "insert restore history")
}

// ListByOrganization returns restore operations for the admin UI, newest
// first.
func (r *RestoreHistoryRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]*audit.RestoreHistory, error) {
	query := `
		SELECT id, organization_id, restored_by, restore_type, restore_point,
		       affected_table, affected_records, reason, changes_summary, created_at
		FROM restore_history
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, orgID, limitOrDefault(limit))
	if err != nil {
		return nil, WrapRepositoryError(err, "list restore history")
	}
	defer rows.Close()

	var entries []*audit.RestoreHistory
	for rows.Next() {
		var (
			entry         audit.RestoreHistory
			affectedTable *string
			summary       []byte
		)
		err := rows.Scan(
			&entry.ID, &entry.OrganizationID, &entry.RestoredBy, &entry.RestoreType,
			&entry.RestorePoint, &affectedTable, &entry.AffectedRecords, &entry.Reason,
			&summary, &entry.CreatedAt,
		)
		if err != nil {
			return nil, WrapRepositoryError(err, "scan restore history")
		}
		if affectedTable != nil {
			entry.AffectedTable = *affectedTable
		}
		if err := json.Unmarshal(summary, &entry.ChangesSummary); err != nil {
			return nil, fmt.Errorf("decoding changes summary: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
