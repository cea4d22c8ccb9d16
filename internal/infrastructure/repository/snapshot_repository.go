package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/complyvault/compliance-backend/internal/domain/compliance"
	"github.com/complyvault/compliance-backend/internal/infrastructure/database"
)

// SnapshotRepository persists compliance rollups and reads the assessment
// data they are computed from.
type SnapshotRepository struct {
	db database.Querier
}

// NewSnapshotRepository creates a snapshot repository.
func NewSnapshotRepository(db database.Querier) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Upsert writes a snapshot keyed by (organization, date, standard); a re-run
// for the same key supersedes the earlier row.
func (r *SnapshotRepository) Upsert(ctx context.Context, snapshot *compliance.Snapshot) error {
	query := `
		INSERT INTO compliance_snapshots (
			id, organization_id, snapshot_date, standard_id,
			total_requirements, fulfilled, partially_fulfilled, not_fulfilled,
			not_applicable, compliance_percentage, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (organization_id, snapshot_date, standard_id) DO UPDATE SET
			total_requirements = EXCLUDED.total_requirements,
			fulfilled = EXCLUDED.fulfilled,
			partially_fulfilled = EXCLUDED.partially_fulfilled,
			not_fulfilled = EXCLUDED.not_fulfilled,
			not_applicable = EXCLUDED.not_applicable,
			compliance_percentage = EXCLUDED.compliance_percentage,
			created_at = EXCLUDED.created_at`

	_, err := r.db.Exec(ctx, query,
		snapshot.ID, snapshot.OrganizationID, snapshot.SnapshotDate, snapshot.StandardID,
		snapshot.TotalRequirements, snapshot.Fulfilled, snapshot.PartiallyFulfilled,
		snapshot.NotFulfilled, snapshot.NotApplicable, snapshot.CompliancePercentage,
		snapshot.CreatedAt,
	)
	return WrapRepositoryError(err, "upsert compliance snapshot")
}

// ListByOrganization returns snapshots for the compliance dashboard, newest
// date first.
func (r *SnapshotRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, since time.Time) ([]*compliance.Snapshot, error) {
	query := `
		SELECT id, organization_id, snapshot_date, standard_id,
		       total_requirements, fulfilled, partially_fulfilled, not_fulfilled,
		       not_applicable, compliance_percentage, created_at
		FROM compliance_snapshots
		WHERE organization_id = $1 AND snapshot_date >= $2
		ORDER BY snapshot_date DESC, standard_id`

	rows, err := r.db.Query(ctx, query, orgID, since)
	if err != nil {
		return nil, WrapRepositoryError(err, "list compliance snapshots")
	}
	defer rows.Close()

	var snapshots []*compliance.Snapshot
	for rows.Next() {
		var s compliance.Snapshot
		err := rows.Scan(
			&s.ID, &s.OrganizationID, &s.SnapshotDate, &s.StandardID,
			&s.TotalRequirements, &s.Fulfilled, &s.PartiallyFulfilled, &s.NotFulfilled,
			&s.NotApplicable, &s.CompliancePercentage, &s.CreatedAt,
		)
		if err != nil {
			return nil, WrapRepositoryError(err, "scan compliance snapshot")
		}
		snapshots = append(snapshots, &s)
	}
	return snapshots, rows.Err()
}

// AssessedStandards returns the distinct standards that have at least one
// completed assessment for the organization.
func (r *SnapshotRepository) AssessedStandards(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT standard_id FROM assessments
		WHERE organization_id = $1 AND status = 'COMPLETED'`

	rows, err := r.db.Query(ctx, query, orgID)
	if err != nil {
		return nil, WrapRepositoryError(err, "assessed standards")
	}
	defer rows.Close()

	var standards []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, WrapRepositoryError(err, "scan standard id")
		}
		standards = append(standards, id)
	}
	return standards, rows.Err()
}

// RequirementStatusCounts tallies the organization's requirement fulfilment
// states for one standard.
func (r *SnapshotRepository) RequirementStatusCounts(ctx context.Context, orgID, standardID uuid.UUID) (compliance.StatusCounts, error) {
	query := `
		SELECT fulfilment_status, COUNT(*)
		FROM organization_requirements
		WHERE organization_id = $1 AND standard_id = $2
		GROUP BY fulfilment_status`

	rows, err := r.db.Query(ctx, query, orgID, standardID)
	if err != nil {
		return compliance.StatusCounts{}, WrapRepositoryError(err, "requirement status counts")
	}
	defer rows.Close()

	var counts compliance.StatusCounts
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return compliance.StatusCounts{}, WrapRepositoryError(err, "scan status count")
		}
		switch compliance.FulfilmentStatus(status) {
		case compliance.StatusFulfilled:
			counts.Fulfilled += n
		case compliance.StatusPartial:
			counts.Partial += n
		case compliance.StatusNotApplicable:
			counts.NotApplicable += n
		default:
			counts.NotFulfilled += n
		}
	}
	return counts, rows.Err()
}
