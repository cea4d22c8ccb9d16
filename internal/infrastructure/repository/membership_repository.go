package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/complyvault/compliance-backend/internal/infrastructure/database"
)

// MembershipRepository answers the engine's authorization boundary question:
// is this actor an active member of this organization. Every entry point
// checks it before touching any data.
type MembershipRepository struct {
	db database.Querier
}

// NewMembershipRepository creates a membership repository.
func NewMembershipRepository(db database.Querier) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// IsActiveMember reports whether the user holds an active membership in the
// organization.
func (r *MembershipRepository) IsActiveMember(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM org_members
			WHERE organization_id = $1 AND user_id = $2 AND status = 'ACTIVE'
		)`

	if err := r.db.QueryRow(ctx, query, orgID, userID).Scan(&exists); err != nil {
		return false, WrapRepositoryError(err, "membership check")
	}
	return exists, nil
}

// MemberEmail returns the member's email for audit event attribution, or the
// empty string when no membership row exists.
func (r *MembershipRepository) MemberEmail(ctx context.Context, orgID, userID uuid.UUID) (string, error) {
	var email string
	query := `
		SELECT email FROM org_members
		WHERE organization_id = $1 AND user_id = $2`

	err := r.db.QueryRow(ctx, query, orgID, userID).Scan(&email)
	if IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", WrapRepositoryError(err, "member email")
	}
	return email, nil
}

// ActiveOrganizations lists every organization with at least one active
// member; the scheduled snapshot run iterates these.
func (r *MembershipRepository) ActiveOrganizations(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT organization_id FROM org_members
		WHERE status = 'ACTIVE'`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, WrapRepositoryError(err, "active organizations")
	}
	defer rows.Close()

	var orgs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, WrapRepositoryError(err, "scan organization id")
		}
		orgs = append(orgs, id)
	}
	return orgs, rows.Err()
}
