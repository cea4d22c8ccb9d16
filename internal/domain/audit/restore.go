package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/complyvault/compliance-backend/internal/domain/errors"
)

// RestoreType distinguishes the two restore operations.
type RestoreType string

const (
	RestoreTypeRecord  RestoreType = "RECORD"
	RestoreTypeSession RestoreType = "USER_SESSION"
)

// ItemError records one failed inversion inside a session restore. Failures
// here are recovered locally and never abort the batch.
type ItemError struct {
	TableName string `json:"table_name"`
	RecordID  string `json:"record_id"`
	Action    Action `json:"action"`
	Error     string `json:"error"`
}

// ChangesSummary aggregates the outcome of a restore for the audit UI.
type ChangesSummary struct {
	Attempted int         `json:"attempted"`
	Restored  int         `json:"restored"`
	Failed    int         `json:"failed"`
	Errors    []ItemError `json:"errors,omitempty"`
}

// Readable renders the summary as a single human-readable line.
func (s ChangesSummary) Readable() string {
	if s.Failed == 0 {
		return fmt.Sprintf("restored %d of %d changes", s.Restored, s.Attempted)
	}
	return fmt.Sprintf("restored %d of %d changes, %d failed", s.Restored, s.Attempted, s.Failed)
}

// RestoreHistory summarizes one restore operation. It is written once and
// never updated; the RESTORE audit events remain the detailed record.
type RestoreHistory struct {
	ID              uuid.UUID      `json:"id"`
	OrganizationID  uuid.UUID      `json:"organization_id"`
	RestoredBy      uuid.UUID      `json:"restored_by"`
	RestoreType     RestoreType    `json:"restore_type"`
	RestorePoint    time.Time      `json:"restore_point"`
	AffectedTable   string         `json:"affected_table,omitempty"`
	AffectedRecords []string       `json:"affected_records"`
	Reason          string         `json:"reason"`
	ChangesSummary  ChangesSummary `json:"changes_summary"`
	CreatedAt       time.Time      `json:"created_at"`
}

// NewRestoreHistory creates a restore history entry with validation.
func NewRestoreHistory(orgID, restoredBy uuid.UUID, restoreType RestoreType, restorePoint time.Time, reason string) (*RestoreHistory, error) {
	if orgID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ORG_ID", "organization ID is required")
	}
	if restoredBy == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ACTOR_ID", "restoring actor is required")
	}
	if restoreType != RestoreTypeRecord && restoreType != RestoreTypeSession {
		return nil, errors.NewValidationError("INVALID_RESTORE_TYPE", "restore type must be RECORD or USER_SESSION")
	}
	if reason == "" {
		return nil, errors.NewValidationError("MISSING_REASON", "restore reason is required")
	}

	return &RestoreHistory{
		ID:             uuid.New(),
		OrganizationID: orgID,
		RestoredBy:     restoredBy,
		RestoreType:    restoreType,
		RestorePoint:   restorePoint,
		Reason:         reason,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// RestorePoint is a detector-suggested rollback target: an hourly bucket with
// unusually high change volume. Derived on demand, never persisted; any
// timestamp is a valid restore target regardless of detection.
type RestorePoint struct {
	TimestampBucket time.Time `json:"timestamp_bucket"`
	ChangeCount     int       `json:"change_count"`
	AffectedTables  []string  `json:"affected_tables"`
	UsersInvolved   []string  `json:"users_involved"`
}

// ActivitySummary is one actor's change volume within a review window.
type ActivitySummary struct {
	ActorID      uuid.UUID `json:"actor_id"`
	ActorEmail   string    `json:"actor_email,omitempty"`
	ChangeCount  int       `json:"change_count"`
	SessionCount int       `json:"session_count"`
	Tables       []string  `json:"tables"`
	FirstChange  time.Time `json:"first_change"`
	LastChange   time.Time `json:"last_change"`
}
