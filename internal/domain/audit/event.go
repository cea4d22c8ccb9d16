package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/complyvault/compliance-backend/internal/domain/errors"
)

// Action classifies the mutation an audit event describes.
type Action string

const (
	ActionInsert  Action = "INSERT"
	ActionUpdate  Action = "UPDATE"
	ActionDelete  Action = "DELETE"
	ActionRestore Action = "RESTORE"
)

// IsValid reports whether the action is one of the four known kinds.
func (a Action) IsValid() bool {
	switch a {
	case ActionInsert, ActionUpdate, ActionDelete, ActionRestore:
		return true
	}
	return false
}

// Event is one immutable entry in the append-only change log. It is the sole
// source of truth for history; the live tables remain the system of record.
//
// For a fixed (TableName, RecordID) events are totally ordered by
// (CreatedAt, Seq): Seq is the insertion sequence assigned by storage and
// breaks wall-clock ties, so no two events are ever concurrent.
type Event struct {
	ID             uuid.UUID `json:"id"`
	Seq            int64     `json:"seq"`
	OrganizationID uuid.UUID `json:"organization_id"`

	TableName string `json:"table_name"`
	RecordID  string `json:"record_id"`
	Action    Action `json:"action"`

	// Full-record snapshots. OldValues is nil for INSERT, NewValues is nil
	// for DELETE; each snapshot is self-contained, never a partial diff.
	OldValues     FieldMap `json:"old_values,omitempty"`
	NewValues     FieldMap `json:"new_values,omitempty"`
	ChangedFields []string `json:"changed_fields,omitempty"`

	ActorID    uuid.UUID `json:"actor_id"`
	ActorEmail string    `json:"actor_email,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`

	ApplicationContext map[string]interface{} `json:"application_context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewEvent creates an audit event with validation. ChangedFields is derived
// from the snapshots; CreatedAt is set to now and Seq is assigned on insert.
func NewEvent(orgID uuid.UUID, table, recordID string, action Action, actorID uuid.UUID, oldValues, newValues FieldMap) (*Event, error) {
	if orgID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ORG_ID", "organization ID is required")
	}
	if table == "" {
		return nil, errors.NewValidationError("MISSING_TABLE", "table name is required")
	}
	if recordID == "" {
		return nil, errors.NewValidationError("MISSING_RECORD_ID", "record ID is required")
	}
	if !action.IsValid() {
		return nil, errors.NewValidationError("INVALID_ACTION", "action must be INSERT, UPDATE, DELETE or RESTORE")
	}
	if actorID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ACTOR_ID", "actor ID is required")
	}

	switch action {
	case ActionInsert:
		if oldValues != nil {
			return nil, errors.NewValidationError("UNEXPECTED_OLD_VALUES", "INSERT events carry no old values")
		}
		if newValues == nil {
			return nil, errors.NewValidationError("MISSING_NEW_VALUES", "INSERT events require new values")
		}
	case ActionDelete:
		if oldValues == nil {
			return nil, errors.NewValidationError("MISSING_OLD_VALUES", "DELETE events require old values")
		}
		if newValues != nil {
			return nil, errors.NewValidationError("UNEXPECTED_NEW_VALUES", "DELETE events carry no new values")
		}
	case ActionUpdate:
		if oldValues == nil || newValues == nil {
			return nil, errors.NewValidationError("MISSING_SNAPSHOTS", "UPDATE events require both snapshots")
		}
	case ActionRestore:
		// A restore may re-create a missing row (nil old) or remove one
		// while undoing an INSERT (nil new), but never neither.
		if oldValues == nil && newValues == nil {
			return nil, errors.NewValidationError("MISSING_SNAPSHOTS", "RESTORE events require at least one snapshot")
		}
	}

	return &Event{
		ID:             uuid.New(),
		OrganizationID: orgID,
		TableName:      table,
		RecordID:       recordID,
		Action:         action,
		OldValues:      oldValues.Clone(),
		NewValues:      newValues.Clone(),
		ChangedFields:  ChangedFields(oldValues, newValues),
		ActorID:        actorID,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// WithActorEmail attaches the actor's email for display in audit views.
func (e *Event) WithActorEmail(email string) *Event {
	e.ActorEmail = email
	return e
}

// WithSession attaches the logical user session the mutation belongs to.
func (e *Event) WithSession(sessionID string) *Event {
	e.SessionID = sessionID
	return e
}

// WithContext attaches free-form application metadata (e.g. restore reason).
func (e *Event) WithContext(ctx map[string]interface{}) *Event {
	e.ApplicationContext = ctx
	return e
}

// Before reports whether e precedes other in the per-record total order.
func (e *Event) Before(other *Event) bool {
	if e.CreatedAt.Equal(other.CreatedAt) {
		return e.Seq < other.Seq
	}
	return e.CreatedAt.Before(other.CreatedAt)
}

// Snapshot returns the record state this event establishes, or nil when the
// event removed the record. RESTORE snapshots are terminal states like any
// UPDATE.
func (e *Event) Snapshot() FieldMap {
	if e.Action == ActionDelete {
		return nil
	}
	return e.NewValues
}
