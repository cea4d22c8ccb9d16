package restore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/complyvault/compliance-backend/internal/domain/audit"
	"github.com/complyvault/compliance-backend/internal/domain/errors"
	"github.com/complyvault/compliance-backend/internal/infrastructure/database"
	"github.com/complyvault/compliance-backend/internal/infrastructure/repository"
)

// FieldChange is one field a restore would rewrite.
type FieldChange struct {
	Field string      `json:"field"`
	From  interface{} `json:"from"`
	To    interface{} `json:"to"`
}

// RecordPreview describes what a record restore would do, without doing it.
type RecordPreview struct {
	TableName  string        `json:"table_name"`
	RecordID   string        `json:"record_id"`
	RestoredTo time.Time     `json:"restored_to"`
	Recreated  bool          `json:"recreated"`
	Changes    []FieldChange `json:"changes"`
}

// PlannedInversion is one step a session restore would take.
type PlannedInversion struct {
	TableName      string       `json:"table_name"`
	RecordID       string       `json:"record_id"`
	OriginalAction audit.Action `json:"original_action"`
	Inverse        string       `json:"inverse"`
	OccurredAt     time.Time    `json:"occurred_at"`
}

// SessionPreview lists the inversions a session restore would attempt, newest
// first, the order they would run in.
type SessionPreview struct {
	SessionID  string             `json:"session_id"`
	Inversions []PlannedInversion `json:"inversions"`
}

// Previewer computes restore outcomes read-only. Previews need membership but
// no step-up session; looking is cheaper to authorize than touching.
type Previewer struct {
	db       database.Querier
	records  RecordStore
	temporal TemporalEngine
	events   SessionEvents
	registry *Registry
	members  Memberships
	limit    int
	logger   *zap.Logger
}

// NewPreviewer wires a read-only restore previewer.
func NewPreviewer(
	db database.Querier,
	records RecordStore,
	temporal TemporalEngine,
	events SessionEvents,
	registry *Registry,
	members Memberships,
	limit int,
	logger *zap.Logger,
) *Previewer {
	return &Previewer{
		db:       db,
		records:  records,
		temporal: temporal,
		events:   events,
		registry: registry,
		members:  members,
		limit:    limit,
		logger:   logger.Named("preview"),
	}
}

// PreviewRecord diffs the live row against its state at the timestamp.
func (p *Previewer) PreviewRecord(ctx context.Context, orgID, actorID uuid.UUID, table, recordID string, ts time.Time) (*RecordPreview, error) {
	if err := p.authorize(ctx, orgID, actorID); err != nil {
		return nil, err
	}
	handler, err := p.registry.Handler(table)
	if err != nil {
		return nil, err
	}

	target, existed, err := p.temporal.StateAt(ctx, p.db, orgID, table, recordID, ts)
	if err != nil {
		return nil, err
	}
	if !existed || target == nil {
		return nil, errors.NewNoHistoryError(table, recordID)
	}
	coerced, err := handler.Coerce(target)
	if err != nil {
		return nil, err
	}

	preview := &RecordPreview{TableName: table, RecordID: recordID, RestoredTo: ts}

	current, err := p.records.Get(ctx, p.db, table, recordID, orgID)
	switch {
	case repository.IsNotFound(err):
		preview.Recreated = true
		current = nil
	case err != nil:
		return nil, errors.NewStorageError("reading live record").WithCause(err)
	}

	writable := coerced
	if !preview.Recreated {
		writable = writableFields(coerced, handler)
	}
	for _, field := range changedWritableFields(current, writable) {
		preview.Changes = append(preview.Changes, FieldChange{
			Field: field,
			From:  currentValue(current, field),
			To:    writable[field],
		})
	}
	return preview, nil
}

// PreviewSession lists the inversions a session restore would run.
func (p *Previewer) PreviewSession(ctx context.Context, orgID, actorID uuid.UUID, sessionID string) (*SessionPreview, error) {
	if err := p.authorize(ctx, orgID, actorID); err != nil {
		return nil, err
	}

	events, err := p.events.ListBySession(ctx, orgID, sessionID, p.limit)
	if err != nil {
		return nil, errors.NewStorageError("listing session changes").WithCause(err)
	}
	if len(events) == 0 {
		return nil, errors.NewNotFoundError("session activity")
	}

	preview := &SessionPreview{
		SessionID:  sessionID,
		Inversions: make([]PlannedInversion, 0, len(events)),
	}
	for _, event := range events {
		preview.Inversions = append(preview.Inversions, PlannedInversion{
			TableName:      event.TableName,
			RecordID:       event.RecordID,
			OriginalAction: event.Action,
			Inverse:        inverseOf(event.Action),
			OccurredAt:     event.CreatedAt,
		})
	}
	return preview, nil
}

func (p *Previewer) authorize(ctx context.Context, orgID, actorID uuid.UUID) error {
	member, err := p.members.IsActiveMember(ctx, orgID, actorID)
	if err != nil {
		return errors.NewStorageError("checking organization membership").WithCause(err)
	}
	if !member {
		return errors.NewAuthorizationError("actor is not an active member of this organization")
	}
	return nil
}

func inverseOf(action audit.Action) string {
	switch action {
	case audit.ActionInsert:
		return "delete"
	case audit.ActionUpdate:
		return "revert fields"
	case audit.ActionDelete:
		return "re-create"
	default:
		return "none"
	}
}

func currentValue(current audit.FieldMap, field string) interface{} {
	if current == nil {
		return nil
	}
	return current[field]
}
