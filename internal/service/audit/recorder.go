package audit

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainaudit "github.com/complyvault/compliance-backend/internal/domain/audit"
	"github.com/complyvault/compliance-backend/internal/domain/errors"
	"github.com/complyvault/compliance-backend/internal/infrastructure/database"
)

// ChangeRecord describes one domain mutation for the recorder. Actor, session
// and tenant are always explicit parameters, never ambient state.
type ChangeRecord struct {
	OrganizationID uuid.UUID
	TableName      string
	RecordID       string
	Action         domainaudit.Action
	ActorID        uuid.UUID
	ActorEmail     string
	SessionID      string
	OldValues      domainaudit.FieldMap
	NewValues      domainaudit.FieldMap
	Context        map[string]interface{}
}

// Recorder is the only writer of the audit log. Every domain write path calls
// it inside the mutation's own transaction, so an event is never missing for
// a committed mutation and never present for a rolled-back one.
type Recorder struct {
	events EventRepository
	logger *zap.Logger
}

// NewRecorder creates an event recorder.
func NewRecorder(events EventRepository, logger *zap.Logger) *Recorder {
	return &Recorder{
		events: events,
		logger: logger.Named("recorder"),
	}
}

// Record appends one immutable audit event on the given querier. A storage
// failure returns a StorageError; the caller must let it abort the enclosing
// mutation, because a mutation the system cannot audit must not be accepted.
func (r *Recorder) Record(ctx context.Context, q database.Querier, change ChangeRecord) (*domainaudit.Event, error) {
	event, err := domainaudit.NewEvent(
		change.OrganizationID, change.TableName, change.RecordID,
		change.Action, change.ActorID, change.OldValues, change.NewValues,
	)
	if err != nil {
		return nil, err
	}
	event.WithActorEmail(change.ActorEmail).
		WithSession(change.SessionID).
		WithContext(change.Context)

	if err := r.events.Insert(ctx, q, event); err != nil {
		r.logger.Error("audit event append failed",
			zap.String("table", change.TableName),
			zap.String("record_id", change.RecordID),
			zap.String("action", string(change.Action)),
			zap.Error(err),
		)
		return nil, errors.NewStorageError("appending audit event").WithCause(err)
	}

	r.logger.Debug("audit event appended",
		zap.String("event_id", event.ID.String()),
		zap.String("table", change.TableName),
		zap.String("record_id", change.RecordID),
		zap.String("action", string(change.Action)),
	)
	return event, nil
}
