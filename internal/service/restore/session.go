package restore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/complyvault/compliance-backend/internal/domain/audit"
	"github.com/complyvault/compliance-backend/internal/domain/errors"
	"github.com/complyvault/compliance-backend/internal/infrastructure/database"
	"github.com/complyvault/compliance-backend/internal/infrastructure/telemetry"
	auditsvc "github.com/complyvault/compliance-backend/internal/service/audit"
	"github.com/complyvault/compliance-backend/internal/service/stepup"
)

// SessionRestoreRequest asks to undo everything a user session changed.
type SessionRestoreRequest struct {
	OrganizationID  uuid.UUID
	ActorID         uuid.UUID
	StepUpSessionID string
	SessionID       string
	Reason          string
}

// SessionRestoreResult reports the inversion outcome per the whole batch.
type SessionRestoreResult struct {
	History *audit.RestoreHistory `json:"history"`
	Summary audit.ChangesSummary  `json:"summary"`
}

// SessionRestorer undoes a session's mutations by replaying them newest first
// and applying each one's inverse. Each inversion runs in its own transaction
// so one failed item, a conflicting insert or an already-deleted row, never
// blocks the rest of the batch.
type SessionRestorer struct {
	tx       database.TxRunner
	records  RecordStore
	events   SessionEvents
	recorder EventRecorder
	registry *Registry
	members  Memberships
	history  HistoryRepository
	gate     stepup.Gate
	risk     stepup.RiskLevel
	limit    int
	metrics  *telemetry.RestoreMetrics
	logger   *zap.Logger
}

// NewSessionRestorer wires a session restore executor. limit caps how many
// session events one restore will invert.
func NewSessionRestorer(
	tx database.TxRunner,
	records RecordStore,
	events SessionEvents,
	recorder EventRecorder,
	registry *Registry,
	members Memberships,
	history HistoryRepository,
	gate stepup.Gate,
	risk stepup.RiskLevel,
	limit int,
	metrics *telemetry.RestoreMetrics,
	logger *zap.Logger,
) *SessionRestorer {
	if metrics == nil {
		metrics = telemetry.NewNopRestoreMetrics()
	}
	return &SessionRestorer{
		tx:       tx,
		records:  records,
		events:   events,
		recorder: recorder,
		registry: registry,
		members:  members,
		history:  history,
		gate:     gate,
		risk:     risk,
		limit:    limit,
		metrics:  metrics,
		logger:   logger.Named("session_restore"),
	}
}

// Restore undoes the session's changes in reverse chronological order. When
// some items fail, the successes stand and the error is a PartialRestoreError
// carrying the per-item failures; the result is returned either way.
func (s *SessionRestorer) Restore(ctx context.Context, req SessionRestoreRequest) (*SessionRestoreResult, error) {
	start := time.Now()

	if err := s.authorize(ctx, req.OrganizationID, req.ActorID, req.StepUpSessionID); err != nil {
		s.metrics.RestoresTotal.WithLabelValues("session", "denied").Inc()
		return nil, err
	}

	events, err := s.events.ListBySession(ctx, req.OrganizationID, req.SessionID, s.limit)
	if err != nil {
		s.metrics.RestoresTotal.WithLabelValues("session", "failed").Inc()
		return nil, errors.NewStorageError("listing session changes").WithCause(err)
	}
	if len(events) == 0 {
		s.metrics.RestoresTotal.WithLabelValues("session", "rejected").Inc()
		return nil, errors.NewNotFoundError("session activity")
	}

	actorEmail, err := s.members.MemberEmail(ctx, req.OrganizationID, req.ActorID)
	if err != nil {
		return nil, errors.NewStorageError("looking up actor").WithCause(err)
	}

	summary := audit.ChangesSummary{Attempted: len(events)}
	affected := make(map[string]struct{}, len(events))
	for _, event := range events {
		if err := s.invert(ctx, req, actorEmail, event); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, audit.ItemError{
				TableName: event.TableName,
				RecordID:  event.RecordID,
				Action:    event.Action,
				Error:     err.Error(),
			})
			s.metrics.ItemsTotal.WithLabelValues("failed").Inc()
			s.logger.Warn("session change inversion failed",
				zap.String("session_id", req.SessionID),
				zap.String("table", event.TableName),
				zap.String("record_id", event.RecordID),
				zap.String("action", string(event.Action)),
				zap.Error(err),
			)
			continue
		}
		summary.Restored++
		affected[event.TableName+"/"+event.RecordID] = struct{}{}
		s.metrics.ItemsTotal.WithLabelValues("restored").Inc()
	}

	result := &SessionRestoreResult{Summary: summary}
	result.History = s.writeHistory(ctx, req, events, summary, affected)

	s.metrics.RestoreDuration.WithLabelValues("session").Observe(time.Since(start).Seconds())
	s.logger.Info("session restored",
		zap.String("session_id", req.SessionID),
		zap.Int("attempted", summary.Attempted),
		zap.Int("restored", summary.Restored),
		zap.Int("failed", summary.Failed),
	)

	if summary.Failed > 0 {
		s.metrics.RestoresTotal.WithLabelValues("session", "partial").Inc()
		err := errors.NewPartialRestoreError(summary.Attempted, summary.Failed)
		err.Details["errors"] = summary.Errors
		return result, err
	}
	s.metrics.RestoresTotal.WithLabelValues("session", "succeeded").Inc()
	return result, nil
}

// invert undoes one event in its own transaction: the inverse write and its
// RESTORE audit event commit or roll back together.
func (s *SessionRestorer) invert(ctx context.Context, req SessionRestoreRequest, actorEmail string, event *audit.Event) error {
	handler, err := s.registry.Handler(event.TableName)
	if err != nil {
		return err
	}

	return s.tx.RunTx(ctx, func(q database.Querier) error {
		var old, restored audit.FieldMap

		switch event.Action {
		case audit.ActionInsert:
			// Undo a creation by deleting the row.
			if err := s.records.Delete(ctx, q, event.TableName, event.RecordID, req.OrganizationID); err != nil {
				return err
			}
			old = event.NewValues

		case audit.ActionUpdate:
			coerced, err := handler.Coerce(event.OldValues)
			if err != nil {
				return err
			}
			patch := writableFields(coerced, handler)
			if err := s.records.Update(ctx, q, event.TableName, event.RecordID, req.OrganizationID, patch); err != nil {
				return err
			}
			old, restored = event.NewValues, coerced

		case audit.ActionDelete:
			// Undo a deletion by re-creating the row from its last snapshot.
			coerced, err := handler.Coerce(event.OldValues)
			if err != nil {
				return err
			}
			if err := s.records.Insert(ctx, q, event.TableName, coerced); err != nil {
				return err
			}
			restored = coerced

		default:
			return errors.NewValidationError("UNINVERTIBLE_ACTION",
				"only INSERT, UPDATE and DELETE events can be undone")
		}

		_, err := s.recorder.Record(ctx, q, auditsvc.ChangeRecord{
			OrganizationID: req.OrganizationID,
			TableName:      event.TableName,
			RecordID:       event.RecordID,
			Action:         audit.ActionRestore,
			ActorID:        req.ActorID,
			ActorEmail:     actorEmail,
			SessionID:      req.StepUpSessionID,
			OldValues:      old,
			NewValues:      restored,
			Context: map[string]interface{}{
				"restore_type":     string(audit.RestoreTypeSession),
				"restored_session": req.SessionID,
				"inverted_event":   event.ID.String(),
				"inverted_action":  string(event.Action),
				"restore_reason":   req.Reason,
			},
		})
		if err == nil {
			s.metrics.EventsRecorded.Inc()
		}
		return err
	})
}

func (s *SessionRestorer) authorize(ctx context.Context, orgID, actorID uuid.UUID, sessionID string) error {
	member, err := s.members.IsActiveMember(ctx, orgID, actorID)
	if err != nil {
		return errors.NewStorageError("checking organization membership").WithCause(err)
	}
	if !member {
		return errors.NewAuthorizationError("actor is not an active member of this organization")
	}

	if !s.risk.RequiresVerification() {
		return nil
	}
	ok, err := s.gate.Verify(ctx, sessionID, actorID, orgID)
	if err != nil || !ok {
		return errors.NewStepUpRequiredError(string(s.risk))
	}
	return nil
}

func (s *SessionRestorer) writeHistory(ctx context.Context, req SessionRestoreRequest, events []*audit.Event, summary audit.ChangesSummary, affected map[string]struct{}) *audit.RestoreHistory {
	// The restore point is the moment just before the session's first change.
	restorePoint := events[len(events)-1].CreatedAt

	history, err := audit.NewRestoreHistory(req.OrganizationID, req.ActorID, audit.RestoreTypeSession, restorePoint, req.Reason)
	if err != nil {
		s.logger.Error("restore history rejected", zap.Error(err))
		return nil
	}
	history.ChangesSummary = summary
	history.AffectedRecords = make([]string, 0, len(affected))
	for key := range affected {
		history.AffectedRecords = append(history.AffectedRecords, key)
	}
	sort.Strings(history.AffectedRecords)

	if err := s.history.Insert(ctx, history); err != nil {
		s.logger.Error("restore history write failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		return nil
	}
	return history
}
