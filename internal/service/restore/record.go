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
	"github.com/complyvault/compliance-backend/internal/infrastructure/telemetry"
	auditsvc "github.com/complyvault/compliance-backend/internal/service/audit"
	"github.com/complyvault/compliance-backend/internal/service/stepup"
)

// RecordRestoreRequest asks to roll one record back to its state at a point
// in time.
type RecordRestoreRequest struct {
	OrganizationID  uuid.UUID
	ActorID         uuid.UUID
	StepUpSessionID string
	TableName       string
	RecordID        string
	Timestamp       time.Time
	Reason          string
}

// RecordRestoreResult reports what a record restore did.
type RecordRestoreResult struct {
	History       *audit.RestoreHistory `json:"history"`
	RestoredTo    time.Time             `json:"restored_to"`
	Recreated     bool                  `json:"recreated"`
	ChangedFields []string              `json:"changed_fields"`
}

// RecordRestorer rolls a single record back to a historical state inside one
// transaction: reconstruct, write, and append the RESTORE audit event
// together, so a half-applied restore cannot be observed.
type RecordRestorer struct {
	tx       database.TxRunner
	records  RecordStore
	temporal TemporalEngine
	recorder EventRecorder
	registry *Registry
	members  Memberships
	history  HistoryRepository
	gate     stepup.Gate
	risk     stepup.RiskLevel
	metrics  *telemetry.RestoreMetrics
	logger   *zap.Logger
}

// NewRecordRestorer wires a record restore executor.
func NewRecordRestorer(
	tx database.TxRunner,
	records RecordStore,
	temporal TemporalEngine,
	recorder EventRecorder,
	registry *Registry,
	members Memberships,
	history HistoryRepository,
	gate stepup.Gate,
	risk stepup.RiskLevel,
	metrics *telemetry.RestoreMetrics,
	logger *zap.Logger,
) *RecordRestorer {
	if metrics == nil {
		metrics = telemetry.NewNopRestoreMetrics()
	}
	return &RecordRestorer{
		tx:       tx,
		records:  records,
		temporal: temporal,
		recorder: recorder,
		registry: registry,
		members:  members,
		history:  history,
		gate:     gate,
		risk:     risk,
		metrics:  metrics,
		logger:   logger.Named("record_restore"),
	}
}

// Restore executes the record restore. The actor must be an active member of
// the organization and, above low risk, hold a satisfied step-up session
// bound to them.
func (r *RecordRestorer) Restore(ctx context.Context, req RecordRestoreRequest) (*RecordRestoreResult, error) {
	start := time.Now()

	if err := r.authorize(ctx, req.OrganizationID, req.ActorID, req.StepUpSessionID); err != nil {
		r.metrics.RestoresTotal.WithLabelValues("record", "denied").Inc()
		return nil, err
	}

	handler, err := r.registry.Handler(req.TableName)
	if err != nil {
		r.metrics.RestoresTotal.WithLabelValues("record", "rejected").Inc()
		return nil, err
	}

	actorEmail, err := r.members.MemberEmail(ctx, req.OrganizationID, req.ActorID)
	if err != nil {
		return nil, errors.NewStorageError("looking up actor").WithCause(err)
	}

	result := &RecordRestoreResult{RestoredTo: req.Timestamp}

	err = r.tx.RunTx(ctx, func(q database.Querier) error {
		target, existed, err := r.temporal.StateAt(ctx, q, req.OrganizationID, req.TableName, req.RecordID, req.Timestamp)
		if err != nil {
			return err
		}
		if !existed || target == nil {
			return errors.NewNoHistoryError(req.TableName, req.RecordID)
		}

		coerced, err := handler.Coerce(target)
		if err != nil {
			return err
		}

		current, err := r.records.Get(ctx, q, req.TableName, req.RecordID, req.OrganizationID)
		switch {
		case repository.IsNotFound(err):
			// The row was deleted after the restore point; re-create it
			// from the snapshot verbatim, identity fields included.
			if err := r.records.Insert(ctx, q, req.TableName, coerced); err != nil {
				return errors.NewStorageError("re-creating record").WithCause(err)
			}
			result.Recreated = true
			result.ChangedFields = sortedFieldNames(coerced)
			return r.recordEvent(ctx, q, req, actorEmail, nil, coerced)
		case err != nil:
			return errors.NewStorageError("reading live record").WithCause(err)
		}

		writable := writableFields(coerced, handler)
		changed := changedWritableFields(current, writable)
		if len(changed) == 0 {
			// Already at the target state; nothing to write, but the trail
			// still gets a RESTORE event (old equal to new) so the history
			// row it corroborates is never orphaned.
			result.ChangedFields = []string{}
			return r.recordEvent(ctx, q, req, actorEmail, current, current)
		}

		patch := make(audit.FieldMap, len(changed))
		for _, field := range changed {
			patch[field] = writable[field]
		}
		if err := r.records.Update(ctx, q, req.TableName, req.RecordID, req.OrganizationID, patch); err != nil {
			return errors.NewStorageError("writing restored record").WithCause(err)
		}
		result.ChangedFields = changed
		return r.recordEvent(ctx, q, req, actorEmail, current, coerced)
	})
	if err != nil {
		r.metrics.RestoresTotal.WithLabelValues("record", "failed").Inc()
		return nil, err
	}

	result.History = r.writeHistory(ctx, req, result)

	r.metrics.RestoresTotal.WithLabelValues("record", "succeeded").Inc()
	r.metrics.RestoreDuration.WithLabelValues("record").Observe(time.Since(start).Seconds())
	r.logger.Info("record restored",
		zap.String("table", req.TableName),
		zap.String("record_id", req.RecordID),
		zap.Time("restored_to", req.Timestamp),
		zap.Int("changed_fields", len(result.ChangedFields)),
		zap.Bool("recreated", result.Recreated),
	)
	return result, nil
}

func (r *RecordRestorer) authorize(ctx context.Context, orgID, actorID uuid.UUID, sessionID string) error {
	member, err := r.members.IsActiveMember(ctx, orgID, actorID)
	if err != nil {
		return errors.NewStorageError("checking organization membership").WithCause(err)
	}
	if !member {
		return errors.NewAuthorizationError("actor is not an active member of this organization")
	}

	if !r.risk.RequiresVerification() {
		return nil
	}
	ok, err := r.gate.Verify(ctx, sessionID, actorID, orgID)
	if err != nil || !ok {
		// Fail closed: an unreachable gate reads the same as no session.
		return errors.NewStepUpRequiredError(string(r.risk))
	}
	return nil
}

func (r *RecordRestorer) recordEvent(ctx context.Context, q database.Querier, req RecordRestoreRequest, actorEmail string, old, restored audit.FieldMap) error {
	_, err := r.recorder.Record(ctx, q, auditsvc.ChangeRecord{
		OrganizationID: req.OrganizationID,
		TableName:      req.TableName,
		RecordID:       req.RecordID,
		Action:         audit.ActionRestore,
		ActorID:        req.ActorID,
		ActorEmail:     actorEmail,
		SessionID:      req.StepUpSessionID,
		OldValues:      old,
		NewValues:      restored,
		Context: map[string]interface{}{
			"restore_type":   string(audit.RestoreTypeRecord),
			"restore_point":  req.Timestamp.UTC().Format(time.RFC3339),
			"restore_reason": req.Reason,
		},
	})
	if err == nil {
		r.metrics.EventsRecorded.Inc()
	}
	return err
}

// writeHistory persists the operation summary after commit. The RESTORE
// events are the authoritative record, so a history write failure is logged
// rather than unwinding a restore that already took effect.
func (r *RecordRestorer) writeHistory(ctx context.Context, req RecordRestoreRequest, result *RecordRestoreResult) *audit.RestoreHistory {
	history, err := audit.NewRestoreHistory(req.OrganizationID, req.ActorID, audit.RestoreTypeRecord, req.Timestamp, req.Reason)
	if err != nil {
		r.logger.Error("restore history rejected", zap.Error(err))
		return nil
	}
	history.AffectedTable = req.TableName
	history.AffectedRecords = []string{req.RecordID}
	history.ChangesSummary = audit.ChangesSummary{Attempted: 1, Restored: 1}

	if err := r.history.Insert(ctx, history); err != nil {
		r.logger.Error("restore history write failed",
			zap.String("table", req.TableName),
			zap.String("record_id", req.RecordID),
			zap.Error(err),
		)
		return nil
	}
	return history
}

// writableFields strips the handler's immutable fields from a snapshot before
// it is applied over an existing row.
func writableFields(snapshot audit.FieldMap, handler TableHandler) audit.FieldMap {
	immutable := make(map[string]struct{}, len(handler.ImmutableFields()))
	for _, field := range handler.ImmutableFields() {
		immutable[field] = struct{}{}
	}
	out := make(audit.FieldMap, len(snapshot))
	for field, value := range snapshot {
		if _, skip := immutable[field]; skip {
			continue
		}
		out[field] = value
	}
	return out
}

// changedWritableFields lists, sorted, the writable fields whose target value
// differs from the live row.
func changedWritableFields(current, writable audit.FieldMap) []string {
	diff := audit.ChangedFields(current, writable)
	changed := make([]string, 0, len(diff))
	for _, field := range diff {
		// A field only the live row has is not part of the target patch.
		if _, ok := writable[field]; ok {
			changed = append(changed, field)
		}
	}
	return changed
}

func sortedFieldNames(fields audit.FieldMap) []string {
	return audit.ChangedFields(nil, fields)
}
