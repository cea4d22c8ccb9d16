package restore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/complyvault/compliance-backend/internal/domain/audit"
	"github.com/complyvault/compliance-backend/internal/domain/errors"
	"github.com/complyvault/compliance-backend/internal/service/stepup"
)

type recordFixture struct {
	restorer *RecordRestorer
	store    *fakeStore
	temporal *fakeTemporal
	recorder *fakeRecorder
	gate     *fakeGate
	history  *fakeHistory
	tx       *passTx
	orgID    uuid.UUID
	actorID  uuid.UUID
}

func newRecordFixture(t *testing.T, risk stepup.RiskLevel) *recordFixture {
	t.Helper()
	f := &recordFixture{
		store:    newFakeStore(),
		temporal: newFakeTemporal(),
		recorder: &fakeRecorder{},
		gate:     &fakeGate{satisfiedID: "stepup-ok"},
		history:  &fakeHistory{},
		tx:       &passTx{},
		orgID:    uuid.New(),
		actorID:  uuid.New(),
	}
	members := &fakeMembers{orgID: f.orgID, userID: f.actorID, email: "auditor@acme.test"}
	f.restorer = NewRecordRestorer(
		f.tx, f.store, f.temporal, f.recorder, DefaultRegistry(),
		members, f.history, f.gate, risk, nil, zaptest.NewLogger(t),
	)
	return f
}

func (f *recordFixture) request(table, recordID string) RecordRestoreRequest {
	return RecordRestoreRequest{
		OrganizationID:  f.orgID,
		ActorID:         f.actorID,
		StepUpSessionID: "stepup-ok",
		TableName:       table,
		RecordID:        recordID,
		Timestamp:       time.Date(2025, 7, 19, 10, 0, 0, 0, time.UTC),
		Reason:          "undo accidental edit",
	}
}

func TestRecordRestorer_RestoresChangedFields(t *testing.T) {
	f := newRecordFixture(t, stepup.RiskMedium)

	f.store.put("assessments", "a-1", audit.FieldMap{
		"id": "a-1", "organization_id": f.orgID.String(),
		"title": "Renamed", "status": "ARCHIVED", "created_by": "someone-else",
	})
	f.temporal.states[rowKey{"assessments", "a-1"}] = audit.FieldMap{
		"id": "a-1", "organization_id": f.orgID.String(),
		"title": "Q2 SOC 2 assessment", "status": "IN_PROGRESS", "created_by": "original-author",
	}

	result, err := f.restorer.Restore(context.Background(), f.request("assessments", "a-1"))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"title", "status"}, result.ChangedFields)
	assert.False(t, result.Recreated)

	row, ok := f.store.get("assessments", "a-1")
	require.True(t, ok)
	assert.Equal(t, "Q2 SOC 2 assessment", row["title"])
	assert.Equal(t, "IN_PROGRESS", row["status"])
	// Identity and creation fields are never rewritten.
	assert.Equal(t, "someone-else", row["created_by"])

	require.Len(t, f.recorder.changes, 1)
	change := f.recorder.changes[0]
	assert.Equal(t, audit.ActionRestore, change.Action)
	assert.Equal(t, "auditor@acme.test", change.ActorEmail)
	assert.Equal(t, string(audit.RestoreTypeRecord), change.Context["restore_type"])

	require.Len(t, f.history.entries, 1)
	assert.Equal(t, audit.RestoreTypeRecord, f.history.entries[0].RestoreType)
	assert.Equal(t, []string{"a-1"}, f.history.entries[0].AffectedRecords)
	assert.Equal(t, 1, f.tx.calls)
}

func TestRecordRestorer_RecreatesDeletedRow(t *testing.T) {
	f := newRecordFixture(t, stepup.RiskMedium)

	f.temporal.states[rowKey{"requirements", "r-9"}] = audit.FieldMap{
		"id": "r-9", "organization_id": f.orgID.String(),
		"title": "Encrypt data at rest", "tags": []interface{}{"soc2", "encryption"},
	}

	result, err := f.restorer.Restore(context.Background(), f.request("requirements", "r-9"))
	require.NoError(t, err)
	assert.True(t, result.Recreated)

	row, ok := f.store.get("requirements", "r-9")
	require.True(t, ok)
	assert.Equal(t, "Encrypt data at rest", row["title"])

	require.Len(t, f.recorder.changes, 1)
	assert.Nil(t, f.recorder.changes[0].OldValues)
	assert.NotNil(t, f.recorder.changes[0].NewValues)
}

func TestRecordRestorer_NoOpWhenAlreadyAtTarget(t *testing.T) {
	f := newRecordFixture(t, stepup.RiskMedium)

	state := audit.FieldMap{
		"id": "a-2", "organization_id": f.orgID.String(),
		"title": "Unchanged", "status": "DRAFT",
	}
	f.store.put("assessments", "a-2", state)
	f.temporal.states[rowKey{"assessments", "a-2"}] = state

	result, err := f.restorer.Restore(context.Background(), f.request("assessments", "a-2"))
	require.NoError(t, err)
	assert.Empty(t, result.ChangedFields)
	assert.Zero(t, f.store.updates)

	// The trail still records the restore, with old equal to new, so the
	// history row stays corroborated by an audit event.
	require.Len(t, f.recorder.changes, 1)
	change := f.recorder.changes[0]
	assert.Equal(t, audit.ActionRestore, change.Action)
	assert.Equal(t, change.OldValues, change.NewValues)
	require.Len(t, f.history.entries, 1)
}

func TestRecordRestorer_NoHistoryAtTimestamp(t *testing.T) {
	f := newRecordFixture(t, stepup.RiskMedium)

	_, err := f.restorer.Restore(context.Background(), f.request("assessments", "missing"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "NO_HISTORY_AT_TIMESTAMP"))
	assert.Empty(t, f.history.entries)
}

func TestRecordRestorer_UnsupportedTable(t *testing.T) {
	f := newRecordFixture(t, stepup.RiskMedium)

	_, err := f.restorer.Restore(context.Background(), f.request("users", "u-1"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "UNSUPPORTED_TABLE"))
	assert.Zero(t, f.tx.calls)
}

func TestRecordRestorer_RejectsNonMember(t *testing.T) {
	f := newRecordFixture(t, stepup.RiskMedium)

	req := f.request("assessments", "a-1")
	req.ActorID = uuid.New()

	_, err := f.restorer.Restore(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnauthorized))
}

func TestRecordRestorer_StepUp(t *testing.T) {
	t.Run("unsatisfied session is rejected", func(t *testing.T) {
		f := newRecordFixture(t, stepup.RiskMedium)
		req := f.request("assessments", "a-1")
		req.StepUpSessionID = "never-verified"

		_, err := f.restorer.Restore(context.Background(), req)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, "STEP_UP_REQUIRED"))
		assert.Zero(t, f.tx.calls)
	})

	t.Run("gate failure fails closed", func(t *testing.T) {
		f := newRecordFixture(t, stepup.RiskMedium)
		f.gate.verifyErr = assert.AnError

		_, err := f.restorer.Restore(context.Background(), f.request("assessments", "a-1"))
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, "STEP_UP_REQUIRED"))
	})

	t.Run("low risk skips the gate", func(t *testing.T) {
		f := newRecordFixture(t, stepup.RiskLow)
		f.store.put("assessments", "a-1", audit.FieldMap{"id": "a-1", "title": "x"})
		f.temporal.states[rowKey{"assessments", "a-1"}] = audit.FieldMap{"id": "a-1", "title": "y"}

		req := f.request("assessments", "a-1")
		req.StepUpSessionID = ""

		_, err := f.restorer.Restore(context.Background(), req)
		require.NoError(t, err)
		assert.Zero(t, f.gate.checks)
	})
}

func TestRecordRestorer_CoercesEnumCasing(t *testing.T) {
	f := newRecordFixture(t, stepup.RiskMedium)

	f.store.put("assessments", "a-3", audit.FieldMap{
		"id": "a-3", "status": "ARCHIVED",
	})
	f.temporal.states[rowKey{"assessments", "a-3"}] = audit.FieldMap{
		"id": "a-3", "status": "in_progress",
	}

	_, err := f.restorer.Restore(context.Background(), f.request("assessments", "a-3"))
	require.NoError(t, err)

	row, _ := f.store.get("assessments", "a-3")
	assert.Equal(t, "IN_PROGRESS", row["status"])
}

func TestRecordRestorer_HistoryFailureDoesNotUndoRestore(t *testing.T) {
	f := newRecordFixture(t, stepup.RiskMedium)
	f.history.err = assert.AnError

	f.store.put("assessments", "a-4", audit.FieldMap{"id": "a-4", "title": "after"})
	f.temporal.states[rowKey{"assessments", "a-4"}] = audit.FieldMap{"id": "a-4", "title": "before"}

	result, err := f.restorer.Restore(context.Background(), f.request("assessments", "a-4"))
	require.NoError(t, err)
	assert.Nil(t, result.History)

	row, _ := f.store.get("assessments", "a-4")
	assert.Equal(t, "before", row["title"])
}
