package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domainaudit "github.com/complyvault/compliance-backend/internal/domain/audit"
	"github.com/complyvault/compliance-backend/internal/infrastructure/database"
	"github.com/complyvault/compliance-backend/internal/infrastructure/repository"
)

// fakeEventLog replays an in-memory slice with the same (created_at, seq)
// selection rule the SQL repository uses.
type fakeEventLog struct {
	events []*domainaudit.Event
}

func (f *fakeEventLog) Insert(_ context.Context, _ database.Querier, event *domainaudit.Event) error {
	event.Seq = int64(len(f.events) + 1)
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventLog) LatestAt(_ context.Context, _ database.Querier, orgID uuid.UUID, table, recordID string, ts time.Time) (*domainaudit.Event, error) {
	var latest *domainaudit.Event
	for _, e := range f.events {
		if e.OrganizationID != orgID || e.TableName != table || e.RecordID != recordID {
			continue
		}
		if e.CreatedAt.After(ts) {
			continue
		}
		if latest == nil || latest.Before(e) {
			latest = e
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

func (f *fakeEventLog) ListByRecord(_ context.Context, orgID uuid.UUID, table, recordID string, _ int) ([]*domainaudit.Event, error) {
	var out []*domainaudit.Event
	for _, e := range f.events {
		if e.OrganizationID == orgID && e.TableName == table && e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventLog) ListBySession(_ context.Context, orgID uuid.UUID, sessionID string, _ int) ([]*domainaudit.Event, error) {
	var out []*domainaudit.Event
	for i := len(f.events) - 1; i >= 0; i-- {
		e := f.events[i]
		if e.OrganizationID == orgID && e.SessionID == sessionID && e.Action != domainaudit.ActionRestore {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventLog) ListSince(_ context.Context, orgID uuid.UUID, since time.Time, _ int) ([]*domainaudit.Event, error) {
	var out []*domainaudit.Event
	for _, e := range f.events {
		if e.OrganizationID == orgID && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventLog) ActivitySummaries(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]domainaudit.ActivitySummary, error) {
	return nil, nil
}

func (f *fakeEventLog) add(t *testing.T, orgID uuid.UUID, table, recordID string, action domainaudit.Action, at time.Time, old, new domainaudit.FieldMap) *domainaudit.Event {
	t.Helper()
	event, err := domainaudit.NewEvent(orgID, table, recordID, action, uuid.New(), old, new)
	require.NoError(t, err)
	event.CreatedAt = at
	require.NoError(t, f.Insert(context.Background(), nil, event))
	return event
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 7, 19, hour, minute, 0, 0, time.UTC)
}

func TestStateAt(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	log := &fakeEventLog{}
	query := NewTemporalQuery(log, zaptest.NewLogger(t))

	log.add(t, orgID, "requirements", "req-1", domainaudit.ActionInsert, at(10, 0),
		nil, domainaudit.FieldMap{"status": "open"})
	log.add(t, orgID, "requirements", "req-1", domainaudit.ActionUpdate, at(10, 5),
		domainaudit.FieldMap{"status": "open"}, domainaudit.FieldMap{"status": "closed"})

	t.Run("between insert and update", func(t *testing.T) {
		state, existed, err := query.StateAt(ctx, nil, orgID, "requirements", "req-1", at(10, 2))
		require.NoError(t, err)
		require.True(t, existed)
		assert.Equal(t, domainaudit.FieldMap{"status": "open"}, state)
	})

	t.Run("after update", func(t *testing.T) {
		state, existed, err := query.StateAt(ctx, nil, orgID, "requirements", "req-1", at(10, 6))
		require.NoError(t, err)
		require.True(t, existed)
		assert.Equal(t, domainaudit.FieldMap{"status": "closed"}, state)
	})

	t.Run("before first event record did not exist", func(t *testing.T) {
		_, existed, err := query.StateAt(ctx, nil, orgID, "requirements", "req-1", at(9, 59))
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("exactly at event timestamp includes the event", func(t *testing.T) {
		state, existed, err := query.StateAt(ctx, nil, orgID, "requirements", "req-1", at(10, 5))
		require.NoError(t, err)
		require.True(t, existed)
		assert.Equal(t, domainaudit.FieldMap{"status": "closed"}, state)
	})

	t.Run("deleted record did not exist", func(t *testing.T) {
		log.add(t, orgID, "requirements", "req-2", domainaudit.ActionInsert, at(11, 0),
			nil, domainaudit.FieldMap{"status": "open"})
		log.add(t, orgID, "requirements", "req-2", domainaudit.ActionDelete, at(11, 30),
			domainaudit.FieldMap{"status": "open"}, nil)

		_, existed, err := query.StateAt(ctx, nil, orgID, "requirements", "req-2", at(12, 0))
		require.NoError(t, err)
		assert.False(t, existed)

		state, existed, err := query.StateAt(ctx, nil, orgID, "requirements", "req-2", at(11, 15))
		require.NoError(t, err)
		require.True(t, existed)
		assert.Equal(t, domainaudit.FieldMap{"status": "open"}, state)
	})

	t.Run("restore event is a terminal snapshot", func(t *testing.T) {
		log.add(t, orgID, "requirements", "req-3", domainaudit.ActionInsert, at(12, 0),
			nil, domainaudit.FieldMap{"status": "open"})
		log.add(t, orgID, "requirements", "req-3", domainaudit.ActionRestore, at(12, 30),
			domainaudit.FieldMap{"status": "open"}, domainaudit.FieldMap{"status": "restored"})

		state, existed, err := query.StateAt(ctx, nil, orgID, "requirements", "req-3", at(13, 0))
		require.NoError(t, err)
		require.True(t, existed)
		assert.Equal(t, domainaudit.FieldMap{"status": "restored"}, state)
	})

	t.Run("tenant isolation", func(t *testing.T) {
		_, existed, err := query.StateAt(ctx, nil, uuid.New(), "requirements", "req-1", at(12, 0))
		require.NoError(t, err)
		assert.False(t, existed, "another organization must never see this history")
	})

	t.Run("deterministic across repetitions", func(t *testing.T) {
		first, existed, err := query.StateAt(ctx, nil, orgID, "requirements", "req-1", at(10, 6))
		require.NoError(t, err)
		require.True(t, existed)
		for i := 0; i < 5; i++ {
			again, existedAgain, err := query.StateAt(ctx, nil, orgID, "requirements", "req-1", at(10, 6))
			require.NoError(t, err)
			require.True(t, existedAgain)
			assert.True(t, first.Equal(again))
		}
	})
}

func TestStateAtTieBreaksBySequence(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	log := &fakeEventLog{}
	query := NewTemporalQuery(log, zaptest.NewLogger(t))

	// Two updates with identical wall-clock timestamps: insertion order wins.
	same := at(14, 0)
	log.add(t, orgID, "requirements", "req-1", domainaudit.ActionInsert, at(13, 0),
		nil, domainaudit.FieldMap{"status": "a"})
	log.add(t, orgID, "requirements", "req-1", domainaudit.ActionUpdate, same,
		domainaudit.FieldMap{"status": "a"}, domainaudit.FieldMap{"status": "b"})
	log.add(t, orgID, "requirements", "req-1", domainaudit.ActionUpdate, same,
		domainaudit.FieldMap{"status": "b"}, domainaudit.FieldMap{"status": "c"})

	state, existed, err := query.StateAt(ctx, nil, orgID, "requirements", "req-1", same)
	require.NoError(t, err)
	require.True(t, existed)
	assert.Equal(t, domainaudit.FieldMap{"status": "c"}, state)
}

func TestStateAtReturnsCopy(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	log := &fakeEventLog{}
	query := NewTemporalQuery(log, zaptest.NewLogger(t))

	log.add(t, orgID, "requirements", "req-1", domainaudit.ActionInsert, at(10, 0),
		nil, domainaudit.FieldMap{"status": "open"})

	state, _, err := query.StateAt(ctx, nil, orgID, "requirements", "req-1", at(10, 1))
	require.NoError(t, err)
	state["status"] = "mutated"

	again, _, err := query.StateAt(ctx, nil, orgID, "requirements", "req-1", at(10, 1))
	require.NoError(t, err)
	assert.Equal(t, "open", again["status"])
}
