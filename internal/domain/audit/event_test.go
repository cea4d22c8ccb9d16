package audit

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyvault/compliance-backend/internal/domain/errors"
)

func TestNewEvent(t *testing.T) {
	orgID := uuid.New()
	actorID := uuid.New()

	t.Run("valid insert", func(t *testing.T) {
		event, err := NewEvent(orgID, "requirements", "req-1", ActionInsert, actorID,
			nil, FieldMap{"status": "open"})
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, ActionInsert, event.Action)
		assert.Nil(t, event.OldValues)
		assert.Equal(t, FieldMap{"status": "open"}, event.NewValues)
		assert.Equal(t, []string{"status"}, event.ChangedFields)
		assert.False(t, event.CreatedAt.IsZero())
	})

	t.Run("valid update derives changed fields", func(t *testing.T) {
		event, err := NewEvent(orgID, "requirements", "req-1", ActionUpdate, actorID,
			FieldMap{"status": "open", "owner": "a"},
			FieldMap{"status": "closed", "owner": "a"})
		require.NoError(t, err)

		assert.Equal(t, []string{"status"}, event.ChangedFields)
	})

	t.Run("delete requires old values only", func(t *testing.T) {
		event, err := NewEvent(orgID, "requirements", "req-1", ActionDelete, actorID,
			FieldMap{"status": "open"}, nil)
		require.NoError(t, err)
		assert.Nil(t, event.NewValues)
		assert.Nil(t, event.Snapshot())
	})

	t.Run("insert with old values rejected", func(t *testing.T) {
		_, err := NewEvent(orgID, "requirements", "req-1", ActionInsert, actorID,
			FieldMap{"status": "open"}, FieldMap{"status": "open"})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, "UNEXPECTED_OLD_VALUES"))
	})

	t.Run("restore allows one-sided snapshots but not none", func(t *testing.T) {
		// Undoing an INSERT removes the row: old only.
		_, err := NewEvent(orgID, "requirements", "req-1", ActionRestore, actorID,
			FieldMap{"status": "open"}, nil)
		require.NoError(t, err)

		// Re-creating a deleted row: new only.
		_, err = NewEvent(orgID, "requirements", "req-1", ActionRestore, actorID,
			nil, FieldMap{"status": "open"})
		require.NoError(t, err)

		_, err = NewEvent(orgID, "requirements", "req-1", ActionRestore, actorID, nil, nil)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, "MISSING_SNAPSHOTS"))
	})

	t.Run("missing tenant scope rejected", func(t *testing.T) {
		_, err := NewEvent(uuid.Nil, "requirements", "req-1", ActionInsert, actorID,
			nil, FieldMap{"status": "open"})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, "MISSING_ORG_ID"))
	})

	t.Run("unknown action rejected", func(t *testing.T) {
		_, err := NewEvent(orgID, "requirements", "req-1", Action("TRUNCATE"), actorID,
			FieldMap{"a": 1}, FieldMap{"a": 2})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, "INVALID_ACTION"))
	})

	t.Run("snapshots are copied", func(t *testing.T) {
		newValues := FieldMap{"status": "open"}
		event, err := NewEvent(orgID, "requirements", "req-1", ActionInsert, actorID, nil, newValues)
		require.NoError(t, err)

		newValues["status"] = "mutated"
		assert.Equal(t, "open", event.NewValues["status"])
	})
}

func TestEventOrdering(t *testing.T) {
	base := time.Date(2025, 7, 19, 10, 0, 0, 0, time.UTC)

	earlier := &Event{CreatedAt: base, Seq: 1}
	later := &Event{CreatedAt: base.Add(time.Minute), Seq: 2}
	assert.True(t, earlier.Before(later))
	assert.False(t, later.Before(earlier))

	// Wall-clock ties are broken by insertion sequence, never left concurrent.
	tied := &Event{CreatedAt: base, Seq: 2}
	assert.True(t, earlier.Before(tied))
	assert.False(t, tied.Before(earlier))
}

func TestChangedFields(t *testing.T) {
	tests := []struct {
		name string
		old  FieldMap
		new  FieldMap
		want []string
	}{
		{
			name: "value change",
			old:  FieldMap{"status": "open"},
			new:  FieldMap{"status": "closed"},
			want: []string{"status"},
		},
		{
			name: "added and removed fields both count",
			old:  FieldMap{"a": 1, "b": 2},
			new:  FieldMap{"b": 2, "c": 3},
			want: []string{"a", "c"},
		},
		{
			name: "no change",
			old:  FieldMap{"a": 1},
			new:  FieldMap{"a": 1},
			want: nil,
		},
		{
			name: "nested values compared deeply",
			old:  FieldMap{"tags": []interface{}{"x"}},
			new:  FieldMap{"tags": []interface{}{"x", "y"}},
			want: []string{"tags"},
		},
		{
			name: "insert counts every field",
			old:  nil,
			new:  FieldMap{"a": 1, "b": 2},
			want: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChangedFields(tt.old, tt.new))
		})
	}
}

func TestFieldMapClone(t *testing.T) {
	original := FieldMap{
		"status": "open",
		"nested": map[string]interface{}{"k": "v"},
		"list":   []interface{}{1.0, 2.0},
	}

	clone := original.Clone()
	require.True(t, original.Equal(clone))

	clone["status"] = "closed"
	clone["nested"].(map[string]interface{})["k"] = "changed"
	assert.Equal(t, "open", original["status"])
	assert.Equal(t, "v", original["nested"].(map[string]interface{})["k"])
}

func TestMarshalFieldsNilMapsToNull(t *testing.T) {
	data, err := MarshalFields(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	decoded, err := UnmarshalFields(nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)

	data, err = MarshalFields(FieldMap{"a": 1})
	require.NoError(t, err)
	decoded, err = UnmarshalFields(data)
	require.NoError(t, err)
	assert.Equal(t, FieldMap{"a": float64(1)}, decoded)
}
