package restore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/complyvault/compliance-backend/internal/domain/audit"
	"github.com/complyvault/compliance-backend/internal/infrastructure/database"
	"github.com/complyvault/compliance-backend/internal/infrastructure/repository"
	auditsvc "github.com/complyvault/compliance-backend/internal/service/audit"
	"github.com/complyvault/compliance-backend/internal/service/stepup"
)

// passTx runs the function directly; transactional scoping is the pool's
// concern and out of scope for these tests.
type passTx struct {
	calls int
}

func (t *passTx) RunTx(_ context.Context, fn func(q database.Querier) error) error {
	t.calls++
	return fn(nil)
}

type rowKey struct {
	table string
	id    string
}

// fakeStore keeps live rows in memory and can inject per-row failures.
type fakeStore struct {
	rows    map[rowKey]audit.FieldMap
	failOn  map[rowKey]error
	updates int
	inserts int
	deletes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:   make(map[rowKey]audit.FieldMap),
		failOn: make(map[rowKey]error),
	}
}

func (s *fakeStore) put(table, id string, fields audit.FieldMap) {
	s.rows[rowKey{table, id}] = fields.Clone()
}

func (s *fakeStore) get(table, id string) (audit.FieldMap, bool) {
	fields, ok := s.rows[rowKey{table, id}]
	return fields, ok
}

func (s *fakeStore) Get(_ context.Context, _ database.Querier, table, recordID string, _ uuid.UUID) (audit.FieldMap, error) {
	fields, ok := s.rows[rowKey{table, recordID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return fields.Clone(), nil
}

func (s *fakeStore) Update(_ context.Context, _ database.Querier, table, recordID string, _ uuid.UUID, fields audit.FieldMap) error {
	key := rowKey{table, recordID}
	if err := s.failOn[key]; err != nil {
		return err
	}
	row, ok := s.rows[key]
	if !ok {
		return repository.ErrNotFound
	}
	for field, value := range fields {
		row[field] = value
	}
	s.updates++
	return nil
}

func (s *fakeStore) Insert(_ context.Context, _ database.Querier, table string, fields audit.FieldMap) error {
	id, _ := fields["id"].(string)
	key := rowKey{table, id}
	if err := s.failOn[key]; err != nil {
		return err
	}
	if _, exists := s.rows[key]; exists {
		return fmt.Errorf("insert live row: %w", repository.ErrDuplicateKey)
	}
	s.rows[key] = fields.Clone()
	s.inserts++
	return nil
}

func (s *fakeStore) Delete(_ context.Context, _ database.Querier, table, recordID string, _ uuid.UUID) error {
	key := rowKey{table, recordID}
	if err := s.failOn[key]; err != nil {
		return err
	}
	if _, ok := s.rows[key]; !ok {
		return repository.ErrNotFound
	}
	delete(s.rows, key)
	s.deletes++
	return nil
}

// fakeTemporal returns canned point-in-time states keyed by table/record.
type fakeTemporal struct {
	states map[rowKey]audit.FieldMap
	err    error
}

func newFakeTemporal() *fakeTemporal {
	return &fakeTemporal{states: make(map[rowKey]audit.FieldMap)}
}

func (t *fakeTemporal) StateAt(_ context.Context, _ database.Querier, _ uuid.UUID, table, recordID string, _ time.Time) (audit.FieldMap, bool, error) {
	if t.err != nil {
		return nil, false, t.err
	}
	state, ok := t.states[rowKey{table, recordID}]
	if !ok {
		return nil, false, nil
	}
	return state.Clone(), true, nil
}

// fakeRecorder collects every change handed to it.
type fakeRecorder struct {
	changes []auditsvc.ChangeRecord
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, _ database.Querier, change auditsvc.ChangeRecord) (*audit.Event, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.changes = append(r.changes, change)
	return &audit.Event{ID: uuid.New()}, nil
}

// fakeMembers answers membership for exactly one user/org pair.
type fakeMembers struct {
	orgID  uuid.UUID
	userID uuid.UUID
	email  string
}

func (m *fakeMembers) IsActiveMember(_ context.Context, orgID, userID uuid.UUID) (bool, error) {
	return orgID == m.orgID && userID == m.userID, nil
}

func (m *fakeMembers) MemberEmail(_ context.Context, orgID, userID uuid.UUID) (string, error) {
	if orgID == m.orgID && userID == m.userID {
		return m.email, nil
	}
	return "", nil
}

// fakeGate approves a fixed session ID.
type fakeGate struct {
	satisfiedID string
	verifyErr   error
	checks      int
}

func (g *fakeGate) CreateVerificationSession(_ context.Context, _, _ uuid.UUID, _ string, _ stepup.RiskLevel) (*stepup.Session, error) {
	panic("not used in these tests")
}

func (g *fakeGate) IsSatisfied(_ context.Context, sessionID string) (bool, error) {
	return sessionID == g.satisfiedID, g.verifyErr
}

func (g *fakeGate) Verify(_ context.Context, sessionID string, _, _ uuid.UUID) (bool, error) {
	g.checks++
	if g.verifyErr != nil {
		return false, g.verifyErr
	}
	return sessionID == g.satisfiedID, nil
}

// fakeHistory records inserted history rows.
type fakeHistory struct {
	entries []*audit.RestoreHistory
	err     error
}

func (h *fakeHistory) Insert(_ context.Context, history *audit.RestoreHistory) error {
	if h.err != nil {
		return h.err
	}
	h.entries = append(h.entries, history)
	return nil
}

// fakeSessionEvents serves a canned newest-first event list.
type fakeSessionEvents struct {
	events []*audit.Event
	err    error
}

func (e *fakeSessionEvents) ListBySession(_ context.Context, _ uuid.UUID, _ string, _ int) ([]*audit.Event, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.events, nil
}
