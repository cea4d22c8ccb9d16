package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	domainaudit "github.com/complyvault/compliance-backend/internal/domain/audit"
	"github.com/complyvault/compliance-backend/internal/infrastructure/database"
)

type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Insert(ctx context.Context, q database.Querier, event *domainaudit.Event) error {
	args := m.Called(ctx, q, event)
	return args.Error(0)
}

func (m *MockEventRepository) LatestAt(ctx context.Context, q database.Querier, orgID uuid.UUID, table, recordID string, ts time.Time) (*domainaudit.Event, error) {
	args := m.Called(ctx, q, orgID, table, recordID, ts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainaudit.Event), args.Error(1)
}

func (m *MockEventRepository) ListByRecord(ctx context.Context, orgID uuid.UUID, table, recordID string, limit int) ([]*domainaudit.Event, error) {
	args := m.Called(ctx, orgID, table, recordID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domainaudit.Event), args.Error(1)
}

func (m *MockEventRepository) ListBySession(ctx context.Context, orgID uuid.UUID, sessionID string, limit int) ([]*domainaudit.Event, error) {
	args := m.Called(ctx, orgID, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domainaudit.Event), args.Error(1)
}

func (m *MockEventRepository) ListSince(ctx context.Context, orgID uuid.UUID, since time.Time, limit int) ([]*domainaudit.Event, error) {
	args := m.Called(ctx, orgID, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domainaudit.Event), args.Error(1)
}

func (m *MockEventRepository) ActivitySummaries(ctx context.Context, orgID uuid.UUID, start, end time.Time) ([]domainaudit.ActivitySummary, error) {
	args := m.Called(ctx, orgID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domainaudit.ActivitySummary), args.Error(1)
}
