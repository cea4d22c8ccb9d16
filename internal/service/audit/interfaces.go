package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/complyvault/compliance-backend/internal/domain/audit"
	"github.com/complyvault/compliance-backend/internal/infrastructure/database"
)

// EventRepository is the storage contract for the append-only change log.
// Insert and LatestAt take an explicit querier so they can join an enclosing
// transaction; the read-only listings run on the repository's own pool.
type EventRepository interface {
	Insert(ctx context.Context, q database.Querier, event *audit.Event) error
	LatestAt(ctx context.Context, q database.Querier, orgID uuid.UUID, table, recordID string, ts time.Time) (*audit.Event, error)
	ListByRecord(ctx context.Context, orgID uuid.UUID, table, recordID string, limit int) ([]*audit.Event, error)
	ListBySession(ctx context.Context, orgID uuid.UUID, sessionID string, limit int) ([]*audit.Event, error)
	ListSince(ctx context.Context, orgID uuid.UUID, since time.Time, limit int) ([]*audit.Event, error)
	ActivitySummaries(ctx context.Context, orgID uuid.UUID, start, end time.Time) ([]audit.ActivitySummary, error)
}
