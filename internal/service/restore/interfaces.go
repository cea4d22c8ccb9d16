package restore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/complyvault/compliance-backend/internal/domain/audit"
	"github.com/complyvault/compliance-backend/internal/infrastructure/database"
	auditsvc "github.com/complyvault/compliance-backend/internal/service/audit"
)

// RecordStore reads and writes live rows of restorable tables as opaque
// field maps, on the querier the executor passes (pool or transaction).
type RecordStore interface {
	Get(ctx context.Context, q database.Querier, table, recordID string, orgID uuid.UUID) (audit.FieldMap, error)
	Update(ctx context.Context, q database.Querier, table, recordID string, orgID uuid.UUID, fields audit.FieldMap) error
	Insert(ctx context.Context, q database.Querier, table string, fields audit.FieldMap) error
	Delete(ctx context.Context, q database.Querier, table, recordID string, orgID uuid.UUID) error
}

// Memberships answers the tenant authorization boundary.
type Memberships interface {
	IsActiveMember(ctx context.Context, orgID, userID uuid.UUID) (bool, error)
	MemberEmail(ctx context.Context, orgID, userID uuid.UUID) (string, error)
}

// HistoryRepository persists one summary row per restore operation.
type HistoryRepository interface {
	Insert(ctx context.Context, history *audit.RestoreHistory) error
}

// TemporalEngine reconstructs record state at a point in time.
type TemporalEngine interface {
	StateAt(ctx context.Context, q database.Querier, orgID uuid.UUID, table, recordID string, ts time.Time) (audit.FieldMap, bool, error)
}

// EventRecorder appends the RESTORE audit event for every reconstructive
// write, on the same querier as the write itself.
type EventRecorder interface {
	Record(ctx context.Context, q database.Querier, change auditsvc.ChangeRecord) (*audit.Event, error)
}

// SessionEvents lists a session's mutations newest first, RESTORE actions
// excluded.
type SessionEvents interface {
	ListBySession(ctx context.Context, orgID uuid.UUID, sessionID string, limit int) ([]*audit.Event, error)
}
