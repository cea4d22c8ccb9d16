package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainaudit "github.com/complyvault/compliance-backend/internal/domain/audit"
	"github.com/complyvault/compliance-backend/internal/domain/errors"
)

// ActivityReporter produces per-actor change and session counts for the audit
// review UI.
type ActivityReporter struct {
	events EventRepository
	logger *zap.Logger
}

// NewActivityReporter creates an activity reporter.
func NewActivityReporter(events EventRepository, logger *zap.Logger) *ActivityReporter {
	return &ActivityReporter{
		events: events,
		logger: logger.Named("activity"),
	}
}

// UserActivitySummary aggregates each actor's mutations within [start, end),
// busiest first.
func (a *ActivityReporter) UserActivitySummary(ctx context.Context, orgID uuid.UUID, start, end time.Time) ([]domainaudit.ActivitySummary, error) {
	if !end.After(start) {
		return nil, errors.NewValidationError("INVALID_WINDOW", "end must be after start")
	}

	summaries, err := a.events.ActivitySummaries(ctx, orgID, start, end)
	if err != nil {
		return nil, errors.NewStorageError("aggregating user activity").WithCause(err)
	}
	return summaries, nil
}
