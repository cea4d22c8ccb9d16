package audit

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainaudit "github.com/complyvault/compliance-backend/internal/domain/audit"
)

// RestorePointDetector surfaces hourly buckets with unusually high change
// volume as candidate rollback targets. Advisory only: any timestamp is a
// valid restore target whether or not it was detected.
type RestorePointDetector struct {
	events    EventRepository
	threshold int
	logger    *zap.Logger
}

// NewRestorePointDetector creates a detector with the given significance
// threshold; a bucket qualifies only when its change count exceeds it.
func NewRestorePointDetector(events EventRepository, threshold int, logger *zap.Logger) *RestorePointDetector {
	if threshold <= 0 {
		threshold = 5
	}
	return &RestorePointDetector{
		events:    events,
		threshold: threshold,
		logger:    logger.Named("detector"),
	}
}

// ListRestorePoints buckets the organization's events since the given time by
// hour and returns qualifying buckets most recent first, each with the
// distinct affected tables and actor emails.
func (d *RestorePointDetector) ListRestorePoints(ctx context.Context, orgID uuid.UUID, since time.Time) ([]domainaudit.RestorePoint, error) {
	events, err := d.events.ListSince(ctx, orgID, since, 0)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		count  int
		tables map[string]struct{}
		users  map[string]struct{}
	}
	buckets := make(map[time.Time]*bucket)

	for _, event := range events {
		hour := event.CreatedAt.UTC().Truncate(time.Hour)
		b, ok := buckets[hour]
		if !ok {
			b = &bucket{
				tables: make(map[string]struct{}),
				users:  make(map[string]struct{}),
			}
			buckets[hour] = b
		}
		b.count++
		b.tables[event.TableName] = struct{}{}
		if event.ActorEmail != "" {
			b.users[event.ActorEmail] = struct{}{}
		}
	}

	var points []domainaudit.RestorePoint
	for hour, b := range buckets {
		if b.count <= d.threshold {
			continue
		}
		points = append(points, domainaudit.RestorePoint{
			TimestampBucket: hour,
			ChangeCount:     b.count,
			AffectedTables:  sortedKeys(b.tables),
			UsersInvolved:   sortedKeys(b.users),
		})
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].TimestampBucket.After(points[j].TimestampBucket)
	})

	d.logger.Debug("restore points detected",
		zap.Int("buckets", len(buckets)),
		zap.Int("qualifying", len(points)),
	)
	return points, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
