package snapshot

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/complyvault/compliance-backend/internal/domain/compliance"
	"github.com/complyvault/compliance-backend/internal/domain/errors"
)

// Store is the persistence surface the aggregator needs.
type Store interface {
	AssessedStandards(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error)
	RequirementStatusCounts(ctx context.Context, orgID, standardID uuid.UUID) (compliance.StatusCounts, error)
	Upsert(ctx context.Context, snapshot *compliance.Snapshot) error
}

// OrgLister enumerates the organizations the scheduled run covers.
type OrgLister interface {
	ActiveOrganizations(ctx context.Context) ([]uuid.UUID, error)
}

// Aggregator computes per-standard compliance rollups. Runs are idempotent:
// the same organization, date and standard upsert one row however many times
// the job fires.
type Aggregator struct {
	store  Store
	orgs   OrgLister
	logger *zap.Logger
}

// NewAggregator creates a snapshot aggregator.
func NewAggregator(store Store, orgs OrgLister, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		orgs:   orgs,
		logger: logger.Named("snapshot"),
	}
}

// SnapshotOrganization rolls up every standard the organization has a
// completed assessment for, dated to the given day.
func (a *Aggregator) SnapshotOrganization(ctx context.Context, orgID uuid.UUID, date time.Time) ([]*compliance.Snapshot, error) {
	standards, err := a.store.AssessedStandards(ctx, orgID)
	if err != nil {
		return nil, errors.NewStorageError("listing assessed standards").WithCause(err)
	}

	day := date.UTC().Truncate(24 * time.Hour)
	snapshots := make([]*compliance.Snapshot, 0, len(standards))
	for _, standardID := range standards {
		snapshot, err := a.SnapshotStandard(ctx, orgID, standardID, day)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// SnapshotStandard rolls up one standard for one organization.
func (a *Aggregator) SnapshotStandard(ctx context.Context, orgID, standardID uuid.UUID, date time.Time) (*compliance.Snapshot, error) {
	counts, err := a.store.RequirementStatusCounts(ctx, orgID, standardID)
	if err != nil {
		return nil, errors.NewStorageError("counting requirement statuses").WithCause(err)
	}

	snapshot, err := compliance.NewSnapshot(orgID, standardID, date.UTC().Truncate(24*time.Hour), counts)
	if err != nil {
		return nil, err
	}
	if err := a.store.Upsert(ctx, snapshot); err != nil {
		return nil, errors.NewStorageError("writing compliance snapshot").WithCause(err)
	}

	a.logger.Debug("compliance snapshot written",
		zap.String("organization_id", orgID.String()),
		zap.String("standard_id", standardID.String()),
		zap.String("percentage", snapshot.CompliancePercentage.String()),
	)
	return snapshot, nil
}

// RunAll snapshots every active organization for the given day. A failing
// organization is logged and skipped so one tenant cannot starve the rest.
func (a *Aggregator) RunAll(ctx context.Context, date time.Time) error {
	orgs, err := a.orgs.ActiveOrganizations(ctx)
	if err != nil {
		return errors.NewStorageError("listing organizations").WithCause(err)
	}

	var failed int
	for _, orgID := range orgs {
		if _, err := a.SnapshotOrganization(ctx, orgID, date); err != nil {
			failed++
			a.logger.Error("organization snapshot failed",
				zap.String("organization_id", orgID.String()),
				zap.Error(err),
			)
		}
	}

	a.logger.Info("snapshot run complete",
		zap.Int("organizations", len(orgs)),
		zap.Int("failed", failed),
	)
	if failed == len(orgs) && failed > 0 {
		return errors.NewStorageError("snapshot run failed for every organization")
	}
	return nil
}
