package compliance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/complyvault/compliance-backend/internal/domain/errors"
)

// FulfilmentStatus is the assessed state of one requirement.
type FulfilmentStatus string

const (
	StatusFulfilled     FulfilmentStatus = "FULFILLED"
	StatusPartial       FulfilmentStatus = "PARTIALLY_FULFILLED"
	StatusNotFulfilled  FulfilmentStatus = "NOT_FULFILLED"
	StatusNotApplicable FulfilmentStatus = "NOT_APPLICABLE"
)

// Snapshot is a periodic per-standard compliance rollup. Unlike audit events
// it is upserted on re-run, keyed by (organization, date, standard).
type Snapshot struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	SnapshotDate   time.Time `json:"snapshot_date"`
	StandardID     uuid.UUID `json:"standard_id"`

	TotalRequirements  int `json:"total_requirements"`
	Fulfilled          int `json:"fulfilled"`
	PartiallyFulfilled int `json:"partially_fulfilled"`
	NotFulfilled       int `json:"not_fulfilled"`
	NotApplicable      int `json:"not_applicable"`

	CompliancePercentage decimal.Decimal `json:"compliance_percentage"`

	CreatedAt time.Time `json:"created_at"`
}

// NewSnapshot builds a snapshot from status counts and computes the
// percentage: fulfilled / (total - not applicable) * 100, rounded to two
// decimals, zero when the denominator is zero.
func NewSnapshot(orgID, standardID uuid.UUID, date time.Time, counts StatusCounts) (*Snapshot, error) {
	if orgID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_ORG_ID", "organization ID is required")
	}
	if standardID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_STANDARD_ID", "standard ID is required")
	}

	return &Snapshot{
		ID:                   uuid.New(),
		OrganizationID:       orgID,
		SnapshotDate:         date,
		StandardID:           standardID,
		TotalRequirements:    counts.Total(),
		Fulfilled:            counts.Fulfilled,
		PartiallyFulfilled:   counts.Partial,
		NotFulfilled:         counts.NotFulfilled,
		NotApplicable:        counts.NotApplicable,
		CompliancePercentage: counts.Percentage(),
		CreatedAt:            time.Now().UTC(),
	}, nil
}

// StatusCounts aggregates requirement fulfilment states for one standard.
type StatusCounts struct {
	Fulfilled     int
	Partial       int
	NotFulfilled  int
	NotApplicable int
}

// Add increments the counter matching the status; unknown statuses count as
// not fulfilled so they can never inflate the score.
func (c *StatusCounts) Add(status FulfilmentStatus) {
	switch status {
	case StatusFulfilled:
		c.Fulfilled++
	case StatusPartial:
		c.Partial++
	case StatusNotApplicable:
		c.NotApplicable++
	default:
		c.NotFulfilled++
	}
}

// Total returns the number of counted requirements.
func (c StatusCounts) Total() int {
	return c.Fulfilled + c.Partial + c.NotFulfilled + c.NotApplicable
}

// Percentage computes fulfilled over applicable requirements, as a percentage
// rounded to two decimal places.
func (c StatusCounts) Percentage() decimal.Decimal {
	applicable := c.Total() - c.NotApplicable
	if applicable <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(c.Fulfilled)).
		Div(decimal.NewFromInt(int64(applicable))).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}
