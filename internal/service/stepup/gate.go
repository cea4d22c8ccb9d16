package stepup

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RiskLevel scales how much verification a sensitive operation needs.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ParseRiskLevel maps a configuration string onto a risk level, defaulting to
// high so a typo can only tighten the gate, never loosen it.
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return RiskLevel(s)
	}
	return RiskHigh
}

// RequiresVerification reports whether operations at this level need a
// satisfied step-up session at all.
func (r RiskLevel) RequiresVerification() bool {
	return r != RiskLow
}

// SessionTTL is how long a verification session stays valid. An expired
// session reads identically to no session.
func (r RiskLevel) SessionTTL() time.Duration {
	switch r {
	case RiskCritical:
		return 2 * time.Minute
	case RiskHigh:
		return 5 * time.Minute
	case RiskMedium:
		return 10 * time.Minute
	default:
		return 0
	}
}

// RequiredFactors is how many independent verification factors must complete
// before the session is satisfied.
func (r RiskLevel) RequiredFactors() int {
	switch r {
	case RiskCritical, RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Session is one time-boxed verification session.
type Session struct {
	ID              string    `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	OrganizationID  uuid.UUID `json:"organization_id"`
	OperationType   string    `json:"operation_type"`
	RiskLevel       RiskLevel `json:"risk_level"`
	RequiredFactors int       `json:"required_factors"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Gate issues and checks step-up verification sessions. The restore executors
// consult it before any operation above low risk and treat every failure,
// expiry or mismatch as "no authorization".
type Gate interface {
	// CreateVerificationSession opens a session the user must satisfy by
	// completing the required number of distinct factors.
	CreateVerificationSession(ctx context.Context, userID, orgID uuid.UUID, operationType string, risk RiskLevel) (*Session, error)

	// IsSatisfied reports whether the session exists, has not expired and
	// has all required factors completed.
	IsSatisfied(ctx context.Context, sessionID string) (bool, error)

	// Verify is IsSatisfied plus a binding check: the session must belong
	// to the given user and organization.
	Verify(ctx context.Context, sessionID string, userID, orgID uuid.UUID) (bool, error)
}
