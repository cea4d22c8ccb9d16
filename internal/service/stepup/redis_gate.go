package stepup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/complyvault/compliance-backend/internal/domain/errors"
)

// RedisGate stores verification sessions in Redis with a TTL matching the
// risk level, so expiry needs no sweeper: a vanished key is an unsatisfied
// session.
type RedisGate struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
}

// NewRedisGate creates a Redis-backed step-up gate.
func NewRedisGate(client *redis.Client, logger *zap.Logger, keyPrefix string) *RedisGate {
	if keyPrefix == "" {
		keyPrefix = "stepup"
	}
	return &RedisGate{
		client:    client,
		logger:    logger.Named("stepup"),
		keyPrefix: keyPrefix,
	}
}

func (g *RedisGate) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", g.keyPrefix, sessionID)
}

func (g *RedisGate) factorsKey(sessionID string) string {
	return fmt.Sprintf("%s:factors:%s", g.keyPrefix, sessionID)
}

// CreateVerificationSession opens a time-boxed session. Low-risk operations
// never reach the gate, so a low-risk session is rejected outright.
func (g *RedisGate) CreateVerificationSession(ctx context.Context, userID, orgID uuid.UUID, operationType string, risk RiskLevel) (*Session, error) {
	if !risk.RequiresVerification() {
		return nil, errors.NewValidationError("RISK_TOO_LOW", "low-risk operations do not use step-up sessions")
	}
	if userID == uuid.Nil || orgID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_SUBJECT", "user and organization are required")
	}

	ttl := risk.SessionTTL()
	session := &Session{
		ID:              uuid.NewString(),
		UserID:          userID,
		OrganizationID:  orgID,
		OperationType:   operationType,
		RiskLevel:       risk,
		RequiredFactors: risk.RequiredFactors(),
		ExpiresAt:       time.Now().UTC().Add(ttl),
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, errors.NewInternalError("encoding step-up session").WithCause(err)
	}

	if err := g.client.Set(ctx, g.sessionKey(session.ID), payload, ttl).Err(); err != nil {
		return nil, errors.NewStorageError("storing step-up session").WithCause(err)
	}

	g.logger.Info("step-up session created",
		zap.String("session_id", session.ID),
		zap.String("operation_type", operationType),
		zap.String("risk_level", string(risk)),
		zap.Duration("ttl", ttl),
	)
	return session, nil
}

// CompleteFactor marks one verification factor done. Factors are counted by
// distinct type, so repeating the same factor cannot satisfy a multi-factor
// requirement. The factor set inherits the session's remaining TTL.
func (g *RedisGate) CompleteFactor(ctx context.Context, sessionID, factorType string) error {
	if factorType == "" {
		return errors.NewValidationError("MISSING_FACTOR_TYPE", "factor type is required")
	}

	session, err := g.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return errors.NewNotFoundError("step-up session")
	}

	key := g.factorsKey(sessionID)
	ttl, err := g.client.TTL(ctx, g.sessionKey(sessionID)).Result()
	if err != nil {
		return errors.NewStorageError("reading step-up session TTL").WithCause(err)
	}

	pipe := g.client.TxPipeline()
	pipe.SAdd(ctx, key, factorType)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewStorageError("recording completed factor").WithCause(err)
	}

	g.logger.Info("step-up factor completed",
		zap.String("session_id", sessionID),
		zap.String("factor_type", factorType),
	)
	return nil
}

// IsSatisfied reports whether the session is live and fully verified. Any
// storage failure reads as unsatisfied; the gate fails closed.
func (g *RedisGate) IsSatisfied(ctx context.Context, sessionID string) (bool, error) {
	session, err := g.load(ctx, sessionID)
	if err != nil || session == nil {
		return false, err
	}

	completed, err := g.client.SCard(ctx, g.factorsKey(sessionID)).Result()
	if err != nil {
		return false, errors.NewStorageError("counting completed factors").WithCause(err)
	}
	return int(completed) >= session.RequiredFactors, nil
}

// Verify checks satisfaction and that the session is bound to the expected
// user and organization. A session minted for another actor or tenant counts
// as no authorization.
func (g *RedisGate) Verify(ctx context.Context, sessionID string, userID, orgID uuid.UUID) (bool, error) {
	session, err := g.load(ctx, sessionID)
	if err != nil || session == nil {
		return false, err
	}
	if session.UserID != userID || session.OrganizationID != orgID {
		g.logger.Warn("step-up session subject mismatch",
			zap.String("session_id", sessionID))
		return false, nil
	}

	completed, err := g.client.SCard(ctx, g.factorsKey(sessionID)).Result()
	if err != nil {
		return false, errors.NewStorageError("counting completed factors").WithCause(err)
	}
	return int(completed) >= session.RequiredFactors, nil
}

// load returns nil without error when the session is absent or expired.
func (g *RedisGate) load(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	payload, err := g.client.Get(ctx, g.sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorageError("loading step-up session").WithCause(err)
	}

	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, errors.NewInternalError("decoding step-up session").WithCause(err)
	}
	return &session, nil
}
