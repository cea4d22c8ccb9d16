package stepup

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/complyvault/compliance-backend/internal/domain/errors"
)

// TokenIssuer mints and verifies signed step-up session tokens so callers can
// carry a session reference through the API without the ID being forgeable.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer creates a token issuer with the shared HMAC secret.
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

type sessionClaims struct {
	SessionID      string `json:"sid"`
	OrganizationID string `json:"org"`
	jwt.RegisteredClaims
}

// Mint signs a token for the session; the token expires with the session.
func (t *TokenIssuer) Mint(session *Session) (string, error) {
	claims := sessionClaims{
		SessionID:      session.ID,
		OrganizationID: session.OrganizationID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", errors.NewInternalError("signing step-up token").WithCause(err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry and returns the embedded session ID
// with its bound subject. Any parse failure reads as no authorization.
func (t *TokenIssuer) Parse(tokenString string) (sessionID string, userID, orgID uuid.UUID, err error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.NewValidationError("BAD_SIGNING_METHOD", "unexpected token signing method")
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return "", uuid.Nil, uuid.Nil, errors.NewAuthorizationError("invalid step-up token").WithCause(err)
	}

	userID, err = uuid.Parse(claims.Subject)
	if err != nil {
		return "", uuid.Nil, uuid.Nil, errors.NewAuthorizationError("malformed step-up token subject")
	}
	orgID, err = uuid.Parse(claims.OrganizationID)
	if err != nil {
		return "", uuid.Nil, uuid.Nil, errors.NewAuthorizationError("malformed step-up token organization")
	}
	return claims.SessionID, userID, orgID, nil
}
