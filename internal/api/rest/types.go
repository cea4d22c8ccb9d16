package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/complyvault/compliance-backend/internal/domain/errors"
)

var validate = validator.New()

type restoreRecordRequest struct {
	TableName   string    `json:"table_name" validate:"required"`
	RecordID    string    `json:"record_id" validate:"required"`
	Timestamp   time.Time `json:"timestamp" validate:"required"`
	Reason      string    `json:"reason" validate:"required,min=3,max=1000"`
	StepUpToken string    `json:"step_up_token"`
}

type restoreSessionRequest struct {
	SessionID   string `json:"session_id" validate:"required"`
	Reason      string `json:"reason" validate:"required,min=3,max=1000"`
	StepUpToken string `json:"step_up_token"`
}

type previewRequest struct {
	Type      string    `json:"type" validate:"required,oneof=record session"`
	TableName string    `json:"table_name" validate:"required_if=Type record"`
	RecordID  string    `json:"record_id" validate:"required_if=Type record"`
	Timestamp time.Time `json:"timestamp" validate:"required_if=Type record"`
	SessionID string    `json:"session_id" validate:"required_if=Type session"`
}

type createStepUpRequest struct {
	OperationType string `json:"operation_type" validate:"required,oneof=record_restore session_restore"`
}

type completeFactorRequest struct {
	FactorType string `json:"factor_type" validate:"required,oneof=totp webauthn email_code sms_code"`
}

type stepUpSessionResponse struct {
	SessionID       string    `json:"session_id"`
	Token           string    `json:"token"`
	RiskLevel       string    `json:"risk_level"`
	RequiredFactors int       `json:"required_factors"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// decodeAndValidate parses the JSON body into dst and runs struct validation.
func decodeAndValidate(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.NewValidationError("MALFORMED_BODY", "request body is not valid JSON").WithCause(err)
	}
	if err := validate.Struct(dst); err != nil {
		return errors.NewValidationError("INVALID_REQUEST", err.Error())
	}
	return nil
}

// queryInt parses a non-negative integer query parameter, falling back to def
// when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.NewValidationError("INVALID_PARAMETER",
			name+" must be a non-negative integer")
	}
	return n, nil
}

// queryTime parses an RFC 3339 query parameter, falling back to def when
// absent.
func queryTime(r *http.Request, name string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.NewValidationError("INVALID_TIMESTAMP",
			name+" must be RFC 3339")
	}
	return ts, nil
}
