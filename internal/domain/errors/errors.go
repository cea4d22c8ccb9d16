package errors

import (
	"errors"
	"fmt"
)

// Error types for different domains
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeBusiness     ErrorType = "business"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeStepUp       ErrorType = "step_up_required"
	ErrorTypePartial      ErrorType = "partial_failure"
	ErrorTypeStorage      ErrorType = "storage"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewBusinessError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeBusiness,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 422,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

// NewAuthorizationError reports that the actor is not an active member of the
// organization the operation targets. Cross-tenant access is rejected with the
// same error before any data is read.
func NewAuthorizationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       "NOT_ORG_MEMBER",
		Message:    message,
		Retryable:  false,
		StatusCode: 403,
	}
}

// NewStepUpRequiredError reports that a risk-gated operation needs a satisfied
// step-up verification session. The caller must complete verification and retry.
func NewStepUpRequiredError(riskLevel string) *AppError {
	return &AppError{
		Type:       ErrorTypeStepUp,
		Code:       "STEP_UP_REQUIRED",
		Message:    fmt.Sprintf("operation requires %s-risk step-up verification", riskLevel),
		Retryable:  false,
		StatusCode: 403,
		Details:    map[string]interface{}{"risk_level": riskLevel},
	}
}

// NewNoHistoryError reports that the record has no audit history at or before
// the requested restore point, i.e. it did not exist at that time.
func NewNoHistoryError(table, recordID string) *AppError {
	return &AppError{
		Type:       ErrorTypeBusiness,
		Code:       "NO_HISTORY_AT_TIMESTAMP",
		Message:    fmt.Sprintf("record %s in %s has no state at the requested timestamp", recordID, table),
		Retryable:  false,
		StatusCode: 422,
		Details:    map[string]interface{}{"table": table, "record_id": recordID},
	}
}

// NewUnsupportedTableError reports that the table is not in the restore
// allow-list; no generic blind write is attempted.
func NewUnsupportedTableError(table string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       "UNSUPPORTED_TABLE",
		Message:    fmt.Sprintf("table %q is not restorable", table),
		Retryable:  false,
		StatusCode: 422,
		Details:    map[string]interface{}{"table": table},
	}
}

// NewPartialRestoreError reports a session restore that completed with some
// inversions failed. The per-item errors tell the caller what remains.
func NewPartialRestoreError(attempted, failed int) *AppError {
	return &AppError{
		Type:       ErrorTypePartial,
		Code:       "PARTIAL_RESTORE",
		Message:    fmt.Sprintf("restored %d of %d changes", attempted-failed, attempted),
		Retryable:  false,
		StatusCode: 207,
		Details:    map[string]interface{}{"attempted": attempted, "failed": failed},
	}
}

// NewStorageError wraps an underlying transaction or connection failure. This
// is the only class a caller should read as "fatal, try again".
func NewStorageError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeStorage,
		Code:       "STORAGE_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsCode checks if an error carries a specific error code
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
