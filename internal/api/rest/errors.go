package rest

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/complyvault/compliance-backend/internal/domain/errors"
)

// errorEnvelope is the wire shape of every non-2xx response.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Type    string                 `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// writeError maps an application error onto its HTTP status and JSON body.
// Unknown errors become opaque 500s; internals never leak to clients.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		logger.Error("unclassified handler error", zap.Error(err))
		appErr = errors.NewInternalError("an internal error occurred")
	}

	if appErr.StatusCode >= 500 {
		logger.Error("request failed", zap.String("code", appErr.Code), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{
		Type:    string(appErr.Type),
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
