package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/complyvault/compliance-backend/internal/domain/audit"
	"github.com/complyvault/compliance-backend/internal/domain/compliance"
	"github.com/complyvault/compliance-backend/internal/domain/errors"
	"github.com/complyvault/compliance-backend/internal/service/restore"
	"github.com/complyvault/compliance-backend/internal/service/stepup"
)

// Service interfaces consumed by the handlers; the concrete implementations
// live in internal/service.
type (
	RestorePointLister interface {
		ListRestorePoints(ctx context.Context, orgID uuid.UUID, since time.Time) ([]audit.RestorePoint, error)
	}

	RecordRestoreService interface {
		Restore(ctx context.Context, req restore.RecordRestoreRequest) (*restore.RecordRestoreResult, error)
	}

	SessionRestoreService interface {
		Restore(ctx context.Context, req restore.SessionRestoreRequest) (*restore.SessionRestoreResult, error)
	}

	PreviewService interface {
		PreviewRecord(ctx context.Context, orgID, actorID uuid.UUID, table, recordID string, ts time.Time) (*restore.RecordPreview, error)
		PreviewSession(ctx context.Context, orgID, actorID uuid.UUID, sessionID string) (*restore.SessionPreview, error)
	}

	ActivityService interface {
		UserActivitySummary(ctx context.Context, orgID uuid.UUID, start, end time.Time) ([]audit.ActivitySummary, error)
	}

	HistoryService interface {
		History(ctx context.Context, orgID uuid.UUID, table, recordID string, limit int) ([]*audit.Event, error)
	}

	RestoreHistoryLister interface {
		ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]*audit.RestoreHistory, error)
	}

	SnapshotReader interface {
		ListByOrganization(ctx context.Context, orgID uuid.UUID, since time.Time) ([]*compliance.Snapshot, error)
	}

	SnapshotRunner interface {
		SnapshotOrganization(ctx context.Context, orgID uuid.UUID, date time.Time) ([]*compliance.Snapshot, error)
	}

	StepUpService interface {
		CreateVerificationSession(ctx context.Context, userID, orgID uuid.UUID, operationType string, risk stepup.RiskLevel) (*stepup.Session, error)
		CompleteFactor(ctx context.Context, sessionID, factorType string) error
	}

	HealthChecker interface {
		HealthCheck(ctx context.Context) error
	}
)

// Handler holds the route handlers and their dependencies.
type Handler struct {
	restorePoints  RestorePointLister
	recordRestore  RecordRestoreService
	sessionRestore SessionRestoreService
	preview        PreviewService
	activity       ActivityService
	history        HistoryService
	restoreHistory RestoreHistoryLister
	snapshots      SnapshotReader
	snapshotRunner SnapshotRunner
	stepUp         StepUpService
	tokens         *stepup.TokenIssuer
	recordRisk     stepup.RiskLevel
	sessionRisk    stepup.RiskLevel
	health         HealthChecker
	logger         *zap.Logger
}

// HandlerDeps bundles the handler's dependencies.
type HandlerDeps struct {
	RestorePoints  RestorePointLister
	RecordRestore  RecordRestoreService
	SessionRestore SessionRestoreService
	Preview        PreviewService
	Activity       ActivityService
	History        HistoryService
	RestoreHistory RestoreHistoryLister
	Snapshots      SnapshotReader
	SnapshotRunner SnapshotRunner
	StepUp         StepUpService
	Tokens         *stepup.TokenIssuer
	RecordRisk     stepup.RiskLevel
	SessionRisk    stepup.RiskLevel
	Health         HealthChecker
	Logger         *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		restorePoints:  deps.RestorePoints,
		recordRestore:  deps.RecordRestore,
		sessionRestore: deps.SessionRestore,
		preview:        deps.Preview,
		activity:       deps.Activity,
		history:        deps.History,
		restoreHistory: deps.RestoreHistory,
		snapshots:      deps.Snapshots,
		snapshotRunner: deps.SnapshotRunner,
		stepUp:         deps.StepUp,
		tokens:         deps.Tokens,
		recordRisk:     deps.RecordRisk,
		sessionRisk:    deps.SessionRisk,
		health:         deps.Health,
		logger:         deps.Logger.Named("rest"),
	}
}

// Routes builds the route table. Authenticated routes sit behind the identity
// middleware; health does not.
func (h *Handler) Routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/audit/restore-points", h.listRestorePoints)
	api.HandleFunc("GET /api/v1/audit/records/{table}/{id}/history", h.recordHistory)
	api.HandleFunc("GET /api/v1/audit/activity", h.userActivity)
	api.HandleFunc("GET /api/v1/audit/restore-history", h.listRestoreHistory)
	api.HandleFunc("POST /api/v1/audit/restore/record", h.restoreRecord)
	api.HandleFunc("POST /api/v1/audit/restore/session", h.restoreSession)
	api.HandleFunc("POST /api/v1/audit/restore/preview", h.previewChanges)
	api.HandleFunc("GET /api/v1/compliance/snapshots", h.listSnapshots)
	api.HandleFunc("POST /api/v1/compliance/snapshots/run", h.runSnapshot)
	api.HandleFunc("POST /api/v1/step-up/sessions", h.createStepUpSession)
	api.HandleFunc("POST /api/v1/step-up/sessions/{id}/factors", h.completeStepUpFactor)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.Handle("/api/v1/", IdentityMiddleware(h.logger)(api))
	return mux
}

func (h *Handler) listRestorePoints(w http.ResponseWriter, r *http.Request) {
	since, err := queryTime(r, "since", time.Now().Add(-7*24*time.Hour))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	points, err := h.restorePoints.ListRestorePoints(r.Context(), OrgID(r.Context()), since)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"restore_points": points})
}

func (h *Handler) recordHistory(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	recordID := r.PathValue("id")

	events, err := h.history.History(r.Context(), OrgID(r.Context()), table, recordID, 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (h *Handler) listRestoreHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	entries, err := h.restoreHistory.ListByOrganization(r.Context(), OrgID(r.Context()), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"restore_history": entries})
}

func (h *Handler) userActivity(w http.ResponseWriter, r *http.Request) {
	end, err := queryTime(r, "end", time.Now().UTC())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	start, err := queryTime(r, "start", end.Add(-24*time.Hour))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	summaries, err := h.activity.UserActivitySummary(r.Context(), OrgID(r.Context()), start, end)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"activity": summaries})
}

func (h *Handler) restoreRecord(w http.ResponseWriter, r *http.Request) {
	var req restoreRecordRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.recordRestore.Restore(r.Context(), restore.RecordRestoreRequest{
		OrganizationID:  OrgID(r.Context()),
		ActorID:         UserID(r.Context()),
		StepUpSessionID: h.sessionFromToken(req.StepUpToken),
		TableName:       req.TableName,
		RecordID:        req.RecordID,
		Timestamp:       req.Timestamp,
		Reason:          req.Reason,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) restoreSession(w http.ResponseWriter, r *http.Request) {
	var req restoreSessionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.sessionRestore.Restore(r.Context(), restore.SessionRestoreRequest{
		OrganizationID:  OrgID(r.Context()),
		ActorID:         UserID(r.Context()),
		StepUpSessionID: h.sessionFromToken(req.StepUpToken),
		SessionID:       req.SessionID,
		Reason:          req.Reason,
	})
	if err != nil {
		// A partial restore still returns the outcome alongside the error
		// envelope status.
		if errors.IsType(err, errors.ErrorTypePartial) && result != nil {
			writeJSON(w, errors.GetStatusCode(err), result)
			return
		}
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) previewChanges(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	ctx := r.Context()
	switch req.Type {
	case "record":
		preview, err := h.preview.PreviewRecord(ctx, OrgID(ctx), UserID(ctx), req.TableName, req.RecordID, req.Timestamp)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	case "session":
		preview, err := h.preview.PreviewSession(ctx, OrgID(ctx), UserID(ctx), req.SessionID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	}
}

func (h *Handler) listSnapshots(w http.ResponseWriter, r *http.Request) {
	since, err := queryTime(r, "since", time.Now().AddDate(0, -3, 0))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	snapshots, err := h.snapshots.ListByOrganization(r.Context(), OrgID(r.Context()), since)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"snapshots": snapshots})
}

func (h *Handler) runSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.snapshotRunner.SnapshotOrganization(r.Context(), OrgID(r.Context()), time.Now().UTC())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"snapshots": snapshots})
}

func (h *Handler) createStepUpSession(w http.ResponseWriter, r *http.Request) {
	var req createStepUpRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	risk := h.recordRisk
	if req.OperationType == "session_restore" {
		risk = h.sessionRisk
	}

	ctx := r.Context()
	session, err := h.stepUp.CreateVerificationSession(ctx, UserID(ctx), OrgID(ctx), req.OperationType, risk)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	token, err := h.tokens.Mint(session)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, stepUpSessionResponse{
		SessionID:       session.ID,
		Token:           token,
		RiskLevel:       string(session.RiskLevel),
		RequiredFactors: session.RequiredFactors,
		ExpiresAt:       session.ExpiresAt,
	})
}

func (h *Handler) completeStepUpFactor(w http.ResponseWriter, r *http.Request) {
	var req completeFactorRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.stepUp.CompleteFactor(r.Context(), r.PathValue("id"), req.FactorType); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionFromToken resolves a signed step-up token to its session ID. Any
// parse failure yields the empty ID, which downstream reads as "no step-up";
// the gate stays fail-closed.
func (h *Handler) sessionFromToken(token string) string {
	if token == "" {
		return ""
	}
	sessionID, _, _, err := h.tokens.Parse(token)
	if err != nil {
		h.logger.Warn("step-up token rejected", zap.Error(err))
		return ""
	}
	return sessionID
}
