// Package handler exposes the face engine over HTTP: enrollment,
// verification, similarity search, and capture session control.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"faceledger/internal/face/capture"
	"faceledger/internal/face/extract"
	"faceledger/internal/face/models"
	"faceledger/internal/face/service"
	"faceledger/internal/platform/metrics"
	"faceledger/internal/platform/middleware"
	dErrors "faceledger/pkg/domain-errors"
	"faceledger/pkg/platform/httputil"
	"faceledger/pkg/platform/sentinel"
)

// Engine defines the enrollment and verification operations the handler
// needs from the service layer.
type Engine interface {
	Store(ctx context.Context, req service.StoreRequest) (uuid.UUID, error)
	Verify(ctx context.Context, query models.Embedding, filter models.OwnerFilter, threshold float64) (models.VerificationResult, error)
	FindSimilar(ctx context.Context, query models.Embedding, threshold float64, excludeOwnerID string) ([]models.MatchResult, error)
	UpdateMetadata(ctx context.Context, id uuid.UUID, meta models.EnrollmentMetadata) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Sessions defines capture session control.
type Sessions interface {
	StartCapture(ctx context.Context, cameraID string) (capture.Handle, error)
	StopCapture(sessionID string) error
	ManualCapture(ctx context.Context, sessionID string) (*extract.Result, error)
}

// Handler handles face engine endpoints.
type Handler struct {
	logger   *slog.Logger
	engine   Engine
	sessions Sessions
	metrics  *metrics.Metrics

	// mu guards handles, the event channels of sessions started over HTTP.
	mu      sync.Mutex
	handles map[string]capture.Handle
}

// New creates a face Handler.
func New(engine Engine, sessions Sessions, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		engine:   engine,
		sessions: sessions,
		metrics:  metrics,
		handles:  make(map[string]capture.Handle),
	}
}

// Register registers the face routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	faceRouter := chi.NewRouter()
	faceRouter.Use(middleware.Recovery(h.logger))
	faceRouter.Use(middleware.RequestID)
	faceRouter.Use(middleware.Logger(h.logger))
	faceRouter.Use(middleware.Latency(h.metrics))

	faceRouter.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Post("/face/embeddings", h.handleStore)
		r.Post("/face/verify", h.handleVerify)
		r.Post("/face/similar", h.handleFindSimilar)
		r.Patch("/face/embeddings/{id}", h.handleUpdateMetadata)
		r.Delete("/face/embeddings/{id}", h.handleDelete)
		r.Post("/face/sessions", h.handleStartSession)
		r.Delete("/face/sessions/{id}", h.handleStopSession)
		r.Post("/face/sessions/{id}/capture", h.handleManualCapture)
	})

	// The event stream manages its own lifetime; the shared timeout would
	// sever it mid-session.
	faceRouter.Get("/face/sessions/{id}/events", h.handleSessionEvents)

	r.Mount("/", faceRouter)
}

type storeRequest struct {
	OwnerID             string           `json:"owner_id"`
	OwnerName           string           `json:"owner_name"`
	Embedding           models.Embedding `json:"embedding"`
	QualityScore        float64          `json:"quality_score"`
	DetectionConfidence float64          `json:"detection_confidence"`
	ConsentGiven        bool             `json:"consent_given"`
	RetentionExpiresAt  *time.Time       `json:"retention_expires_at,omitempty"`
}

type storeResponse struct {
	ID string `json:"id"`
}

func (h *Handler) handleStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	id, err := h.engine.Store(ctx, service.StoreRequest{
		OwnerID:             req.OwnerID,
		OwnerName:           req.OwnerName,
		Embedding:           req.Embedding,
		QualityScore:        req.QualityScore,
		DetectionConfidence: req.DetectionConfidence,
		ConsentGiven:        req.ConsentGiven,
		RetentionExpiresAt:  req.RetentionExpiresAt,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "store embedding failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, storeResponse{ID: id.String()})
}

type verifyRequest struct {
	Embedding models.Embedding `json:"embedding"`
	Threshold float64          `json:"threshold"`
	Filter    struct {
		OwnerID      string `json:"owner_id,omitempty"`
		NameContains string `json:"name_contains,omitempty"`
	} `json:"filter"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	res, err := h.engine.Verify(ctx, req.Embedding, models.OwnerFilter{
		OwnerID:      req.Filter.OwnerID,
		NameContains: req.Filter.NameContains,
	}, req.Threshold)
	if err != nil {
		h.logger.WarnContext(ctx, "verification failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, res)
}

type similarRequest struct {
	Embedding      models.Embedding `json:"embedding"`
	Threshold      float64          `json:"threshold"`
	ExcludeOwnerID string           `json:"exclude_owner_id,omitempty"`
}

type similarResponse struct {
	Matches []models.MatchResult `json:"matches"`
}

func (h *Handler) handleFindSimilar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req similarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	matches, err := h.engine.FindSimilar(ctx, req.Embedding, req.Threshold, req.ExcludeOwnerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, similarResponse{Matches: matches})
}

func (h *Handler) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid embedding id"))
		return
	}

	var meta models.EnrollmentMetadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.engine.UpdateMetadata(r.Context(), id, meta); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid embedding id"))
		return
	}

	if err := h.engine.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type startSessionRequest struct {
	CameraID string `json:"camera_id"`
}

type startSessionResponse struct {
	SessionID string `json:"session_id"`
	CameraID  string `json:"camera_id"`
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CameraID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "camera_id is required"))
		return
	}

	handle, err := h.sessions.StartCapture(ctx, req.CameraID)
	if err != nil {
		h.logger.WarnContext(ctx, "capture start failed",
			"request_id", middleware.GetRequestID(ctx),
			"camera_id", req.CameraID,
			"error", err.Error(),
		)
		httputil.WriteError(w, captureError(err))
		return
	}

	h.rememberEvents(handle)
	httputil.WriteJSON(w, http.StatusCreated, startSessionResponse{
		SessionID: handle.SessionID,
		CameraID:  handle.CameraID,
	})
}

func (h *Handler) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := h.sessions.StopCapture(sessionID); err != nil {
		httputil.WriteError(w, captureError(err))
		return
	}
	h.forgetEvents(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

type captureResponse struct {
	Embedding models.Embedding `json:"embedding"`
	Detection models.Detection `json:"detection"`
	Quality   float64          `json:"quality"`
}

func (h *Handler) handleManualCapture(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	res, err := h.sessions.ManualCapture(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, captureError(err))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, captureResponse{
		Embedding: res.Embedding,
		Detection: res.Detection,
		Quality:   res.Quality,
	})
}

// captureError maps the capture taxonomy onto coded errors for transport.
func captureError(err error) error {
	switch {
	case dErrors.As(err, new(*dErrors.Error)):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "session not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "capture already in progress")
	case errors.Is(err, models.ErrNoFaceDetected):
		return dErrors.Wrap(err, dErrors.CodeValidation, "no face in the current frame")
	case errors.Is(err, models.ErrCameraAccessDenied):
		return dErrors.Wrap(err, dErrors.CodeForbidden, "camera access denied")
	case errors.Is(err, models.ErrDeviceUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "capture device unavailable")
	case errors.Is(err, models.ErrModelUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "descriptor model unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "capture failed")
	}
}
