package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tracelens/internal/analysis"
	"tracelens/internal/analysis/session"
	"tracelens/internal/config"
	"tracelens/internal/models"
	"tracelens/internal/status"
)

// Handler holds the server dependencies
type Handler struct {
	cfg             *config.Config
	analyzer        *analysis.Analyzer
	sessionAnalyzer *session.Analyzer
	statuses        status.Store
	logger          *slog.Logger
}

// NewHandler creates a new handler
func NewHandler(cfg *config.Config, anlz *analysis.Analyzer, sess *session.Analyzer, statuses status.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:             cfg,
		analyzer:        anlz,
		sessionAnalyzer: sess,
		statuses:        statuses,
		logger:          logger,
	}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/experiment-summary/trigger-analysis", h.HandleTriggerAnalysis)
	r.Get("/experiment-summary/status/{experimentID}", h.HandleAnalysisStatus)
	r.Get("/experiment-summary/{experimentID}", h.HandleGetSummary)
	r.Post("/labeling-sessions/{sessionID}/analyze", h.HandleAnalyzeSession)
	r.Get("/labeling-sessions/{sessionID}/analysis/status", h.HandleSessionStatus)
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)
}

// TriggerRequest is the trigger-analysis request body.
type TriggerRequest struct {
	ExperimentID    string `json:"experiment_id"`
	Focus           string `json:"focus,omitempty"`
	TraceSampleSize int    `json:"trace_sample_size,omitempty"`
	ModelEndpoint   string `json:"model_endpoint,omitempty"`
}

// HandleTriggerAnalysis starts an experiment analysis in the background and
// acknowledges immediately; clients poll the status endpoint.
func (h *Handler) HandleTriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.ExperimentID == "" {
		http.Error(w, "experiment_id is required", http.StatusBadRequest)
		return
	}

	if req.ModelEndpoint != "" {
		// Per-request endpoint overrides are accepted for compatibility but
		// the configured provider is used for every run.
		h.logger.Warn("Ignoring model_endpoint override", "experimentID", req.ExperimentID, "modelEndpoint", req.ModelEndpoint)
	}

	if !h.statuses.TryStart(req.ExperimentID) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"status":  "rejected",
			"message": "an analysis for this experiment is already running",
		})
		return
	}

	h.logger.Info("Triggering experiment analysis", "experimentID", req.ExperimentID, "focus", req.Focus)

	// The request context dies with this handler; the analysis outlives it.
	go h.analyzer.RunAsync(context.Background(), req.ExperimentID, req.Focus, req.TraceSampleSize)

	st, _ := h.statuses.Get(req.ExperimentID)
	writeJSON(w, http.StatusAccepted, st)
}

// HandleAnalysisStatus returns the latest status of an experiment analysis.
func (h *Handler) HandleAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	experimentID := chi.URLParam(r, "experimentID")

	st, ok := h.statuses.Get(experimentID)
	if !ok {
		http.Error(w, "No analysis found for experiment", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// HandleGetSummary returns the stored analysis for an experiment, falling
// back to the legacy local report file.
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	experimentID := chi.URLParam(r, "experimentID")

	summary, err := h.analyzer.GetSummary(r.Context(), experimentID)
	if err != nil {
		h.logger.Error("Failed to load summary", "experimentID", experimentID, "error", err)
		http.Error(w, "Failed to load summary", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// HandleAnalyzeSession starts a labeling-session analysis in the background.
// The session payload (schemas, items, labels) arrives in the request body.
func (h *Handler) HandleAnalyzeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var sess models.LabelingSession
	if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
		http.Error(w, "Invalid session payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	sess.SessionID = sessionID

	key := sessionKey(sessionID)
	if !h.statuses.TryStart(key) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"status":  "rejected",
			"message": "an analysis for this session is already running",
		})
		return
	}

	h.logger.Info("Triggering session analysis", "sessionID", sessionID)

	go func() {
		h.statuses.Set(key, models.AnalysisStatus{Status: models.StatusRunning})
		result := h.sessionAnalyzer.AnalyzeSession(context.Background(), &sess)
		if result.Status == "error" {
			h.statuses.Set(key, models.AnalysisStatus{Status: models.StatusFailed, Message: result.Error})
			return
		}
		h.statuses.Set(key, models.AnalysisStatus{Status: models.StatusCompleted})
	}()

	st, _ := h.statuses.Get(key)
	writeJSON(w, http.StatusAccepted, st)
}

// HandleSessionStatus returns the latest status of a session analysis.
func (h *Handler) HandleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	st, ok := h.statuses.Get(sessionKey(sessionID))
	if !ok {
		http.Error(w, "No analysis found for session", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// HandleHealth returns health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReady returns readiness status
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
