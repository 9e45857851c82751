package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/redeem-checker/internal/delivery/http/request"
	"github.com/user/redeem-checker/internal/delivery/http/response"
	"github.com/user/redeem-checker/internal/profile"
	"github.com/user/redeem-checker/internal/usecase"
)

const maxSessionUpload = 1 << 20

// ProfileCatalog is the profile surface exposed over HTTP.
type ProfileCatalog interface {
	Public() []profile.Summary
	Load() error
	SaveSessionState(name string, payload []byte) (string, error)
}

// HealthCheck pings one backing service.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	jobs     usecase.JobManager
	profiles ProfileCatalog
	checks   map[string]HealthCheck
	logger   *zap.Logger
}

func NewHandler(jobs usecase.JobManager, profiles ProfileCatalog, checks map[string]HealthCheck, logger *zap.Logger) *Handler {
	return &Handler{
		jobs:     jobs,
		profiles: profiles,
		checks:   checks,
		logger:   logger,
	}
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Error("Health check failed", zap.String("service", name), zap.Error(err))
			status[name] = "unhealthy"
			healthy = false
			continue
		}
		status[name] = "healthy"
	}
	if !healthy {
		status["status"] = "degraded"
		h.writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) HandleListProfiles(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, response.NewProfilesResponse(h.profiles.Public()))
}

func (h *Handler) HandleReloadProfiles(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.Load(); err != nil {
		h.logger.Error("Failed to reload profiles", zap.Error(err))
		h.writeJSONError(w, "Failed to reload profiles", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewProfilesResponse(h.profiles.Public()))
}

func (h *Handler) HandleSaveSession(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSessionUpload))
	if err != nil {
		h.writeJSONError(w, "Session state too large or unreadable", http.StatusBadRequest)
		return
	}

	path, err := h.profiles.SaveSessionState(name, payload)
	switch {
	case errors.Is(err, profile.ErrProfileNotFound):
		h.writeJSONError(w, "Profile not found", http.StatusNotFound)
		return
	case errors.Is(err, profile.ErrInvalidSessionFile):
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("Failed to save session state", zap.String("profile", name), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.SessionSavedResponse{Profile: name, Path: path})
}

func (h *Handler) HandleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req request.SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := h.jobs.Submit(r.Context(), usecase.SubmitRequest{
		ProfileName:        req.ProfileName,
		URLOverride:        req.URLOverride,
		CreatedBy:          req.CreatedBy,
		CodesText:          req.CodesText,
		CodesCSV:           req.CodesCSV,
		Codes:              req.Codes,
		HTTPConcurrency:    req.HTTPConcurrency,
		BrowserConcurrency: req.BrowserConcurrency,
		MaxRetries:         req.MaxRetries,
		RequestDelayMS:     req.RequestDelayMS,
	})
	if err != nil {
		h.writeUsecaseError(w, "Failed to submit job", err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, response.NewSubmitJobResponse(summary))
}

func (h *Handler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.queryInt(w, r, "limit", 50)
	if !ok {
		return
	}
	jobs, err := h.jobs.ListJobs(r.Context(), limit)
	if err != nil {
		h.writeUsecaseError(w, "Failed to list jobs", err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewJobsResponse(jobs))
}

func (h *Handler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	detail, err := h.jobs.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeUsecaseError(w, "Failed to load job", err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewJobDetailResponse(detail))
}

func (h *Handler) HandleListResults(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.queryInt(w, r, "limit", 0)
	if !ok {
		return
	}
	offset, ok := h.queryInt(w, r, "offset", 0)
	if !ok {
		return
	}

	results, err := h.jobs.Results(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		h.writeUsecaseError(w, "Failed to list results", err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewResultsResponse(results))
}

func (h *Handler) HandleRerunUncertain(w http.ResponseWriter, r *http.Request) {
	summary, err := h.jobs.Rerun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeUsecaseError(w, "Failed to rerun job", err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.RerunResponse{Updated: summary.Updated, Message: summary.Message})
}

func (h *Handler) queryInt(w http.ResponseWriter, r *http.Request, key string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		h.writeJSONError(w, "Invalid "+key+" query parameter", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func (h *Handler) writeUsecaseError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, usecase.ErrJobNotFound):
		h.writeJSONError(w, "Job not found", http.StatusNotFound)
	case errors.Is(err, usecase.ErrProfileNotFound),
		errors.Is(err, usecase.ErrInvalidOverride),
		errors.Is(err, usecase.ErrNoCodes),
		errors.Is(err, usecase.ErrInvalidStatus):
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, usecase.ErrJobActive):
		h.writeJSONError(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error(msg, zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message})
}
