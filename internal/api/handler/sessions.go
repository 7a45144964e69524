package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/arrival/internal/api/respond"
	"github.com/albapepper/arrival/internal/arrival"
	"github.com/albapepper/arrival/internal/location"
)

const maxReportBytes = 64 << 10

func userID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "userID"))
	return id, id != ""
}

// StartSession starts monitoring for a user (login or "enable arrival").
// @Summary Start a monitoring session
// @Description Loads points of interest and starts the motion and proximity loops. Idempotent.
// @Tags sessions
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} arrival.Status
// @Failure 503 {object} respond.ErrorResponse
// @Router /api/v1/sessions/{userID} [post]
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_USER", "User ID is required")
		return
	}

	s, err := h.sessions.Start(r.Context(), id)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusServiceUnavailable, "SESSION_START_FAILED",
			"Could not start session", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, s.Status())
}

// StopSession stops monitoring for a user (logout or "disable arrival").
// @Summary Stop a monitoring session
// @Tags sessions
// @Param userID path string true "User ID"
// @Success 204
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/sessions/{userID} [delete]
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r)
	if !h.sessions.Stop(id) {
		respond.WriteError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "No session for user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSession returns driving state, poll interval, zones and the last
// location error.
// @Summary Session status
// @Tags sessions
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} arrival.Status
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/sessions/{userID} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r)
	s, ok := h.sessions.Get(id)
	if !ok {
		respond.WriteError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "No session for user")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, s.Status())
}

// PostFix ingests one device location report.
// @Summary Report a location fix
// @Description Pushes a fix (or a location error such as permission_denied) into the user's session.
// @Tags sessions
// @Accept json
// @Param userID path string true "User ID"
// @Param report body location.Report true "Location report"
// @Success 202
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /api/v1/sessions/{userID}/fixes [post]
func (h *Handler) PostFix(w http.ResponseWriter, r *http.Request) {
	id, _ := userID(r)
	s, ok := h.sessions.Get(id)
	if !ok {
		respond.WriteError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "No session for user")
		return
	}

	var report location.Report
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReportBytes)).Decode(&report); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_REPORT", "Malformed location report", err.Error())
		return
	}

	var err error
	if report.Error != "" {
		reason, perr := location.ParseReason(report.Error)
		if perr != nil {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_REPORT", "Unknown location error", perr.Error())
			return
		}
		err = s.ReportUnavailable(reason)
	} else {
		fix, ferr := report.ToFix(time.Now())
		if ferr != nil {
			respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_FIX", "Invalid location fix", ferr.Error())
			return
		}
		err = s.PushFix(fix)
	}

	switch {
	case errors.Is(err, arrival.ErrNotRunning):
		respond.WriteError(w, http.StatusConflict, "SESSION_NOT_RUNNING", "Session is not running")
		return
	case location.IsRejection(err):
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_FIX", "Invalid location fix", err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// PostActivity records that the user just interacted with the app. The
// motion path uses it to decide between an immediate and a deferred valet
// prompt.
// @Summary Mark user active
// @Tags sessions
// @Param userID path string true "User ID"
// @Success 204
// @Failure 503 {object} respond.ErrorResponse
// @Router /api/v1/sessions/{userID}/activity [post]
func (h *Handler) PostActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_USER", "User ID is required")
		return
	}
	if h.activity == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "ACTIVITY_UNAVAILABLE", "Activity tracking is not configured")
		return
	}
	if err := h.activity.Touch(r.Context(), id, h.now()); err != nil {
		respond.WriteErrorDetail(w, http.StatusServiceUnavailable, "ACTIVITY_UNAVAILABLE", "Could not record activity", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
