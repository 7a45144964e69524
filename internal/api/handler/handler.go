// Package handler provides HTTP handlers for all API endpoints.
// Session endpoints drive the arrival.Manager directly; there is no service
// layer in between.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/albapepper/arrival/internal/api/respond"
	"github.com/albapepper/arrival/internal/arrival"
	"github.com/albapepper/arrival/internal/config"
)

// Sessions is the part of arrival.Manager the handlers use.
type Sessions interface {
	Start(ctx context.Context, userID string) (*arrival.Session, error)
	Stop(userID string) bool
	Get(userID string) (*arrival.Session, bool)
	Len() int
}

// ActivityRecorder stores "user interacted with the app" timestamps.
type ActivityRecorder interface {
	Touch(ctx context.Context, userID string, at time.Time) error
}

// HealthChecker verifies database connectivity.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	sessions Sessions
	pois     arrival.POIProvider
	activity ActivityRecorder
	db       HealthChecker
	cfg      *config.Config
	now      func() time.Time
}

// New creates a Handler with shared dependencies. activity and db may be nil
// when no database is configured.
func New(sessions Sessions, pois arrival.POIProvider, activity ActivityRecorder, db HealthChecker, cfg *config.Config) *Handler {
	return &Handler{
		sessions: sessions,
		pois:     pois,
		activity: activity,
		db:       db,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, status, and session count.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"name":     "Arrival Engine API",
		"version":  "1.0.0",
		"status":   "running",
		"docs":     "/docs",
		"sessions": h.sessions.Len(),
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.db == nil || h.db.HealthCheck(r.Context()) != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": h.now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
