// health_handler.go -- Liveness (GET /health) and dependency health
// (GET /actuator/health, ACTUATOR only).
package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MGallo-Code/cloudy/internal/reqlog"
	"github.com/MGallo-Code/cloudy/internal/store"
)

// Health handles GET /health. It never touches backing services.
func (h *AuthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"UP"}`))
}

// CheckHealth handles GET /actuator/health -- pings Postgres and Redis, returns per-dependency status.
// Returns 200 if both are healthy (or Redis is disabled), 503 if either is down.
func (h *AuthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	redisStatus := "ok"
	postgresStatus := "ok"

	if err := h.RS.CheckHealth(r.Context()); err != nil {
		if errors.Is(err, store.ErrCacheDisabled) {
			redisStatus = "disabled"
		} else {
			reqlog.Error(r, "redis health check failed", "error", err)
			redisStatus = "error"
		}
	}
	if err := h.PS.CheckHealth(r.Context()); err != nil {
		reqlog.Error(r, "postgres health check failed", "error", err)
		postgresStatus = "error"
	}

	status := "UP"
	code := http.StatusOK
	if redisStatus == "error" || postgresStatus == "error" {
		status = "DOWN"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(struct {
		Status   string `json:"status"`
		Postgres string `json:"postgres"`
		Redis    string `json:"redis"`
	}{status, postgresStatus, redisStatus})
}
