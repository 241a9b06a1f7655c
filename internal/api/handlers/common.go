package handlers

import (
	"net/http"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/api/utils"
)

// HealthHandler is a simple liveness check endpoint.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"time":    time.Now().Format(time.RFC3339),
		"service": "pulsewatch",
	})
}
