package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pulsewatch/pulsewatch/internal/api/utils"
	"github.com/pulsewatch/pulsewatch/internal/scan"
)

// ScanService handles scan control and status.
type ScanService struct {
	Orchestrator *scan.Orchestrator
}

// NewScanService creates a new scan service.
func NewScanService(orchestrator *scan.Orchestrator) *ScanService {
	return &ScanService{Orchestrator: orchestrator}
}

// StatusHandler returns the current scan state. Never blocks.
func StatusHandler(svc *ScanService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, svc.Orchestrator.Status())
	}
}

// StartScanHandler begins a scan. 202 on launch, 409 while one is
// already running; callers poll /status and retry.
func StartScanHandler(svc *ScanService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.SendErrorResponse(w, utils.NewAPIError("invalid request body", http.StatusBadRequest))
			return
		}

		if err := svc.Orchestrator.Start(req.Mode); err != nil {
			switch {
			case errors.Is(err, scan.ErrConflict):
				utils.SendErrorResponse(w, utils.NewAPIError(err.Error(), http.StatusConflict))
			case errors.Is(err, scan.ErrInvalidMode):
				utils.SendErrorResponse(w, utils.NewAPIError(err.Error(), http.StatusBadRequest))
			default:
				utils.SendErrorResponse(w, utils.NewAPIError(err.Error(), http.StatusInternalServerError))
			}
			return
		}

		utils.WriteJSON(w, http.StatusAccepted, map[string]string{
			"status": "started",
			"mode":   req.Mode,
		})
	}
}
