package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pulsewatch/pulsewatch/internal/actions"
	"github.com/pulsewatch/pulsewatch/internal/api/utils"
	"github.com/pulsewatch/pulsewatch/internal/models"
)

// ActionService handles remote-control actions. Action routes always
// answer 200 with a {status: ok|error} body; the envelope, not the HTTP
// status, is the contract the dashboard consumes.
type ActionService struct {
	Dispatcher *actions.Dispatcher
}

// NewActionService creates a new action service.
func NewActionService(dispatcher *actions.Dispatcher) *ActionService {
	return &ActionService{Dispatcher: dispatcher}
}

type pidRequest struct {
	PID int `json:"pid"`
}

// KillHandler terminates a process by pid.
func KillHandler(svc *ActionService) http.HandlerFunc {
	return pidAction(svc, "kill", func(svc *ActionService, pid int) error {
		return svc.Dispatcher.Kill(pid)
	})
}

// SuspendHandler suspends a process by pid.
func SuspendHandler(svc *ActionService) http.HandlerFunc {
	return pidAction(svc, "suspend", func(svc *ActionService, pid int) error {
		return svc.Dispatcher.Suspend(pid)
	})
}

// ResumeHandler resumes a suspended process by pid.
func ResumeHandler(svc *ActionService) http.HandlerFunc {
	return pidAction(svc, "resume", func(svc *ActionService, pid int) error {
		return svc.Dispatcher.Resume(pid)
	})
}

func pidAction(svc *ActionService, name string, run func(*ActionService, int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pidRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.SendErrorResponse(w, utils.NewAPIError("invalid request body", http.StatusBadRequest))
			return
		}

		if err := run(svc, req.PID); err != nil {
			status := http.StatusOK
			if errors.Is(err, actions.ErrNotFound) {
				status = http.StatusNotFound
			}
			utils.WriteJSON(w, status, models.ActionResult{
				Status: "error",
				Detail: err.Error(),
			})
			return
		}

		utils.SendSuccessResponse(w, models.ActionResult{Status: "ok"})
	}
}

// ClearTempHandler sweeps the configured temp directories.
func ClearTempHandler(svc *ActionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed := svc.Dispatcher.ClearTemp()
		utils.SendSuccessResponse(w, models.ActionResult{
			Status:  "ok",
			Removed: removed,
		})
	}
}

// BoostHandler applies best-effort system adjustments.
func BoostHandler(svc *ActionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.SendErrorResponse(w, utils.NewAPIError("invalid request body", http.StatusBadRequest))
			return
		}

		steps, err := svc.Dispatcher.Boost(req.Mode)
		if err != nil {
			utils.WriteJSON(w, http.StatusBadRequest, models.ActionResult{
				Status: "error",
				Detail: err.Error(),
			})
			return
		}

		utils.SendSuccessResponse(w, models.ActionResult{
			Status: "ok",
			Steps:  steps,
		})
	}
}
