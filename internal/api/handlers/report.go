package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/internal/api/utils"
	"github.com/pulsewatch/pulsewatch/internal/archive"
	"github.com/pulsewatch/pulsewatch/internal/models"
	"github.com/pulsewatch/pulsewatch/internal/store"
)

// ReportService handles report ingest and queries.
type ReportService struct {
	Store   *store.Store
	Archive *archive.Archive // nil when archiving is disabled
	Logger  *zap.Logger
}

// NewReportService creates a new report service.
func NewReportService(st *store.Store, arch *archive.Archive, logger *zap.Logger) *ReportService {
	return &ReportService{Store: st, Archive: arch, Logger: logger}
}

// IngestHandler accepts a collector report. Served on both /upload and
// /api/report — the two route names live in different collector
// generations.
func IngestHandler(svc *ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var report models.Report
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
			utils.SendErrorResponse(w, utils.NewAPIError("invalid request body", http.StatusBadRequest))
			return
		}

		stored, err := svc.Store.Ingest(report)
		if err != nil {
			if errors.Is(err, store.ErrValidation) {
				utils.SendErrorResponse(w, utils.NewAPIError(err.Error(), http.StatusBadRequest))
				return
			}
			svc.Logger.Error("ingest failed", zap.Error(err))
			utils.SendErrorResponse(w, utils.NewAPIError("failed to store report", http.StatusInternalServerError))
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"id":     stored.ID,
			"score":  stored.Score,
		})
	}
}

// LatestHandler returns the most recent report, optionally filtered by
// the ?host= query parameter.
func LatestHandler(svc *ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.Store.Latest(r.URL.Query().Get("host"))
		if err != nil {
			utils.SendErrorResponse(w, utils.NewAPIError(err.Error(), http.StatusNotFound))
			return
		}
		utils.WriteJSON(w, http.StatusOK, report)
	}
}

// HistoryHandler returns recent history entries, oldest first. An empty
// store yields an empty array, never an error.
func HistoryHandler(svc *ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			value, err := strconv.Atoi(raw)
			if err != nil || value < 0 {
				utils.SendErrorResponse(w, utils.NewAPIError("invalid limit", http.StatusBadRequest))
				return
			}
			limit = value
		}
		utils.WriteJSON(w, http.StatusOK, svc.Store.History(limit))
	}
}

// HostsHandler lists every known host for the fleet view.
func HostsHandler(svc *ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, svc.Store.Hosts())
	}
}

// ArchivedReportsHandler lists archived reports newest-first. Responds
// 404 when the deployment runs without an archive database.
func ArchivedReportsHandler(svc *ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc.Archive == nil {
			utils.SendErrorResponse(w, utils.NewAPIError("report archive is not enabled", http.StatusNotFound))
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		records, err := svc.Archive.Recent(limit, offset)
		if err != nil {
			svc.Logger.Error("archive listing failed", zap.Error(err))
			utils.SendErrorResponse(w, utils.NewAPIError("failed to list archived reports", http.StatusInternalServerError))
			return
		}
		utils.WriteJSON(w, http.StatusOK, records)
	}
}

// ArchivedReportHandler returns one archived report with its payload.
func ArchivedReportHandler(svc *ReportService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc.Archive == nil {
			utils.SendErrorResponse(w, utils.NewAPIError("report archive is not enabled", http.StatusNotFound))
			return
		}

		report, err := svc.Archive.Get(mux.Vars(r)["id"])
		if err != nil {
			if errors.Is(err, archive.ErrNotFound) {
				utils.SendErrorResponse(w, utils.NewAPIError("report not found", http.StatusNotFound))
				return
			}
			svc.Logger.Error("archive lookup failed", zap.Error(err))
			utils.SendErrorResponse(w, utils.NewAPIError("failed to load archived report", http.StatusInternalServerError))
			return
		}
		utils.WriteJSON(w, http.StatusOK, report)
	}
}
