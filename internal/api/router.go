package api

import (
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pulsewatch/pulsewatch/internal/actions"
	"github.com/pulsewatch/pulsewatch/internal/api/handlers"
	"github.com/pulsewatch/pulsewatch/internal/api/utils"
	"github.com/pulsewatch/pulsewatch/internal/archive"
	"github.com/pulsewatch/pulsewatch/internal/auth"
	"github.com/pulsewatch/pulsewatch/internal/logstream"
	"github.com/pulsewatch/pulsewatch/internal/scan"
	"github.com/pulsewatch/pulsewatch/internal/store"
)

// Deps carries the components the router binds together.
type Deps struct {
	Store        *store.Store
	Archive      *archive.Archive // nil disables the archive routes
	Orchestrator *scan.Orchestrator
	Dispatcher   *actions.Dispatcher
	Broadcaster  *logstream.Broadcaster
	AuthSvc      *auth.Service
	Logger       *zap.Logger
}

// Router sets up the main API router with all routes. The API is a thin
// translation layer: parsing, component calls, status-code mapping.
func Router(deps Deps) *mux.Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	router := mux.NewRouter()

	router.Use(utils.RecoveryMiddleware(deps.Logger))
	router.Use(utils.RequestValidationMiddleware)
	router.Use(utils.RequestLogMiddleware(deps.Logger))
	router.Use(utils.RateLimitMiddleware(rate.Limit(50), 100))

	reportService := handlers.NewReportService(deps.Store, deps.Archive, deps.Logger)
	scanService := handlers.NewScanService(deps.Orchestrator)
	actionService := handlers.NewActionService(deps.Dispatcher)
	streamService := handlers.NewStreamService(deps.Broadcaster, deps.Logger)

	// Read-only routes consumed by the dashboard.
	router.HandleFunc("/health", handlers.HealthHandler).Methods("GET")
	router.HandleFunc("/data", handlers.LatestHandler(reportService)).Methods("GET")
	router.HandleFunc("/history", handlers.HistoryHandler(reportService)).Methods("GET")
	router.HandleFunc("/hosts", handlers.HostsHandler(reportService)).Methods("GET")
	router.HandleFunc("/status", handlers.StatusHandler(scanService)).Methods("GET")
	router.HandleFunc("/stream", handlers.SSEHandler(streamService)).Methods("GET")
	router.HandleFunc("/ws", handlers.WSHandler(streamService)).Methods("GET")
	router.HandleFunc("/api/reports", handlers.ArchivedReportsHandler(reportService)).Methods("GET")
	router.HandleFunc("/api/reports/{id}", handlers.ArchivedReportHandler(reportService)).Methods("GET")

	// Mutating routes carry the collector bearer token when configured.
	protected := router.NewRoute().Subrouter()
	protected.Use(deps.AuthSvc.Middleware)

	protected.HandleFunc("/upload", handlers.IngestHandler(reportService)).Methods("POST")
	protected.HandleFunc("/api/report", handlers.IngestHandler(reportService)).Methods("POST")
	protected.HandleFunc("/start-scan", handlers.StartScanHandler(scanService)).Methods("POST")
	protected.HandleFunc("/action/kill", handlers.KillHandler(actionService)).Methods("POST")
	protected.HandleFunc("/action/suspend", handlers.SuspendHandler(actionService)).Methods("POST")
	protected.HandleFunc("/action/resume", handlers.ResumeHandler(actionService)).Methods("POST")
	protected.HandleFunc("/action/clear_temp", handlers.ClearTempHandler(actionService)).Methods("POST")
	protected.HandleFunc("/action/boost", handlers.BoostHandler(actionService)).Methods("POST")

	return router
}
