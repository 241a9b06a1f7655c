package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/internal/actions"
	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/api/utils"
	"github.com/pulsewatch/pulsewatch/internal/archive"
	"github.com/pulsewatch/pulsewatch/internal/auth"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/logstream"
	"github.com/pulsewatch/pulsewatch/internal/scan"
	"github.com/pulsewatch/pulsewatch/internal/store"
)

func main() {
	// Missing .env is fine; the environment itself still applies.
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	flag.Parse()

	logger := utils.GetLogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	var arch *archive.Archive
	if cfg.DatabaseDSN != "" {
		arch, err = archive.Open(cfg.DatabaseDSN, utils.GetGormLogger())
		if err != nil {
			logger.Fatal("failed to open report archive", zap.Error(err))
		}
		logger.Info("report archive enabled")
	}

	broadcaster := logstream.New(cfg.LogBufferSize, logger)
	reportStore := store.New(cfg.HistoryCapacity, archiverOrNil(arch), logger)
	orchestrator := scan.New(cfg.ScanCommand, cfg.ScanTimeout(), broadcaster, logger)
	dispatcher := actions.New(cfg.TempDirs, cfg.TempMinAge(), broadcaster, logger)
	authSvc := auth.NewService(cfg.APIToken)

	router := api.Router(api.Deps{
		Store:        reportStore,
		Archive:      arch,
		Orchestrator: orchestrator,
		Dispatcher:   dispatcher,
		Broadcaster:  broadcaster,
		AuthSvc:      authSvc,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("pulsewatch listening", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	orchestrator.Wait()
}

// archiverOrNil avoids handing the store a non-nil interface wrapping a
// nil *archive.Archive.
func archiverOrNil(arch *archive.Archive) store.Archiver {
	if arch == nil {
		return nil
	}
	return arch
}
