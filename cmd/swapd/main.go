package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/satsbridge/swapd/internal/config"
	"github.com/satsbridge/swapd/internal/core/application"
	"github.com/satsbridge/swapd/internal/infrastructure/telemetry"
)

// nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	logger := log.New()
	logger.SetLevel(log.Level(cfg.LogLevel))
	logger.AddHook(telemetry.NewRedactHook())
	logger.AddHook(telemetry.NewOTelHook())
	logger.WithFields(log.Fields{
		"version": version, "commit": commit, "date": date, "role": cfg.Role,
	}).Info("starting swapd")

	if shutdownProfiler, err := telemetry.InitPyroscope(cfg.PyroscopeURL); err != nil {
		logger.WithError(err).Warn("failed to start profiler")
	} else if shutdownProfiler != nil {
		defer shutdownProfiler()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport, err := cfg.BuildTransport()
	if err != nil {
		logger.WithError(err).Fatal("failed to build transport")
	}

	lnSvc, err := cfg.BuildLnService(ctx)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect lightning service")
	}

	escrowClient, err := cfg.BuildEscrowClient()
	if err != nil {
		logger.WithError(err).Fatal("failed to build escrow client")
	}

	store, err := cfg.BuildReceiptsRepository()
	if err != nil {
		logger.WithError(err).Fatal("failed to open receipts store")
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		logger.WithError(err).Fatal("failed to build engine config")
	}

	engine := application.NewEngine(engineCfg, transport, lnSvc, escrowClient, store, cfg.BuildScheduler(), logger)
	if err := engine.Start(ctx); err != nil {
		logger.WithError(err).Fatal("failed to start engine")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	logger.Info("shutting down swapd")
	engine.Stop("process shutdown")
}
