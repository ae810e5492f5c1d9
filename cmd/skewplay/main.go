package main

import (
	"log"
	"os"

	"github.com/AhsanAkhlaq/skewplay/internal/api"
	"github.com/AhsanAkhlaq/skewplay/internal/config"
	"github.com/AhsanAkhlaq/skewplay/internal/dataset"
	"github.com/AhsanAkhlaq/skewplay/internal/engine"
	"github.com/AhsanAkhlaq/skewplay/internal/quota"
	"github.com/AhsanAkhlaq/skewplay/internal/store"
	"github.com/AhsanAkhlaq/skewplay/internal/sync"
	"github.com/AhsanAkhlaq/skewplay/internal/workflow"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("skewplay: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"engine_url", cfg.EngineURL,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	eng, err := engine.NewHTTPClient(engine.HTTPClientOptions{
		BaseURL: cfg.EngineURL,
		Timeout: cfg.EngineTimeout,
	})
	if err != nil {
		log.Fatalf("failed to create engine client: %v", err)
	}

	ledger := quota.NewLedger(db, logger)
	datasets := dataset.NewRegistry(db, ledger, eng, logger)
	machine := workflow.NewMachine(db, datasets, logger)
	orchestrator := workflow.NewOrchestrator(db, datasets, eng, logger, cfg.EngineTimeout)

	broker := sync.NewBroker()
	db.SetNotify(sync.NewFeed(db, broker, logger).Notify)

	srv := api.NewServer(cfg.ListenAddr, db, datasets, machine, orchestrator, broker, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
