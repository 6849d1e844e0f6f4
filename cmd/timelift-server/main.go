// Package main is the entry point for the TimeLift authoritative server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hourglass-games/timelift/server/internal/engine"
	"github.com/hourglass-games/timelift/server/internal/events"
	"github.com/hourglass-games/timelift/server/internal/infra/levelstore"
	"github.com/hourglass-games/timelift/server/internal/infra/storage"
	"github.com/hourglass-games/timelift/server/internal/network"
	"github.com/hourglass-games/timelift/server/internal/platform/config"
	"github.com/hourglass-games/timelift/server/internal/platform/logger"
	"github.com/hourglass-games/timelift/server/internal/platform/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults apply when empty)")
	flag.Parse()

	log.Println("[TIMELIFT] Initializing 'TimeLift' authoritative server...")

	appLogger := logger.NewLogger()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			appLogger.Error("Failed to load config: " + err.Error())
			os.Exit(1)
		}
		cfg = loaded
	}

	appLogger.Info("Initializing SQLite database " + cfg.DBPath)
	db, err := storage.InitSQLite(cfg.DBPath)
	if err != nil {
		appLogger.Error("Failed to initialize SQLite: " + err.Error())
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)

	eventRepo := storage.NewEventRepository(db)
	segmentRepo := storage.NewSegmentRepository(db)
	levelRepo := storage.NewLevelRepository(db)

	appLogger.Info("Bootstrapping EventLog...")
	eventLog := events.NewEventLog(eventRepo)

	appLogger.Info("Bootstrapping level store " + cfg.LevelDir)
	levels := levelstore.NewStore(cfg.LevelDir, appLogger, levelRepo)

	appLogger.Info("Bootstrapping simulation engine...")
	simEngine, err := engine.NewEngine(levels, cfg.InitialLevel, segmentRepo, eventLog, appLogger)
	if err != nil {
		appLogger.Error("Failed to start engine: " + err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appLogger.Info("Bootstrapping WebSocket hub...")
	hub := network.NewHub(simEngine, appLogger, network.HubConfig{
		BroadcastBuffer:     cfg.BroadcastChannelBuffer,
		ClientSendBuffer:    cfg.ClientSendBuffer,
		MaxClients:          cfg.MaxClients,
		MaxIntentsPerSecond: cfg.MaxIntentsPerSecond,
	})
	go hub.Run(ctx)

	ticker := engine.NewTicker(simEngine, hub, appLogger, cfg.TickRateHz)
	go ticker.Start(ctx)

	inspector := network.NewInspectorHandler(eventLog, segmentRepo, appLogger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWs)
	mux.HandleFunc("/metrics", metrics.Handler())
	mux.HandleFunc("/metrics/prometheus", metrics.PrometheusHandler())
	inspector.RegisterRoutes(mux)

	go func() {
		log.Printf("[TIMELIFT] HTTP API & WS server listening on %s", cfg.ListenAddr)
		if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Println("[TIMELIFT] Server running. Press Ctrl+C to exit.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[TIMELIFT] Shutting down...")
	ticker.Stop()
}
