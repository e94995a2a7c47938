// Package main is the entry point for the StayLedger calendar sync server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/stayledger/backend/internal/api"
	"github.com/stayledger/backend/internal/calendar"
	"github.com/stayledger/backend/internal/config"
	"github.com/stayledger/backend/internal/storage"
	"github.com/stayledger/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	addr := flag.String("addr", "", "HTTP server address (overrides config)")
	dataDir := flag.String("data", "", "Data directory for SQLite database (overrides config)")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Listen = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Listen); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log.Printf("Starting StayLedger calendar sync (version: %s)...", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewDB(filepath.Join(cfg.DataDir, "stayledger.db"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations complete")

	store := storage.NewStore(db)
	if err := cfg.Seed(ctx, store); err != nil {
		log.Fatalf("Failed to seed properties: %v", err)
	}
	log.Printf("Seeded %d properties from config", len(cfg.Properties))

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub()
	go hub.Run(hubCtx)

	syncService := calendar.NewSyncService(
		store,
		calendar.NewFeedClient(cfg.FeedTimeout, cfg.FeedRetries, cfg.FeedRetryBase),
		calendar.NewNormalizer(cfg.PastWindowDays, cfg.FutureWindowDays),
		calendar.Options{
			OriginWorkers:   cfg.OriginWorkers,
			PropertyWorkers: cfg.PropertyWorkers,
			PropertyTimeout: cfg.PropertyTimeout,
			StoreRetries:    cfg.StoreRetries,
			StoreRetryBase:  cfg.StoreRetryBase,
		},
	)
	syncService.SetNotifier(websocket.NewEventBroadcaster(hub))

	scheduler := calendar.NewScheduler(syncService, cfg.SyncSchedule)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      api.NewRouter(store, hub, syncService, scheduler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * cfg.PropertyTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop taking sync requests first, then let in-flight property syncs
	// finish without starting new ones.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	scheduler.Stop()
	stopHub()

	log.Println("Server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	host := addr
	if len(host) > 0 && host[0] == ':' {
		host = "localhost" + host
	}

	resp, err := http.Get("http://" + host + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return http.ErrAbortHandler
	}
	return nil
}
