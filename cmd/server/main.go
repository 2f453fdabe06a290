package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abhishek10299/Droply/internal/api"
	"github.com/Abhishek10299/Droply/internal/config"
	"github.com/Abhishek10299/Droply/internal/platform/crypto"
	"github.com/Abhishek10299/Droply/internal/platform/objectstore"
	"github.com/Abhishek10299/Droply/internal/service"
	"github.com/Abhishek10299/Droply/internal/store"
	"github.com/Abhishek10299/Droply/internal/store/memory"
	storemongo "github.com/Abhishek10299/Droply/internal/store/mongo"

	"github.com/prometheus/client_golang/prometheus"
)

// main is the entry point for the application.
func main() {
	if err := run(); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}

// run initializes and starts the HTTP server.
func run() error {
	// =========================================================================
	// Configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := log.New(os.Stdout, "DROPLY | ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger.Println("Configuration loaded")

	// =========================================================================
	// Stores
	//
	// Mongo in production; the in-memory store keeps single-binary development
	// possible without a database.
	var (
		nodeStore  store.NodeStore
		tokenStore store.TokenStore
		purgeQueue store.PurgeQueue
	)

	if cfg.Storage.Type == "memory" {
		nodeStore = memory.NewNodeStore()
		tokenStore = memory.NewTokenStore()
		purgeQueue = memory.NewPurgeQueue()
		logger.Println("Using in-memory stores")
	} else {
		dbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		dbClient, err := storemongo.NewClient(dbCtx, cfg.Mongo)
		if err != nil {
			return fmt.Errorf("could not connect to database: %w", err)
		}
		defer func() {
			if err := dbClient.Disconnect(context.Background()); err != nil {
				logger.Printf("Error disconnecting from DB: %v", err)
			}
		}()

		db := dbClient.Database(cfg.Mongo.Database)
		if err := storemongo.EnsureIndexes(dbCtx, db); err != nil {
			return fmt.Errorf("could not ensure indexes: %w", err)
		}

		nodeStore = storemongo.NewNodeStore(dbClient, db)
		tokenStore = storemongo.NewTokenStore(db)
		purgeQueue = storemongo.NewPurgeQueue(db)
		logger.Println("Database connection established")
	}

	// =========================================================================
	// Object Storage
	var storage objectstore.Storage
	if cfg.Storage.Type == "memory" {
		storage = objectstore.NewMemoryStorage()
	} else {
		storageCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		storage, err = objectstore.NewMinioStorage(storageCtx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("could not connect to object storage: %w", err)
		}
		logger.Println("Object storage connection established")
	}

	// =========================================================================
	// Initialize Dependencies (Dependency Injection)
	registry := prometheus.NewRegistry()
	clock := service.Clock(time.Now)

	gate := service.NewGate(nodeStore)
	treeService := service.NewTreeService(nodeStore, gate, clock)
	uploadService := service.NewUploadService(
		tokenStore,
		nodeStore,
		treeService,
		gate,
		storage,
		crypto.NewJWTUploadSigner(cfg.Upload.TokenKey),
		cfg.Upload,
		cfg.Quota,
		logger,
		clock,
	)
	lifecycleService := service.NewLifecycleService(nodeStore, purgeQueue, storage, gate, clock)

	sweeper := service.NewSweeper(
		nodeStore,
		tokenStore,
		purgeQueue,
		storage,
		lifecycleService,
		service.NewSweepMetrics(registry),
		logger,
		clock,
		cfg.Lifecycle,
	)

	authMiddleware := api.NewAuthMiddleware(crypto.NewJWTVerifier(cfg.Auth.AccessKey))
	nodeHandler := api.NewNodeHandler(treeService)
	uploadHandler := api.NewUploadHandler(uploadService)
	lifecycleHandler := api.NewLifecycleHandler(lifecycleService)

	logger.Println("Dependencies initialized")

	// =========================================================================
	// HTTP Server Setup
	mux := http.NewServeMux()

	api.RegisterRoutes(
		mux,
		authMiddleware,
		api.NewMetrics(registry),
		registry,
		nodeHandler,
		uploadHandler,
		lifecycleHandler,
		logger,
	)

	// Add a root handler for health checks.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintln(w, "API is running.")
	})

	// Our custom router adds PATCH support to the standard library's mux.
	handler := api.NewPatchRouter(mux)

	server := &http.Server{
		Addr:         cfg.HTTP.Port,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// =========================================================================
	// Background Sweeper
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sweeper.Run(sweepCtx)
	logger.Printf("Retention sweeper started (interval %s, retention %s)", cfg.Lifecycle.SweepInterval, cfg.Lifecycle.TrashRetention)

	// =========================================================================
	// Start Server & Graceful Shutdown
	shutdownErr := make(chan error)

	go func() {
		logger.Printf("Server starting on %s", server.Addr)
		if cfg.HTTP.KeyPath != "" && cfg.HTTP.CertPath != "" {
			shutdownErr <- server.ListenAndServeTLS(cfg.HTTP.CertPath, cfg.HTTP.KeyPath)
		} else {
			shutdownErr <- server.ListenAndServe()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-shutdownErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Printf("Shutdown signal received: %s", sig)
	}

	stopSweeper()

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Println("Server shut down gracefully")
	return nil
}
