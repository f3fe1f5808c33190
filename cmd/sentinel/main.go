package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/cloudintake/sentinel/internal/auth/google"
	"github.com/cloudintake/sentinel/internal/auth/token"
	"github.com/cloudintake/sentinel/internal/config"
	"github.com/cloudintake/sentinel/internal/db"
	"github.com/cloudintake/sentinel/internal/health"
	"github.com/cloudintake/sentinel/internal/notify"
	"github.com/cloudintake/sentinel/internal/orchestrator"
	"github.com/cloudintake/sentinel/internal/portal/handlers"
	"github.com/cloudintake/sentinel/internal/portal/middleware"
	"github.com/cloudintake/sentinel/internal/provider/drive"
	"github.com/cloudintake/sentinel/internal/queue"
	"github.com/cloudintake/sentinel/internal/version"
)

func main() {
	cfg, err := config.Load(os.Getenv("SENTINEL_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	baseURL := os.Getenv("SENTINEL_BASE_URL")
	if baseURL == "" {
		baseURL = "http://" + cfg.Addr
	}

	tracker := health.NewTracker(database)
	notifier := notify.NewDispatcher(notify.LogTransport{}, cfg.NotifyThrottleTTL, baseURL)

	tokenManager := token.NewManager(database, tracker)
	tokenManager.RegisterRefresher(google.ProviderID, google.Refresher())

	driveProvider := drive.New(cfg.MaxUploadBytes)

	orch := orchestrator.New(database, tokenManager, tracker, notifier, cfg)
	orch.RegisterProvider(driveProvider)

	uploadQueue := queue.New(1024, cfg.TaskTimeout)
	orch.SetEnqueue(func(taskID string) { uploadQueue.Enqueue(taskID) })
	uploadQueue.Start(cfg.WorkerCount, orch.Process)

	orch.StartHealthLoop(context.Background())

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// OAuth flow
	r.Get("/auth/google/login", google.HandleLogin)
	r.Get("/auth/google/callback", google.HandleCallback(tokenManager, tracker, orch, driveProvider))

	// Portal API (API key required)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(database))
		r.Post("/uploads", handlers.SubmitUploadHandler(database, func(taskID string) { uploadQueue.Enqueue(taskID) }))
		r.Get("/uploads", handlers.ListUploadsHandler(database))
		r.Post("/uploads/retry", handlers.BulkRetryHandler(orch))
		r.Get("/health", handlers.HealthStatusHandler(tracker))
		r.Post("/refresh", handlers.RefreshHandler(tokenManager))
		r.Delete("/connections", handlers.DisconnectHandler(tokenManager))
	})

	log.Printf("[Sentinel] %s starting on http://%s", version.Version, cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
