package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/renlei/mvstudio/internal/api"
	"github.com/renlei/mvstudio/internal/classifier"
	"github.com/renlei/mvstudio/internal/config"
	"github.com/renlei/mvstudio/internal/media"
	"github.com/renlei/mvstudio/internal/pipeline"
	"github.com/renlei/mvstudio/internal/queue"
	"github.com/renlei/mvstudio/internal/services"
	"github.com/renlei/mvstudio/internal/store"
	"github.com/renlei/mvstudio/internal/worker"
)

func main() {
	log.Println("Starting MVStudio API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Open the snapshot store
	var st store.Store
	switch cfg.StoreBackend {
	case "postgres":
		st, err = store.NewPostgresStore(cfg.DatabaseURL)
	default:
		st, err = store.NewFileStore(cfg.DataDir)
	}
	if err != nil {
		log.Fatalf("Failed to open %s snapshot store: %v", cfg.StoreBackend, err)
	}
	defer st.Close()
	log.Printf("Snapshot store ready (backend: %s)", cfg.StoreBackend)

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	manager := pipeline.NewManager(st)

	// Create API handler
	handler := api.NewHandler(manager, q, cfg)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		openaiSvc := services.NewOpenAIService(cfg.OpenAIKey)
		geminiSvc := services.NewGeminiService(cfg.GeminiKey, cfg.StyleReferenceImage)
		ffmpegSvc := media.NewFFmpegService(cfg.TempDir)
		rec := media.NewReconciler(ffmpegSvc, cfg.MaxVideoDuration)
		veoSvc := services.NewVeoService(cfg.GeminiKey, cfg.VeoModel, ffmpegSvc)
		log.Printf("Veo video generation enabled (model: %s)", cfg.VeoModel)

		classifierOpts := classifier.Options{
			MinVideoThreshold:     cfg.MinVideoThreshold,
			MinAnimationThreshold: cfg.MinAnimationThreshold,
			MaxVideoDuration:      cfg.MaxVideoDuration,
			MergeThreshold:        cfg.MergeThreshold,
			Budget: classifier.Budget{
				MaxVideos: cfg.MaxVideos,
				MaxImages: cfg.MaxImages,
			},
		}

		w := worker.New(manager, q, openaiSvc, geminiSvc, veoSvc, ffmpegSvc, rec, cfg.WorkDir, cfg.ImageConcurrency, classifierOpts)

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
