package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/akovalev/expenso/internal/api/handlers"
	"github.com/akovalev/expenso/internal/api/middleware"
	"github.com/akovalev/expenso/internal/config"
	"github.com/akovalev/expenso/internal/domain"
	"github.com/akovalev/expenso/internal/extract"
	"github.com/akovalev/expenso/internal/gcsupload"
	"github.com/akovalev/expenso/internal/jobs"
	"github.com/akovalev/expenso/internal/jobs/inmemory"
	"github.com/akovalev/expenso/internal/logger"
	"github.com/akovalev/expenso/internal/media"
	"github.com/akovalev/expenso/internal/pipeline"
	"github.com/akovalev/expenso/internal/store"
	bqstore "github.com/akovalev/expenso/internal/store/bigquery"
	"github.com/akovalev/expenso/internal/store/sqlite"
)

func main() {
	var configPath = flag.String("config", "", "Path to the TOML config file (default: ~/.config/expenso/config.toml)")
	flag.Parse()

	cfg, resolvedPath, exists, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logger.NewWithLevel(cfg.Logging.Level)
	if !exists {
		log.Warn().Str("path", resolvedPath).Msg("No config file found, using defaults")
	}
	if cfg.Storage.Bucket == "" {
		log.Warn().Msg("No GCS bucket configured - receipt uploads will fail")
	}

	ctx := context.Background()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	uploader, err := gcsupload.NewUploader(ctx, cfg.Storage.Bucket, cfg.Storage.Folder)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create uploader")
	}
	defer uploader.Close()

	extractor, err := extract.NewGeminiExtractor(ctx, cfg.Extractor.Model, cfg.Extractor.APIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extractor")
	}

	orchestrator := pipeline.NewOrchestrator(
		media.NewPreparer(),
		uploader,
		extractor,
		st,
		st,
		time.Duration(cfg.Pipeline.DispatchTimeoutSeconds)*time.Second,
		log,
	)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Pipeline.QueueSize, cfg.Pipeline.Workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job *jobs.ExtractionJob) (domain.DraftTransaction, error) {
		log.Info().
			Str("job_id", job.JobID).
			Str("kind", string(job.Kind)).
			Msg("Processing extraction job")
		return orchestrator.Run(ctx, job.Payload, job.Kind, job.UserID)
	}

	go func() {
		log.Info().Int("workers", cfg.Pipeline.Workers).Msg("Starting extraction workers")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Extraction workers stopped with error")
		}
	}()

	// Initialize handlers
	extractHandler := handlers.NewExtractHandler(orchestrator, jobQueue, jobStore, log)
	transactionsHandler := handlers.NewTransactionsHandler(st, log)
	categoriesHandler := handlers.NewCategoriesHandler(st, log)
	settingsHandler := handlers.NewSettingsHandler(st, log)

	// Create router
	mux := http.NewServeMux()

	mux.HandleFunc("/api/extract/receipt", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			extractHandler.ExtractReceipt(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/extract/voice", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			extractHandler.ExtractVoice(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/extract/jobs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			extractHandler.EnqueueExtraction(w, r)
		case http.MethodGet:
			extractHandler.ListJobs(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/extract/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/extract/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			extractHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			transactionsHandler.ListTransactions(w, r)
		case http.MethodPost:
			transactionsHandler.CreateTransaction(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions/summary", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			transactionsHandler.SummarizeTransactions(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			transactionID := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
			if transactionID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Transaction ID is required")
				return
			}
			transactionsHandler.DeleteTransaction(w, r, transactionID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			categoriesHandler.ListCategories(w, r)
		case http.MethodPost:
			categoriesHandler.CreateCategory(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/categories/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			categoryID := strings.TrimPrefix(r.URL.Path, "/api/categories/")
			if categoryID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Category ID is required")
				return
			}
			categoriesHandler.DeleteCategory(w, r, categoryID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/settings/currency", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			settingsHandler.GetCurrency(w, r)
		case http.MethodPut:
			settingsHandler.PutCurrency(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Seed the fallback category and currency default the first time a user
	// touches the API.
	seeded := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := st.EnsureDefaults(r.Context(), middleware.UserID(r.Context())); err != nil {
			log.Error().Err(err).Msg("Failed to seed user defaults")
			middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		mux.ServeHTTP(w, r)
	}))

	// Health stays outside the auth gate for load balancer probes.
	authed := middleware.Auth(seeded)
	root := http.NewServeMux()
	root.HandleFunc("/health", handlers.Health)
	root.Handle("/", authed)

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(root),
			),
		),
	)

	server := &http.Server{
		Addr:         cfg.Server.Bind,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("bind", cfg.Server.Bind).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight extractions
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "bigquery":
		return bqstore.New(ctx, cfg.Store.Project, cfg.Store.Dataset)
	default:
		return sqlite.Open(cfg.Store.Path)
	}
}
