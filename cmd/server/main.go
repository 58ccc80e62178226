package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/database"
	"github.com/stemsi/exstem-cbt/internal/handler"
	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/router"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
	"github.com/stemsi/exstem-cbt/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem CBT")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	resultRepo := repository.NewResultRepository(pool)
	activityRepo := repository.NewActivityRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool, rdb)
	progressStore := repository.NewProgressStore(rdb)
	questionCache := repository.NewQuestionCache(rdb)
	snapshotStore := repository.NewSnapshotStore(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	dataService := service.NewExamDataService(questionRepo, resultRepo, questionCache, progressStore, rdb, cfg, log)
	activityService := service.NewActivityService(activityRepo, rdb, log)
	autosaveService := service.NewAutosaveService(progressStore, rdb)
	sessionService := service.NewExamSessionService(
		examRepo, attemptRepo, resultRepo, progressStore,
		dataService, activityService, autosaveService, log,
	)
	reportService := service.NewReportService(examRepo, attemptRepo, progressStore, dataService, sessionService, log)
	snapshotService := service.NewSnapshotService(snapshotStore, activityService, cfg, log)
	monitorService := service.NewMonitorService(monitorRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentPortal: handler.NewStudentPortalHandler(sessionService, log),
		Snapshot:      handler.NewSnapshotHandler(snapshotService, log),
		WS:            handler.NewWSHandler(sessionService, dataService, cfg.FullscreenAckTimeout, log, cfg.AllowedOrigins),
		Report:        handler.NewReportHandler(reportService, activityService, log),
		Monitor:       handler.NewMonitorHandler(reportService, monitorService, activityService, log),
		System:        handler.NewSystemHandler(rdb, sessionService, log),
	}
	mws := &router.Middlewares{
		JoinLimiter: middleware.NewRateLimiter(rdb, cfg.JoinRatePerMinute, time.Minute, config.CacheKey.JoinRateKey, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	for _, w := range []interface{ Start(context.Context) }{
		worker.NewActivityWorker(pool, rdb, log),
		worker.NewAutosaveWorker(pool, rdb, log),
		worker.NewLayoutWorker(pool, rdb, log),
		worker.NewCompletionWorker(pool, rdb, progressStore, log),
	} {
		workers.Add(1)
		go func() {
			defer workers.Done()
			w.Start(workerCtx)
		}()
	}

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load active exams' questions before accepting traffic.
	if err := sessionService.PrewarmQuestions(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, mws, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Abandon live sessions so their timers and monitors stop. Saved
	//    progress lets students resume on the next connection.
	sessionService.Shutdown()

	// 2. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 3. Stop workers and wait for their final flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
