package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/examind/examind-backend/internal/config"
	"github.com/examind/examind-backend/internal/database"
	"github.com/examind/examind-backend/internal/handler"
	"github.com/examind/examind-backend/internal/hint"
	"github.com/examind/examind-backend/internal/logger"
	"github.com/examind/examind-backend/internal/repository"
	"github.com/examind/examind-backend/internal/router"
	"github.com/examind/examind-backend/internal/service"
	"github.com/examind/examind-backend/internal/session"
	"github.com/examind/examind-backend/internal/validator"
	"github.com/examind/examind-backend/internal/worker"
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
		Msg("Starting Examind Backend")

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
	resultRepo := repository.NewResultRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool, rdb)

	// ─── Initialize Session Engine ─────────────────────────────────────
	snapshotStore := session.NewRedisSnapshotStore(rdb, log)
	resultSink := service.NewRedisResultSink(rdb)
	manager := session.NewManager(snapshotStore, resultSink, log)

	// ─── Initialize Services ──────────────────────────────────────────
	tokenService := service.NewTokenService(cfg)
	examService := service.NewExamService(examRepo, rdb, cfg.BcryptCost, log)
	sessionService := service.NewSessionService(examRepo, resultRepo, violationRepo, rdb, tokenService, manager, log)

	var hintService *hint.Service
	if hs, err := hint.NewService(ctx, cfg, log); err == nil {
		hintService = hs
	} else if errors.Is(err, hint.ErrDisabled) {
		log.Info().Msg("Hint service disabled (no GEMINI_API_KEY)")
	} else {
		log.Warn().Err(err).Msg("Hint service unavailable")
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Exam:          handler.NewExamHandler(examService, sessionService),
		StudentPortal: handler.NewStudentPortalHandler(sessionService),
		WS:            handler.NewWSHandler(sessionService, hintService, log, cfg.AllowedOrigins),
		Monitor:       handler.NewMonitorHandler(rdb, monitorRepo, manager, log),
	}

	// ─── Start Background Workers and the Session Sweeper ─────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	resultWorker := worker.NewResultWorker(resultRepo, rdb, log)
	violationWorker := worker.NewViolationWorker(violationRepo, rdb, log)

	go resultWorker.Start(workerCtx)
	go violationWorker.Start(workerCtx)
	go manager.StartSweeper(workerCtx)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published exams into Redis BEFORE accepting traffic.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(tokenService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
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

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the sweeper and workers, wait for queues to drain. Live
	// sessions survive the restart via their snapshots.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
