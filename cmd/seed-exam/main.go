package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/examind/examind-backend/internal/config"
	"github.com/examind/examind-backend/internal/database"
	"github.com/examind/examind-backend/internal/logger"
	"github.com/examind/examind-backend/internal/model"
	"github.com/examind/examind-backend/internal/repository"
	"github.com/examind/examind-backend/internal/service"
)

// Seeds one exam from a JSON definition file and optionally publishes it.
// The security code is prompted for so it never lands in shell history.
func main() {
	var (
		file    string
		publish bool
	)
	flag.StringVar(&file, "file", "", "Path to an exam definition JSON (CreateExamRequest shape, security_code omitted)")
	flag.BoolVar(&publish, "publish", false, "Publish the exam after creating it")
	flag.Parse()

	if file == "" {
		fmt.Println("Usage: seed-exam -file exam.json [-publish]")
		os.Exit(1)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL and Redis ───────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	examRepo := repository.NewExamRepository(pool)
	examService := service.NewExamService(examRepo, rdb, cfg.BcryptCost, log)

	// ─── Read the Definition ───────────────────────────────────────────
	raw, err := os.ReadFile(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Failed to read exam definition")
	}

	var req model.CreateExamRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Fatal().Err(err).Msg("Malformed exam definition")
	}

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	if req.Code == "" {
		fmt.Print("Enter Exam Code: ")
		code, _ := reader.ReadString('\n')
		req.Code = strings.TrimSpace(code)
	}
	if req.Code == "" {
		fmt.Println("Error: Exam code is required")
		return
	}

	fmt.Print("Enter Security Code: ")
	byteCode, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading security code")
		return
	}
	fmt.Println() // Newline after hidden input
	req.SecurityCode = string(byteCode)
	if len(req.SecurityCode) < 4 {
		fmt.Println("Error: Security code must be at least 4 characters")
		return
	}

	// ─── Create (and Publish) ──────────────────────────────────────────
	exam, err := examService.Create(ctx, &req)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	fmt.Printf("Created exam %s (%s) with %d questions\n", exam.Code, exam.ID, len(exam.Questions))

	if publish {
		if err := examService.Publish(ctx, exam.ID); err != nil {
			log.Fatal().Err(err).Msg("Failed to publish exam")
		}
		fmt.Println("Published and cache-warmed")
	}
}
