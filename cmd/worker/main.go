// Package main implements the judging worker: it drains the persistent
// task queue, acquiring content, capturing screenshots, and writing
// verdicts until stopped.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/phrazzld/showhn-judge/internal/acquire"
	"github.com/phrazzld/showhn-judge/internal/capture"
	"github.com/phrazzld/showhn-judge/internal/config"
	"github.com/phrazzld/showhn-judge/internal/platform/browser"
	"github.com/phrazzld/showhn-judge/internal/platform/gemini"
	"github.com/phrazzld/showhn-judge/internal/platform/logger"
	"github.com/phrazzld/showhn-judge/internal/platform/postgres"
	"github.com/phrazzld/showhn-judge/internal/task"
	"github.com/phrazzld/showhn-judge/migrations"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	taskStore := postgres.NewPostgresTaskStore(db)
	subjectStore := postgres.NewPostgresSubjectStore(db)
	verdictStore := postgres.NewPostgresVerdictStore(db)

	session, err := browser.NewSession(appLogger, cfg.Acquire, cfg.Capture)
	if err != nil {
		return fmt.Errorf("creating browser session: %w", err)
	}
	defer session.Close()

	acquirer, err := acquire.NewAcquirer(appLogger, session, cfg.Acquire)
	if err != nil {
		return fmt.Errorf("creating acquirer: %w", err)
	}

	pipeline, err := capture.NewPipeline(appLogger, session, subjectStore, cfg.Capture)
	if err != nil {
		return fmt.Errorf("creating capture pipeline: %w", err)
	}

	geminiJudge, err := gemini.NewGeminiJudge(ctx, appLogger, cfg.Judge)
	if err != nil {
		return fmt.Errorf("creating judge: %w", err)
	}

	runner, err := task.NewRunner(
		appLogger,
		taskStore, subjectStore, verdictStore,
		acquirer, pipeline, geminiJudge,
		cfg.Worker, cfg.Acquire,
	)
	if err != nil {
		return fmt.Errorf("creating worker: %w", err)
	}

	appLogger.Info("worker configured", "model", geminiJudge.ModelID())
	return runner.Run(ctx)
}

func openDatabase(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, ".")
}
