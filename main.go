package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"password-game/config"
	"password-game/handlers"
	"password-game/logging"
	"password-game/middleware"
	"password-game/models"
	"password-game/oracle"
	"password-game/services"
	"password-game/utils"
	"password-game/workers"

	"github.com/glebarez/sqlite"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Dir:        cfg.LogDir,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server_exit", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := db.AutoMigrate(&models.Account{}, &models.Run{}, &models.RuleCheck{}); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if cfg.UsingDevSecret() {
		logger.Warn("jwt_dev_secret", "hint", "set JWT_SECRET outside local play")
	}

	accounts := services.NewAccountService(db, logger)
	runs := services.NewRunService(db, logger)
	game := services.NewGameService(db, accounts, runs, logger)
	history := services.NewHistoryService(runs)
	tokens := services.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	checks := services.NewRuleCheckService(db, logger)

	judge, pinger := newJudge(ctx, cfg, logger)

	writer := workers.NewRuleCheckWriter(checks, cfg.RuleCheckBuffer, logger)
	writer.Start()

	var archiver services.Archiver
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Archiver(ctx, cfg.R2)
		if err != nil {
			return fmt.Errorf("initialize R2 archiver: %w", err)
		}
		archiver = r2
	}
	retention := services.NewAuditRetention(checks, archiver, cfg.RuleCheckRetention, logger)
	scheduler, err := services.StartAuditRetention(ctx, retention, cfg.RuleCheckPruneInterval)
	if err != nil {
		return fmt.Errorf("start audit retention: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "password-game",
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ErrorHandler: handlers.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       86400,
	}))
	app.Use(middleware.AccessLog(logger))

	handlers.Register(app, handlers.Deps{
		Accounts:               accounts,
		Tokens:                 tokens,
		Game:                   game,
		Runs:                   runs,
		History:                history,
		Judge:                  judge,
		Pinger:                 pinger,
		Audit:                  writer,
		RuleCheckRatePerMinute: cfg.RuleCheckRatePerMinute,
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		Logger: logger,
	})

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(":" + cfg.Port)
	}()
	logger.Info("server_started", "port", cfg.Port, "origins", cfg.AllowedOrigins)

	select {
	case err := <-listenErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_failed", "err", err)
	}
	if err := scheduler.Shutdown(); err != nil {
		logger.Warn("scheduler_shutdown_failed", "err", err)
	}
	writer.Close()
	return nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	if path, ok := cfg.SQLitePath(); ok {
		db, err := gorm.Open(sqlite.Open(path), gcfg)
		if err != nil {
			return nil, err
		}
		// SQLite serializes writers; one connection keeps transactions honest.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is empty")
	}
	return gorm.Open(postgres.Open(cfg.DatabaseURL), gcfg)
}

type judge interface {
	oracle.Evaluator
	handlers.Pinger
}

// newJudge falls back to an always-unavailable judge when Gemini is not
// configured so the rest of the API still serves.
func newJudge(ctx context.Context, cfg *config.Config, logger *slog.Logger) (oracle.Evaluator, handlers.Pinger) {
	var j judge
	g, err := oracle.NewGemini(ctx, oracle.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Timeout: cfg.GeminiTimeout,
	}, logger)
	if err != nil {
		logger.Warn("gemini_disabled", "err", err)
		j = oracle.Unavailable{Reason: "Rule judge is not configured"}
	} else {
		logger.Info("gemini_enabled", "model", g.Model())
		j = g
	}
	return j, j
}
