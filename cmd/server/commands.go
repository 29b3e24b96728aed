package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/iliyamo/user-auth-service/internal/cache"
	"github.com/iliyamo/user-auth-service/internal/config"
	"github.com/iliyamo/user-auth-service/internal/database"
	"github.com/iliyamo/user-auth-service/internal/handler"
	"github.com/iliyamo/user-auth-service/internal/logging"
	"github.com/iliyamo/user-auth-service/internal/metrics"
	"github.com/iliyamo/user-auth-service/internal/middleware"
	"github.com/iliyamo/user-auth-service/internal/queue"
	"github.com/iliyamo/user-auth-service/internal/repository"
	"github.com/iliyamo/user-auth-service/internal/router"
	"github.com/iliyamo/user-auth-service/internal/service"
	"github.com/iliyamo/user-auth-service/internal/upload"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "migrate",
				Usage:   "apply pending migrations before serving",
				EnvVars: []string{"MIGRATE_ON_START"},
			},
		},
		Action: func(c *cli.Context) error {
			return serve(c.Context, c.Bool("migrate"))
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply pending database migrations and exit",
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			log := logging.New(cfg.LogLevel)
			db, err := openDB(c.Context, cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(c.Context, db); err != nil {
				return err
			}
			log.Info("migrations_applied")
			return nil
		},
	}
}

func consumeCommand() *cli.Command {
	return &cli.Command{
		Name:  "consume",
		Usage: "drain auth events into the audit log",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-dir",
				Usage:   "directory receiving auth.log",
				EnvVars: []string{"AUDIT_LOG_DIR"},
				Value:   "logs",
			},
		},
		Action: func(c *cli.Context) error {
			log := logging.New(os.Getenv("LOG_LEVEL"))
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			consumer := &queue.AuditConsumer{URL: config.RabbitURL(), LogDir: c.String("log-dir"), Log: log}
			log.Info("audit_consumer_started", "queue", queue.AuthEventsQueue, "dir", consumer.LogDir)
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func serve(ctx context.Context, migrate bool) error {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)
	slog.SetDefault(log)

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	// Redis is optional: without it the limiter and the user cache pass through.
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Warn("redis_unavailable", "error", err)
	} else {
		defer rdb.Close()
	}

	var uploader service.ImageUploader = upload.Discard{}
	if cfg.Storage.Bucket != "" {
		s3u, err := upload.NewS3Uploader(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("s3 uploader: %w", err)
		}
		uploader = s3u
	}

	var events service.EventPublisher
	if config.EventsEnabled() {
		events = queue.NewPublisher(config.RabbitURL())
	}

	m := metrics.New()
	users := repository.NewUserRepo(db, cfg.BcryptCost)
	sessions := cache.NewUsers(config.LoadUserCacheConfig(), rdb, users)
	tokens := service.NewTokenService(cfg, users)
	auth := service.NewAuthService(users, sessions, tokens, uploader, events, m)

	e := router.New(log, cfg.CORSOrigin)
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	router.RegisterRoutes(e, db, m)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, auth),
		middleware.SessionGuard(auth, m),
		middleware.NewAuthLimits(config.LoadRateLimitConfig(), rdb),
	)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown_failed", "error", err)
	}
	return nil
}

func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := database.Open(ctx, database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
	if err != nil {
		return nil, fmt.Errorf("db init: %w", err)
	}
	return db, nil
}
