package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/beaconhq/beacon/internal/access"
	"github.com/beaconhq/beacon/internal/app"
	"github.com/beaconhq/beacon/internal/auth"
	"github.com/beaconhq/beacon/internal/observability"
	"github.com/beaconhq/beacon/internal/platform/cache"
	"github.com/beaconhq/beacon/internal/platform/db"
	"github.com/beaconhq/beacon/internal/projects"
	"github.com/beaconhq/beacon/internal/shared"
	"github.com/beaconhq/beacon/internal/users"
	"github.com/beaconhq/beacon/jobs"
)

// userDirectory adapts the users service to the access package's
// directory boundary.
type userDirectory struct {
	svc *users.Service
}

func (d userDirectory) ByIDs(ctx context.Context, ids []int64) ([]access.UserRef, error) {
	list, err := d.svc.ByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	refs := make([]access.UserRef, len(list))
	for i, u := range list {
		refs[i] = access.UserRef{ID: u.ID, Name: u.Name, Username: u.Username, Email: u.Email}
	}
	return refs, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "beacon_session", cfg.SessionTTL, cfg.IsProduction())
	metrics := observability.NewMetrics()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	auditor := jobs.NewAuditRecorder(asynqClient, logger)

	catalog := access.DefaultCatalog()
	if err := access.EnsureCatalog(ctx, pool, catalog); err != nil {
		logger.Error("seed permission catalog", slog.Any("error", err))
		os.Exit(1)
	}

	userRepo := users.NewRepository(pool)
	userService := users.NewService(userRepo)

	accessStore := access.NewRepository(pool)
	accessService := access.NewService(accessStore, userDirectory{svc: userService}, catalog, logger)
	matrixBuilder := access.NewMatrixBuilder(accessService)
	accessMW := access.Middleware{Service: accessService, Logger: logger, Metrics: metrics}
	accessHandler := access.NewHandler(logger, accessService, matrixBuilder, auditor, accessMW)

	projectRepo := projects.NewRepository(pool)
	projectService := projects.NewService(projectRepo, accessService, logger)
	projectsHandler := projects.NewHandler(logger, projectService, accessMW)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		AuthHandler:     authHandler,
		AccessHandler:   accessHandler,
		ProjectsHandler: projectsHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
