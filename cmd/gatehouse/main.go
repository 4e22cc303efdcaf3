package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/gatehouse-authz/gatehouse/cmd/gatehouse/cli"
	"github.com/gatehouse-authz/gatehouse/internal/access"
	"github.com/gatehouse-authz/gatehouse/internal/app"
	"github.com/gatehouse-authz/gatehouse/internal/auth"
	"github.com/gatehouse-authz/gatehouse/internal/billing"
	"github.com/gatehouse-authz/gatehouse/internal/membership"
	"github.com/gatehouse-authz/gatehouse/internal/observability"
	"github.com/gatehouse-authz/gatehouse/internal/platform/db"
	"github.com/gatehouse-authz/gatehouse/internal/registry"
	"github.com/gatehouse-authz/gatehouse/internal/shared"
	"github.com/gatehouse-authz/gatehouse/jobs"
)

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

	if len(os.Args) > 1 {
		os.Exit(runCLI(ctx, cfg, logger, os.Args[1:]))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	reg, err := composeRegistry(cfg)
	if err != nil {
		logger.Error("compose registry", slog.Any("error", err))
		os.Exit(1)
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		logger.Error("load plan catalog", slog.Any("error", err))
		os.Exit(1)
	}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, cfg.JWTSecret, cfg.TokenTTL, logger)
	authHandler := auth.NewHandler(authService)

	registryHandler := registry.NewHandler(reg)

	membershipRepo := membership.NewRepository(dbpool)
	membershipResolver := membership.NewResolver(membershipRepo, reg)
	membershipHandler := membership.NewHandler(logger, membershipResolver)

	billingRepo := billing.NewRepository(dbpool)
	billingService := billing.NewService(billingRepo, catalog, logger)
	webhookProcessor := billing.NewWebhookProcessor(billingRepo, redisClient, cfg.BillingWebhookSecret, logger)
	billingHandler := billing.NewHandler(logger, billingService, webhookProcessor)

	metrics := observability.NewMetrics()
	auditor := shared.NewDecisionRecorder(dbpool)
	engine := access.NewEngine(reg, membershipResolver, billingService)
	accessHandler := access.NewHandler(logger, engine, auditor, metrics)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AuthService:       authService,
		AuthHandler:       authHandler,
		RegistryHandler:   registryHandler,
		MembershipHandler: membershipHandler,
		BillingHandler:    billingHandler,
		AccessHandler:     accessHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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

// composeRegistry builds the startup registry: compiled-in core, optional
// theme file, optional plugin directory. Composition failure aborts startup.
func composeRegistry(cfg *app.Config) (*registry.Registry, error) {
	var theme *registry.Source
	if cfg.ThemeSourcePath != "" {
		src, err := registry.LoadSource(cfg.ThemeSourcePath, registry.TierTheme)
		if err != nil {
			return nil, err
		}
		theme = &src
	}
	plugins, err := registry.LoadPluginDir(cfg.PluginSourceDir)
	if err != nil {
		return nil, err
	}
	return registry.Compose(registry.CoreSource(), theme, plugins...)
}

func loadCatalog(cfg *app.Config) (*billing.Catalog, error) {
	if cfg.PlanCatalogPath == "" {
		return billing.BuiltinCatalog(), nil
	}
	return billing.LoadCatalog(cfg.PlanCatalogPath)
}

func runCLI(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	switch args[0] {
	case "create-client":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: gatehouse create-client <id> <name>")
			return 2
		}
		dbpool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			return 1
		}
		defer dbpool.Close()
		secret, err := cli.NewClientsCLI(auth.NewRepository(dbpool)).Create(ctx, args[1], args[2])
		if err != nil {
			logger.Error("create client", slog.Any("error", err))
			return 1
		}
		fmt.Printf("client %s created, secret (shown once): %s\n", args[1], secret)
		return 0
	case "trigger-job":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: gatehouse trigger-job <type>")
			return 2
		}
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			logger.Error("init jobs cli", slog.Any("error", err))
			return 1
		}
		defer func() { _ = jobsCLI.Close() }()
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			logger.Error("trigger job", slog.Any("error", err))
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", args[1], info.ID, info.Queue)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		return 2
	}
}
