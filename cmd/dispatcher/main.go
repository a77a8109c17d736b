// Package main is the entry point for the coursepulse dispatcher service.
//
// It loads configuration, connects to PostgreSQL, wires the condition
// registry, override loader, dispatch loop and archiver, then runs three
// things concurrently:
//   - the cron-driven dispatch batch job,
//   - the cron-driven sent-history archiver,
//   - the admin HTTP API (templates, instances, schedules, trigger-now).
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"coursepulse/internal/api"
	"coursepulse/internal/archive"
	"coursepulse/internal/conditions"
	"coursepulse/internal/config"
	"coursepulse/internal/db"
	"coursepulse/internal/dispatch"
	"coursepulse/internal/events"
	"coursepulse/internal/external"
	"coursepulse/internal/overrides"
	"coursepulse/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("coursepulse dispatcher starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database.
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:               cfg.Database.URL.Unmask(),
		MaxConns:          int32(cfg.Database.MaxConns),
		MinConns:          int32(cfg.Database.MinConns),
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	// Repositories.
	templates := db.NewTemplateRepository(pool)
	instances := db.NewInstanceRepository(pool)
	schedules := db.NewScheduleRepository(pool)
	enrolments := db.NewEnrolmentRepository(pool)
	cohorts := db.NewCohortRepository(pool)
	completion := db.NewCompletionRepository(pool)
	courses := db.NewCourseRepository(pool)
	modules := db.NewModuleRepository(pool)
	anchors := db.NewAnchorRepository(pool)

	clock := types.RealClock{}

	// Condition plugins.
	registry := conditions.NewRegistry()
	registry.Register(types.ConditionCohort, conditions.NewCohortCondition(cohorts))
	registry.Register(types.ConditionCompletion, conditions.NewCompletionCondition(completion))
	registry.Register(types.ConditionEnrolment, conditions.NewEnrolmentCondition(enrolments, clock))
	engine := conditions.NewEngine(registry, enrolments, logger)
	logger.Info("condition plugins registered", "components", strings.Join(registry.Components(), ","))

	// Override resolution.
	resolver := overrides.NewResolver(instances)
	loader := overrides.NewLoader(instances)

	// AWS clients: SES mail transport and CloudWatch metrics.
	awsOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.EndpointURL != "" {
		awsOpts = append(awsOpts, awsconfig.WithBaseEndpoint(cfg.AWS.EndpointURL))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	transport := external.NewSESClient(awsCfg, external.SESClientConfig{
		ConfigSetName: cfg.Mail.SESConfigSet,
		Logger:        logger,
	})
	metrics := dispatch.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), logger)
	renderer := external.NewTemplateRenderer(modules, logger)

	// Dispatch loop.
	loop := dispatch.NewLoop(
		schedules, loader, enrolments, courses, renderer, transport,
		completion, anchors, metrics, clock, logger,
		dispatch.Options{
			Parallelism: cfg.Dispatch.Parallelism,
			SystemSender: types.SenderIdentity{
				Name:    cfg.Mail.FromName,
				Address: cfg.Mail.FromAddress,
			},
		},
	)

	// Lifecycle hooks driven by API edits.
	hooks := events.NewHooks(loader, engine, schedules, instances, enrolments, anchors, clock, logger)

	// Archiver.
	archiver := archive.NewArchiver(
		schedules,
		archive.NewDirSink(cfg.Archive.Dir),
		cfg.Archive.RetainFor,
		cfg.Archive.BatchLimit,
		clock,
		logger,
	)

	// Periodic jobs. SkipIfStillRunning keeps a slow batch from overlapping
	// with the next tick.
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo))
	runner := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	if _, err := runner.AddFunc(cfg.Dispatch.CronSpec, func() {
		if _, err := loop.Run(ctx, cfg.Dispatch.BatchLimit, 0); err != nil {
			logger.Error("dispatch run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("registering dispatch cron job: %w", err)
	}

	if cfg.Archive.CronSpec != "" {
		if _, err := runner.AddFunc(cfg.Archive.CronSpec, func() {
			if n, err := archiver.Run(ctx); err != nil {
				logger.Error("archive run failed", "archived", n, "error", err)
			}
		}); err != nil {
			return fmt.Errorf("registering archive cron job: %w", err)
		}
	}

	runner.Start()

	// Admin API.
	v := validator.New()
	router := api.NewRouter(api.RouterConfig{
		AdminKey:  cfg.Security.AdminAPIKey,
		Templates: api.NewTemplateHandler(templates, hooks, v, logger),
		Instances: api.NewInstanceHandler(instances, resolver, loader, hooks, v, logger),
		Schedules: api.NewScheduleHandler(loop, schedules, clock, logger,
			cfg.Dispatch.BatchLimit, cfg.Dispatch.StuckThreshold),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("admin API server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down admin API: %w", err)
	}

	// Wait for any in-flight cron job to finish.
	<-runner.Stop().Done()

	logger.Info("dispatcher stopped")
	return nil
}

// newLogger builds the process-wide structured logger at the configured
// level and installs it as the slog default.
func newLogger(level string) types.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slogger := slog.New(handler)
	slog.SetDefault(slogger)
	return &slogAdapter{logger: slogger}
}

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error and Warn directly but With returns
// *slog.Logger, not types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}
