// Package main is a one-shot operational tool that runs a single dispatch
// batch from the command line, optionally restricted to one user. Useful for
// verifying a configuration change without waiting for the next cron tick.
//
// Usage:
//
//	trigger [-user <id>] [-limit <n>]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"coursepulse/internal/config"
	"coursepulse/internal/db"
	"coursepulse/internal/dispatch"
	"coursepulse/internal/external"
	"coursepulse/internal/overrides"
	"coursepulse/internal/types"
)

func main() {
	userID := flag.Int64("user", 0, "restrict the run to this user id (0 = all due users)")
	limit := flag.Int("limit", 0, "batch limit override (0 = configured default)")
	flag.Parse()

	if err := run(*userID, *limit); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(userID int64, limit int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if limit <= 0 {
		limit = cfg.Dispatch.BatchLimit
	}

	logger := &slogAdapter{logger: slog.New(slog.NewTextHandler(os.Stderr, nil))}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.Database.URL.Unmask(),
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	instances := db.NewInstanceRepository(pool)
	schedules := db.NewScheduleRepository(pool)
	enrolments := db.NewEnrolmentRepository(pool)
	completion := db.NewCompletionRepository(pool)
	courses := db.NewCourseRepository(pool)
	modules := db.NewModuleRepository(pool)
	anchors := db.NewAnchorRepository(pool)

	clock := types.RealClock{}
	loader := overrides.NewLoader(instances)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	transport := external.NewSESClient(awsCfg, external.SESClientConfig{
		ConfigSetName: cfg.Mail.SESConfigSet,
		Logger:        logger,
	})
	metrics := dispatch.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), logger)
	renderer := external.NewTemplateRenderer(modules, logger)

	loop := dispatch.NewLoop(
		schedules, loader, enrolments, courses, renderer, transport,
		completion, anchors, metrics, clock, logger,
		dispatch.Options{
			Parallelism: 1,
			SystemSender: types.SenderIdentity{
				Name:    cfg.Mail.FromName,
				Address: cfg.Mail.FromAddress,
			},
		},
	)

	stats, err := loop.Run(ctx, limit, userID)
	if err != nil {
		return err
	}

	fmt.Printf("selected=%d sent=%d failed=%d suppressed=%d requeued=%d\n",
		stats.Selected, stats.Sent, stats.Failed, stats.Suppressed, stats.Requeued)
	return nil
}

type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}
