package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/complyvault/compliance-backend/internal/api/rest"
	"github.com/complyvault/compliance-backend/internal/infrastructure/config"
	"github.com/complyvault/compliance-backend/internal/infrastructure/database"
	"github.com/complyvault/compliance-backend/internal/infrastructure/repository"
	"github.com/complyvault/compliance-backend/internal/infrastructure/telemetry"
	auditsvc "github.com/complyvault/compliance-backend/internal/service/audit"
	"github.com/complyvault/compliance-backend/internal/service/restore"
	"github.com/complyvault/compliance-backend/internal/service/snapshot"
	"github.com/complyvault/compliance-backend/internal/service/stepup"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()

	metrics := telemetry.NewRestoreMetrics(prometheus.DefaultRegisterer)

	// Repositories.
	events := repository.NewAuditEventRepository(pool)
	history := repository.NewRestoreHistoryRepository(pool)
	snapshots := repository.NewSnapshotRepository(pool)
	memberships := repository.NewMembershipRepository(pool)
	records := repository.NewRecordStore()

	// Services.
	recorder := auditsvc.NewRecorder(events, logger)
	temporal := auditsvc.NewTemporalQuery(events, logger)
	detector := auditsvc.NewRestorePointDetector(events, cfg.Restore.RestorePointThreshold, logger)
	activity := auditsvc.NewActivityReporter(events, logger)

	gate := stepup.NewRedisGate(redisClient, logger, cfg.StepUp.KeyPrefix)
	tokens := stepup.NewTokenIssuer(cfg.StepUp.TokenSecret)
	recordRisk := stepup.ParseRiskLevel(cfg.StepUp.RecordRestoreRisk)
	sessionRisk := stepup.ParseRiskLevel(cfg.StepUp.SessionRestoreRisk)

	registry := restore.DefaultRegistry()
	recordRestorer := restore.NewRecordRestorer(
		pool, records, temporal, recorder, registry,
		memberships, history, gate, recordRisk, metrics, logger,
	)
	sessionRestorer := restore.NewSessionRestorer(
		pool, records, events, recorder, registry,
		memberships, history, gate, sessionRisk, cfg.Restore.SessionFetchLimit, metrics, logger,
	)
	previewer := restore.NewPreviewer(
		pool, records, temporal, events, registry,
		memberships, cfg.Restore.SessionFetchLimit, logger,
	)

	aggregator := snapshot.NewAggregator(snapshots, memberships, logger)
	if cfg.Snapshot.Enabled {
		scheduler := snapshot.NewScheduler(aggregator, cfg.Snapshot.Schedule, logger)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("starting snapshot scheduler: %w", err)
		}
		defer scheduler.Stop()
	}

	handler := rest.NewHandler(rest.HandlerDeps{
		RestorePoints:  detector,
		RecordRestore:  recordRestorer,
		SessionRestore: sessionRestorer,
		Preview:        previewer,
		Activity:       activity,
		History:        temporal,
		RestoreHistory: history,
		Snapshots:      snapshots,
		SnapshotRunner: aggregator,
		StepUp:         gate,
		Tokens:         tokens,
		RecordRisk:     recordRisk,
		SessionRisk:    sessionRisk,
		Health:         pool,
		Logger:         logger,
	})

	server := rest.NewServer(&cfg.Server, handler, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return server.Shutdown(context.Background())
	}
}

func newRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}
