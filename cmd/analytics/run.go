package analytics

import (
	"context"

	analyticsapp "delivery-platform/internal/app/analytics"
	"delivery-platform/internal/scheduler"
	"delivery-platform/internal/shared/config"
	"delivery-platform/internal/shared/kafka"
	"delivery-platform/internal/shared/logger"
	"delivery-platform/internal/shared/metrics"
	pg "delivery-platform/internal/shared/postgres"
)

// Run wires the analytics worker: the stream consumer (when Kafka is
// configured), the reconciliation sweep, the daily finalizer, and the
// retention purge. Blocks until ctx is cancelled.
func Run(ctx context.Context, metricsAddr string) error {
	log := logger.NewLogger("analytics-worker")

	cfg, err := config.Load()
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err)
		return err
	}

	pool, err := pg.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err)
		return err
	}
	defer pool.Close()

	m := metrics.New(nil)
	uow := pg.NewUnitOfWork(pool)
	eventsRepo := pg.NewEventsRepo(pool)
	ledger := pg.NewLedgerRepo(pool)
	metricsRepo := pg.NewMetricsRepo(pool)

	svc := analyticsapp.NewService(uow, eventsRepo, ledger, metricsRepo, log, m)
	reconciler := analyticsapp.NewReconciler(eventsRepo, svc, log, m, cfg.SweepBatchSize)
	finalizer := analyticsapp.NewFinalizer(metricsRepo, eventsRepo, log, cfg.SettlementGrace)
	cleanup := analyticsapp.NewCleanup(eventsRepo, log, cfg.RetentionDays)

	sched := scheduler.New(log)
	sched.Register("reconciliation_sweep", cfg.SweepInterval, cfg.SweepInterval, func(jobCtx context.Context) error {
		_, _, err := reconciler.SweepOnce(jobCtx)
		return err
	})
	sched.Register("daily_finalization", cfg.FinalizeInterval, cfg.SweepInterval, func(jobCtx context.Context) error {
		_, err := finalizer.FinalizeOnce(jobCtx)
		return err
	})
	sched.Register("retention_cleanup", cfg.CleanupInterval, cfg.SweepInterval, func(jobCtx context.Context) error {
		_, err := cleanup.RunOnce(jobCtx)
		return err
	})
	sched.Start(ctx)

	kc := kafka.NewClient(cfg.KafkaBrokers)
	if kc.Enabled() {
		reader := kc.NewReader(cfg.KafkaTopic, cfg.KafkaGroupID)
		consumer := analyticsapp.NewConsumer(reader, svc, log)
		defer consumer.Close()

		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error(ctx, "consumer_failed", "Stream consumer exited", err)
			}
		}()
		log.Info(ctx, "consumer_started", "Consuming the order-events stream",
			map[string]any{"topic": cfg.KafkaTopic, "group": cfg.KafkaGroupID})
	} else {
		log.Info(ctx, "consumer_disabled", "Kafka not configured; running on the reconciliation sweep only", nil)
	}

	log.Info(ctx, "service_started", "Analytics worker started",
		map[string]any{"sweep_interval": cfg.SweepInterval.String(), "retention_days": cfg.RetentionDays})

	if err := metrics.Serve(ctx, metricsAddr); err != nil {
		log.Error(ctx, "metrics_server_failed", "Metrics endpoint failed", err)
	}

	sched.Wait()
	log.Info(ctx, "service_stopped", "Analytics worker stopped", nil)
	return nil
}
