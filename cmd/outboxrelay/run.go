package outboxrelay

import (
	"context"

	relayapp "delivery-platform/internal/app/outboxrelay"
	"delivery-platform/internal/ports"
	"delivery-platform/internal/scheduler"
	"delivery-platform/internal/shared/config"
	"delivery-platform/internal/shared/kafka"
	"delivery-platform/internal/shared/logger"
	"delivery-platform/internal/shared/metrics"
	pg "delivery-platform/internal/shared/postgres"
	"delivery-platform/internal/shared/rabbitmq"
)

// Run wires the outbox relay and blocks until ctx is cancelled.
func Run(ctx context.Context, metricsAddr string) error {
	log := logger.NewLogger("outbox-relay")

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

	rabbit, err := rabbitmq.Connect(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err)
		return err
	}
	defer rabbit.Close()

	publishers := []ports.EventPublisher{relayapp.NewRabbitPublisher(rabbit)}

	kc := kafka.NewClient(cfg.KafkaBrokers)
	if kc.Enabled() {
		writer := kc.NewWriter(cfg.KafkaTopic)
		defer writer.Close()
		publishers = append(publishers, relayapp.NewKafkaPublisher(writer))
	}

	m := metrics.New(nil)
	eventsRepo := pg.NewEventsRepo(pool)
	relay := relayapp.NewRelay(eventsRepo, publishers, log, m, cfg.RelayBatchSize)

	sched := scheduler.New(log)
	sched.Register("outbox_relay", cfg.RelayInterval, cfg.RelayInterval*10, func(jobCtx context.Context) error {
		_, err := relay.RunOnce(jobCtx)
		return err
	})
	sched.Start(ctx)

	log.Info(ctx, "service_started", "Outbox relay started",
		map[string]any{"interval": cfg.RelayInterval.String(), "batch_size": cfg.RelayBatchSize, "brokers": len(publishers)})

	if err := metrics.Serve(ctx, metricsAddr); err != nil {
		log.Error(ctx, "metrics_server_failed", "Metrics endpoint failed", err)
	}

	sched.Wait()
	log.Info(ctx, "service_stopped", "Outbox relay stopped", nil)
	return nil
}
