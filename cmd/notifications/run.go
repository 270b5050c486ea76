package notifications

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	notifapp "delivery-platform/internal/app/notifications"
	"delivery-platform/internal/shared/config"
	"delivery-platform/internal/shared/logger"
	"delivery-platform/internal/shared/metrics"
	pg "delivery-platform/internal/shared/postgres"
	"delivery-platform/internal/shared/rabbitmq"
)

// Run wires the notification worker: the queue consumer, the dispatcher
// pool, and the in-app feed API. Blocks until ctx is cancelled.
func Run(ctx context.Context, port, workers, prefetch int) error {
	log := logger.NewLogger("notification-worker")

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

	m := metrics.New(nil)
	notifRepo := pg.NewNotificationsRepo(pool)
	ledger := pg.NewLedgerRepo(pool)

	dispatcher := notifapp.NewDispatcher(notifRepo, notifapp.DefaultSenders(log), log, m, workers)
	dispatcher.Start(ctx)

	svc := notifapp.NewService(notifRepo, dispatcher, log)
	consumer := notifapp.NewConsumer(rabbit, pg.NewUnitOfWork(pool), svc, ledger, log, prefetch)

	h := notifapp.NewHandler(svc, log)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error(ctx, "consumer_failed", "Queue consumer exited", err)
		}
	}()

	log.Info(ctx, "service_started",
		fmt.Sprintf("Notification worker started on port %d", port),
		map[string]any{"port": port, "workers": workers, "prefetch": prefetch})

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}

	dispatcher.Wait()
	log.Info(ctx, "service_stopped", "Notification worker stopped", nil)
	return nil
}
