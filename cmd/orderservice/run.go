package orderservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	service "delivery-platform/internal/app/orderservice"
	"delivery-platform/internal/app/saga"
	"delivery-platform/internal/shared/config"
	"delivery-platform/internal/shared/logger"
	"delivery-platform/internal/shared/metrics"
	pg "delivery-platform/internal/shared/postgres"
)

// Run wires the order service and blocks until ctx is cancelled.
func Run(ctx context.Context, port int, maxConcurrent int) error {
	log := logger.NewLogger("order-service")

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
	ordersRepo := pg.NewOrdersRepo(pool)
	eventsRepo := pg.NewEventsRepo(pool)
	svc := service.NewService(uow, ordersRepo, eventsRepo, log)

	coordinator := saga.NewCoordinator(pg.NewSagaRepo(pool), log)
	flows := saga.NewOrderFlow(coordinator, svc,
		saga.NewLogPaymentGateway(log), saga.NewLogDriverPool(log), log)

	h := service.NewHandler(svc, flows, log, pool.Ping, cfg.JWTSecret, m)

	// global concurrency limiter: blocks when capacity is full, giving
	// natural backpressure instead of piling up goroutines
	handler := withConcurrencyLimit(maxConcurrent, h.Routes())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Info(ctx, "service_started",
		fmt.Sprintf("Order Service started on port %d", port),
		map[string]any{"port": port, "max_concurrent": maxConcurrent},
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		log.Info(ctx, "service_stopped", "Order Service stopped", nil)
		return nil
	case err := <-errCh:
		return err
	}
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sem <- struct{}{}        // acquire
		defer func() { <-sem }() // release
		next.ServeHTTP(w, r)
	})
}
