package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors shared by all workers.
type Metrics struct {
	EventsPublished   *prometheus.CounterVec
	EventsProcessed   *prometheus.CounterVec
	SweepRecovered    prometheus.Counter
	SweepFailures     prometheus.Counter
	NotificationsSent *prometheus.CounterVec
	OutboxLag         prometheus.Gauge
	HTTPRequests      *prometheus.CounterVec
}

// New registers the collectors on reg; a nil reg uses the default registry.
// Tests pass their own registry to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_events_published_total",
			Help: "Outbox events delivered to a broker.",
		}, []string{"broker"}),
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_events_processed_total",
			Help: "Events handled on the consuming side.",
		}, []string{"consumer", "outcome"}),
		SweepRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reconciliation_events_recovered_total",
			Help: "Events picked up by the reconciliation sweep.",
		}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reconciliation_event_failures_total",
			Help: "Events the sweep could not process this pass.",
		}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Notification delivery outcomes.",
		}, []string{"channel", "outcome"}),
		OutboxLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_unpublished_events",
			Help: "Events still waiting in the outbox.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Requests served, by route pattern and status.",
		}, []string{"route", "code"}),
	}

	reg.MustRegister(
		m.EventsPublished, m.EventsProcessed,
		m.SweepRecovered, m.SweepFailures,
		m.NotificationsSent, m.OutboxLag,
		m.HTTPRequests,
	)
	return m
}

// Handler exposes the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled. Workers without an
// HTTP surface of their own use this for scraping.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
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
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
