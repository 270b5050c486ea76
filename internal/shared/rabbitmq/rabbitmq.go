package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"delivery-platform/internal/shared/config"
	"delivery-platform/internal/shared/logger"
)

const (
	// ExchangeOrderEvents fans order events out by routing key = event type.
	ExchangeOrderEvents = "order_events"
	// ExchangeDLX receives poison messages from the notification queue.
	ExchangeDLX = "order_events_dlx"

	QueueNotifications = "notifications_queue"
	QueueDLQ           = "order_events_dlq"

	// BindOrderEvents matches every "order.*" routing key.
	BindOrderEvents = "order.*"
)

// Client is a resilient RabbitMQ connector with auto-reconnect and
// idempotent topology setup.
type Client struct {
	url    string
	logger *logger.Logger
	logCtx context.Context // survives request ctx cancellation across reconnects

	mu      sync.RWMutex
	conn    *amqp.Connection
	pubChan *amqp.Channel

	closed    chan struct{}
	reconnect chan struct{}
}

// Connect establishes the connection and starts a background watcher that
// reconnects on failures.
func Connect(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Client, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.Host, cfg.RabbitMQ.Port)

	client := &Client{
		url:       url,
		logger:    log,
		logCtx:    context.WithoutCancel(ctx),
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}

	// initial connect (single attempt; further retries happen in the watcher)
	if err := client.connectOnce(ctx); err != nil {
		return nil, err
	}

	go client.watch()

	return client, nil
}

// NewConsumerChannel returns a fresh channel with prefetch (QoS) applied.
func (client *Client) NewConsumerChannel(prefetch int) (*amqp.Channel, error) {
	client.mu.RLock()
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, errors.New("rabbitmq: connection is not ready")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			ch.Close()
			return nil, err
		}
	}
	return ch, nil
}

// PublishEvent publishes a persistent JSON message to the order_events
// exchange. messageID and correlationID ride along for consumer-side dedupe
// and tracing.
func (client *Client) PublishEvent(ctx context.Context, routingKey string, body []byte, messageID, correlationID string) error {
	client.mu.RLock()
	ch := client.pubChan
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq: connection is not open")
	}
	if ch == nil || ch.IsClosed() {
		return errors.New("rabbitmq: publish channel is not open")
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return ch.PublishWithContext(pubCtx,
		ExchangeOrderEvents, routingKey, false, false,
		amqp.Publishing{
			DeliveryMode:  amqp.Persistent,
			ContentType:   "application/json",
			MessageId:     messageID,
			CorrelationId: correlationID,
			Timestamp:     time.Now().UTC(),
			Body:          body,
		})
}

// Close gracefully stops the watcher and closes AMQP resources.
func (client *Client) Close() {
	select {
	case <-client.closed:
	default:
		close(client.closed)
	}

	client.mu.Lock()
	if client.pubChan != nil {
		_ = client.pubChan.Close()
		client.pubChan = nil
	}
	if client.conn != nil {
		_ = client.conn.Close()
		client.conn = nil
	}
	client.mu.Unlock()
}

// --- internals ---

// connectOnce tries to connect and set up topology once.
func (client *Client) connectOnce(ctx context.Context) error {
	start := time.Now().UTC()

	conn, err := amqp.DialConfig(client.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	client.mu.Lock()
	client.conn = conn
	if client.pubChan != nil {
		_ = client.pubChan.Close()
	}
	client.pubChan = ch
	client.mu.Unlock()

	// either the connection or the publisher channel closing triggers reconnect
	go func() {
		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-client.closed:
			return
		case <-connClosed:
		case <-chClosed:
		}

		select {
		case client.reconnect <- struct{}{}:
		default:
			// already enqueued
		}
	}()

	client.logger.Info(ctx, "rabbitmq_connected",
		"Connected to RabbitMQ; exchange: "+ExchangeOrderEvents,
		map[string]any{"duration_ms": time.Since(start).Milliseconds()})

	return nil
}

// watch runs in background and attempts reconnects with exponential backoff.
func (client *Client) watch() {
	backoff := time.Second
	for {
		select {
		case <-client.closed:
			return
		case <-client.reconnect:
			for {
				select {
				case <-client.closed:
					return
				default:
				}

				ctx, cancel := context.WithTimeout(client.logCtx, 30*time.Second)
				err := client.connectOnce(ctx)
				cancel()

				if err == nil {
					backoff = time.Second
					client.logger.Info(client.logCtx, "rabbitmq_reconnected", "Reconnected to RabbitMQ and re-ensured topology", nil)
					break
				}

				client.logger.Error(client.logCtx, "retry_attempted", "RabbitMQ reconnect failed", err)

				time.Sleep(backoff)
				if backoff < 30*time.Second {
					backoff *= 2
					if backoff > 30*time.Second {
						backoff = 30 * time.Second
					}
				}
			}
		}
	}
}

// declareTopology declares exchanges, queues, and bindings idempotently.
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeOrderEvents, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(ExchangeDLX, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	// notification queue dead-letters undecodable messages
	if _, err := ch.QueueDeclare(QueueNotifications, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": ExchangeDLX,
	}); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueNotifications, BindOrderEvents, ExchangeOrderEvents, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(QueueDLQ, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueDLQ, "#", ExchangeDLX, false, nil); err != nil {
		return err
	}

	return nil
}
