// Package amqp publishes job status events to a RabbitMQ topic exchange.
//
// Routing keys have the form job.<type>.<status>, lower-cased, so consumers
// can bind to e.g. "job.*.failed" or "job.audio.#".
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/taskconvertai/taskconvert-api/internal/config"
	"github.com/taskconvertai/taskconvert-api/internal/events"
)

// ErrClosed is returned when publishing after Close.
var ErrClosed = errors.New("publisher is closed")

const (
	dialMaxTries    = 5
	dialMaxInterval = 10 * time.Second
	publishTimeout  = 5 * time.Second
)

// channel is the subset of *amqp091.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher forwards job events to an exchange. It implements
// events.EventHandler.
type Publisher struct {
	ch       channel
	conn     io.Closer
	exchange string
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ events.EventHandler = (*Publisher)(nil)

// Dial connects to the broker, retrying with exponential backoff.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*amqp091.Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	operation := func() (*amqp091.Connection, error) {
		conn, err := amqp091.Dial(url)
		if err != nil {
			logger.WarnContext(ctx, "failed to connect to RabbitMQ, retrying", "error", err)
			return nil, err
		}
		return conn, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = dialMaxInterval
	conn, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(dialMaxTries))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	logger.InfoContext(ctx, "connected to RabbitMQ")
	return conn, nil
}

// Connect dials the broker in cfg and returns a publisher on a new channel.
// Closing the publisher closes the connection.
func Connect(ctx context.Context, cfg config.EventsConfig, logger *slog.Logger) (*Publisher, error) {
	conn, err := Dial(ctx, cfg.AMQPURL, logger)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p, err := NewPublisher(ch, cfg.Exchange, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher declares a durable topic exchange on ch.
func NewPublisher(ch channel, exchange string, logger *slog.Logger) (*Publisher, error) {
	if exchange == "" {
		return nil, errors.New("exchange cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := ch.ExchangeDeclare(exchange, amqp091.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		logger:   logger.With("component", "event_publisher", "exchange", exchange),
	}, nil
}

// RoutingKey returns the key event is published with.
func RoutingKey(event *events.JobEvent) string {
	return strings.ToLower(fmt.Sprintf("job.%s.%s", event.JobType, event.Status))
}

// HandleEvent publishes event as a persistent JSON message.
func (p *Publisher) HandleEvent(ctx context.Context, event *events.JobEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	key := RoutingKey(event)
	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.ID.String(),
		Timestamp:    event.OccurredAt,
		Type:         "job.status",
		Body:         body,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to publish job event",
			"job_id", event.JobID, "routing_key", key, "error", err)
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}

	p.logger.DebugContext(ctx, "published job event", "job_id", event.JobID, "routing_key", key)
	return nil
}

// Close closes the channel and, when owned, the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
