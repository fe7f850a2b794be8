// Package messaging fans state events out through RabbitMQ so that every
// views server instance sharing a broker sees them.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"trip-planner/internal/domain"
	"trip-planner/internal/observability"
)

// EventsExchange is the fanout exchange state events are published to
const EventsExchange = "trip.events"

const publishTimeout = 5 * time.Second

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	// serialises publishes on the shared channel
	mu sync.Mutex
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		EventsExchange, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully", slog.String("exchange", EventsExchange))
	return nil
}

// Publish sends ev to the events exchange as a persistent JSON message
func (r *RabbitMQ) Publish(ctx context.Context, ev domain.Event) error {
	msg, err := newPublishing(ev)
	if err != nil {
		return err
	}

	r.mu.Lock()
	err = r.channel.PublishWithContext(ctx, EventsExchange, string(ev.Kind), false, false, msg)
	r.mu.Unlock()

	if err != nil {
		observability.EventsFannedOutTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to publish event: %w", err)
	}
	observability.EventsFannedOutTotal.WithLabelValues("success").Inc()

	observability.FromContext(ctx).Debug("published state event",
		slog.String("kind", string(ev.Kind)),
		slog.String("message_id", msg.MessageId))
	return nil
}

// Handle is the event bus handler forwarding every event to the broker.
// Failures are logged: the local state already moved on.
func (r *RabbitMQ) Handle(ctx context.Context, ev domain.Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.Publish(pubCtx, ev); err != nil {
		observability.FromContext(ctx).Error("failed to fan out state event",
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()))
	}
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func newPublishing(ev domain.Event) (amqp.Publishing, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    ev.OccurredAt,
		Type:         string(ev.Kind),
		Headers: amqp.Table{
			"user_id": strconv.FormatInt(ev.UserID(), 10),
		},
	}, nil
}
