package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"trip-planner/internal/domain"
)

// EventHandler receives events read back from the broker
type EventHandler func(ctx context.Context, ev domain.Event)

// Consumer binds a private queue to the events exchange and hands every
// event it receives to a handler, typically the websocket hub.
type Consumer struct {
	rmq     *RabbitMQ
	handler EventHandler
}

func NewConsumer(rmq *RabbitMQ, handler EventHandler) *Consumer {
	return &Consumer{
		rmq:     rmq,
		handler: handler,
	}
}

// Start declares the queue and consumes in the background until ctx is done
func (c *Consumer) Start(ctx context.Context) error {
	queue, err := c.rmq.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare events queue: %w", err)
	}

	if err := c.rmq.channel.QueueBind(
		queue.Name,     // queue name
		"",             // routing key
		EventsExchange, // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind events queue: %w", err)
	}

	msgs, err := c.rmq.channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming state events",
		slog.String("queue", queue.Name),
		slog.String("exchange", EventsExchange))

	go c.loop(ctx, msgs)
	return nil
}

func (c *Consumer) loop(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping event consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("event consumer channel closed")
				return
			}

			ev, err := decodeDelivery(msg)
			if err != nil {
				slog.Error("dropping undecodable event",
					slog.String("error", err.Error()),
					slog.String("message_id", msg.MessageId))
				continue
			}
			c.handler(ctx, ev)
		}
	}
}

func decodeDelivery(msg amqp.Delivery) (domain.Event, error) {
	var ev domain.Event
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		return domain.Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if ev.Kind == "" {
		return domain.Event{}, errors.New("event carries no type")
	}
	return ev, nil
}
