package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// DLQExchangeName returns the dead letter exchange paired with exchange.
func DLQExchangeName(exchange string) string {
	return exchangeOrDefault(exchange) + ".dlq"
}

// DeclareDLQExchange declares the dead letter exchange.
func DeclareDLQExchange(ch *amqp091.Channel, exchange string) error {
	return DeclareExchange(ch, DLQExchangeName(exchange))
}

// DeclareDLQQueue declares <queue>.dlq bound to the dead letter exchange.
func DeclareDLQQueue(ch *amqp091.Channel, exchange, queue, routingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(
		queue+".dlq",
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, DLQExchangeName(exchange), false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}
	return q, nil
}

// PublishToDLQ parks a message the worker gave up on.
func (p *Publisher) PublishToDLQ(ctx context.Context, routingKey string, payload []byte, reason string) error {
	headers := amqp091.Table{
		"x-original-error": reason,
		"x-failed-at":      time.Now().UTC().Format(time.RFC3339),
	}
	return p.publish(ctx, DLQExchangeName(p.exchange), routingKey, payload, headers)
}
