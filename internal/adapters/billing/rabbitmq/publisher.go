// Package rabbitmq relays dispatch outcomes to the billing system over AMQP.
// Billing reads each outcome's error reason to decide credit reversal.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"bulk-sms-dispatch/internal/domain"
)

const exchangeName = "billing"
const queueName = "billing.outcomes"
const routingKey = "billing.outcomes"

// Publisher implements ports.OutcomePublisher using RabbitMQ.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewPublisher dials RabbitMQ, declares the exchange and queue, and binds them.
func NewPublisher(amqpURL string) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, channel: ch}, nil
}

// outcomeEvent is the wire shape billing consumes, one event per recipient.
type outcomeEvent struct {
	SenderID          string    `json:"sender_id"`
	Recipient         string    `json:"recipient"`
	Success           bool      `json:"success"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	ErrorReason       string    `json:"error_reason,omitempty"`
	DispatchedAt      time.Time `json:"dispatched_at"`
}

// PublishOutcomes publishes one persistent event per outcome.
func (p *Publisher) PublishOutcomes(ctx context.Context, senderID string, outcomes []domain.SendOutcome) error {
	now := time.Now().UTC()

	for _, o := range outcomes {
		body, err := json.Marshal(outcomeEvent{
			SenderID:          senderID,
			Recipient:         string(o.Recipient),
			Success:           o.Success,
			ProviderMessageID: o.ProviderMessageID,
			ErrorReason:       o.ErrorReason,
			DispatchedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("marshal outcome event: %w", err)
		}

		err = p.channel.PublishWithContext(
			ctx,
			exchangeName,
			routingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish outcome for %s: %w", o.Recipient, err)
		}
	}

	return nil
}

// Close cleanly shuts down the channel and connection.
func (p *Publisher) Close() {
	p.channel.Close()
	p.conn.Close()
}

// declare idempotently sets up the exchange, queue, and binding.
func declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(queueName, routingKey, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}
