// Package queue carries webhook events from the HTTP edge to the pipeline
// workers over RabbitMQ, with a delayed retry stage and a dead-letter queue
// for events that exhaust their attempts.
package queue

import (
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/meridianhq/inboxd/store"
)

const (
	Exchange      = "inboxd.events"
	EventQueue    = "inboxd.webhook"
	RetryQueue    = "inboxd.webhook.retry"
	DeadQueue     = "inboxd.webhook.dead"
	retryExchange = "inboxd.webhook.retry"
	deadExchange  = "inboxd.webhook.dead"

	RoutingKeyWebhookFacebook  = "webhook.facebook"
	RoutingKeyWebhookInstagram = "webhook.instagram"
	RoutingKeyReauthorization  = "channel.reauthorization_required"

	// attemptHeader counts how many times a delivery has been through the
	// retry stage.
	attemptHeader = "x-attempt"

	maxRetryDelay = 15 * time.Minute
)

// Envelope wraps a raw webhook payload for transit through the broker.
type Envelope struct {
	ID         string          `json:"id"`
	Platform   store.Platform  `json:"platform"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`
}

// declareTopology sets up the main queue, the retry queue feeding back into
// it (retried messages carry their own per-attempt expiration), and the
// final dead-letter queue. Safe to call from both the publisher and the
// consumer.
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(retryExchange, "fanout", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(deadExchange, "fanout", true, false, false, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(EventQueue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(EventQueue, "webhook.*", Exchange, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(RetryQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    Exchange,
		"x-dead-letter-routing-key": "webhook.retry",
	}); err != nil {
		return err
	}
	if err := ch.QueueBind(RetryQueue, "", retryExchange, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(EventQueue, "webhook.retry", Exchange, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(DeadQueue, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.QueueBind(DeadQueue, "", deadExchange, false, nil)
}

// attemptCount reads the attempt header. The broker hands numeric header
// values back in whichever integer width it prefers.
func attemptCount(d amqp.Delivery) int {
	switch n := d.Headers[attemptHeader].(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	default:
		return 0
	}
}

// retryDelay doubles the base delay per attempt, capped so a poisoned event
// still cycles often enough to hit its attempt limit.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}
