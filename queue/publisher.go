package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/meridianhq/inboxd/ingest"
	"github.com/meridianhq/inboxd/store"
)

// Publisher pushes envelopes into the events exchange with publisher
// confirms, so a 200 to the webhook caller means the event is on disk at
// the broker.
type Publisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
	url  string

	confirms chan amqp.Confirmation
}

func NewPublisher(ctx context.Context, url string) (*Publisher, error) {
	p := &Publisher{url: url}
	err := retry.Fibonacci(ctx, time.Second, func(ctx context.Context) error {
		if err := p.connect(); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to connect to broker, retrying")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect publisher: %w", err)
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
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
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	p.conn = conn
	p.ch = ch
	p.confirms = make(chan amqp.Confirmation, 1)
	ch.NotifyPublish(p.confirms)
	return nil
}

// PublishWebhook wraps the raw payload in an envelope and publishes it,
// blocking until the broker confirms.
func (p *Publisher) PublishWebhook(ctx context.Context, platform store.Platform, payload json.RawMessage) error {
	routingKey := RoutingKeyWebhookFacebook
	if platform == store.PlatformInstagram {
		routingKey = RoutingKeyWebhookInstagram
	}
	env := Envelope{
		ID:         uuid.NewString(),
		Platform:   platform,
		ReceivedAt: time.Now().UTC(),
		Payload:    payload,
	}
	return p.publish(ctx, routingKey, env)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	select {
	case confirm := <-p.confirms:
		if !confirm.Ack {
			return fmt.Errorf("broker rejected publish on %s", routingKey)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NotifyReauthorizationRequired implements ingest.Notifier by publishing the
// notice for downstream consumers (alerting, the connect-flow UI).
func (p *Publisher) NotifyReauthorizationRequired(ctx context.Context, notice ingest.ReauthorizationNotice) {
	if err := p.publish(ctx, RoutingKeyReauthorization, notice); err != nil {
		zerolog.Ctx(ctx).Err(err).
			Int64("channel_id", notice.ChannelID).
			Msg("failed to publish reauthorization notice")
	}
}
