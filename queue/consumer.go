package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/meridianhq/inboxd/ingest"
)

// ErrDropEvent tells the consumer to ack a delivery without retrying it.
// Handlers return it for permanently bad input.
var ErrDropEvent = errors.New("drop event without retry")

// Handler processes one envelope. Any error other than ErrDropEvent sends
// the delivery through the retry stage with exponential backoff.
type Handler func(ctx context.Context, env Envelope) error

// Consumer runs a pool of workers draining the event queue. Failed
// deliveries are requeued with a delay doubling per attempt (base
// RetryDelay) until MaxAttempts, then moved to the dead-letter queue.
type Consumer struct {
	URL         string
	Workers     int
	MaxAttempts int
	RetryDelay  time.Duration
	Handle      Handler
}

// Run consumes until the context is canceled. The connection is redialed
// with fibonacci backoff when the broker drops it.
func (c *Consumer) Run(ctx context.Context) error {
	workers := c.Workers
	if workers <= 0 {
		workers = 4
	}
	for {
		err := c.consumeOnce(ctx, workers)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		zerolog.Ctx(ctx).Warn().Err(err).Msg("consumer connection lost, redialing")
		if err := retry.Fibonacci(ctx, time.Second, func(ctx context.Context) error {
			return retry.RetryableError(c.ping())
		}); err != nil {
			return err
		}
	}
}

func (c *Consumer) ping() error {
	conn, err := amqp.Dial(c.URL)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Consumer) consumeOnce(ctx context.Context, workers int) error {
	conn, err := amqp.Dial(c.URL)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(workers, 0, false); err != nil {
		return err
	}
	if err := declareTopology(ch); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}
	deliveries, err := ch.Consume(EventQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case amqpErr := <-closed:
					return amqpErr
				case d, ok := <-deliveries:
					if !ok {
						return errors.New("delivery channel closed")
					}
					c.handleDelivery(ctx, ch, d)
				}
			}
		})
	}
	return group.Wait()
}

// handleTimeout bounds one delivery's processing; a wedged event goes back
// through the retry stage instead of stalling the worker forever.
const handleTimeout = time.Minute

func (c *Consumer) handleDelivery(ctx context.Context, ch *amqp.Channel, d amqp.Delivery) {
	log := zerolog.Ctx(ctx).With().Str("message_id", d.MessageId).Logger()
	ctx, cancel := context.WithTimeout(log.WithContext(ctx), handleTimeout)
	defer cancel()

	var env Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		log.Warn().Err(err).Msg("undecodable envelope, dead-lettering")
		c.deadLetter(ctx, ch, d)
		d.Ack(false)
		return
	}

	err := c.Handle(log.With().Str("envelope_id", env.ID).Logger().WithContext(ctx), env)
	switch {
	case err == nil:
		d.Ack(false)
	case errors.Is(err, ErrDropEvent), errors.Is(err, ingest.ErrMalformedPayload):
		log.Warn().Err(err).Msg("dropping event permanently")
		c.deadLetter(ctx, ch, d)
		d.Ack(false)
	default:
		c.retryOrDead(ctx, ch, d, err)
	}
}

// retryOrDead republishes the delivery into the retry queue with a
// per-message expiration doubling per attempt, or dead-letters it once the
// attempt limit is reached.
//
// The broker expires messages only from the head of the retry queue, so a
// long expiration parked at the front delays shorter ones queued behind it.
// Retries are never early but can land later than scheduled.
func (c *Consumer) retryOrDead(ctx context.Context, ch *amqp.Channel, d amqp.Delivery, cause error) {
	log := zerolog.Ctx(ctx)
	attempt := attemptCount(d) + 1
	if c.MaxAttempts > 0 && attempt >= c.MaxAttempts {
		log.Error().Err(cause).Int("attempts", attempt).Msg("event exhausted retries, dead-lettering")
		c.deadLetter(ctx, ch, d)
		d.Ack(false)
		return
	}

	delay := retryDelay(c.RetryDelay, attempt-1)
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[attemptHeader] = int32(attempt)

	err := ch.PublishWithContext(ctx, retryExchange, "", false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		Body:         d.Body,
		Headers:      headers,
		DeliveryMode: amqp.Persistent,
		Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		log.Err(err).Msg("failed to schedule retry, requeueing in place")
		d.Nack(false, true)
		return
	}
	log.Warn().Err(cause).Int("attempt", attempt).Dur("retry_in", delay).Msg("event failed, scheduled for retry")
	d.Ack(false)
}

func (c *Consumer) deadLetter(ctx context.Context, ch *amqp.Channel, d amqp.Delivery) {
	err := ch.PublishWithContext(ctx, deadExchange, "", false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		Body:         d.Body,
		Headers:      d.Headers,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		zerolog.Ctx(ctx).Err(err).Msg("failed to dead-letter delivery")
	}
}
