package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const publishRetries = 2

// PublishSlotFreed announces that a cancellation released a slot of the
// conference. The consumer runs the promotion engine.
func (b *Bus) PublishSlotFreed(ctx context.Context, confID int64) error {
	msg := SlotFreedMessage{
		EventID:      uuid.NewString(),
		ConferenceID: confID,
	}
	return b.publish(ctx, QueueSlotFreed, msg, 0)
}

// PublishConfirmationTimer schedules the expiry of a confirmation offer:
// the message sits in the timer queue until the deadline, then dead-
// letters into the expiry queue.
func (b *Bus) PublishConfirmationTimer(ctx context.Context, bookingID, confID int64, deadline time.Time) error {
	msg := ConfirmationExpiredMessage{
		EventID:      uuid.NewString(),
		BookingID:    bookingID,
		ConferenceID: confID,
		Deadline:     deadline,
	}
	return b.publish(ctx, QueueConfirmationTimer, msg, time.Until(deadline))
}

// PublishConferenceStart schedules the conference-start sweep. If the
// start time has already passed the message goes straight to the
// processing queue.
func (b *Bus) PublishConferenceStart(ctx context.Context, confID int64, name string, startTS time.Time) error {
	msg := ConferenceStartMessage{
		EventID:        uuid.NewString(),
		ConferenceID:   confID,
		ConferenceName: name,
		StartTimestamp: startTS,
	}
	delay := time.Until(startTS)
	if delay <= 0 {
		return b.publish(ctx, QueueConferenceStarts, msg, 0)
	}
	return b.publish(ctx, QueueConferenceTimer, msg, delay)
}

// publish sends a persistent JSON message to the queue via the default
// exchange. A positive ttl becomes a per-message expiration so RabbitMQ
// dead-letters it after the delay. Transient failures get a short retry;
// callers treat a final error as non-fatal because consumers re-read
// authoritative state anyway.
func (b *Bus) publish(ctx context.Context, queue string, payload any, ttl time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", queue, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if ttl > 0 {
		pub.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}

	backoff := 25 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err = b.ch.PublishWithContext(ctx, "", queue, false, false, pub)
		if err == nil {
			return nil
		}
		if attempt > publishRetries {
			return fmt.Errorf("failed to publish to %s: %w", queue, err)
		}
		log.Warn().Err(err).Str("queue", queue).Int("attempt", attempt).Msg("publish failed, retrying")
		time.Sleep(backoff)
		backoff *= 2
	}
}
