// Package workers runs the AMQP consumers that drive the asynchronous
// parts of the booking lifecycle: waitlist promotion after a freed slot,
// confirmation-window expiry, and the conference-start sweep.
//
// Messages are hints. Every handler re-reads authoritative state from
// the store before acting, so duplicate deliveries and replays after a
// crash are no-ops. Malformed payloads are acked and dropped; handler
// errors nack with requeue so another worker retries.
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/confseat/confseat/internal/bus"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Engine is the part of the scheduler the consumers invoke.
type Engine interface {
	Promote(ctx context.Context, confID int64) error
	HandleExpiry(ctx context.Context, bookingID int64) error
	HandleConferenceStart(ctx context.Context, confID int64) error
}

type Consumers struct {
	conn        *amqp.Connection
	engine      Engine
	workerCount int
	wg          sync.WaitGroup
	channels    []*amqp.Channel
}

func New(conn *amqp.Connection, engine Engine, workerCount int) *Consumers {
	return &Consumers{
		conn:        conn,
		engine:      engine,
		workerCount: workerCount,
	}
}

// Start subscribes to the three processing queues and spawns the worker
// pools. It returns once all consumers are registered; workers run until
// ctx is canceled or the broker closes the deliveries.
func (c *Consumers) Start(ctx context.Context) error {
	subs := []struct {
		queue   string
		handler func(context.Context, amqp.Delivery)
	}{
		{bus.QueueSlotFreed, c.handleSlotFreed},
		{bus.QueueConfirmationExpire, c.handleExpiry},
		{bus.QueueConferenceStarts, c.handleConferenceStart},
	}
	for _, sub := range subs {
		if err := c.consume(ctx, sub.queue, sub.handler); err != nil {
			return err
		}
	}
	log.Info().Int("worker_count", c.workerCount).Msg("consumers started")
	return nil
}

func (c *Consumers) consume(ctx context.Context, queue string, handler func(context.Context, amqp.Delivery)) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel for %s: %w", queue, err)
	}
	if err := ch.Qos(c.workerCount, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to set prefetch for %s: %w", queue, err)
	}

	tag := queue + "-" + uuid.NewString()
	deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to consume %s: %w", queue, err)
	}
	c.channels = append(c.channels, ch)

	for i := 0; i < c.workerCount; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for d := range deliveries {
				handler(ctx, d)
			}
		}()
	}
	return nil
}

// Stop closes the consumer channels, which ends the deliveries ranges,
// and waits for in-flight handlers to finish.
func (c *Consumers) Stop() {
	for _, ch := range c.channels {
		if err := ch.Close(); err != nil {
			log.Error().Err(err).Msg("error closing consumer channel")
		}
	}
	c.wg.Wait()
	log.Info().Msg("consumers stopped")
}

func (c *Consumers) handleSlotFreed(ctx context.Context, d amqp.Delivery) {
	var msg bus.SlotFreedMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		log.Error().Err(err).Str("queue", bus.QueueSlotFreed).Msg("dropping malformed message")
		ack(d)
		return
	}
	if err := c.engine.Promote(ctx, msg.ConferenceID); err != nil {
		log.Error().Err(err).
			Str("event_id", msg.EventID).
			Int64("conference_id", msg.ConferenceID).
			Msg("promotion failed, requeueing")
		nack(d)
		return
	}
	ack(d)
}

func (c *Consumers) handleExpiry(ctx context.Context, d amqp.Delivery) {
	var msg bus.ConfirmationExpiredMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		log.Error().Err(err).Str("queue", bus.QueueConfirmationExpire).Msg("dropping malformed message")
		ack(d)
		return
	}
	if err := c.engine.HandleExpiry(ctx, msg.BookingID); err != nil {
		log.Error().Err(err).
			Str("event_id", msg.EventID).
			Int64("booking_id", msg.BookingID).
			Msg("expiry handling failed, requeueing")
		nack(d)
		return
	}
	ack(d)
}

func (c *Consumers) handleConferenceStart(ctx context.Context, d amqp.Delivery) {
	var msg bus.ConferenceStartMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		log.Error().Err(err).Str("queue", bus.QueueConferenceStarts).Msg("dropping malformed message")
		ack(d)
		return
	}
	if err := c.engine.HandleConferenceStart(ctx, msg.ConferenceID); err != nil {
		log.Error().Err(err).
			Str("event_id", msg.EventID).
			Int64("conference_id", msg.ConferenceID).
			Msg("conference start sweep failed, requeueing")
		nack(d)
		return
	}
	ack(d)
}

func ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		log.Error().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("ack failed")
	}
}

func nack(d amqp.Delivery) {
	if err := d.Nack(false, true); err != nil {
		log.Error().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("nack failed")
	}
}
