package bus

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Queue names. Timers are plain queues whose messages carry a
// per-message TTL; when the TTL elapses RabbitMQ dead-letters the
// message into the processing queue, which is what the consumers read.
const (
	QueueSlotFreed          = "slot.freed"
	QueueConfirmationTimer  = "confirmation.timer"
	QueueConfirmationExpire = "confirmation.expired"
	QueueConferenceTimer    = "conference.start.timer"
	QueueConferenceStarts   = "conference.starts"
)

// Bus holds the broker connection and a channel used for publishing.
type Bus struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Connect dials the broker and declares the full topology. Declarations
// are idempotent, so every instance can run this at startup.
func Connect(url string) (*Bus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	b := &Bus{conn: conn, ch: ch}
	if err := b.declareTopology(); err != nil {
		b.Close()
		return nil, err
	}

	log.Info().Str("bus_host", url).Msg("connected to RabbitMQ and declared topology")
	return b, nil
}

func (b *Bus) declareTopology() error {
	// Processing queues consumed by the workers.
	for _, q := range []string{QueueSlotFreed, QueueConfirmationExpire, QueueConferenceStarts} {
		if _, err := b.ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q, err)
		}
	}

	// Timer queues: expired messages are routed through the default
	// exchange into the corresponding processing queue.
	timers := map[string]string{
		QueueConfirmationTimer: QueueConfirmationExpire,
		QueueConferenceTimer:   QueueConferenceStarts,
	}
	for timer, target := range timers {
		args := amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": target,
		}
		if _, err := b.ch.QueueDeclare(timer, true, false, false, false, args); err != nil {
			return fmt.Errorf("failed to declare timer queue %s: %w", timer, err)
		}
	}
	return nil
}

// Connection exposes the underlying connection so consumers can open
// their own channels.
func (b *Bus) Connection() *amqp.Connection {
	return b.conn
}

func (b *Bus) Close() {
	if b.ch != nil {
		if err := b.ch.Close(); err != nil {
			log.Error().Err(err).Msg("error closing publisher channel")
		}
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			log.Error().Err(err).Msg("error closing bus connection")
		}
	}
}
