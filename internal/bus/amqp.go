package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/goalboard/internal/types"
	"github.com/rabbitmq/amqp091-go"
)

// AMQPBus shares document changes between server replicas through a fanout
// exchange. Each replica consumes from its own exclusive queue and delivers to
// local watchers, including changes it published itself.
type AMQPBus struct {
	*MemoryBus

	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	queue    string

	pubMu sync.Mutex
}

var _ Bus = (*AMQPBus)(nil)

// NewAMQPBus dials url and declares the exchange and a private queue.
func NewAMQPBus(url, exchange string) (*AMQPBus, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	b := &AMQPBus{
		MemoryBus: NewMemoryBus(),
		conn:      conn,
		channel:   channel,
		exchange:  exchange,
	}
	if err := b.setup(); err != nil {
		b.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return b, nil
}

func (b *AMQPBus) setup() error {
	err := b.channel.ExchangeDeclare(
		b.exchange, // name
		"fanout",   // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := b.channel.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	b.queue = q.Name

	if err := b.channel.QueueBind(b.queue, "", b.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Publish sends snap to every replica.
func (b *AMQPBus) Publish(ctx context.Context, snap types.DocumentSnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	err = b.channel.PublishWithContext(
		ctx,
		b.exchange, // exchange
		"",         // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Run consumes changes and delivers them to local watchers until ctx is done.
func (b *AMQPBus) Run(ctx context.Context) error {
	msgs, err := b.channel.Consume(
		b.queue, // queue
		"",      // consumer
		true,    // auto-ack
		true,    // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.Info("consuming document changes",
		"component", "bus",
		"action", "consume_started",
		"exchange", b.exchange,
		"queue", b.queue,
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("change delivery channel closed")
			}
			var snap types.DocumentSnapshot
			if err := json.Unmarshal(delivery.Body, &snap); err != nil {
				slog.Error("discarding malformed change", "component", "bus", "error", err)
				continue
			}
			b.deliver(snap)
		}
	}
}

// Close closes local watchers and the AMQP connection.
func (b *AMQPBus) Close() error {
	b.MemoryBus.Close()
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
