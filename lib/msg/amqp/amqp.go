// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ). Every channel name
// maps to a fanout exchange so that publishing keeps the pub/sub semantics of the Redis transport.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/tarancss/soltracker/lib/msg"
)

// Amqp implements a connection to a broker and a channel for reuse when publishing.
type Amqp struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       *amqp.Channel
	channels []string
}

// New instantiates a new amqp broker. channels are the exchange names declared by Setup.
func New(uri string, channels ...string) (*Amqp, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}

	return &Amqp{conn: conn, channels: channels}, nil
}

// Setup declares a durable fanout exchange for every configured channel.
func (r *Amqp) Setup(_ context.Context) error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	for _, name := range r.channels {
		if err = declare(channel, name); err != nil {
			return err
		}
	}

	return nil
}

func declare(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(name, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp: declare exchange %s: %w", name, err)
	}

	return nil
}

// Close terminates gracefully the connection to the AMQP message broker.
func (r *Amqp) Close() error {
	r.mu.Lock()
	if r.ch != nil {
		_ = r.ch.Close()
		r.ch = nil
	}
	r.mu.Unlock()

	if r.conn.IsClosed() {
		return nil
	}

	return r.conn.Close()
}

// Publish sends body to the exchange named channel.
func (r *Amqp) Publish(_ context.Context, channel string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn.IsClosed() {
		return msg.ErrClosed
	}
	// obtain channel if not present
	if r.ch == nil {
		var err error
		if r.ch, err = r.conn.Channel(); err != nil {
			return err
		}
	}

	m := amqp.Publishing{
		Body:        body,
		ContentType: "application/json",
		Timestamp:   time.Now(),
	}
	if err := r.ch.Publish(channel, "", false, false, m); err != nil {
		// a failed publish closes the amqp channel, get a new one next time
		r.ch = nil

		return fmt.Errorf("amqp: publish to %s: %w", channel, err)
	}

	return nil
}

// Subscribe binds an exclusive, auto-deleted queue to the exchange named channel and consumes from it.
func (r *Amqp) Subscribe(_ context.Context, channel string) (msg.Subscription, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, err
	}

	if err = declare(ch, channel); err != nil {
		_ = ch.Close()

		return nil, err
	}
	// declare queue
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()

		return nil, fmt.Errorf("amqp: declare queue: %w", err)
	}
	// bind queue to exchange
	if err = ch.QueueBind(q.Name, "", channel, false, nil); err != nil {
		_ = ch.Close()

		return nil, fmt.Errorf("amqp: bind queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()

		return nil, fmt.Errorf("amqp: consume: %w", err)
	}

	return &Subscription{ch: ch, channel: channel, deliveries: deliveries}, nil
}

// Subscription consumes the deliveries of one exchange.
type Subscription struct {
	ch         *amqp.Channel
	channel    string
	deliveries <-chan amqp.Delivery
	once       sync.Once
}

// Poll waits up to wait for the next delivery.
func (s *Subscription) Poll(ctx context.Context, wait time.Duration) (*msg.Message, error) {
	return poll(ctx, s.channel, s.deliveries, wait)
}

func poll(ctx context.Context, channel string, deliveries <-chan amqp.Delivery, wait time.Duration) (*msg.Message, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case d, ok := <-deliveries:
		if !ok {
			return nil, msg.ErrClosed
		}

		return &msg.Message{Channel: channel, Payload: d.Body}, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close cancels the consumer and closes its amqp channel.
func (s *Subscription) Close() (err error) {
	s.once.Do(func() {
		if err = s.ch.Close(); err != nil && errors.Is(err, amqp.ErrClosed) {
			err = nil
		}
	})

	return err
}
