// Package kafka implements the message broker interface for Kafka. Each channel maps to a topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tarancss/soltracker/lib/msg"
)

// Kafka keeps a single writer for all topics.
type Kafka struct {
	brokers []string
	mu      sync.Mutex
	writer  *kafka.Writer
}

// New instantiates a kafka broker for uri, a comma separated list of brokers optionally prefixed with kafka://
// (ie. kafka://localhost:9092,localhost:9093).
func New(uri string) (*Kafka, error) {
	brokers := ParseBrokers(uri)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers in %q", uri)
	}

	return &Kafka{
		brokers: brokers,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// ParseBrokers returns the broker addresses contained in uri.
func ParseBrokers(uri string) []string {
	uri = strings.TrimPrefix(uri, "kafka://")

	var brokers []string
	for _, b := range strings.Split(uri, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return brokers
}

// Setup checks the first broker is reachable.
func (k *Kafka) Setup(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", k.brokers[0])
	if err != nil {
		return fmt.Errorf("kafka: dial %s: %w", k.brokers[0], err)
	}

	return conn.Close()
}

// Publish writes body to the topic named channel.
func (k *Kafka) Publish(ctx context.Context, channel string, body []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer == nil {
		return msg.ErrClosed
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{Topic: channel, Value: body}); err != nil {
		return fmt.Errorf("kafka: write to %s: %w", channel, err)
	}

	return nil
}

// Subscribe creates a reader positioned at the end of the topic, so only messages written from now on are seen.
func (k *Kafka) Subscribe(_ context.Context, channel string) (msg.Subscription, error) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.brokers,
		Topic:       channel,
		StartOffset: kafka.LastOffset,
		MaxWait:     500 * time.Millisecond,
	})

	return &Subscription{r: r, channel: channel}, nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.writer != nil {
		err := k.writer.Close()
		k.writer = nil

		return err
	}

	return nil
}

// Subscription reads one topic.
type Subscription struct {
	r       *kafka.Reader
	channel string
}

// Poll waits up to wait for the next message.
func (s *Subscription) Poll(ctx context.Context, wait time.Duration) (*msg.Message, error) {
	rctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	m, err := s.r.ReadMessage(rctx)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, nil
		case errors.Is(err, io.EOF):
			// the reader was closed
			return nil, msg.ErrClosed
		}

		return nil, fmt.Errorf("kafka: read from %s: %w", s.channel, err)
	}

	return &msg.Message{Channel: m.Topic, Payload: m.Value}, nil
}

// Close closes the reader.
func (s *Subscription) Close() error {
	return s.r.Close()
}
