// Package msg defines the interface for the publish/subscribe message brokers used to talk to the wallet watcher.
//
// The bot publishes track commands on the command channel and consumes transaction events from the transaction
// channel. Implementations live in the sub-packages (redis, amqp, kafka) and are selected by the mbtype option of
// the configuration.
package msg

import (
	"context"
	"errors"
	"time"
)

// Broker types.
const (
	REDIS = "redis"
	AMQP  = "amqp"
	KAFKA = "kafka"
)

// ErrClosed is returned when polling or publishing on a closed subscription or broker.
var ErrClosed = errors.New("msg: closed")

// Message is a data message received from a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription is a subscription to a single channel. It is owned by one consumer.
type Subscription interface {
	// Poll waits up to wait for the next data message. It returns nil, nil when nothing arrived in time or when only
	// control traffic (subscribe confirmations, pings) was received.
	Poll(ctx context.Context, wait time.Duration) (*Message, error)
	// Close unsubscribes from the channel.
	Close() error
}

// Broker publishes to and subscribes to channels.
type Broker interface {
	Setup(ctx context.Context) error
	Publish(ctx context.Context, channel string, body []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}
