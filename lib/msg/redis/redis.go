// Package redis implements the message broker interface for Redis pub/sub, the transport used by the wallet
// watcher.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/tarancss/soltracker/lib/msg"
)

// Redis implements a connection pool to a Redis server.
type Redis struct {
	c *goredis.Client
}

// New instantiates a new redis broker for the given uri (ie. redis://:pass@localhost:6379/1). No connection is
// made until Setup or the first command.
func New(uri string) (*Redis, error) {
	opt, err := goredis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid uri: %w", err)
	}

	return &Redis{c: goredis.NewClient(opt)}, nil
}

// Setup checks the server is reachable.
func (r *Redis) Setup(ctx context.Context) error {
	if err := r.c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}

	return nil
}

// Close terminates gracefully the connections to the server.
func (r *Redis) Close() error {
	return r.c.Close()
}

// Publish sends body to every subscriber of channel. Delivery is fire and forget.
func (r *Redis) Publish(ctx context.Context, channel string, body []byte) error {
	if err := r.c.Publish(ctx, channel, body).Err(); err != nil {
		if errors.Is(err, goredis.ErrClosed) {
			return msg.ErrClosed
		}

		return fmt.Errorf("redis: publish to %s: %w", channel, err)
	}

	return nil
}

// Subscribe subscribes to channel and waits for the server confirmation.
func (r *Redis) Subscribe(ctx context.Context, channel string) (msg.Subscription, error) {
	ps := r.c.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()

		return nil, fmt.Errorf("redis: subscribe to %s: %w", channel, err)
	}

	return &Subscription{ps: ps, channel: channel}, nil
}

// Subscription is a Redis pub/sub subscription to one channel.
type Subscription struct {
	ps      *goredis.PubSub
	channel string
	closed  int32
}

// Poll waits up to wait for the next message published on the channel.
func (s *Subscription) Poll(ctx context.Context, wait time.Duration) (*msg.Message, error) {
	if atomic.LoadInt32(&s.closed) == 1 {
		return nil, msg.ErrClosed
	}

	v, err := s.ps.ReceiveTimeout(ctx, wait)
	if err != nil {
		switch {
		case isTimeout(err):
			return nil, nil
		case errors.Is(err, goredis.ErrClosed):
			return nil, msg.ErrClosed
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("redis: receive on %s: %w", s.channel, err)
	}

	if m, ok := v.(*goredis.Message); ok {
		return &msg.Message{Channel: m.Channel, Payload: []byte(m.Payload)}, nil
	}
	// *Subscription confirmations and *Pong replies are control traffic
	return nil, nil
}

// Close unsubscribes from the channel and releases the connection. It is safe to call it more than once.
func (s *Subscription) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	errUnsub := s.ps.Unsubscribe(ctx, s.channel)
	if err := s.ps.Close(); err != nil {
		return err
	}

	return errUnsub
}

func isTimeout(err error) bool {
	var ne net.Error

	return errors.As(err, &ne) && ne.Timeout()
}
