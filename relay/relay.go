// Package relay consumes transaction events from the subscription channel and fans them out as notifications to
// the chats tracking the address.
package relay

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/rs/zerolog"

	"github.com/tarancss/soltracker/lib/metrics"
	"github.com/tarancss/soltracker/lib/msg"
	"github.com/tarancss/soltracker/lib/msg/types"
)

// Default timings.
const (
	PollWait = time.Second
	Backoff  = 100 * time.Millisecond
)

// Notifier delivers a notification text to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Archiver stores received events.
type Archiver interface {
	SaveEvent(ctx context.Context, ev types.TransactionEvent) error
}

// Relay is the event relay loop. The subscription is consumed by the relay alone.
type Relay struct {
	sub      msg.Subscription
	notifier Notifier
	archive  Archiver
	metrics  *metrics.Metrics
	log      zerolog.Logger
	pollWait time.Duration
	backoff  time.Duration
}

// Option configures a Relay.
type Option func(*Relay)

// WithArchive archives every decoded event before dispatching it.
func WithArchive(a Archiver) Option { return func(r *Relay) { r.archive = a } }

// WithMetrics sets the collectors updated by the loop.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Relay) { r.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(r *Relay) { r.log = l } }

// WithTimings sets the poll wait and the pause between iterations. Zero values keep the defaults.
func WithTimings(pollWait, backoff time.Duration) Option {
	return func(r *Relay) {
		if pollWait > 0 {
			r.pollWait = pollWait
		}

		if backoff > 0 {
			r.backoff = backoff
		}
	}
}

// New returns a relay reading from sub and notifying through n.
func New(sub msg.Subscription, n Notifier, opts ...Option) *Relay {
	r := &Relay{
		sub:      sub,
		notifier: n,
		metrics:  metrics.New(nil, ""),
		log:      zerolog.Nop(),
		pollWait: PollWait,
		backoff:  Backoff,
	}

	for _, o := range opts {
		o(r)
	}

	return r
}

// Text returns the notification sent for a transaction on address, escaped for HTML parse mode.
func Text(address string) string {
	return "transaction for the address: " + html.EscapeString(address)
}

// Run polls the subscription until ctx is cancelled or the subscription is closed. Errors inside an iteration are
// logged and never stop the loop.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info().Dur("pollwait", r.pollWait).Msg("relay started")
	defer r.log.Info().Msg("relay stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := r.iterate(ctx); errors.Is(err, msg.ErrClosed) {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.backoff):
		}
	}
}

func (r *Relay) iterate(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Msg("error processing transaction")

			err = fmt.Errorf("relay: panic: %v", p)
		}
	}()

	m, err := r.sub.Poll(ctx, r.pollWait)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, msg.ErrClosed) {
			r.metrics.PollErrors.Inc()
			r.log.Error().Err(err).Msg("error polling subscription")
		}

		return err
	}

	if m == nil {
		return nil
	}

	ev, err := types.DecodeEvent(m.Payload)
	if err != nil {
		r.metrics.Events.WithLabelValues(metrics.Malformed).Inc()
		r.log.Error().Err(err).Str("channel", m.Channel).Msg("error processing transaction")

		return nil
	}

	r.metrics.Events.WithLabelValues(metrics.Decoded).Inc()
	r.Dispatch(ctx, ev)

	return nil
}

// Dispatch archives ev, if an archive is configured, and notifies every chat in order. A failed delivery does not
// prevent the remaining ones; cancellation does.
func (r *Relay) Dispatch(ctx context.Context, ev types.TransactionEvent) {
	if r.archive != nil {
		if err := r.archive.SaveEvent(ctx, ev); err != nil {
			r.log.Warn().Err(err).Str("address", ev.Address).Msg("error archiving event")
		}
	}

	text := Text(ev.Address)

	for _, id := range ev.ChatIDs {
		if ctx.Err() != nil {
			return
		}

		if err := r.notifier.Notify(ctx, id, text); err != nil {
			r.metrics.Notifications.WithLabelValues(metrics.Failed).Inc()
			r.log.Error().Err(err).Int64("chat_id", id).Msg("error sending notification")

			continue
		}

		r.metrics.Notifications.WithLabelValues(metrics.Sent).Inc()
	}
}
