// Package track registers wallet addresses with the watcher by publishing track commands on the command channel.
// Delivery is fire and forget: the watcher does not acknowledge commands.
package track

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/tarancss/soltracker/lib/metrics"
	"github.com/tarancss/soltracker/lib/msg"
	"github.com/tarancss/soltracker/lib/msg/types"
)

// AddressLength is the length of an accepted address.
const AddressLength = 44

// ErrBadAddress is returned for addresses of the wrong length.
var ErrBadAddress = errors.New("wrong address format")

// Entry is one line of an address submission.
type Entry struct {
	Line    string
	Address string
	Name    string
	Err     error
}

// Parse splits a submission into entries, one per non blank line. The first field of a line is the address and
// the remaining ones, joined by a space, its name.
func Parse(text string) []Entry {
	var entries []Entry

	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		e := Entry{Line: strings.TrimSpace(line), Address: fields[0], Name: strings.Join(fields[1:], " ")}
		if err := Validate(e.Address); err != nil {
			e.Err = err
		}

		entries = append(entries, e)
	}

	return entries
}

// Validate checks the address format. The length is counted in characters, not bytes.
func Validate(address string) error {
	if utf8.RuneCountInString(address) != AddressLength {
		return ErrBadAddress
	}

	return nil
}

// Admitter decides whether a valid entry is registered for the chat, ie. rejecting duplicates and persisting it.
type Admitter interface {
	Admit(ctx context.Context, chatID int64, e Entry) error
}

// Releaser is implemented by admitters that keep state for an admitted entry. Release undoes the admission when
// the entry could not be published, so that a later submission of the same line is admitted again.
type Releaser interface {
	Release(ctx context.Context, chatID int64, e Entry) error
}

// AdmitFunc adapts a function to Admitter.
type AdmitFunc func(ctx context.Context, chatID int64, e Entry) error

// Admit implements Admitter.
func (f AdmitFunc) Admit(ctx context.Context, chatID int64, e Entry) error { return f(ctx, chatID, e) }

// Publisher publishes track commands on the command channel.
type Publisher struct {
	mb      msg.Broker
	channel string
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New returns a publisher on channel. A nil m disables metrics.
func New(mb msg.Broker, channel string, m *metrics.Metrics, log zerolog.Logger) *Publisher {
	if m == nil {
		m = metrics.New(nil, "")
	}

	return &Publisher{mb: mb, channel: channel, metrics: m, log: log}
}

// Track asks the watcher to track address for chatID.
func (p *Publisher) Track(ctx context.Context, chatID int64, address string) error {
	body, err := types.TrackCommand{Action: types.ADD, Address: address, ChatID: chatID}.Encode()
	if err != nil {
		return err
	}

	if err = p.mb.Publish(ctx, p.channel, body); err != nil {
		return fmt.Errorf("track: publishing %s: %w", address, err)
	}

	p.log.Debug().Str("address", address).Int64("chat_id", chatID).Msg("track command published")

	return nil
}

// Submit handles a multi-line submission: every valid line that admit accepts (admit may be nil) is published.
// Failures are recorded on the entries and never prevent the remaining lines.
func (p *Publisher) Submit(ctx context.Context, chatID int64, text string, admit Admitter) []Entry {
	entries := Parse(text)

	for i := range entries {
		e := &entries[i]

		if e.Err == nil && admit != nil {
			e.Err = admit.Admit(ctx, chatID, *e)
		}

		if e.Err == nil {
			if e.Err = p.Track(ctx, chatID, e.Address); e.Err != nil {
				p.release(ctx, chatID, *e, admit)
			}
		}

		if e.Err != nil {
			p.metrics.Commands.WithLabelValues(metrics.Rejected).Inc()
			p.log.Info().Err(e.Err).Str("line", e.Line).Int64("chat_id", chatID).Msg("address rejected")

			continue
		}

		p.metrics.Commands.WithLabelValues(metrics.Published).Inc()
	}

	return entries
}

func (p *Publisher) release(ctx context.Context, chatID int64, e Entry, admit Admitter) {
	r, ok := admit.(Releaser)
	if !ok {
		return
	}

	if err := r.Release(ctx, chatID, e); err != nil {
		p.log.Error().Err(err).Str("address", e.Address).Int64("chat_id", chatID).Msg("error releasing address")
	}
}
