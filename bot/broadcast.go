package bot

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tarancss/soltracker/lib/metrics"
)

// Broadcaster sends the same message to many chats within the Bot API rate limits.
type Broadcaster struct {
	tg      Messenger
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewBroadcaster returns a broadcaster sending at most perSecond messages per second.
func NewBroadcaster(tg Messenger, perSecond float64, m *metrics.Metrics, log zerolog.Logger) *Broadcaster {
	if perSecond <= 0 {
		perSecond = 20
	}

	return &Broadcaster{tg: tg, limiter: rate.NewLimiter(rate.Limit(perSecond), 1), metrics: m, log: log}
}

// Broadcast sends text, or photo with text as caption when photo is set, to every chat and returns how many
// deliveries succeeded. Cancellation stops the broadcast.
func (b *Broadcaster) Broadcast(ctx context.Context, chatIDs []int64, text, photo string, silent bool) int {
	var done int

	for _, id := range chatIDs {
		if err := b.limiter.Wait(ctx); err != nil {
			break
		}

		var err error
		if photo != "" {
			_, err = b.tg.SendPhoto(ctx, id, photo, text, nil, silent)
		} else {
			_, err = b.tg.Send(ctx, id, text, nil)
		}

		if err != nil {
			b.metrics.Broadcasts.WithLabelValues(metrics.Failed).Inc()
			b.log.Warn().Err(err).Int64("chat_id", id).Msg("broadcast message not delivered")

			continue
		}

		b.metrics.Broadcasts.WithLabelValues(metrics.Sent).Inc()
		done++
	}

	b.log.Info().Int("delivered", done).Int("total", len(chatIDs)).Msg("broadcast finished")

	return done
}
