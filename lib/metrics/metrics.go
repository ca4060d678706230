// Package metrics defines the Prometheus collectors exposed by the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	Sent      = "sent"
	Failed    = "failed"
	Decoded   = "decoded"
	Malformed = "malformed"
	Published = "published"
	Rejected  = "rejected"
)

// Metrics groups the collectors of the bot service.
type Metrics struct {
	Events        *prometheus.CounterVec // transaction events polled from the subscription
	Notifications *prometheus.CounterVec // per-recipient notification attempts
	Commands      *prometheus.CounterVec // track commands submitted by users
	PollErrors    prometheus.Counter
	Broadcasts    *prometheus.CounterVec
	Migrations    prometheus.Counter // migration scripts generated at startup
}

// New creates and registers the collectors with reg. A nil reg registers nothing, which is handy for tests.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_total",
			Help:      "Transaction events received from the subscription channel.",
		}, []string{"result"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "notifications_total",
			Help:      "Notification delivery attempts per recipient.",
		}, []string{"result"}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "track",
			Name:      "commands_total",
			Help:      "Track commands submitted by users.",
		}, []string{"result"}),
		PollErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "poll_errors_total",
			Help:      "Errors polling the subscription channel.",
		}),
		Broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "broadcast_messages_total",
			Help:      "Broadcast messages sent to users.",
		}, []string{"result"}),
		Migrations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "generated_migrations_total",
			Help:      "Migration scripts generated from model drift.",
		}),
	}
}
