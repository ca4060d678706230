// Package bot implements the wallet tracker bot service.
//
// The service registers Solana addresses for Telegram users, relays the transaction events published by the
// external watcher as notifications, and offers admins a broadcast console. Start brings the components up in
// dependency order: store, schema migrations, repositories, message broker and subscription, FSM state and event
// archive, the relay loop, the startup notices and webhook, and finally the HTTP server. Stop tears them down in
// reverse and can be called on a partially started service.
package bot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tarancss/soltracker/lib/config"
	"github.com/tarancss/soltracker/lib/health"
	"github.com/tarancss/soltracker/lib/logger"
	"github.com/tarancss/soltracker/lib/metrics"
	"github.com/tarancss/soltracker/lib/msg"
	"github.com/tarancss/soltracker/lib/msg/amqp"
	"github.com/tarancss/soltracker/lib/msg/kafka"
	"github.com/tarancss/soltracker/lib/msg/redis"
	"github.com/tarancss/soltracker/lib/store"
	"github.com/tarancss/soltracker/lib/store/db"
	"github.com/tarancss/soltracker/lib/store/migration"
	"github.com/tarancss/soltracker/lib/store/mongo"
	"github.com/tarancss/soltracker/lib/store/postgres"
	"github.com/tarancss/soltracker/lib/tg"
	"github.com/tarancss/soltracker/relay"
	"github.com/tarancss/soltracker/track"
)

// ErrStartup wraps every error aborting Start.
var ErrStartup = errors.New("bot: startup failed")

// Migrator brings the schema to its latest revision.
type Migrator interface {
	BootstrapOrUpdate(ctx context.Context) error
}

// Archive stores transaction events.
type Archive interface {
	relay.Archiver
	Counter
	CloseMongo() error
}

// Bot contains the data necessary to deliver the service.
type Bot struct {
	conf     config.ServiceConfig
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	health   *health.Gate

	db       *sqlx.DB
	store    *store.Store
	migrator Migrator
	mb       msg.Broker
	sub      msg.Subscription
	tg       Messenger
	state    StateStore
	archive  Archive

	router *Router
	relay  *relay.Relay
	bc     *Broadcaster
	srv    *http.Server
	addr   net.Addr

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	once   sync.Once
}

// Option configures a Bot. Injected components are owned by the Bot and closed by Stop.
type Option func(*Bot)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(b *Bot) { b.log = l } }

// WithRegistry sets the registry the metrics are registered with and served from.
func WithRegistry(r *prometheus.Registry) Option { return func(b *Bot) { b.registry = r } }

// WithStore uses s instead of opening the configured database. No migration runs unless a Migrator is given too.
func WithStore(s *store.Store) Option { return func(b *Bot) { b.store = s } }

// WithMigrator uses m to migrate the schema.
func WithMigrator(m Migrator) Option { return func(b *Bot) { b.migrator = m } }

// WithBroker uses mb instead of connecting to the configured broker.
func WithBroker(mb msg.Broker) Option { return func(b *Bot) { b.mb = mb } }

// WithMessenger uses m instead of connecting to the Bot API.
func WithMessenger(m Messenger) Option { return func(b *Bot) { b.tg = m } }

// WithState uses s as conversation state store.
func WithState(s StateStore) Option { return func(b *Bot) { b.state = s } }

// WithArchive uses a as event archive.
func WithArchive(a Archive) Option { return func(b *Bot) { b.archive = a } }

// New returns a bot for conf. Nothing is opened until Start.
func New(conf config.ServiceConfig, opts ...Option) *Bot {
	b := &Bot{conf: conf, log: zerolog.Nop(), health: health.New()}

	for _, o := range opts {
		o(b)
	}

	if b.registry == nil {
		b.registry = prometheus.NewRegistry()
	}

	b.metrics = metrics.New(b.registry, "soltracker")

	return b
}

// Start brings the service up. ctx bounds the startup only: once started, the relay and the webhook tasks run until
// Stop, which cancels them after the HTTP server stopped accepting updates. On error the components opened so far
// stay open: call Stop.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(context.WithoutCancel(ctx))
	b.group, b.ctx = errgroup.WithContext(b.ctx)

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"store", b.openStore},
		{"broker", b.openBroker},
		{"state", b.openState},
		{"telegram", b.openMessenger},
		{"relay", b.startRelay},
		{"startup", b.onStartup},
		{"http", b.startServer},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			b.log.Error().Err(err).Str("step", s.name).Msg("error starting bot")

			return fmt.Errorf("%w: %s: %v", ErrStartup, s.name, err)
		}

		b.health.Set(s.name, true)
	}

	b.health.SetReady(true)
	b.log.Info().Str("addr", b.Addr()).Msg("bot started")

	return nil
}

func (b *Bot) openStore(ctx context.Context) error {
	if b.store == nil {
		cfg, err := db.ParseURL(b.conf.DBConn)
		if err != nil {
			return err
		}

		if b.db, err = db.Open(cfg.DSN()); err != nil {
			return err
		}

		if b.migrator == nil {
			mc := b.conf.Migrations
			b.migrator = migration.New(mc.Dir, mc.Table, store.Schema(), migration.NewCatalog(b.db),
				migration.MigrateOpener(mc.Dir, cfg.MigrationURL(mc.Table)),
				migration.WithLogger(logger.Component(b.log, "migration")),
				migration.WithWait(mc.WaitTimeout.Std(), mc.WaitInterval.Std()),
				migration.WithDSN(cfg.DSN()),
				migration.WithCounter(b.metrics.Migrations),
			)
		}
	}

	if b.migrator != nil {
		if err := b.migrator.BootstrapOrUpdate(ctx); err != nil {
			return err
		}
	}

	if b.store == nil {
		b.store = postgres.New(b.db)
	}

	return nil
}

func newBroker(conf config.ServiceConfig) (msg.Broker, error) {
	switch conf.MbType {
	case msg.REDIS:
		return redis.New(conf.MbConn)
	case msg.AMQP:
		return amqp.New(conf.MbConn, conf.TxChannel, conf.CmdChannel)
	case msg.KAFKA:
		return kafka.New(conf.MbConn)
	}

	return nil, fmt.Errorf("unknown message broker type %q", conf.MbType)
}

func (b *Bot) openBroker(ctx context.Context) error {
	if b.mb == nil {
		mb, err := newBroker(b.conf)
		if err != nil {
			return err
		}

		b.mb = mb
	}

	if err := b.mb.Setup(ctx); err != nil {
		return err
	}

	sub, err := b.mb.Subscribe(ctx, b.conf.TxChannel)
	if err != nil {
		return err
	}

	b.sub = sub
	b.log.Info().Str("mbtype", b.conf.MbType).Str("channel", b.conf.TxChannel).Msg("subscribed")

	return nil
}

func (b *Bot) openState(ctx context.Context) error {
	if b.state == nil {
		if b.conf.StateConn == "" {
			b.log.Warn().Msg("no state storage configured, conversations are kept in memory")
			b.state = NewMemoryState()
		} else {
			s, err := NewRedisState(ctx, b.conf.StateConn)
			if err != nil {
				return err
			}

			b.state = s
		}
	}

	if b.archive == nil && b.conf.ArchiveConn != "" {
		a, err := mongo.New(b.conf.ArchiveConn)
		if err != nil {
			return err
		}

		b.archive = a
	}

	return nil
}

func (b *Bot) openMessenger(_ context.Context) error {
	if b.tg != nil {
		return nil
	}

	c, err := tg.New(b.conf.Bot.Token, b.conf.Bot.APIEndpoint)
	if err != nil {
		return err
	}

	b.log.Info().Str("username", c.Username()).Msg("connected to the Bot API")
	b.tg = c

	return nil
}

func (b *Bot) startRelay(_ context.Context) error {
	opts := []relay.Option{
		relay.WithMetrics(b.metrics),
		relay.WithLogger(logger.Component(b.log, "relay")),
		relay.WithTimings(b.conf.Relay.PollWait.Std(), b.conf.Relay.Backoff.Std()),
	}
	if b.archive != nil {
		opts = append(opts, relay.WithArchive(b.archive))
	}

	b.relay = relay.New(b.sub, b.tg, opts...)
	b.bc = NewBroadcaster(b.tg, b.conf.Bot.BroadcastPS, b.metrics, logger.Component(b.log, "broadcast"))

	h := &handlers{
		tg:          b.tg,
		store:       b.store,
		state:       b.state,
		publisher:   track.New(b.mb, b.conf.CmdChannel, b.metrics, logger.Component(b.log, "track")),
		broadcaster: b.bc,
		log:         logger.Component(b.log, "handlers"),
	}
	if b.archive != nil {
		h.archive = b.archive
	}

	b.router = NewRouter(b.state, b.conf.IsAdmin, logger.Component(b.log, "router"))
	b.router.Use(Developer(b.conf.Dev), Database(b.store.Users, b.log))
	h.routes(b.router)

	ctx := b.ctx
	b.group.Go(func() error { return b.relay.Run(ctx) })

	return nil
}

func (b *Bot) onStartup(ctx context.Context) error {
	b.bc.Broadcast(ctx, b.conf.Bot.AdminIDs, startupNotice, "", false)

	if err := b.tg.DeleteWebhook(ctx); err != nil {
		b.log.Warn().Err(err).Msg("error deleting webhook")
	}

	if b.conf.Bot.WebhookURL == "" {
		b.log.Warn().Msg("no webhook url configured, updates are not pushed")

		return nil
	}

	return b.tg.SetWebhook(ctx, b.conf.Bot.WebhookURL)
}

// Addr returns the address the HTTP server listens on, empty before it started.
func (b *Bot) Addr() string {
	if b.addr == nil {
		return ""
	}

	return b.addr.String()
}

// Done is closed when the service context ends, either on Stop or because a background task failed.
func (b *Bot) Done() <-chan struct{} {
	if b.ctx == nil {
		return nil
	}

	return b.ctx.Done()
}

// Stop shuts the service down gracefully. It is safe to call it more than once and on a partially started bot.
func (b *Bot) Stop() {
	b.once.Do(b.stop)
}

func (b *Bot) stop() {
	b.health.SetReady(false)
	b.log.Info().Msg("stopping bot")

	if b.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), b.conf.ShutdownTimeout.Std())
		if err := b.srv.Shutdown(ctx); err != nil {
			b.log.Error().Err(err).Msg("error in http server shutdown")
		}
		cancel()
	}

	if b.tg != nil {
		if err := b.tg.Close(); err != nil {
			b.log.Error().Err(err).Msg("error closing telegram client")
		}
	}

	if b.db != nil {
		if err := db.Close(b.db); err != nil {
			b.log.Error().Err(err).Msg("error closing database")
		}
	}

	if b.sub != nil {
		if err := b.sub.Close(); err != nil {
			b.log.Error().Err(err).Msg("error unsubscribing")
		}
	}

	if b.cancel != nil {
		b.cancel()

		if err := b.group.Wait(); err != nil {
			b.log.Error().Err(err).Msg("background task failed")
		}
	}

	if b.mb != nil {
		if err := b.mb.Close(); err != nil {
			b.log.Error().Err(err).Msg("error closing message broker")
		}
	}

	if b.state != nil {
		if err := b.state.Close(); err != nil {
			b.log.Error().Err(err).Msg("error closing state storage")
		}
	}

	if b.archive != nil {
		if err := b.archive.CloseMongo(); err != nil {
			b.log.Error().Err(err).Msg("error closing event archive")
		}
	}

	b.log.Info().Msg("bot stopped")
}
