package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const timeout = 15

// handler returns the API of the service: the Telegram webhook, the health probes and the metrics.
func (b *Bot) handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(b.webhookPath(), b.webhookHandler).Methods("POST") // updates pushed by Telegram
	r.HandleFunc("/health/live", b.health.LivenessHandler).Methods("GET")
	r.HandleFunc("/health/ready", b.health.ReadinessHandler).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{})).Methods("GET")

	return r
}

func (b *Bot) webhookPath() string {
	if b.conf.WebhookPath == "" {
		return "/webhook"
	}

	return b.conf.WebhookPath
}

// webhookHandler acknowledges the update right away and handles it in the background, Telegram retries updates
// not acknowledged in time.
func (b *Bot) webhookHandler(rw http.ResponseWriter, r *http.Request) {
	var u tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		b.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("bad webhook request")
		http.Error(rw, "bad request", http.StatusBadRequest)

		return
	}

	update := FromAPI(u)
	ctx := b.ctx
	b.group.Go(func() error {
		b.router.Dispatch(ctx, update)

		return nil
	})

	rw.WriteHeader(http.StatusOK)
}

// startServer listens on the configured endpoint and port and serves the API until Stop.
func (b *Bot) startServer(_ context.Context) error {
	l, err := net.Listen("tcp", net.JoinHostPort(b.conf.Endpoint, b.conf.Port))
	if err != nil {
		return err
	}

	b.addr = l.Addr()
	b.srv = &http.Server{
		Handler:      b.handler(),
		WriteTimeout: timeout * time.Second,
		ReadTimeout:  timeout * time.Second,
	}

	srv := b.srv
	b.group.Go(func() error {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	b.log.Info().Str("addr", l.Addr().String()).Msg("listening to http requests")

	return nil
}
