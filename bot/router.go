package bot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/tarancss/soltracker/lib/store"
)

// Messenger is the outbound Telegram transport.
type Messenger interface {
	Notify(ctx context.Context, chatID int64, text string) error
	Send(ctx context.Context, chatID int64, text string, markup interface{}) (int, error)
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, markup interface{}, silent bool) (int, error)
	Edit(ctx context.Context, chatID int64, msgID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error
	Delete(ctx context.Context, chatID int64, msgID int) error
	Answer(ctx context.Context, callbackID, text string) error
	SetWebhook(ctx context.Context, url string) error
	DeleteWebhook(ctx context.Context) error
	Close() error
}

// Request is an update being handled, with what the middlewares learnt about it.
type Request struct {
	Update Update
	Key    Key
	Admin  bool
	State  string
	User   *store.User // nil if the user could not be loaded
}

// Handler handles a request.
type Handler func(ctx context.Context, r *Request) error

// Middleware wraps a handler.
type Middleware func(next Handler) Handler

type route struct {
	kind  Kind
	admin bool
	match func(r *Request) bool
	h     Handler
}

// Router dispatches updates to the first matching route.
type Router struct {
	routes  []route
	mw      []Middleware
	state   StateStore
	isAdmin func(id int64) bool
	log     zerolog.Logger
}

// NewRouter returns an empty router.
func NewRouter(state StateStore, isAdmin func(id int64) bool, log zerolog.Logger) *Router {
	return &Router{state: state, isAdmin: isAdmin, log: log}
}

// Use appends middlewares. The first one is the outermost.
func (rt *Router) Use(mw ...Middleware) { rt.mw = append(rt.mw, mw...) }

// Message routes messages matching fn.
func (rt *Router) Message(fn func(r *Request) bool, h Handler) {
	rt.routes = append(rt.routes, route{kind: KindMessage, match: fn, h: h})
}

// Callback routes callbacks matching fn.
func (rt *Router) Callback(fn func(r *Request) bool, h Handler) {
	rt.routes = append(rt.routes, route{kind: KindCallback, match: fn, h: h})
}

// AdminMessage routes messages from admins matching fn.
func (rt *Router) AdminMessage(fn func(r *Request) bool, h Handler) {
	rt.routes = append(rt.routes, route{kind: KindMessage, admin: true, match: fn, h: h})
}

// AdminCallback routes callbacks from admins matching fn.
func (rt *Router) AdminCallback(fn func(r *Request) bool, h Handler) {
	rt.routes = append(rt.routes, route{kind: KindCallback, admin: true, match: fn, h: h})
}

// Dispatch handles u. Errors and panics are logged.
func (rt *Router) Dispatch(ctx context.Context, u Update) {
	if u.Kind == KindUnsupported {
		return
	}

	from := u.From()
	r := &Request{Update: u, Key: Key{ChatID: u.ChatID(), UserID: from.ID}, Admin: rt.isAdmin(from.ID)}
	log := rt.log.With().Str("kind", u.Kind.String()).Int64("user_id", from.ID).Logger()

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("panic handling update")
		}
	}()

	state, err := rt.state.State(ctx, r.Key)
	if err != nil {
		log.Warn().Err(err).Msg("error reading conversation state")
	}

	r.State = state

	h := rt.route
	for i := len(rt.mw) - 1; i >= 0; i-- {
		h = rt.mw[i](h)
	}

	if err = h(ctx, r); err != nil {
		log.Error().Err(err).Str("state", r.State).Msg("error handling update")
	}
}

func (rt *Router) route(ctx context.Context, r *Request) error {
	for _, rr := range rt.routes {
		if rr.kind != r.Update.Kind || (rr.admin && !r.Admin) || !rr.match(r) {
			continue
		}

		return rr.h(ctx, r)
	}

	return nil
}

// Developer serves admins only when on.
func Developer(on bool) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, r *Request) error {
			if on && !r.Admin {
				return nil
			}

			return next(ctx, r)
		}
	}
}

// Database loads the sending user, registering it on first contact and refreshing its username. Failures are
// logged and the request proceeds without a user.
func Database(users store.Repo[store.User], log zerolog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, r *Request) error {
			u, err := getOrCreate(ctx, users, r.Update.From())
			if err != nil {
				log.Error().Err(err).Int64("user_id", r.Key.UserID).Msg("error loading user")
			}

			r.User = u

			return next(ctx, r)
		}
	}
}

func getOrCreate(ctx context.Context, users store.Repo[store.User], s Sender) (*store.User, error) {
	username := sql.NullString{String: s.Username, Valid: s.Username != ""}

	u, err := users.Get(ctx, s.ID)
	if errors.Is(err, store.ErrNotFound) {
		u = &store.User{ID: s.ID, Username: username}
		if err = users.Create(ctx, u); err != nil {
			return nil, fmt.Errorf("registering user: %w", err)
		}

		return u, nil
	}

	if err != nil {
		return nil, err
	}

	if u.Username != username {
		if err = users.Update(ctx, u.ID, store.Fields{"username": username}); err != nil {
			return u, fmt.Errorf("refreshing username: %w", err)
		}

		u.Username = username
	}

	return u, nil
}

// match helpers

func text(s string) func(r *Request) bool {
	return func(r *Request) bool { return r.Update.Message.Text == s }
}

func command(name string) func(r *Request) bool {
	return func(r *Request) bool {
		t := r.Update.Message.Text
		cmd := "/" + name

		return t == cmd || len(t) > len(cmd) && t[:len(cmd)+1] == cmd+" "
	}
}

func data(s string) func(r *Request) bool {
	return func(r *Request) bool { return r.Update.Callback.Data == s }
}

func inState(state string) func(r *Request) bool {
	return func(r *Request) bool { return r.State == state }
}

func and(fns ...func(r *Request) bool) func(r *Request) bool {
	return func(r *Request) bool {
		for _, fn := range fns {
			if !fn(r) {
				return false
			}
		}

		return true
	}
}
