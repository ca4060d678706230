package bot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tarancss/soltracker/lib/msg"
	"github.com/tarancss/soltracker/lib/store"
)

// outgoing is a call made on fakeMessenger.
type outgoing struct {
	method string
	chatID int64
	msgID  int // sent, edited or deleted message
	text   string
	photo  string
	markup interface{}
}

type fakeMessenger struct {
	mu      sync.Mutex
	next    int
	calls   []outgoing
	webhook string
	closed  bool
	fail    map[int64]bool // chats whose deliveries fail
}

func (m *fakeMessenger) record(o outgoing) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail[o.chatID] {
		return 0, errors.New("forbidden: bot was blocked by the user")
	}

	if o.msgID == 0 {
		m.next++
		o.msgID = 100 + m.next
	}

	m.calls = append(m.calls, o)

	return o.msgID, nil
}

func (m *fakeMessenger) Notify(_ context.Context, chatID int64, text string) error {
	_, err := m.record(outgoing{method: "notify", chatID: chatID, text: text})

	return err
}

func (m *fakeMessenger) Send(_ context.Context, chatID int64, text string, markup interface{}) (int, error) {
	return m.record(outgoing{method: "send", chatID: chatID, text: text, markup: markup})
}

func (m *fakeMessenger) SendPhoto(_ context.Context, chatID int64, fileID, caption string, markup interface{},
	_ bool) (int, error) {
	return m.record(outgoing{method: "photo", chatID: chatID, text: caption, photo: fileID, markup: markup})
}

func (m *fakeMessenger) Edit(_ context.Context, chatID int64, msgID int, text string,
	markup *tgbotapi.InlineKeyboardMarkup) error {
	_, err := m.record(outgoing{method: "edit", chatID: chatID, msgID: msgID, text: text, markup: markup})

	return err
}

func (m *fakeMessenger) Delete(_ context.Context, chatID int64, msgID int) error {
	_, err := m.record(outgoing{method: "delete", chatID: chatID, msgID: msgID})

	return err
}

func (m *fakeMessenger) Answer(_ context.Context, callbackID, text string) error {
	_, err := m.record(outgoing{method: "answer", text: text, photo: callbackID})

	return err
}

func (m *fakeMessenger) SetWebhook(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.webhook = url

	return nil
}

func (m *fakeMessenger) DeleteWebhook(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.webhook = ""

	return nil
}

func (m *fakeMessenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	return nil
}

// sent returns the calls of the given method, all of them when method is empty.
func (m *fakeMessenger) sent(method string) []outgoing {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []outgoing

	for _, c := range m.calls {
		if method == "" || c.method == method {
			out = append(out, c)
		}
	}

	return out
}

func (m *fakeMessenger) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = nil
}

type fakeSub struct {
	ch     chan []byte
	closed chan struct{}
	once   sync.Once
}

func (s *fakeSub) Poll(ctx context.Context, wait time.Duration) (*msg.Message, error) {
	t := time.NewTimer(wait)
	defer t.Stop()

	select {
	case b := <-s.ch:
		return &msg.Message{Payload: b}, nil
	case <-s.closed:
		return nil, msg.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
		return nil, nil
	}
}

func (s *fakeSub) Close() error {
	s.once.Do(func() { close(s.closed) })

	return nil
}

type publication struct {
	channel string
	body    string
}

type fakeBroker struct {
	mu        sync.Mutex
	published []publication
	sub       *fakeSub
	closed    bool
	fail      int // publishes failing from now on
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{sub: &fakeSub{ch: make(chan []byte, 10), closed: make(chan struct{})}}
}

func (b *fakeBroker) Setup(context.Context) error { return nil }

func (b *fakeBroker) Publish(_ context.Context, channel string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fail > 0 {
		b.fail--

		return errors.New("broker unavailable")
	}

	b.published = append(b.published, publication{channel, string(body)})

	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string) (msg.Subscription, error) { return b.sub, nil }

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true

	return nil
}

func (b *fakeBroker) bodies() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, len(b.published))
	for i, p := range b.published {
		out[i] = p.body
	}

	return out
}

// memRepo is an in-memory store.Repo. col returns the value of a column of a row.
type memRepo[T any] struct {
	mu   sync.Mutex
	rows map[int64]T
	next int64
	id   func(*T) *int64
	col  func(*T, string) (interface{}, bool)
	set  func(*T, string, interface{})
}

func (r *memRepo[T]) Create(_ context.Context, v *T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.id(v)
	if *id == 0 {
		r.next++
		*id = r.next
	}

	if _, ok := r.rows[*id]; ok {
		return fmt.Errorf("duplicate key %d", *id)
	}

	r.rows[*id] = *v

	return nil
}

func (r *memRepo[T]) Get(_ context.Context, id int64) (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	return &v, nil
}

func (r *memRepo[T]) List(_ context.Context, f store.Filter) ([]T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int64, 0, len(r.rows))
	for id := range r.rows {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	var out []T

	for _, id := range ids {
		v := r.rows[id]

		ok, err := r.match(&v, f)
		if err != nil {
			return nil, err
		}

		if ok {
			out = append(out, v)
		}
	}

	return out, nil
}

func (r *memRepo[T]) match(v *T, f store.Filter) (bool, error) {
	for k, want := range f {
		got, ok := r.col(v, k)
		if !ok {
			return false, store.ErrBadColumn
		}

		if got != want {
			return false, nil
		}
	}

	return true, nil
}

func (r *memRepo[T]) Update(_ context.Context, id int64, f store.Fields) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.rows[id]
	if !ok {
		return store.ErrNotFound
	}

	for k, val := range f {
		r.set(&v, k, val)
	}

	r.rows[id] = v

	return nil
}

func (r *memRepo[T]) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[id]; !ok {
		return store.ErrNotFound
	}

	delete(r.rows, id)

	return nil
}

func (r *memRepo[T]) Count(ctx context.Context, f store.Filter) (int, error) {
	l, err := r.List(ctx, f)

	return len(l), err
}

// memUsers loads the addresses of the user on Get, newest first.
type memUsers struct {
	*memRepo[store.User]
	addresses *memRepo[store.Address]
}

func (u *memUsers) Get(ctx context.Context, id int64) (*store.User, error) {
	usr, err := u.memRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if usr.Addresses, err = u.addresses.List(ctx, store.Filter{"user_id": id}); err != nil {
		return nil, err
	}

	return usr, nil
}

func newMemStore() (*store.Store, *memUsers, *memRepo[store.Address]) {
	addresses := &memRepo[store.Address]{
		rows: map[int64]store.Address{},
		id:   func(a *store.Address) *int64 { return &a.ID },
		col: func(a *store.Address, c string) (interface{}, bool) {
			switch c {
			case "user_id":
				return a.UserID, true
			case "sol_address":
				return a.SolAddress, true
			case "active":
				return a.Active, true
			}

			return nil, false
		},
		set: func(a *store.Address, c string, v interface{}) {
			if c == "active" {
				a.Active = v.(bool)
			}
		},
	}
	users := &memUsers{
		memRepo: &memRepo[store.User]{
			rows: map[int64]store.User{},
			id:   func(u *store.User) *int64 { return &u.ID },
			col: func(u *store.User, c string) (interface{}, bool) {
				if c == "id" {
					return u.ID, true
				}

				return nil, false
			},
			set: func(u *store.User, c string, v interface{}) {
				if c == "username" {
					u.Username = v.(sql.NullString)
				}
			},
		},
		addresses: addresses,
	}

	return &store.Store{Users: users, Addresses: addresses}, users, addresses
}

func message(from int64, id int, text string) Update {
	return Update{Kind: KindMessage, Message: &Message{
		ID: id, ChatID: from, From: Sender{ID: from, Username: fmt.Sprintf("user%d", from)}, Text: text,
	}}
}

func callback(from int64, msgID int, data string) Update {
	return Update{Kind: KindCallback, Callback: &Callback{
		ID: "cb", From: Sender{ID: from, Username: fmt.Sprintf("user%d", from)}, ChatID: from, MessageID: msgID,
		Data: data,
	}}
}
