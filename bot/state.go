package bot

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/go-redis/redis/v8"
)

// Conversation states.
const (
	StateNone             = ""
	StateAddAddress       = "AddNewAddress:receive_value"
	StateBroadcastContent = "BroadcastState:BS1"
	StateBroadcastConfirm = "BroadcastState:BS2"
)

// Key identifies the conversation of a user in a chat.
type Key struct {
	ChatID int64
	UserID int64
}

func (k Key) prefix() string { return fmt.Sprintf("fsm:%d:%d", k.ChatID, k.UserID) }

// StateStore keeps the conversation state and its data.
type StateStore interface {
	State(ctx context.Context, k Key) (string, error)
	SetState(ctx context.Context, k Key, state string) error
	Data(ctx context.Context, k Key) (map[string]string, error)
	UpdateData(ctx context.Context, k Key, data map[string]string) error
	Clear(ctx context.Context, k Key) error
	Close() error
}

// RedisState stores conversations in Redis under fsm:<chat>:<user>:state and fsm:<chat>:<user>:data.
type RedisState struct {
	c *goredis.Client
}

// NewRedisState connects to the Redis server at uri (ie. redis://localhost:6379/0).
func NewRedisState(ctx context.Context, uri string) (*RedisState, error) {
	opt, err := goredis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("state: invalid uri: %w", err)
	}

	c := goredis.NewClient(opt)
	if err = c.Ping(ctx).Err(); err != nil {
		_ = c.Close()

		return nil, fmt.Errorf("state: ping: %w", err)
	}

	return &RedisState{c: c}, nil
}

// State implements StateStore.
func (s *RedisState) State(ctx context.Context, k Key) (string, error) {
	v, err := s.c.Get(ctx, k.prefix()+":state").Result()
	if err == goredis.Nil {
		return StateNone, nil
	}

	return v, err
}

// SetState implements StateStore.
func (s *RedisState) SetState(ctx context.Context, k Key, state string) error {
	if state == StateNone {
		return s.c.Del(ctx, k.prefix()+":state").Err()
	}

	return s.c.Set(ctx, k.prefix()+":state", state, 0).Err()
}

// Data implements StateStore.
func (s *RedisState) Data(ctx context.Context, k Key) (map[string]string, error) {
	return s.c.HGetAll(ctx, k.prefix()+":data").Result()
}

// UpdateData implements StateStore.
func (s *RedisState) UpdateData(ctx context.Context, k Key, data map[string]string) error {
	if len(data) == 0 {
		return nil
	}

	values := make([]interface{}, 0, 2*len(data))
	for f, v := range data {
		values = append(values, f, v)
	}

	return s.c.HSet(ctx, k.prefix()+":data", values...).Err()
}

// Clear implements StateStore.
func (s *RedisState) Clear(ctx context.Context, k Key) error {
	return s.c.Del(ctx, k.prefix()+":state", k.prefix()+":data").Err()
}

// Close implements StateStore.
func (s *RedisState) Close() error { return s.c.Close() }

// MemoryState keeps conversations in memory. They are lost on restart.
type MemoryState struct {
	mu     sync.Mutex
	states map[Key]string
	data   map[Key]map[string]string
}

// NewMemoryState returns an empty in-memory store.
func NewMemoryState() *MemoryState {
	return &MemoryState{states: map[Key]string{}, data: map[Key]map[string]string{}}
}

// State implements StateStore.
func (s *MemoryState) State(_ context.Context, k Key) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.states[k], nil
}

// SetState implements StateStore.
func (s *MemoryState) SetState(_ context.Context, k Key, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state == StateNone {
		delete(s.states, k)
	} else {
		s.states[k] = state
	}

	return nil
}

// Data implements StateStore.
func (s *MemoryState) Data(_ context.Context, k Key) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.data[k]))
	for f, v := range s.data[k] {
		out[f] = v
	}

	return out, nil
}

// UpdateData implements StateStore.
func (s *MemoryState) UpdateData(_ context.Context, k Key, data map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data[k] == nil {
		s.data[k] = map[string]string{}
	}

	for f, v := range data {
		s.data[k][f] = v
	}

	return nil
}

// Clear implements StateStore.
func (s *MemoryState) Clear(_ context.Context, k Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, k)
	delete(s.data, k)

	return nil
}

// Close implements StateStore.
func (s *MemoryState) Close() error { return nil }
