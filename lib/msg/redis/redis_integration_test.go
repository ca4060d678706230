// +build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRedis tests publish and subscribe against a Redis server at localhost:6379.
func TestRedis(t *testing.T) {
	ctx := context.Background()

	r, err := New("redis://localhost:6379/1")
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Setup(ctx))

	sub, err := r.Subscribe(ctx, "test_transactions")
	require.NoError(t, err)
	defer sub.Close()

	// nothing published yet
	m, err := sub.Poll(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, m)

	require.NoError(t, r.Publish(ctx, "test_transactions", []byte(`{"address":"Addr1","chat_ids":[1]}`)))

	deadline := time.Now().Add(2 * time.Second)
	for m == nil && time.Now().Before(deadline) {
		m, err = sub.Poll(ctx, 100*time.Millisecond)
		require.NoError(t, err)
	}
	require.NotNil(t, m)
	assert.Equal(t, "test_transactions", m.Channel)
	assert.JSONEq(t, `{"address":"Addr1","chat_ids":[1]}`, string(m.Payload))
}
