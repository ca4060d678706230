package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tarancss/soltracker/lib/msg/types"
)

func TestNewEvent(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ev := NewEvent(types.TransactionEvent{Address: "Addr1", ChatIDs: []int64{111, 222}}, at)

	b, err := bson.Marshal(ev)
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(b, &doc))
	// a zero id is left to the server
	_, ok := doc["_id"]
	assert.False(t, ok)
	assert.Equal(t, "Addr1", doc["address"])
	assert.Len(t, doc["chat_ids"], 2)
}
