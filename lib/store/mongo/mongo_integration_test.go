// +build integration

package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/soltracker/lib/msg/types"
)

const uri = "mongodb://localhost:27017"

// TestArchive requires a MongoDB server at localhost:27017.
func TestArchive(t *testing.T) {
	ctx := context.Background()

	m, err := New(uri)
	require.NoError(t, err)
	defer m.CloseMongo()

	before, err := m.Count(ctx)
	require.NoError(t, err)

	require.NoError(t, m.SaveEvent(ctx, types.TransactionEvent{Address: "ArchiveTest", ChatIDs: []int64{1}}))

	after, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
}
