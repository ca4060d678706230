package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/soltracker/lib/store"
)

func TestAdminMenuOnlyForAdmins(t *testing.T) {
	e := newEnv(t, false)

	e.dispatch(message(alice, 1, "/admin"))
	assert.Empty(t, e.tg.sent(""))

	e.dispatch(message(admin, 1, "/admin"))

	sent := e.tg.sent("send")
	require.Len(t, sent, 1)
	assert.Equal(t, "Admin menu", sent[0].text)
	assert.Equal(t, adminMenu(), sent[0].markup)

	// a user pressing an admin button gets nothing
	e.tg.reset()
	e.dispatch(callback(alice, 9, CbStats))
	assert.Empty(t, e.tg.sent(""))
}

func TestStats(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	require.NoError(t, e.users.Create(ctx, &store.User{ID: alice}))
	require.NoError(t, e.addresses.Create(ctx, &store.Address{UserID: alice, SolAddress: addr1, Active: true}))
	require.NoError(t, e.addresses.Create(ctx, &store.Address{UserID: alice, SolAddress: addr2}))

	e.dispatch(callback(admin, 30, CbStats))

	edited := e.tg.sent("edit")
	require.Len(t, edited, 1)
	assert.Equal(t, 30, edited[0].msgID)
	// the admin registered on this update
	assert.Equal(t, "<b>📊Statistics</b>\nUsers: <code>2</code>\nTracked addresses: <code>1</code>", edited[0].text)
}

func TestBroadcastText(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	for _, id := range []int64{2, 3} {
		require.NoError(t, e.users.Create(ctx, &store.User{ID: id}))
	}

	e.tg.fail = map[int64]bool{3: true}

	e.dispatch(callback(admin, 20, CbBroadcast))

	state, data := e.conversation(t, admin)
	assert.Equal(t, StateBroadcastContent, state)
	assert.Equal(t, "20", data["msg_to_edit"])

	e.tg.reset()
	e.dispatch(message(admin, 21, "hello all"))

	state, data = e.conversation(t, admin)
	assert.Equal(t, StateBroadcastConfirm, state)
	assert.Equal(t, "hello all", data["text"])

	edited := e.tg.sent("edit")
	require.Len(t, edited, 1)
	assert.Equal(t, 20, edited[0].msgID)
	assert.Equal(t, "hello all"+confirmQuestion, edited[0].text)
	assert.Equal(t, chooseMenu(), edited[0].markup)
	assert.Equal(t, 21, e.tg.sent("delete")[0].msgID)

	e.tg.reset()
	e.dispatch(callback(admin, 20, CbConfirm))

	state, data = e.conversation(t, admin)
	assert.Equal(t, StateNone, state)
	assert.Empty(t, data)

	var delivered []int64

	for _, s := range e.tg.sent("send") {
		if s.text == "hello all" {
			delivered = append(delivered, s.chatID)
		}
	}

	assert.ElementsMatch(t, []int64{admin, 2}, delivered)

	sent := e.tg.sent("send")
	assert.Equal(t, "<b>Broadcast finished</b>\nDelivered to: <code>2</code>\n", sent[len(sent)-1].text)
}

func TestBroadcastPhoto(t *testing.T) {
	e := newEnv(t, false)

	e.dispatch(callback(admin, 20, CbBroadcast))
	e.tg.reset()

	u := message(admin, 21, "")
	u.Message.PhotoID, u.Message.Caption = "photo-id", "look"
	e.dispatch(u)

	photos := e.tg.sent("photo")
	require.Len(t, photos, 1)
	assert.Equal(t, "photo-id", photos[0].photo)
	assert.Equal(t, "look"+confirmQuestion, photos[0].text)

	_, data := e.conversation(t, admin)
	assert.Equal(t, "photo-id", data["photo"])
	assert.Equal(t, "look", data["text"])

	e.tg.reset()
	e.dispatch(callback(admin, photos[0].msgID, CbConfirm))

	photos = e.tg.sent("photo")
	require.Len(t, photos, 1, "only the admin is registered")
	assert.Equal(t, admin, photos[0].chatID)
	assert.Equal(t, "look", photos[0].text)
}

func TestBroadcastEmptyMessage(t *testing.T) {
	e := newEnv(t, false)

	e.dispatch(callback(admin, 20, CbBroadcast))
	e.tg.reset()
	e.dispatch(message(admin, 21, "  "))

	edited := e.tg.sent("edit")
	require.Len(t, edited, 1)
	assert.Equal(t, "Neither text nor photo was found in your message, try again.", edited[0].text)

	state, _ := e.conversation(t, admin)
	assert.Equal(t, StateBroadcastContent, state)
}

func TestBackToAdminClearsState(t *testing.T) {
	e := newEnv(t, false)

	e.dispatch(callback(admin, 20, CbBroadcast))
	e.dispatch(callback(admin, 20, CbBackAdmin))

	state, _ := e.conversation(t, admin)
	assert.Equal(t, StateNone, state)

	edited := e.tg.sent("edit")
	assert.Equal(t, "Admin menu", edited[len(edited)-1].text)
}
