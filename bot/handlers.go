package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tarancss/soltracker/lib/store"
	"github.com/tarancss/soltracker/lib/util"
	"github.com/tarancss/soltracker/track"
)

// MaxText is the longest text Telegram accepts in one message.
const MaxText = 4096

// errDuplicate is returned when a user submits an address already tracked.
var errDuplicate = errors.New("address already tracked")

// Counter counts archived events.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// handlers implements the chat flows.
type handlers struct {
	tg          Messenger
	store       *store.Store
	state       StateStore
	publisher   *track.Publisher
	broadcaster *Broadcaster
	archive     Counter
	log         zerolog.Logger
}

// routes registers the flows on rt. Admin routes come first.
func (h *handlers) routes(rt *Router) {
	rt.AdminMessage(command(cmdAdmin), h.adminStart)
	rt.AdminMessage(inState(StateBroadcastContent), h.receiveBroadcast)
	rt.AdminCallback(data(CbBackAdmin), h.adminStart)
	rt.AdminCallback(data(CbBroadcast), h.broadcastMain)
	rt.AdminCallback(data(CbStats), h.stats)
	rt.AdminCallback(and(inState(StateBroadcastConfirm), data(CbConfirm)), h.agreeAndStart)

	rt.Callback(data(CbCancel), h.cancel)
	rt.Message(command(cmdStart), h.start)
	rt.Message(text(BtnInfo), h.info)
	rt.Message(text(BtnNewAddress), h.newAddress)
	rt.Message(inState(StateAddAddress), h.receiveAddresses)
	rt.Message(text(BtnProfile), h.profile)
	rt.Callback(data(CbProfile), h.profile)
}

func (h *handlers) cancel(ctx context.Context, r *Request) error {
	cb := r.Update.Callback

	if err := h.state.Clear(ctx, r.Key); err != nil {
		return err
	}

	if cb.HasMessage() {
		if err := h.tg.Delete(ctx, cb.ChatID, cb.MessageID); err != nil {
			h.log.Debug().Err(err).Msg("error deleting message")
		}
	}

	return h.tg.Answer(ctx, cb.ID, "Canceled")
}

func (h *handlers) start(ctx context.Context, r *Request) error {
	_, err := h.tg.Send(ctx, r.Key.ChatID, "Welcome to the Solana Wallet Tracker Bot!", mainMenu())

	return err
}

func (h *handlers) info(ctx context.Context, r *Request) error {
	_, err := h.tg.Send(ctx, r.Key.ChatID, "Contact support⤵️", supportMenu())

	return err
}

func (h *handlers) newAddress(ctx context.Context, r *Request) error {
	id, err := h.tg.Send(ctx, r.Key.ChatID,
		"Send me new addresses, one per line:\n<code>address name</code>", cancelMenu(false))
	if err != nil {
		return err
	}

	if err = h.state.SetState(ctx, r.Key, StateAddAddress); err != nil {
		return err
	}

	return h.state.UpdateData(ctx, r.Key, map[string]string{"edit_msg_id": strconv.Itoa(id)})
}

func (h *handlers) receiveAddresses(ctx context.Context, r *Request) error {
	m := r.Update.Message
	if strings.TrimSpace(m.Text) == "" {
		return nil
	}

	var admit track.Admitter
	if r.User != nil {
		admit = h.admitter(r.User.ID)
	}

	entries := h.publisher.Submit(ctx, r.Key.ChatID, m.Text, admit)

	var added int

	for _, e := range entries {
		if e.Err == nil {
			added++

			continue
		}

		if _, err := h.tg.Send(ctx, r.Key.ChatID,
			fmt.Sprintf("❗️%s\n└─%s", html.EscapeString(e.Address), reason(e.Err)), nil); err != nil {
			return err
		}
	}

	if err := h.tg.Delete(ctx, r.Key.ChatID, m.ID); err != nil {
		h.log.Debug().Err(err).Msg("error deleting message")
	}

	d, err := h.state.Data(ctx, r.Key)
	if err != nil {
		return err
	}

	result := fmt.Sprintf("Successfully added: %d of %d", added, len(entries))

	if id, err := strconv.Atoi(d["edit_msg_id"]); err == nil {
		return h.tg.Edit(ctx, r.Key.ChatID, id, result, cancelMenu(true))
	}

	_, err = h.tg.Send(ctx, r.Key.ChatID, result, cancelMenu(true))

	return err
}

// addressAdmitter rejects addresses the user already tracks and stores the new ones. An address whose track command
// could not be published is removed again.
type addressAdmitter struct {
	repo   store.Repo[store.Address]
	userID int64
}

func (h *handlers) admitter(userID int64) track.Admitter {
	return &addressAdmitter{repo: h.store.Addresses, userID: userID}
}

// Admit implements track.Admitter.
func (a *addressAdmitter) Admit(ctx context.Context, _ int64, e track.Entry) error {
	n, err := a.repo.Count(ctx, a.filter(e))
	if err != nil {
		return err
	}

	if n > 0 {
		return errDuplicate
	}

	return a.repo.Create(ctx, &store.Address{
		UserID: a.userID, SolAddress: e.Address, Name: e.Name, Active: true,
	})
}

// Release implements track.Releaser.
func (a *addressAdmitter) Release(ctx context.Context, _ int64, e track.Entry) error {
	rows, err := a.repo.List(ctx, a.filter(e))
	if err != nil {
		return err
	}

	for _, r := range rows {
		if err = a.repo.Delete(ctx, r.ID); err != nil {
			return err
		}
	}

	return nil
}

func (a *addressAdmitter) filter(e track.Entry) store.Filter {
	return store.Filter{"user_id": a.userID, "sol_address": e.Address}
}

// reason returns the text shown to the user for a rejected address.
func reason(err error) string {
	switch {
	case errors.Is(err, track.ErrBadAddress):
		return "Wrong address format"
	case errors.Is(err, errDuplicate):
		return "Address already tracked"
	}

	return "Could not add the address, try again later"
}

func (h *handlers) profile(ctx context.Context, r *Request) error {
	var b strings.Builder

	b.WriteString("<b>👤Profile</b>\n")
	fmt.Fprintf(&b, "ID: <code>%d</code>\n", r.Key.UserID)

	if r.User != nil {
		fmt.Fprintf(&b, "Tracked addresses: %d\n", len(r.User.Addresses))

		for i, a := range r.User.Addresses {
			fmt.Fprintf(&b, "\n%d. <code>%s</code>", i+1, html.EscapeString(a.SolAddress))

			if a.Name != "" {
				fmt.Fprintf(&b, " %s", html.EscapeString(a.Name))
			}
		}
	}

	chunks := util.Chunks(b.String(), MaxText)

	if cb := r.Update.Callback; cb != nil {
		if err := h.tg.Answer(ctx, cb.ID, ""); err != nil {
			h.log.Debug().Err(err).Msg("error answering callback")
		}

		if cb.HasMessage() && len(chunks) == 1 {
			return h.tg.Edit(ctx, cb.ChatID, cb.MessageID, chunks[0], profileMenu())
		}
	}

	for i, c := range chunks {
		var markup interface{}
		if i == len(chunks)-1 {
			markup = profileMenu()
		}

		if _, err := h.tg.Send(ctx, r.Key.ChatID, c, markup); err != nil {
			return err
		}
	}

	return nil
}
