package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tarancss/soltracker/lib/store"
)

const confirmQuestion = "\n\n<b>Is everything correct? Send it?</b>"

func (h *handlers) adminStart(ctx context.Context, r *Request) error {
	if r.Update.Kind == KindMessage {
		_, err := h.tg.Send(ctx, r.Key.ChatID, "Admin menu", adminMenu())

		return err
	}

	cb := r.Update.Callback
	if !cb.HasMessage() {
		return h.tg.Answer(ctx, cb.ID, "")
	}

	if err := h.state.Clear(ctx, r.Key); err != nil {
		return err
	}

	return h.tg.Edit(ctx, cb.ChatID, cb.MessageID, "Admin menu", adminMenu())
}

func (h *handlers) stats(ctx context.Context, r *Request) error {
	cb := r.Update.Callback

	users, err := h.store.Users.Count(ctx, nil)
	if err != nil {
		return err
	}

	addresses, err := h.store.Addresses.Count(ctx, store.Filter{"active": true})
	if err != nil {
		return err
	}

	text := fmt.Sprintf("<b>📊Statistics</b>\nUsers: <code>%d</code>\nTracked addresses: <code>%d</code>", users, addresses)

	if h.archive != nil {
		if events, err := h.archive.Count(ctx); err == nil {
			text += fmt.Sprintf("\nArchived events: <code>%d</code>", events)
		} else {
			h.log.Warn().Err(err).Msg("error counting archived events")
		}
	}

	if !cb.HasMessage() {
		_, err = h.tg.Send(ctx, cb.ChatID, text, backAdmin())

		return err
	}

	return h.tg.Edit(ctx, cb.ChatID, cb.MessageID, text, backAdmin())
}

func (h *handlers) broadcastMain(ctx context.Context, r *Request) error {
	cb := r.Update.Callback
	if !cb.HasMessage() {
		return h.tg.Answer(ctx, cb.ID, "An error occurred!")
	}

	if err := h.tg.Edit(ctx, cb.ChatID, cb.MessageID,
		"<b>Send a photo with a caption for the broadcast\n└─❕Plain text works too</b>", backAdmin()); err != nil {
		return err
	}

	if err := h.state.SetState(ctx, r.Key, StateBroadcastContent); err != nil {
		return err
	}

	return h.state.UpdateData(ctx, r.Key, map[string]string{"msg_to_edit": strconv.Itoa(cb.MessageID)})
}

func (h *handlers) receiveBroadcast(ctx context.Context, r *Request) error {
	m := r.Update.Message

	d, err := h.state.Data(ctx, r.Key)
	if err != nil {
		return err
	}

	msgToEdit, _ := strconv.Atoi(d["msg_to_edit"])

	if err = h.tg.Delete(ctx, r.Key.ChatID, m.ID); err != nil {
		h.log.Debug().Err(err).Msg("error deleting message")
	}

	switch {
	case m.PhotoID != "":
		if err = h.state.UpdateData(ctx, r.Key, map[string]string{"photo": m.PhotoID, "text": m.Caption}); err != nil {
			return err
		}

		if msgToEdit != 0 {
			if err = h.tg.Delete(ctx, r.Key.ChatID, msgToEdit); err != nil {
				h.log.Debug().Err(err).Msg("error deleting message")
			}
		}

		if _, err = h.tg.SendPhoto(ctx, r.Key.ChatID, m.PhotoID, m.Caption+confirmQuestion, chooseMenu(),
			false); err != nil {
			return err
		}
	case strings.TrimSpace(m.Text) == "":
		return h.tg.Edit(ctx, r.Key.ChatID, msgToEdit,
			"Neither text nor photo was found in your message, try again.", backAdmin())
	default:
		if err = h.state.UpdateData(ctx, r.Key, map[string]string{"text": m.Text}); err != nil {
			return err
		}

		if err = h.tg.Edit(ctx, r.Key.ChatID, msgToEdit, m.Text+confirmQuestion, chooseMenu()); err != nil {
			return err
		}
	}

	return h.state.SetState(ctx, r.Key, StateBroadcastConfirm)
}

func (h *handlers) agreeAndStart(ctx context.Context, r *Request) error {
	cb := r.Update.Callback
	if !cb.HasMessage() {
		return h.tg.Answer(ctx, cb.ID, "An error occurred!")
	}

	d, err := h.state.Data(ctx, r.Key)
	if err != nil {
		return err
	}

	silent, _ := strconv.ParseBool(d["silent_mode"])

	if err = h.state.Clear(ctx, r.Key); err != nil {
		return err
	}

	if err = h.tg.Delete(ctx, cb.ChatID, cb.MessageID); err != nil {
		h.log.Debug().Err(err).Msg("error deleting message")
	}

	users, err := h.store.Users.List(ctx, nil)
	if err != nil {
		return err
	}

	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}

	started, err := h.tg.Send(ctx, cb.ChatID, "<b>Broadcast started</b>", nil)
	if err != nil {
		return err
	}

	done := h.broadcaster.Broadcast(ctx, ids, d["text"], d["photo"], silent)

	if err = h.tg.Delete(ctx, cb.ChatID, started); err != nil {
		h.log.Debug().Err(err).Msg("error deleting message")
	}

	_, err = h.tg.Send(ctx, cb.ChatID,
		fmt.Sprintf("<b>Broadcast finished</b>\nDelivered to: <code>%d</code>\n", done), backAdmin())

	return err
}
