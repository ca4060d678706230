package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Kind of an inbound update.
type Kind int

// Update kinds handled by the bot. Anything else is KindUnsupported and dropped.
const (
	KindUnsupported Kind = iota
	KindMessage
	KindCallback
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindCallback:
		return "callback"
	}

	return "unsupported"
}

// Sender is the user an update comes from.
type Sender struct {
	ID       int64
	Username string
}

// Message is a text or photo message sent to the bot.
type Message struct {
	ID      int
	ChatID  int64
	From    Sender
	Text    string
	Caption string
	PhotoID string // largest size of the photo, if any
}

// Callback is an inline keyboard button press. MessageID is zero when the message is not accessible anymore.
type Callback struct {
	ID        string
	From      Sender
	ChatID    int64
	MessageID int
	Data      string
}

// HasMessage returns true if the message holding the keyboard can still be edited.
func (c *Callback) HasMessage() bool { return c.MessageID != 0 }

// Update is an inbound update. Message is set for KindMessage, Callback for KindCallback.
type Update struct {
	Kind     Kind
	Message  *Message
	Callback *Callback
}

// From returns the sender of the update.
func (u Update) From() Sender {
	switch u.Kind {
	case KindMessage:
		return u.Message.From
	case KindCallback:
		return u.Callback.From
	}

	return Sender{}
}

// ChatID returns the chat the update belongs to.
func (u Update) ChatID() int64 {
	switch u.Kind {
	case KindMessage:
		return u.Message.ChatID
	case KindCallback:
		return u.Callback.ChatID
	}

	return 0
}

// FromAPI converts a Bot API update.
func FromAPI(u tgbotapi.Update) Update {
	switch {
	case u.Message != nil && u.Message.From != nil && u.Message.Chat != nil:
		m := u.Message
		msg := &Message{
			ID:      m.MessageID,
			ChatID:  m.Chat.ID,
			From:    Sender{ID: m.From.ID, Username: m.From.UserName},
			Text:    m.Text,
			Caption: m.Caption,
		}

		if len(m.Photo) > 0 {
			msg.PhotoID = m.Photo[len(m.Photo)-1].FileID
		}

		return Update{Kind: KindMessage, Message: msg}
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		q := u.CallbackQuery
		cb := &Callback{
			ID:     q.ID,
			From:   Sender{ID: q.From.ID, Username: q.From.UserName},
			ChatID: q.From.ID,
			Data:   q.Data,
		}

		if q.Message != nil && q.Message.Chat != nil {
			cb.ChatID, cb.MessageID = q.Message.Chat.ID, q.Message.MessageID
		}

		return Update{Kind: KindCallback, Callback: cb}
	}

	return Update{Kind: KindUnsupported}
}
