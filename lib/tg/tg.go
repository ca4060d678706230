// Package tg is the Telegram transport of the bot, a thin layer over the Bot API client.
package tg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrClosed is returned by a closed client.
var ErrClosed = errors.New("tg: client closed")

// Client sends messages through the Bot API.
type Client struct {
	api    *tgbotapi.BotAPI
	closed int32
}

// New connects to the Bot API with token, checking it with getMe. endpoint is optional and uses the tgbotapi
// format (ie. http://localhost:8081/bot%s/%s).
func New(token, endpoint string) (*Client, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{})
	if err != nil {
		return nil, fmt.Errorf("tg: connecting bot: %w", err)
	}

	return &Client{api: api}, nil
}

// Username returns the bot username.
func (c *Client) Username() string { return c.api.Self.UserName }

func (c *Client) send(ctx context.Context, m tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := c.check(ctx); err != nil {
		return tgbotapi.Message{}, err
	}

	return c.api.Send(m)
}

func (c *Client) request(ctx context.Context, m tgbotapi.Chattable) error {
	if err := c.check(ctx); err != nil {
		return err
	}

	_, err := c.api.Request(m)

	return err
}

func (c *Client) check(ctx context.Context) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClosed
	}

	return ctx.Err()
}

// Notify sends an HTML text to chatID without link previews.
func (c *Client) Notify(ctx context.Context, chatID int64, text string) error {
	_, err := c.Send(ctx, chatID, text, nil)

	return err
}

// Send sends an HTML text with an optional reply markup and returns the message id.
func (c *Client) Send(ctx context.Context, chatID int64, text string, markup interface{}) (int, error) {
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = tgbotapi.ModeHTML
	m.DisableWebPagePreview = true

	if markup != nil {
		m.ReplyMarkup = markup
	}

	sent, err := c.send(ctx, m)
	if err != nil {
		return 0, fmt.Errorf("tg: sending to %d: %w", chatID, err)
	}

	return sent.MessageID, nil
}

// SendPhoto sends a photo already uploaded to Telegram.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, markup interface{},
	silent bool) (int, error) {
	m := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	m.Caption = caption
	m.ParseMode = tgbotapi.ModeHTML
	m.DisableNotification = silent

	if markup != nil {
		m.ReplyMarkup = markup
	}

	sent, err := c.send(ctx, m)
	if err != nil {
		return 0, fmt.Errorf("tg: sending photo to %d: %w", chatID, err)
	}

	return sent.MessageID, nil
}

// Edit replaces the text and inline keyboard of a message.
func (c *Client) Edit(ctx context.Context, chatID int64, msgID int, text string,
	markup *tgbotapi.InlineKeyboardMarkup) error {
	m := tgbotapi.NewEditMessageText(chatID, msgID, text)
	m.ParseMode = tgbotapi.ModeHTML
	m.DisableWebPagePreview = true
	m.ReplyMarkup = markup

	if _, err := c.send(ctx, m); err != nil {
		return fmt.Errorf("tg: editing %d/%d: %w", chatID, msgID, err)
	}

	return nil
}

// Delete deletes a message.
func (c *Client) Delete(ctx context.Context, chatID int64, msgID int) error {
	return c.request(ctx, tgbotapi.NewDeleteMessage(chatID, msgID))
}

// Answer answers a callback query, showing text to the user when not empty.
func (c *Client) Answer(ctx context.Context, callbackID, text string) error {
	return c.request(ctx, tgbotapi.NewCallback(callbackID, text))
}

// SetWebhook registers the public url Telegram pushes updates to.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("tg: invalid webhook %q: %w", url, err)
	}

	return c.request(ctx, wh)
}

// DeleteWebhook removes the registered webhook.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.request(ctx, tgbotapi.DeleteWebhookConfig{})
}

// Close releases the idle HTTP connections. Later calls fail with ErrClosed.
func (c *Client) Close() error {
	atomic.StoreInt32(&c.closed, 1)

	if cl, ok := c.api.Client.(interface{ CloseIdleConnections() }); ok {
		cl.CloseIdleConnections()
	}

	return nil
}
