package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Menu buttons.
const (
	BtnNewAddress = "➕New address"
	BtnProfile    = "👤Profile"
	BtnInfo       = "❗️Info"
)

// Callback data.
const (
	CbCancel      = "cancel"
	CbProfile     = "personal_acc"
	CbBackAdmin   = "back_admin"
	CbBroadcast   = "broadcast"
	CbStats       = "stats"
	CbConfirm     = "yes"
	SupportURL    = "https://t.me/cookierowsupport"
	cmdStart      = "start"
	cmdAdmin      = "admin"
	startupNotice = "Bot started"
)

func mainMenu() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(BtnNewAddress)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(BtnProfile), tgbotapi.NewKeyboardButton(BtnInfo)),
	)
	kb.ResizeKeyboard = true

	return kb
}

func supportMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("🆘Support", SupportURL)))
}

// cancelMenu shows a single button clearing the conversation, labelled Close once the action is done.
func cancelMenu(closing bool) *tgbotapi.InlineKeyboardMarkup {
	label := "✖️Cancel"
	if closing {
		label = "✖️Close"
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(label, CbCancel)))

	return &kb
}

func profileMenu() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔄Refresh", CbProfile)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✖️Close", CbCancel)),
	)

	return &kb
}

func adminMenu() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📬Broadcast", CbBroadcast),
			tgbotapi.NewInlineKeyboardButtonData("📊Statistics", CbStats),
		),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✖️Close", CbCancel)),
	)

	return &kb
}

func backAdmin() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙Back", CbBackAdmin)))

	return &kb
}

func chooseMenu() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✔️Yes", CbConfirm)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙Back", CbBackAdmin)),
	)

	return &kb
}
