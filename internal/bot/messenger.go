package bot

import (
	"github.com/Fi44er/cashier_bot/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Messenger is everything the conversation needs from the chat transport.
type Messenger interface {
	Send(chatID int64, text string, markup interface{}) (int, error)
	Edit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(callbackID, text string)
}

type TelegramMessenger struct {
	api    *tgbotapi.BotAPI
	logger *utils.Logger
}

func NewTelegramMessenger(api *tgbotapi.BotAPI, logger *utils.Logger) *TelegramMessenger {
	return &TelegramMessenger{api: api, logger: logger}
}

func (m *TelegramMessenger) Send(chatID int64, text string, markup interface{}) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := m.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (m *TelegramMessenger) Edit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	edit.ReplyMarkup = markup
	if _, err := m.api.Send(edit); err != nil {
		m.logger.Errorf("Failed to edit message %d in %d: %v", messageID, chatID, err)
		return err
	}
	return nil
}

func (m *TelegramMessenger) AnswerCallback(callbackID, text string) {
	if _, err := m.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		m.logger.Errorf("Failed to answer callback: %v", err)
	}
}
