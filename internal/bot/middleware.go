package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// withAccount loads the sender's account, creating it on first contact.
// referrer is the telegram id from a /start ref_ link, or zero.
func (b *Bot) withAccount(ctx context.Context, chatID int64, from *tgbotapi.User, referrer int64) (*request, bool) {
	account, created, err := b.service.EnsureAccount(ctx, from.ID, from.UserName, referrer)
	if err != nil {
		b.logger.Errorf("Failed to get account of user %d: %v", from.ID, err)
		b.sendMessage(chatID, msgInternalError, nil)
		return nil, false
	}
	if created {
		b.logger.Infof("New account #%d for user %d", account.ID, from.ID)
	}
	account.IsAdmin = b.isAdmin(from.ID)

	return &request{chatID: chatID, account: account}, true
}

// parseReferral extracts the referrer from "/start ref_<telegram id>".
func parseReferral(text string) int64 {
	fields := strings.Fields(text)
	if len(fields) < 2 || !strings.HasPrefix(fields[1], referralStartPrefix) {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(fields[1], referralStartPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}
