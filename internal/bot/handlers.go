package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/Fi44er/cashier_bot/internal/service"
)

const recentTransactions = 5

func (b *Bot) handleStart(_ context.Context, r *request, _ string) {
	b.sendMenu(r, msgWelcome)
}

func (b *Bot) handleBalance(ctx context.Context, r *request, _ string) {
	text := balanceText(r.account)

	txs, err := b.service.RecentTransactions(ctx, r.account.ID, recentTransactions)
	if err != nil {
		b.logger.Errorf("Failed to list transactions of account #%d: %v", r.account.ID, err)
	} else if len(txs) > 0 {
		var sb strings.Builder
		sb.WriteString("\n\n*Последние операции:*\n")
		for _, tx := range txs {
			sb.WriteString(fmt.Sprintf("%s %s: %s, %s\n",
				directionText(tx.Direction), service.FormatReference(tx), money(tx.Amount), statusText(tx.Status)))
		}
		text += sb.String()
	}

	if r.account.HasPlatformAccount() {
		b.reply(r, text, balanceKeyboard())
		return
	}
	b.sendMenu(r, text)
}

func (b *Bot) onPlatformBalance(ctx context.Context, r *request, _ string) {
	balance, err := b.service.PlatformBalance(ctx, r.account)
	if err != nil {
		text, known := userMessage(err)
		if !known {
			b.logger.Errorf("Failed to fetch platform balance of account #%d: %v", r.account.ID, err)
		}
		b.sendMenu(r, text)
		return
	}
	b.reply(r, fmt.Sprintf("🎰 Баланс на платформе: %s %s", balance.Amount.StringFixed(2), escape(balance.Currency)), nil)
}

func (b *Bot) handleReferrals(ctx context.Context, r *request, _ string) {
	stats, err := b.service.ReferralStats(ctx, r.account.ID)
	if err != nil {
		b.fail(ctx, r, "load referral stats", err)
		return
	}

	percents := b.service.Settings().ReferralPercents
	link := fmt.Sprintf("https://t.me/%s?start=%s%d", b.username, referralStartPrefix, r.account.TelegramID)
	text := fmt.Sprintf(
		"👥 *Реферальная программа*\n\n"+
			"Приглашайте друзей и получайте %s%% / %s%% / %s%% с их пополнений на трёх уровнях.\n\n"+
			"Ваша ссылка:\n%s\n\n"+
			"Приглашено: %d\n"+
			"Начислено: %s\n"+
			"Выплачено на кошелёк: %s\n"+
			"Ожидает выплаты: %s",
		percents[0], percents[1], percents[2],
		escape(link),
		stats.Referrals,
		money(stats.Accrued),
		money(stats.Settled),
		money(r.account.ReferralBalance),
	)
	b.sendMenu(r, text)
}

func (b *Bot) startGiftCode(ctx context.Context, r *request, _ string) {
	if !b.allowed(r, service.OpRedeemGiftCode, "") {
		return
	}
	if !b.setState(ctx, r, &State{Step: stepAwaitGiftCode}) {
		return
	}
	b.reply(r, msgEnterGiftCode, cancelKeyboard())
}

func (b *Bot) handleGiftCode(ctx context.Context, r *request, _ *State, text string) {
	amount, err := b.service.RedeemGiftCode(ctx, r.account, text)
	if err != nil {
		b.fail(ctx, r, "redeem gift code", err)
		return
	}
	b.clearState(ctx, r)
	r.account.Balance = r.account.Balance.Add(amount)
	b.sendMenu(r, fmt.Sprintf("🎁 Промокод активирован! Начислено %s.\nБаланс: %s", money(amount), money(r.account.Balance)))
}
