package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/cashier_bot/internal/service"
	"github.com/Fi44er/cashier_bot/utils"
)

func (b *Bot) startTransfer(ctx context.Context, r *request, _ string) {
	if !r.account.HasPlatformAccount() {
		b.sendMenu(r, msgNoPlatform)
		return
	}
	if !b.allowed(r, service.OpTransferToPlatform, "") {
		return
	}
	if !b.setState(ctx, r, &State{Step: stepAwaitTransferAmount}) {
		return
	}
	b.reply(r, fmt.Sprintf(
		"Введите сумму перевода на платформу.\nДоступно: %s", money(r.account.Balance),
	), cancelKeyboard())
}

func (b *Bot) handleTransferAmount(ctx context.Context, r *request, _ *State, text string) {
	amount, err := utils.ParseAmount(text)
	if err != nil {
		b.reply(r, msgInvalidAmount, cancelKeyboard())
		return
	}

	tx, err := b.service.TransferToPlatform(ctx, r.account, amount)
	if err != nil {
		b.fail(ctx, r, "transfer to platform", err)
		return
	}
	b.clearState(ctx, r)
	r.account.Balance = r.account.Balance.Sub(amount)
	b.sendMenu(r, fmt.Sprintf(
		"✅ %s переведено на платформу (%s).\nБаланс: %s",
		money(amount), service.FormatReference(tx), money(r.account.Balance),
	))
}

func (b *Bot) startPlatformWithdraw(ctx context.Context, r *request, _ string) {
	if !r.account.HasPlatformAccount() {
		b.sendMenu(r, msgNoPlatform)
		return
	}
	if !b.allowed(r, service.OpWithdrawFromPlatform, "") {
		return
	}
	if !b.setState(ctx, r, &State{Step: stepAwaitPlatformWithdrawAmount}) {
		return
	}
	b.reply(r, fmt.Sprintf(
		"Введите сумму вывода с платформы на кошелёк.\nМинимум: %s",
		money(b.service.Settings().MinWithdrawal),
	), cancelKeyboard())
}

func (b *Bot) handlePlatformWithdrawAmount(ctx context.Context, r *request, _ *State, text string) {
	amount, err := utils.ParseAmount(text)
	if err != nil {
		b.reply(r, msgInvalidAmount, cancelKeyboard())
		return
	}

	tx, err := b.service.WithdrawFromPlatform(ctx, r.account, amount)
	if errors.Is(err, service.ErrBelowMinimum) {
		b.reply(r, fmt.Sprintf(
			"Минимальная сумма вывода: %s. Введите другую сумму:", money(b.service.Settings().MinWithdrawal),
		), cancelKeyboard())
		return
	}
	if err != nil {
		b.fail(ctx, r, "withdraw from platform", err)
		return
	}
	b.clearState(ctx, r)
	r.account.Balance = r.account.Balance.Add(amount)
	b.sendMenu(r, fmt.Sprintf(
		"✅ %s выведено с платформы на кошелёк (%s).\nБаланс: %s",
		money(amount), service.FormatReference(tx), money(r.account.Balance),
	))
}
