package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Fi44er/cashier_bot/internal/service"
	"github.com/Fi44er/cashier_bot/utils"
	"github.com/shopspring/decimal"
)

const maxReferenceLength = 128

func (b *Bot) startDeposit(_ context.Context, r *request, _ string) {
	if !b.allowed(r, service.OpDeposit, "") {
		return
	}
	b.reply(r, msgChooseDeposit, methodsKeyboard(actionDepositMethod, b.service.Settings().DepositMethods()))
}

func (b *Bot) onDepositMethod(ctx context.Context, r *request, code string) {
	if !b.allowed(r, service.OpDeposit, code) {
		return
	}
	m, _ := b.service.Settings().Method(code)
	if !b.setState(ctx, r, &State{Step: stepAwaitDepositAmount, Method: code}) {
		return
	}
	b.reply(r, fmt.Sprintf(
		"Способ: *%s*\nВведите сумму пополнения %s:", escape(m.Title), limitsText(m.MinDeposit, m.MaxDeposit),
	), cancelKeyboard())
}

func (b *Bot) handleDepositAmount(ctx context.Context, r *request, st *State, text string) {
	amount, err := utils.ParseAmount(text)
	if err != nil {
		b.reply(r, msgInvalidAmount, cancelKeyboard())
		return
	}

	ins, err := b.service.DepositInstructionsFor(r.account, st.Method, amount)
	if errors.Is(err, service.ErrAmountOutOfRange) {
		m, _ := b.service.Settings().Method(st.Method)
		b.reply(r, fmt.Sprintf(
			"Сумма должна быть %s. Введите другую сумму:", limitsText(m.MinDeposit, m.MaxDeposit),
		), cancelKeyboard())
		return
	}
	if err != nil {
		b.fail(ctx, r, "prepare deposit", err)
		return
	}

	var sb strings.Builder
	if ins.Address != "" {
		sb.WriteString(fmt.Sprintf("Отправьте `%s` BTC на адрес:\n`%s`\n", ins.CryptoAmount.String(), ins.Address))
		sb.WriteString(fmt.Sprintf("Это %s по курсу %s.\n", money(amount), b.service.Settings().ExchangeRate.String()))
	} else {
		sb.WriteString(fmt.Sprintf("Переведите %s по реквизитам:\n", money(amount)))
		sb.WriteString(escape(ins.Details) + "\n")
	}
	sb.WriteString("\n" + msgEnterReference)

	next := &State{Step: stepAwaitDepositReference, Method: st.Method, Amount: amount}
	if !b.setState(ctx, r, next) {
		return
	}
	b.reply(r, sb.String(), cancelKeyboard())
}

func (b *Bot) handleDepositReference(ctx context.Context, r *request, st *State, text string) {
	if text == "" || utf8.RuneCountInString(text) > maxReferenceLength {
		b.reply(r, msgReferenceRules, cancelKeyboard())
		return
	}

	tx, err := b.service.CreateDeposit(ctx, r.account, st.Method, st.Amount, text)
	if err != nil {
		b.fail(ctx, r, "create deposit", err)
		return
	}
	b.clearState(ctx, r)

	tx.Account = r.account
	b.notifyAdmins("📥 Новая заявка\n\n"+transactionText(tx), reviewKeyboard(tx.ID))
	b.sendMenu(r, fmt.Sprintf(
		"✅ Заявка %s на пополнение %s создана. Баланс пополнится после проверки.",
		service.FormatReference(tx), money(tx.Amount),
	))
}

func (b *Bot) startWithdraw(_ context.Context, r *request, _ string) {
	if !b.allowed(r, service.OpWithdraw, "") {
		return
	}
	b.reply(r, msgChooseWithdraw, methodsKeyboard(actionWithdrawMethod, b.service.Settings().WithdrawMethods()))
}

func (b *Bot) onWithdrawMethod(ctx context.Context, r *request, code string) {
	if !b.allowed(r, service.OpWithdraw, code) {
		return
	}
	m, _ := b.service.Settings().Method(code)
	if !b.setState(ctx, r, &State{Step: stepAwaitWithdrawAmount, Method: code}) {
		return
	}
	b.reply(r, fmt.Sprintf(
		"Способ: *%s*\nДоступно: %s\nВведите сумму вывода %s:",
		escape(m.Title), money(r.account.Balance), limitsText(b.withdrawLimits(m.MinWithdraw), m.MaxWithdraw),
	), cancelKeyboard())
}

// withdrawLimits raises a method minimum to the tenant floor.
func (b *Bot) withdrawLimits(methodMin decimal.Decimal) decimal.Decimal {
	floor := b.service.Settings().MinWithdrawal
	if floor.GreaterThan(methodMin) {
		return floor
	}
	return methodMin
}

func (b *Bot) handleWithdrawAmount(ctx context.Context, r *request, st *State, text string) {
	amount, err := utils.ParseAmount(text)
	if err != nil {
		b.reply(r, msgInvalidAmount, cancelKeyboard())
		return
	}

	m, err := b.service.CheckWithdrawAmount(st.Method, amount)
	if errors.Is(err, service.ErrAmountOutOfRange) || errors.Is(err, service.ErrBelowMinimum) {
		b.reply(r, fmt.Sprintf(
			"Сумма должна быть %s. Введите другую сумму:", limitsText(b.withdrawLimits(m.MinWithdraw), m.MaxWithdraw),
		), cancelKeyboard())
		return
	}
	if err != nil {
		b.fail(ctx, r, "check withdrawal", err)
		return
	}
	if r.account.Balance.LessThan(amount) {
		b.clearState(ctx, r)
		b.sendMenu(r, msgInsufficient)
		return
	}

	next := &State{Step: stepAwaitWithdrawDestination, Method: st.Method, Amount: amount}
	if !b.setState(ctx, r, next) {
		return
	}
	prompt := "Отправьте реквизиты для получения (номер карты или телефона):"
	if m.Crypto {
		prompt = "Отправьте BTC-адрес для получения:"
	}
	b.reply(r, prompt, cancelKeyboard())
}

func (b *Bot) handleWithdrawDestination(ctx context.Context, r *request, st *State, text string) {
	if err := b.service.ValidateDestination(st.Method, text); err != nil {
		if errors.Is(err, service.ErrInvalidDestination) {
			b.reply(r, msgDestinationBad, cancelKeyboard())
			return
		}
		b.fail(ctx, r, "validate destination", err)
		return
	}

	tx, err := b.service.CreateWithdrawal(ctx, r.account, st.Method, st.Amount, text)
	if err != nil {
		b.fail(ctx, r, "create withdrawal", err)
		return
	}
	b.clearState(ctx, r)

	tx.Account = r.account
	b.notifyAdmins("📤 Новая заявка\n\n"+transactionText(tx), reviewKeyboard(tx.ID))
	r.account.Balance = r.account.Balance.Sub(tx.Amount)
	b.sendMenu(r, fmt.Sprintf(
		"✅ Заявка %s на вывод %s создана. Сумма зарезервирована до проверки.\nБаланс: %s",
		service.FormatReference(tx), money(tx.Amount), money(r.account.Balance),
	))
}
