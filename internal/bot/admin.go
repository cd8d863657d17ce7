package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/internal/repository"
	"github.com/Fi44er/cashier_bot/internal/service"
	"github.com/Fi44er/cashier_bot/utils"
	"github.com/shopspring/decimal"
)

const (
	editRate          = "rate"
	editPercents      = "percents"
	editMinWithdrawal = "minwd"
	editGiftCode      = "giftcode"
	editLimitsPrefix  = "limits:"
	editDetailsPrefix = "details:"

	settleReady = "ready"
	settleAll   = "all"

	adminListLimit = 20
)

func (b *Bot) handleAdminPanel(_ context.Context, r *request, _ string) {
	if !r.admin() {
		b.sendMenu(r, msgUnknownCommand)
		return
	}
	s := b.service.Settings()
	b.reply(r, settingsText(s), adminKeyboard(s))
}

// refreshPanel redraws the settings message the admin pressed a button on.
func (b *Bot) refreshPanel(r *request) {
	s := b.service.Settings()
	if r.messageID != 0 {
		markup := adminKeyboard(s)
		if err := b.messenger.Edit(r.chatID, r.messageID, settingsText(s), &markup); err == nil {
			return
		}
	}
	b.reply(r, settingsText(s), adminKeyboard(s))
}

func (b *Bot) onTogglePause(ctx context.Context, r *request, _ string) {
	paused, err := b.service.TogglePause(ctx)
	if err != nil {
		b.fail(ctx, r, "toggle pause", err)
		return
	}
	b.logger.Infof("Admin %d set paused=%v", r.account.TelegramID, paused)
	b.refreshPanel(r)
}

func (b *Bot) onToggleDeposit(ctx context.Context, r *request, code string) {
	b.toggleMethod(ctx, r, code, models.DirectionDeposit)
}

func (b *Bot) onToggleWithdraw(ctx context.Context, r *request, code string) {
	b.toggleMethod(ctx, r, code, models.DirectionWithdrawal)
}

func (b *Bot) toggleMethod(ctx context.Context, r *request, code string, direction models.TransactionDirection) {
	enabled, err := b.service.ToggleMethod(ctx, code, direction)
	if err != nil {
		b.fail(ctx, r, "toggle method", err)
		return
	}
	b.logger.Infof("Admin %d set %s %s enabled=%v", r.account.TelegramID, code, direction, enabled)
	b.refreshPanel(r)
}

func (b *Bot) onEdit(ctx context.Context, r *request, arg string) {
	st := &State{}
	var prompt string

	switch {
	case arg == editRate:
		st.Step = stepAdminRate
		prompt = "Введите курс BTC в рублях, например: 6500000"
	case arg == editPercents:
		st.Step = stepAdminPercents
		prompt = "Введите проценты трёх уровней через запятую, например: 5,3,2"
	case arg == editMinWithdrawal:
		st.Step = stepAdminMinWithdrawal
		prompt = "Введите минимальную сумму вывода:"
	case arg == editGiftCode:
		st.Step = stepAdminGiftCode
		prompt = "Введите промокод: КОД,сумма[,лимит активаций[,дней действия]]\nНапример: WELCOME,100,50,7"
	case strings.HasPrefix(arg, editLimitsPrefix):
		st.Step = stepAdminLimits
		st.Method = strings.TrimPrefix(arg, editLimitsPrefix)
		prompt = "Введите лимиты через запятую: мин. пополнение, макс. пополнение, мин. вывод, макс. вывод\n" +
			"0 в максимуме снимает ограничение. Например: 100,100000,500,0"
	case strings.HasPrefix(arg, editDetailsPrefix):
		st.Step = stepAdminDetails
		st.Method = strings.TrimPrefix(arg, editDetailsPrefix)
		prompt = "Отправьте реквизиты, которые увидят пользователи:"
	default:
		b.sendMenu(r, msgUnknownCommand)
		return
	}

	if !b.setState(ctx, r, st) {
		return
	}
	b.reply(r, prompt, cancelKeyboard())
}

// saveSettings reports the outcome of an admin edit. Invalid values keep
// the dialogue open for another try.
func (b *Bot) saveSettings(ctx context.Context, r *request, err error) {
	if errors.Is(err, service.ErrInvalidSettings) {
		b.reply(r, fmt.Sprintf(msgSettingsInvalid, err), cancelKeyboard())
		return
	}
	if err != nil {
		b.fail(ctx, r, "update settings", err)
		return
	}
	b.clearState(ctx, r)
	b.sendMenu(r, msgSettingsSaved)
	s := b.service.Settings()
	b.reply(r, settingsText(s), adminKeyboard(s))
}

func (b *Bot) parseNumbers(r *request, text string, n int) ([]decimal.Decimal, bool) {
	values, err := utils.ParseNumbers(text, n)
	if err != nil {
		b.reply(r, fmt.Sprintf("Нужно %d числ(а) через запятую. Попробуйте ещё раз:", n), cancelKeyboard())
		return nil, false
	}
	return values, true
}

func (b *Bot) handleAdminRate(ctx context.Context, r *request, _ *State, text string) {
	values, ok := b.parseNumbers(r, text, 1)
	if !ok {
		return
	}
	b.saveSettings(ctx, r, b.service.SetExchangeRate(ctx, values[0]))
}

func (b *Bot) handleAdminPercents(ctx context.Context, r *request, _ *State, text string) {
	values, ok := b.parseNumbers(r, text, repository.MaxReferralLevels)
	if !ok {
		return
	}
	var percents repository.ReferralPercents
	copy(percents[:], values)
	b.saveSettings(ctx, r, b.service.SetReferralPercents(ctx, percents))
}

func (b *Bot) handleAdminMinWithdrawal(ctx context.Context, r *request, _ *State, text string) {
	values, ok := b.parseNumbers(r, text, 1)
	if !ok {
		return
	}
	b.saveSettings(ctx, r, b.service.SetMinWithdrawal(ctx, values[0]))
}

func (b *Bot) handleAdminLimits(ctx context.Context, r *request, st *State, text string) {
	values, ok := b.parseNumbers(r, text, 4)
	if !ok {
		return
	}
	b.saveSettings(ctx, r, b.service.SetMethodLimits(ctx, st.Method, service.MethodLimits{
		MinDeposit:  values[0],
		MaxDeposit:  values[1],
		MinWithdraw: values[2],
		MaxWithdraw: values[3],
	}))
}

func (b *Bot) handleAdminDetails(ctx context.Context, r *request, st *State, text string) {
	if text == "" {
		b.reply(r, "Реквизиты не могут быть пустыми:", cancelKeyboard())
		return
	}
	b.saveSettings(ctx, r, b.service.SetMethodDetails(ctx, st.Method, text))
}

func (b *Bot) handleAdminGiftCode(ctx context.Context, r *request, _ *State, text string) {
	code, err := service.ParseGiftCodeInput(text, b.now())
	if err != nil {
		b.reply(r, "❌ Неверный формат. Нужно: КОД,сумма[,лимит активаций[,дней действия]]", cancelKeyboard())
		return
	}
	if err := b.service.CreateGiftCode(ctx, code); err != nil {
		if errors.Is(err, repository.ErrGiftCodeExists) {
			b.reply(r, "❌ Такой промокод уже есть. Введите другой:", cancelKeyboard())
			return
		}
		b.fail(ctx, r, "create gift code", err)
		return
	}
	b.clearState(ctx, r)
	b.sendMenu(r, "✅ Промокод создан.\n\n"+giftCodeText(code))
}

func giftCodeText(code *models.GiftCode) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎁 `%s`: %s\n", escape(code.Code), money(code.Amount)))
	if code.MaxRedemptions != nil {
		sb.WriteString(fmt.Sprintf("Активаций: %d из %d\n", code.RedemptionCount, *code.MaxRedemptions))
	} else {
		sb.WriteString(fmt.Sprintf("Активаций: %d\n", code.RedemptionCount))
	}
	if code.ExpiresAt != nil {
		sb.WriteString("Действует до: " + code.ExpiresAt.Format("02.01.2006 15:04") + "\n")
	}
	return sb.String()
}

func (b *Bot) onListGiftCodes(ctx context.Context, r *request, _ string) {
	codes, err := b.service.ListGiftCodes(ctx)
	if err != nil {
		b.fail(ctx, r, "list gift codes", err)
		return
	}
	if len(codes) == 0 {
		b.reply(r, "Промокодов нет.", nil)
		return
	}
	for i, code := range codes {
		if i == adminListLimit {
			b.reply(r, fmt.Sprintf("…и ещё %d", len(codes)-adminListLimit), nil)
			break
		}
		b.reply(r, giftCodeText(code), giftCodeKeyboard(code.Code))
	}
}

func (b *Bot) onDeleteGiftCode(ctx context.Context, r *request, code string) {
	if err := b.service.DeleteGiftCode(ctx, code); err != nil {
		b.fail(ctx, r, "delete gift code", err)
		return
	}
	text := fmt.Sprintf("🗑 Промокод `%s` удалён.", escape(code))
	if r.messageID != 0 && b.messenger.Edit(r.chatID, r.messageID, text, nil) == nil {
		return
	}
	b.reply(r, text, nil)
}

func (b *Bot) onPending(ctx context.Context, r *request, _ string) {
	txs, err := b.service.PendingTransactions(ctx)
	if err != nil {
		b.fail(ctx, r, "list pending transactions", err)
		return
	}
	if len(txs) == 0 {
		b.reply(r, msgNoPending, nil)
		return
	}
	for i, tx := range txs {
		if i == adminListLimit {
			b.reply(r, fmt.Sprintf("…и ещё %d", len(txs)-adminListLimit), nil)
			break
		}
		b.reply(r, transactionText(tx), reviewKeyboard(tx.ID))
	}
}

func (b *Bot) onConfirm(ctx context.Context, r *request, arg string) {
	b.review(ctx, r, arg, true)
}

func (b *Bot) onReject(ctx context.Context, r *request, arg string) {
	b.review(ctx, r, arg, false)
}

func (b *Bot) review(ctx context.Context, r *request, arg string, confirm bool) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		b.reply(r, "Ошибка: неверные данные кнопки.", nil)
		return
	}

	var tx *models.Transaction
	if confirm {
		tx, err = b.service.ConfirmTransaction(ctx, uint(id))
	} else {
		tx, err = b.service.RejectTransaction(ctx, uint(id))
	}
	switch {
	case errors.Is(err, repository.ErrTransactionNotPending):
		b.reply(r, fmt.Sprintf("Заявка #%d уже обработана.", id), nil)
		return
	case errors.Is(err, repository.ErrTransactionNotFound), errors.Is(err, service.ErrNotReviewable):
		b.reply(r, fmt.Sprintf("Заявка #%d не найдена.", id), nil)
		return
	case err != nil:
		b.fail(ctx, r, "review transaction", err)
		return
	}

	b.logger.Infof("Admin %d reviewed transaction #%d: %s", r.account.TelegramID, tx.ID, tx.Status)
	text := transactionText(tx)
	if r.messageID == 0 || b.messenger.Edit(r.chatID, r.messageID, text, nil) != nil {
		b.reply(r, text, nil)
	}

	if tx.Account != nil {
		b.sendMessage(tx.Account.TelegramID, reviewNotice(tx), nil)
	}
}

func reviewNotice(tx *models.Transaction) string {
	ref := service.FormatReference(tx)
	switch {
	case tx.Status == models.StatusConfirmed && tx.Direction == models.DirectionDeposit:
		return fmt.Sprintf("✅ Пополнение %s на %s подтверждено и зачислено на баланс.", ref, money(tx.Amount))
	case tx.Status == models.StatusConfirmed:
		return fmt.Sprintf("✅ Вывод %s на %s выполнен.", ref, money(tx.Amount))
	case tx.Direction == models.DirectionDeposit:
		return fmt.Sprintf("❌ Пополнение %s на %s отклонено.", ref, money(tx.Amount))
	}
	return fmt.Sprintf("❌ Вывод %s на %s отклонён. Сумма возвращена на баланс.", ref, money(tx.Amount))
}

func (b *Bot) onSettle(ctx context.Context, r *request, arg string) {
	readyOnly := arg != settleAll
	res, err := b.service.SettleReferrals(ctx, readyOnly)
	if err != nil {
		b.fail(ctx, r, "settle referral earnings", err)
		return
	}
	b.reply(r, fmt.Sprintf(
		"💸 Реферальные выплаты: %d начислений, %d получателей, всего %s.",
		res.Records, res.Earners, money(res.TotalAmount),
	), nil)
}
