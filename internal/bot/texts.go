package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/internal/repository"
	"github.com/Fi44er/cashier_bot/internal/service"
	"github.com/Fi44er/cashier_bot/internal/settlement"
	"github.com/Fi44er/cashier_bot/utils"
	"github.com/shopspring/decimal"
)

const (
	btnBalance          = "💰 Баланс"
	btnDeposit          = "➕ Пополнить"
	btnWithdraw         = "➖ Вывести"
	btnToPlatform       = "⬆️ На платформу"
	btnFromPlatform     = "⬇️ С платформы"
	btnCreateAccount    = "🆔 Создать аккаунт"
	btnGiftCode         = "🎁 Промокод"
	btnReferrals        = "👥 Рефералы"
	btnAdmin            = "⚙️ Админка"
	btnCancel           = "❌ Отмена"
	cmdStart            = "/start"
	cmdCancel           = "/cancel"
	cmdAdmin            = "/admin"
	referralStartPrefix = "ref_"
)

const (
	msgWelcome         = "Добро пожаловать! Используйте меню для работы с ботом."
	msgUnknownCommand  = "Неизвестная команда. Используйте меню."
	msgCancelled       = "Действие отменено."
	msgInternalError   = "Произошла ошибка. Попробуйте позже."
	msgAdminOnly       = "Это действие доступно только администратору."
	msgPaused          = "⏸ Платежи временно приостановлены. Попробуйте позже."
	msgPaymentsDown    = "🚫 Платежи сейчас недоступны. Попробуйте позже."
	msgMethodDisabled  = "🚫 Этот способ сейчас недоступен."
	msgNoPlatform      = "Сначала создайте аккаунт на платформе: кнопка «" + btnCreateAccount + "»."
	msgPlatformExists  = "У вас уже есть аккаунт на платформе."
	msgPlatformFailed  = "❌ Платформа не ответила. Деньги не списаны, попробуйте позже."
	msgInsufficient    = "❌ Недостаточно средств на балансе."
	msgInvalidAmount   = "Введите сумму числом, например: 1500 или 1500,50"
	msgGiftCodeInvalid = "❌ Промокод не найден или истёк."
	msgGiftCodeUsed    = "❌ Вы уже активировали этот промокод."
	msgGiftCodeEmpty   = "❌ Лимит активаций промокода исчерпан."
	msgOTPExpired      = "⌛ Код истёк. Начните создание аккаунта заново."
	msgOTPMismatch     = "❌ Неверный код. Начните создание аккаунта заново."
	msgUsernameRules   = "Логин должен состоять минимум из 5 латинских букв или цифр. Попробуйте ещё раз:"
	msgPasswordRules   = "Пароль должен быть не короче 3 символов. Попробуйте ещё раз:"
	msgEnterUsername   = "✅ Код подтверждён. Придумайте логин (латиница и цифры, минимум 5 символов):"
	msgEnterPassword   = "Придумайте пароль (минимум 3 символа):"
	msgAccountCreated  = "🎉 Аккаунт на платформе создан! Логин: `%s`"
	msgEnterGiftCode   = "Введите промокод:"
	msgEnterReference  = "После оплаты отправьте номер чека или комментарий к платежу:"
	msgReferenceRules  = "Отправьте номер чека или комментарий (до 128 символов):"
	msgDestinationBad  = "❌ Неверные реквизиты. Проверьте и отправьте ещё раз:"
	msgChooseDeposit   = "Выберите способ пополнения:"
	msgChooseWithdraw  = "Выберите способ вывода:"
	msgSettingsSaved   = "✅ Настройки сохранены."
	msgSettingsInvalid = "❌ Недопустимые значения: %v\nПопробуйте ещё раз:"
	msgNoPending       = "Нет заявок на проверку."
)

var markdownEscaper = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "`", "\\`",
)

func escape(s string) string {
	return markdownEscaper.Replace(s)
}

func money(d decimal.Decimal) string {
	return utils.FormatAmount(d) + " ₽"
}

// userMessage maps a service error to the text shown in the chat. ok is
// false for errors the user cannot act on.
func userMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, service.ErrPaymentsPaused):
		return msgPaused, true
	case errors.Is(err, service.ErrPaymentsDown):
		return msgPaymentsDown, true
	case errors.Is(err, service.ErrMethodDisabled):
		return msgMethodDisabled, true
	case errors.Is(err, service.ErrNoPlatformAccount):
		return msgNoPlatform, true
	case errors.Is(err, service.ErrPlatformAccountExists):
		return msgPlatformExists, true
	case errors.Is(err, repository.ErrInsufficientFunds):
		return msgInsufficient, true
	case errors.Is(err, repository.ErrGiftCodeInvalid):
		return msgGiftCodeInvalid, true
	case errors.Is(err, repository.ErrGiftCodeAlreadyUsed):
		return msgGiftCodeUsed, true
	case errors.Is(err, repository.ErrGiftCodeExhausted):
		return msgGiftCodeEmpty, true
	case errors.Is(err, service.ErrInvalidDestination):
		return msgDestinationBad, true
	case errors.Is(err, service.ErrCryptoNotConfigured):
		return "🚫 Криптовалютные пополнения пока не настроены.", true
	case errors.Is(err, settlement.ErrNotConfigured):
		return "🚫 Платформа пока не подключена. Попробуйте позже.", true
	case errors.Is(err, settlement.ErrOperationFailed), errors.Is(err, settlement.ErrAuthFailed):
		return msgPlatformFailed, true
	}
	return msgInternalError, false
}

func limitsText(min, max decimal.Decimal) string {
	if max.IsPositive() {
		return fmt.Sprintf("от %s до %s", money(min), money(max))
	}
	return "от " + money(min)
}

func balanceText(account *models.Account) string {
	var sb strings.Builder
	sb.WriteString("💰 *Ваш баланс*\n\n")
	sb.WriteString(fmt.Sprintf("Кошелёк: %s\n", money(account.Balance)))
	sb.WriteString(fmt.Sprintf("Бонусы: %s\n", money(account.BonusBalance)))
	sb.WriteString(fmt.Sprintf("Реферальные: %s\n", money(account.ReferralBalance)))
	if account.PlatformLogin != nil {
		sb.WriteString(fmt.Sprintf("\nАккаунт на платформе: `%s`", escape(*account.PlatformLogin)))
	}
	return sb.String()
}

func directionText(d models.TransactionDirection) string {
	if d == models.DirectionDeposit {
		return "Пополнение"
	}
	return "Вывод"
}

func statusText(s models.TransactionStatus) string {
	switch s {
	case models.StatusConfirmed:
		return "✅ подтверждено"
	case models.StatusRejected:
		return "❌ отклонено"
	}
	return "⏳ ожидает"
}

func transactionText(tx *models.Transaction) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*%s %s*\n", directionText(tx.Direction), service.FormatReference(tx)))
	sb.WriteString(fmt.Sprintf("Сумма: %s\n", money(tx.Amount)))
	sb.WriteString(fmt.Sprintf("Способ: %s\n", escape(tx.Method)))
	if tx.Account != nil {
		who := fmt.Sprintf("%d", tx.Account.TelegramID)
		if tx.Account.Username != "" {
			who += " (@" + escape(tx.Account.Username) + ")"
		}
		sb.WriteString("Пользователь: " + who + "\n")
	}
	if tx.ExternalRef != nil {
		sb.WriteString(fmt.Sprintf("Чек: `%s`\n", escape(*tx.ExternalRef)))
	}
	if tx.Destination != "" {
		sb.WriteString(fmt.Sprintf("Реквизиты: `%s`\n", escape(tx.Destination)))
	}
	sb.WriteString("Статус: " + statusText(tx.Status))
	return sb.String()
}

func settingsText(s *service.Settings) string {
	var sb strings.Builder
	sb.WriteString("⚙️ *Настройки кассы*\n\n")
	if s.Paused {
		sb.WriteString("Платежи: ⏸ на паузе\n")
	} else {
		sb.WriteString("Платежи: ▶️ работают\n")
	}
	sb.WriteString(fmt.Sprintf("Курс BTC: %s\n", s.ExchangeRate.String()))
	sb.WriteString(fmt.Sprintf("Реферальные %%: %s / %s / %s\n",
		s.ReferralPercents[0], s.ReferralPercents[1], s.ReferralPercents[2]))
	sb.WriteString(fmt.Sprintf("Мин. вывод с платформы: %s\n", money(s.MinWithdrawal)))
	for _, m := range s.Methods {
		sb.WriteString(fmt.Sprintf("\n*%s* (%s)\n", escape(m.Title), escape(m.Code)))
		sb.WriteString(fmt.Sprintf("Пополнение %s: %s\n", onOff(m.DepositEnabled), limitsText(m.MinDeposit, m.MaxDeposit)))
		sb.WriteString(fmt.Sprintf("Вывод %s: %s\n", onOff(m.WithdrawEnabled), limitsText(m.MinWithdraw, m.MaxWithdraw)))
	}
	return sb.String()
}

func onOff(enabled bool) string {
	if enabled {
		return "✅"
	}
	return "⛔️"
}
