package bot

import (
	"fmt"

	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/internal/service"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func GetMainMenu(account *models.Account) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		{
			tgbotapi.NewKeyboardButton(btnBalance),
			tgbotapi.NewKeyboardButton(btnDeposit),
			tgbotapi.NewKeyboardButton(btnWithdraw),
		},
	}

	if account != nil && account.HasPlatformAccount() {
		rows = append(rows, []tgbotapi.KeyboardButton{
			tgbotapi.NewKeyboardButton(btnToPlatform),
			tgbotapi.NewKeyboardButton(btnFromPlatform),
		})
	} else {
		rows = append(rows, []tgbotapi.KeyboardButton{
			tgbotapi.NewKeyboardButton(btnCreateAccount),
		})
	}

	rows = append(rows, []tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButton(btnGiftCode),
		tgbotapi.NewKeyboardButton(btnReferrals),
	})

	if account != nil && account.IsAdmin {
		rows = append(rows, []tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(btnAdmin)})
	}

	return tgbotapi.NewReplyKeyboard(rows...)
}

func actionData(kind ActionKind, arg string) string {
	if arg == "" {
		return string(kind)
	}
	return string(kind) + ":" + arg
}

func cancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnCancel, actionData(actionCancel, "")),
		),
	)
}

func methodsKeyboard(kind ActionKind, methods []models.PaymentMethod) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, m := range methods {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(m.Title, actionData(kind, m.Code)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(btnCancel, actionData(actionCancel, "")),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func balanceKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Баланс на платформе", actionData(actionPlatformBalance, "")),
		),
	)
}

func reviewKeyboard(txID uint) tgbotapi.InlineKeyboardMarkup {
	id := fmt.Sprintf("%d", txID)
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", actionData(actionConfirm, id)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", actionData(actionReject, id)),
		),
	)
}

func adminKeyboard(s *service.Settings) tgbotapi.InlineKeyboardMarkup {
	pause := "⏸ Приостановить платежи"
	if s.Paused {
		pause = "▶️ Возобновить платежи"
	}
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(pause, actionData(actionTogglePause, "")),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💱 Курс", actionData(actionEdit, editRate)),
			tgbotapi.NewInlineKeyboardButtonData("👥 Проценты", actionData(actionEdit, editPercents)),
			tgbotapi.NewInlineKeyboardButtonData("⬇️ Мин. вывод", actionData(actionEdit, editMinWithdrawal)),
		),
	}
	for _, m := range s.Methods {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(onOff(m.DepositEnabled)+" ввод "+m.Title, actionData(actionToggleDeposit, m.Code)),
			tgbotapi.NewInlineKeyboardButtonData(onOff(m.WithdrawEnabled)+" вывод "+m.Title, actionData(actionToggleWithdraw, m.Code)),
		))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📏 Лимиты "+m.Title, actionData(actionEdit, editLimitsPrefix+m.Code)),
			tgbotapi.NewInlineKeyboardButtonData("📝 Реквизиты "+m.Title, actionData(actionEdit, editDetailsPrefix+m.Code)),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎁 Новый промокод", actionData(actionEdit, editGiftCode)),
			tgbotapi.NewInlineKeyboardButtonData("📋 Промокоды", actionData(actionListGiftCodes, "")),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📥 Заявки", actionData(actionPending, "")),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💸 Выплатить созревшие", actionData(actionSettle, settleReady)),
			tgbotapi.NewInlineKeyboardButtonData("💸 Выплатить все", actionData(actionSettle, settleAll)),
		),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func giftCodeKeyboard(code string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить "+code, actionData(actionDeleteGiftCode, code)),
		),
	)
}
