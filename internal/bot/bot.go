package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Fi44er/cashier_bot/config"
	"github.com/Fi44er/cashier_bot/internal/metrics"
	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/internal/service"
	"github.com/Fi44er/cashier_bot/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ActionKind is the part of callback data before the first colon.
type ActionKind string

const (
	actionCancel          ActionKind = "cancel"
	actionDepositMethod   ActionKind = "dep"
	actionWithdrawMethod  ActionKind = "wd"
	actionPlatformBalance ActionKind = "pbal"

	actionConfirm        ActionKind = "ok"
	actionReject         ActionKind = "no"
	actionTogglePause    ActionKind = "pause"
	actionToggleDeposit  ActionKind = "tdep"
	actionToggleWithdraw ActionKind = "twd"
	actionEdit           ActionKind = "edit"
	actionSettle         ActionKind = "settle"
	actionPending        ActionKind = "pending"
	actionListGiftCodes  ActionKind = "codes"
	actionDeleteGiftCode ActionKind = "delcode"
)

// request is one inbound input, already bound to its account.
type request struct {
	chatID     int64
	account    *models.Account
	messageID  int
	callbackID string
}

func (r *request) admin() bool {
	return r.account.IsAdmin
}

type (
	stepHandler    func(ctx context.Context, r *request, st *State, text string)
	actionHandler  func(ctx context.Context, r *request, arg string)
	commandHandler func(ctx context.Context, r *request, text string)
)

type action struct {
	handle    actionHandler
	adminOnly bool
}

type Bot struct {
	messenger Messenger
	service   *service.Service
	states    StateStore
	logger    *utils.Logger
	admins    map[int64]bool
	username  string
	now       func() time.Time

	steps    map[Step]stepHandler
	actions  map[ActionKind]action
	commands map[string]commandHandler

	wg sync.WaitGroup
}

func NewBot(
	messenger Messenger,
	svc *service.Service,
	states StateStore,
	logger *utils.Logger,
	config *config.Config,
	username string,
) *Bot {
	b := &Bot{
		messenger: messenger,
		service:   svc,
		states:    states,
		logger:    logger,
		admins:    make(map[int64]bool),
		username:  username,
		now:       time.Now,
	}
	for _, id := range config.AdminChatIDs {
		b.admins[id] = true
	}
	b.register()
	return b
}

// SetClock replaces the time source used for OTP expiry.
func (b *Bot) SetClock(now func() time.Time) {
	b.now = now
}

func (b *Bot) register() {
	b.steps = map[Step]stepHandler{
		stepAwaitOTP:      b.handleOTP,
		stepAwaitUsername: b.handleUsername,
		stepAwaitPassword: b.handlePassword,

		stepAwaitTransferAmount:         b.handleTransferAmount,
		stepAwaitPlatformWithdrawAmount: b.handlePlatformWithdrawAmount,

		stepAwaitDepositAmount:       b.handleDepositAmount,
		stepAwaitDepositReference:    b.handleDepositReference,
		stepAwaitWithdrawAmount:      b.handleWithdrawAmount,
		stepAwaitWithdrawDestination: b.handleWithdrawDestination,

		stepAwaitGiftCode: b.handleGiftCode,

		stepAdminRate:          b.adminStep(b.handleAdminRate),
		stepAdminPercents:      b.adminStep(b.handleAdminPercents),
		stepAdminMinWithdrawal: b.adminStep(b.handleAdminMinWithdrawal),
		stepAdminLimits:        b.adminStep(b.handleAdminLimits),
		stepAdminDetails:       b.adminStep(b.handleAdminDetails),
		stepAdminGiftCode:      b.adminStep(b.handleAdminGiftCode),
	}

	b.actions = map[ActionKind]action{
		actionCancel:          {handle: b.onCancel},
		actionDepositMethod:   {handle: b.onDepositMethod},
		actionWithdrawMethod:  {handle: b.onWithdrawMethod},
		actionPlatformBalance: {handle: b.onPlatformBalance},

		actionConfirm:        {handle: b.onConfirm, adminOnly: true},
		actionReject:         {handle: b.onReject, adminOnly: true},
		actionTogglePause:    {handle: b.onTogglePause, adminOnly: true},
		actionToggleDeposit:  {handle: b.onToggleDeposit, adminOnly: true},
		actionToggleWithdraw: {handle: b.onToggleWithdraw, adminOnly: true},
		actionEdit:           {handle: b.onEdit, adminOnly: true},
		actionSettle:         {handle: b.onSettle, adminOnly: true},
		actionPending:        {handle: b.onPending, adminOnly: true},
		actionListGiftCodes:  {handle: b.onListGiftCodes, adminOnly: true},
		actionDeleteGiftCode: {handle: b.onDeleteGiftCode, adminOnly: true},
	}

	b.commands = map[string]commandHandler{
		cmdStart:         b.handleStart,
		btnBalance:       b.handleBalance,
		btnDeposit:       b.startDeposit,
		btnWithdraw:      b.startWithdraw,
		btnToPlatform:    b.startTransfer,
		btnFromPlatform:  b.startPlatformWithdraw,
		btnCreateAccount: b.startAccountCreation,
		btnGiftCode:      b.startGiftCode,
		btnReferrals:     b.handleReferrals,
		btnAdmin:         b.handleAdminPanel,
		cmdAdmin:         b.handleAdminPanel,
	}
}

// Start polls Telegram until ctx is cancelled. Updates are handled
// concurrently so a slow platform call never stalls other chats.
func (b *Bot) Start(ctx context.Context, api *tgbotapi.BotAPI) {
	b.logger.Info("Starting bot...")
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			b.wg.Wait()
			b.logger.Info("Bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return
			}
			b.wg.Add(1)
			go func(update tgbotapi.Update) {
				defer b.wg.Done()
				defer func() {
					if p := recover(); p != nil {
						b.logger.Errorf("Panic while handling update %d: %v", update.UpdateID, p)
					}
				}()
				b.HandleUpdate(ctx, update)
			}(update)
		}
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)

	var referrer int64
	if strings.HasPrefix(text, cmdStart) {
		referrer = parseReferral(text)
	}

	r, ok := b.withAccount(ctx, msg.Chat.ID, msg.From, referrer)
	if !ok {
		return
	}
	b.logger.Debugf("Processing message from user %d: %q", msg.From.ID, text)
	b.handleText(ctx, r, text)
}

func (b *Bot) handleText(ctx context.Context, r *request, text string) {
	if text == cmdCancel || text == btnCancel {
		b.onCancel(ctx, r, "")
		return
	}

	// A menu entry supersedes whatever dialogue was active.
	command := text
	if strings.HasPrefix(text, cmdStart) {
		command = cmdStart
	}
	if handler, ok := b.commands[command]; ok {
		b.clearState(ctx, r)
		metrics.ConversationInputs.WithLabelValues("command").Inc()
		handler(ctx, r, text)
		return
	}

	st, err := b.states.Get(ctx, r.chatID)
	if err != nil {
		b.logger.Errorf("Failed to load state of chat %d: %v", r.chatID, err)
		b.sendMenu(r, msgInternalError)
		return
	}
	if st == nil {
		b.sendMenu(r, msgUnknownCommand)
		return
	}

	handler, ok := b.steps[st.Step]
	if !ok {
		b.logger.Warnf("Chat %d is in unknown step %q, resetting", r.chatID, st.Step)
		b.clearState(ctx, r)
		b.sendMenu(r, msgUnknownCommand)
		return
	}
	metrics.ConversationInputs.WithLabelValues(string(st.Step)).Inc()
	handler(ctx, r, st, text)
}

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.From == nil {
		return
	}
	chatID := callback.From.ID
	messageID := 0
	if callback.Message != nil && callback.Message.Chat != nil {
		chatID = callback.Message.Chat.ID
		messageID = callback.Message.MessageID
	}

	r, ok := b.withAccount(ctx, chatID, callback.From, 0)
	if !ok {
		b.messenger.AnswerCallback(callback.ID, "")
		return
	}
	r.messageID = messageID
	r.callbackID = callback.ID

	kind, arg, _ := strings.Cut(callback.Data, ":")
	act, ok := b.actions[ActionKind(kind)]
	if !ok {
		b.messenger.AnswerCallback(callback.ID, "Неизвестное действие.")
		return
	}
	if act.adminOnly && !r.admin() {
		b.messenger.AnswerCallback(callback.ID, msgAdminOnly)
		return
	}

	b.messenger.AnswerCallback(callback.ID, "")
	metrics.ConversationInputs.WithLabelValues("action_" + kind).Inc()
	act.handle(ctx, r, arg)
}

func (b *Bot) isAdmin(telegramID int64) bool {
	return b.admins[telegramID]
}

func (b *Bot) adminStep(next stepHandler) stepHandler {
	return func(ctx context.Context, r *request, st *State, text string) {
		if !r.admin() {
			b.clearState(ctx, r)
			b.sendMenu(r, msgAdminOnly)
			return
		}
		next(ctx, r, st, text)
	}
}

func (b *Bot) sendMessage(chatID int64, text string, replyMarkup interface{}) int {
	id, err := b.messenger.Send(chatID, text, replyMarkup)
	if err != nil {
		b.logger.Errorf("Failed to send message to %d: %v", chatID, err)
	}
	return id
}

func (b *Bot) reply(r *request, text string, replyMarkup interface{}) int {
	return b.sendMessage(r.chatID, text, replyMarkup)
}

func (b *Bot) sendMenu(r *request, text string) {
	b.sendMessage(r.chatID, text, GetMainMenu(r.account))
}

func (b *Bot) notifyAdmins(text string, replyMarkup interface{}) {
	for id := range b.admins {
		b.sendMessage(id, text, replyMarkup)
	}
}

func (b *Bot) setState(ctx context.Context, r *request, st *State) bool {
	if err := b.states.Set(ctx, r.chatID, st); err != nil {
		b.logger.Errorf("Failed to save state of chat %d: %v", r.chatID, err)
		b.sendMenu(r, msgInternalError)
		return false
	}
	return true
}

func (b *Bot) clearState(ctx context.Context, r *request) {
	if err := b.states.Clear(ctx, r.chatID); err != nil {
		b.logger.Errorf("Failed to clear state of chat %d: %v", r.chatID, err)
	}
}

// fail ends the dialogue and tells the user what went wrong.
func (b *Bot) fail(ctx context.Context, r *request, op string, err error) {
	b.clearState(ctx, r)
	text, known := userMessage(err)
	if !known {
		b.logger.Errorf("Failed to %s for chat %d: %v", op, r.chatID, err)
	}
	b.sendMenu(r, text)
}

// allowed checks the admission gate at a flow entry and reports a refusal.
func (b *Bot) allowed(r *request, kind service.OperationKind, method string) bool {
	err := b.service.Gate().Check(service.Operation{Kind: kind, Method: method, Admin: r.admin()})
	if err == nil {
		return true
	}
	text, _ := userMessage(err)
	b.sendMenu(r, text)
	return false
}

func (b *Bot) onCancel(ctx context.Context, r *request, _ string) {
	b.clearState(ctx, r)
	b.sendMenu(r, msgCancelled)
}
