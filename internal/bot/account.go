package bot

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/Fi44er/cashier_bot/internal/service"
)

const (
	otpTTL            = 2 * time.Minute
	minPasswordLength = 3
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9]{5,}$`)

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

func validUsername(s string) bool {
	return usernamePattern.MatchString(s)
}

func validPassword(s string) bool {
	return utf8.RuneCountInString(s) >= minPasswordLength
}

func (b *Bot) startAccountCreation(ctx context.Context, r *request, _ string) {
	if r.account.HasPlatformAccount() {
		b.sendMenu(r, msgPlatformExists)
		return
	}
	if !b.allowed(r, service.OpCreateAccount, "") {
		return
	}

	code, err := generateOTP()
	if err != nil {
		b.fail(ctx, r, "generate confirmation code", err)
		return
	}
	st := &State{Step: stepAwaitOTP, OTP: code, ExpiresAt: b.now().Add(otpTTL)}
	if !b.setState(ctx, r, st) {
		return
	}
	b.reply(r, fmt.Sprintf(
		"🔐 Ваш код подтверждения: `%s`\nОтправьте его в ответ в течение 2 минут.", code,
	), cancelKeyboard())
}

// handleOTP accepts the code up to and including the expiry instant. Any
// mismatch ends the dialogue.
func (b *Bot) handleOTP(ctx context.Context, r *request, st *State, text string) {
	if b.now().After(st.ExpiresAt) {
		b.clearState(ctx, r)
		b.sendMenu(r, msgOTPExpired)
		return
	}
	if text != st.OTP {
		b.clearState(ctx, r)
		b.sendMenu(r, msgOTPMismatch)
		return
	}
	if !b.setState(ctx, r, &State{Step: stepAwaitUsername}) {
		return
	}
	b.reply(r, msgEnterUsername, cancelKeyboard())
}

func (b *Bot) handleUsername(ctx context.Context, r *request, _ *State, text string) {
	if !validUsername(text) {
		b.reply(r, msgUsernameRules, cancelKeyboard())
		return
	}
	if !b.setState(ctx, r, &State{Step: stepAwaitPassword, Username: text}) {
		return
	}
	b.reply(r, msgEnterPassword, cancelKeyboard())
}

func (b *Bot) handlePassword(ctx context.Context, r *request, st *State, text string) {
	if !validPassword(text) {
		b.reply(r, msgPasswordRules, cancelKeyboard())
		return
	}

	if err := b.service.RegisterPlatformAccount(ctx, r.account, st.Username, text); err != nil {
		b.fail(ctx, r, "register platform account", err)
		return
	}
	b.clearState(ctx, r)
	b.sendMenu(r, fmt.Sprintf(msgAccountCreated, escape(st.Username)))
}
