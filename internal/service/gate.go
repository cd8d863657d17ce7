package service

import (
	"errors"

	"github.com/Fi44er/cashier_bot/internal/models"
)

var (
	ErrPaymentsPaused = errors.New("operations are paused for this tenant")
	ErrPaymentsDown   = errors.New("no payment method is available")
	ErrMethodDisabled = errors.New("payment method is disabled")
)

type OperationKind int

const (
	OpCreateAccount OperationKind = iota
	OpTransferToPlatform
	OpWithdrawFromPlatform
	OpDeposit
	OpWithdraw
	OpRedeemGiftCode
)

func (k OperationKind) String() string {
	switch k {
	case OpCreateAccount:
		return "create_account"
	case OpTransferToPlatform:
		return "transfer_to_platform"
	case OpWithdrawFromPlatform:
		return "withdraw_from_platform"
	case OpDeposit:
		return "deposit"
	case OpWithdraw:
		return "withdraw"
	case OpRedeemGiftCode:
		return "redeem_gift_code"
	}
	return "unknown"
}

// Operation is what the gate is asked about. Method is only meaningful for
// deposits and withdrawals; an empty method asks whether any is open.
type Operation struct {
	Kind   OperationKind
	Method string
	Admin  bool
}

// Gate answers from the settings published at the moment of the call and
// never caches a decision, so admin toggles apply to the next action.
type Gate struct {
	settings *SettingsStore
}

func NewGate(settings *SettingsStore) *Gate {
	return &Gate{settings: settings}
}

func (g *Gate) IsAllowed(op Operation) bool {
	return g.Check(op) == nil
}

// Check returns nil or the reason the operation is refused.
func (g *Gate) Check(op Operation) error {
	s := g.settings.Current()
	if s.Paused && !op.Admin {
		return ErrPaymentsPaused
	}

	switch op.Kind {
	case OpDeposit:
		return checkMethod(s, op.Method, s.DepositMethods(), func(m models.PaymentMethod) bool { return m.DepositEnabled })
	case OpWithdraw:
		return checkMethod(s, op.Method, s.WithdrawMethods(), func(m models.PaymentMethod) bool { return m.WithdrawEnabled })
	}
	return nil
}

func checkMethod(s *Settings, code string, open []models.PaymentMethod, enabled func(models.PaymentMethod) bool) error {
	if len(open) == 0 {
		return ErrPaymentsDown
	}
	if code == "" {
		return nil
	}
	m, ok := s.Method(code)
	if !ok || !enabled(m) {
		return ErrMethodDisabled
	}
	return nil
}
