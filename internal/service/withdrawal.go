package service

import (
	"context"
	"strings"

	"github.com/Fi44er/cashier_bot/internal/events"
	"github.com/Fi44er/cashier_bot/internal/metrics"
	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/utils"
	"github.com/shopspring/decimal"
)

// CheckWithdrawalFloor rejects amounts below the tenant minimum. It runs
// before anything leaves the process.
func (s *Service) CheckWithdrawalFloor(amount decimal.Decimal) error {
	if amount.LessThan(s.settings.Current().MinWithdrawal) {
		return ErrBelowMinimum
	}
	return nil
}

// CheckWithdrawAmount validates amount against the tenant floor and the
// method limits.
func (s *Service) CheckWithdrawAmount(methodCode string, amount decimal.Decimal) (models.PaymentMethod, error) {
	m, ok := s.settings.Current().Method(methodCode)
	if !ok || !m.WithdrawEnabled {
		return m, ErrMethodDisabled
	}
	if !amount.IsPositive() {
		return m, ErrAmountOutOfRange
	}
	if err := s.CheckWithdrawalFloor(amount); err != nil {
		return m, err
	}
	if !inRange(amount, m.MinWithdraw, m.MaxWithdraw) {
		return m, ErrAmountOutOfRange
	}
	return m, nil
}

// ValidateDestination checks the payout details for the method. Crypto
// methods need a valid address on the configured network.
func (s *Service) ValidateDestination(methodCode, destination string) error {
	destination = strings.TrimSpace(destination)
	m, ok := s.settings.Current().Method(methodCode)
	if !ok {
		return ErrMethodDisabled
	}
	if m.Crypto {
		if !utils.ValidateBTCAddress(destination, s.btcParams) {
			return ErrInvalidDestination
		}
		return nil
	}
	if len([]rune(destination)) < 4 || len([]rune(destination)) > 128 {
		return ErrInvalidDestination
	}
	return nil
}

// CreateWithdrawal holds the amount on the wallet and records a pending
// manual withdrawal for admin review.
func (s *Service) CreateWithdrawal(ctx context.Context, account *models.Account, methodCode string, amount decimal.Decimal, destination string) (tx *models.Transaction, err error) {
	defer func() {
		metrics.LedgerOperations.WithLabelValues("withdraw_request", metrics.Result(err)).Inc()
	}()

	if err := s.gate.Check(Operation{Kind: OpWithdraw, Method: methodCode, Admin: account.IsAdmin}); err != nil {
		return nil, err
	}
	if _, err := s.CheckWithdrawAmount(methodCode, amount); err != nil {
		return nil, err
	}
	if err := s.ValidateDestination(methodCode, destination); err != nil {
		return nil, err
	}

	tx = &models.Transaction{
		TenantID:    s.tenantID,
		AccountID:   account.ID,
		Amount:      amount,
		Method:      methodCode,
		Destination: strings.TrimSpace(destination),
	}
	if err := s.repo.CreateWithdrawalHold(ctx, tx); err != nil {
		return nil, err
	}

	s.logger.Infof("Withdrawal request #%d: account #%d, %s via %s", tx.ID, account.ID, amount, methodCode)
	s.publish(ctx, events.TransactionCreated, s.transactionEvent(tx))
	return tx, nil
}
