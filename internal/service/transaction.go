package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Fi44er/cashier_bot/internal/events"
	"github.com/Fi44er/cashier_bot/internal/metrics"
	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/internal/repository"
	"github.com/Fi44er/cashier_bot/utils"
	"github.com/shopspring/decimal"
)

// DepositInstructions is what the user needs to pay by a method.
type DepositInstructions struct {
	Method  models.PaymentMethod
	Amount  decimal.Decimal
	Details string
	// Crypto deposits carry a per-account address and the amount converted
	// with the tenant exchange rate.
	Address      string
	CryptoAmount decimal.Decimal
}

func inRange(amount, min, max decimal.Decimal) bool {
	if amount.LessThan(min) {
		return false
	}
	return !max.IsPositive() || !amount.GreaterThan(max)
}

// CheckDepositAmount validates amount against the method limits.
func (s *Service) CheckDepositAmount(methodCode string, amount decimal.Decimal) (models.PaymentMethod, error) {
	m, ok := s.settings.Current().Method(methodCode)
	if !ok || !m.DepositEnabled {
		return m, ErrMethodDisabled
	}
	if !amount.IsPositive() || !inRange(amount, m.MinDeposit, m.MaxDeposit) {
		return m, ErrAmountOutOfRange
	}
	return m, nil
}

// DepositInstructionsFor builds payment details for a deposit. The BTC
// address is derived from the tenant xpub at the account's index, so each
// account always gets the same address.
func (s *Service) DepositInstructionsFor(account *models.Account, methodCode string, amount decimal.Decimal) (*DepositInstructions, error) {
	m, err := s.CheckDepositAmount(methodCode, amount)
	if err != nil {
		return nil, err
	}

	out := &DepositInstructions{Method: m, Amount: amount, Details: m.Details}
	if !m.Crypto {
		return out, nil
	}

	if s.btcXPub == "" {
		return nil, ErrCryptoNotConfigured
	}
	address, err := utils.DeriveDepositAddress(s.btcXPub, uint32(account.ID), s.btcParams)
	if err != nil {
		s.logger.Errorf("Failed to derive deposit address for account #%d: %v", account.ID, err)
		return nil, ErrCryptoNotConfigured
	}
	out.Address = address
	out.CryptoAmount = amount.DivRound(s.settings.Current().ExchangeRate, 8)
	return out, nil
}

// CreateDeposit records a manual deposit the user reports as paid. The
// wallet is credited only when an admin confirms it.
func (s *Service) CreateDeposit(ctx context.Context, account *models.Account, methodCode string, amount decimal.Decimal, externalRef string) (tx *models.Transaction, err error) {
	defer func() {
		metrics.LedgerOperations.WithLabelValues("deposit_request", metrics.Result(err)).Inc()
	}()

	if err := s.gate.Check(Operation{Kind: OpDeposit, Method: methodCode, Admin: account.IsAdmin}); err != nil {
		return nil, err
	}
	if _, err := s.CheckDepositAmount(methodCode, amount); err != nil {
		return nil, err
	}

	tx = &models.Transaction{
		TenantID:  s.tenantID,
		AccountID: account.ID,
		Direction: models.DirectionDeposit,
		Amount:    amount,
		Method:    methodCode,
	}
	if ref := strings.TrimSpace(externalRef); ref != "" {
		tx.ExternalRef = &ref
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	s.logger.Infof("Deposit request #%d: account #%d, %s via %s", tx.ID, account.ID, amount, methodCode)
	s.publish(ctx, events.TransactionCreated, s.transactionEvent(tx))
	return tx, nil
}

func (s *Service) PendingTransactions(ctx context.Context) ([]*models.Transaction, error) {
	txs, err := s.repo.GetPendingTransactions(ctx, s.tenantID)
	if err != nil {
		return nil, err
	}
	// Platform transfers are settled by the bot itself.
	out := txs[:0]
	for _, tx := range txs {
		if tx.Method != models.MethodPlatform {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Service) GetTransaction(ctx context.Context, id uint) (*models.Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

// ConfirmTransaction finishes a manual transaction after an admin checked
// it. A deposit credits the wallet and accrues referral commissions in the
// same unit; a withdrawal was already held when it was requested.
func (s *Service) ConfirmTransaction(ctx context.Context, id uint) (*models.Transaction, error) {
	return s.review(ctx, id, true)
}

// RejectTransaction declines a manual transaction. A held withdrawal is
// refunded.
func (s *Service) RejectTransaction(ctx context.Context, id uint) (*models.Transaction, error) {
	return s.review(ctx, id, false)
}

func (s *Service) review(ctx context.Context, id uint, confirm bool) (tx *models.Transaction, err error) {
	op := "reject"
	if confirm {
		op = "confirm"
	}
	defer func() {
		metrics.LedgerOperations.WithLabelValues(op+"_transaction", metrics.Result(err)).Inc()
	}()

	current, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.TenantID != s.tenantID {
		return nil, repository.ErrTransactionNotFound
	}
	if current.Method == models.MethodPlatform {
		return nil, ErrNotReviewable
	}

	settle := repository.Settle{Status: models.StatusRejected}
	switch {
	case confirm && current.Direction == models.DirectionDeposit:
		percents := s.settings.Current().ReferralPercents
		settle = repository.Settle{Status: models.StatusConfirmed, CreditWallet: true, Referral: &percents}
	case confirm:
		settle = repository.Settle{Status: models.StatusConfirmed}
	case current.Direction == models.DirectionWithdrawal:
		settle = repository.Settle{Status: models.StatusRejected, CreditWallet: true}
	}

	tx, earnings, err := s.repo.SettleTransaction(ctx, id, settle, s.now())
	if err != nil {
		if !errors.Is(err, repository.ErrTransactionNotPending) {
			s.logger.Errorf("Failed to %s transaction #%d: %v", op, id, err)
		}
		return nil, err
	}
	tx.Account = current.Account

	routingKey := events.TransactionRejected
	if confirm {
		routingKey = events.TransactionConfirmed
	}
	s.publish(ctx, routingKey, s.transactionEvent(tx))
	s.publishAccrual(ctx, earnings)
	return tx, nil
}

// FormatReference is how a transaction is shown to users and admins.
func FormatReference(tx *models.Transaction) string {
	return fmt.Sprintf("#%d", tx.ID)
}
