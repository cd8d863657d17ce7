package service

import (
	"context"

	"github.com/Fi44er/cashier_bot/internal/events"
	"github.com/Fi44er/cashier_bot/internal/metrics"
	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/internal/repository"
	"github.com/Fi44er/cashier_bot/utils"
	"github.com/shopspring/decimal"
)

// Moves between the bot wallet and the platform account follow one shape:
// record a pending intent with a fresh reference, call the platform, then
// settle the intent through the locked ledger unit. Money leaving the wallet
// is held in the same unit that records the intent, before the call, so
// concurrent transfers can never send the platform more than the wallet
// holds. A failed call rejects the intent and undoes the hold. A crash
// between a successful call and the local settlement leaves the intent
// pending with its reference for manual reconciliation.

// TransferToPlatform moves amount from the bot wallet to the platform
// account.
func (s *Service) TransferToPlatform(ctx context.Context, account *models.Account, amount decimal.Decimal) (tx *models.Transaction, err error) {
	defer func() {
		metrics.LedgerOperations.WithLabelValues("transfer_to_platform", metrics.Result(err)).Inc()
	}()

	if err := s.gate.Check(Operation{Kind: OpTransferToPlatform, Admin: account.IsAdmin}); err != nil {
		return nil, err
	}
	if !account.HasPlatformAccount() {
		return nil, ErrNoPlatformAccount
	}
	if !amount.IsPositive() || !amount.Equal(utils.FloorCents(amount)) {
		return nil, utils.ErrInvalidAmount
	}

	return s.movePlatform(ctx, account, models.DirectionWithdrawal, amount, platformMove{
		record:    s.repo.CreateWithdrawalHold,
		onSuccess: repository.Settle{Status: models.StatusConfirmed},
		onFailure: repository.Settle{Status: models.StatusRejected, CreditWallet: true},
		call:      s.platform.Deposit,
	})
}

// WithdrawFromPlatform moves amount from the platform account to the bot
// wallet. The tenant minimum is enforced before the platform is called.
func (s *Service) WithdrawFromPlatform(ctx context.Context, account *models.Account, amount decimal.Decimal) (tx *models.Transaction, err error) {
	defer func() {
		metrics.LedgerOperations.WithLabelValues("withdraw_from_platform", metrics.Result(err)).Inc()
	}()

	if err := s.gate.Check(Operation{Kind: OpWithdrawFromPlatform, Admin: account.IsAdmin}); err != nil {
		return nil, err
	}
	if !amount.IsPositive() || !amount.Equal(utils.FloorCents(amount)) {
		return nil, utils.ErrInvalidAmount
	}
	if err := s.CheckWithdrawalFloor(amount); err != nil {
		return nil, err
	}
	if !account.HasPlatformAccount() {
		return nil, ErrNoPlatformAccount
	}

	return s.movePlatform(ctx, account, models.DirectionDeposit, amount, platformMove{
		record:    s.repo.CreateTransaction,
		onSuccess: repository.Settle{Status: models.StatusConfirmed, CreditWallet: true},
		onFailure: repository.Settle{Status: models.StatusRejected},
		call:      s.platform.Withdraw,
	})
}

type platformCall func(ctx context.Context, platformID string, amount decimal.Decimal, reference string) error

// platformMove describes one direction of a platform move: how the intent
// is recorded and how it is settled after the call.
type platformMove struct {
	record    func(ctx context.Context, tx *models.Transaction) error
	onSuccess repository.Settle
	onFailure repository.Settle
	call      platformCall
}

func (s *Service) movePlatform(ctx context.Context, account *models.Account, direction models.TransactionDirection, amount decimal.Decimal, move platformMove) (*models.Transaction, error) {
	intent := &models.Transaction{
		TenantID:  s.tenantID,
		AccountID: account.ID,
		Direction: direction,
		Amount:    amount,
		Method:    models.MethodPlatform,
	}
	if err := move.record(ctx, intent); err != nil {
		return nil, err
	}

	if err := move.call(ctx, *account.PlatformAccountID, amount, intent.Reference); err != nil {
		s.logger.Errorf("Platform %s %s for account #%d failed: %v", direction, intent.Reference, account.ID, err)
		if _, _, rejErr := s.repo.SettleTransaction(ctx, intent.ID, move.onFailure, s.now()); rejErr != nil {
			s.logger.Errorf("CRITICAL: failed to reject platform intent %s of %s for account #%d: %v",
				intent.Reference, amount, account.ID, rejErr)
		}
		intent.Status = models.StatusRejected
		s.publish(ctx, events.PlatformTransferFailed, s.transactionEvent(intent))
		return nil, err
	}

	ref := intent.Reference
	onSuccess := move.onSuccess
	onSuccess.ExternalRef = &ref
	tx, _, err := s.repo.SettleTransaction(ctx, intent.ID, onSuccess, s.now())
	if err != nil {
		// The platform already moved the money; the intent stays pending.
		s.logger.Errorf("CRITICAL: platform %s %s of %s for account #%d succeeded but was not settled locally: %v",
			direction, intent.Reference, amount, account.ID, err)
		s.publish(ctx, events.PlatformTransferFailed, s.transactionEvent(intent))
		return nil, err
	}

	s.logger.Infof("Platform %s %s: account #%d, %s", direction, tx.Reference, account.ID, amount)
	s.publish(ctx, events.TransactionConfirmed, s.transactionEvent(tx))
	return tx, nil
}
