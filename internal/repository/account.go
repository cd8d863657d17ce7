package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repository) GetAccount(ctx context.Context, tenantID string, telegramID int64) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND telegram_id = ?", tenantID, telegramID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account %d: %w", telegramID, err)
	}
	return &account, nil
}

func (r *Repository) GetAccountByID(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account #%d: %w", id, err)
	}
	return &account, nil
}

// GetOrCreateAccount returns the account for the chat user, creating it on
// first contact. created reports whether this call inserted the row.
func (r *Repository) GetOrCreateAccount(ctx context.Context, tenantID string, telegramID int64, username string) (*models.Account, bool, error) {
	account, err := r.GetAccount(ctx, tenantID, telegramID)
	if err != nil {
		return nil, false, err
	}
	if account != nil {
		return account, false, nil
	}

	account = &models.Account{
		TenantID:        tenantID,
		TelegramID:      telegramID,
		Username:        username,
		Balance:         decimal.Zero,
		BonusBalance:    decimal.Zero,
		ReferralBalance: decimal.Zero,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(account)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create account %d: %w", telegramID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Another update for the same user won the insert.
		account, err = r.GetAccount(ctx, tenantID, telegramID)
		if err != nil {
			return nil, false, err
		}
		return account, false, nil
	}

	r.logger.Infof("Created account #%d for telegram user %d (tenant %s)", account.ID, telegramID, tenantID)
	return account, true, nil
}

// SetReferrer links the account to its referrer. The link is written once
// and never points at the account itself.
func (r *Repository) SetReferrer(ctx context.Context, accountID, referrerID uint) error {
	if accountID == referrerID {
		return ErrSelfReferral
	}

	return r.atomically(ctx, "set referrer", func(tx *gorm.DB) error {
		account, err := lockAccount(tx, accountID)
		if err != nil {
			return err
		}
		if account.ReferrerID != nil {
			return ErrReferrerAlreadySet
		}

		var referrer models.Account
		if err := tx.First(&referrer, "id = ?", referrerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		if referrer.TenantID != account.TenantID {
			return ErrAccountNotFound
		}

		res := tx.Model(&models.Account{}).
			Where("id = ? AND referrer_id IS NULL", accountID).
			Update("referrer_id", referrerID)
		if res.Error != nil {
			return fmt.Errorf("failed to set referrer: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrReferrerAlreadySet
		}
		return nil
	})
}

// AttachPlatformAccount stores the betting platform identity after a
// successful external registration.
func (r *Repository) AttachPlatformAccount(ctx context.Context, accountID uint, login, platformID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"platform_login":      login,
			"platform_account_id": platformID,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to attach platform account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CountReferrals returns how many accounts name accountID as direct referrer.
func (r *Repository) CountReferrals(ctx context.Context, accountID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("referrer_id = ?", accountID).
		Count(&count).Error
	return count, err
}

func lockAccount(tx *gorm.DB, id uint) (*models.Account, error) {
	var account models.Account
	if err := forUpdate(tx).First(&account, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to lock account #%d: %w", id, err)
	}
	return &account, nil
}

// adjustBalance adds delta to the locked account's wallet balance, refusing
// to go below zero.
func adjustBalance(tx *gorm.DB, accountID uint, delta decimal.Decimal) (decimal.Decimal, error) {
	account, err := lockAccount(tx, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	newBalance := account.Balance.Add(delta)
	if newBalance.IsNegative() {
		return account.Balance, ErrInsufficientFunds
	}

	if err := tx.Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("balance", newBalance).Error; err != nil {
		return account.Balance, fmt.Errorf("failed to update balance of account #%d: %w", accountID, err)
	}
	return newBalance, nil
}

// CreditWallet atomically adds amount to the wallet balance.
func (r *Repository) CreditWallet(ctx context.Context, accountID uint, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.atomically(ctx, "credit wallet", func(tx *gorm.DB) error {
		var err error
		balance, err = adjustBalance(tx, accountID, amount)
		return err
	})
	return balance, err
}

// DebitWallet atomically subtracts amount from the wallet balance.
func (r *Repository) DebitWallet(ctx context.Context, accountID uint, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.atomically(ctx, "debit wallet", func(tx *gorm.DB) error {
		var err error
		balance, err = adjustBalance(tx, accountID, amount.Neg())
		return err
	})
	return balance, err
}
