package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (r *Repository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.Reference == "" {
		tx.Reference = uuid.NewString()
	}
	tx.Status = models.StatusPending
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// CreateWithdrawalHold debits the wallet and records the pending withdrawal
// in one unit, so the held amount cannot be spent twice. Both manual
// withdrawals and transfers to the platform go through it.
func (r *Repository) CreateWithdrawalHold(ctx context.Context, tx *models.Transaction) error {
	if tx.Reference == "" {
		tx.Reference = uuid.NewString()
	}
	tx.Direction = models.DirectionWithdrawal
	tx.Status = models.StatusPending

	return r.atomically(ctx, "create withdrawal hold", func(db *gorm.DB) error {
		if _, err := adjustBalance(db, tx.AccountID, tx.Amount.Neg()); err != nil {
			return err
		}
		if err := db.Create(tx).Error; err != nil {
			return fmt.Errorf("failed to create withdrawal: %w", err)
		}
		return nil
	})
}

func (r *Repository) GetTransaction(ctx context.Context, id uint) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Preload("Account").First(&tx, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction #%d: %w", id, err)
	}
	return &tx, nil
}

func (r *Repository) GetTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", reference, err)
	}
	return &tx, nil
}

func (r *Repository) GetPendingTransactions(ctx context.Context, tenantID string) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	err := r.db.WithContext(ctx).
		Preload("Account").
		Where("tenant_id = ? AND status = ?", tenantID, models.StatusPending).
		Order("created_at ASC").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transactions: %w", err)
	}
	return txs, nil
}

func (r *Repository) ListAccountTransactions(ctx context.Context, accountID uint, limit int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// Settle is the outcome applied to a pending transaction.
type Settle struct {
	Status models.TransactionStatus
	// CreditWallet credits the amount on confirmation of a deposit or on
	// rejection of a held withdrawal.
	CreditWallet bool
	// Referral, when set, accrues commissions for the payer.
	Referral *ReferralPercents
	// ExternalRef overrides the stored external reference.
	ExternalRef *string
}

// SettleTransaction moves a pending transaction to its final status and
// applies the matching wallet effect in the same unit. A transaction that is
// no longer pending is left untouched.
func (r *Repository) SettleTransaction(ctx context.Context, id uint, s Settle, now time.Time) (*models.Transaction, []models.ReferralEarning, error) {
	var (
		tx       models.Transaction
		earnings []models.ReferralEarning
	)

	err := r.atomically(ctx, "settle transaction", func(db *gorm.DB) error {
		if err := forUpdate(db).First(&tx, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		if tx.Status != models.StatusPending {
			return ErrTransactionNotPending
		}

		if s.CreditWallet {
			if _, err := adjustBalance(db, tx.AccountID, tx.Amount); err != nil {
				return err
			}
		}

		if s.Referral != nil {
			payer, err := lockAccount(db, tx.AccountID)
			if err != nil {
				return err
			}
			earnings, err = accrueReferrals(db, payer, tx.Amount, *s.Referral, now)
			if err != nil {
				return err
			}
		}

		updates := map[string]interface{}{"status": s.Status}
		if s.ExternalRef != nil {
			updates["external_ref"] = *s.ExternalRef
			tx.ExternalRef = s.ExternalRef
		}
		if err := db.Model(&models.Transaction{}).Where("id = ?", tx.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update transaction status: %w", err)
		}
		tx.Status = s.Status
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	r.logger.Infof("Transaction #%d (%s %s via %s) -> %s", tx.ID, tx.Direction, tx.Amount, tx.Method, tx.Status)
	return &tx, earnings, nil
}
