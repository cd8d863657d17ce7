package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// NormalizeCode makes gift code lookups case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *Repository) CreateGiftCode(ctx context.Context, code *models.GiftCode) error {
	code.Code = NormalizeCode(code.Code)
	if err := r.db.WithContext(ctx).Create(code).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrGiftCodeExists
		}
		return fmt.Errorf("failed to create gift code %s: %w", code.Code, err)
	}
	r.logger.Infof("Gift code %s created (amount %s, tenant %s)", code.Code, code.Amount, code.TenantID)
	return nil
}

func (r *Repository) GetGiftCode(ctx context.Context, tenantID, code string) (*models.GiftCode, error) {
	var gc models.GiftCode
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND code = ?", tenantID, NormalizeCode(code)).
		First(&gc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get gift code: %w", err)
	}
	return &gc, nil
}

func (r *Repository) ListGiftCodes(ctx context.Context, tenantID string) ([]*models.GiftCode, error) {
	var codes []*models.GiftCode
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&codes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list gift codes: %w", err)
	}
	return codes, nil
}

// UpdateGiftCode changes amount, limit and expiry. The redemption count is
// left untouched.
func (r *Repository) UpdateGiftCode(ctx context.Context, tenantID, code string, amount decimal.Decimal, maxRedemptions *int, expiresAt *time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.GiftCode{}).
		Where("tenant_id = ? AND code = ?", tenantID, NormalizeCode(code)).
		Updates(map[string]interface{}{
			"amount":          amount,
			"max_redemptions": maxRedemptions,
			"expires_at":      expiresAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update gift code: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrGiftCodeInvalid
	}
	return nil
}

// DeleteGiftCode removes the code together with its redemptions.
func (r *Repository) DeleteGiftCode(ctx context.Context, tenantID, code string) error {
	return r.atomically(ctx, "delete gift code", func(tx *gorm.DB) error {
		var gc models.GiftCode
		err := tx.Where("tenant_id = ? AND code = ?", tenantID, NormalizeCode(code)).First(&gc).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGiftCodeInvalid
			}
			return err
		}
		return deleteGiftCode(tx, gc.ID)
	})
}

func deleteGiftCode(tx *gorm.DB, id uint) error {
	if err := tx.Where("gift_code_id = ?", id).Delete(&models.GiftCodeRedemption{}).Error; err != nil {
		return fmt.Errorf("failed to delete redemptions of gift code #%d: %w", id, err)
	}
	if err := tx.Delete(&models.GiftCode{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete gift code #%d: %w", id, err)
	}
	return nil
}

// RedeemGiftCode credits the code amount to the account's wallet. The code
// row stays locked for the whole unit; the (code, account) unique index is
// the final guard against a concurrent duplicate.
//
// An expired code is deleted and reported as ErrGiftCodeInvalid.
func (r *Repository) RedeemGiftCode(ctx context.Context, tenantID, code string, accountID uint, now time.Time) (decimal.Decimal, error) {
	code = NormalizeCode(code)
	var (
		credited decimal.Decimal
		expired  bool
	)

	err := r.atomically(ctx, "redeem gift code", func(tx *gorm.DB) error {
		var gc models.GiftCode
		err := forUpdate(tx).
			Where("tenant_id = ? AND code = ?", tenantID, code).
			First(&gc).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGiftCodeInvalid
			}
			return fmt.Errorf("failed to lock gift code: %w", err)
		}

		if gc.ExpiresAt != nil && now.After(*gc.ExpiresAt) {
			expired = true
			// Committing the deletion is the only effect of this call.
			return deleteGiftCode(tx, gc.ID)
		}

		var used int64
		if err := tx.Model(&models.GiftCodeRedemption{}).
			Where("gift_code_id = ? AND account_id = ?", gc.ID, accountID).
			Count(&used).Error; err != nil {
			return err
		}
		if used > 0 {
			return ErrGiftCodeAlreadyUsed
		}

		if gc.MaxRedemptions != nil && gc.RedemptionCount >= *gc.MaxRedemptions {
			return ErrGiftCodeExhausted
		}

		if err := recordRedemption(tx, gc.ID, accountID, now); err != nil {
			return err
		}

		if err := tx.Model(&models.GiftCode{}).
			Where("id = ?", gc.ID).
			Update("redemption_count", gorm.Expr("redemption_count + 1")).Error; err != nil {
			return fmt.Errorf("failed to bump redemption count: %w", err)
		}

		if _, err := adjustBalance(tx, accountID, gc.Amount); err != nil {
			return err
		}
		credited = gc.Amount
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	if expired {
		r.logger.Infof("Gift code %s expired and was deleted", code)
		return decimal.Zero, ErrGiftCodeInvalid
	}

	r.logger.Infof("Gift code %s redeemed by account #%d: +%s", code, accountID, credited)
	return credited, nil
}

// recordRedemption inserts the (code, account) row. The unique index turns a
// concurrent duplicate into ErrGiftCodeAlreadyUsed.
func recordRedemption(tx *gorm.DB, codeID, accountID uint, now time.Time) error {
	redemption := &models.GiftCodeRedemption{GiftCodeID: codeID, AccountID: accountID, CreatedAt: now}
	if err := tx.Create(redemption).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrGiftCodeAlreadyUsed
		}
		return fmt.Errorf("failed to record redemption: %w", err)
	}
	return nil
}

// PurgeExpiredGiftCodes deletes every code whose expiry is before now.
func (r *Repository) PurgeExpiredGiftCodes(ctx context.Context, now time.Time) (int, error) {
	var ids []uint
	err := r.atomically(ctx, "purge expired gift codes", func(tx *gorm.DB) error {
		if err := tx.Model(&models.GiftCode{}).
			Where("expires_at IS NOT NULL AND expires_at < ?", now).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		for _, id := range ids {
			if err := deleteGiftCode(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired gift codes: %w", err)
	}
	return len(ids), nil
}
