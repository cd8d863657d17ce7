package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MaxReferralLevels bounds how far up the referrer chain a payment pays out.
const MaxReferralLevels = 3

// ReferralPercents holds the commission percent for levels 1..3.
type ReferralPercents [MaxReferralLevels]decimal.Decimal

type SettlementResult struct {
	Records     int
	Earners     int
	TotalAmount decimal.Decimal
}

type ReferralStats struct {
	Accrued   decimal.Decimal
	Settled   decimal.Decimal
	Referrals int64
}

// DistributeOnPayment accrues referral commissions for a payment made by
// payerID. It is the standalone form of the accrual that deposit
// confirmation runs inside its own unit.
func (r *Repository) DistributeOnPayment(ctx context.Context, payerID uint, amount decimal.Decimal, percents ReferralPercents, now time.Time) ([]models.ReferralEarning, error) {
	var earnings []models.ReferralEarning
	err := r.atomically(ctx, "distribute referral commissions", func(tx *gorm.DB) error {
		payer, err := lockAccount(tx, payerID)
		if err != nil {
			return err
		}
		earnings, err = accrueReferrals(tx, payer, amount, percents, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return earnings, nil
}

// accrueReferrals walks up to three referrers from payer. A missing referrer
// ends the walk; a level with a non-positive percent or commission is
// skipped but the walk continues. Accrual only touches referral_balance.
func accrueReferrals(tx *gorm.DB, payer *models.Account, amount decimal.Decimal, percents ReferralPercents, now time.Time) ([]models.ReferralEarning, error) {
	var earnings []models.ReferralEarning

	current := payer
	for level := 1; level <= MaxReferralLevels; level++ {
		if current.ReferrerID == nil {
			break
		}

		referrer, err := lockAccount(tx, *current.ReferrerID)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				break
			}
			return nil, err
		}

		percent := percents[level-1]
		if percent.IsPositive() {
			commission := utils.PercentOf(amount, percent)
			if commission.IsPositive() {
				earning := models.ReferralEarning{
					TenantID:        payer.TenantID,
					EarnerID:        referrer.ID,
					SourceAccountID: payer.ID,
					Level:           level,
					SourceAmount:    amount,
					Percent:         percent,
					Commission:      commission,
					CreatedAt:       now,
				}
				if err := tx.Create(&earning).Error; err != nil {
					return nil, fmt.Errorf("failed to record level %d earning: %w", level, err)
				}
				if err := tx.Model(&models.Account{}).
					Where("id = ?", referrer.ID).
					Update("referral_balance", referrer.ReferralBalance.Add(commission)).Error; err != nil {
					return nil, fmt.Errorf("failed to accrue referral balance: %w", err)
				}
				earnings = append(earnings, earning)
			}
		}

		current = referrer
	}

	return earnings, nil
}

// SettleReferralEarnings moves pending commissions from referral balance to
// wallet balance. When maturedBefore is set only earnings created at or
// before it are eligible. Earnings are selected and stamped inside one unit
// keyed by id, so accruals running alongside are never lost or counted twice.
func (r *Repository) SettleReferralEarnings(ctx context.Context, tenantID string, maturedBefore *time.Time, now time.Time) (SettlementResult, error) {
	result := SettlementResult{TotalAmount: decimal.Zero}

	err := r.atomically(ctx, "settle referral earnings", func(tx *gorm.DB) error {
		query := forUpdate(tx).
			Where("tenant_id = ? AND distributed_at IS NULL", tenantID)
		if maturedBefore != nil {
			query = query.Where("created_at <= ?", *maturedBefore)
		}

		var pending []models.ReferralEarning
		if err := query.Order("id").Find(&pending).Error; err != nil {
			return fmt.Errorf("failed to select pending earnings: %w", err)
		}
		if len(pending) == 0 {
			return nil
		}

		sums := make(map[uint]decimal.Decimal)
		ids := make(map[uint][]uint)
		for _, e := range pending {
			sums[e.EarnerID] = sums[e.EarnerID].Add(e.Commission)
			ids[e.EarnerID] = append(ids[e.EarnerID], e.ID)
		}

		earners := make([]uint, 0, len(sums))
		for id := range sums {
			earners = append(earners, id)
		}
		// Stable lock order across concurrent settlements.
		sort.Slice(earners, func(i, j int) bool { return earners[i] < earners[j] })

		for _, earnerID := range earners {
			sum := sums[earnerID]

			res := tx.Model(&models.ReferralEarning{}).
				Where("id IN ? AND distributed_at IS NULL", ids[earnerID]).
				Update("distributed_at", now)
			if res.Error != nil {
				return fmt.Errorf("failed to stamp earnings: %w", res.Error)
			}
			if int(res.RowsAffected) != len(ids[earnerID]) {
				return fmt.Errorf("earnings of account #%d changed during settlement", earnerID)
			}

			earner, err := lockAccount(tx, earnerID)
			if err != nil {
				return err
			}
			referralBalance := earner.ReferralBalance.Sub(sum)
			if referralBalance.IsNegative() {
				r.logger.Warnf("Referral balance of account #%d is below its pending earnings (%s < %s); clamping to zero",
					earnerID, earner.ReferralBalance, sum)
				referralBalance = decimal.Zero
			}

			if err := tx.Model(&models.Account{}).
				Where("id = ?", earnerID).
				Updates(map[string]interface{}{
					"referral_balance": referralBalance,
					"balance":          earner.Balance.Add(sum),
				}).Error; err != nil {
				return fmt.Errorf("failed to settle account #%d: %w", earnerID, err)
			}

			result.TotalAmount = result.TotalAmount.Add(sum)
		}

		result.Records = len(pending)
		result.Earners = len(earners)
		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}

	r.logger.Infof("Referral settlement for tenant %s: %d records, %d earners, %s total",
		tenantID, result.Records, result.Earners, result.TotalAmount)
	return result, nil
}

func (r *Repository) ListReferralEarnings(ctx context.Context, earnerID uint) ([]models.ReferralEarning, error) {
	var earnings []models.ReferralEarning
	err := r.db.WithContext(ctx).
		Where("earner_id = ?", earnerID).
		Order("id").
		Find(&earnings).Error
	return earnings, err
}

func (r *Repository) GetReferralStats(ctx context.Context, accountID uint) (*ReferralStats, error) {
	earnings, err := r.ListReferralEarnings(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load referral earnings: %w", err)
	}

	stats := &ReferralStats{Accrued: decimal.Zero, Settled: decimal.Zero}
	for _, e := range earnings {
		if e.DistributedAt != nil {
			stats.Settled = stats.Settled.Add(e.Commission)
		} else {
			stats.Accrued = stats.Accrued.Add(e.Commission)
		}
	}

	stats.Referrals, err = r.CountReferrals(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
