package service

import (
	"context"
	"time"

	"github.com/Fi44er/cashier_bot/internal/events"
	"github.com/Fi44er/cashier_bot/internal/metrics"
	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/internal/repository"
	"github.com/shopspring/decimal"
)

// DistributeOnPayment accrues commissions for a payment using the tenant's
// current percents.
func (s *Service) DistributeOnPayment(ctx context.Context, payerID uint, amount decimal.Decimal) ([]models.ReferralEarning, error) {
	earnings, err := s.repo.DistributeOnPayment(ctx, payerID, amount, s.settings.Current().ReferralPercents, s.now())
	metrics.LedgerOperations.WithLabelValues("referral_accrual", metrics.Result(err)).Inc()
	if err != nil {
		return nil, err
	}
	s.publishAccrual(ctx, earnings)
	return earnings, nil
}

func (s *Service) publishAccrual(ctx context.Context, earnings []models.ReferralEarning) {
	if len(earnings) == 0 {
		return
	}
	s.publish(ctx, events.ReferralAccrued, s.accrualEvent(earnings))
}

func (s *Service) accrualEvent(earnings []models.ReferralEarning) events.ReferralEvent {
	total := decimal.Zero
	earners := make(map[uint]struct{}, len(earnings))
	for _, e := range earnings {
		total = total.Add(e.Commission)
		earners[e.EarnerID] = struct{}{}
	}
	return events.ReferralEvent{
		TenantID: s.tenantID,
		Records:  len(earnings),
		Earners:  len(earners),
		Amount:   total,
		At:       s.now(),
	}
}

// SettleReferrals moves accrued commissions into wallet balances. With
// readyOnly set only earnings older than the maturity window are moved.
func (s *Service) SettleReferrals(ctx context.Context, readyOnly bool) (repository.SettlementResult, error) {
	now := s.now()
	var maturedBefore *time.Time
	if readyOnly {
		cutoff := now.Add(-s.maturity)
		maturedBefore = &cutoff
	}

	res, err := s.repo.SettleReferralEarnings(ctx, s.tenantID, maturedBefore, now)
	metrics.LedgerOperations.WithLabelValues("referral_settlement", metrics.Result(err)).Inc()
	if err != nil {
		s.logger.Errorf("Referral settlement failed: %v", err)
		return repository.SettlementResult{}, err
	}

	if res.Records > 0 {
		s.publish(ctx, events.ReferralSettled, events.ReferralEvent{
			TenantID: s.tenantID,
			Records:  res.Records,
			Earners:  res.Earners,
			Amount:   res.TotalAmount,
			At:       now,
		})
	}
	return res, nil
}
