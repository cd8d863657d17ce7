package service

import (
	"context"
	"fmt"

	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/internal/repository"
	"github.com/shopspring/decimal"
)

// Admin hooks. Every edit goes through SettingsStore.Update, which validates
// the whole resulting configuration before it is committed and published.

func (s *Service) SetExchangeRate(ctx context.Context, rate decimal.Decimal) error {
	return s.updateSettings(ctx, "exchange rate", func(cfg *models.TenantConfig) error {
		cfg.ExchangeRate = rate
		return nil
	})
}

func (s *Service) SetReferralPercents(ctx context.Context, percents repository.ReferralPercents) error {
	return s.updateSettings(ctx, "referral percents", func(cfg *models.TenantConfig) error {
		cfg.ReferralPercent1 = percents[0]
		cfg.ReferralPercent2 = percents[1]
		cfg.ReferralPercent3 = percents[2]
		return nil
	})
}

func (s *Service) SetMinWithdrawal(ctx context.Context, min decimal.Decimal) error {
	return s.updateSettings(ctx, "minimum withdrawal", func(cfg *models.TenantConfig) error {
		cfg.MinWithdrawal = min
		return nil
	})
}

// MethodLimits are the four per-method bounds; a zero maximum is unbounded.
type MethodLimits struct {
	MinDeposit, MaxDeposit   decimal.Decimal
	MinWithdraw, MaxWithdraw decimal.Decimal
}

func (s *Service) SetMethodLimits(ctx context.Context, code string, limits MethodLimits) error {
	return s.updateSettings(ctx, "limits of "+code, func(cfg *models.TenantConfig) error {
		return withMethod(cfg, code, func(m *models.PaymentMethod) {
			m.MinDeposit = limits.MinDeposit
			m.MaxDeposit = limits.MaxDeposit
			m.MinWithdraw = limits.MinWithdraw
			m.MaxWithdraw = limits.MaxWithdraw
		})
	})
}

func (s *Service) SetMethodDetails(ctx context.Context, code, details string) error {
	return s.updateSettings(ctx, "details of "+code, func(cfg *models.TenantConfig) error {
		return withMethod(cfg, code, func(m *models.PaymentMethod) { m.Details = details })
	})
}

// TogglePause flips the tenant kill switch and returns the new state.
func (s *Service) TogglePause(ctx context.Context) (bool, error) {
	var paused bool
	err := s.updateSettings(ctx, "pause", func(cfg *models.TenantConfig) error {
		cfg.Paused = !cfg.Paused
		paused = cfg.Paused
		return nil
	})
	return paused, err
}

// ToggleMethod flips deposit or withdraw availability of a method and
// returns the new state.
func (s *Service) ToggleMethod(ctx context.Context, code string, direction models.TransactionDirection) (bool, error) {
	var enabled bool
	err := s.updateSettings(ctx, fmt.Sprintf("%s of %s", direction, code), func(cfg *models.TenantConfig) error {
		return withMethod(cfg, code, func(m *models.PaymentMethod) {
			if direction == models.DirectionDeposit {
				m.DepositEnabled = !m.DepositEnabled
				enabled = m.DepositEnabled
			} else {
				m.WithdrawEnabled = !m.WithdrawEnabled
				enabled = m.WithdrawEnabled
			}
		})
	})
	return enabled, err
}

func withMethod(cfg *models.TenantConfig, code string, edit func(*models.PaymentMethod)) error {
	for i := range cfg.Methods {
		if cfg.Methods[i].Code == code {
			edit(&cfg.Methods[i])
			return nil
		}
	}
	return fmt.Errorf("%w: unknown method %q", ErrInvalidSettings, code)
}

func (s *Service) updateSettings(ctx context.Context, what string, mutate func(*models.TenantConfig) error) error {
	if _, err := s.settings.Update(ctx, mutate); err != nil {
		s.logger.Warnf("Settings update (%s) rejected: %v", what, err)
		return err
	}
	s.logger.Infof("Settings updated: %s", what)
	return nil
}
