package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/internal/repository"
	"github.com/Fi44er/cashier_bot/internal/settlement"
	"github.com/Fi44er/cashier_bot/utils"
	"github.com/shopspring/decimal"
)

var ErrInvalidSettings = errors.New("invalid tenant settings")

var hundred = decimal.NewFromInt(100)

// Settings is the validated, read-only view of a tenant's configuration.
// A new value replaces the old one as a whole; fields are never mutated in
// place.
type Settings struct {
	TenantID         string
	Paused           bool
	ExchangeRate     decimal.Decimal
	ReferralPercents repository.ReferralPercents
	MinWithdrawal    decimal.Decimal
	Methods          []models.PaymentMethod
	Agent            settlement.Credentials
	EmailDomain      string
	LoadedAt         time.Time
}

// DefaultTenantConfig is what a tenant starts with on first launch.
func DefaultTenantConfig(tenantID string) *models.TenantConfig {
	return &models.TenantConfig{
		TenantID:         tenantID,
		ExchangeRate:     decimal.NewFromInt(1),
		ReferralPercent1: decimal.NewFromInt(5),
		ReferralPercent2: decimal.NewFromInt(3),
		ReferralPercent3: decimal.NewFromInt(2),
		MinWithdrawal:    decimal.NewFromInt(500),
		Methods: []models.PaymentMethod{
			{
				Code:            "card",
				Title:           "💳 Банковская карта",
				DepositEnabled:  true,
				WithdrawEnabled: true,
				MinDeposit:      decimal.NewFromInt(100),
				MaxDeposit:      decimal.NewFromInt(100000),
				MinWithdraw:     decimal.NewFromInt(500),
				MaxWithdraw:     decimal.NewFromInt(100000),
				Details:         "Реквизиты уточняйте у администратора",
			},
			{
				Code:            "btc",
				Title:           "₿ Bitcoin",
				Crypto:          true,
				DepositEnabled:  true,
				WithdrawEnabled: true,
				MinDeposit:      decimal.NewFromInt(1000),
				MinWithdraw:     decimal.NewFromInt(1000),
			},
		},
		SessionTTLSeconds: 600,
		EmailDomain:       "players.local",
	}
}

// SettingsFromConfig converts and validates a stored row.
func SettingsFromConfig(cfg *models.TenantConfig, now time.Time) (*Settings, error) {
	s := &Settings{
		TenantID:     cfg.TenantID,
		Paused:       cfg.Paused,
		ExchangeRate: cfg.ExchangeRate,
		ReferralPercents: repository.ReferralPercents{
			cfg.ReferralPercent1, cfg.ReferralPercent2, cfg.ReferralPercent3,
		},
		MinWithdrawal: cfg.MinWithdrawal,
		Methods:       append([]models.PaymentMethod(nil), cfg.Methods...),
		Agent: settlement.Credentials{
			Login:        cfg.AgentLogin,
			Password:     cfg.AgentPassword,
			ParentID:     cfg.ParentID,
			CurrencyCode: cfg.CurrencyCode,
			MoneyStatus:  cfg.MoneyStatus,
			SessionTTL:   time.Duration(cfg.SessionTTLSeconds) * time.Second,
		},
		EmailDomain: strings.TrimSpace(cfg.EmailDomain),
		LoadedAt:    now,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidSettings, fmt.Sprintf(format, args...))
}

func (s *Settings) Validate() error {
	if !s.ExchangeRate.IsPositive() {
		return invalid("exchange rate must be positive")
	}

	sum := decimal.Zero
	for i, p := range s.ReferralPercents {
		if p.IsNegative() || p.GreaterThan(hundred) {
			return invalid("referral percent of level %d must be within 0..100", i+1)
		}
		sum = sum.Add(p)
	}
	if sum.GreaterThan(hundred) {
		return invalid("referral percents add up to more than 100")
	}

	if s.MinWithdrawal.IsNegative() {
		return invalid("minimum withdrawal cannot be negative")
	}
	if s.Agent.SessionTTL < 0 {
		return invalid("session TTL cannot be negative")
	}

	seen := make(map[string]bool, len(s.Methods))
	for _, m := range s.Methods {
		if m.Code == "" || m.Code == models.MethodPlatform {
			return invalid("method code %q is reserved or empty", m.Code)
		}
		if seen[m.Code] {
			return invalid("duplicate method %q", m.Code)
		}
		seen[m.Code] = true
		if err := validateLimits(m); err != nil {
			return err
		}
	}
	return nil
}

// A zero maximum means the method has no upper bound.
func validateLimits(m models.PaymentMethod) error {
	for _, v := range []decimal.Decimal{m.MinDeposit, m.MaxDeposit, m.MinWithdraw, m.MaxWithdraw} {
		if v.IsNegative() {
			return invalid("limits of %s cannot be negative", m.Code)
		}
	}
	if m.MaxDeposit.IsPositive() && m.MinDeposit.GreaterThan(m.MaxDeposit) {
		return invalid("deposit minimum of %s exceeds its maximum", m.Code)
	}
	if m.MaxWithdraw.IsPositive() && m.MinWithdraw.GreaterThan(m.MaxWithdraw) {
		return invalid("withdrawal minimum of %s exceeds its maximum", m.Code)
	}
	return nil
}

func (s *Settings) Method(code string) (models.PaymentMethod, bool) {
	for _, m := range s.Methods {
		if m.Code == code {
			return m, true
		}
	}
	return models.PaymentMethod{}, false
}

func (s *Settings) DepositMethods() []models.PaymentMethod {
	var out []models.PaymentMethod
	for _, m := range s.Methods {
		if m.DepositEnabled {
			out = append(out, m)
		}
	}
	return out
}

func (s *Settings) WithdrawMethods() []models.PaymentMethod {
	var out []models.PaymentMethod
	for _, m := range s.Methods {
		if m.WithdrawEnabled {
			out = append(out, m)
		}
	}
	return out
}

// ConfigRepository is the part of the ledger store that owns tenant rows.
type ConfigRepository interface {
	SeedTenantConfig(ctx context.Context, cfg *models.TenantConfig) error
	GetTenantConfig(ctx context.Context, tenantID string) (*models.TenantConfig, error)
	UpdateTenantConfig(ctx context.Context, tenantID string, mutate func(*models.TenantConfig) error) (*models.TenantConfig, error)
}

// SettingsStore caches the tenant's Settings behind an atomic pointer.
// Readers always see one complete version.
type SettingsStore struct {
	tenantID string
	repo     ConfigRepository
	logger   *utils.Logger
	now      func() time.Time
	current  atomic.Pointer[Settings]
}

func NewSettingsStore(tenantID string, repo ConfigRepository, logger *utils.Logger) *SettingsStore {
	return &SettingsStore{tenantID: tenantID, repo: repo, logger: logger, now: time.Now}
}

// Load seeds defaults for a new tenant and publishes the stored settings.
func (s *SettingsStore) Load(ctx context.Context) (*Settings, error) {
	if err := s.repo.SeedTenantConfig(ctx, DefaultTenantConfig(s.tenantID)); err != nil {
		return nil, err
	}
	return s.Reload(ctx)
}

// Reload re-reads the row. Invalid stored settings keep the previous
// version in place.
func (s *SettingsStore) Reload(ctx context.Context) (*Settings, error) {
	cfg, err := s.repo.GetTenantConfig(ctx, s.tenantID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("tenant %s has no configuration", s.tenantID)
	}

	settings, err := SettingsFromConfig(cfg, s.now())
	if err != nil {
		s.logger.Errorf("Tenant %s settings rejected, keeping previous version: %v", s.tenantID, err)
		return nil, err
	}
	s.current.Store(settings)
	return settings, nil
}

// Current returns the published settings. It panics if Load never succeeded,
// which is a wiring bug.
func (s *SettingsStore) Current() *Settings {
	settings := s.current.Load()
	if settings == nil {
		panic("service: settings used before Load")
	}
	return settings
}

// Credentials feeds the settlement client on every call.
func (s *SettingsStore) Credentials() settlement.Credentials {
	return s.Current().Agent
}

// Update applies mutate to the stored row, validates the result inside the
// same unit and publishes it.
func (s *SettingsStore) Update(ctx context.Context, mutate func(*models.TenantConfig) error) (*Settings, error) {
	var next *Settings
	_, err := s.repo.UpdateTenantConfig(ctx, s.tenantID, func(cfg *models.TenantConfig) error {
		if err := mutate(cfg); err != nil {
			return err
		}
		var err error
		next, err = SettingsFromConfig(cfg, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.current.Store(next)
	return next, nil
}
