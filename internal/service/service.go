package service

import (
	"context"
	"errors"
	"time"

	"github.com/Fi44er/cashier_bot/internal/events"
	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/internal/repository"
	"github.com/Fi44er/cashier_bot/internal/settlement"
	"github.com/Fi44er/cashier_bot/utils"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
)

var (
	ErrAmountOutOfRange      = errors.New("amount is outside the method limits")
	ErrBelowMinimum          = errors.New("amount is below the minimum withdrawal")
	ErrNoPlatformAccount     = errors.New("no linked platform account")
	ErrPlatformAccountExists = errors.New("platform account already linked")
	ErrInvalidDestination    = errors.New("invalid withdrawal destination")
	ErrNotReviewable         = errors.New("transaction is not subject to manual review")
	ErrCryptoNotConfigured   = errors.New("crypto deposits are not configured")
)

type Repository interface {
	ConfigRepository

	GetAccount(ctx context.Context, tenantID string, telegramID int64) (*models.Account, error)
	GetAccountByID(ctx context.Context, id uint) (*models.Account, error)
	GetOrCreateAccount(ctx context.Context, tenantID string, telegramID int64, username string) (*models.Account, bool, error)
	SetReferrer(ctx context.Context, accountID, referrerID uint) error
	AttachPlatformAccount(ctx context.Context, accountID uint, login, platformID string) error

	CreateGiftCode(ctx context.Context, code *models.GiftCode) error
	GetGiftCode(ctx context.Context, tenantID, code string) (*models.GiftCode, error)
	ListGiftCodes(ctx context.Context, tenantID string) ([]*models.GiftCode, error)
	UpdateGiftCode(ctx context.Context, tenantID, code string, amount decimal.Decimal, maxRedemptions *int, expiresAt *time.Time) error
	DeleteGiftCode(ctx context.Context, tenantID, code string) error
	RedeemGiftCode(ctx context.Context, tenantID, code string, accountID uint, now time.Time) (decimal.Decimal, error)
	PurgeExpiredGiftCodes(ctx context.Context, now time.Time) (int, error)

	DistributeOnPayment(ctx context.Context, payerID uint, amount decimal.Decimal, percents repository.ReferralPercents, now time.Time) ([]models.ReferralEarning, error)
	SettleReferralEarnings(ctx context.Context, tenantID string, maturedBefore *time.Time, now time.Time) (repository.SettlementResult, error)
	GetReferralStats(ctx context.Context, accountID uint) (*repository.ReferralStats, error)

	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	CreateWithdrawalHold(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id uint) (*models.Transaction, error)
	GetPendingTransactions(ctx context.Context, tenantID string) ([]*models.Transaction, error)
	ListAccountTransactions(ctx context.Context, accountID uint, limit int) ([]*models.Transaction, error)
	SettleTransaction(ctx context.Context, id uint, s repository.Settle, now time.Time) (*models.Transaction, []models.ReferralEarning, error)
}

// Platform is the betting platform as seen through the settlement client.
type Platform interface {
	RegisterAccount(ctx context.Context, req settlement.RegisterRequest) (string, error)
	FetchBalance(ctx context.Context, platformID string) (*settlement.Balance, error)
	Deposit(ctx context.Context, platformID string, amount decimal.Decimal, reference string) error
	Withdraw(ctx context.Context, platformID string, amount decimal.Decimal, reference string) error
}

type Options struct {
	TenantID string
	// ReferralMaturity is how old an earning must be for ready-only settlement.
	ReferralMaturity time.Duration
	BTCXPub          string
	BTCNetwork       string
}

type Service struct {
	tenantID string
	repo     Repository
	settings *SettingsStore
	gate     *Gate
	platform Platform
	events   events.Publisher
	logger   *utils.Logger
	now      func() time.Time

	maturity  time.Duration
	btcXPub   string
	btcParams *chaincfg.Params
}

func NewService(repo Repository, settings *SettingsStore, platform Platform, publisher events.Publisher, opts Options, logger *utils.Logger) *Service {
	if publisher == nil {
		publisher = events.NewFallback(logger)
	}
	return &Service{
		tenantID:  opts.TenantID,
		repo:      repo,
		settings:  settings,
		gate:      NewGate(settings),
		platform:  platform,
		events:    publisher,
		logger:    logger,
		now:       time.Now,
		maturity:  opts.ReferralMaturity,
		btcXPub:   opts.BTCXPub,
		btcParams: utils.NetParams(opts.BTCNetwork),
	}
}

// SetClock replaces the time source; tests use it to pin expiry and maturity.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Settings() *Settings {
	return s.settings.Current()
}

func (s *Service) Gate() *Gate {
	return s.gate
}

func (s *Service) ReloadSettings(ctx context.Context) error {
	_, err := s.settings.Reload(ctx)
	return err
}

func (s *Service) publish(ctx context.Context, routingKey string, body interface{}) {
	if err := s.events.Publish(ctx, routingKey, body); err != nil {
		s.logger.Warnf("Failed to publish %s: %v", routingKey, err)
	}
}

func (s *Service) transactionEvent(tx *models.Transaction) events.TransactionEvent {
	return events.TransactionEvent{
		TenantID:  tx.TenantID,
		ID:        tx.ID,
		Reference: tx.Reference,
		AccountID: tx.AccountID,
		Direction: string(tx.Direction),
		Method:    tx.Method,
		Amount:    tx.Amount,
		Status:    string(tx.Status),
		At:        s.now(),
	}
}
