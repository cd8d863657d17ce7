package service

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Fi44er/cashier_bot/internal/events"
	"github.com/Fi44er/cashier_bot/internal/metrics"
	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/internal/repository"
	"github.com/Fi44er/cashier_bot/utils"
	"github.com/shopspring/decimal"
)

var ErrInvalidGiftCodeInput = errors.New("expected CODE,amount[,max redemptions[,days valid]]")

var giftCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// ValidGiftCodeSyntax reports whether text can be a gift code at all.
func ValidGiftCodeSyntax(text string) bool {
	return giftCodePattern.MatchString(strings.TrimSpace(text))
}

// ParseGiftCodeInput parses the admin form "CODE,amount[,max[,days]]".
// A zero or missing max means unlimited; zero or missing days never expires.
func ParseGiftCodeInput(text string, now time.Time) (*models.GiftCode, error) {
	parts := strings.Split(text, ",")
	if len(parts) < 2 || len(parts) > 4 {
		return nil, ErrInvalidGiftCodeInput
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if !ValidGiftCodeSyntax(parts[0]) {
		return nil, ErrInvalidGiftCodeInput
	}
	amount, err := utils.ParseAmount(parts[1])
	if err != nil {
		return nil, ErrInvalidGiftCodeInput
	}

	code := &models.GiftCode{
		Code:      repository.NormalizeCode(parts[0]),
		Amount:    amount,
		CreatedAt: now,
	}

	if len(parts) > 2 {
		max, err := strconv.Atoi(parts[2])
		if err != nil || max < 0 {
			return nil, ErrInvalidGiftCodeInput
		}
		if max > 0 {
			code.MaxRedemptions = &max
		}
	}
	if len(parts) > 3 {
		days, err := strconv.Atoi(parts[3])
		if err != nil || days < 0 {
			return nil, ErrInvalidGiftCodeInput
		}
		if days > 0 {
			expires := now.Add(time.Duration(days) * 24 * time.Hour)
			code.ExpiresAt = &expires
		}
	}
	return code, nil
}

// RedeemGiftCode credits the code to the account's wallet.
func (s *Service) RedeemGiftCode(ctx context.Context, account *models.Account, code string) (amount decimal.Decimal, err error) {
	defer func() {
		metrics.LedgerOperations.WithLabelValues("redeem_gift_code", metrics.Result(err)).Inc()
	}()

	if err := s.gate.Check(Operation{Kind: OpRedeemGiftCode, Admin: account.IsAdmin}); err != nil {
		return decimal.Zero, err
	}
	if !ValidGiftCodeSyntax(code) {
		return decimal.Zero, repository.ErrGiftCodeInvalid
	}

	now := s.now()
	amount, err = s.repo.RedeemGiftCode(ctx, s.tenantID, code, account.ID, now)
	if err != nil {
		return decimal.Zero, err
	}

	s.publish(ctx, events.GiftCodeRedeemed, events.GiftCodeEvent{
		TenantID:  s.tenantID,
		Code:      repository.NormalizeCode(code),
		AccountID: account.ID,
		Amount:    amount,
		At:        now,
	})
	return amount, nil
}

func (s *Service) CreateGiftCode(ctx context.Context, code *models.GiftCode) error {
	code.TenantID = s.tenantID
	if code.CreatedAt.IsZero() {
		code.CreatedAt = s.now()
	}
	return s.repo.CreateGiftCode(ctx, code)
}

func (s *Service) GetGiftCode(ctx context.Context, code string) (*models.GiftCode, error) {
	return s.repo.GetGiftCode(ctx, s.tenantID, code)
}

func (s *Service) ListGiftCodes(ctx context.Context) ([]*models.GiftCode, error) {
	return s.repo.ListGiftCodes(ctx, s.tenantID)
}

func (s *Service) UpdateGiftCode(ctx context.Context, code string, amount decimal.Decimal, maxRedemptions *int, expiresAt *time.Time) error {
	if !amount.IsPositive() {
		return utils.ErrInvalidAmount
	}
	return s.repo.UpdateGiftCode(ctx, s.tenantID, code, amount, maxRedemptions, expiresAt)
}

func (s *Service) DeleteGiftCode(ctx context.Context, code string) error {
	if err := s.repo.DeleteGiftCode(ctx, s.tenantID, code); err != nil {
		return err
	}
	s.logger.Infof("Gift code %s deleted", repository.NormalizeCode(code))
	return nil
}

// PurgeExpiredGiftCodes runs from the scheduler; redemption also deletes an
// expired code it runs into.
func (s *Service) PurgeExpiredGiftCodes(ctx context.Context) (int, error) {
	n, err := s.repo.PurgeExpiredGiftCodes(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Infof("Purged %d expired gift codes", n)
	}
	return n, nil
}
