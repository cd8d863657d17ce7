package service

import (
	"context"
	"errors"

	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/internal/repository"
	"github.com/Fi44er/cashier_bot/internal/settlement"
)

// EnsureAccount returns the chat user's account, creating it on first
// contact. A referral link only counts for a brand new account, so the
// referrer is always older than the account and chains cannot loop.
func (s *Service) EnsureAccount(ctx context.Context, telegramID int64, username string, referrerTelegramID int64) (*models.Account, bool, error) {
	account, created, err := s.repo.GetOrCreateAccount(ctx, s.tenantID, telegramID, username)
	if err != nil {
		return nil, false, err
	}
	if !created || referrerTelegramID == 0 || referrerTelegramID == telegramID {
		return account, created, nil
	}

	referrer, err := s.repo.GetAccount(ctx, s.tenantID, referrerTelegramID)
	if err != nil {
		s.logger.Errorf("Failed to look up referrer %d: %v", referrerTelegramID, err)
		return account, created, nil
	}
	if referrer == nil {
		s.logger.Debugf("Referral link of unknown user %d ignored", referrerTelegramID)
		return account, created, nil
	}

	if err := s.repo.SetReferrer(ctx, account.ID, referrer.ID); err != nil {
		if !errors.Is(err, repository.ErrReferrerAlreadySet) && !errors.Is(err, repository.ErrSelfReferral) {
			s.logger.Errorf("Failed to set referrer of account #%d: %v", account.ID, err)
		}
		return account, created, nil
	}
	account.ReferrerID = &referrer.ID
	s.logger.Infof("Account #%d referred by #%d", account.ID, referrer.ID)
	return account, created, nil
}

func (s *Service) GetAccount(ctx context.Context, telegramID int64) (*models.Account, error) {
	account, err := s.repo.GetAccount(ctx, s.tenantID, telegramID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, repository.ErrAccountNotFound
	}
	return account, nil
}

func (s *Service) GetAccountByID(ctx context.Context, id uint) (*models.Account, error) {
	return s.repo.GetAccountByID(ctx, id)
}

func (s *Service) ReferralStats(ctx context.Context, accountID uint) (*repository.ReferralStats, error) {
	return s.repo.GetReferralStats(ctx, accountID)
}

func (s *Service) RecentTransactions(ctx context.Context, accountID uint, limit int) ([]*models.Transaction, error) {
	return s.repo.ListAccountTransactions(ctx, accountID, limit)
}

// PlatformBalance reads the main wallet of the linked platform account.
func (s *Service) PlatformBalance(ctx context.Context, account *models.Account) (*settlement.Balance, error) {
	if !account.HasPlatformAccount() {
		return nil, ErrNoPlatformAccount
	}
	return s.platform.FetchBalance(ctx, *account.PlatformAccountID)
}
