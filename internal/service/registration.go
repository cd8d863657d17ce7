package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Fi44er/cashier_bot/internal/events"
	"github.com/Fi44er/cashier_bot/internal/metrics"
	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/internal/settlement"
)

// RegisterPlatformAccount creates the user's account on the betting
// platform and links it locally. Login and password are validated by the
// conversation before this is called.
func (s *Service) RegisterPlatformAccount(ctx context.Context, account *models.Account, login, password string) (err error) {
	defer func() {
		metrics.LedgerOperations.WithLabelValues("register", metrics.Result(err)).Inc()
	}()

	if err := s.gate.Check(Operation{Kind: OpCreateAccount, Admin: account.IsAdmin}); err != nil {
		return err
	}
	if account.HasPlatformAccount() {
		return ErrPlatformAccountExists
	}

	settings := s.settings.Current()
	if settings.EmailDomain == "" {
		return settlement.ErrNotConfigured
	}

	req := settlement.RegisterRequest{
		Email:    fmt.Sprintf("%s.%d@%s", strings.ToLower(login), account.TelegramID, settings.EmailDomain),
		Password: password,
		Login:    login,
	}
	platformID, err := s.platform.RegisterAccount(ctx, req)
	if err != nil {
		s.logger.Errorf("Platform registration of account #%d failed: %v", account.ID, err)
		return err
	}

	if err := s.repo.AttachPlatformAccount(ctx, account.ID, login, platformID); err != nil {
		s.logger.Errorf("CRITICAL: platform account %s created for account #%d but not linked locally: %v",
			platformID, account.ID, err)
		return err
	}
	account.PlatformLogin = &login
	account.PlatformAccountID = &platformID

	s.logger.Infof("Account #%d linked to platform account %s (%s)", account.ID, platformID, login)
	s.publish(ctx, events.PlatformAccountRegistered, events.PlatformAccountEvent{
		TenantID:   s.tenantID,
		AccountID:  account.ID,
		Login:      login,
		PlatformID: platformID,
		At:         s.now(),
	})
	return nil
}
