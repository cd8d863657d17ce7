package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/internal/repository"
)

func TestPauseBlocksEveryoneButAdmins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := f.svc.Gate()

	if !gate.IsAllowed(Operation{Kind: OpCreateAccount}) {
		t.Fatal("account creation blocked before pause")
	}
	paused, err := f.svc.TogglePause(ctx)
	if err != nil || !paused {
		t.Fatalf("TogglePause = %v, %v", paused, err)
	}

	for _, kind := range []OperationKind{OpCreateAccount, OpTransferToPlatform, OpWithdrawFromPlatform, OpDeposit, OpWithdraw, OpRedeemGiftCode} {
		if err := gate.Check(Operation{Kind: kind}); !errors.Is(err, ErrPaymentsPaused) {
			t.Errorf("%s while paused: err = %v, want ErrPaymentsPaused", kind, err)
		}
		if !gate.IsAllowed(Operation{Kind: kind, Admin: true}) {
			t.Errorf("%s blocked for admin while paused", kind)
		}
	}

	account := f.linked(t, 1, "100")
	if _, err := f.svc.TransferToPlatform(ctx, account, dec("10")); !errors.Is(err, ErrPaymentsPaused) {
		t.Errorf("transfer while paused err = %v", err)
	}
	if n := f.platform.callCount(); n != 0 {
		t.Errorf("platform called %d times while paused", n)
	}
}

func TestMethodToggleAppliesToNextCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := f.svc.Gate()

	if err := gate.Check(Operation{Kind: OpDeposit, Method: "card"}); err != nil {
		t.Fatalf("card deposit blocked: %v", err)
	}
	enabled, err := f.svc.ToggleMethod(ctx, "card", models.DirectionDeposit)
	if err != nil || enabled {
		t.Fatalf("ToggleMethod = %v, %v; want disabled", enabled, err)
	}
	if err := gate.Check(Operation{Kind: OpDeposit, Method: "card"}); !errors.Is(err, ErrMethodDisabled) {
		t.Errorf("card deposit err = %v, want ErrMethodDisabled", err)
	}
	if err := gate.Check(Operation{Kind: OpDeposit}); err != nil {
		t.Errorf("deposit chooser blocked while btc is open: %v", err)
	}
	if err := gate.Check(Operation{Kind: OpWithdraw, Method: "card"}); err != nil {
		t.Errorf("card withdraw affected by deposit toggle: %v", err)
	}

	if _, err := f.svc.ToggleMethod(ctx, "btc", models.DirectionDeposit); err != nil {
		t.Fatal(err)
	}
	if err := gate.Check(Operation{Kind: OpDeposit}); !errors.Is(err, ErrPaymentsDown) {
		t.Errorf("all deposit methods off: err = %v, want ErrPaymentsDown", err)
	}
}

func TestInvalidSettingsAreRejectedWhole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.SetReferralPercents(ctx, repository.ReferralPercents{dec("60"), dec("30"), dec("20")})
	if !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("err = %v, want ErrInvalidSettings", err)
	}
	if got := f.svc.Settings().ReferralPercents[0]; !got.Equal(dec("5")) {
		t.Errorf("level 1 percent = %s, want unchanged 5", got)
	}

	if err := f.svc.SetExchangeRate(ctx, dec("0")); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("zero rate err = %v, want ErrInvalidSettings", err)
	}
	if err := f.svc.SetMethodLimits(ctx, "card", MethodLimits{MinDeposit: dec("500"), MaxDeposit: dec("100")}); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("min > max err = %v, want ErrInvalidSettings", err)
	}
	if err := f.svc.SetMethodLimits(ctx, "nope", MethodLimits{}); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("unknown method err = %v, want ErrInvalidSettings", err)
	}

	if err := f.svc.SetExchangeRate(ctx, dec("92.5")); err != nil {
		t.Fatalf("SetExchangeRate: %v", err)
	}
	if got := f.svc.Settings().ExchangeRate; !got.Equal(dec("92.5")) {
		t.Errorf("rate = %s, want 92.5", got)
	}
}

func TestReloadPicksUpExternalEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.repo.UpdateTenantConfig(ctx, testTenant, func(cfg *models.TenantConfig) error {
		cfg.Paused = true
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if f.svc.Settings().Paused {
		t.Fatal("settings changed before reload")
	}
	if err := f.svc.ReloadSettings(ctx); err != nil {
		t.Fatalf("ReloadSettings: %v", err)
	}
	if !f.svc.Settings().Paused {
		t.Error("reload did not publish the new settings")
	}
}
