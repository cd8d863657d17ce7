package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Fi44er/cashier_bot/internal/models"
)

func percents(p1, p2, p3 string) ReferralPercents {
	return ReferralPercents{dec(p1), dec(p2), dec(p3)}
}

// chain creates accounts linked payer -> r1 -> r2 ... and returns them payer first.
func chain(t *testing.T, r *Repository, depth int) []*models.Account {
	t.Helper()
	accounts := make([]*models.Account, depth+1)
	for i := depth; i >= 0; i-- {
		accounts[i] = mustAccount(t, r, int64(100+i))
		if i < depth {
			if err := r.SetReferrer(context.Background(), accounts[i].ID, accounts[i+1].ID); err != nil {
				t.Fatalf("SetReferrer: %v", err)
			}
		}
	}
	return accounts
}

func TestDistributeTwoLevelChain(t *testing.T) {
	r := newTestRepository(t)
	accounts := chain(t, r, 2)
	payer, r1, r2 := accounts[0], accounts[1], accounts[2]

	earnings, err := r.DistributeOnPayment(context.Background(), payer.ID, dec("100000"), percents("5", "3", "2"), testNow)
	if err != nil {
		t.Fatalf("DistributeOnPayment: %v", err)
	}
	if len(earnings) != 2 {
		t.Fatalf("earnings = %d, want 2", len(earnings))
	}

	want := []struct {
		earner     uint
		level      int
		commission string
	}{
		{r1.ID, 1, "5000.00"},
		{r2.ID, 2, "3000.00"},
	}
	for i, w := range want {
		e := earnings[i]
		if e.EarnerID != w.earner || e.Level != w.level || !e.Commission.Equal(dec(w.commission)) {
			t.Errorf("earning %d = earner %d level %d commission %s, want %d %d %s",
				i, e.EarnerID, e.Level, e.Commission, w.earner, w.level, w.commission)
		}
	}

	if got := mustBalance(t, r, r1.ID); !got.ReferralBalance.Equal(dec("5000")) || !got.Balance.IsZero() {
		t.Errorf("R1 referral/wallet = %s/%s, want 5000/0", got.ReferralBalance, got.Balance)
	}
	if got := mustBalance(t, r, r2.ID).ReferralBalance; !got.Equal(dec("3000")) {
		t.Errorf("R2 referral balance = %s, want 3000", got)
	}
}

func TestDistributeStopsAtThreeLevels(t *testing.T) {
	r := newTestRepository(t)
	accounts := chain(t, r, 5)

	earnings, err := r.DistributeOnPayment(context.Background(), accounts[0].ID, dec("1000"), percents("10", "5", "1"), testNow)
	if err != nil {
		t.Fatal(err)
	}
	if len(earnings) != MaxReferralLevels {
		t.Fatalf("earnings = %d, want %d", len(earnings), MaxReferralLevels)
	}
	if got := mustBalance(t, r, accounts[4].ID).ReferralBalance; !got.IsZero() {
		t.Errorf("level 4 referrer earned %s", got)
	}
}

func TestDistributeSkipsZeroLevelsButKeepsWalking(t *testing.T) {
	r := newTestRepository(t)
	accounts := chain(t, r, 3)

	// Level 2 pays nothing; level 3 commission truncates to zero at 0.01%.
	earnings, err := r.DistributeOnPayment(context.Background(), accounts[0].ID, dec("50"), percents("2", "0", "0.01"), testNow)
	if err != nil {
		t.Fatal(err)
	}
	if len(earnings) != 1 || earnings[0].Level != 1 || !earnings[0].Commission.Equal(dec("1")) {
		t.Fatalf("earnings = %+v, want only level 1 of 1.00", earnings)
	}

	earnings, err = r.DistributeOnPayment(context.Background(), accounts[0].ID, dec("1000"), percents("0", "0", "1.5"), testNow)
	if err != nil {
		t.Fatal(err)
	}
	if len(earnings) != 1 || earnings[0].Level != 3 || earnings[0].EarnerID != accounts[3].ID {
		t.Fatalf("earnings = %+v, want a single level 3 record", earnings)
	}
	if !earnings[0].Commission.Equal(dec("15")) {
		t.Errorf("commission = %s, want 15", earnings[0].Commission)
	}
}

func TestCommissionTruncates(t *testing.T) {
	r := newTestRepository(t)
	accounts := chain(t, r, 1)

	// 333.33 * 3 / 100 = 9.9999 -> 9.99
	earnings, err := r.DistributeOnPayment(context.Background(), accounts[0].ID, dec("333.33"), percents("3", "0", "0"), testNow)
	if err != nil {
		t.Fatal(err)
	}
	if len(earnings) != 1 || !earnings[0].Commission.Equal(dec("9.99")) {
		t.Fatalf("earnings = %+v, want commission 9.99", earnings)
	}
}

func TestDistributeWithoutReferrer(t *testing.T) {
	r := newTestRepository(t)
	payer := mustAccount(t, r, 1)

	earnings, err := r.DistributeOnPayment(context.Background(), payer.ID, dec("100"), percents("5", "3", "2"), testNow)
	if err != nil || len(earnings) != 0 {
		t.Errorf("earnings = %v, err = %v; want none", earnings, err)
	}
}

func TestSettleReferralEarnings(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	accounts := chain(t, r, 2)
	payer, r1, r2 := accounts[0], accounts[1], accounts[2]
	p := percents("5", "3", "2")

	old := testNow.Add(-11 * 24 * time.Hour)
	if _, err := r.DistributeOnPayment(ctx, payer.ID, dec("1000"), p, old); err != nil {
		t.Fatal(err)
	}
	if _, err := r.DistributeOnPayment(ctx, payer.ID, dec("200"), p, testNow); err != nil {
		t.Fatal(err)
	}

	matured := testNow.Add(-10 * 24 * time.Hour)
	res, err := r.SettleReferralEarnings(ctx, testTenant, &matured, testNow)
	if err != nil {
		t.Fatalf("ready-only settlement: %v", err)
	}
	if res.Records != 2 || res.Earners != 2 || !res.TotalAmount.Equal(dec("80")) {
		t.Errorf("ready-only result = %+v, want 2 records, 2 earners, 80", res)
	}

	got := mustBalance(t, r, r1.ID)
	if !got.Balance.Equal(dec("50")) || !got.ReferralBalance.Equal(dec("10")) {
		t.Errorf("R1 wallet/referral = %s/%s, want 50/10", got.Balance, got.ReferralBalance)
	}

	res, err = r.SettleReferralEarnings(ctx, testTenant, nil, testNow)
	if err != nil {
		t.Fatalf("full settlement: %v", err)
	}
	if res.Records != 2 || !res.TotalAmount.Equal(dec("16")) {
		t.Errorf("full result = %+v, want 2 records, 16", res)
	}

	got = mustBalance(t, r, r2.ID)
	if !got.Balance.Equal(dec("36")) || !got.ReferralBalance.IsZero() {
		t.Errorf("R2 wallet/referral = %s/%s, want 36/0", got.Balance, got.ReferralBalance)
	}

	earnings, err := r.ListReferralEarnings(ctx, r1.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range earnings {
		if e.DistributedAt == nil {
			t.Errorf("earning #%d not marked distributed", e.ID)
		}
	}

	res, err = r.SettleReferralEarnings(ctx, testTenant, nil, testNow)
	if err != nil || res.Records != 0 {
		t.Errorf("repeat settlement = %+v, %v; want nothing to settle", res, err)
	}
}

func TestReferralStats(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	accounts := chain(t, r, 1)

	if _, err := r.DistributeOnPayment(ctx, accounts[0].ID, dec("100"), percents("10", "0", "0"), testNow); err != nil {
		t.Fatal(err)
	}
	if _, err := r.SettleReferralEarnings(ctx, testTenant, nil, testNow); err != nil {
		t.Fatal(err)
	}
	if _, err := r.DistributeOnPayment(ctx, accounts[0].ID, dec("50"), percents("10", "0", "0"), testNow); err != nil {
		t.Fatal(err)
	}

	stats, err := r.GetReferralStats(ctx, accounts[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Referrals != 1 || !stats.Settled.Equal(dec("10")) || !stats.Accrued.Equal(dec("5")) {
		t.Errorf("stats = %+v, want 1 referral, settled 10, accrued 5", stats)
	}
}
