package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Fi44er/cashier_bot/internal/models"
	"github.com/Fi44er/cashier_bot/internal/repository"
	"github.com/Fi44er/cashier_bot/internal/settlement"
	"github.com/Fi44er/cashier_bot/internal/testutil"
	"github.com/Fi44er/cashier_bot/utils"
	"github.com/shopspring/decimal"
)

const testTenant = "t1"

var testNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fakePlatform struct {
	mu        sync.Mutex
	calls     []string
	failWith  error
	nextID    string
	delay     time.Duration
	registers []settlement.RegisterRequest
}

func (f *fakePlatform) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.failWith
}

func (f *fakePlatform) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakePlatform) RegisterAccount(ctx context.Context, req settlement.RegisterRequest) (string, error) {
	if err := f.record("register"); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.registers = append(f.registers, req)
	f.mu.Unlock()
	return f.nextID, nil
}

func (f *fakePlatform) FetchBalance(ctx context.Context, platformID string) (*settlement.Balance, error) {
	if err := f.record("balance"); err != nil {
		return nil, err
	}
	return &settlement.Balance{Currency: "RUB", Amount: decimal.NewFromInt(42), Main: true}, nil
}

func (f *fakePlatform) Deposit(ctx context.Context, platformID string, amount decimal.Decimal, reference string) error {
	time.Sleep(f.delay)
	return f.record("deposit")
}

func (f *fakePlatform) Withdraw(ctx context.Context, platformID string, amount decimal.Decimal, reference string) error {
	return f.record("withdraw")
}

type fixture struct {
	svc      *Service
	repo     *repository.Repository
	platform *fakePlatform
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := utils.NopLogger()
	repo := repository.NewRepository(testutil.NewDB(t), logger)

	store := NewSettingsStore(testTenant, repo, logger)
	if _, err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load settings: %v", err)
	}

	platform := &fakePlatform{nextID: "555"}
	svc := NewService(repo, store, platform, nil, Options{
		TenantID:         testTenant,
		ReferralMaturity: 10 * 24 * time.Hour,
		BTCNetwork:       "mainnet",
	}, logger)
	svc.SetClock(func() time.Time { return testNow })
	return &fixture{svc: svc, repo: repo, platform: platform}
}

func (f *fixture) account(t *testing.T, telegramID int64) *models.Account {
	t.Helper()
	account, _, err := f.svc.EnsureAccount(context.Background(), telegramID, "", 0)
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	return account
}

func (f *fixture) linked(t *testing.T, telegramID int64, balance string) *models.Account {
	t.Helper()
	account := f.account(t, telegramID)
	if err := f.repo.AttachPlatformAccount(context.Background(), account.ID, "player", "77"); err != nil {
		t.Fatal(err)
	}
	if balance != "0" {
		if _, err := f.repo.CreditWallet(context.Background(), account.ID, dec(balance)); err != nil {
			t.Fatal(err)
		}
	}
	fresh, err := f.repo.GetAccountByID(context.Background(), account.ID)
	if err != nil {
		t.Fatal(err)
	}
	return fresh
}

func (f *fixture) balance(t *testing.T, id uint) decimal.Decimal {
	t.Helper()
	account, err := f.repo.GetAccountByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return account.Balance
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestWithdrawalFloorRejectedBeforePlatformCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.SetMinWithdrawal(ctx, dec("15000")); err != nil {
		t.Fatalf("SetMinWithdrawal: %v", err)
	}
	account := f.linked(t, 1, "0")

	_, err := f.svc.WithdrawFromPlatform(ctx, account, dec("10000"))
	if !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("err = %v, want ErrBelowMinimum", err)
	}
	if n := f.platform.callCount(); n != 0 {
		t.Errorf("platform calls = %d, want 0", n)
	}
}

func TestWithdrawFromPlatformCreditsWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.linked(t, 1, "0")

	tx, err := f.svc.WithdrawFromPlatform(ctx, account, dec("700"))
	if err != nil {
		t.Fatalf("WithdrawFromPlatform: %v", err)
	}
	if tx.Status != models.StatusConfirmed || tx.Method != models.MethodPlatform || tx.Direction != models.DirectionDeposit {
		t.Errorf("transaction = %+v", tx)
	}
	if got := f.balance(t, account.ID); !got.Equal(dec("700")) {
		t.Errorf("balance = %s, want 700", got)
	}
}

func TestTransferToPlatform(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.linked(t, 1, "1000")

	if _, err := f.svc.TransferToPlatform(ctx, account, dec("1000.01")); !errors.Is(err, repository.ErrInsufficientFunds) {
		t.Fatalf("overdraft err = %v, want ErrInsufficientFunds", err)
	}
	if n := f.platform.callCount(); n != 0 {
		t.Fatalf("platform called %d times for an overdraft", n)
	}

	if _, err := f.svc.TransferToPlatform(ctx, account, dec("400")); err != nil {
		t.Fatalf("TransferToPlatform: %v", err)
	}
	if got := f.balance(t, account.ID); !got.Equal(dec("600")) {
		t.Errorf("balance = %s, want 600", got)
	}
}

func TestConcurrentTransfersCannotOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.linked(t, 1, "100")
	f.platform.delay = 20 * time.Millisecond

	const callers = 5
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.TransferToPlatform(ctx, account, dec("100"))
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, repository.ErrInsufficientFunds):
			t.Errorf("unexpected err: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("successful transfers = %d, want 1", succeeded)
	}
	if n := f.platform.callCount(); n != 1 {
		t.Errorf("platform deposits = %d, want 1", n)
	}
	if got := f.balance(t, account.ID); !got.IsZero() {
		t.Errorf("balance = %s, want 0", got)
	}
}

func TestFailedTransferReleasesHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.linked(t, 1, "100")
	f.platform.failWith = settlement.ErrOperationFailed

	if _, err := f.svc.TransferToPlatform(ctx, account, dec("100")); !errors.Is(err, settlement.ErrOperationFailed) {
		t.Fatalf("err = %v, want ErrOperationFailed", err)
	}
	f.platform.failWith = nil
	if _, err := f.svc.TransferToPlatform(ctx, account, dec("100")); err != nil {
		t.Fatalf("retry after refund: %v", err)
	}
	if got := f.balance(t, account.ID); !got.IsZero() {
		t.Errorf("balance = %s, want 0", got)
	}
}

func TestFailedPlatformCallMovesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.linked(t, 1, "1000")
	f.platform.failWith = settlement.ErrOperationFailed

	if _, err := f.svc.TransferToPlatform(ctx, account, dec("400")); !errors.Is(err, settlement.ErrOperationFailed) {
		t.Fatalf("err = %v, want ErrOperationFailed", err)
	}
	if got := f.balance(t, account.ID); !got.Equal(dec("1000")) {
		t.Errorf("balance = %s, want 1000", got)
	}

	txs, err := f.repo.ListAccountTransactions(ctx, account.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 || txs[0].Status != models.StatusRejected {
		t.Errorf("intent not rejected: %+v", txs)
	}
}

func TestPlatformFlowsNeedLinkedAccount(t *testing.T) {
	f := newFixture(t)
	account := f.account(t, 1)

	if _, err := f.svc.TransferToPlatform(context.Background(), account, dec("10")); !errors.Is(err, ErrNoPlatformAccount) {
		t.Errorf("transfer err = %v, want ErrNoPlatformAccount", err)
	}
	if _, err := f.svc.PlatformBalance(context.Background(), account); !errors.Is(err, ErrNoPlatformAccount) {
		t.Errorf("balance err = %v, want ErrNoPlatformAccount", err)
	}
}

func TestManualDepositConfirmAccruesReferrals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	referrer := f.account(t, 1)
	payer, created, err := f.svc.EnsureAccount(ctx, 2, "payer", 1)
	if err != nil || !created {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if payer.ReferrerID == nil || *payer.ReferrerID != referrer.ID {
		t.Fatalf("referrer not linked: %+v", payer.ReferrerID)
	}

	tx, err := f.svc.CreateDeposit(ctx, payer, "card", dec("2000"), "receipt 42")
	if err != nil {
		t.Fatalf("CreateDeposit: %v", err)
	}
	if got := f.balance(t, payer.ID); !got.IsZero() {
		t.Fatalf("balance before review = %s, want 0", got)
	}

	if _, err := f.svc.ConfirmTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("ConfirmTransaction: %v", err)
	}
	if got := f.balance(t, payer.ID); !got.Equal(dec("2000")) {
		t.Errorf("balance = %s, want 2000", got)
	}
	stats, err := f.svc.ReferralStats(ctx, referrer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.Accrued.Equal(dec("100")) {
		t.Errorf("accrued = %s, want 100 (5%% of 2000)", stats.Accrued)
	}

	if _, err := f.svc.RejectTransaction(ctx, tx.ID); !errors.Is(err, repository.ErrTransactionNotPending) {
		t.Errorf("reject after confirm err = %v, want ErrTransactionNotPending", err)
	}
}

func TestDepositLimits(t *testing.T) {
	f := newFixture(t)
	account := f.account(t, 1)

	if _, err := f.svc.CreateDeposit(context.Background(), account, "card", dec("50"), ""); !errors.Is(err, ErrAmountOutOfRange) {
		t.Errorf("below min err = %v, want ErrAmountOutOfRange", err)
	}
	if _, err := f.svc.CreateDeposit(context.Background(), account, "card", dec("100000.01"), ""); !errors.Is(err, ErrAmountOutOfRange) {
		t.Errorf("above max err = %v, want ErrAmountOutOfRange", err)
	}
	if _, err := f.svc.CreateDeposit(context.Background(), account, "nope", dec("500"), ""); !errors.Is(err, ErrMethodDisabled) {
		t.Errorf("unknown method err = %v, want ErrMethodDisabled", err)
	}
}

func TestManualWithdrawalHoldAndReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.linked(t, 1, "3000")

	if _, err := f.svc.CreateWithdrawal(ctx, account, "card", dec("499"), "4276 0000 0000 0000"); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("below floor err = %v, want ErrBelowMinimum", err)
	}
	if _, err := f.svc.CreateWithdrawal(ctx, account, "card", dec("1000"), "x"); !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("short destination err = %v, want ErrInvalidDestination", err)
	}
	if _, err := f.svc.CreateWithdrawal(ctx, account, "btc", dec("1000"), "not-an-address"); !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("bad btc address err = %v, want ErrInvalidDestination", err)
	}

	tx, err := f.svc.CreateWithdrawal(ctx, account, "card", dec("1000"), "4276 0000 0000 0000")
	if err != nil {
		t.Fatalf("CreateWithdrawal: %v", err)
	}
	if got := f.balance(t, account.ID); !got.Equal(dec("2000")) {
		t.Errorf("balance after hold = %s, want 2000", got)
	}

	pending, err := f.svc.PendingTransactions(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, %v", pending, err)
	}

	if _, err := f.svc.RejectTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("RejectTransaction: %v", err)
	}
	if got := f.balance(t, account.ID); !got.Equal(dec("3000")) {
		t.Errorf("balance after refund = %s, want 3000", got)
	}
}

func TestPlatformIntentsAreNotReviewable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.linked(t, 1, "0")

	tx, err := f.svc.WithdrawFromPlatform(ctx, account, dec("600"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.RejectTransaction(ctx, tx.ID); !errors.Is(err, ErrNotReviewable) {
		t.Errorf("err = %v, want ErrNotReviewable", err)
	}
}

func TestRegisterPlatformAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.account(t, 12345)

	if err := f.svc.RegisterPlatformAccount(ctx, account, "Player1", "pwd"); err != nil {
		t.Fatalf("RegisterPlatformAccount: %v", err)
	}
	if !account.HasPlatformAccount() || *account.PlatformAccountID != "555" {
		t.Errorf("account not linked: %+v", account)
	}
	if got := f.platform.registers[0].Email; got != "player1.12345@players.local" {
		t.Errorf("email = %q", got)
	}

	if err := f.svc.RegisterPlatformAccount(ctx, account, "Player1", "pwd"); !errors.Is(err, ErrPlatformAccountExists) {
		t.Errorf("second registration err = %v, want ErrPlatformAccountExists", err)
	}
	if n := f.platform.callCount(); n != 1 {
		t.Errorf("platform calls = %d, want 1", n)
	}
}

func TestRedeemGiftCodeThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.account(t, 1)

	code, err := ParseGiftCodeInput("welcome, 5000, 1", testNow)
	if err != nil {
		t.Fatalf("ParseGiftCodeInput: %v", err)
	}
	if err := f.svc.CreateGiftCode(ctx, code); err != nil {
		t.Fatalf("CreateGiftCode: %v", err)
	}

	amount, err := f.svc.RedeemGiftCode(ctx, account, "Welcome")
	if err != nil || !amount.Equal(dec("5000")) {
		t.Fatalf("redeem = %s, %v; want 5000", amount, err)
	}
	if _, err := f.svc.RedeemGiftCode(ctx, account, "WELCOME"); !errors.Is(err, repository.ErrGiftCodeAlreadyUsed) {
		t.Errorf("repeat err = %v, want ErrGiftCodeAlreadyUsed", err)
	}
	if _, err := f.svc.RedeemGiftCode(ctx, account, "a b"); !errors.Is(err, repository.ErrGiftCodeInvalid) {
		t.Errorf("malformed code err = %v, want ErrGiftCodeInvalid", err)
	}
}

func TestParseGiftCodeInput(t *testing.T) {
	tests := []struct {
		in        string
		wantErr   bool
		max       int
		expiresIn time.Duration
	}{
		{in: "SPRING,100"},
		{in: "spring,100.50,10", max: 10},
		{in: "spring,100,0,7", expiresIn: 7 * 24 * time.Hour},
		{in: "spring", wantErr: true},
		{in: "sp,100", wantErr: true},
		{in: "spring,-1", wantErr: true},
		{in: "spring,100,x", wantErr: true},
		{in: "spring,100,1,2,3", wantErr: true},
	}
	for _, tt := range tests {
		code, err := ParseGiftCodeInput(tt.in, testNow)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseGiftCodeInput(%q) accepted invalid input", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseGiftCodeInput(%q): %v", tt.in, err)
			continue
		}
		if code.Code != "SPRING" {
			t.Errorf("code = %q, want SPRING", code.Code)
		}
		if tt.max > 0 && (code.MaxRedemptions == nil || *code.MaxRedemptions != tt.max) {
			t.Errorf("%q max = %v, want %d", tt.in, code.MaxRedemptions, tt.max)
		}
		if tt.max == 0 && code.MaxRedemptions != nil {
			t.Errorf("%q max = %d, want unlimited", tt.in, *code.MaxRedemptions)
		}
		if tt.expiresIn > 0 && (code.ExpiresAt == nil || !code.ExpiresAt.Equal(testNow.Add(tt.expiresIn))) {
			t.Errorf("%q expires = %v", tt.in, code.ExpiresAt)
		}
	}
}

func TestSettleReferralsReadyOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	referrer := f.account(t, 1)
	payer, _, err := f.svc.EnsureAccount(ctx, 2, "", 1)
	if err != nil {
		t.Fatal(err)
	}

	f.svc.SetClock(func() time.Time { return testNow.Add(-11 * 24 * time.Hour) })
	if _, err := f.svc.DistributeOnPayment(ctx, payer.ID, dec("1000")); err != nil {
		t.Fatal(err)
	}
	f.svc.SetClock(func() time.Time { return testNow })
	if _, err := f.svc.DistributeOnPayment(ctx, payer.ID, dec("1000")); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.SettleReferrals(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Records != 1 || !res.TotalAmount.Equal(dec("50")) {
		t.Errorf("ready-only = %+v, want 1 record of 50", res)
	}
	if got := f.balance(t, referrer.ID); !got.Equal(dec("50")) {
		t.Errorf("wallet = %s, want 50", got)
	}

	res, err = f.svc.SettleReferrals(ctx, false)
	if err != nil || res.Records != 1 {
		t.Errorf("full settlement = %+v, %v; want 1 record", res, err)
	}
}

func TestAccrualEventCountsDistinctEarners(t *testing.T) {
	f := newFixture(t)
	ev := f.svc.accrualEvent([]models.ReferralEarning{
		{EarnerID: 1, Level: 1, Commission: dec("5")},
		{EarnerID: 2, Level: 2, Commission: dec("3")},
		{EarnerID: 1, Level: 1, Commission: dec("2.5")},
	})
	if ev.Records != 3 || ev.Earners != 2 {
		t.Errorf("records/earners = %d/%d, want 3/2", ev.Records, ev.Earners)
	}
	if !ev.Amount.Equal(dec("10.5")) {
		t.Errorf("amount = %s, want 10.5", ev.Amount)
	}
}
