package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Fi44er/cashier_bot/utils"
	"github.com/shopspring/decimal"
)

type fakePlatform struct {
	signIns    atomic.Int32
	failNext   atomic.Int32 // transfers to fail before succeeding
	unauthNext atomic.Int32 // calls answered with 401

	mu        sync.Mutex
	transfers []transferPayload
	balances  string
	lastToken string
}

func (f *fakePlatform) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/agent/signin", func(w http.ResponseWriter, r *http.Request) {
		n := f.signIns.Add(1)
		writeJSON(w, map[string]interface{}{"status": true, "data": map[string]string{"token": "tok-" + string(rune('0'+n))}})
	})
	mux.HandleFunc("/api/agent/players", func(w http.ResponseWriter, r *http.Request) {
		var p registerPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		if p.ParentID == "" {
			writeJSON(w, map[string]interface{}{"status": false, "message": "parent required"})
			return
		}
		writeJSON(w, map[string]interface{}{"status": true, "data": map[string]interface{}{"id": 4242}})
	})
	mux.HandleFunc("/api/agent/players/77/balance", func(w http.ResponseWriter, r *http.Request) {
		f.recordToken(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(f.balances))
	})
	mux.HandleFunc("/api/agent/players/77/transfer", func(w http.ResponseWriter, r *http.Request) {
		f.recordToken(r)
		if f.unauthNext.Load() > 0 {
			f.unauthNext.Add(-1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var p transferPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		f.mu.Lock()
		f.transfers = append(f.transfers, p)
		f.mu.Unlock()
		if f.failNext.Load() > 0 {
			f.failNext.Add(-1)
			writeJSON(w, map[string]interface{}{"status": false, "message": "temporary"})
			return
		}
		writeJSON(w, map[string]interface{}{"status": true, "data": true})
	})
	return mux
}

func (f *fakePlatform) recordToken(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastToken = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestClient(t *testing.T, creds Credentials) (*Client, *fakePlatform, *fakeClock) {
	t.Helper()
	platform := &fakePlatform{}
	srv := httptest.NewServer(platform.handler())
	t.Cleanup(srv.Close)

	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	client := NewClient(srv.URL, "t1", 5*time.Second, func() Credentials { return creds }, utils.NopLogger())
	client.SetClock(clock.Now)
	return client, platform, clock
}

var defaultCreds = Credentials{
	Login:        "agent",
	Password:     "secret",
	ParentID:     "100",
	CurrencyCode: 643,
	MoneyStatus:  5,
	SessionTTL:   10 * time.Minute,
}

func TestSessionReusedWithinTTL(t *testing.T) {
	client, platform, clock := newTestClient(t, defaultCreds)
	ctx := context.Background()

	if err := client.Deposit(ctx, "77", decimal.NewFromInt(100), "r1"); err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	clock.Advance(9 * time.Minute)
	if err := client.Deposit(ctx, "77", decimal.NewFromInt(100), "r2"); err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	if got := platform.signIns.Load(); got != 1 {
		t.Fatalf("sign-ins within TTL = %d, want 1", got)
	}

	clock.Advance(2 * time.Minute)
	if err := client.Deposit(ctx, "77", decimal.NewFromInt(100), "r3"); err != nil {
		t.Fatalf("third deposit: %v", err)
	}
	if got := platform.signIns.Load(); got != 2 {
		t.Fatalf("sign-ins after TTL = %d, want 2", got)
	}
}

func TestZeroTTLNeverCaches(t *testing.T) {
	creds := defaultCreds
	creds.SessionTTL = 0
	client, platform, _ := newTestClient(t, creds)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := client.Deposit(ctx, "77", decimal.NewFromInt(10), ""); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}
	if got := platform.signIns.Load(); got != 3 {
		t.Errorf("sign-ins = %d, want 3", got)
	}
}

func TestRetryOnceWithFreshSession(t *testing.T) {
	client, platform, _ := newTestClient(t, defaultCreds)
	ctx := context.Background()

	platform.failNext.Store(1)
	if err := client.Deposit(ctx, "77", decimal.NewFromInt(50), "r1"); err != nil {
		t.Fatalf("deposit after one failure: %v", err)
	}
	if got := platform.signIns.Load(); got != 2 {
		t.Errorf("sign-ins = %d, want 2 (initial + forced refresh)", got)
	}
	if len(platform.transfers) != 2 {
		t.Errorf("transfer attempts = %d, want 2", len(platform.transfers))
	}
}

func TestSecondFailureIsSurfaced(t *testing.T) {
	client, platform, _ := newTestClient(t, defaultCreds)
	ctx := context.Background()

	platform.failNext.Store(5)
	err := client.Withdraw(ctx, "77", decimal.NewFromInt(50), "r1")
	if !errors.Is(err, ErrOperationFailed) {
		t.Fatalf("err = %v, want ErrOperationFailed", err)
	}
	if len(platform.transfers) != 2 {
		t.Errorf("transfer attempts = %d, want exactly 2", len(platform.transfers))
	}
}

func TestUnauthorizedTriggersReauth(t *testing.T) {
	client, platform, _ := newTestClient(t, defaultCreds)
	ctx := context.Background()

	if err := client.Deposit(ctx, "77", decimal.NewFromInt(1), ""); err != nil {
		t.Fatalf("warm-up deposit: %v", err)
	}
	platform.unauthNext.Store(1)
	if err := client.Deposit(ctx, "77", decimal.NewFromInt(1), ""); err != nil {
		t.Fatalf("deposit after 401: %v", err)
	}
	if got := platform.signIns.Load(); got != 2 {
		t.Errorf("sign-ins = %d, want 2", got)
	}
	if platform.lastToken != "tok-2" {
		t.Errorf("last token = %q, want tok-2", platform.lastToken)
	}
}

func TestWithdrawSendsNegativeAmount(t *testing.T) {
	client, platform, _ := newTestClient(t, defaultCreds)
	ctx := context.Background()

	if err := client.Withdraw(ctx, "77", decimal.RequireFromString("1500.5"), "ref"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := client.Deposit(ctx, "77", decimal.RequireFromString("20"), "ref2"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if got := platform.transfers[0].Amount.String(); got != "-1500.50" {
		t.Errorf("withdraw amount = %s, want -1500.50", got)
	}
	if got := platform.transfers[1].Amount.String(); got != "20.00" {
		t.Errorf("deposit amount = %s, want 20.00", got)
	}
	if platform.transfers[0].Currency != 643 || platform.transfers[0].MoneyStatus != 5 {
		t.Errorf("currency/money status = %d/%d, want 643/5", platform.transfers[0].Currency, platform.transfers[0].MoneyStatus)
	}
}

func TestFetchBalance(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     string
		wantErr  error
		currency string
	}{
		{
			name:     "main wallet among several",
			body:     `{"status":true,"data":[{"currency":"USD","balance":"5","main":false},{"currency":"RUB","balance":"1200.50","main":true}]}`,
			want:     "1200.5",
			currency: "RUB",
		},
		{
			name:     "single unflagged wallet",
			body:     `{"status":true,"data":[{"currency":"KZT","balance":300}]}`,
			want:     "300",
			currency: "KZT",
		},
		{
			name:    "no wallets",
			body:    `{"status":true,"data":[]}`,
			wantErr: ErrNoWallet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, platform, _ := newTestClient(t, defaultCreds)
			platform.balances = tt.body

			got, err := client.FetchBalance(context.Background(), "77")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchBalance: %v", err)
			}
			if got.Amount.String() != tt.want || got.Currency != tt.currency {
				t.Errorf("balance = %s %s, want %s %s", got.Amount, got.Currency, tt.want, tt.currency)
			}
		})
	}
}

func TestRegisterAccount(t *testing.T) {
	client, _, _ := newTestClient(t, defaultCreds)

	id, err := client.RegisterAccount(context.Background(), RegisterRequest{Email: "a@b.c", Password: "pwd", Login: "player1"})
	if err != nil {
		t.Fatalf("RegisterAccount: %v", err)
	}
	if id != "4242" {
		t.Errorf("platform id = %q, want 4242", id)
	}
}

func TestMissingCredentialsAreNotRetried(t *testing.T) {
	creds := defaultCreds
	creds.ParentID = ""
	client, platform, _ := newTestClient(t, creds)

	_, err := client.RegisterAccount(context.Background(), RegisterRequest{Login: "player1"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}

	creds.ParentID = "1"
	creds.Login = ""
	client2, platform2, _ := newTestClient(t, creds)
	if err := client2.Deposit(context.Background(), "77", decimal.NewFromInt(1), ""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("deposit err = %v, want ErrNotConfigured", err)
	}
	if platform.signIns.Load()+platform2.signIns.Load() != 0 {
		t.Error("sign-in attempted without credentials")
	}
}

func TestTransferAccepted(t *testing.T) {
	tests := []struct {
		data string
		ok   bool
	}{
		{`true`, true},
		{`false`, false},
		{`{"success":true,"id":5}`, true},
		{`{"success":false,"message":"limit"}`, false},
		{`{"id":5}`, true},
	}
	for _, tt := range tests {
		err := transferAccepted(json.RawMessage(tt.data))
		if (err == nil) != tt.ok {
			t.Errorf("transferAccepted(%s) err = %v, want ok=%v", tt.data, err, tt.ok)
		}
	}
}
