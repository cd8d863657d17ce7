package bot

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Step names the input a chat is expected to send next.
type Step string

const (
	stepAwaitOTP      Step = "await_otp"
	stepAwaitUsername Step = "await_username"
	stepAwaitPassword Step = "await_password"

	stepAwaitTransferAmount         Step = "await_transfer_amount"
	stepAwaitPlatformWithdrawAmount Step = "await_platform_withdraw_amount"

	stepAwaitDepositAmount       Step = "await_deposit_amount"
	stepAwaitDepositReference    Step = "await_deposit_reference"
	stepAwaitWithdrawAmount      Step = "await_withdraw_amount"
	stepAwaitWithdrawDestination Step = "await_withdraw_destination"

	stepAwaitGiftCode Step = "await_gift_code"

	stepAdminRate          Step = "admin_await_rate"
	stepAdminPercents      Step = "admin_await_percents"
	stepAdminMinWithdrawal Step = "admin_await_min_withdrawal"
	stepAdminLimits        Step = "admin_await_limits"
	stepAdminDetails       Step = "admin_await_details"
	stepAdminGiftCode      Step = "admin_await_gift_code"
)

// State is the one active dialogue of a chat. It is replaced as a whole on
// every transition and must stay JSON-serializable for the redis store.
type State struct {
	Step      Step            `json:"step"`
	OTP       string          `json:"otp,omitempty"`
	ExpiresAt time.Time       `json:"expires_at,omitempty"`
	Username  string          `json:"username,omitempty"`
	Method    string          `json:"method,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	MessageID int             `json:"message_id,omitempty"`
}

// StateStore keeps conversation state per chat. Writes are last-write-wins.
type StateStore interface {
	Get(ctx context.Context, chatID int64) (*State, error)
	Set(ctx context.Context, chatID int64, state *State) error
	Clear(ctx context.Context, chatID int64) error
}

type memoryEntry struct {
	state   State
	touched time.Time
}

// MemoryStateStore is the single-process store. Abandoned dialogues are
// dropped after ttl by Evict or on the next read.
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[int64]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	return &MemoryStateStore{
		entries: make(map[int64]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStateStore) expired(e memoryEntry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.touched) > s.ttl
}

func (s *MemoryStateStore) Get(_ context.Context, chatID int64) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[chatID]
	if !ok {
		return nil, nil
	}
	if s.expired(e, s.now()) {
		delete(s.entries, chatID)
		return nil, nil
	}
	st := e.state
	return &st, nil
}

func (s *MemoryStateStore) Set(_ context.Context, chatID int64, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[chatID] = memoryEntry{state: *state, touched: s.now()}
	return nil
}

func (s *MemoryStateStore) Clear(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, chatID)
	return nil
}

// Evict drops every entry older than the TTL and returns how many went.
func (s *MemoryStateStore) Evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for chatID, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, chatID)
			n++
		}
	}
	return n
}

func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
