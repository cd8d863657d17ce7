// Package settlement talks to the betting platform's agent API.
//
// Every operation goes through Client.WithAuth, which owns the session cache
// and the retry policy: a failed operation is retried exactly once after the
// cached session is dropped and a fresh one is signed in.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Fi44er/cashier_bot/internal/metrics"
	"github.com/Fi44er/cashier_bot/utils"
)

var (
	// ErrNotConfigured means the tenant lacks agent credentials or a parent
	// id. It is never retried.
	ErrNotConfigured   = errors.New("settlement credentials are not configured")
	ErrAuthFailed      = errors.New("settlement authentication failed")
	ErrOperationFailed = errors.New("settlement operation failed")
	ErrNoWallet        = errors.New("platform account has no currency wallet")
)

// Credentials are the tenant-scoped agent settings used for every call.
type Credentials struct {
	Login        string
	Password     string
	ParentID     string
	CurrencyCode int
	MoneyStatus  int
	// SessionTTL of zero disables session caching.
	SessionTTL time.Duration
}

// CredentialsFunc returns the tenant's current credentials. It is called on
// every operation so admin edits apply without a restart.
type CredentialsFunc func() Credentials

type session struct {
	token      string
	acquiredAt time.Time
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tenantID   string
	creds      CredentialsFunc
	logger     *utils.Logger
	now        func() time.Time

	mu      sync.Mutex
	session *session
}

func NewClient(baseURL, tenantID string, timeout time.Duration, creds CredentialsFunc, logger *utils.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tenantID:   tenantID,
		creds:      creds,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source used for session expiry.
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

// Invalidate drops the cached session; the next call signs in again.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
}

// token returns a usable session token, signing in when the cache is empty,
// expired, disabled or force is set. Two chats may race through sign-in; the
// later session simply replaces the earlier one.
func (c *Client) token(ctx context.Context, force bool) (string, error) {
	creds := c.creds()
	if creds.Login == "" || creds.Password == "" {
		return "", ErrNotConfigured
	}

	if !force && creds.SessionTTL > 0 {
		c.mu.Lock()
		s := c.session
		c.mu.Unlock()
		if s != nil && c.now().Sub(s.acquiredAt) <= creds.SessionTTL {
			return s.token, nil
		}
	}

	token, err := c.signIn(ctx, creds)
	if err != nil {
		return "", err
	}

	if creds.SessionTTL > 0 {
		c.mu.Lock()
		c.session = &session{token: token, acquiredAt: c.now()}
		c.mu.Unlock()
	}
	return token, nil
}

// WithAuth runs op with a session token. A failure drops the session and
// runs op once more with a fresh one; the second error is returned as is.
func (c *Client) WithAuth(ctx context.Context, operation string, op func(ctx context.Context, token string) error) error {
	attempt := func(force bool) error {
		token, err := c.token(ctx, force)
		if err != nil {
			return err
		}
		return op(ctx, token)
	}

	err := attempt(false)
	if err == nil {
		metrics.SettlementRequests.WithLabelValues(operation, "ok").Inc()
		return nil
	}
	if errors.Is(err, ErrNotConfigured) || ctx.Err() != nil {
		metrics.SettlementRequests.WithLabelValues(operation, "error").Inc()
		return err
	}

	c.logger.Warnf("Settlement %s failed for tenant %s, refreshing session and retrying: %v", operation, c.tenantID, err)
	metrics.SettlementRetries.WithLabelValues(operation).Inc()
	c.Invalidate()

	err = attempt(true)
	metrics.SettlementRequests.WithLabelValues(operation, metrics.Result(err)).Inc()
	if err != nil {
		c.logger.Errorf("Settlement %s failed twice for tenant %s: %v", operation, c.tenantID, err)
	}
	return err
}

// envelope is the common response shape: an explicit status flag plus data.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, operation, method, path, token string, body interface{}) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.SettlementLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", operation, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s returned %d", ErrAuthFailed, operation, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrOperationFailed, operation, resp.StatusCode, string(respBody))
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid %s response: %v", ErrOperationFailed, operation, err)
	}
	if !env.Status {
		return nil, fmt.Errorf("%w: %s: %s", ErrOperationFailed, operation, env.Message)
	}
	return &env, nil
}
