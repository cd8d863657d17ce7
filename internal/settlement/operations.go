package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Fi44er/cashier_bot/internal/metrics"
	"github.com/shopspring/decimal"
)

type signInRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type signInResponse struct {
	Token string `json:"token"`
}

func (c *Client) signIn(ctx context.Context, creds Credentials) (string, error) {
	metrics.SettlementSignIns.Inc()
	c.logger.Debugf("Signing in to settlement API for tenant %s", c.tenantID)

	env, err := c.do(ctx, "signin", http.MethodPost, "/api/agent/signin", "",
		signInRequest{Login: creds.Login, Password: creds.Password})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	var out signInResponse
	if err := json.Unmarshal(env.Data, &out); err != nil || out.Token == "" {
		return "", fmt.Errorf("%w: sign-in returned no session", ErrAuthFailed)
	}
	return out.Token, nil
}

type RegisterRequest struct {
	Email    string
	Password string
	Login    string
}

type registerPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Login    string `json:"login"`
	ParentID string `json:"parent_id"`
}

type registerResponse struct {
	ID json.RawMessage `json:"id"`
}

// RegisterAccount creates a player under the tenant's parent agent and
// returns the platform account id.
func (c *Client) RegisterAccount(ctx context.Context, req RegisterRequest) (string, error) {
	creds := c.creds()
	if creds.ParentID == "" {
		return "", ErrNotConfigured
	}

	var platformID string
	err := c.WithAuth(ctx, "register", func(ctx context.Context, token string) error {
		env, err := c.do(ctx, "register", http.MethodPost, "/api/agent/players", token, registerPayload{
			Email:    req.Email,
			Password: req.Password,
			Login:    req.Login,
			ParentID: creds.ParentID,
		})
		if err != nil {
			return err
		}

		var out registerResponse
		if err := json.Unmarshal(env.Data, &out); err != nil {
			return fmt.Errorf("%w: invalid register response: %v", ErrOperationFailed, err)
		}
		platformID = strings.Trim(string(out.ID), `"`)
		if platformID == "" || platformID == "null" {
			return fmt.Errorf("%w: register returned no account id", ErrOperationFailed)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return platformID, nil
}

// Balance is one currency wallet of a platform account.
type Balance struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"balance"`
	Main     bool            `json:"main"`
}

// FetchBalance returns the main currency wallet, or the only one when none
// is flagged. An account without wallets is an error, not a zero balance.
func (c *Client) FetchBalance(ctx context.Context, platformID string) (*Balance, error) {
	var result *Balance
	err := c.WithAuth(ctx, "balance", func(ctx context.Context, token string) error {
		path := fmt.Sprintf("/api/agent/players/%s/balance", url.PathEscape(platformID))
		env, err := c.do(ctx, "balance", http.MethodGet, path, token, nil)
		if err != nil {
			return err
		}

		var wallets []Balance
		if err := json.Unmarshal(env.Data, &wallets); err != nil {
			return fmt.Errorf("%w: invalid balance response: %v", ErrOperationFailed, err)
		}
		result, err = pickMainWallet(wallets)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func pickMainWallet(wallets []Balance) (*Balance, error) {
	if len(wallets) == 0 {
		return nil, ErrNoWallet
	}
	for i := range wallets {
		if wallets[i].Main {
			return &wallets[i], nil
		}
	}
	return &wallets[0], nil
}

type transferPayload struct {
	Amount      json.Number `json:"amount"`
	Currency    int         `json:"currency"`
	MoneyStatus int         `json:"money_status"`
	Reference   string      `json:"reference,omitempty"`
}

// Deposit credits amount to the platform account.
func (c *Client) Deposit(ctx context.Context, platformID string, amount decimal.Decimal, reference string) error {
	return c.transfer(ctx, "deposit", platformID, amount.Abs(), reference)
}

// Withdraw debits amount from the platform account. The API expects the
// same magnitude as a negative number.
func (c *Client) Withdraw(ctx context.Context, platformID string, amount decimal.Decimal, reference string) error {
	return c.transfer(ctx, "withdraw", platformID, amount.Abs().Neg(), reference)
}

func (c *Client) transfer(ctx context.Context, operation, platformID string, signed decimal.Decimal, reference string) error {
	creds := c.creds()
	return c.WithAuth(ctx, operation, func(ctx context.Context, token string) error {
		path := fmt.Sprintf("/api/agent/players/%s/transfer", url.PathEscape(platformID))
		env, err := c.do(ctx, operation, http.MethodPost, path, token, transferPayload{
			Amount:      json.Number(signed.StringFixed(2)),
			Currency:    creds.CurrencyCode,
			MoneyStatus: creds.MoneyStatus,
			Reference:   reference,
		})
		if err != nil {
			return err
		}
		return transferAccepted(env.Data)
	})
}

// transferAccepted checks the data part of a transfer response, which is
// either a bare boolean or an object carrying its own success flag.
func transferAccepted(data json.RawMessage) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte("true")) {
		return nil
	}
	if bytes.Equal(data, []byte("false")) {
		return fmt.Errorf("%w: transfer declined", ErrOperationFailed)
	}

	var obj struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.Join(ErrOperationFailed, err)
	}
	if obj.Success != nil && !*obj.Success {
		return fmt.Errorf("%w: transfer declined: %s", ErrOperationFailed, obj.Message)
	}
	return nil
}
