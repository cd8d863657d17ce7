// Package ratefeed fetches the BTC/RUB market rate for crypto deposits.
package ratefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Fi44er/cashier_bot/utils"
	"github.com/shopspring/decimal"
)

const (
	DefaultKrakenURL = "https://api.kraken.com/0/public/Ticker?pair=XBTUSD"
	DefaultFXURL     = "https://open.er-api.com/v6/latest/USD"

	krakenPair = "XXBTZUSD"
)

// StatusError is a non-200 answer from a rate source.
type StatusError struct {
	Source     string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Source, e.StatusCode)
}

type krakenResponse struct {
	Error  []string                `json:"error"`
	Result map[string]krakenTicker `json:"result"`
}

type krakenTicker struct {
	// c = last trade closed: [price, lot volume]
	LastTrade []string `json:"c"`
}

type fxResponse struct {
	Result         string                     `json:"result"`
	Rates          map[string]decimal.Decimal `json:"rates"`
	TimeNextUpdate int64                      `json:"time_next_update_unix"`
}

// Feed multiplies the Kraken BTC/USD last trade by the USD/RUB rate. The
// USD/RUB rate is cached until the time its source says it will change.
type Feed struct {
	httpClient *http.Client
	krakenURL  string
	fxURL      string
	logger     *utils.Logger
	now        func() time.Time

	mu         sync.Mutex
	usdRub     decimal.Decimal
	nextUpdate time.Time
}

func NewFeed(krakenURL, fxURL string, timeout time.Duration, logger *utils.Logger) *Feed {
	if krakenURL == "" {
		krakenURL = DefaultKrakenURL
	}
	if fxURL == "" {
		fxURL = DefaultFXURL
	}
	return &Feed{
		httpClient: &http.Client{Timeout: timeout},
		krakenURL:  krakenURL,
		fxURL:      fxURL,
		logger:     logger,
		now:        time.Now,
	}
}

// BTCRUB returns the current price of one BTC in rubles.
func (f *Feed) BTCRUB(ctx context.Context) (decimal.Decimal, error) {
	type btcResult struct {
		price decimal.Decimal
		err   error
	}
	btcChan := make(chan btcResult, 1)
	go func() {
		price, err := f.btcUSD(ctx)
		btcChan <- btcResult{price: price, err: err}
	}()

	usdRub, err := f.usdRUB(ctx)
	if err != nil {
		<-btcChan
		return decimal.Zero, fmt.Errorf("failed to get USD/RUB rate: %w", err)
	}

	result := <-btcChan
	if result.err != nil {
		return decimal.Zero, fmt.Errorf("failed to get BTC/USD price: %w", result.err)
	}
	return result.price.Mul(usdRub).Round(2), nil
}

func (f *Feed) get(ctx context.Context, source, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Source: source, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", source, err)
	}
	return nil
}

func (f *Feed) btcUSD(ctx context.Context) (decimal.Decimal, error) {
	var data krakenResponse
	if err := f.get(ctx, "kraken", f.krakenURL, &data); err != nil {
		return decimal.Zero, err
	}
	if len(data.Error) > 0 {
		return decimal.Zero, fmt.Errorf("kraken error: %v", data.Error)
	}

	ticker, ok := data.Result[krakenPair]
	if !ok || len(ticker.LastTrade) == 0 {
		return decimal.Zero, fmt.Errorf("kraken response has no %s price", krakenPair)
	}
	price, err := decimal.NewFromString(ticker.LastTrade[0])
	if err != nil || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid kraken price %q", ticker.LastTrade[0])
	}
	return price, nil
}

func (f *Feed) usdRUB(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.now().Before(f.nextUpdate) {
		return f.usdRub, nil
	}

	var data fxResponse
	if err := f.get(ctx, "fx", f.fxURL, &data); err != nil {
		return decimal.Zero, err
	}
	if data.Result != "success" {
		return decimal.Zero, fmt.Errorf("fx source returned %q", data.Result)
	}
	rate, ok := data.Rates["RUB"]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("fx response has no RUB rate")
	}

	f.usdRub = rate
	f.nextUpdate = time.Unix(data.TimeNextUpdate, 0)
	f.logger.Debugf("USD/RUB rate %s cached until %s", rate, f.nextUpdate.Format(time.RFC3339))
	return rate, nil
}
