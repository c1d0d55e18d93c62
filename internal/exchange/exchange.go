package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"fieldops-backend/internal/model"

	"github.com/shopspring/decimal"
)

// ErrRateUnavailable is returned whenever the spot-rate source cannot
// produce a usable rate (network failure, timeout, malformed response,
// missing currency pair). Callers that persist financial totals must fail
// rather than substitute a default rate.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

const defaultTimeout = 5 * time.Second

// Converter normalizes an amount in an arbitrary currency to the
// settlement currency.
type Converter interface {
	// Convert returns the settlement-currency amount and the rate that was
	// applied. The rate is 1 when fromCurrency is already the settlement
	// currency.
	Convert(ctx context.Context, amount decimal.Decimal, fromCurrency string) (decimal.Decimal, decimal.Decimal, error)
	// ConvertFromSettlement goes the other way: it prices a
	// settlement-currency amount in toCurrency, returning the converted
	// amount and the settlement->local rate.
	ConvertFromSettlement(ctx context.Context, amount decimal.Decimal, toCurrency string) (decimal.Decimal, decimal.Decimal, error)
}

// Client queries an exchangerate-api style endpoint:
// GET {baseURL}/latest/{from} returning {"conversion_rates": {"USD": 0.0571, ...}}.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Converter against the given base URL. A zero timeout
// falls back to a bounded default so an unresponsive rate source cannot
// hang an allocation.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewClientFromEnv reads EXCHANGE_API_URL, e.g.
// https://v6.exchangerate-api.com/v6/<key>
func NewClientFromEnv() *Client {
	return NewClient(os.Getenv("EXCHANGE_API_URL"), defaultTimeout)
}

type ratesResponse struct {
	ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
}

func (c *Client) Convert(ctx context.Context, amount decimal.Decimal, fromCurrency string) (decimal.Decimal, decimal.Decimal, error) {
	fromCurrency = strings.ToUpper(strings.TrimSpace(fromCurrency))
	if fromCurrency == model.SettlementCurrency {
		return amount, decimal.NewFromInt(1), nil
	}

	rate, err := c.fetchRate(ctx, fromCurrency, model.SettlementCurrency)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return amount.Mul(rate), rate, nil
}

func (c *Client) ConvertFromSettlement(ctx context.Context, amount decimal.Decimal, toCurrency string) (decimal.Decimal, decimal.Decimal, error) {
	toCurrency = strings.ToUpper(strings.TrimSpace(toCurrency))
	if toCurrency == model.SettlementCurrency {
		return amount, decimal.NewFromInt(1), nil
	}

	rate, err := c.fetchRate(ctx, model.SettlementCurrency, toCurrency)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return amount.Mul(rate), rate, nil
}

func (c *Client) fetchRate(ctx context.Context, base, target string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/latest/%s", c.baseURL, base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: rate source returned status %d", ErrRateUnavailable, res.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed response: %v", ErrRateUnavailable, err)
	}

	rate, ok := body.ConversionRates[target]
	if !ok || rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: no %s rate for %s", ErrRateUnavailable, target, base)
	}

	return rate, nil
}
