package datafeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"stock-price-alerts/pkg/models"
)

const (
	FinnhubProvider       = "finnhub"
	DefaultFinnhubRESTURL = "https://finnhub.io/api/v1"
	DefaultFinnhubWSURL   = "wss://ws.finnhub.io"
)

// FinnhubSource fetches quotes from the Finnhub REST API.
type FinnhubSource struct {
	client *resty.Client
}

// finnhubQuote maps the fields of the /quote response that are used.
type finnhubQuote struct {
	Current   decimal.Decimal `json:"c"`
	PrevClose decimal.Decimal `json:"pc"`
	Timestamp int64           `json:"t"`
}

func NewFinnhubSource(baseURL, apiKey string, timeout time.Duration) *FinnhubSource {
	baseURL = strings.TrimSuffix(baseURL, "/")

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetQueryParam("token", apiKey).
		SetHeader("Accept", "application/json")

	return &FinnhubSource{client: client}
}

func (f *FinnhubSource) Name() string {
	return FinnhubProvider
}

func (f *FinnhubSource) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	symbol = models.NormalizeSymbol(symbol)

	var out finnhubQuote
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get("/quote")
	if err != nil {
		return models.Quote{}, &TransientFetchError{Provider: FinnhubProvider, Symbol: symbol, Err: err}
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return models.Quote{}, &AuthError{Provider: FinnhubProvider, Reason: strings.TrimSpace(resp.String())}
	case code == http.StatusTooManyRequests:
		return models.Quote{}, &RateLimitError{Provider: FinnhubProvider, RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After"))}
	case code != http.StatusOK:
		return models.Quote{}, &TransientFetchError{
			Provider: FinnhubProvider,
			Symbol:   symbol,
			Err:      fmt.Errorf("unexpected status %d", code),
		}
	}

	if !out.Current.IsPositive() {
		return models.Quote{}, &TransientFetchError{Provider: FinnhubProvider, Symbol: symbol, Err: errors.New("no quote data")}
	}

	timestamp := time.Now()
	if out.Timestamp > 0 {
		timestamp = time.Unix(out.Timestamp, 0)
	}

	return models.Quote{Symbol: symbol, Price: out.Current, PrevClose: out.PrevClose, Timestamp: timestamp}, nil
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
