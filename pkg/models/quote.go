package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote represents a single timestamped price observation for a stock symbol
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	PrevClose decimal.Decimal `json:"prev_close,omitzero"`
	Timestamp time.Time       `json:"timestamp"`
}

var hundred = decimal.NewFromInt(100)

// ChangePercent is the move from the previous close in percent. It reports
// false when the quote carries no previous close.
func (q Quote) ChangePercent() (decimal.Decimal, bool) {
	if !q.PrevClose.IsPositive() {
		return decimal.Zero, false
	}
	return q.Price.Sub(q.PrevClose).Div(q.PrevClose).Mul(hundred), true
}

// NewQuote creates a new quote with the current timestamp
func NewQuote(symbol string, price decimal.Decimal) Quote {
	return Quote{
		Symbol:    NormalizeSymbol(symbol),
		Price:     price,
		Timestamp: time.Now(),
	}
}

// NormalizeSymbol returns the canonical form of a ticker. Tickers are
// case-insensitive, so "aapl " and "AAPL" name the same instrument.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
