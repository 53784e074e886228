package datafeed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stock-price-alerts/pkg/models"
)

const MockProvider = "mock"

// MockSource simulates stock prices with a random walk. It needs no API key
// and backs offline runs and tests.
type MockSource struct {
	mu     sync.Mutex
	prices map[string]float64
	opens  map[string]float64
	rng    *rand.Rand
}

// NewMockSource creates a mock source seeded with realistic starting prices
func NewMockSource(seed int64) *MockSource {
	initialPrices := map[string]float64{
		"AAPL":  228.00,
		"MSFT":  415.00,
		"GOOGL": 165.00,
		"AMZN":  186.00,
		"TSLA":  220.00,
		"NVDA":  118.00,
		"META":  520.00,
	}

	return &MockSource{
		prices: initialPrices,
		opens:  make(map[string]float64),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (m *MockSource) Name() string {
	return MockProvider
}

// SetPrice pins the current price of a symbol.
func (m *MockSource) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[models.NormalizeSymbol(symbol)] = price
}

// FetchQuote advances the random walk for the symbol by one step
func (m *MockSource) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return models.Quote{}, err
	}

	symbol = models.NormalizeSymbol(symbol)

	m.mu.Lock()
	current, exists := m.prices[symbol]
	if !exists {
		// Unknown tickers start somewhere between $10 and $500
		current = 10 + m.rng.Float64()*490
	}
	// The first price seen for a symbol stands in for the previous close
	prevClose, seen := m.opens[symbol]
	if !seen {
		prevClose = current
		m.opens[symbol] = current
	}

	// Move up or down by 0.05% to 1% of the current price
	maxChange := current * 0.01
	minChange := current * 0.0005
	change := minChange + m.rng.Float64()*(maxChange-minChange)
	if m.rng.Float64() < 0.5 {
		change = -change
	}

	next := current + change
	if next < 0.01 {
		next = 0.01
	}
	m.prices[symbol] = next
	m.mu.Unlock()

	return models.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(next).Round(2),
		PrevClose: decimal.NewFromFloat(prevClose).Round(2),
		Timestamp: time.Now(),
	}, nil
}
