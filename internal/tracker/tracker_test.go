package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-price-alerts/internal/alerts"
	"stock-price-alerts/internal/datafeed"
	"stock-price-alerts/internal/pubsub"
	"stock-price-alerts/pkg/models"
)

// funcSource adapts a function to datafeed.QuoteSource.
type funcSource func(ctx context.Context, symbol string) (models.Quote, error)

func (f funcSource) Name() string { return "test" }

func (f funcSource) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	return f(ctx, symbol)
}

// priceSequence returns the prices in order, then repeats the last one.
func priceSequence(prices ...float64) funcSource {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, symbol string) (models.Quote, error) {
		mu.Lock()
		defer mu.Unlock()
		p := prices[i]
		if i < len(prices)-1 {
			i++
		}
		return models.NewQuote(symbol, decimal.NewFromFloat(p)), nil
	}
}

func failing(err error) funcSource {
	return func(ctx context.Context, symbol string) (models.Quote, error) {
		return models.Quote{}, err
	}
}

type memoryRecorder struct {
	mu     sync.Mutex
	quotes []models.Quote
}

func (m *memoryRecorder) RecordQuote(ctx context.Context, quote models.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes = append(m.quotes, quote)
	return nil
}

func (m *memoryRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.quotes)
}

type memoryWatchlist struct {
	mu      sync.Mutex
	symbols []string
}

func (m *memoryWatchlist) AddSymbol(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.symbols {
		if s == symbol {
			return nil
		}
	}
	m.symbols = append(m.symbols, symbol)
	return nil
}

func (m *memoryWatchlist) RemoveSymbol(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.symbols {
		if s == symbol {
			m.symbols = append(m.symbols[:i], m.symbols[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (m *memoryWatchlist) Watchlist(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.symbols...), nil
}

type harness struct {
	registry *alerts.Registry
	bus      *alerts.TriggerBus
	engine   *alerts.Engine
	events   *alerts.TriggerSubscriber
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := alerts.NewRegistry()
	bus := alerts.NewTriggerBus(nil)
	require.NoError(t, bus.Start(ctx))
	events := bus.Subscribe("test", 16)

	engine := alerts.NewEngine(alerts.NewEvaluator(registry, nil), bus, nil, 2, 16)
	require.NoError(t, engine.Start(ctx))

	t.Cleanup(func() {
		engine.Stop()
		bus.Stop()
	})
	return &harness{registry: registry, bus: bus, engine: engine, events: events}
}

func newFeed(t *testing.T, source datafeed.QuoteSource) datafeed.Feed {
	t.Helper()
	backoff := datafeed.Backoff{Initial: 5 * time.Millisecond, Max: 10 * time.Millisecond}
	feed := datafeed.NewPollingFeed(source, 5*time.Millisecond, backoff, nil)
	require.NoError(t, feed.Start(context.Background()))
	t.Cleanup(feed.Stop)
	return feed
}

func statusOf(tr *Tracker, symbol string) SymbolStatus {
	for _, s := range tr.Status() {
		if s.Symbol == symbol {
			return s
		}
	}
	return SymbolStatus{}
}

func TestTracker_PumpsQuotesThroughPipeline(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.registry.Add(models.NewAlertRule("AAPL", models.DirectionAbove, decimal.NewFromInt(100), "")))

	broker := pubsub.NewBroker(nil)
	require.NoError(t, broker.Start(context.Background()))
	defer broker.Stop()
	quotes := broker.Subscribe("test", []string{"AAPL"}, 64)

	recorder := &memoryRecorder{}
	tr := New(newFeed(t, priceSequence(98, 101, 102)), h.engine,
		WithBroker(broker), WithRecorders(recorder))
	defer tr.Close()

	require.NoError(t, tr.Track(context.Background(), "aapl"))
	assert.Equal(t, []string{"AAPL"}, tr.Tracked())

	select {
	case event := <-h.events.Events:
		assert.Equal(t, "AAPL", event.Symbol)
		assert.True(t, event.Price.Equal(decimal.NewFromInt(101)))
	case <-time.After(2 * time.Second):
		t.Fatal("no alert event")
	}

	select {
	case q := <-quotes.QuoteChan:
		assert.Equal(t, "AAPL", q.Symbol)
	case <-time.After(time.Second):
		t.Fatal("no quote on broker")
	}

	assert.Eventually(t, func() bool { return recorder.count() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, HealthOK, statusOf(tr, "AAPL").Health)
}

func TestTracker_TrackIsIdempotent(t *testing.T) {
	h := newHarness(t)
	tr := New(newFeed(t, priceSequence(10)), h.engine)
	defer tr.Close()

	require.NoError(t, tr.Track(context.Background(), "MSFT"))
	require.NoError(t, tr.Track(context.Background(), " msft "))
	assert.Equal(t, []string{"MSFT"}, tr.Tracked())

	var verr *models.ValidationError
	assert.ErrorAs(t, tr.Track(context.Background(), "  "), &verr)
}

func TestTracker_UntrackKeepsRules(t *testing.T) {
	h := newHarness(t)
	rule := models.NewAlertRule("AAPL", models.DirectionBelow, decimal.NewFromInt(50), "")
	require.NoError(t, h.registry.Add(rule))

	tr := New(newFeed(t, priceSequence(60)), h.engine)
	defer tr.Close()

	require.NoError(t, tr.Track(context.Background(), "AAPL"))
	require.NoError(t, tr.Untrack(context.Background(), "AAPL"))

	assert.Empty(t, tr.Tracked())
	assert.False(t, tr.IsTracked("AAPL"))
	assert.Len(t, h.registry.List("AAPL"), 1)
	assert.ErrorIs(t, tr.Untrack(context.Background(), "AAPL"), ErrNotTracked)
}

func TestTracker_TransientErrorsDegrade(t *testing.T) {
	h := newHarness(t)
	source := failing(&datafeed.TransientFetchError{Provider: "test", Symbol: "AAPL", Err: errors.New("503")})
	tr := New(newFeed(t, source), h.engine)
	defer tr.Close()

	require.NoError(t, tr.Track(context.Background(), "AAPL"))

	assert.Eventually(t, func() bool {
		return statusOf(tr, "AAPL").Health == HealthDegraded
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, tr.IsTracked("AAPL"))
}

func TestTracker_FatalErrorEndsTracking(t *testing.T) {
	h := newHarness(t)
	tr := New(newFeed(t, failing(&datafeed.AuthError{Provider: "test", Reason: "invalid key"})), h.engine)
	defer tr.Close()

	require.NoError(t, tr.Track(context.Background(), "AAPL"))

	assert.Eventually(t, func() bool {
		return statusOf(tr, "AAPL").Health == HealthFailed && !tr.IsTracked("AAPL")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, statusOf(tr, "AAPL").LastError, "invalid key")
	assert.Empty(t, tr.Tracked())
}

func TestTracker_WatchlistPersistence(t *testing.T) {
	h := newHarness(t)
	store := &memoryWatchlist{}
	feed := newFeed(t, priceSequence(10))

	tr := New(feed, h.engine, WithWatchlist(store))
	require.NoError(t, tr.TrackAll(context.Background(), []string{"AAPL", "TSLA"}))
	require.NoError(t, tr.Untrack(context.Background(), "TSLA"))
	tr.Close()

	symbols, _ := store.Watchlist(context.Background())
	assert.Equal(t, []string{"AAPL"}, symbols)

	restored := New(feed, h.engine, WithWatchlist(store))
	defer restored.Close()
	n, err := restored.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"AAPL"}, restored.Tracked())

	assert.ErrorIs(t, tr.Track(context.Background(), "AAPL"), ErrClosed)
}
