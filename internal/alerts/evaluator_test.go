package alerts

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-price-alerts/pkg/models"
)

// feed evaluates prices in order with increasing timestamps and returns the
// prices at which events fired.
func feed(t *testing.T, evaluator *Evaluator, symbol string, prices ...float64) []float64 {
	t.Helper()
	return feedAt(t, evaluator, symbol, 0, prices...)
}

// feedAt is feed with timestamps starting offset after feed's.
func feedAt(t *testing.T, evaluator *Evaluator, symbol string, offset time.Duration, prices ...float64) []float64 {
	t.Helper()

	start := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC).Add(offset)
	var fired []float64
	for i, price := range prices {
		quote := models.Quote{
			Symbol:    symbol,
			Price:     decimal.NewFromFloat(price),
			Timestamp: start.Add(time.Duration(i) * time.Second),
		}
		for _, event := range evaluator.Evaluate(quote) {
			f, _ := event.Price.Float64()
			fired = append(fired, f)
		}
	}
	return fired
}

func setupEvaluator(t *testing.T, rules ...*models.AlertRule) (*Evaluator, *Registry) {
	t.Helper()
	registry := NewRegistry()
	for _, rule := range rules {
		require.NoError(t, registry.Add(rule))
	}
	return NewEvaluator(registry, nil), registry
}

func TestEvaluator_FiresOnceOnUpwardCrossing(t *testing.T) {
	evaluator, _ := setupEvaluator(t, newRule("ABC", models.DirectionAbove, 100))

	fired := feed(t, evaluator, "ABC", 98, 99, 101, 102)

	assert.Equal(t, []float64{101}, fired)
}

func TestEvaluator_RearmsAfterReturnCrossing(t *testing.T) {
	evaluator, _ := setupEvaluator(t, newRule("ABC", models.DirectionAbove, 100))

	fired := feed(t, evaluator, "ABC", 98, 101, 102, 99, 103)

	assert.Equal(t, []float64{101, 103}, fired)
}

func TestEvaluator_FirstQuoteOnlySetsBaseline(t *testing.T) {
	evaluator, _ := setupEvaluator(t, newRule("ABC", models.DirectionAbove, 100))

	assert.Empty(t, feed(t, evaluator, "ABC", 101, 102))

	quote, ok := evaluator.LastQuote("abc")
	require.True(t, ok)
	assert.True(t, quote.Price.Equal(decimal.NewFromInt(102)))
}

func TestEvaluator_NoBaselineThenReturnAndCross(t *testing.T) {
	evaluator, _ := setupEvaluator(t, newRule("ABC", models.DirectionAbove, 100))

	fired := feed(t, evaluator, "ABC", 101, 102, 99, 103)

	assert.Equal(t, []float64{103}, fired)
}

func TestEvaluator_EqualityIsACrossing(t *testing.T) {
	evaluator, _ := setupEvaluator(t, newRule("ABC", models.DirectionBelow, 100))

	fired := feed(t, evaluator, "ABC", 105, 100, 99, 98)

	assert.Equal(t, []float64{100}, fired)
}

func TestEvaluator_MonotonicSequenceFiresExactlyOnce(t *testing.T) {
	evaluator, _ := setupEvaluator(t, newRule("ABC", models.DirectionAbove, 100))

	prices := make([]float64, 0, 50)
	for p := 80.0; p < 130; p++ {
		prices = append(prices, p)
	}

	assert.Equal(t, []float64{100}, feed(t, evaluator, "ABC", prices...))
}

func TestEvaluator_DisarmedRuleDoesNotFireUntilRearmed(t *testing.T) {
	rule := newRule("ABC", models.DirectionAbove, 100)
	evaluator, registry := setupEvaluator(t, rule)
	require.NoError(t, registry.Disarm(rule.ID))

	assert.Empty(t, feed(t, evaluator, "ABC", 101, 102, 105))

	got, _ := registry.Get(rule.ID)
	assert.False(t, got.Armed)
}

func TestEvaluator_DisarmedRuleIgnoresMovesOnArmedSide(t *testing.T) {
	rule := newRule("ABC", models.DirectionAbove, 100)
	evaluator, registry := setupEvaluator(t, rule)

	assert.Empty(t, feed(t, evaluator, "ABC", 95))
	require.NoError(t, registry.Disarm(rule.ID))

	assert.Empty(t, feedAt(t, evaluator, "ABC", time.Minute, 95, 96, 101, 99, 102))

	got, _ := registry.Get(rule.ID)
	assert.False(t, got.Armed)
	assert.True(t, got.Paused)

	require.NoError(t, registry.Rearm(rule.ID))
	assert.Equal(t, []float64{101}, feedAt(t, evaluator, "ABC", time.Hour, 99, 101))
}

func TestEvaluator_FiredRuleNeedsCrossingBackToRearm(t *testing.T) {
	rule := newRule("ABC", models.DirectionAbove, 100)
	evaluator, registry := setupEvaluator(t, rule)

	assert.Equal(t, []float64{101}, feed(t, evaluator, "ABC", 98, 101))

	// A new baseline below the threshold is not a crossing back.
	evaluator.Forget("ABC")
	assert.Empty(t, feedAt(t, evaluator, "ABC", time.Minute, 95, 96, 105))

	got, _ := registry.Get(rule.ID)
	assert.False(t, got.Armed)

	assert.Equal(t, []float64{103}, feedAt(t, evaluator, "ABC", time.Hour, 99, 103))
}

func TestEvaluator_ChangePercentRule(t *testing.T) {
	rule := newRule("ABC", models.DirectionBelow, -5)
	rule.Metric = models.MetricChangePercent
	evaluator, _ := setupEvaluator(t, rule)

	start := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	prevClose := decimal.NewFromInt(200)
	var fired []string
	for i, price := range []int64{198, 194, 189, 187, 192, 189} {
		quote := models.Quote{
			Symbol:    "ABC",
			Price:     decimal.NewFromInt(price),
			PrevClose: prevClose,
			Timestamp: start.Add(time.Duration(i) * time.Second),
		}
		for _, event := range evaluator.Evaluate(quote) {
			assert.Equal(t, models.MetricChangePercent, event.Metric)
			fired = append(fired, event.Value.String())
		}
	}

	// -5.5% fires, -4% rearms, -5.5% fires again.
	assert.Equal(t, []string{"-5.5", "-5.5"}, fired)
}

func TestEvaluator_ChangeRuleSkipsQuotesWithoutPrevClose(t *testing.T) {
	rule := newRule("ABC", models.DirectionAbove, 1)
	rule.Metric = models.MetricChangePercent
	evaluator, _ := setupEvaluator(t, rule)

	assert.Empty(t, feed(t, evaluator, "ABC", 100, 150))
}

func TestEvaluator_RemovedRuleNeverFires(t *testing.T) {
	rule := newRule("ABC", models.DirectionAbove, 100)
	evaluator, registry := setupEvaluator(t, rule)

	assert.Empty(t, feed(t, evaluator, "ABC", 95))
	require.NoError(t, registry.Remove(rule.ID))

	start := time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)
	events := evaluator.Evaluate(models.Quote{Symbol: "ABC", Price: decimal.NewFromInt(120), Timestamp: start})
	assert.Empty(t, events)
}

func TestEvaluator_MultipleRulesPerSymbol(t *testing.T) {
	up := newRule("ABC", models.DirectionAbove, 100)
	down := newRule("ABC", models.DirectionBelow, 90)
	other := newRule("XYZ", models.DirectionAbove, 1)
	evaluator, _ := setupEvaluator(t, up, down, other)

	fired := feed(t, evaluator, "ABC", 95, 101, 89, 101)

	assert.Equal(t, []float64{101, 89, 101}, fired)
}

func TestEvaluator_IgnoresOutOfOrderQuotes(t *testing.T) {
	evaluator, _ := setupEvaluator(t, newRule("ABC", models.DirectionAbove, 100))
	now := time.Now()

	assert.Empty(t, evaluator.Evaluate(models.Quote{Symbol: "ABC", Price: decimal.NewFromInt(95), Timestamp: now}))
	assert.Empty(t, evaluator.Evaluate(models.Quote{Symbol: "ABC", Price: decimal.NewFromInt(110), Timestamp: now.Add(-time.Second)}))

	quote, _ := evaluator.LastQuote("ABC")
	assert.True(t, quote.Price.Equal(decimal.NewFromInt(95)))
}

func TestEvaluator_ForgetResetsBaseline(t *testing.T) {
	evaluator, _ := setupEvaluator(t, newRule("ABC", models.DirectionAbove, 100))

	assert.Empty(t, feed(t, evaluator, "ABC", 95))
	evaluator.Forget("ABC")

	_, ok := evaluator.LastQuote("ABC")
	assert.False(t, ok)
	assert.Empty(t, feed(t, evaluator, "ABC", 105), "a fresh baseline is needed after forgetting")
}
