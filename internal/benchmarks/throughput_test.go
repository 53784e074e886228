package benchmarks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"stock-price-alerts/internal/alerts"
)

// TestEngineThroughput pushes alternating quotes for several symbols through
// the sharded engine and checks that every crossing fires exactly once per
// rule while reporting the rate achieved.
func TestEngineThroughput(t *testing.T) {
	if testing.Short() {
		t.Skip("throughput measurement skipped in short mode")
	}

	const (
		rulesPerSymbol  = 10
		quotesPerSymbol = 1000
	)

	registry := alerts.NewRegistry()
	for _, symbol := range symbols {
		addRules(t, registry, symbol, rulesPerSymbol, 100)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	triggerBus := alerts.NewTriggerBus(nil)
	triggerBus.Start(ctx)
	defer triggerBus.Stop()

	subscriber := triggerBus.Subscribe("throughput", 100000)

	engine := alerts.NewEngine(alerts.NewEvaluator(registry, nil), triggerBus, nil, 4, 1000)
	engine.Start(ctx)
	defer engine.Stop()

	var received atomic.Int64
	go func() {
		for range subscriber.Events {
			received.Add(1)
		}
	}()

	start := time.Now()
	for i := 0; i < quotesPerSymbol; i++ {
		for _, symbol := range symbols {
			if err := engine.Submit(ctx, alternating(symbol, i)); err != nil {
				t.Fatal(err)
			}
		}
	}

	// The first quote is the baseline; every odd quote after it crosses up.
	expected := int64(len(symbols) * rulesPerSymbol * (quotesPerSymbol / 2))
	deadline := time.Now().Add(20 * time.Second)
	for received.Load() < expected && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	duration := time.Since(start)

	total := len(symbols) * quotesPerSymbol
	t.Logf("Evaluated %d quotes against %d rules in %v (%.0f quotes/second)",
		total, len(symbols)*rulesPerSymbol, duration, float64(total)/duration.Seconds())

	if got := received.Load(); got != expected {
		t.Errorf("expected %d alert events, got %d", expected, got)
	}

	stats := engine.GetStats()
	if stats.ProcessedQuotes != uint64(total) {
		t.Errorf("expected %d processed quotes, got %d", total, stats.ProcessedQuotes)
	}
}
