package alerts

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"stock-price-alerts/pkg/models"
)

// Evaluator runs the per-rule Armed/Fired state machine against incoming
// quotes. It keeps the last observed quote per symbol as the crossing
// baseline; the first quote for a symbol only establishes that baseline.
//
// Quotes for one symbol must be passed to Evaluate sequentially. Different
// symbols may be evaluated concurrently.
type Evaluator struct {
	registry *Registry
	logger   *zap.Logger

	mu   sync.RWMutex
	last map[string]models.Quote
}

func NewEvaluator(registry *Registry, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		registry: registry,
		logger:   logger,
		last:     make(map[string]models.Quote),
	}
}

func (e *Evaluator) Evaluate(quote models.Quote) []models.AlertEvent {
	quote.Symbol = models.NormalizeSymbol(quote.Symbol)

	e.mu.Lock()
	prev, hasBaseline := e.last[quote.Symbol]
	if hasBaseline && quote.Timestamp.Before(prev.Timestamp) {
		e.mu.Unlock()
		e.logger.Debug("Ignoring out-of-order quote",
			zap.String("symbol", quote.Symbol),
			zap.Time("timestamp", quote.Timestamp),
			zap.Time("baseline", prev.Timestamp))
		return nil
	}
	e.last[quote.Symbol] = quote
	e.mu.Unlock()

	if !hasBaseline {
		return nil
	}

	var events []models.AlertEvent
	for _, rule := range e.registry.List(quote.Symbol) {
		prevValue, ok := rule.Value(prev)
		if !ok {
			continue
		}
		curValue, ok := rule.Value(quote)
		if !ok {
			continue
		}

		switch {
		case rule.Armed && rule.Crossed(prevValue, curValue):
			fired, err := e.registry.Fire(rule.ID, quote.Timestamp)
			if err != nil {
				if !errors.Is(err, ErrRuleNotFound) {
					e.logger.Error("Failed to fire rule", zap.String("rule_id", rule.ID), zap.Error(err))
				}
				continue
			}
			if !fired {
				continue
			}
			events = append(events, models.NewAlertEvent(rule, quote))

		case !rule.Armed && !rule.Paused && rule.CrossedBack(prevValue, curValue):
			rearmed, err := e.registry.rearmFired(rule.ID)
			if err != nil {
				if !errors.Is(err, ErrRuleNotFound) {
					e.logger.Error("Failed to rearm rule", zap.String("rule_id", rule.ID), zap.Error(err))
				}
				continue
			}
			if rearmed {
				e.logger.Debug("Rule rearmed",
					zap.String("rule_id", rule.ID),
					zap.String("symbol", quote.Symbol),
					zap.String("value", curValue.String()))
			}
		}
	}

	return events
}

func (e *Evaluator) LastQuote(symbol string) (models.Quote, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	quote, ok := e.last[models.NormalizeSymbol(symbol)]
	return quote, ok
}

// Forget drops the baseline for a symbol. The next quote after a resubscribe
// starts a fresh baseline instead of being compared with a stale price.
func (e *Evaluator) Forget(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.last, models.NormalizeSymbol(symbol))
}
