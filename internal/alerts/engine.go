package alerts

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"stock-price-alerts/pkg/models"
)

var ErrEngineStopped = errors.New("alert engine is not running")

// Engine feeds quotes to the evaluator on a fixed set of shard workers. A
// symbol always hashes to the same shard, which keeps its quotes in arrival
// order while other symbols are evaluated in parallel.
type Engine struct {
	evaluator  *Evaluator
	triggerBus *TriggerBus
	logger     *zap.Logger

	shards   []chan task
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.RWMutex

	processed atomic.Uint64
	fired     atomic.Uint64
}

// task is one unit of shard work: a quote to evaluate, or a request to drop
// a symbol's baseline after the quotes queued ahead of it.
type task struct {
	quote  models.Quote
	forget bool
}

func NewEngine(evaluator *Evaluator, triggerBus *TriggerBus, logger *zap.Logger, workers, queueSize int) *Engine {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	shards := make([]chan task, workers)
	for i := range shards {
		shards[i] = make(chan task, queueSize)
	}

	return &Engine{
		evaluator:  evaluator,
		triggerBus: triggerBus,
		logger:     logger,
		shards:     shards,
		stopChan:   make(chan struct{}),
	}
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}
	e.running = true

	for i, shard := range e.shards {
		e.wg.Add(1)
		go e.processQuotes(ctx, i, shard)
	}

	e.logger.Info("Alert engine started", zap.Int("workers", len(e.shards)))
	return nil
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopChan)
	e.mu.Unlock()

	e.wg.Wait()
}

// Submit queues a quote for evaluation. It blocks while the symbol's shard is
// full; quotes are never dropped because a lost quote would hide a crossing.
func (e *Engine) Submit(ctx context.Context, quote models.Quote) error {
	return e.enqueue(ctx, task{quote: quote})
}

// Forget drops the symbol's baseline once every quote already queued for it
// has been evaluated. When the engine is stopped the baseline is dropped at
// once.
func (e *Engine) Forget(ctx context.Context, symbol string) error {
	err := e.enqueue(ctx, task{quote: models.Quote{Symbol: symbol}, forget: true})
	if errors.Is(err, ErrEngineStopped) {
		e.evaluator.Forget(symbol)
		return nil
	}
	return err
}

func (e *Engine) enqueue(ctx context.Context, t task) error {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if !running {
		return ErrEngineStopped
	}

	shard := e.shards[shardFor(t.quote.Symbol, len(e.shards))]

	select {
	case shard <- t:
		return nil
	case <-e.stopChan:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Evaluator() *Evaluator {
	return e.evaluator
}

func (e *Engine) processQuotes(ctx context.Context, id int, tasks <-chan task) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case t := <-tasks:
			if t.forget {
				e.evaluator.Forget(t.quote.Symbol)
				continue
			}
			e.evaluateQuote(ctx, id, t.quote)
		}
	}
}

func (e *Engine) evaluateQuote(ctx context.Context, shard int, quote models.Quote) {
	e.processed.Add(1)

	for _, event := range e.evaluator.Evaluate(quote) {
		e.fired.Add(1)

		e.logger.Info("Alert fired",
			zap.String("rule_id", event.RuleID),
			zap.String("symbol", event.Symbol),
			zap.Stringer("direction", event.Direction),
			zap.String("threshold", event.Threshold.String()),
			zap.String("price", event.Price.String()),
			zap.Int("shard", shard))

		if err := e.triggerBus.Publish(ctx, event); err != nil {
			e.logger.Warn("Alert event not published", zap.String("rule_id", event.RuleID), zap.Error(err))
		}
	}
}

func (e *Engine) GetStats() EngineStats {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()

	queued := 0
	for _, shard := range e.shards {
		queued += len(shard)
	}

	return EngineStats{
		Running:         running,
		Workers:         len(e.shards),
		QueuedQuotes:    queued,
		ProcessedQuotes: e.processed.Load(),
		FiredAlerts:     e.fired.Load(),
	}
}

type EngineStats struct {
	Running         bool   `json:"running"`
	Workers         int    `json:"workers"`
	QueuedQuotes    int    `json:"queued_quotes"`
	ProcessedQuotes uint64 `json:"processed_quotes"`
	FiredAlerts     uint64 `json:"fired_alerts"`
}

func shardFor(symbol string, shards int) int {
	h := fnv.New32a()
	h.Write([]byte(models.NormalizeSymbol(symbol)))
	return int(h.Sum32() % uint32(shards))
}
