package datafeed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"stock-price-alerts/pkg/models"
)

// QuoteSource fetches the latest quote for a symbol on demand.
type QuoteSource interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (models.Quote, error)
}

// PollingFeed turns a QuoteSource into per-symbol quote sequences by polling
// it on a fixed interval.
type PollingFeed struct {
	source     QuoteSource
	interval   time.Duration
	backoff    Backoff
	bufferSize int
	logger     *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPollingFeed(source QuoteSource, interval time.Duration, backoff Backoff, logger *zap.Logger) *PollingFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollingFeed{
		source:     source,
		interval:   interval,
		backoff:    backoff,
		bufferSize: 16,
		logger:     logger.With(zap.String("feed", source.Name())),
	}
}

func (p *PollingFeed) Name() string {
	return "poll:" + p.source.Name()
}

func (p *PollingFeed) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil {
		p.ctx, p.cancel = context.WithCancel(ctx)
	}
	return nil
}

// Stop ends every open subscription and waits for the pollers to exit.
func (p *PollingFeed) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func (p *PollingFeed) Subscribe(ctx context.Context, symbol string) (*Subscription, error) {
	p.mu.Lock()
	feedCtx := p.ctx
	p.mu.Unlock()

	sub := newSubscription(ctx, symbol, p.bufferSize)
	if feedCtx != nil {
		stop := context.AfterFunc(feedCtx, sub.Close)
		go func() {
			<-sub.Done()
			stop()
		}()
	}

	p.wg.Add(1)
	go p.poll(sub)

	p.logger.Info("Polling subscription started", zap.String("symbol", sub.Symbol), zap.Duration("interval", p.interval))
	return sub, nil
}

func (p *PollingFeed) poll(sub *Subscription) {
	defer p.wg.Done()

	failures := 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-sub.Done():
			sub.finish(nil)
			return
		case <-timer.C:
		}

		quote, err := p.source.FetchQuote(sub.ctx, sub.Symbol)
		if err == nil {
			failures = 0
			if !sub.deliver(quote) {
				sub.finish(nil)
				return
			}
			timer.Reset(p.interval)
			continue
		}

		if sub.ctx.Err() != nil {
			sub.finish(nil)
			return
		}

		err = classify(p.source.Name(), sub.Symbol, err)
		if IsFatal(err) {
			p.logger.Error("Fatal feed error, ending subscription", zap.String("symbol", sub.Symbol), zap.Error(err))
			sub.finish(err)
			return
		}

		failures++
		delay := retryDelay(p.backoff, failures, err)
		p.logger.Warn("Quote fetch failed, backing off",
			zap.String("symbol", sub.Symbol),
			zap.Int("attempt", failures),
			zap.Duration("delay", delay),
			zap.Error(err))

		sub.report(err)
		timer.Reset(delay)
	}
}
