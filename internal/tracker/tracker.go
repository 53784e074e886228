package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stock-price-alerts/internal/alerts"
	"stock-price-alerts/internal/datafeed"
	"stock-price-alerts/internal/pubsub"
	"stock-price-alerts/pkg/models"
)

var (
	ErrClosed     = errors.New("tracker is closed")
	ErrNotTracked = errors.New("symbol is not tracked")
)

type Health string

const (
	HealthOK       Health = "ok"
	HealthDegraded Health = "degraded"
	HealthFailed   Health = "failed"
)

type SymbolStatus struct {
	Symbol    string    `json:"symbol"`
	Health    Health    `json:"health"`
	Feed      string    `json:"feed"`
	LastQuote time.Time `json:"last_quote,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuoteRecorder receives every quote after it was queued for evaluation.
// History storage and the latest-quote cache implement it.
type QuoteRecorder interface {
	RecordQuote(ctx context.Context, quote models.Quote) error
}

// WatchlistStore persists the set of tracked symbols.
type WatchlistStore interface {
	AddSymbol(ctx context.Context, symbol string) error
	RemoveSymbol(ctx context.Context, symbol string) error
	Watchlist(ctx context.Context) ([]string, error)
}

type Option func(*Tracker)

func WithBroker(broker *pubsub.Broker) Option {
	return func(t *Tracker) {
		t.broker = broker
	}
}

func WithRecorders(recorders ...QuoteRecorder) Option {
	return func(t *Tracker) {
		t.recorders = append(t.recorders, recorders...)
	}
}

func WithWatchlist(store WatchlistStore) Option {
	return func(t *Tracker) {
		t.watchlist = store
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

type tracked struct {
	sub    *datafeed.Subscription
	done   chan struct{}
	status SymbolStatus
}

// Tracker owns one feed subscription per watched symbol and pumps its quotes
// into the alert engine, the quote broker and the recorders. Unsubscribing a
// symbol stops its evaluation but leaves its alert rules in place.
type Tracker struct {
	feed   datafeed.Feed
	engine *alerts.Engine

	broker        *pubsub.Broker
	recorders     []QuoteRecorder
	watchlist     WatchlistStore
	recordTimeout time.Duration
	logger        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	symbols map[string]*tracked
	closed  bool
}

func New(feed datafeed.Feed, engine *alerts.Engine, opts ...Option) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		feed:          feed,
		engine:        engine,
		recordTimeout: 2 * time.Second,
		logger:        zap.NewNop(),
		ctx:           ctx,
		cancel:        cancel,
		symbols:       make(map[string]*tracked),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track starts following symbol. Tracking a symbol that is already active is
// a no-op; a symbol whose feed failed is subscribed again.
func (t *Tracker) Track(ctx context.Context, symbol string) error {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return &models.ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if entry, ok := t.symbols[symbol]; ok && entry.sub != nil {
		return nil
	}

	if t.watchlist != nil {
		if err := t.watchlist.AddSymbol(ctx, symbol); err != nil {
			return fmt.Errorf("persist watchlist symbol %s: %w", symbol, err)
		}
	}

	sub, err := t.feed.Subscribe(t.ctx, symbol)
	if err != nil {
		t.symbols[symbol] = &tracked{status: SymbolStatus{
			Symbol:    symbol,
			Health:    HealthFailed,
			Feed:      t.feed.Name(),
			LastError: err.Error(),
			UpdatedAt: time.Now(),
		}}
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}

	entry := &tracked{
		sub:  sub,
		done: make(chan struct{}),
		status: SymbolStatus{
			Symbol:    symbol,
			Health:    HealthOK,
			Feed:      t.feed.Name(),
			UpdatedAt: time.Now(),
		},
	}
	t.symbols[symbol] = entry

	go t.pump(entry)

	t.logger.Info("Tracking symbol", zap.String("symbol", symbol), zap.String("feed", t.feed.Name()))
	return nil
}

// TrackAll tracks every symbol concurrently and returns the first error.
func (t *Tracker) TrackAll(ctx context.Context, symbols []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			return t.Track(ctx, symbol)
		})
	}
	return g.Wait()
}

// Restore tracks every symbol in the persisted watchlist. Symbols that fail
// to subscribe are logged and left in the failed state.
func (t *Tracker) Restore(ctx context.Context) (int, error) {
	if t.watchlist == nil {
		return 0, nil
	}
	symbols, err := t.watchlist.Watchlist(ctx)
	if err != nil {
		return 0, fmt.Errorf("load watchlist: %w", err)
	}

	restored := 0
	for _, symbol := range symbols {
		if err := t.Track(ctx, symbol); err != nil {
			t.logger.Warn("Failed to restore symbol", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		restored++
	}
	return restored, nil
}

// Untrack stops following symbol and drops its evaluation baseline. Alert
// rules for the symbol are kept.
func (t *Tracker) Untrack(ctx context.Context, symbol string) error {
	symbol = models.NormalizeSymbol(symbol)

	t.mu.Lock()
	entry, ok := t.symbols[symbol]
	if ok {
		delete(t.symbols, symbol)
	}
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("symbol %s: %w", symbol, ErrNotTracked)
	}

	t.stop(entry)

	if t.watchlist != nil {
		if err := t.watchlist.RemoveSymbol(ctx, symbol); err != nil {
			return fmt.Errorf("remove watchlist symbol %s: %w", symbol, err)
		}
	}

	t.logger.Info("Stopped tracking symbol", zap.String("symbol", symbol))
	return nil
}

func (t *Tracker) IsTracked(symbol string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.symbols[models.NormalizeSymbol(symbol)]
	return ok && entry.sub != nil
}

// Tracked lists the symbols with an active subscription.
func (t *Tracker) Tracked() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	symbols := make([]string, 0, len(t.symbols))
	for symbol, entry := range t.symbols {
		if entry.sub != nil {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// Status reports feed health for every known symbol, failed ones included.
func (t *Tracker) Status() []SymbolStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	statuses := make([]SymbolStatus, 0, len(t.symbols))
	for _, entry := range t.symbols {
		statuses = append(statuses, entry.status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Symbol < statuses[j].Symbol
	})
	return statuses
}

// Close untracks every symbol without touching the persisted watchlist.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	entries := make([]*tracked, 0, len(t.symbols))
	for symbol, entry := range t.symbols {
		entries = append(entries, entry)
		delete(t.symbols, symbol)
	}
	t.mu.Unlock()

	for _, entry := range entries {
		t.stop(entry)
	}
	t.cancel()
}

func (t *Tracker) stop(entry *tracked) {
	if entry.sub == nil {
		return
	}
	entry.sub.Close()
	<-entry.done
	if err := t.engine.Forget(context.Background(), entry.status.Symbol); err != nil {
		t.logger.Warn("Failed to reset baseline", zap.String("symbol", entry.status.Symbol), zap.Error(err))
	}
}

func (t *Tracker) pump(entry *tracked) {
	defer close(entry.done)

	sub := entry.sub
	quotes := sub.Quotes()
	errs := sub.Errors()

	for quotes != nil {
		select {
		case quote, ok := <-quotes:
			if !ok {
				quotes = nil
				continue
			}
			t.handleQuote(sub, quote)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			t.handleError(sub, err)
		}
	}

	if err := sub.Err(); err != nil {
		t.logger.Error("Feed ended with a fatal error", zap.String("symbol", sub.Symbol), zap.Error(err))
		t.setStatus(sub, func(s *SymbolStatus) {
			s.Health = HealthFailed
			s.LastError = err.Error()
		})
		t.mu.Lock()
		if current, ok := t.symbols[sub.Symbol]; ok && current.sub == sub {
			current.sub = nil
		}
		t.mu.Unlock()
	}
}

func (t *Tracker) handleQuote(sub *datafeed.Subscription, quote models.Quote) {
	if err := t.engine.Submit(t.ctx, quote); err != nil {
		t.logger.Warn("Quote not evaluated", zap.String("symbol", quote.Symbol), zap.Error(err))
	}

	if t.broker != nil {
		t.broker.Publish(quote)
	}

	for _, recorder := range t.recorders {
		ctx, cancel := context.WithTimeout(t.ctx, t.recordTimeout)
		if err := recorder.RecordQuote(ctx, quote); err != nil {
			t.logger.Warn("Failed to record quote", zap.String("symbol", quote.Symbol), zap.Error(err))
		}
		cancel()
	}

	t.setStatus(sub, func(s *SymbolStatus) {
		s.Health = HealthOK
		s.LastQuote = quote.Timestamp
		s.LastError = ""
	})
}

func (t *Tracker) handleError(sub *datafeed.Subscription, err error) {
	health := HealthDegraded
	if datafeed.IsFatal(err) {
		health = HealthFailed
	}
	t.setStatus(sub, func(s *SymbolStatus) {
		s.Health = health
		s.LastError = err.Error()
	})
}

func (t *Tracker) setStatus(sub *datafeed.Subscription, update func(*SymbolStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.symbols[sub.Symbol]
	if !ok || entry.sub != sub {
		return
	}
	update(&entry.status)
	entry.status.UpdatedAt = time.Now()
}
