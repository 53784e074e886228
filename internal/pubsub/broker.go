package pubsub

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"stock-price-alerts/pkg/models"
)

// AllSymbols subscribes to every symbol the broker sees.
const AllSymbols = "*"

type Subscriber struct {
	ID        string
	Symbols   map[string]bool
	QuoteChan chan models.Quote
	ctx       context.Context
	cancel    context.CancelFunc
	once      sync.Once
}

func NewSubscriber(id string, symbols []string, bufferSize int) *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())

	return &Subscriber{
		ID:        id,
		Symbols:   symbolSet(symbols),
		QuoteChan: make(chan models.Quote, bufferSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.cancel()
		close(s.QuoteChan)
	})
}

func (s *Subscriber) IsInterestedIn(symbol string) bool {
	return s.Symbols[AllSymbols] || s.Symbols[symbol]
}

// Broker fans live quotes out to stream consumers (gRPC and websocket
// clients). Publishing never blocks the quote pipeline: a full broker queue or
// subscriber buffer drops the quote.
type Broker struct {
	subscribers map[string]*Subscriber
	mu          sync.RWMutex
	quoteChan   chan models.Quote
	stopChan    chan struct{}
	running     bool
	logger      *zap.Logger

	dropped atomic.Uint64
}

func NewBroker(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		subscribers: make(map[string]*Subscriber),
		quoteChan:   make(chan models.Quote, 10000),
		stopChan:    make(chan struct{}),
		logger:      logger,
	}
}

func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	b.mu.Unlock()

	go b.distributeQuotes(ctx)
	return nil
}

func (b *Broker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopChan)

	for id, subscriber := range b.subscribers {
		subscriber.Close()
		delete(b.subscribers, id)
	}
}

func (b *Broker) Subscribe(subscriberID string, symbols []string, bufferSize int) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, exists := b.subscribers[subscriberID]; exists {
		existing.Close()
	}

	subscriber := NewSubscriber(subscriberID, symbols, bufferSize)
	b.subscribers[subscriberID] = subscriber

	return subscriber
}

func (b *Broker) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscriber, exists := b.subscribers[subscriberID]; exists {
		subscriber.Close()
		delete(b.subscribers, subscriberID)
	}
}

func (b *Broker) Publish(quote models.Quote) {
	select {
	case b.quoteChan <- quote:
	default:
		b.dropped.Add(1)
	}
}

func (b *Broker) GetSubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broker) GetSubscriberCountForSymbol(symbol string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subscriber := range b.subscribers {
		if subscriber.IsInterestedIn(symbol) {
			count++
		}
	}
	return count
}

func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Broker) distributeQuotes(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopChan:
			return
		case quote := <-b.quoteChan:
			b.fanOutQuote(quote)
		}
	}
}

func (b *Broker) fanOutQuote(quote models.Quote) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, subscriber := range b.subscribers {
		if !subscriber.IsInterestedIn(quote.Symbol) {
			continue
		}
		select {
		case subscriber.QuoteChan <- quote:
		case <-subscriber.ctx.Done():
		default:
			b.dropped.Add(1)
			b.logger.Debug("Subscriber buffer full, dropping quote",
				zap.String("subscriber", subscriber.ID),
				zap.String("symbol", quote.Symbol))
		}
	}
}

func (b *Broker) UpdateSubscription(subscriberID string, symbols []string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscriber, exists := b.subscribers[subscriberID]
	if !exists {
		return false
	}
	subscriber.Symbols = symbolSet(symbols)

	return true
}

func symbolSet(symbols []string) map[string]bool {
	set := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		if symbol == AllSymbols {
			set[AllSymbols] = true
			continue
		}
		set[models.NormalizeSymbol(symbol)] = true
	}
	return set
}
