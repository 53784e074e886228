package alerts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"stock-price-alerts/pkg/models"
)

var ErrBusStopped = errors.New("trigger bus is not running")

type TriggerSubscriber struct {
	ID     string
	Events chan models.AlertEvent
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewTriggerSubscriber(id string, bufferSize int) *TriggerSubscriber {
	ctx, cancel := context.WithCancel(context.Background())

	return &TriggerSubscriber{
		ID:     id,
		Events: make(chan models.AlertEvent, bufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (ts *TriggerSubscriber) Close() {
	ts.once.Do(func() {
		ts.cancel()
		close(ts.Events)
	})
}

// TriggerBus fans alert events out to every subscriber. A subscriber whose
// buffer is full misses the event; the other subscribers are not held up.
type TriggerBus struct {
	subscribers map[string]*TriggerSubscriber
	mu          sync.RWMutex
	eventChan   chan models.AlertEvent
	stopChan    chan struct{}
	running     bool
	logger      *zap.Logger

	dropped atomic.Uint64
}

func NewTriggerBus(logger *zap.Logger) *TriggerBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriggerBus{
		subscribers: make(map[string]*TriggerSubscriber),
		eventChan:   make(chan models.AlertEvent, 1000),
		stopChan:    make(chan struct{}),
		logger:      logger,
	}
}

func (tb *TriggerBus) Start(ctx context.Context) error {
	tb.mu.Lock()
	if tb.running {
		tb.mu.Unlock()
		return nil
	}
	tb.running = true
	tb.mu.Unlock()

	go tb.distributeEvents(ctx)
	return nil
}

func (tb *TriggerBus) Stop() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if !tb.running {
		return
	}

	tb.running = false
	close(tb.stopChan)

	for id, subscriber := range tb.subscribers {
		subscriber.Close()
		delete(tb.subscribers, id)
	}
}

func (tb *TriggerBus) Subscribe(subscriberID string, bufferSize int) *TriggerSubscriber {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if existing, exists := tb.subscribers[subscriberID]; exists {
		existing.Close()
	}

	subscriber := NewTriggerSubscriber(subscriberID, bufferSize)
	tb.subscribers[subscriberID] = subscriber

	return subscriber
}

func (tb *TriggerBus) Unsubscribe(subscriberID string) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if subscriber, exists := tb.subscribers[subscriberID]; exists {
		subscriber.Close()
		delete(tb.subscribers, subscriberID)
	}
}

func (tb *TriggerBus) Publish(ctx context.Context, event models.AlertEvent) error {
	select {
	case tb.eventChan <- event:
		return nil
	case <-tb.stopChan:
		return ErrBusStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tb *TriggerBus) GetSubscriberCount() int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return len(tb.subscribers)
}

func (tb *TriggerBus) distributeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tb.stopChan:
			return
		case event := <-tb.eventChan:
			tb.fanOutEvent(event)
		}
	}
}

func (tb *TriggerBus) fanOutEvent(event models.AlertEvent) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	for _, subscriber := range tb.subscribers {
		select {
		case <-subscriber.ctx.Done():
			continue
		default:
		}

		select {
		case subscriber.Events <- event:
		default:
			tb.dropped.Add(1)
			tb.logger.Warn("Subscriber buffer full, dropping alert event",
				zap.String("subscriber", subscriber.ID),
				zap.String("rule_id", event.RuleID))
		}
	}
}

func (tb *TriggerBus) GetStats() TriggerBusStats {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	return TriggerBusStats{
		Running:         tb.running,
		SubscriberCount: len(tb.subscribers),
		QueuedEvents:    len(tb.eventChan),
		DroppedEvents:   tb.dropped.Load(),
	}
}

type TriggerBusStats struct {
	Running         bool   `json:"running"`
	SubscriberCount int    `json:"subscriber_count"`
	QueuedEvents    int    `json:"queued_events"`
	DroppedEvents   uint64 `json:"dropped_events"`
}
