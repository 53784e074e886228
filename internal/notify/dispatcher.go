package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"stock-price-alerts/internal/alerts"
	"stock-price-alerts/pkg/models"
)

const dispatcherSubscriberID = "notify-dispatcher"

// Dispatcher reads fired alerts from the trigger bus and hands them to every
// sink. Each sink has its own queue and worker, so a slow or failing sink
// never delays the others or the alert engine. Delivery failures are logged
// and counted only.
type Dispatcher struct {
	bus     *alerts.TriggerBus
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	sub     *alerts.TriggerSubscriber
	queues  []chan models.AlertEvent
	wg      sync.WaitGroup

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

func NewDispatcher(bus *alerts.TriggerBus, logger *zap.Logger, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		bus:     bus,
		sinks:   sinks,
		timeout: timeout,
		logger:  logger,
	}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}
	d.running = true

	d.queues = make([]chan models.AlertEvent, len(d.sinks))
	for i, sink := range d.sinks {
		d.queues[i] = make(chan models.AlertEvent, 64)
		d.wg.Add(1)
		go d.runSink(ctx, sink, d.queues[i])
	}

	d.sub = d.bus.Subscribe(dispatcherSubscriberID, 256)
	d.wg.Add(1)
	go d.route(d.sub)

	names := make([]string, len(d.sinks))
	for i, sink := range d.sinks {
		names[i] = sink.Name()
	}
	d.logger.Info("Notification dispatcher started", zap.Strings("sinks", names))
	return nil
}

// Stop unsubscribes from the bus, lets queued notifications drain and waits
// for the sink workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	d.bus.Unsubscribe(dispatcherSubscriberID)
	d.wg.Wait()
}

func (d *Dispatcher) route(sub *alerts.TriggerSubscriber) {
	defer d.wg.Done()
	defer func() {
		for _, queue := range d.queues {
			close(queue)
		}
	}()

	for event := range sub.Events {
		for i, queue := range d.queues {
			select {
			case queue <- event:
			default:
				d.dropped.Add(1)
				d.logger.Warn("Notification queue full, dropping alert",
					zap.String("sink", d.sinks[i].Name()),
					zap.String("rule_id", event.RuleID))
			}
		}
	}
}

func (d *Dispatcher) runSink(ctx context.Context, sink Sink, queue <-chan models.AlertEvent) {
	defer d.wg.Done()

	for event := range queue {
		d.deliver(ctx, sink, event)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sink Sink, event models.AlertEvent) {
	sendCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := sink.Notify(sendCtx, event); err != nil {
		d.failed.Add(1)
		d.logger.Error("Failed to deliver alert",
			zap.String("sink", sink.Name()),
			zap.String("rule_id", event.RuleID),
			zap.String("symbol", event.Symbol),
			zap.Error(err))
		return
	}
	d.delivered.Add(1)
}

func (d *Dispatcher) GetStats() DispatcherStats {
	return DispatcherStats{
		Sinks:     len(d.sinks),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

type DispatcherStats struct {
	Sinks     int    `json:"sinks"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}
