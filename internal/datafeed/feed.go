package datafeed

import (
	"context"
	"sync"

	"stock-price-alerts/pkg/models"
)

// Feed yields quotes for subscribed symbols. Polling and streaming transports
// both implement it, so the alert engine never depends on the transport.
type Feed interface {
	Name() string
	Start(ctx context.Context) error
	Subscribe(ctx context.Context, symbol string) (*Subscription, error)
	Stop()
}

// Subscription is a lazy, restartable sequence of quotes for one symbol.
//
// Quotes arrive in non-decreasing timestamp order. Transient and rate-limit
// errors are sent on Errors without ending the sequence. A fatal error is
// sent on Errors, recorded in Err and closes both channels. Close ends the
// sequence without an error.
type Subscription struct {
	Symbol string

	quotes chan models.Quote
	errs   chan error
	ctx    context.Context
	cancel context.CancelFunc

	sendMu  sync.Mutex
	closed  bool
	err     error
	last    models.Quote
	hasLast bool
}

func newSubscription(parent context.Context, symbol string, bufferSize int) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	return &Subscription{
		Symbol: models.NormalizeSymbol(symbol),
		quotes: make(chan models.Quote, bufferSize),
		errs:   make(chan error, 16),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Subscription) Quotes() <-chan models.Quote {
	return s.quotes
}

func (s *Subscription) Errors() <-chan error {
	return s.errs
}

// Done is closed once the subscription is cancelled or has failed.
func (s *Subscription) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Err returns the fatal cause that ended the sequence, if any.
func (s *Subscription) Err() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.err
}

func (s *Subscription) Close() {
	s.finish(nil)
}

// deliver sends a quote to the consumer, blocking until it is read or the
// subscription ends. Quotes older than the last delivered one and exact
// repeats are skipped. It returns false once the subscription is over.
func (s *Subscription) deliver(quote models.Quote) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return false
	}

	quote.Symbol = s.Symbol
	if s.hasLast {
		if quote.Timestamp.Before(s.last.Timestamp) {
			return true
		}
		if quote.Timestamp.Equal(s.last.Timestamp) && quote.Price.Equal(s.last.Price) {
			return true
		}
	}

	select {
	case s.quotes <- quote:
		s.last = quote
		s.hasLast = true
		return true
	case <-s.ctx.Done():
		return false
	}
}

// report sends a non-fatal error out of band. Errors are dropped when the
// consumer is not keeping up; the next one carries the same information.
func (s *Subscription) report(err error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.errs <- err:
	default:
	}
}

func (s *Subscription) finish(err error) {
	s.cancel()

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.err = err

	if err != nil {
		select {
		case s.errs <- err:
		default:
		}
	}

	close(s.quotes)
	close(s.errs)
}
