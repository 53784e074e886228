package datafeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stock-price-alerts/pkg/models"
)

// StreamingFeed receives trades over a single Finnhub WebSocket connection
// and multiplexes them onto per-symbol subscriptions. The connection is
// re-established with backoff when it drops.
type StreamingFeed struct {
	url        string
	dialer     *websocket.Dialer
	backoff    Backoff
	bufferSize int
	logger     *zap.Logger

	mu      sync.Mutex
	subs    map[string]map[*Subscription]struct{}
	conn    *websocket.Conn
	writeMu sync.Mutex
	running bool
	fatal   error
	cancel  context.CancelFunc
	done    chan struct{}
}

type finnhubStreamMessage struct {
	Type string               `json:"type"`
	Data []finnhubStreamTrade `json:"data,omitempty"`
	Msg  string               `json:"msg,omitempty"`
}

type finnhubStreamTrade struct {
	Symbol    string          `json:"s"`
	Price     decimal.Decimal `json:"p"`
	Timestamp int64           `json:"t"` // milliseconds
	Volume    decimal.Decimal `json:"v"`
}

type finnhubCommand struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

func NewStreamingFeed(wsURL, apiKey string, backoff Backoff, logger *zap.Logger) (*StreamingFeed, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid stream url: %w", err)
	}
	if apiKey != "" {
		q := u.Query()
		q.Set("token", apiKey)
		u.RawQuery = q.Encode()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StreamingFeed{
		url:        u.String(),
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoff:    backoff,
		bufferSize: 64,
		logger:     logger.With(zap.String("feed", "stream:"+FinnhubProvider)),
		subs:       make(map[string]map[*Subscription]struct{}),
		done:       make(chan struct{}),
	}, nil
}

func (s *StreamingFeed) Name() string {
	return "stream:" + FinnhubProvider
}

// Start launches the connection loop. Subscriptions made before Start are
// sent to the provider once connected.
func (s *StreamingFeed) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(runCtx)

	return nil
}

func (s *StreamingFeed) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	<-s.done

	s.closeAll(nil)
}

func (s *StreamingFeed) Subscribe(ctx context.Context, symbol string) (*Subscription, error) {
	s.mu.Lock()
	if s.fatal != nil {
		err := s.fatal
		s.mu.Unlock()
		return nil, err
	}

	sub := newSubscription(ctx, symbol, s.bufferSize)
	set, exists := s.subs[sub.Symbol]
	if !exists {
		set = make(map[*Subscription]struct{})
		s.subs[sub.Symbol] = set
	}
	set[sub] = struct{}{}
	s.mu.Unlock()

	if !exists {
		if err := s.syncSymbol(sub.Symbol); err != nil {
			s.logger.Warn("Subscribe request failed, will resend on reconnect", zap.String("symbol", sub.Symbol), zap.Error(err))
		}
	}

	go func() {
		<-sub.Done()
		sub.finish(nil)
		s.remove(sub)
	}()

	s.logger.Info("Stream subscription started", zap.String("symbol", sub.Symbol))
	return sub, nil
}

func (s *StreamingFeed) remove(sub *Subscription) {
	s.mu.Lock()
	set, exists := s.subs[sub.Symbol]
	if !exists {
		s.mu.Unlock()
		return
	}
	delete(set, sub)
	last := len(set) == 0
	if last {
		delete(s.subs, sub.Symbol)
	}
	s.mu.Unlock()

	if last {
		if err := s.syncSymbol(sub.Symbol); err != nil {
			s.logger.Debug("Unsubscribe request failed", zap.String("symbol", sub.Symbol), zap.Error(err))
		}
	}
}

// syncSymbol tells the provider whether symbol is wanted right now. Membership
// is read while holding writeMu, so the last command written always matches
// the latest subscription state even when subscribe and unsubscribe race.
func (s *StreamingFeed) syncSymbol(symbol string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	_, wanted := s.subs[symbol]
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	cmd := finnhubCommand{Type: "unsubscribe", Symbol: symbol}
	if wanted {
		cmd.Type = "subscribe"
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(cmd)
}

func (s *StreamingFeed) run(ctx context.Context) {
	defer close(s.done)

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, resp, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				authErr := &AuthError{Provider: FinnhubProvider, Reason: resp.Status}
				s.logger.Error("Stream rejected API key", zap.Error(authErr))
				s.mu.Lock()
				s.fatal = authErr
				s.mu.Unlock()
				s.closeAll(authErr)
				return
			}

			var feedErr error = &TransientFetchError{Provider: FinnhubProvider, Err: err}
			if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
				feedErr = &RateLimitError{Provider: FinnhubProvider, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
			}

			failures++
			if !s.wait(ctx, failures, feedErr) {
				return
			}
			continue
		}

		failures = 0
		s.logger.Info("Stream connected")

		err = s.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}

		failures++
		if !s.wait(ctx, failures, &TransientFetchError{Provider: FinnhubProvider, Err: err}) {
			return
		}
	}
}

func (s *StreamingFeed) wait(ctx context.Context, attempt int, err error) bool {
	delay := retryDelay(s.backoff, attempt, err)
	s.logger.Warn("Stream unavailable, reconnecting",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(err))
	s.reportAll(err)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// serve subscribes every tracked symbol on a fresh connection and reads
// messages until the connection fails.
func (s *StreamingFeed) serve(ctx context.Context, conn *websocket.Conn) error {
	s.mu.Lock()
	s.conn = conn
	symbols := make([]string, 0, len(s.subs))
	for symbol := range s.subs {
		symbols = append(symbols, symbol)
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		conn.Close()
	}()

	for _, symbol := range symbols {
		if err := s.syncSymbol(symbol); err != nil {
			return err
		}
	}

	for {
		var msg finnhubStreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		switch msg.Type {
		case "trade":
			s.dispatch(msg.Data)
		case "ping":
		case "error":
			s.reportAll(&TransientFetchError{Provider: FinnhubProvider, Err: errors.New(msg.Msg)})
		default:
			s.logger.Debug("Ignoring stream message", zap.String("type", msg.Type))
		}
	}
}

func (s *StreamingFeed) dispatch(trades []finnhubStreamTrade) {
	for _, trade := range trades {
		quote := models.Quote{
			Symbol:    models.NormalizeSymbol(trade.Symbol),
			Price:     trade.Price,
			Timestamp: time.UnixMilli(trade.Timestamp),
		}
		for _, sub := range s.subscribers(quote.Symbol) {
			sub.deliver(quote)
		}
	}
}

func (s *StreamingFeed) subscribers(symbol string) []*Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.subs[symbol]
	subs := make([]*Subscription, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	return subs
}

func (s *StreamingFeed) reportAll(err error) {
	s.mu.Lock()
	all := make([]*Subscription, 0)
	for _, set := range s.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range all {
		sub.report(err)
	}
}

func (s *StreamingFeed) closeAll(err error) {
	s.mu.Lock()
	all := make([]*Subscription, 0)
	for symbol, set := range s.subs {
		for sub := range set {
			all = append(all, sub)
		}
		delete(s.subs, symbol)
	}
	s.mu.Unlock()

	for _, sub := range all {
		sub.finish(err)
	}
}
