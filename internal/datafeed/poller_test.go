package datafeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-price-alerts/pkg/models"
)

type step struct {
	price float64
	at    time.Time
	err   error
}

// scriptedSource replays a fixed list of results, then repeats the last one.
type scriptedSource struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := min(s.calls, len(s.steps)-1)
	s.calls++
	st := s.steps[i]
	if st.err != nil {
		return models.Quote{}, st.err
	}
	return models.Quote{Symbol: symbol, Price: decimal.NewFromFloat(st.price), Timestamp: st.at}, nil
}

func fastBackoff() Backoff {
	return Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond}
}

func nextQuote(t *testing.T, sub *Subscription) models.Quote {
	t.Helper()
	select {
	case q, ok := <-sub.Quotes():
		require.True(t, ok, "quote channel closed")
		return q
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for quote")
		return models.Quote{}
	}
}

func TestPollingFeed_DeliversInTimestampOrder(t *testing.T) {
	base := time.Now()
	source := &scriptedSource{steps: []step{
		{price: 10, at: base},
		{price: 10, at: base},                  // exact repeat
		{price: 9, at: base.Add(-time.Second)}, // older
		{price: 11, at: base.Add(time.Second)},
		{price: 12, at: base.Add(2 * time.Second)},
	}}

	feed := NewPollingFeed(source, time.Millisecond, fastBackoff(), nil)
	require.NoError(t, feed.Start(context.Background()))
	defer feed.Stop()

	sub, err := feed.Subscribe(context.Background(), "abc")
	require.NoError(t, err)
	defer sub.Close()

	var prices []string
	for i := 0; i < 3; i++ {
		q := nextQuote(t, sub)
		assert.Equal(t, "ABC", q.Symbol)
		prices = append(prices, q.Price.String())
	}
	assert.Equal(t, []string{"10", "11", "12"}, prices)
}

func TestPollingFeed_TransientErrorsAreOutOfBand(t *testing.T) {
	base := time.Now()
	source := &scriptedSource{steps: []step{
		{err: errors.New("connection reset")},
		{err: &RateLimitError{Provider: "scripted"}},
		{price: 50, at: base},
	}}

	feed := NewPollingFeed(source, time.Hour, fastBackoff(), nil)
	sub, err := feed.Subscribe(context.Background(), "ABC")
	require.NoError(t, err)
	defer sub.Close()

	q := nextQuote(t, sub)
	assert.Equal(t, "50", q.Price.String())

	first := <-sub.Errors()
	var transient *TransientFetchError
	assert.True(t, errors.As(first, &transient))
	assert.True(t, IsRateLimited(<-sub.Errors()))
	assert.NoError(t, sub.Err())
}

func TestPollingFeed_AuthErrorTerminates(t *testing.T) {
	source := &scriptedSource{steps: []step{{err: &AuthError{Provider: "scripted", Reason: "invalid key"}}}}

	feed := NewPollingFeed(source, time.Millisecond, fastBackoff(), nil)
	sub, err := feed.Subscribe(context.Background(), "ABC")
	require.NoError(t, err)

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not terminate")
	}

	_, open := <-sub.Quotes()
	assert.False(t, open)
	assert.True(t, IsFatal(sub.Err()))

	reported := <-sub.Errors()
	assert.True(t, IsFatal(reported))
}

func TestPollingFeed_CloseEndsSequence(t *testing.T) {
	source := NewMockSource(1)
	feed := NewPollingFeed(source, time.Millisecond, fastBackoff(), nil)
	require.NoError(t, feed.Start(context.Background()))

	sub, err := feed.Subscribe(context.Background(), "AAPL")
	require.NoError(t, err)
	nextQuote(t, sub)

	sub.Close()
	for range sub.Quotes() {
	}
	assert.NoError(t, sub.Err())

	feed.Stop()
}

func TestPollingFeed_CancelWithFullBufferClosesChannels(t *testing.T) {
	feed := NewPollingFeed(NewMockSource(1), time.Millisecond, fastBackoff(), nil)
	require.NoError(t, feed.Start(context.Background()))
	defer feed.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := feed.Subscribe(ctx, "AAPL")
	require.NoError(t, err)

	// Nobody reads, so the poller ends up blocked on a full buffer.
	time.Sleep(100 * time.Millisecond)
	cancel()

	drained := make(chan struct{})
	go func() {
		for range sub.Quotes() {
		}
		for range sub.Errors() {
		}
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("quote and error channels stayed open after cancel")
	}
	assert.NoError(t, sub.Err())
}

func TestPollingFeed_StopClosesSubscriptions(t *testing.T) {
	feed := NewPollingFeed(NewMockSource(1), time.Millisecond, fastBackoff(), nil)
	require.NoError(t, feed.Start(context.Background()))

	sub, err := feed.Subscribe(context.Background(), "MSFT")
	require.NoError(t, err)

	feed.Stop()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription survived feed stop")
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 30 * time.Second}

	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 16*time.Second, b.Delay(5))
	assert.Equal(t, 30*time.Second, b.Delay(6))
	assert.Equal(t, 30*time.Second, b.Delay(1000))

	rateErr := &RateLimitError{RetryAfter: time.Minute}
	assert.Equal(t, time.Minute, retryDelay(b, 1, rateErr))
}

func TestMockSource_RandomWalk(t *testing.T) {
	source := NewMockSource(42)
	source.SetPrice("abc", 100)

	q, err := source.FetchQuote(context.Background(), "ABC")
	require.NoError(t, err)

	price, _ := q.Price.Float64()
	assert.InDelta(t, 100, price, 1.01)
	assert.Equal(t, "100", q.PrevClose.String())

	q, err = source.FetchQuote(context.Background(), "ABC")
	require.NoError(t, err)
	assert.Equal(t, "100", q.PrevClose.String())
	_, ok := q.ChangePercent()
	assert.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = source.FetchQuote(ctx, "ABC")
	assert.ErrorIs(t, err, context.Canceled)
}
