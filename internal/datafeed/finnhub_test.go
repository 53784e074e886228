package datafeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinnhubSource_FetchQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "secret", r.URL.Query().Get("token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"c":229.87,"d":1.2,"dp":0.5,"h":230.1,"l":227.5,"o":228,"pc":228.67,"t":1718035200}`))
	}))
	defer server.Close()

	source := NewFinnhubSource(server.URL+"/", "secret", time.Second)

	quote, err := source.FetchQuote(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, "229.87", quote.Price.String())
	assert.Equal(t, "228.67", quote.PrevClose.String())
	assert.Equal(t, time.Unix(1718035200, 0), quote.Timestamp)
}

func TestFinnhubSource_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		header map[string]string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized is fatal",
			status: http.StatusUnauthorized,
			body:   `{"error":"Invalid API key"}`,
			check: func(t *testing.T, err error) {
				assert.True(t, IsFatal(err))
			},
		},
		{
			name:   "rate limited carries retry-after",
			status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "7"},
			check: func(t *testing.T, err error) {
				var rateErr *RateLimitError
				require.True(t, errors.As(err, &rateErr))
				assert.Equal(t, 7*time.Second, rateErr.RetryAfter)
			},
		},
		{
			name:   "server error is transient",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				var transient *TransientFetchError
				assert.True(t, errors.As(err, &transient))
				assert.False(t, IsFatal(err))
			},
		},
		{
			name:   "empty quote is transient",
			status: http.StatusOK,
			body:   `{"c":0,"t":0}`,
			check: func(t *testing.T, err error) {
				var transient *TransientFetchError
				assert.True(t, errors.As(err, &transient))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewFinnhubSource(server.URL, "key", time.Second).FetchQuote(context.Background(), "AAPL")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestFinnhubSource_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewFinnhubSource(url, "key", 200*time.Millisecond).FetchQuote(context.Background(), "AAPL")

	var transient *TransientFetchError
	assert.True(t, errors.As(err, &transient))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
}
