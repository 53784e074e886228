package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "quote:AAPL", Key(" aapl"))
	assert.Equal(t, "quotes.MSFT", Channel("msft"))
}

func TestRedisQuoteCache_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewRedisQuoteCache(client, 0)
	defer c.Close()

	ctx := context.Background()
	assert.Error(t, c.Ping(ctx))

	quotes, err := c.Latest(ctx)
	require.NoError(t, err)
	assert.Empty(t, quotes, "no symbols means no round trip")

	_, err = c.Latest(ctx, "AAPL")
	assert.Error(t, err)
}
