package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stock-price-alerts/pkg/models"
)

const (
	keyPrefix     = "quote:"
	channelPrefix = "quotes."
	defaultTTL    = time.Hour
)

// RedisQuoteCache keeps the latest quote per symbol in Redis and publishes
// every quote on a per-symbol channel for out-of-process consumers.
type RedisQuoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisQuoteCache(client *redis.Client, ttl time.Duration) *RedisQuoteCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisQuoteCache{client: client, ttl: ttl}
}

func Key(symbol string) string {
	return keyPrefix + models.NormalizeSymbol(symbol)
}

func Channel(symbol string) string {
	return channelPrefix + models.NormalizeSymbol(symbol)
}

// RecordQuote stores and publishes the quote in a single pipeline.
func (c *RedisQuoteCache) RecordQuote(ctx context.Context, quote models.Quote) error {
	payload, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, Key(quote.Symbol), payload, c.ttl)
	pipe.Publish(ctx, Channel(quote.Symbol), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline for %s: %w", quote.Symbol, err)
	}
	return nil
}

// Latest returns the cached quotes for the given symbols. Symbols without a
// cached quote are left out.
func (c *RedisQuoteCache) Latest(ctx context.Context, symbols ...string) ([]models.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	keys := make([]string, len(symbols))
	for i, symbol := range symbols {
		keys[i] = Key(symbol)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	quotes := make([]models.Quote, 0, len(values))
	for _, value := range values {
		payload, ok := value.(string)
		if !ok || payload == "" {
			continue
		}
		var quote models.Quote
		if err := json.Unmarshal([]byte(payload), &quote); err != nil {
			return nil, fmt.Errorf("decode cached quote: %w", err)
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

func (c *RedisQuoteCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisQuoteCache) Close() error {
	return c.client.Close()
}
