// Package cache memoises predictions in redis so repeated descriptions skip
// the model.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codingric/moneyman/classifier"
	"github.com/codingric/moneyman/pkg/metrics"
	"github.com/codingric/moneyman/pkg/tracing"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// NewRedisClient connects to redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	client.AddHook(redisotel.NewTracingHook())
	return client, nil
}

// CachedPredictor wraps a Predictor with a redis lookaside cache. Redis
// failures are logged and the wrapped predictor is used instead.
type CachedPredictor struct {
	next   classifier.Predictor
	client *redis.Client
	ttl    time.Duration
	prefix string
	model  string
}

// NewCachedPredictor caches the predictions of next. model identifies the
// model behind next and is part of every key, so a replaced model never
// reads entries written by its predecessor.
func NewCachedPredictor(next classifier.Predictor, client *redis.Client, ttl time.Duration, prefix, model string) *CachedPredictor {
	return &CachedPredictor{next: next, client: client, ttl: ttl, prefix: prefix, model: model}
}

func (c *CachedPredictor) Predict(ctx context.Context, text string) (*classifier.Prediction, error) {
	ctx, span := tracing.NewSpan("cache.predict", ctx)
	defer span.End()

	key := c.Key(text)
	span.SetAttributes(attribute.String("key", key))

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p classifier.Prediction
		if jerr := json.Unmarshal(raw, &p); jerr == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			span.SetAttributes(attribute.Bool("hit", true))
			log.Debug().Str("key", key).Msg("Prediction cache hit")
			return &p, nil
		}
		log.Warn().Str("key", key).Msg("Discarding unreadable cached prediction")
	case err != redis.Nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("Failure reaching redis")
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	p, err := c.next.Predict(ctx, text)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(p); err == nil {
		if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
			log.Error().Err(err).Msg("Failed to save prediction to redis")
		}
	}
	return p, nil
}

// Key derives the cache key from the model and the normalised description,
// so case and punctuation differences share an entry.
func (c *CachedPredictor) Key(text string) string {
	return c.prefix + c.model + ":" + generateHash(classifier.Normalize(text))
}

func generateHash(payload string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(payload)))
}
