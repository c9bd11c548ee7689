package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/codingric/moneyman/classifier"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPredictor struct {
	calls int
	err   error
	label string
}

func (c *countingPredictor) Predict(ctx context.Context, text string) (*classifier.Prediction, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	label := c.label
	if label == "" {
		label = "Food & Drink"
	}
	return &classifier.Prediction{Label: label, Index: 0, Probabilities: []float64{0.75, 0.25}}, nil
}

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestNewRedisClient(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "127.0.0.1:1", "")
	assert.Error(t, err)
}

func TestCachedPredictor(t *testing.T) {
	mr, client := setup(t)
	inner := &countingPredictor{}
	c := NewCachedPredictor(inner, client, time.Hour, "predict:", "m1")

	first, err := c.Predict(context.Background(), "Starbucks Coffee")
	require.NoError(t, err)
	second, err := c.Predict(context.Background(), "starbucks, coffee!")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, 0.75, second.Confidence())

	key := c.Key("Starbucks Coffee")
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))

	mr.FastForward(2 * time.Hour)
	_, err = c.Predict(context.Background(), "Starbucks Coffee")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedPredictorFallsBack(t *testing.T) {
	mr, client := setup(t)
	inner := &countingPredictor{}
	c := NewCachedPredictor(inner, client, time.Hour, "predict:", "m1")

	require.NoError(t, mr.Set(c.Key("coffee"), "{not json"))
	p, err := c.Predict(context.Background(), "coffee")
	require.NoError(t, err)
	assert.Equal(t, "Food & Drink", p.Label)
	assert.Equal(t, 1, inner.calls)

	mr.Close()
	p, err = c.Predict(context.Background(), "tea")
	require.NoError(t, err)
	assert.Equal(t, "Food & Drink", p.Label)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedPredictorError(t *testing.T) {
	_, client := setup(t)
	inner := &countingPredictor{err: errors.New("model exploded")}
	c := NewCachedPredictor(inner, client, time.Hour, "predict:", "m1")

	_, err := c.Predict(context.Background(), "coffee")
	assert.EqualError(t, err, "model exploded")
	assert.False(t, client.Exists(context.Background(), c.Key("coffee")).Val() > 0)
}

func TestCachedPredictorModelChange(t *testing.T) {
	_, client := setup(t)
	ctx := context.Background()

	oldModel := &countingPredictor{label: "Old"}
	p, err := NewCachedPredictor(oldModel, client, time.Hour, "predict:", "v1").Predict(ctx, "coffee")
	require.NoError(t, err)
	assert.Equal(t, "Old", p.Label)

	newModel := &countingPredictor{label: "New"}
	c := NewCachedPredictor(newModel, client, time.Hour, "predict:", "v2")
	p, err = c.Predict(ctx, "coffee")
	require.NoError(t, err)
	assert.Equal(t, "New", p.Label)
	assert.Equal(t, 1, newModel.calls)

	p, err = c.Predict(ctx, "coffee")
	require.NoError(t, err)
	assert.Equal(t, "New", p.Label)
	assert.Equal(t, 1, newModel.calls)

	assert.NotEqual(t,
		NewCachedPredictor(oldModel, client, time.Hour, "predict:", "v1").Key("coffee"),
		c.Key("coffee"))
}

func TestCachedPredictorShippedModels(t *testing.T) {
	_, client := setup(t)
	tiny, err := classifier.Load("../../classifier/testdata/tiny.json")
	require.NoError(t, err)
	shipped, err := classifier.Load("../../ml/model.json")
	require.NoError(t, err)

	a := NewCachedPredictor(tiny, client, time.Hour, "predict:", tiny.Fingerprint())
	b := NewCachedPredictor(shipped, client, time.Hour, "predict:", shipped.Fingerprint())
	assert.NotEqual(t, a.Key("coffee"), b.Key("coffee"))
}
