// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "predictor"

var (
	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "predictions_total",
		Help:      "Predictions served, by predicted category.",
	}, []string{"category"})

	Confidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "prediction_confidence",
		Help:      "Confidence percentage of served predictions.",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	})

	Persisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "persist_total",
		Help:      "Transaction inserts, by result.",
	}, []string{"result"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "prediction_cache_total",
		Help:      "Prediction cache lookups, by result.",
	}, []string{"result"})
)

// ObservePrediction records a served prediction.
func ObservePrediction(category string, confidence float64) {
	Predictions.WithLabelValues(category).Inc()
	Confidence.Observe(confidence)
}
