// Package classifier loads a pre-trained transaction category model and
// predicts a spending category for a free-text description.
package classifier

import (
	"context"
	"math"

	"github.com/codingric/moneyman/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Predictor predicts a category for a transaction description.
type Predictor interface {
	Predict(ctx context.Context, text string) (*Prediction, error)
}

// Prediction is the predicted label, its index among the model's labels and
// the probability distribution over all labels.
type Prediction struct {
	Label         string    `json:"label"`
	Index         int       `json:"index"`
	Probabilities []float64 `json:"probabilities"`
}

// Confidence is the probability assigned to the predicted label.
func (p *Prediction) Confidence() float64 {
	if p == nil || p.Index < 0 || p.Index >= len(p.Probabilities) {
		return 0
	}
	return p.Probabilities[p.Index]
}

// Percent converts the confidence to a percentage rounded to 2 decimals.
func (p *Prediction) Percent() float64 {
	return math.Round(p.Confidence()*10000) / 100
}

// Model is a multinomial naive Bayes classifier. It is immutable once built
// and safe for concurrent use.
type Model struct {
	fingerprint string
	name        string
	version     string
	labels      []string
	priors      []float64
	tokens      map[string][]float64
	unknown     []float64
}

func (m *Model) Name() string    { return m.name }
func (m *Model) Version() string { return m.version }

// Fingerprint identifies the artifact the model was built from. Artifacts
// differing in any label, probability, name or version differ here too.
func (m *Model) Fingerprint() string { return m.fingerprint }

func (m *Model) Labels() []string {
	return append([]string(nil), m.labels...)
}

// Predict scores every label and returns the most probable one. Ties go to
// the label listed first.
func (m *Model) Predict(ctx context.Context, text string) (*Prediction, error) {
	_, span := tracing.NewSpan("classifier.predict", ctx)
	defer span.End()

	scores := append([]float64(nil), m.priors...)
	tokens := Tokenize(text)
	known := 0
	for _, tok := range tokens {
		row, ok := m.tokens[tok]
		if ok {
			known++
		} else {
			row = m.unknown
		}
		for i := range scores {
			scores[i] += row[i]
		}
	}

	probs := softmax(scores)
	best := 0
	for i := range probs {
		if probs[i] > probs[best] {
			best = i
		}
	}

	span.SetAttributes(
		attribute.Int("tokens", len(tokens)),
		attribute.Int("known_tokens", known),
		attribute.String("label", m.labels[best]),
	)

	return &Prediction{
		Label:         m.labels[best],
		Index:         best,
		Probabilities: probs,
	}, nil
}

func softmax(scores []float64) []float64 {
	max := math.Inf(-1)
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	sum := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
