package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

var (
	ErrInvalidModel = errors.New("invalid model")
	ErrEmptyModel   = errors.New("model has no labels")
)

// Artifact is the on-disk form of a trained naive Bayes model. All values are
// probabilities; Load converts them to log space.
type Artifact struct {
	Name    string               `json:"name" yaml:"name"`
	Version string               `json:"version" yaml:"version"`
	Labels  []string             `json:"labels" yaml:"labels"`
	Priors  []float64            `json:"priors" yaml:"priors"`
	Tokens  map[string][]float64 `json:"tokens" yaml:"tokens"`
	Unknown []float64            `json:"unknown,omitempty" yaml:"unknown,omitempty"`
}

// Load reads a model artifact from path. The format is chosen by extension:
// .yaml and .yml are YAML, anything else is JSON.
func Load(path string) (*Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	var a Artifact
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &a)
	default:
		err = json.Unmarshal(b, &a)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidModel, path, err)
	}

	return New(a)
}

// New validates an artifact and builds a model from it.
func New(a Artifact) (*Model, error) {
	n := len(a.Labels)
	if n == 0 {
		return nil, ErrEmptyModel
	}

	seen := make(map[string]bool, n)
	for _, l := range a.Labels {
		if strings.TrimSpace(l) == "" {
			return nil, fmt.Errorf("%w: blank label", ErrInvalidModel)
		}
		if seen[l] {
			return nil, fmt.Errorf("%w: duplicate label %q", ErrInvalidModel, l)
		}
		seen[l] = true
	}

	priors, err := logRow("priors", a.Priors, n)
	if err != nil {
		return nil, err
	}

	unknown := a.Unknown
	if len(unknown) == 0 {
		unknown = make([]float64, n)
		for i := range unknown {
			unknown[i] = 1
		}
	}
	unk, err := logRow("unknown", unknown, n)
	if err != nil {
		return nil, err
	}

	tokens := make(map[string][]float64, len(a.Tokens))
	for tok, row := range a.Tokens {
		toks := Tokenize(tok)
		if len(toks) != 1 {
			return nil, fmt.Errorf("%w: token %q is not a single word", ErrInvalidModel, tok)
		}
		key := toks[0]
		if _, dup := tokens[key]; dup {
			return nil, fmt.Errorf("%w: token %q duplicates another after normalization", ErrInvalidModel, tok)
		}
		lr, err := logRow("tokens."+tok, row, n)
		if err != nil {
			return nil, err
		}
		tokens[key] = lr
	}

	canonical, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	sum := sha256.Sum256(canonical)

	return &Model{
		fingerprint: hex.EncodeToString(sum[:])[:16],
		name:        a.Name,
		version:     a.Version,
		labels:      append([]string(nil), a.Labels...),
		priors:      priors,
		tokens:      tokens,
		unknown:     unk,
	}, nil
}

func logRow(field string, row []float64, n int) ([]float64, error) {
	if len(row) != n {
		return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrInvalidModel, field, len(row), n)
	}
	out := make([]float64, n)
	for i, p := range row {
		if math.IsNaN(p) || p <= 0 || p > 1 {
			return nil, fmt.Errorf("%w: %s[%d]=%v outside (0,1]", ErrInvalidModel, field, i, p)
		}
		out[i] = math.Log(p)
	}
	return out, nil
}
