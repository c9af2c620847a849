// Package rerank blends the rule score of accepted relationships with an
// independent estimate from a semantic-entailment oracle and re-sorts them.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/CanopyHQ/causalgraph/internal/relation"
)

// The two labels every oracle call is made with. The causal label's
// probability becomes the ML score.
const (
	LabelCausal    = "causal relationship"
	LabelUnrelated = "unrelated"
)

// Labels returns the candidate labels in call order.
func Labels() []string {
	return []string{LabelCausal, LabelUnrelated}
}

const (
	causePromptLen  = 150
	effectPromptLen = 120
)

// ErrOracle marks a failed oracle call. Failures are counted and the
// relationship keeps its rule score.
var ErrOracle = errors.New("oracle failure")

// Oracle classifies text against candidate labels and returns a
// probability per label.
type Oracle interface {
	Classify(ctx context.Context, text string, labels []string) (map[string]float64, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, text string, labels []string) (map[string]float64, error)

func (f OracleFunc) Classify(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	return f(ctx, text, labels)
}

// StaticOracle answers every call with the same causal probability.
type StaticOracle float64

func (s StaticOracle) Classify(_ context.Context, _ string, labels []string) (map[string]float64, error) {
	out := make(map[string]float64, len(labels))
	p := float64(s)
	for i, l := range labels {
		if i == 0 {
			out[l] = p
		} else {
			out[l] = (1 - p) / float64(len(labels)-1)
		}
	}
	return out, nil
}

// Stats counts oracle outcomes.
type Stats struct {
	Scored int
	Failed int
}

// Reranker post-processes accepted relationships. Implementations return
// new records and never modify their input.
type Reranker interface {
	Rerank(ctx context.Context, rs []relation.Scored) ([]relation.Scored, Stats, error)
	Name() string
}

// Null keeps rule scores and only sorts.
type Null struct{}

func (Null) Name() string { return "none" }

func (Null) Rerank(_ context.Context, rs []relation.Scored) ([]relation.Scored, Stats, error) {
	out := relation.Clone(rs)
	relation.Sort(out)
	return out, Stats{}, nil
}

// Prompt builds the composite text submitted to the oracle.
func Prompt(cause, effect string) string {
	return truncate(cause, causePromptLen) + ". As a result, " + truncate(effect, effectPromptLen)
}

func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// causalProbability reads and checks the causal label's probability.
func causalProbability(scores map[string]float64) (float64, error) {
	p, ok := scores[LabelCausal]
	if !ok {
		return 0, fmt.Errorf("%w: label %q missing from response", ErrOracle, LabelCausal)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: probability %v outside [0,1]", ErrOracle, p)
	}
	return p, nil
}

// ParseMode normalizes a reranker mode name.
func ParseMode(s string) (string, error) {
	switch m := strings.ToLower(strings.TrimSpace(s)); m {
	case "", "none", "off":
		return "none", nil
	case "http", "onnx", "static":
		return m, nil
	default:
		return "", fmt.Errorf("unknown rerank mode %q (want none, http, onnx or static)", s)
	}
}
