// Package relation defines the scored cause/effect record produced by the
// validator and the reranker, and the order results are reported in.
package relation

import (
	"math"
	"sort"
)

// Scored is one accepted cause/effect pair. Records are values; rescoring
// returns a new record instead of mutating the old one.
type Scored struct {
	CauseDocumentID  string   `json:"cause_file"`
	CauseText        string   `json:"cause_text"`
	EffectDocumentID string   `json:"effect_file"`
	EffectText       string   `json:"effect_text"`
	RuleScore        float64  `json:"rule_score"`
	MLScore          *float64 `json:"ml_score,omitempty"`
	CombinedScore    *float64 `json:"combined_score,omitempty"`
	SharedEntities   []string `json:"shared_entities"`

	// Sentence positions inside their documents, used for ordering ties.
	CausePosition  int `json:"-"`
	EffectPosition int `json:"-"`
}

// Final is the score results are ordered by: the combined score when the
// record was reranked, the rule score otherwise.
func (s Scored) Final() float64 {
	if s.CombinedScore != nil {
		return *s.CombinedScore
	}
	return s.RuleScore
}

// WithML returns a copy carrying the oracle probability ml and the mean of
// the rule and oracle scores.
func (s Scored) WithML(ml float64) Scored {
	ml = Round(ml, 4)
	combined := Round((s.RuleScore+ml)/2, 4)
	s.MLScore = &ml
	s.CombinedScore = &combined
	s.SharedEntities = append([]string(nil), s.SharedEntities...)
	return s
}

// WithFallback returns a copy whose combined score is the rule score, for
// records the oracle could not score.
func (s Scored) WithFallback() Scored {
	combined := s.RuleScore
	s.MLScore = nil
	s.CombinedScore = &combined
	s.SharedEntities = append([]string(nil), s.SharedEntities...)
	return s
}

// Round rounds v to the given number of decimal places, halves away from
// zero.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Sort orders rs by descending Final score. Ties fall back to document and
// sentence position so the order never depends on how results were
// gathered.
func Sort(rs []Scored) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if fa, fb := a.Final(), b.Final(); fa != fb {
			return fa > fb
		}
		if a.CauseDocumentID != b.CauseDocumentID {
			return a.CauseDocumentID < b.CauseDocumentID
		}
		if a.CausePosition != b.CausePosition {
			return a.CausePosition < b.CausePosition
		}
		if a.EffectDocumentID != b.EffectDocumentID {
			return a.EffectDocumentID < b.EffectDocumentID
		}
		if a.EffectPosition != b.EffectPosition {
			return a.EffectPosition < b.EffectPosition
		}
		return a.CauseText < b.CauseText
	})
}

// Clone returns a shallow copy of rs.
func Clone(rs []Scored) []Scored {
	out := make([]Scored, len(rs))
	copy(out, rs)
	return out
}
