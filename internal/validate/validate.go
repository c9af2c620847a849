// Package validate scores candidate cause/effect sentence pairs with a
// fixed additive heuristic. The weights are hand-tuned constants carried by
// a profile.ScoreTable; nothing here is learned.
package validate

import (
	"fmt"
	"unicode/utf8"

	"github.com/CanopyHQ/causalgraph/internal/causal"
	"github.com/CanopyHQ/causalgraph/internal/entity"
	"github.com/CanopyHQ/causalgraph/internal/index"
	"github.com/CanopyHQ/causalgraph/internal/profile"
	"github.com/CanopyHQ/causalgraph/internal/tfidf"
)

// Reason is why a pair was not accepted. Rejections are ordinary outcomes,
// not errors.
type Reason string

const (
	None                       Reason = ""
	SameDocument               Reason = "same-document"
	TooShort                   Reason = "too-short"
	NoCausalLanguage           Reason = "no-causal-language"
	SimilarityOutOfBand        Reason = "similarity-out-of-band"
	InsufficientSharedEntities Reason = "insufficient-shared-entities"
	BelowThreshold             Reason = "below-threshold"
)

// Reasons lists every rejection reason in the order the gates run.
func Reasons() []Reason {
	return []Reason{SameDocument, TooShort, NoCausalLanguage, SimilarityOutOfBand, InsufficientSharedEntities, BelowThreshold}
}

// Explanation describes how a verdict was reached.
type Explanation struct {
	Reason Reason
	// Detail is a human readable account of the rejection.
	Detail string
	// Contributions lists each score component that was awarded.
	Contributions  []string
	Similarity     float64
	SharedEntities []string
	CauseCausal    causal.Match
	EffectCausal   causal.Match
}

// Verdict is the outcome of validating one directed pair.
type Verdict struct {
	Accepted    bool
	Score       float64
	Explanation Explanation
}

// Validator is a pure function of its inputs and the shared read-only
// term table. It is safe for concurrent use.
type Validator struct {
	detector      *causal.Detector
	extractor     *entity.Extractor
	vectors       *tfidf.Vectorizer
	causeWords    []string
	effectWords   []string
	scores        profile.ScoreTable
	minConfidence float64
}

// New builds a Validator for p. The detector and extractor must be the ones
// the candidate pool was indexed with.
func New(p profile.Profile, d *causal.Detector, x *entity.Extractor, vz *tfidf.Vectorizer) *Validator {
	return &Validator{
		detector:      d,
		extractor:     x,
		vectors:       vz,
		causeWords:    p.Vocabulary.CauseWords,
		effectWords:   p.Vocabulary.EffectWords,
		scores:        p.Scores,
		minConfidence: p.MinConfidence,
	}
}

// MinConfidence is the acceptance threshold.
func (v *Validator) MinConfidence() float64 { return v.minConfidence }

// WithMinConfidence returns a copy of v using threshold t.
func (v *Validator) WithMinConfidence(t float64) *Validator {
	c := *v
	c.minConfidence = t
	return &c
}

// side carries the per-sentence features the rule engine reads.
type side struct {
	doc        string
	text       string
	match      causal.Match
	entities   entity.Set
	indicators int
}

// Validate scores causeText as the cause of effectText.
func (v *Validator) Validate(causeText, effectText, causeDoc, effectDoc string) Verdict {
	cause := side{doc: causeDoc, text: causeText}
	effect := side{doc: effectDoc, text: effectText}
	return v.run(&cause, &effect, true)
}

// ValidatePair scores two indexed candidates, reusing their precomputed
// features. It gives the same verdict as Validate on their texts.
func (v *Validator) ValidatePair(cause, effect *index.Candidate) Verdict {
	c := side{
		doc:        cause.DocumentID,
		text:       cause.Text,
		match:      cause.Causal,
		entities:   cause.Entities,
		indicators: cause.CauseIndicators,
	}
	e := side{
		doc:        effect.DocumentID,
		text:       effect.Text,
		match:      effect.Causal,
		entities:   effect.Entities,
		indicators: effect.EffectIndicators,
	}
	return v.run(&c, &e, false)
}

func reject(r Reason, detail string, ex Explanation) Verdict {
	ex.Reason = r
	ex.Detail = detail
	return Verdict{Explanation: ex}
}

func (v *Validator) run(cause, effect *side, derive bool) Verdict {
	s := v.scores
	var ex Explanation

	if cause.doc == effect.doc {
		return reject(SameDocument, "cause and effect come from the same document", ex)
	}
	cl, el := utf8.RuneCountInString(cause.text), utf8.RuneCountInString(effect.text)
	if cl < s.MinLength || el < s.MinLength {
		return reject(TooShort, fmt.Sprintf("sentence shorter than %d characters (%d, %d)", s.MinLength, cl, el), ex)
	}

	if derive {
		cause.match = v.detector.Detect(cause.text)
		effect.match = v.detector.Detect(effect.text)
	}
	ex.CauseCausal, ex.EffectCausal = cause.match, effect.match
	if !cause.match.Found && !effect.match.Found {
		return reject(NoCausalLanguage, "neither sentence contains causal language", ex)
	}

	sim := v.vectors.Similarity(cause.text, effect.text)
	ex.Similarity = sim
	if sim < s.MinSimilarity {
		return reject(SimilarityOutOfBand, fmt.Sprintf("low similarity (%.3f)", sim), ex)
	}
	if sim > s.MaxSimilarity {
		return reject(SimilarityOutOfBand, fmt.Sprintf("too similar (%.3f)", sim), ex)
	}

	if derive {
		cause.entities = v.extractor.Extract(cause.text)
		effect.entities = v.extractor.Extract(effect.text)
	}
	shared := entity.Shared(cause.entities, effect.entities)
	ex.SharedEntities = shared
	if len(shared) < s.MinSharedEntities {
		return reject(InsufficientSharedEntities, fmt.Sprintf("not enough shared entities (%d)", len(shared)), ex)
	}

	if derive {
		cause.indicators = profile.CountIndicators(cause.text, v.causeWords)
		effect.indicators = profile.CountIndicators(effect.text, v.effectWords)
	}

	score := s.Base
	add := func(w float64, format string, args ...any) {
		if w == 0 {
			return
		}
		score += w
		ex.Contributions = append(ex.Contributions, fmt.Sprintf(format, args...)+fmt.Sprintf(" (+%.2f)", w))
	}
	if s.Base > 0 {
		ex.Contributions = append(ex.Contributions, fmt.Sprintf("base (+%.2f)", s.Base))
	}
	if cause.match.Found {
		add(s.CauseCausal, "causal phrase in cause: %q", cause.match.Phrase)
	}
	if effect.match.Found {
		add(s.EffectCausal, "causal phrase in effect: %q", effect.match.Phrase)
	}
	switch {
	case sim >= s.GoodLow && sim <= s.GoodHigh:
		add(s.GoodSimilarity, "good similarity %.3f", sim)
	case sim >= s.MinSimilarity && sim < s.GoodLow:
		add(s.ModerateSimilarity, "moderate similarity %.3f", sim)
	}
	entScore := s.EntityWeight * float64(len(shared))
	if entScore > s.EntityCap {
		entScore = s.EntityCap
	}
	add(entScore, "%d shared entities", len(shared))
	if cause.indicators > 0 {
		add(s.CauseIndicator, "cause has %d action indicators", cause.indicators)
	}
	if effect.indicators > 0 {
		add(s.EffectIndicator, "effect has %d consequence indicators", effect.indicators)
	}

	if score > s.Cap {
		score = s.Cap
	}
	if score < v.minConfidence {
		ex.Reason = BelowThreshold
		ex.Detail = fmt.Sprintf("score %.3f below %.3f", score, v.minConfidence)
		return Verdict{Score: score, Explanation: ex}
	}
	return Verdict{Accepted: true, Score: score, Explanation: ex}
}
