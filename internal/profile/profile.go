// Package profile holds the heuristic vocabularies and scoring constants the
// engine runs with. Two named profiles are provided, "rulebased" and
// "hybrid"; both are fixed hand-tuned heuristics, not learned weights.
package profile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/CanopyHQ/causalgraph/internal/causal"
)

// Pairing selects how candidate sentences are paired for validation.
type Pairing string

const (
	// PairSplit pairs cause-leaning candidates with effect-leaning ones.
	PairSplit Pairing = "split"
	// PairAll pairs every candidate with every other candidate.
	PairAll Pairing = "all"
)

// KeyMode selects the sentence identity used to deduplicate pairs.
type KeyMode string

const (
	KeyPosition   KeyMode = "position"
	KeyTextPrefix KeyMode = "text-prefix"
)

// Vocabulary is the process-wide constant data of a profile.
type Vocabulary struct {
	Gazetteer   []string          `mapstructure:"gazetteer"`
	StopWords   []string          `mapstructure:"stop_words"`
	CauseWords  []string          `mapstructure:"cause_words"`
	EffectWords []string          `mapstructure:"effect_words"`
	Patterns    causal.PatternSet `mapstructure:"patterns"`
	// Dates and Units enable the extra entity pattern extractors.
	Dates bool `mapstructure:"dates"`
	Units bool `mapstructure:"units"`
	// FilterAllEntities drops stop words from every entity source.
	FilterAllEntities bool `mapstructure:"filter_all_entities"`
}

// ScoreTable holds the rejection gates and additive weights of the rule
// engine.
type ScoreTable struct {
	MinLength         int
	MinSimilarity     float64
	MaxSimilarity     float64
	MinSharedEntities int

	Base         float64
	CauseCausal  float64
	EffectCausal float64
	// GoodSimilarity is awarded for similarity in [GoodLow, GoodHigh];
	// ModerateSimilarity for [MinSimilarity, GoodLow).
	GoodSimilarity     float64
	ModerateSimilarity float64
	GoodLow            float64
	GoodHigh           float64
	EntityWeight       float64
	EntityCap          float64
	CauseIndicator     float64
	EffectIndicator    float64
	Cap                float64
}

// Profile bundles everything the indexer, validator and enumerator need.
type Profile struct {
	Name          string
	Vocabulary    Vocabulary
	Scores        ScoreTable
	Pairing       Pairing
	Key           KeyMode
	KeyPrefixLen  int
	MinConfidence float64
}

// DefaultMinConfidence is the acceptance threshold of both profiles.
const DefaultMinConfidence = 0.85

const (
	RuleBasedName = "rulebased"
	HybridName    = "hybrid"
)

// RuleBased returns the profile of the plain rule engine. It is the default.
func RuleBased() Profile {
	return Profile{
		Name: RuleBasedName,
		Vocabulary: Vocabulary{
			Gazetteer: []string{
				"somme", "verdun", "ypres", "passchendaele", "marne", "gallipoli",
				"dardanelles", "jutland", "arras", "cambrai", "vimy", "amiens",
				"messines", "belleau", "meuse-argonne", "caporetto", "tannenberg",
				"france", "belgium", "flanders", "picardy", "alsace", "lorraine",
				"serbia", "gallipoli peninsula", "mesopotamia", "palestine",
				"sinai", "egypt", "salonika", "cape helles", "anzac cove",
				"battalion", "brigade", "division", "regiment", "corps", "army",
				"artillery", "infantry", "cavalry", "australian", "british",
				"french", "german", "turkish", "anzac",
			},
			StopWords: []string{
				"battle", "war", "fight", "attack", "front", "line", "trench",
				"soldier", "officer", "men", "man", "enemy", "troops", "forces",
				"the", "they", "we", "he", "she", "it", "when", "then", "after",
				"before", "during", "about", "with", "from", "into", "over",
				"wounded", "killed", "dead", "hospital", "ambulance", "casualty",
				"shell", "gun", "rifle", "bomb", "bullet", "fire", "shot",
			},
			CauseWords: []string{
				"bombardment", "shelling", "artillery fire", "machine gun fire",
				"gas attack", "offensive", "assault", "raid", "advance",
				"counter-attack", "barrage", "explosion", "ambush", "charge",
				"opened fire", "attacked", "bombed", "torpedoed", "mined",
			},
			EffectWords: []string{
				"casualties", "losses", "killed", "wounded", "injured", "died",
				"destroyed", "captured", "retreated", "surrendered", "evacuated",
				"hospitalized", "amputation", "shell shock", "blinded", "gassed",
				"reinforcements", "relief", "treatment", "operation",
			},
			Patterns:          causal.RuleBasedPatterns(),
			Dates:             true,
			Units:             true,
			FilterAllEntities: true,
		},
		Scores: ScoreTable{
			MinLength:          50,
			MinSimilarity:      0.15,
			MaxSimilarity:      0.65,
			MinSharedEntities:  2,
			CauseCausal:        0.30,
			EffectCausal:       0.25,
			GoodSimilarity:     0.20,
			ModerateSimilarity: 0.10,
			GoodLow:            0.25,
			GoodHigh:           0.50,
			EntityWeight:       0.08,
			EntityCap:          0.25,
			CauseIndicator:     0.10,
			EffectIndicator:    0.10,
			Cap:                1.0,
		},
		Pairing:       PairSplit,
		Key:           KeyPosition,
		MinConfidence: DefaultMinConfidence,
	}
}

// Hybrid returns the profile used ahead of oracle reranking: a base score,
// smaller vocabularies, no similarity bonus and all-pairs matching keyed by
// text prefix.
func Hybrid() Profile {
	return Profile{
		Name: HybridName,
		Vocabulary: Vocabulary{
			Gazetteer: []string{
				"somme", "verdun", "ypres", "passchendaele", "marne", "gallipoli",
				"dardanelles", "jutland", "arras", "cambrai", "vimy", "amiens",
				"france", "belgium", "flanders", "picardy", "alsace", "lorraine",
				"serbia", "mesopotamia", "palestine", "sinai", "egypt",
				"battalion", "brigade", "division", "regiment", "corps", "army",
				"artillery", "infantry", "cavalry", "australian", "british",
				"french", "german", "turkish", "anzac",
			},
			StopWords: []string{
				"battle", "war", "fight", "attack", "front", "line", "trench",
				"soldier", "officer", "men", "man", "enemy", "troops", "forces",
			},
			CauseWords: []string{
				"bombardment", "shelling", "offensive", "assault",
				"raid", "advance", "barrage", "explosion", "attack",
			},
			EffectWords: []string{
				"casualties", "losses", "killed", "wounded",
				"destroyed", "captured", "retreated", "surrendered",
			},
			Patterns: causal.HybridPatterns(),
		},
		Scores: ScoreTable{
			MinLength:         50,
			MinSimilarity:     0.15,
			MaxSimilarity:     0.65,
			MinSharedEntities: 2,
			Base:              0.40,
			CauseCausal:       0.20,
			EffectCausal:      0.15,
			GoodLow:           0.25,
			GoodHigh:          0.50,
			EntityWeight:      0.05,
			EntityCap:         0.15,
			CauseIndicator:    0.05,
			EffectIndicator:   0.05,
			Cap:               1.0,
		},
		Pairing:       PairAll,
		Key:           KeyTextPrefix,
		KeyPrefixLen:  40,
		MinConfidence: DefaultMinConfidence,
	}
}

var builtin = map[string]func() Profile{
	RuleBasedName: RuleBased,
	HybridName:    Hybrid,
}

// Names lists the built-in profiles.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a fresh copy of the named profile. An empty name selects
// the rule-based profile.
func Lookup(name string) (Profile, error) {
	if name == "" {
		return RuleBased(), nil
	}
	fn, ok := builtin[strings.ToLower(name)]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return fn(), nil
}

// Overrides replaces vocabulary lists of a profile. Nil fields keep the
// profile's own list; a non-nil empty list clears it.
type Overrides struct {
	Gazetteer   []string `mapstructure:"gazetteer"`
	StopWords   []string `mapstructure:"stop_words"`
	CauseWords  []string `mapstructure:"cause_words"`
	EffectWords []string `mapstructure:"effect_words"`
}

// WithOverrides returns a copy of p with the non-nil lists of o applied.
func (p Profile) WithOverrides(o Overrides) Profile {
	if o.Gazetteer != nil {
		p.Vocabulary.Gazetteer = append([]string(nil), o.Gazetteer...)
	}
	if o.StopWords != nil {
		p.Vocabulary.StopWords = append([]string(nil), o.StopWords...)
	}
	if o.CauseWords != nil {
		p.Vocabulary.CauseWords = append([]string(nil), o.CauseWords...)
	}
	if o.EffectWords != nil {
		p.Vocabulary.EffectWords = append([]string(nil), o.EffectWords...)
	}
	return p
}

// Validate checks that the thresholds are usable.
func (p Profile) Validate() error {
	s := p.Scores
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return fmt.Errorf("min confidence %.3f outside [0,1]", p.MinConfidence)
	}
	if s.MinSimilarity > s.MaxSimilarity {
		return fmt.Errorf("similarity band [%.2f, %.2f] is empty", s.MinSimilarity, s.MaxSimilarity)
	}
	if p.Pairing != PairSplit && p.Pairing != PairAll {
		return fmt.Errorf("unknown pairing %q", p.Pairing)
	}
	if p.Key == KeyTextPrefix && p.KeyPrefixLen <= 0 {
		return fmt.Errorf("text-prefix key needs a positive prefix length")
	}
	return nil
}

// CountIndicators returns how many entries of words occur in text, matched
// case-insensitively as substrings. Each entry counts at most once.
func CountIndicators(text string, words []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, w := range words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			n++
		}
	}
	return n
}
