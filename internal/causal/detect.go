// Package causal detects explicit causal language in a sentence and reports
// which way it points. The direction is a hint used when deciding whether a
// sentence leans towards being a cause or an effect; it is never a hard
// constraint on pair validation.
package causal

import (
	"fmt"
	"regexp"
	"strings"
)

// Direction tells whether the causal marker precedes the effect (forward,
// e.g. "X led to Y") or the cause (reverse, e.g. "Y because of X").
type Direction int

const (
	None Direction = iota
	Forward
	Reverse
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "none"
	}
}

// PatternSet is an ordered list of expressions per direction. Forward
// patterns are always tried before reverse ones.
type PatternSet struct {
	Forward []string `mapstructure:"forward" json:"forward"`
	Reverse []string `mapstructure:"reverse" json:"reverse"`
}

// Match is the result of Detect. Phrase is the lowercased matched text.
type Match struct {
	Found     bool
	Direction Direction
	Phrase    string
}

var (
	forwardVerbs   = `\b(caused|led to|resulted in|triggered|sparked|brought about)\b`
	linkingAdverbs = `\b(consequently|therefore|thus|hence|as a result)\b`
	responseTo     = `\b(in response to|following|after the|due to the)\b`
	whenThen       = `\bwhen\s+.{10,60}\s*,\s*.{10,60}(then|we|they|he|she|it)\b`
	becauseOfThe   = `\bbecause\s+(of\s+)?(the|this|their|our|his|her)\b`

	reverseMarkers = []string{
		`\b(because|due to|owing to|on account of)\b`,
		`\b(as a result of|in consequence of)\b`,
		`\b(was caused by|resulted from)\b`,
	}
)

// RuleBasedPatterns returns the pattern set of the rule-based profile. It
// includes the generic "when ..., ... then" construction.
func RuleBasedPatterns() PatternSet {
	return PatternSet{
		Forward: []string{forwardVerbs, linkingAdverbs, responseTo, whenThen, becauseOfThe},
		Reverse: append([]string(nil), reverseMarkers...),
	}
}

// HybridPatterns returns the pattern set of the hybrid profile, which drops
// the "when ..., ... then" construction.
func HybridPatterns() PatternSet {
	return PatternSet{
		Forward: []string{forwardVerbs, linkingAdverbs, responseTo, becauseOfThe},
		Reverse: append([]string(nil), reverseMarkers...),
	}
}

type compiledPattern struct {
	re  *regexp.Regexp
	dir Direction
}

// Detector matches a compiled PatternSet. It holds no mutable state and is
// safe for concurrent use.
type Detector struct {
	patterns []compiledPattern
}

// NewDetector compiles every expression of set case-insensitively.
func NewDetector(set PatternSet) (*Detector, error) {
	d := &Detector{}
	for _, group := range []struct {
		exprs []string
		dir   Direction
	}{{set.Forward, Forward}, {set.Reverse, Reverse}} {
		for _, expr := range group.exprs {
			re, err := regexp.Compile(`(?i)` + expr)
			if err != nil {
				return nil, fmt.Errorf("compile %s pattern %q: %w", group.dir, expr, err)
			}
			d.patterns = append(d.patterns, compiledPattern{re: re, dir: group.dir})
		}
	}
	return d, nil
}

// Detect reports the first pattern that matches text, in encounter order.
func (d *Detector) Detect(text string) Match {
	if strings.TrimSpace(text) == "" {
		return Match{}
	}
	for _, p := range d.patterns {
		if loc := p.re.FindStringIndex(text); loc != nil {
			return Match{
				Found:     true,
				Direction: p.dir,
				Phrase:    strings.ToLower(text[loc[0]:loc[1]]),
			}
		}
	}
	return Match{}
}

// Len returns the number of compiled patterns.
func (d *Detector) Len() int {
	return len(d.patterns)
}
