// Package entity pulls a small set of salient terms out of a sentence:
// gazetteer hits, capitalized words and, optionally, dates and numbered
// units. It is a high-recall heuristic; callers gate on how many entities
// two sentences share, never on what the entities are.
package entity

import (
	"regexp"
	"sort"
	"strings"
)

// Set is a set of lowercase entity strings.
type Set map[string]struct{}

// NewSet builds a Set from items.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

// Has reports whether e is in the set.
func (s Set) Has(e string) bool {
	_, ok := s[e]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Shared returns the sorted intersection of a and b.
func Shared(a, b Set) []string {
	if len(a) > len(b) {
		a, b = b, a
	}
	var out []string
	for e := range a {
		if b.Has(e) {
			out = append(out, e)
		}
	}
	sort.Strings(out)
	return out
}

// Intersects reports whether a and b have at least one member in common.
func Intersects(a, b Set) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for e := range a {
		if b.Has(e) {
			return true
		}
	}
	return false
}

var (
	capitalizedWord = regexp.MustCompile(`\b[A-Z][a-z]{3,}\b`)
	monthYear       = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{4}\b`)
	bareYear        = regexp.MustCompile(`\b\d{4}\b`)
	numberedUnit    = regexp.MustCompile(`\b\d+(?:st|nd|rd|th)?\s+(?:battalion|brigade|division|regiment)\b`)
)

// Options configures an Extractor.
type Options struct {
	// Gazetteer terms are matched as substrings of the lowercased text.
	Gazetteer []string
	// StopWords are never reported as capitalized-word entities.
	StopWords []string
	// Dates adds the month of "month yyyy" phrases and bare four-digit years.
	Dates bool
	// Units adds numbered military units such as "12th battalion".
	Units bool
	// FilterAll applies StopWords to every source, not only capitalized words.
	FilterAll bool
}

// Extractor is immutable after construction and safe for concurrent use.
type Extractor struct {
	gazetteer []string
	stop      Set
	opts      Options
}

// NewExtractor normalizes the vocabularies in opts to lowercase.
func NewExtractor(opts Options) *Extractor {
	gaz := make([]string, 0, len(opts.Gazetteer))
	seen := make(Set)
	for _, g := range opts.Gazetteer {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" || seen.Has(g) {
			continue
		}
		seen[g] = struct{}{}
		gaz = append(gaz, g)
	}
	sort.Strings(gaz)

	stop := make(Set, len(opts.StopWords))
	for _, w := range opts.StopWords {
		stop[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return &Extractor{gazetteer: gaz, stop: stop, opts: opts}
}

// Extract returns the entity set of text.
func (x *Extractor) Extract(text string) Set {
	ents := make(Set)
	lower := strings.ToLower(text)

	for _, g := range x.gazetteer {
		if strings.Contains(lower, g) {
			ents[g] = struct{}{}
		}
	}
	if x.opts.Dates {
		// A month+year phrase contributes the month only, so "march 1916"
		// and "march 1917" still share an entity.
		for _, m := range monthYear.FindAllStringSubmatch(lower, -1) {
			ents[m[1]] = struct{}{}
		}
		for _, m := range bareYear.FindAllString(lower, -1) {
			ents[m] = struct{}{}
		}
	}
	if x.opts.Units {
		for _, m := range numberedUnit.FindAllString(lower, -1) {
			ents[strings.Join(strings.Fields(m), " ")] = struct{}{}
		}
	}
	for _, m := range capitalizedWord.FindAllString(text, -1) {
		w := strings.ToLower(m)
		if !x.stop.Has(w) {
			ents[w] = struct{}{}
		}
	}

	if x.opts.FilterAll {
		for e := range ents {
			if x.stop.Has(e) {
				delete(ents, e)
			}
		}
	}
	return ents
}
