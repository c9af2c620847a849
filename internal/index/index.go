// Package index scans a corpus for candidate sentences: sentences long
// enough to carry causal meaning that contain causal language or at least
// one cause/effect indicator word. The resulting Pool also keeps an
// inverted entity index so pairing only visits candidates that share an
// entity.
package index

import (
	"sort"
	"unicode/utf8"

	"github.com/CanopyHQ/causalgraph/internal/causal"
	"github.com/CanopyHQ/causalgraph/internal/corpus"
	"github.com/CanopyHQ/causalgraph/internal/entity"
	"github.com/CanopyHQ/causalgraph/internal/profile"
)

// MinLength is the default minimum sentence length, in characters.
const MinLength = 50

// Candidate is a sentence retained for pairing. Candidates are created once
// during indexing and never modified.
type Candidate struct {
	ID               int
	DocumentID       string
	Position         int
	Text             string
	Entities         entity.Set
	Causal           causal.Match
	CauseIndicators  int
	EffectIndicators int
}

// Direction is the causal direction detected in the sentence.
func (c *Candidate) Direction() causal.Direction {
	return c.Causal.Direction
}

// CauseLeaning reports whether c is more likely the cause side of a pair.
func (c *Candidate) CauseLeaning() bool {
	return c.CauseIndicators > c.EffectIndicators || c.Causal.Direction == causal.Forward
}

// EffectLeaning reports whether c is more likely the effect side of a pair.
// Any explicit causal language qualifies, so a sentence can lean both ways.
func (c *Candidate) EffectLeaning() bool {
	return c.EffectIndicators > c.CauseIndicators ||
		c.Causal.Direction == causal.Reverse ||
		c.Causal.Found
}

// Pool is the candidate set of one run. It is read-only after Build.
type Pool struct {
	candidates []*Candidate
	byEntity   map[string][]int
	cause      []int
	effect     []int
	sentences  int
}

// Indexer tags sentences using a profile's vocabulary.
type Indexer struct {
	detector    *causal.Detector
	extractor   *entity.Extractor
	causeWords  []string
	effectWords []string
	minLength   int
}

// NewIndexer builds an Indexer from a detector, an entity extractor and a
// vocabulary. minLength <= 0 uses MinLength.
func NewIndexer(d *causal.Detector, x *entity.Extractor, vocab profile.Vocabulary, minLength int) *Indexer {
	if minLength <= 0 {
		minLength = MinLength
	}
	return &Indexer{
		detector:    d,
		extractor:   x,
		causeWords:  vocab.CauseWords,
		effectWords: vocab.EffectWords,
		minLength:   minLength,
	}
}

// Tag computes the features of one sentence and reports whether it
// qualifies as a candidate.
func (ix *Indexer) Tag(docID string, pos int, text string) (*Candidate, bool) {
	if utf8.RuneCountInString(text) < ix.minLength {
		return nil, false
	}
	c := &Candidate{
		DocumentID:       docID,
		Position:         pos,
		Text:             text,
		Causal:           ix.detector.Detect(text),
		CauseIndicators:  profile.CountIndicators(text, ix.causeWords),
		EffectIndicators: profile.CountIndicators(text, ix.effectWords),
	}
	if !c.Causal.Found && c.CauseIndicators == 0 && c.EffectIndicators == 0 {
		return nil, false
	}
	c.Entities = ix.extractor.Extract(text)
	return c, true
}

// Build indexes every sentence of docs in document order.
func (ix *Indexer) Build(docs []corpus.Document) *Pool {
	p := &Pool{byEntity: make(map[string][]int)}
	for _, doc := range docs {
		for pos, text := range doc.Sentences {
			p.sentences++
			c, ok := ix.Tag(doc.ID, pos, text)
			if !ok {
				continue
			}
			c.ID = len(p.candidates)
			p.candidates = append(p.candidates, c)

			// IDs grow monotonically, so every posting list stays sorted.
			for e := range c.Entities {
				p.byEntity[e] = append(p.byEntity[e], c.ID)
			}
			if c.CauseLeaning() {
				p.cause = append(p.cause, c.ID)
			}
			if c.EffectLeaning() {
				p.effect = append(p.effect, c.ID)
			}
		}
	}
	return p
}

// Len is the number of candidates.
func (p *Pool) Len() int { return len(p.candidates) }

// Sentences is the number of sentences scanned, candidates or not.
func (p *Pool) Sentences() int { return p.sentences }

// Candidate returns the candidate with the given id.
func (p *Pool) Candidate(id int) *Candidate { return p.candidates[id] }

// Candidates returns all candidates in index order.
func (p *Pool) Candidates() []*Candidate { return p.candidates }

// CauseLeaning returns the ids of cause-leaning candidates, ascending.
func (p *Pool) CauseLeaning() []int { return p.cause }

// EffectLeaning returns the ids of effect-leaning candidates, ascending.
func (p *Pool) EffectLeaning() []int { return p.effect }

// All returns every candidate id, ascending.
func (p *Pool) All() []int {
	ids := make([]int, len(p.candidates))
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// Postings returns the ids of candidates mentioning e, ascending.
func (p *Pool) Postings(e string) []int { return p.byEntity[e] }

// Neighbors returns, in ascending order, the ids of candidates from a
// different document than c that share at least one entity with it.
func (p *Pool) Neighbors(c *Candidate) []int {
	seen := make(map[int]struct{})
	var out []int
	for e := range c.Entities {
		for _, id := range p.byEntity[e] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if p.candidates[id].DocumentID != c.DocumentID {
				out = append(out, id)
			}
		}
	}
	sort.Ints(out)
	return out
}
