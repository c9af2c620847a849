package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CanopyHQ/causalgraph/internal/causal"
	"github.com/CanopyHQ/causalgraph/internal/corpus"
	"github.com/CanopyHQ/causalgraph/internal/entity"
	"github.com/CanopyHQ/causalgraph/internal/profile"
)

const (
	bombardment = "The bombardment at Ypres caused heavy casualties among the battalion."
	shelling    = "Because of the shelling at Ypres, the battalion suffered many wounded."
	rain        = "Rain fell steadily across farmland for most of a quiet week."
	gasDrift    = "The line was abandoned owing to the heavy gas that drifted across at dawn."
)

func newIndexer(t *testing.T, p profile.Profile) *Indexer {
	t.Helper()
	d, err := causal.NewDetector(p.Vocabulary.Patterns)
	require.NoError(t, err)
	x := entity.NewExtractor(entity.Options{
		Gazetteer: p.Vocabulary.Gazetteer,
		StopWords: p.Vocabulary.StopWords,
		Dates:     p.Vocabulary.Dates,
		Units:     p.Vocabulary.Units,
		FilterAll: p.Vocabulary.FilterAllEntities,
	})
	return NewIndexer(d, x, p.Vocabulary, p.Scores.MinLength)
}

func TestTag(t *testing.T) {
	ix := newIndexer(t, profile.RuleBased())

	c, ok := ix.Tag("a", 3, bombardment)
	require.True(t, ok)
	assert.Equal(t, "a", c.DocumentID)
	assert.Equal(t, 3, c.Position)
	assert.Equal(t, causal.Forward, c.Direction())
	assert.Equal(t, "caused", c.Causal.Phrase)
	assert.Equal(t, 1, c.CauseIndicators)
	assert.Equal(t, 1, c.EffectIndicators)
	assert.Equal(t, []string{"battalion", "ypres"}, c.Entities.Sorted())

	_, ok = ix.Tag("a", 0, "The guns caused losses.")
	assert.False(t, ok, "short sentence")

	_, ok = ix.Tag("a", 0, rain)
	assert.False(t, ok, "no causal signal")

	c, ok = ix.Tag("a", 0, gasDrift)
	require.True(t, ok)
	assert.Equal(t, causal.Reverse, c.Direction())
	assert.False(t, c.CauseLeaning())
	assert.True(t, c.EffectLeaning())
}

func TestCandidate_leaning(t *testing.T) {
	tests := []struct {
		name         string
		c            Candidate
		cause, effet bool
	}{
		{"no signal", Candidate{}, false, false},
		{"more cause words", Candidate{CauseIndicators: 2, EffectIndicators: 1}, true, false},
		{"more effect words", Candidate{CauseIndicators: 1, EffectIndicators: 2}, false, true},
		{"tied words", Candidate{CauseIndicators: 1, EffectIndicators: 1}, false, false},
		{"forward", Candidate{Causal: causal.Match{Found: true, Direction: causal.Forward}}, true, true},
		{"reverse", Candidate{Causal: causal.Match{Found: true, Direction: causal.Reverse}}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.cause, tt.c.CauseLeaning())
			assert.Equal(t, tt.effet, tt.c.EffectLeaning())
		})
	}
}

func TestBuild(t *testing.T) {
	ix := newIndexer(t, profile.RuleBased())
	pool := ix.Build([]corpus.Document{
		{ID: "a", Sentences: []string{"Too short.", bombardment}},
		{ID: "b", Sentences: []string{shelling, rain, gasDrift}},
	})

	assert.Equal(t, 5, pool.Sentences())
	require.Equal(t, 3, pool.Len())
	for i, c := range pool.Candidates() {
		assert.Equal(t, i, c.ID)
	}
	assert.Equal(t, 1, pool.Candidate(0).Position)
	assert.Equal(t, "b", pool.Candidate(2).DocumentID)
	assert.Equal(t, 2, pool.Candidate(2).Position)

	assert.Equal(t, []int{0, 1}, pool.CauseLeaning())
	assert.Equal(t, []int{0, 1, 2}, pool.EffectLeaning())
	assert.Equal(t, []int{0, 1, 2}, pool.All())
	assert.Equal(t, []int{0, 1}, pool.Postings("ypres"))
	assert.Nil(t, pool.Postings("somme"))

	// Same-document candidates are never neighbors.
	assert.Equal(t, []int{1}, pool.Neighbors(pool.Candidate(0)))
	assert.Equal(t, []int{0}, pool.Neighbors(pool.Candidate(1)))
}

func TestBuild_empty(t *testing.T) {
	pool := newIndexer(t, profile.RuleBased()).Build(nil)
	assert.Equal(t, 0, pool.Len())
	assert.Equal(t, 0, pool.Sentences())
	assert.Empty(t, pool.All())
}

func TestNewIndexer_defaultLength(t *testing.T) {
	p := profile.RuleBased()
	ix := newIndexer(t, p)
	assert.Equal(t, MinLength, ix.minLength)

	p.Scores.MinLength = 0
	ix = newIndexer(t, p)
	assert.Equal(t, MinLength, ix.minLength)
}
