package tfidf

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of sentence vectors kept in memory.
const DefaultCacheSize = 8192

// Vectorizer memoizes Table.Vectorize per sentence text. Candidate sentences
// take part in many pairs, so each one is weighted once per run.
type Vectorizer struct {
	table *Table
	cache *lru.Cache[string, Vector]
}

// NewVectorizer wraps table with an LRU cache of size entries. A size <= 0
// uses DefaultCacheSize.
func NewVectorizer(table *Table, size int) (*Vectorizer, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, Vector](size)
	if err != nil {
		return nil, fmt.Errorf("create vector cache: %w", err)
	}
	return &Vectorizer{table: table, cache: cache}, nil
}

// Vector returns the weighted vector of text. Returned vectors are shared
// and must not be modified.
func (v *Vectorizer) Vector(text string) Vector {
	if vec, ok := v.cache.Get(text); ok {
		return vec
	}
	vec := v.table.Vectorize(text)
	v.cache.Add(text, vec)
	return vec
}

// Similarity is the cosine similarity of the vectors of a and b.
func (v *Vectorizer) Similarity(a, b string) float64 {
	return Cosine(v.Vector(a), v.Vector(b))
}

// Table returns the underlying weight table.
func (v *Vectorizer) Table() *Table {
	return v.table
}
