// Package tfidf turns sentences into sparse TF-IDF vectors weighted against
// a corpus-wide inverse-document-frequency table, and compares them with
// cosine similarity.
package tfidf

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// minTokenLen is exclusive: tokens must be longer than this many runes.
const minTokenLen = 2

// Vector maps a term to its weight within one sentence.
type Vector map[string]float64

// Tokenize lowercases text, replaces punctuation with spaces and returns the
// remaining words longer than two characters.
//
// Text is NFKC-normalized first, so compatibility forms fold onto their
// plain equivalents ("ＹＰＲＥＳ" and "ﬁre" tokenize as "ypres" and "fire").
// This intentionally differs from a plain ASCII regex split and changes the
// term table for corpora that mix such forms.
func Tokenize(text string) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return ' '
	}, text)

	words := strings.Fields(cleaned)
	out := words[:0]
	for _, w := range words {
		if utf8.RuneCountInString(w) > minTokenLen {
			out = append(out, w)
		}
	}
	return out
}

// Table holds the inverse document frequency of every term seen in the
// corpus. Each sentence counts as one document. A Table is read-only after
// Build returns.
type Table struct {
	idf       map[string]float64
	sentences int
}

// Build computes idf(t) = ln(N / (1 + df(t))) over the given sentences.
func Build(sentences []string) *Table {
	df := make(map[string]int)
	for _, s := range sentences {
		seen := make(map[string]struct{})
		for _, w := range Tokenize(s) {
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			df[w]++
		}
	}

	n := float64(len(sentences))
	idf := make(map[string]float64, len(df))
	for w, f := range df {
		idf[w] = math.Log(n / float64(1+f))
	}
	return &Table{idf: idf, sentences: len(sentences)}
}

// IDF returns the weight of term, or 0 when the term never occurred.
func (t *Table) IDF(term string) float64 {
	return t.idf[term]
}

// Contains reports whether term occurred in the corpus.
func (t *Table) Contains(term string) bool {
	_, ok := t.idf[term]
	return ok
}

// Len returns the vocabulary size.
func (t *Table) Len() int {
	return len(t.idf)
}

// Sentences returns the number of sentences the table was built from.
func (t *Table) Sentences() int {
	return t.sentences
}

// Vectorize weights each term of text by tf/max(tf) times its idf.
func (t *Table) Vectorize(text string) Vector {
	words := Tokenize(text)
	if len(words) == 0 {
		return Vector{}
	}
	tf := make(map[string]int, len(words))
	maxTF := 0
	for _, w := range words {
		tf[w]++
		if tf[w] > maxTF {
			maxTF = tf[w]
		}
	}
	v := make(Vector, len(tf))
	for w, c := range tf {
		v[w] = float64(c) / float64(maxTF) * t.idf[w]
	}
	return v
}

// Cosine returns the cosine similarity of two sparse vectors. It is 0 when
// either vector is empty or has zero magnitude.
func Cosine(v1, v2 Vector) float64 {
	if len(v1) == 0 || len(v2) == 0 {
		return 0
	}
	small, large := v1, v2
	if len(small) > len(large) {
		small, large = large, small
	}
	var dot float64
	for _, w := range small.terms() {
		if y, ok := large[w]; ok {
			dot += small[w] * y
		}
	}
	m1, m2 := magnitude(v1), magnitude(v2)
	if m1 == 0 || m2 == 0 {
		return 0
	}
	return dot / (m1 * m2)
}

// terms returns the keys of v in sorted order. Sums are accumulated in this
// order so that repeated runs produce bit-identical scores.
func (v Vector) terms() []string {
	keys := make([]string, 0, len(v))
	for w := range v {
		keys = append(keys, w)
	}
	sort.Strings(keys)
	return keys
}

func magnitude(v Vector) float64 {
	var sum float64
	for _, w := range v.terms() {
		sum += v[w] * v[w]
	}
	return math.Sqrt(sum)
}
