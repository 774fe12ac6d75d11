package search

import (
	"math"
	"slices"
)

const (
	// DefaultK1 is the term-frequency saturation parameter.
	DefaultK1 = 1.5

	// DefaultB is the length normalization parameter.
	DefaultB = 0.75
)

// BM25 is an Okapi BM25 keyword index over a fixed document set.
// Fit rebuilds it completely; there is no incremental update.
// It is not safe for concurrent mutation; Engine guards it.
type BM25 struct {
	k1 float64
	b  float64

	termFreqs []map[string]int
	docLens   []int
	docFreqs  map[string]int
	idf       map[string]float64
	avgDocLen float64
}

// Hit is one scored document.
type Hit struct {
	Index int
	Score float64
}

// NewBM25 returns an empty index with the given parameters.
func NewBM25(k1, b float64) *BM25 {
	return &BM25{
		k1:       k1,
		b:        b,
		docFreqs: map[string]int{},
		idf:      map[string]float64{},
	}
}

// Fit replaces the indexed documents.
func (m *BM25) Fit(docs []string) {
	m.termFreqs = make([]map[string]int, len(docs))
	m.docLens = make([]int, len(docs))
	m.docFreqs = make(map[string]int)

	total := 0
	for i, doc := range docs {
		tokens := Tokenize(doc)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for t := range tf {
			m.docFreqs[t]++
		}
		m.termFreqs[i] = tf
		m.docLens[i] = len(tokens)
		total += len(tokens)
	}

	m.avgDocLen = 0
	if len(docs) > 0 {
		m.avgDocLen = float64(total) / float64(len(docs))
	}

	n := float64(len(docs))
	m.idf = make(map[string]float64, len(m.docFreqs))
	for t, df := range m.docFreqs {
		m.idf[t] = math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)
	}
}

// Len returns the number of fitted documents.
func (m *BM25) Len() int {
	return len(m.termFreqs)
}

// Score returns the BM25 score of document i for query. Out-of-range
// indexes score 0.
func (m *BM25) Score(query string, i int) float64 {
	return m.scoreTokens(Tokenize(query), i)
}

func (m *BM25) scoreTokens(query []string, i int) float64 {
	if i < 0 || i >= len(m.termFreqs) {
		return 0
	}
	tf := m.termFreqs[i]
	lengthRatio := 0.0
	if m.avgDocLen > 0 {
		lengthRatio = float64(m.docLens[i]) / m.avgDocLen
	}
	norm := m.k1 * (1 - m.b + m.b*lengthRatio)

	var score float64
	for _, t := range query {
		idf, ok := m.idf[t]
		if !ok {
			continue
		}
		f := float64(tf[t])
		if f == 0 {
			continue
		}
		score += idf * (f * (m.k1 + 1)) / (f + norm)
	}
	return score
}

// Search scores every document and returns up to topK hits with a positive
// score, best first. Equal scores keep index order. topK <= 0 returns all.
func (m *BM25) Search(query string, topK int) []Hit {
	tokens := Tokenize(query)
	hits := make([]Hit, 0)
	for i := range m.termFreqs {
		if s := m.scoreTokens(tokens, i); s > 0 {
			hits = append(hits, Hit{Index: i, Score: s})
		}
	}
	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
