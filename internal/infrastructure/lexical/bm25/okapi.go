// Package bm25 implements the Okapi BM25 ranking function over a tokenized
// corpus.
package bm25

import (
	"errors"
	"math"
)

const (
	DefaultK1      = 1.5
	DefaultB       = 0.75
	DefaultEpsilon = 0.25
)

// Model is a fitted BM25Okapi model. Fields are exported for gob persistence.
type Model struct {
	K1        float64
	B         float64
	Epsilon   float64
	AvgDocLen float64
	DocLens   []int
	DocFreqs  []map[string]int
	IDF       map[string]float64
}

// Fit builds a model over corpus, one token list per document. Terms whose
// idf would be negative are floored at Epsilon times the average idf.
func Fit(corpus [][]string) (*Model, error) {
	if len(corpus) == 0 {
		return nil, errors.New("bm25 fit: empty corpus")
	}
	m := &Model{
		K1:       DefaultK1,
		B:        DefaultB,
		Epsilon:  DefaultEpsilon,
		DocLens:  make([]int, len(corpus)),
		DocFreqs: make([]map[string]int, len(corpus)),
		IDF:      make(map[string]float64),
	}

	containing := make(map[string]int)
	total := 0
	for i, doc := range corpus {
		m.DocLens[i] = len(doc)
		total += len(doc)
		freqs := make(map[string]int, len(doc))
		for _, term := range doc {
			freqs[term]++
		}
		m.DocFreqs[i] = freqs
		for term := range freqs {
			containing[term]++
		}
	}
	m.AvgDocLen = float64(total) / float64(len(corpus))

	n := float64(len(corpus))
	idfSum := 0.0
	negative := make([]string, 0)
	for term, freq := range containing {
		idf := math.Log(n-float64(freq)+0.5) - math.Log(float64(freq)+0.5)
		m.IDF[term] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, term)
		}
	}
	if len(m.IDF) > 0 {
		eps := m.Epsilon * idfSum / float64(len(m.IDF))
		for _, term := range negative {
			m.IDF[term] = eps
		}
	}
	return m, nil
}

func (m *Model) Len() int { return len(m.DocLens) }

// Scores returns the BM25 score of every document for the query tokens, in
// corpus order. Repeated query tokens count once per occurrence.
func (m *Model) Scores(query []string) []float64 {
	scores := make([]float64, len(m.DocLens))
	if m.AvgDocLen == 0 {
		return scores
	}
	for _, term := range query {
		idf, ok := m.IDF[term]
		if !ok {
			continue
		}
		for i, freqs := range m.DocFreqs {
			tf := float64(freqs[term])
			if tf == 0 {
				continue
			}
			norm := m.K1 * (1 - m.B + m.B*float64(m.DocLens[i])/m.AvgDocLen)
			scores[i] += idf * (tf * (m.K1 + 1)) / (tf + norm)
		}
	}
	return scores
}
