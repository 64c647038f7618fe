// Package ann implements in-process approximate nearest neighbour indexes
// over L2-normalized vectors scored by inner product.
package ann

import (
	"errors"
	"fmt"
	"sort"
)

type Kind string

const (
	KindFlat  Kind = "flat"
	KindIVF   Kind = "ivf"
	KindIVFPQ Kind = "ivfpq"
)

const (
	flatMaxVectors = 1000
	ivfMaxVectors  = 10000

	defaultNProbe     = 10
	defaultTrainIters = 20
	pqSubquantizers   = 8
	pqBits            = 8
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Result is one neighbour: the insertion position of the vector and its
// inner product with the query.
type Result struct {
	ID    int
	Score float32
}

// Index is a read-only nearest neighbour index. Implementations are safe for
// concurrent searches once built.
type Index interface {
	Kind() Kind
	Dimension() int
	Len() int
	Search(query []float32, k int) []Result
}

type Options struct {
	NProbe     int
	TrainIters int
	Seed       int64
}

func (o Options) normalize() Options {
	if o.NProbe <= 0 {
		o.NProbe = defaultNProbe
	}
	if o.TrainIters <= 0 {
		o.TrainIters = defaultTrainIters
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
	return o
}

// KindFor picks the index variant for a corpus of n vectors.
func KindFor(n int) Kind {
	switch {
	case n < flatMaxVectors:
		return KindFlat
	case n < ivfMaxVectors:
		return KindIVF
	default:
		return KindIVFPQ
	}
}

// Build trains (when the variant needs it) and fills an index with vectors.
// Result ids are positions in vectors.
func Build(vectors [][]float32, opts Options) (Index, error) {
	if len(vectors) == 0 {
		return nil, errors.New("ann build: no vectors")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("ann build: zero dimension")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("ann build: vector %d: %w", i, ErrDimensionMismatch)
		}
	}
	opts = opts.normalize()

	n := len(vectors)
	switch KindFor(n) {
	case KindFlat:
		flat := NewFlat(dim)
		flat.Add(vectors)
		return flat, nil
	case KindIVF:
		ivf := NewIVF(dim, clampLists(n/10, 100), opts)
		if err := ivf.Train(vectors); err != nil {
			return nil, err
		}
		if err := ivf.Add(vectors); err != nil {
			return nil, err
		}
		return ivf, nil
	default:
		nlist := clampLists(n/50, 1000)
		if dim%pqSubquantizers != 0 {
			ivf := NewIVF(dim, nlist, opts)
			if err := ivf.Train(vectors); err != nil {
				return nil, err
			}
			if err := ivf.Add(vectors); err != nil {
				return nil, err
			}
			return ivf, nil
		}
		ivfpq := NewIVFPQ(dim, nlist, pqSubquantizers, pqBits, opts)
		if err := ivfpq.Train(vectors); err != nil {
			return nil, err
		}
		if err := ivfpq.Add(vectors); err != nil {
			return nil, err
		}
		return ivfpq, nil
	}
}

func clampLists(n, max int) int {
	if n > max {
		n = max
	}
	if n < 1 {
		n = 1
	}
	return n
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// topK orders results by score descending, then id ascending, and keeps k.
func topK(results []Result, k int) []Result {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
