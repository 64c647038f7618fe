package ann

import (
	"errors"
	"fmt"
	"math/rand"
)

// IVFPQ is an inverted-file index whose vectors are stored as product
// quantized residuals against their list centroid. Scores are approximate.
type IVFPQ struct {
	Dim       int
	NList     int
	NProbe    int
	M         int
	Bits      int
	Centroids [][]float32
	// Codebooks[m][code] is a sub-vector of length Dim/M.
	Codebooks [][][]float32
	Lists     [][]int
	Codes     []byte
	Count     int

	trainIters int
	seed       int64
}

func NewIVFPQ(dim, nlist, m, bits int, opts Options) *IVFPQ {
	opts = opts.normalize()
	return &IVFPQ{
		Dim:        dim,
		NList:      nlist,
		NProbe:     opts.NProbe,
		M:          m,
		Bits:       bits,
		trainIters: opts.TrainIters,
		seed:       opts.Seed,
	}
}

func (x *IVFPQ) Kind() Kind     { return KindIVFPQ }
func (x *IVFPQ) Dimension() int { return x.Dim }
func (x *IVFPQ) Len() int       { return x.Count }
func (x *IVFPQ) Trained() bool  { return len(x.Centroids) > 0 && len(x.Codebooks) == x.M }

func (x *IVFPQ) subDim() int { return x.Dim / x.M }

func (x *IVFPQ) Train(vectors [][]float32) error {
	if len(vectors) == 0 {
		return errors.New("ivfpq train: no vectors")
	}
	if x.M <= 0 || x.Dim%x.M != 0 {
		return fmt.Errorf("ivfpq train: dimension %d not divisible by %d sub-quantizers", x.Dim, x.M)
	}
	if x.Bits <= 0 || x.Bits > 8 {
		return fmt.Errorf("ivfpq train: unsupported code size %d bits", x.Bits)
	}
	rng := rand.New(rand.NewSource(x.seed))

	x.Centroids = kmeans(vectors, x.NList, x.trainIters, rng)
	x.NList = len(x.Centroids)
	x.Lists = make([][]int, x.NList)

	residuals := make([][]float32, len(vectors))
	for i, v := range vectors {
		residuals[i] = residual(v, x.Centroids[nearestCentroid(v, x.Centroids)])
	}

	ksub := 1 << x.Bits
	dsub := x.subDim()
	x.Codebooks = make([][][]float32, x.M)
	for m := 0; m < x.M; m++ {
		sub := make([][]float32, len(residuals))
		for i, r := range residuals {
			sub[i] = r[m*dsub : (m+1)*dsub]
		}
		x.Codebooks[m] = kmeans(sub, ksub, x.trainIters, rng)
	}
	return nil
}

func (x *IVFPQ) Add(vectors [][]float32) error {
	if !x.Trained() {
		return ErrNotTrained
	}
	dsub := x.subDim()
	for _, v := range vectors {
		list := nearestCentroid(v, x.Centroids)
		r := residual(v, x.Centroids[list])
		for m := 0; m < x.M; m++ {
			x.Codes = append(x.Codes, byte(nearestCentroid(r[m*dsub:(m+1)*dsub], x.Codebooks[m])))
		}
		x.Lists[list] = append(x.Lists[list], x.Count)
		x.Count++
	}
	return nil
}

// Search scores <q, centroid + decoded residual>, which splits into a
// per-list term and per-sub-quantizer lookup tables.
func (x *IVFPQ) Search(query []float32, k int) []Result {
	if len(query) != x.Dim || k <= 0 || !x.Trained() {
		return nil
	}
	dsub := x.subDim()
	tables := make([][]float32, x.M)
	for m := 0; m < x.M; m++ {
		q := query[m*dsub : (m+1)*dsub]
		tables[m] = make([]float32, len(x.Codebooks[m]))
		for code, centroid := range x.Codebooks[m] {
			tables[m][code] = dot(q, centroid)
		}
	}

	results := make([]Result, 0, k*4)
	for _, list := range nearestCentroids(query, x.Centroids, x.NProbe) {
		base := dot(query, x.Centroids[list])
		for _, id := range x.Lists[list] {
			score := base
			codes := x.Codes[id*x.M : (id+1)*x.M]
			for m, code := range codes {
				score += tables[m][code]
			}
			results = append(results, Result{ID: id, Score: score})
		}
	}
	return topK(results, k)
}

func residual(v, centroid []float32) []float32 {
	out := make([]float32, len(v))
	for i := range v {
		out[i] = v[i] - centroid[i]
	}
	return out
}
