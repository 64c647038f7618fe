package ann

import (
	"errors"
	"math/rand"
)

var ErrNotTrained = errors.New("index is not trained")

// IVF partitions vectors into inverted lists around k-means centroids and
// searches only the NProbe closest lists.
type IVF struct {
	Dim       int
	NList     int
	NProbe    int
	Centroids [][]float32
	Lists     [][]int
	Data      []float32

	trainIters int
	seed       int64
}

func NewIVF(dim, nlist int, opts Options) *IVF {
	opts = opts.normalize()
	return &IVF{
		Dim:        dim,
		NList:      nlist,
		NProbe:     opts.NProbe,
		trainIters: opts.TrainIters,
		seed:       opts.Seed,
	}
}

func (x *IVF) Kind() Kind     { return KindIVF }
func (x *IVF) Dimension() int { return x.Dim }

func (x *IVF) Len() int {
	if x.Dim == 0 {
		return 0
	}
	return len(x.Data) / x.Dim
}

func (x *IVF) Trained() bool { return len(x.Centroids) > 0 }

func (x *IVF) Train(vectors [][]float32) error {
	if len(vectors) == 0 {
		return errors.New("ivf train: no vectors")
	}
	x.Centroids = kmeans(vectors, x.NList, x.trainIters, rand.New(rand.NewSource(x.seed)))
	x.NList = len(x.Centroids)
	x.Lists = make([][]int, x.NList)
	return nil
}

// Add appends vectors; the index must be trained first.
func (x *IVF) Add(vectors [][]float32) error {
	if !x.Trained() {
		return ErrNotTrained
	}
	for _, v := range vectors {
		id := x.Len()
		x.Data = append(x.Data, v...)
		list := nearestCentroid(v, x.Centroids)
		x.Lists[list] = append(x.Lists[list], id)
	}
	return nil
}

func (x *IVF) Search(query []float32, k int) []Result {
	if len(query) != x.Dim || k <= 0 || !x.Trained() {
		return nil
	}
	results := make([]Result, 0, k*4)
	for _, list := range nearestCentroids(query, x.Centroids, x.NProbe) {
		for _, id := range x.Lists[list] {
			results = append(results, Result{ID: id, Score: dot(query, x.Data[id*x.Dim:(id+1)*x.Dim])})
		}
	}
	return topK(results, k)
}
