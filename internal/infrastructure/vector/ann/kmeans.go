package ann

import (
	"math"
	"math/rand"
	"runtime"
	"sync"
)

const maxPointsPerCentroid = 64

// kmeans runs Lloyd iterations under squared L2 distance. Training points are
// subsampled to maxPointsPerCentroid per centroid.
func kmeans(points [][]float32, k, iters int, rng *rand.Rand) [][]float32 {
	if k > len(points) {
		k = len(points)
	}
	if limit := k * maxPointsPerCentroid; len(points) > limit {
		sample := make([][]float32, 0, limit)
		for _, idx := range rng.Perm(len(points))[:limit] {
			sample = append(sample, points[idx])
		}
		points = sample
	}

	dim := len(points[0])
	centroids := make([][]float32, k)
	for i, idx := range rng.Perm(len(points))[:k] {
		centroids[i] = append([]float32(nil), points[idx]...)
	}

	assignments := make([]int, len(points))
	for iter := 0; iter < iters; iter++ {
		changed := assignAll(points, centroids, assignments)

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, p := range points {
			c := assignments[i]
			counts[c]++
			for d, v := range p {
				sums[c][d] += float64(v)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				centroids[c] = append([]float32(nil), points[rng.Intn(len(points))]...)
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
		if iter > 0 && changed == 0 {
			break
		}
	}
	return centroids
}

// assignAll writes the nearest centroid of every point and returns how many
// assignments changed.
func assignAll(points, centroids [][]float32, assignments []int) int {
	workers := runtime.GOMAXPROCS(0)
	if workers > len(points) {
		workers = len(points)
	}
	step := (len(points) + workers - 1) / workers

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
	)
	for start := 0; start < len(points); start += step {
		end := start + step
		if end > len(points) {
			end = len(points)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			local := 0
			for i := start; i < end; i++ {
				c := nearestCentroid(points[i], centroids)
				if c != assignments[i] {
					assignments[i] = c
					local++
				}
			}
			mu.Lock()
			changed += local
			mu.Unlock()
		}(start, end)
	}
	wg.Wait()
	return changed
}

func nearestCentroid(point []float32, centroids [][]float32) int {
	best := 0
	bestDist := float32(math.MaxFloat32)
	for c, centroid := range centroids {
		if d := squaredL2(point, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// nearestCentroids returns the n centroid indexes closest to point.
func nearestCentroids(point []float32, centroids [][]float32, n int) []int {
	results := make([]Result, len(centroids))
	for c, centroid := range centroids {
		results[c] = Result{ID: c, Score: -squaredL2(point, centroid)}
	}
	results = topK(results, n)
	out := make([]int, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
