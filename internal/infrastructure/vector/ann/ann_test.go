package ann

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"
)

func randomUnitVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		var norm float64
		for d := range v {
			v[d] = float32(rng.NormFloat64())
			norm += float64(v[d]) * float64(v[d])
		}
		inv := float32(1 / math.Sqrt(norm))
		for d := range v {
			v[d] *= inv
		}
		out[i] = v
	}
	return out
}

func TestKindForThresholds(t *testing.T) {
	cases := map[int]Kind{1: KindFlat, 999: KindFlat, 1000: KindIVF, 9999: KindIVF, 10000: KindIVFPQ}
	for n, want := range cases {
		if got := KindFor(n); got != want {
			t.Fatalf("KindFor(%d) = %s, want %s", n, got, want)
		}
	}
}

func TestFlatSearchExact(t *testing.T) {
	vectors := [][]float32{{1, 0}, {0, 1}, {0.6, 0.8}}
	idx, err := Build(vectors, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if idx.Kind() != KindFlat || idx.Len() != 3 || idx.Dimension() != 2 {
		t.Fatalf("unexpected index %s len=%d dim=%d", idx.Kind(), idx.Len(), idx.Dimension())
	}

	results := idx.Search([]float32{1, 0}, 2)
	if len(results) != 2 || results[0].ID != 0 || results[1].ID != 2 {
		t.Fatalf("unexpected results %+v", results)
	}
	if math.Abs(float64(results[1].Score)-0.6) > 1e-6 {
		t.Fatalf("expected inner product 0.6, got %v", results[1].Score)
	}
	if got := idx.Search([]float32{1, 0, 0}, 2); got != nil {
		t.Fatalf("expected nil for wrong query dimension, got %+v", got)
	}
}

func TestBuildRejectsMixedDimensions(t *testing.T) {
	_, err := Build([][]float32{{1, 0}, {1}}, Options{})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestIVFFullProbeMatchesFlat(t *testing.T) {
	vectors := randomUnitVectors(400, 8, 7)
	ivf := NewIVF(8, 10, Options{NProbe: 10})
	if err := ivf.Add(vectors); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained before training, got %v", err)
	}
	if err := ivf.Train(vectors); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if err := ivf.Add(vectors); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	flat := NewFlat(8)
	flat.Add(vectors)

	for q := 0; q < 20; q++ {
		want := flat.Search(vectors[q], 5)
		got := ivf.Search(vectors[q], 5)
		if len(got) != len(want) {
			t.Fatalf("query %d: expected %d results, got %d", q, len(want), len(got))
		}
		for i := range want {
			if got[i].ID != want[i].ID {
				t.Fatalf("query %d rank %d: expected id %d, got %d", q, i, want[i].ID, got[i].ID)
			}
		}
	}
}

func TestIVFPQSearchAndPersistence(t *testing.T) {
	vectors := randomUnitVectors(300, 16, 11)
	idx := NewIVFPQ(16, 4, 8, 4, Options{NProbe: 4})
	if err := idx.Train(vectors); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if err := idx.Add(vectors); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if idx.Len() != 300 {
		t.Fatalf("expected 300 vectors, got %d", idx.Len())
	}

	results := idx.Search(vectors[0], 10)
	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatalf("results not sorted at %d: %+v", i, results)
		}
	}

	var buf bytes.Buffer
	if err := Save(&buf, idx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(&buf, 2)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	pq, ok := loaded.(*IVFPQ)
	if !ok {
		t.Fatalf("expected *IVFPQ, got %T", loaded)
	}
	if pq.NProbe != 2 {
		t.Fatalf("expected nprobe override 2, got %d", pq.NProbe)
	}
	pq.NProbe = 4
	again := pq.Search(vectors[0], 10)
	for i := range results {
		if again[i] != results[i] {
			t.Fatalf("result %d differs after reload: %+v vs %+v", i, again[i], results[i])
		}
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	if _, err := Load(bytes.NewReader([]byte("not an index")), 0); err == nil {
		t.Fatalf("expected error for corrupt blob")
	}
}
