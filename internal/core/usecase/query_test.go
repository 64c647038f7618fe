package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

type queryEmbedderFake struct {
	mu     sync.Mutex
	vector []float32
	err    error
	calls  int
}

func (f *queryEmbedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = append([]float32(nil), f.vector...)
	}
	return out, f.err
}

func (f *queryEmbedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.vector...), nil
}

// corpusFake returns fixed dense candidates and lexical scores.
type corpusFake struct {
	chunks      []domain.KnowledgeChunk
	dense       []float64
	lexical     []float64
	dim         int
	lastK       int
	fingerprint string
}

func newCorpusFake(n int) *corpusFake {
	f := &corpusFake{dim: 2, dense: make([]float64, n), lexical: make([]float64, n)}
	for i := 0; i < n; i++ {
		f.chunks = append(f.chunks, domain.KnowledgeChunk{
			ID:          string(rune('a'+i)) + "#general",
			Position:    i,
			EntityKey:   "entity-" + string(rune('a'+i)),
			DisplayName: "Cây " + string(rune('A'+i)),
			Category:    domain.CategoryGeneral,
			Text:        "Cây: heading\n- Mô tả: body " + string(rune('a'+i)),
		})
	}
	return f
}

func (f *corpusFake) Len() int       { return len(f.chunks) }
func (f *corpusFake) Dimension() int { return f.dim }
func (f *corpusFake) Fingerprint() string { return f.fingerprint }
func (f *corpusFake) Chunk(position int) (domain.KnowledgeChunk, bool) {
	if position < 0 || position >= len(f.chunks) {
		return domain.KnowledgeChunk{}, false
	}
	return f.chunks[position], true
}

func (f *corpusFake) SearchDense(_ []float32, k int) []domain.SearchHit {
	f.lastK = k
	hits := make([]domain.SearchHit, 0, len(f.chunks))
	for i, chunk := range f.chunks {
		hits = append(hits, domain.SearchHit{Chunk: chunk, Score: f.dense[i]})
	}
	sortHits(hits)
	return trimHits(hits, k)
}

func (f *corpusFake) ScoreLexical(string) []float64 {
	return append([]float64(nil), f.lexical...)
}

type stageCacheFake struct {
	mu      sync.Mutex
	entries map[string][]domain.SearchHit
	cleared int
}

func newStageCacheFake() *stageCacheFake {
	return &stageCacheFake{entries: map[string][]domain.SearchHit{}}
}

func (c *stageCacheFake) Get(_ context.Context, key string) ([]domain.SearchHit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hits, ok := c.entries[key]
	return hits, ok
}

func (c *stageCacheFake) Set(_ context.Context, key string, hits []domain.SearchHit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = hits
}

func (c *stageCacheFake) Clear(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string][]domain.SearchHit{}
	c.cleared++
}

func positions(hits []domain.SearchHit) []int {
	out := make([]int, 0, len(hits))
	for _, hit := range hits {
		out = append(out, hit.Chunk.Position)
	}
	return out
}

func TestHybridSearchUnloadedIndexReturnsEmpty(t *testing.T) {
	uc := NewQueryUseCase(&queryEmbedderFake{vector: []float32{1, 0}}, nil, nil, DefaultRetrievalConfig())

	hits, err := uc.HybridSearch(context.Background(), "ngải cứu", 5)
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits without index, got %d", len(hits))
	}
	if uc.Ready() {
		t.Fatalf("engine must not be ready before swap")
	}
}

func TestHybridSearchAppliesThresholdAndCutoff(t *testing.T) {
	corpus := newCorpusFake(4)
	corpus.dense = []float64{0.9, 0.59, 0.6, 0.1}
	corpus.lexical = []float64{0, 6.0, 6.5, 12}

	uc := NewQueryUseCase(&queryEmbedderFake{vector: []float32{3, 4}}, nil, nil, DefaultRetrievalConfig())
	uc.Swap(context.Background(), corpus)

	dense, err := uc.DenseSearch(context.Background(), "q", 10)
	if err != nil {
		t.Fatalf("DenseSearch() error = %v", err)
	}
	if got := positions(dense); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("expected dense positions [0 2], got %v", got)
	}

	lexical := uc.LexicalSearch(context.Background(), "q", 10)
	if got := positions(lexical); len(got) != 2 || got[0] != 3 || got[1] != 2 {
		t.Fatalf("expected lexical positions [3 2], got %v", got)
	}

	hits, err := uc.HybridSearch(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	// position 2 is in both lists: 1/62 + 1/62 beats a single 1/61.
	if got := positions(hits); len(got) != 3 || got[0] != 2 || got[1] != 0 || got[2] != 3 {
		t.Fatalf("unexpected fused order %v", got)
	}
}

func TestHybridSearchRequestsCandidateMultiple(t *testing.T) {
	corpus := newCorpusFake(20)
	for i := range corpus.dense {
		corpus.dense[i] = 0.9
	}
	uc := NewQueryUseCase(&queryEmbedderFake{vector: []float32{1, 0}}, nil, nil, DefaultRetrievalConfig())
	uc.Swap(context.Background(), corpus)

	hits, err := uc.HybridSearch(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if corpus.lastK != 6 {
		t.Fatalf("expected dense candidate k=6, got %d", corpus.lastK)
	}
	if len(hits) != 2 {
		t.Fatalf("expected top_k=2 hits, got %d", len(hits))
	}
}

func TestHybridSearchDeterministicAndCached(t *testing.T) {
	corpus := newCorpusFake(6)
	corpus.dense = []float64{0.7, 0.8, 0.9, 0.65, 0.2, 0.61}
	corpus.lexical = []float64{7, 0, 9, 8, 10, 0}

	embedder := &queryEmbedderFake{vector: []float32{1, 1}}
	dense := newStageCacheFake()
	lexical := newStageCacheFake()
	uc := NewQueryUseCase(embedder, dense, lexical, DefaultRetrievalConfig())
	uc.Swap(context.Background(), corpus)

	first, err := uc.HybridSearch(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := uc.HybridSearch(context.Background(), "q", 3)
		if err != nil {
			t.Fatalf("HybridSearch() error = %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("result length changed: %d vs %d", len(again), len(first))
		}
		for j := range first {
			if again[j].Chunk.Position != first[j].Chunk.Position || again[j].Score != first[j].Score {
				t.Fatalf("result %d changed between calls", j)
			}
		}
	}
	if embedder.calls != 1 {
		t.Fatalf("expected cached dense stage to embed once, got %d", embedder.calls)
	}
	if len(dense.entries) != 1 || len(lexical.entries) != 1 {
		t.Fatalf("expected one entry per stage cache, got %d/%d", len(dense.entries), len(lexical.entries))
	}

	uc.Swap(context.Background(), corpus)
	if dense.cleared != 2 || lexical.cleared != 2 {
		t.Fatalf("expected caches cleared on every swap, got %d/%d", dense.cleared, lexical.cleared)
	}
	if _, err := uc.HybridSearch(context.Background(), "q", 3); err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if embedder.calls != 2 {
		t.Fatalf("expected re-embed after swap, got %d calls", embedder.calls)
	}
}

func TestSharedStageCacheKeyedByIndexFingerprint(t *testing.T) {
	dense := newStageCacheFake()
	lexical := newStageCacheFake()

	oldBuild := newCorpusFake(3)
	oldBuild.fingerprint = "build-1"
	oldBuild.dense = []float64{0.9, 0.1, 0.1}
	oldBuild.lexical = []float64{9, 0, 0}

	newBuild := newCorpusFake(3)
	newBuild.fingerprint = "build-2"
	newBuild.dense = []float64{0.1, 0.1, 0.9}
	newBuild.lexical = []float64{0, 0, 9}

	sameBuild := newCorpusFake(3)
	sameBuild.fingerprint = "build-1"
	sameBuild.dense = oldBuild.dense
	sameBuild.lexical = oldBuild.lexical

	// Each process has swapped exactly once, so their local counters agree.
	apiEmbedder := &queryEmbedderFake{vector: []float32{1, 0}}
	api := NewQueryUseCase(apiEmbedder, dense, lexical, DefaultRetrievalConfig())
	api.Swap(context.Background(), oldBuild)
	workerEmbedder := &queryEmbedderFake{vector: []float32{1, 0}}
	worker := NewQueryUseCase(workerEmbedder, dense, lexical, DefaultRetrievalConfig())
	worker.Swap(context.Background(), newBuild)
	replicaEmbedder := &queryEmbedderFake{vector: []float32{1, 0}}
	replica := NewQueryUseCase(replicaEmbedder, dense, lexical, DefaultRetrievalConfig())
	replica.Swap(context.Background(), sameBuild)

	fromOld, err := api.HybridSearch(context.Background(), "gừng", 1)
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	fromNew, err := worker.HybridSearch(context.Background(), "gừng", 1)
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if got := positions(fromOld); len(got) != 1 || got[0] != 0 {
		t.Fatalf("old build expected position 0, got %v", got)
	}
	if got := positions(fromNew); len(got) != 1 || got[0] != 2 {
		t.Fatalf("new build must not read old build entries, got %v", got)
	}
	if workerEmbedder.calls != 1 {
		t.Fatalf("new build expected its own dense stage, got %d embeds", workerEmbedder.calls)
	}
	if len(dense.entries) != 2 || len(lexical.entries) != 2 {
		t.Fatalf("expected one entry per build and stage, got %d/%d", len(dense.entries), len(lexical.entries))
	}

	fromReplica, err := replica.HybridSearch(context.Background(), "gừng", 1)
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if replicaEmbedder.calls != 0 {
		t.Fatalf("same build expected a shared cache hit, got %d embeds", replicaEmbedder.calls)
	}
	if got := positions(fromReplica); len(got) != 1 || got[0] != 0 {
		t.Fatalf("same build expected position 0, got %v", got)
	}
}

func TestHybridSearchDenseFailureKeepsLexical(t *testing.T) {
	corpus := newCorpusFake(3)
	corpus.lexical = []float64{0, 9, 0}

	uc := NewQueryUseCase(&queryEmbedderFake{err: errors.New("embedder down")}, nil, nil, DefaultRetrievalConfig())
	uc.Swap(context.Background(), corpus)

	hits, err := uc.HybridSearch(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if got := positions(hits); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected lexical-only hit [1], got %v", got)
	}
}

func TestHybridSearchDimensionMismatch(t *testing.T) {
	corpus := newCorpusFake(2)
	corpus.dense = []float64{0.9, 0.9}
	uc := NewQueryUseCase(&queryEmbedderFake{vector: []float32{1, 0, 0}}, nil, nil, DefaultRetrievalConfig())
	uc.Swap(context.Background(), corpus)

	_, err := uc.DenseSearch(context.Background(), "q", 3)
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected index unavailable, got %v", err)
	}
}

func TestBuildContextGroupsByEntity(t *testing.T) {
	hits := []domain.SearchHit{
		{Score: 0.031, Chunk: domain.KnowledgeChunk{
			EntityKey: "Artemisia vulgaris", DisplayName: "Ngải cứu", Category: domain.CategoryGeneral,
			Text: "Cây: Ngải cứu (Artemisia vulgaris)\n- Mô tả: cây thảo",
		}},
		{Score: 0.030, Chunk: domain.KnowledgeChunk{
			EntityKey: "Zingiber officinale", DisplayName: "Gừng", Category: domain.CategoryRelational,
			Text: "Cây thuốc: Gừng (Zingiber officinale)\nCông dụng chữa bệnh:\n- Chữa cảm",
		}},
		{Score: 0.032, Chunk: domain.KnowledgeChunk{
			EntityKey: "Artemisia vulgaris", DisplayName: "Ngải cứu", Category: domain.CategoryRelational,
			Text: "Cây thuốc: Ngải cứu (Artemisia vulgaris)\nCông dụng chữa bệnh:\n- Chữa đau bụng",
		}},
	}

	text := buildContext(hits)
	if !strings.HasPrefix(text, "THÔNG TIN LIÊN QUAN TỪ CÁC LOÀI CÂY:") {
		t.Fatalf("missing header: %q", text)
	}
	first := strings.Index(text, "--- Cây 1: Ngải cứu (Artemisia vulgaris) ---")
	second := strings.Index(text, "--- Cây 2: Gừng (Zingiber officinale) ---")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("expected entity groups in first-seen order: %q", text)
	}
	medical := strings.Index(text, "[Thông tin Y học]")
	botany := strings.Index(text, "[Thông tin Thực vật học]")
	if medical < 0 || botany < 0 || medical > botany {
		t.Fatalf("expected higher scored relational chunk first within group: %q", text)
	}
	if !strings.Contains(text, "(Độ liên quan của đoạn này: 0.032)") {
		t.Fatalf("missing relevance annotation: %q", text)
	}
	if strings.Contains(text, "Cây thuốc: Ngải cứu") {
		t.Fatalf("chunk heading should be dropped: %q", text)
	}
}

func TestBuildContextEmpty(t *testing.T) {
	if got := buildContext(nil); got != noContextFound {
		t.Fatalf("unexpected empty context %q", got)
	}
}

func TestRetrievalConfigZeroThresholdsArePassedThrough(t *testing.T) {
	corpus := newCorpusFake(3)
	corpus.dense = []float64{0.0, -0.2, 0.3}
	corpus.lexical = []float64{0, 0.5, 0}

	cfg := DefaultRetrievalConfig()
	cfg.MinSimilarity = 0
	cfg.LexicalCutoff = 0
	uc := NewQueryUseCase(&queryEmbedderFake{vector: []float32{1, 0}}, nil, nil, cfg)
	uc.Swap(context.Background(), corpus)

	dense, err := uc.DenseSearch(context.Background(), "q", 10)
	if err != nil {
		t.Fatalf("DenseSearch() error = %v", err)
	}
	if got := positions(dense); len(got) != 2 || got[0] != 2 || got[1] != 0 {
		t.Fatalf("zero threshold expected dense positions [2 0], got %v", got)
	}
	if got := positions(uc.LexicalSearch(context.Background(), "q", 10)); len(got) != 1 || got[0] != 1 {
		t.Fatalf("zero cutoff expected lexical position [1], got %v", got)
	}

	unset := RetrievalConfig{MinSimilarity: -1, LexicalCutoff: -1}.normalize()
	if unset.MinSimilarity != 0.6 || unset.LexicalCutoff != 6.0 {
		t.Fatalf("negative values must select defaults, got %+v", unset)
	}
}
