package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/kirillkom/floraqa/internal/core/domain"
	"github.com/kirillkom/floraqa/internal/core/ports"
)

// RetrievalConfig tunes the hybrid engine. Zero is a valid threshold and
// cutoff; a negative value selects the default.
type RetrievalConfig struct {
	TopK                int
	MinSimilarity       float64
	LexicalCutoff       float64
	RRFK                int
	CandidateMultiplier int
}

const (
	defaultMinSimilarity = 0.6
	defaultLexicalCutoff = 6.0
)

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:                5,
		MinSimilarity:       defaultMinSimilarity,
		LexicalCutoff:       defaultLexicalCutoff,
		RRFK:                defaultRRFK,
		CandidateMultiplier: 3,
	}
}

func (c RetrievalConfig) normalize() RetrievalConfig {
	out := c
	if out.TopK <= 0 {
		out.TopK = 5
	}
	if out.MinSimilarity < 0 {
		out.MinSimilarity = defaultMinSimilarity
	}
	if out.LexicalCutoff < 0 {
		out.LexicalCutoff = defaultLexicalCutoff
	}
	if out.RRFK <= 0 {
		out.RRFK = defaultRRFK
	}
	if out.CandidateMultiplier <= 0 {
		out.CandidateMultiplier = 3
	}
	return out
}

// QueryUseCase is the hybrid search engine: dense and lexical stages over one
// corpus index, fused with RRF. The index is swapped wholesale on rebuild;
// swaps wait for in-flight queries.
type QueryUseCase struct {
	embedder     ports.Embedder
	denseCache   ports.StageCache
	lexicalCache ports.StageCache
	cfg          RetrievalConfig

	mu         sync.RWMutex
	index      ports.CorpusIndex
	generation uint64
}

func NewQueryUseCase(
	embedder ports.Embedder,
	denseCache ports.StageCache,
	lexicalCache ports.StageCache,
	cfg RetrievalConfig,
) *QueryUseCase {
	return &QueryUseCase{
		embedder:     embedder,
		denseCache:   denseCache,
		lexicalCache: lexicalCache,
		cfg:          cfg.normalize(),
	}
}

// Swap installs a new index and drops cached stage results.
func (uc *QueryUseCase) Swap(ctx context.Context, index ports.CorpusIndex) {
	uc.mu.Lock()
	uc.index = index
	uc.generation++
	uc.mu.Unlock()

	if uc.denseCache != nil {
		uc.denseCache.Clear(ctx)
	}
	if uc.lexicalCache != nil {
		uc.lexicalCache.Clear(ctx)
	}
}

func (uc *QueryUseCase) Ready() bool {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.index != nil && uc.index.Len() > 0
}

func (uc *QueryUseCase) Size() int {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	if uc.index == nil {
		return 0
	}
	return uc.index.Len()
}

func (uc *QueryUseCase) TopK() int {
	return uc.cfg.TopK
}

// HybridSearch returns at most topK chunks ranked by fused score. An empty
// result means no context was found; only context cancellation is an error.
func (uc *QueryUseCase) HybridSearch(ctx context.Context, query string, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		topK = uc.cfg.TopK
	}
	candidateK := topK * uc.cfg.CandidateMultiplier

	uc.mu.RLock()
	defer uc.mu.RUnlock()

	dense, err := uc.denseLocked(ctx, query, candidateK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("dense_stage_failed", "error", err)
		dense = nil
	}
	lexical := uc.lexicalLocked(ctx, query, candidateK)

	return trimHits(fuseHitsRRF(uc.cfg.RRFK, dense, lexical), topK), nil
}

// DenseSearch runs only the vector stage.
func (uc *QueryUseCase) DenseSearch(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.denseLocked(ctx, query, k)
}

// LexicalSearch runs only the BM25 stage.
func (uc *QueryUseCase) LexicalSearch(ctx context.Context, query string, k int) []domain.SearchHit {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.lexicalLocked(ctx, query, k)
}

func (uc *QueryUseCase) denseLocked(ctx context.Context, query string, k int) ([]domain.SearchHit, error) {
	if uc.index == nil || uc.index.Len() == 0 || k <= 0 {
		return nil, nil
	}

	key := uc.cacheKey("dense", query, k)
	if hits, ok := cacheGet(ctx, uc.denseCache, key); ok {
		return hits, nil
	}

	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vector) != uc.index.Dimension() {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "dense search",
			fmt.Errorf("query dimension %d does not match index dimension %d", len(vector), uc.index.Dimension()))
	}
	normalizeL2(vector)

	candidates := uc.index.SearchDense(vector, k)
	hits := make([]domain.SearchHit, 0, len(candidates))
	for _, hit := range candidates {
		if hit.Score >= uc.cfg.MinSimilarity {
			hits = append(hits, hit)
		}
	}

	cacheSet(ctx, uc.denseCache, key, hits)
	return hits, nil
}

func (uc *QueryUseCase) lexicalLocked(ctx context.Context, query string, k int) []domain.SearchHit {
	if uc.index == nil || uc.index.Len() == 0 || k <= 0 {
		return nil
	}

	key := uc.cacheKey("lexical", query, k)
	if hits, ok := cacheGet(ctx, uc.lexicalCache, key); ok {
		return hits
	}

	scores := uc.index.ScoreLexical(query)
	hits := make([]domain.SearchHit, 0)
	for position, score := range scores {
		if score <= uc.cfg.LexicalCutoff {
			continue
		}
		chunk, ok := uc.index.Chunk(position)
		if !ok {
			continue
		}
		hits = append(hits, domain.SearchHit{Chunk: chunk, Score: score})
	}
	sortHits(hits)
	hits = trimHits(hits, k)

	cacheSet(ctx, uc.lexicalCache, key, hits)
	return hits
}

// cacheKey hashes the stage, index fingerprint, query and k. The fingerprint
// is persisted with the index, so processes sharing a cache agree on keys for
// the same artifacts and never match entries of another build. Indexes without
// a fingerprint fall back to the process-local swap counter.
func (uc *QueryUseCase) cacheKey(stage, query string, k int) string {
	version := ""
	if uc.index != nil {
		version = uc.index.Fingerprint()
	}
	if version == "" {
		version = fmt.Sprintf("local-%d", uc.generation)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s", stage, version, k, query)))
	return stage + ":" + hex.EncodeToString(sum[:16])
}

func cacheGet(ctx context.Context, cache ports.StageCache, key string) ([]domain.SearchHit, bool) {
	if cache == nil {
		return nil, false
	}
	return cache.Get(ctx, key)
}

func cacheSet(ctx context.Context, cache ports.StageCache, key string, hits []domain.SearchHit) {
	if cache == nil {
		return
	}
	cache.Set(ctx, key, hits)
}

func normalizeL2(vector []float32) {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vector {
		vector[i] *= inv
	}
}
