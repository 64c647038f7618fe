package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/floraqa/internal/core/domain"
	"github.com/kirillkom/floraqa/internal/core/ports"
)

const defaultEmbedBatchSize = 16

// IndexSwapper receives a freshly loaded or built corpus index.
type IndexSwapper interface {
	Swap(ctx context.Context, index ports.CorpusIndex)
}

// IndexService owns the corpus index lifecycle: load the persisted artifact
// set, or rebuild it from the knowledge sources, then swap it into the engine.
type IndexService struct {
	source    ports.KnowledgeSource
	store     ports.IndexStore
	embedder  ports.Embedder
	engine    IndexSwapper
	observer  ports.RebuildObserver
	batchSize int

	rebuildMu sync.Mutex
}

func NewIndexService(
	source ports.KnowledgeSource,
	store ports.IndexStore,
	embedder ports.Embedder,
	engine IndexSwapper,
	observer ports.RebuildObserver,
	batchSize int,
) *IndexService {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &IndexService{
		source:    source,
		store:     store,
		embedder:  embedder,
		engine:    engine,
		observer:  observer,
		batchSize: batchSize,
	}
}

// LoadOrBuild loads the persisted index, rebuilding when the artifact set is
// absent or incomplete. Only configuration errors are returned; a failed
// rebuild leaves the engine unloaded and answers degrade to fallback.
func (s *IndexService) LoadOrBuild(ctx context.Context) error {
	err := s.Reload(ctx)
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrConfiguration) {
		return err
	}
	slog.Info("index_artifacts_unavailable", "error", err)

	if err := s.Rebuild(ctx); err != nil {
		if domain.IsKind(err, domain.ErrConfiguration) {
			return err
		}
		slog.Error("index_rebuild_failed", "error", err)
	}
	return nil
}

// Reload swaps in the persisted artifact set without rebuilding.
func (s *IndexService) Reload(ctx context.Context) error {
	index, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load index artifacts: %w", err)
	}
	s.engine.Swap(ctx, index)
	slog.Info("index_loaded", "chunks", index.Len(), "dimension", index.Dimension())
	return nil
}

// Rebuild synthesizes chunks, embeds them, persists the artifact set and
// swaps the result in. Concurrent callers are serialized.
func (s *IndexService) Rebuild(ctx context.Context) (err error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	started := time.Now()
	chunkCount := 0
	if s.observer != nil {
		s.observer.StartRebuild()
		defer func() { s.observer.FinishRebuild(time.Since(started), chunkCount, err) }()
	}

	chunks, err := s.loadChunks(ctx)
	if err != nil {
		return err
	}
	chunkCount = len(chunks)

	vectors, err := s.embed(ctx, chunks)
	if err != nil {
		return err
	}

	index, err := s.store.Build(ctx, chunks, vectors)
	if err != nil {
		return domain.WrapError(domain.ErrIndexUnavailable, "persist index", err)
	}
	s.engine.Swap(ctx, index)

	slog.Info("index_rebuild_done",
		"chunks", index.Len(),
		"dimension", index.Dimension(),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

func (s *IndexService) loadChunks(ctx context.Context) ([]domain.KnowledgeChunk, error) {
	general, err := s.source.LoadGeneral(ctx)
	if err != nil {
		return nil, fmt.Errorf("load general source: %w", err)
	}
	relational, err := s.source.LoadRelational(ctx)
	if err != nil {
		return nil, fmt.Errorf("load relational source: %w", err)
	}

	chunks := BuildChunks(domain.KnowledgeSet{General: general, Relational: relational})
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "build chunks", errors.New("knowledge sources produced zero chunks"))
	}
	return chunks, nil
}

func (s *IndexService) embed(ctx context.Context, chunks []domain.KnowledgeChunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Text)
		}

		batch, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, domain.WrapError(domain.ErrIndexUnavailable, "embed chunks", err)
		}
		if len(batch) != len(texts) {
			return nil, domain.WrapError(
				domain.ErrIndexUnavailable,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(batch), len(texts)),
			)
		}
		vectors = append(vectors, batch...)
	}

	dimension := len(vectors[0])
	for i, vector := range vectors {
		if len(vector) == 0 || len(vector) != dimension {
			return nil, domain.WrapError(
				domain.ErrIndexUnavailable,
				"embed chunks",
				fmt.Errorf("chunk %d has dimension %d, expected %d", i, len(vector), dimension),
			)
		}
		normalizeL2(vector)
	}
	return vectors, nil
}
