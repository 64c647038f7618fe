package ports

import (
	"context"
	"time"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator calls the external generation service.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
}

// CorpusIndex is a loaded dense and lexical index pair over one ordered chunk list.
// Implementations are read-only and safe for concurrent use.
type CorpusIndex interface {
	Len() int
	Dimension() int
	// Fingerprint identifies the built artifact set. Processes that load the
	// same set report the same value; every build yields a new one.
	Fingerprint() string
	Chunk(position int) (domain.KnowledgeChunk, bool)
	// SearchDense returns up to k nearest chunks by inner product over normalized vectors.
	SearchDense(query []float32, k int) []domain.SearchHit
	// ScoreLexical scores every chunk against the query, indexed by position.
	ScoreLexical(query string) []float64
}

// IndexStore loads a persisted corpus index or builds and persists a new one.
type IndexStore interface {
	Load(ctx context.Context) (CorpusIndex, error)
	Build(ctx context.Context, chunks []domain.KnowledgeChunk, vectors [][]float32) (CorpusIndex, error)
}

// HybridSearcher retrieves fused context for a question.
type HybridSearcher interface {
	HybridSearch(ctx context.Context, query string, topK int) ([]domain.SearchHit, error)
	BuildContext(hits []domain.SearchHit) string
}

// KnowledgeSource provides the raw records consumed by a corpus build.
type KnowledgeSource interface {
	LoadGeneral(ctx context.Context) ([]domain.GeneralRecord, error)
	LoadRelational(ctx context.Context) ([]domain.RelationalRecord, error)
}

// StageCache caches per-stage ranked results keyed by an opaque string.
type StageCache interface {
	Get(ctx context.Context, key string) ([]domain.SearchHit, bool)
	Set(ctx context.Context, key string, hits []domain.SearchHit)
	Clear(ctx context.Context)
}

// MetadataStore is the flat structured record store.
type MetadataStore interface {
	Lookup(name string) (domain.MetadataRecord, bool)
	RenderContext(record domain.MetadataRecord) string
	List() []domain.MetadataRecord
}

// SubjectFinder extracts known subjects mentioned in free text.
type SubjectFinder interface {
	FindSubjects(text string) []domain.MetadataRecord
}

// RecordSource loads metadata records from a backing store.
type RecordSource interface {
	LoadRecords(ctx context.Context) ([]domain.MetadataRecord, error)
}

// RebuildQueue publishes and consumes corpus rebuild events.
type RebuildQueue interface {
	PublishRebuildRequested(ctx context.Context, reason string) error
	PublishIndexUpdated(ctx context.Context, chunks int) error
}

// AnswerObserver receives per-request outcome signals.
type AnswerObserver interface {
	RecordAnswer(route domain.Route, retrievedChunks int, generationFailed bool)
}

// RebuildObserver receives corpus rebuild outcomes.
type RebuildObserver interface {
	StartRebuild()
	FinishRebuild(duration time.Duration, chunks int, err error)
}

// ReportWriter persists a retrieval evaluation report.
type ReportWriter interface {
	WriteReport(path string, report domain.EvaluationReport) error
}
