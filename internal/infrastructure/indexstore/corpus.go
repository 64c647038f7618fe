package indexstore

import (
	"github.com/kirillkom/floraqa/internal/core/domain"
	"github.com/kirillkom/floraqa/internal/infrastructure/lexical/bm25"
	"github.com/kirillkom/floraqa/internal/infrastructure/vector/ann"
)

// Corpus pairs a vector index and a BM25 model over one ordered chunk list.
// Position i in every component refers to the same chunk.
type Corpus struct {
	chunks      []domain.KnowledgeChunk
	vectors     ann.Index
	lexical     *bm25.Model
	fingerprint string
}

func (c *Corpus) Len() int { return len(c.chunks) }

func (c *Corpus) Dimension() int { return c.vectors.Dimension() }

func (c *Corpus) Kind() ann.Kind { return c.vectors.Kind() }

func (c *Corpus) Fingerprint() string { return c.fingerprint }

func (c *Corpus) Chunk(position int) (domain.KnowledgeChunk, bool) {
	if position < 0 || position >= len(c.chunks) {
		return domain.KnowledgeChunk{}, false
	}
	return c.chunks[position], true
}

func (c *Corpus) SearchDense(query []float32, k int) []domain.SearchHit {
	results := c.vectors.Search(query, k)
	hits := make([]domain.SearchHit, 0, len(results))
	for _, r := range results {
		chunk, ok := c.Chunk(r.ID)
		if !ok {
			continue
		}
		hits = append(hits, domain.SearchHit{Chunk: chunk, Score: float64(r.Score)})
	}
	return hits
}

func (c *Corpus) ScoreLexical(query string) []float64 {
	return c.lexical.Scores(bm25.Tokenize(query))
}
