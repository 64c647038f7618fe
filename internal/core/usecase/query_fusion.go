package usecase

import (
	"sort"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

const defaultRRFK = 60

type fusedCandidate struct {
	chunk domain.KnowledgeChunk
	score float64
}

// fuseHitsRRF combines ranked lists with reciprocal rank fusion. A chunk
// scores 1/(k+rank+1) for every list it appears in, rank being 0-based.
// Chunks are identified by corpus position.
func fuseHitsRRF(rrfK int, lists ...[]domain.SearchHit) []domain.SearchHit {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	size := 0
	for _, list := range lists {
		size += len(list)
	}
	acc := make(map[int]fusedCandidate, size)
	for _, list := range lists {
		seenInList := make(map[int]struct{}, len(list))
		for rank, hit := range list {
			key := hit.Chunk.Position
			if _, dup := seenInList[key]; dup {
				continue
			}
			seenInList[key] = struct{}{}

			candidate := acc[key]
			candidate.chunk = hit.Chunk
			candidate.score += 1.0 / float64(rrfK+rank+1)
			acc[key] = candidate
		}
	}

	out := make([]domain.SearchHit, 0, len(acc))
	for _, c := range acc {
		out = append(out, domain.SearchHit{Chunk: c.chunk, Score: c.score})
	}
	sortHits(out)
	return out
}

// sortHits orders by score descending, then corpus position ascending.
func sortHits(hits []domain.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.Position < hits[j].Chunk.Position
	})
}

func trimHits(hits []domain.SearchHit, limit int) []domain.SearchHit {
	if limit <= 0 || len(hits) <= limit {
		return hits
	}
	return hits[:limit]
}
