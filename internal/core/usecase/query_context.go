package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

const noContextFound = "Không tìm thấy thông tin cây thuốc phù hợp."

var categoryLabels = map[domain.ChunkCategory]string{
	domain.CategoryRelational: "[Thông tin Y học]",
	domain.CategoryGeneral:    "[Thông tin Thực vật học]",
}

type entityGroup struct {
	key     string
	display string
	hits    []domain.SearchHit
}

// BuildContext renders hits grouped by entity in first-seen order. Within a
// group chunks are ordered by score.
func (uc *QueryUseCase) BuildContext(hits []domain.SearchHit) string {
	return buildContext(hits)
}

func buildContext(hits []domain.SearchHit) string {
	if len(hits) == 0 {
		return noContextFound
	}

	groups := make([]*entityGroup, 0, len(hits))
	byKey := make(map[string]*entityGroup, len(hits))
	for _, hit := range hits {
		group, ok := byKey[hit.Chunk.EntityKey]
		if !ok {
			group = &entityGroup{key: hit.Chunk.EntityKey}
			byKey[hit.Chunk.EntityKey] = group
			groups = append(groups, group)
		}
		if group.display == "" {
			group.display = hit.Chunk.DisplayName
		}
		group.hits = append(group.hits, hit)
	}

	var b strings.Builder
	b.WriteString("THÔNG TIN LIÊN QUAN TỪ CÁC LOÀI CÂY:\n")
	for n, group := range groups {
		sort.SliceStable(group.hits, func(i, j int) bool { return group.hits[i].Score > group.hits[j].Score })

		display := group.display
		if display == "" {
			display = group.key
		}
		fmt.Fprintf(&b, "\n--- Cây %d: %s (%s) ---\n", n+1, display, group.key)
		for _, hit := range group.hits {
			if label, ok := categoryLabels[hit.Chunk.Category]; ok {
				b.WriteString(label)
				b.WriteString("\n")
			}
			if body := chunkBody(hit.Chunk.Text); body != "" {
				b.WriteString(body)
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "(Độ liên quan của đoạn này: %.3f)\n", hit.Score)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// chunkBody drops the heading line, which repeats the group header.
func chunkBody(text string) string {
	_, rest, found := strings.Cut(text, "\n")
	if !found {
		return ""
	}
	return strings.TrimSpace(rest)
}
