package usecase

import (
	"strings"
	"testing"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

func TestBuildChunksSynthesizesBothCategories(t *testing.T) {
	set := domain.KnowledgeSet{
		General: []domain.GeneralRecord{
			{EntityKey: "Zingiber officinale", Fields: map[string]string{
				"Tên tiếng Việt": "Gừng",
				"Mô tả":          "Cây thảo sống lâu năm",
				"Phân bố":        "Không có thông tin",
			}},
			{EntityKey: "Artemisia vulgaris", Fields: map[string]string{
				"Tên tiếng Việt": "Ngải cứu",
				"Mô tả":          "không có thông tin",
			}},
		},
		Relational: []domain.RelationalRecord{
			{EntityKey: "Artemisia vulgaris", DisplayName: "Ngải cứu", DocID: "doc-7", Treats: map[string]domain.Treatment{
				"đau bụng": {Preparation: "sắc uống", Dosage: "10g"},
			}},
			{EntityKey: "Zingiber officinale", DisplayName: "Gừng"},
			{EntityKey: "Ocimum basilicum", DisplayName: "Húng quế", Treats: map[string]domain.Treatment{
				"cảm": {},
			}},
		},
	}

	chunks := BuildChunks(set)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(chunks), chunks)
	}

	// Artemisia sorts first but has only placeholder fields, so only its relational chunk exists.
	if chunks[0].EntityKey != "Artemisia vulgaris" || chunks[0].Category != domain.CategoryRelational {
		t.Fatalf("unexpected first chunk: %+v", chunks[0])
	}
	if !strings.Contains(chunks[0].Text, "- Chữa đau bụng (Cách dùng: sắc uống) (Liều dùng: 10g)") {
		t.Fatalf("unexpected relational text: %q", chunks[0].Text)
	}
	if chunks[1].EntityKey != "Zingiber officinale" || chunks[1].Category != domain.CategoryGeneral {
		t.Fatalf("unexpected second chunk: %+v", chunks[1])
	}
	if strings.Contains(chunks[1].Text, "Phân bố") {
		t.Fatalf("placeholder field must be skipped: %q", chunks[1].Text)
	}
	if !strings.HasPrefix(chunks[1].Text, "Cây: Gừng (Zingiber officinale)") {
		t.Fatalf("unexpected general header: %q", chunks[1].Text)
	}
	if chunks[2].EntityKey != "Ocimum basilicum" {
		t.Fatalf("expected relational-only entity last, got %+v", chunks[2])
	}

	for i, chunk := range chunks {
		if chunk.Position != i {
			t.Fatalf("chunk %d has position %d", i, chunk.Position)
		}
	}
	if chunks[0].ID != "Artemisia vulgaris#relational" {
		t.Fatalf("unexpected chunk id %q", chunks[0].ID)
	}
}

func TestBuildChunksEmptySources(t *testing.T) {
	if chunks := BuildChunks(domain.KnowledgeSet{}); len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}
