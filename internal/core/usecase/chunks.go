package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

const placeholderValue = "không có thông tin"

type chunkField struct {
	key   string
	label string
}

var generalChunkFields = []chunkField{
	{key: "Mô tả", label: "Mô tả"},
	{key: "Sinh học & Sinh thái", label: "Sinh học và Sinh thái"},
	{key: "Phân bố", label: "Phân bố"},
	{key: "Giá trị", label: "Giá trị sử dụng"},
	{key: "Tên họ tiếng Việt", label: "Họ"},
}

// BuildChunks synthesizes the ordered corpus from both knowledge sources.
// Every entity yields at most one general and one relational chunk; entities
// without extractable content yield nothing.
func BuildChunks(set domain.KnowledgeSet) []domain.KnowledgeChunk {
	general := append([]domain.GeneralRecord(nil), set.General...)
	sort.SliceStable(general, func(i, j int) bool { return general[i].EntityKey < general[j].EntityKey })

	relational := make(map[string]domain.RelationalRecord, len(set.Relational))
	for _, rec := range set.Relational {
		if rec.EntityKey == "" {
			continue
		}
		relational[rec.EntityKey] = rec
	}

	chunks := make([]domain.KnowledgeChunk, 0, len(general)+len(relational))
	add := func(chunk domain.KnowledgeChunk) {
		chunk.Position = len(chunks)
		chunk.ID = fmt.Sprintf("%s#%s", chunk.EntityKey, chunk.Category)
		chunks = append(chunks, chunk)
	}

	seen := make(map[string]struct{}, len(general))
	for _, rec := range general {
		if rec.EntityKey == "" {
			continue
		}
		seen[rec.EntityKey] = struct{}{}
		rel, hasRel := relational[rec.EntityKey]
		if chunk, ok := generalChunk(rec, rel.DocID); ok {
			add(chunk)
		}
		if hasRel {
			if chunk, ok := relationalChunk(rel); ok {
				add(chunk)
			}
		}
	}

	orphans := make([]string, 0)
	for key := range relational {
		if _, ok := seen[key]; !ok {
			orphans = append(orphans, key)
		}
	}
	sort.Strings(orphans)
	for _, key := range orphans {
		if chunk, ok := relationalChunk(relational[key]); ok {
			add(chunk)
		}
	}
	return chunks
}

func generalChunk(rec domain.GeneralRecord, docID string) (domain.KnowledgeChunk, bool) {
	display := strings.TrimSpace(rec.Fields[domain.FieldVietnameseName])
	heading := display
	if heading == "" {
		heading = rec.EntityKey
	}

	lines := []string{fmt.Sprintf("Cây: %s (%s)", heading, rec.EntityKey)}
	for _, field := range generalChunkFields {
		value := strings.TrimSpace(rec.Fields[field.key])
		if isPlaceholder(value) {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", field.label, value))
	}
	if len(lines) == 1 {
		return domain.KnowledgeChunk{}, false
	}

	return domain.KnowledgeChunk{
		EntityKey:    rec.EntityKey,
		DisplayName:  display,
		DocID:        docID,
		Category:     domain.CategoryGeneral,
		Text:         strings.Join(lines, "\n"),
		SourceRecord: copyFields(rec.Fields),
	}, true
}

func relationalChunk(rec domain.RelationalRecord) (domain.KnowledgeChunk, bool) {
	if len(rec.Treats) == 0 {
		return domain.KnowledgeChunk{}, false
	}
	display := strings.TrimSpace(rec.DisplayName)
	heading := display
	if heading == "" {
		heading = rec.EntityKey
	}

	conditions := make([]string, 0, len(rec.Treats))
	for condition := range rec.Treats {
		conditions = append(conditions, condition)
	}
	sort.Strings(conditions)

	lines := []string{
		fmt.Sprintf("Cây thuốc: %s (%s)", heading, rec.EntityKey),
		"Công dụng chữa bệnh:",
	}
	source := map[string]string{
		"scientific_name": rec.EntityKey,
		"vietnamese_name": display,
	}
	if rec.DocID != "" {
		source["doc_id"] = rec.DocID
	}
	for _, condition := range conditions {
		treatment := rec.Treats[condition]
		line := "- Chữa " + condition
		if p := strings.TrimSpace(treatment.Preparation); p != "" {
			line += fmt.Sprintf(" (Cách dùng: %s)", p)
		}
		if d := strings.TrimSpace(treatment.Dosage); d != "" {
			line += fmt.Sprintf(" (Liều dùng: %s)", d)
		}
		lines = append(lines, line)
		source["treats:"+condition] = strings.TrimPrefix(line, "- ")
	}

	return domain.KnowledgeChunk{
		EntityKey:    rec.EntityKey,
		DisplayName:  display,
		DocID:        rec.DocID,
		Category:     domain.CategoryRelational,
		Text:         strings.Join(lines, "\n"),
		SourceRecord: source,
	}, true
}

func isPlaceholder(value string) bool {
	return value == "" || strings.EqualFold(domain.NormalizeName(value), placeholderValue)
}

func copyFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
