// Package metadata serves the flat structured record store used for labeled
// lookups, subject extraction and the plant listing.
package metadata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/floraqa/internal/core/domain"
	"github.com/kirillkom/floraqa/internal/core/ports"
	"github.com/kirillkom/floraqa/internal/infrastructure/knowledge"
)

const missingValue = "Không có thông tin"

// knownFields are rendered first, in this order.
var knownFields = []string{
	domain.FieldScientificName,
	domain.FieldVietnameseName,
	"Tên họ tiếng Việt",
	"Tên họ khoa học",
	"Mô tả",
	"Sinh học & Sinh thái",
	"Phân bố",
	"Giá trị",
}

// FileSource reads records from a JSON file in the general source format.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) LoadRecords(_ context.Context) ([]domain.MetadataRecord, error) {
	general, err := knowledge.LoadGeneralFile(s.path)
	if err != nil {
		return nil, err
	}
	records := make([]domain.MetadataRecord, 0, len(general))
	for _, g := range general {
		records = append(records, domain.MetadataRecord{Key: g.EntityKey, Fields: g.Fields})
	}
	return records, nil
}

type Store struct {
	mu      sync.RWMutex
	records []domain.MetadataRecord
}

func NewStore(records []domain.MetadataRecord) *Store {
	s := &Store{}
	s.Replace(records)
	return s
}

// Load builds a store from source.
func Load(ctx context.Context, source ports.RecordSource) (*Store, error) {
	records, err := source.LoadRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load metadata records: %w", err)
	}
	return NewStore(records), nil
}

// Replace swaps the record set. Records are kept sorted by key.
func (s *Store) Replace(records []domain.MetadataRecord) {
	next := make([]domain.MetadataRecord, len(records))
	copy(next, records)
	sort.SliceStable(next, func(i, j int) bool { return next[i].Key < next[j].Key })

	s.mu.Lock()
	s.records = next
	s.mu.Unlock()
}

// Lookup returns the first record whose key, scientific name or Vietnamese
// name equals name after normalization.
func (s *Store) Lookup(name string) (domain.MetadataRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if domain.NamesEqual(rec.Key, name) ||
			domain.NamesEqual(rec.Fields[domain.FieldScientificName], name) ||
			domain.NamesEqual(rec.Fields[domain.FieldVietnameseName], name) {
			return rec, true
		}
	}
	return domain.MetadataRecord{}, false
}

func (s *Store) RenderContext(record domain.MetadataRecord) string {
	var b strings.Builder
	write := func(field string) {
		value := strings.TrimSpace(record.Fields[field])
		if value == "" || value == missingValue {
			return
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(field)
		b.WriteString(": ")
		b.WriteString(value)
	}

	known := make(map[string]struct{}, len(knownFields))
	for _, field := range knownFields {
		known[field] = struct{}{}
		write(field)
	}
	rest := make([]string, 0, len(record.Fields))
	for field := range record.Fields {
		if _, ok := known[field]; !ok {
			rest = append(rest, field)
		}
	}
	sort.Strings(rest)
	for _, field := range rest {
		write(field)
	}
	return b.String()
}

// FindSubjects returns records whose scientific or Vietnamese name occurs in
// text, ignoring case.
func (s *Store) FindSubjects(text string) []domain.MetadataRecord {
	haystack := strings.ToLower(domain.NormalizeName(text))
	if haystack == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var found []domain.MetadataRecord
	for _, rec := range s.records {
		sci := strings.ToLower(domain.NormalizeName(rec.Fields[domain.FieldScientificName]))
		vi := strings.ToLower(domain.NormalizeName(rec.Fields[domain.FieldVietnameseName]))
		if (sci != "" && strings.Contains(haystack, sci)) || (vi != "" && strings.Contains(haystack, vi)) {
			found = append(found, rec)
		}
	}
	return found
}

func (s *Store) List() []domain.MetadataRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.MetadataRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
