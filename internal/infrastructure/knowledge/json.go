// Package knowledge loads the general and relational knowledge sources.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

type plantInfo struct {
	ScientificName string `json:"scientific_name"`
	VietnameseName string `json:"vietnamese_name"`
	DocID          string `json:"doc_id"`
}

type graphEntry struct {
	PlantInfo plantInfo                   `json:"plant_info"`
	Treats    map[string]domain.Treatment `json:"treats"`
}

type graphFile struct {
	PlantGraph map[string]graphEntry `json:"plant_graph"`
}

// JSONSource reads both sources from files. The general file maps entity key
// to a flat field record; the relational file holds a plant_graph object.
type JSONSource struct {
	generalPath    string
	relationalPath string
}

func NewJSONSource(generalPath, relationalPath string) *JSONSource {
	return &JSONSource{generalPath: generalPath, relationalPath: relationalPath}
}

func (s *JSONSource) LoadGeneral(_ context.Context) ([]domain.GeneralRecord, error) {
	return LoadGeneralFile(s.generalPath)
}

func (s *JSONSource) LoadRelational(_ context.Context) ([]domain.RelationalRecord, error) {
	var file graphFile
	if err := readJSON(s.relationalPath, &file); err != nil {
		return nil, err
	}

	// Graph keys are visited in order so entries sharing a scientific name
	// keep a fixed relative order after the stable sort.
	records := make([]domain.RelationalRecord, 0, len(file.PlantGraph))
	for _, key := range slices.Sorted(maps.Keys(file.PlantGraph)) {
		entry := file.PlantGraph[key]
		entityKey := strings.TrimSpace(entry.PlantInfo.ScientificName)
		if entityKey == "" {
			entityKey = strings.TrimSpace(key)
		}
		records = append(records, domain.RelationalRecord{
			EntityKey:   entityKey,
			DisplayName: strings.TrimSpace(entry.PlantInfo.VietnameseName),
			DocID:       strings.TrimSpace(entry.PlantInfo.DocID),
			Treats:      entry.Treats,
		})
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].EntityKey < records[j].EntityKey })
	return records, nil
}

// LoadGeneralFile reads a general source file. Non-string field values are
// rendered with their JSON text.
func LoadGeneralFile(path string) ([]domain.GeneralRecord, error) {
	var raw map[string]map[string]json.RawMessage
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}

	records := make([]domain.GeneralRecord, 0, len(raw))
	for _, key := range slices.Sorted(maps.Keys(raw)) {
		fields := raw[key]
		rec := domain.GeneralRecord{EntityKey: strings.TrimSpace(key), Fields: make(map[string]string, len(fields))}
		for name, value := range fields {
			rec.Fields[name] = fieldText(value)
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].EntityKey < records[j].EntityKey })
	return records, nil
}

func fieldText(value json.RawMessage) string {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return strings.TrimSpace(s)
	}
	if string(value) == "null" {
		return ""
	}
	return strings.TrimSpace(string(value))
}

func readJSON(path string, dst any) error {
	if strings.TrimSpace(path) == "" {
		return domain.WrapError(domain.ErrConfiguration, "read knowledge source", errors.New("path is empty"))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.WrapError(domain.ErrConfiguration, "read knowledge source", err)
		}
		return fmt.Errorf("read knowledge source %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return domain.WrapError(domain.ErrConfiguration, "parse knowledge source "+path, err)
	}
	return nil
}
