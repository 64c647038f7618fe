package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

const (
	relationalQuery = `
MATCH (p:Plant)
OPTIONAL MATCH (p)-[t:TREATS]->(c:Condition)
RETURN p.scientific_name AS scientific_name,
       p.vietnamese_name AS vietnamese_name,
       p.doc_id AS doc_id,
       c.name AS condition,
       t.preparation AS preparation,
       t.dosage AS dosage
ORDER BY scientific_name, condition`

	seedPlantQuery = `
MERGE (p:Plant {scientific_name: $scientific_name})
SET p.vietnamese_name = $vietnamese_name, p.doc_id = $doc_id`

	seedTreatQuery = `
MATCH (p:Plant {scientific_name: $scientific_name})
MERGE (c:Condition {name: $condition})
MERGE (p)-[t:TREATS]->(c)
SET t.preparation = $preparation, t.dosage = $dosage`
)

// GraphSource reads the relational source from a Neo4j graph of
// (:Plant)-[:TREATS]->(:Condition). The general source still comes from a file.
type GraphSource struct {
	driver      neo4j.DriverWithContext
	database    string
	generalPath string
}

func NewGraphSource(ctx context.Context, uri, user, password, database, generalPath string) (*GraphSource, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "create neo4j driver", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &GraphSource{driver: driver, database: database, generalPath: generalPath}, nil
}

func (s *GraphSource) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *GraphSource) LoadGeneral(_ context.Context) ([]domain.GeneralRecord, error) {
	return LoadGeneralFile(s.generalPath)
}

func (s *GraphSource) LoadRelational(ctx context.Context) ([]domain.RelationalRecord, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, relationalQuery, nil,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, fmt.Errorf("query relational graph: %w", err)
	}

	rows := make([]treatRow, 0, len(result.Records))
	for _, record := range result.Records {
		rows = append(rows, treatRow{
			ScientificName: stringValue(record, "scientific_name"),
			VietnameseName: stringValue(record, "vietnamese_name"),
			DocID:          stringValue(record, "doc_id"),
			Condition:      stringValue(record, "condition"),
			Preparation:    stringValue(record, "preparation"),
			Dosage:         stringValue(record, "dosage"),
		})
	}
	return groupTreatRows(rows), nil
}

// Seed writes relational records into the graph, merging on scientific name
// and condition name.
func (s *GraphSource) Seed(ctx context.Context, records []domain.RelationalRecord) error {
	for _, rec := range records {
		if _, err := neo4j.ExecuteQuery(ctx, s.driver, seedPlantQuery, map[string]any{
			"scientific_name": rec.EntityKey,
			"vietnamese_name": rec.DisplayName,
			"doc_id":          rec.DocID,
		}, neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(s.database)); err != nil {
			return fmt.Errorf("seed plant %s: %w", rec.EntityKey, err)
		}
		for condition, treatment := range rec.Treats {
			if _, err := neo4j.ExecuteQuery(ctx, s.driver, seedTreatQuery, map[string]any{
				"scientific_name": rec.EntityKey,
				"condition":       condition,
				"preparation":     treatment.Preparation,
				"dosage":          treatment.Dosage,
			}, neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(s.database)); err != nil {
				return fmt.Errorf("seed treatment %s/%s: %w", rec.EntityKey, condition, err)
			}
		}
	}
	return nil
}

type treatRow struct {
	ScientificName string
	VietnameseName string
	DocID          string
	Condition      string
	Preparation    string
	Dosage         string
}

func groupTreatRows(rows []treatRow) []domain.RelationalRecord {
	byKey := make(map[string]*domain.RelationalRecord)
	for _, row := range rows {
		key := strings.TrimSpace(row.ScientificName)
		if key == "" {
			continue
		}
		rec, ok := byKey[key]
		if !ok {
			rec = &domain.RelationalRecord{
				EntityKey:   key,
				DisplayName: strings.TrimSpace(row.VietnameseName),
				DocID:       strings.TrimSpace(row.DocID),
				Treats:      make(map[string]domain.Treatment),
			}
			byKey[key] = rec
		}
		if condition := strings.TrimSpace(row.Condition); condition != "" {
			rec.Treats[condition] = domain.Treatment{Preparation: row.Preparation, Dosage: row.Dosage}
		}
	}

	out := make([]domain.RelationalRecord, 0, len(byKey))
	for _, rec := range byKey {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityKey < out[j].EntityKey })
	return out
}

func stringValue(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}
