package domain

type ChunkCategory string

const (
	CategoryGeneral    ChunkCategory = "general"
	CategoryRelational ChunkCategory = "relational"
)

// KnowledgeChunk is immutable once the corpus is built. Position is the
// chunk's index in the corpus and doubles as its identity in both indexes.
type KnowledgeChunk struct {
	ID           string            `json:"id"`
	Position     int               `json:"position"`
	EntityKey    string            `json:"entity_key"`
	DisplayName  string            `json:"display_name"`
	DocID        string            `json:"doc_id,omitempty"`
	Category     ChunkCategory     `json:"category"`
	Text         string            `json:"text"`
	SourceRecord map[string]string `json:"source_record,omitempty"`
}

// SearchHit scores are stage-specific and never comparable across stages.
type SearchHit struct {
	Chunk KnowledgeChunk `json:"chunk"`
	Score float64        `json:"score"`
}

// GeneralRecord is one entity of the descriptive knowledge source.
type GeneralRecord struct {
	EntityKey string
	Fields    map[string]string
}

type Treatment struct {
	Preparation string `json:"preparation,omitempty"`
	Dosage      string `json:"dosage,omitempty"`
}

// RelationalRecord is one entity of the condition-to-treatment knowledge source.
type RelationalRecord struct {
	EntityKey   string
	DisplayName string
	DocID       string
	Treats      map[string]Treatment
}

// KnowledgeSet is the raw input of a corpus build.
type KnowledgeSet struct {
	General    []GeneralRecord
	Relational []RelationalRecord
}
