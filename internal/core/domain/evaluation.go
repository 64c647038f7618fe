package domain

// EvaluationCase is one labeled retrieval question. Context lists the
// relevant document ids.
type EvaluationCase struct {
	Question string   `json:"question"`
	Context  []string `json:"context"`
}

type EvaluationStage string

const (
	StageDense   EvaluationStage = "dense"
	StageLexical EvaluationStage = "lexical"
	StageHybrid  EvaluationStage = "hybrid"
)

var EvaluationStages = []EvaluationStage{StageDense, StageLexical, StageHybrid}

type StageScores struct {
	Retrieved []string
	HitRate   float64
	Precision float64
	MRR       float64
	NDCG      float64
}

type EvaluationRow struct {
	Question    string
	GroundTruth []string
	Stages      map[EvaluationStage]StageScores
}

type EvaluationReport struct {
	TopK    int
	Rows    []EvaluationRow
	Summary map[EvaluationStage]StageScores
}
