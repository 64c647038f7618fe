package usecase

import (
	"context"
	"math"
	"testing"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

type stagesFake struct {
	dense, lexical, hybrid []domain.SearchHit
}

func (f stagesFake) DenseSearch(context.Context, string, int) ([]domain.SearchHit, error) {
	return f.dense, nil
}
func (f stagesFake) LexicalSearch(context.Context, string, int) []domain.SearchHit { return f.lexical }
func (f stagesFake) HybridSearch(context.Context, string, int) ([]domain.SearchHit, error) {
	return f.hybrid, nil
}

func docHit(docID string) domain.SearchHit {
	return domain.SearchHit{Chunk: domain.KnowledgeChunk{DocID: docID}}
}

func TestScoreStageMetrics(t *testing.T) {
	s := scoreStage([]string{"d9", "d1", "d7", "d2"}, []string{"d1", "d2"}, 4)
	if s.HitRate != 1 {
		t.Fatalf("expected hit, got %v", s.HitRate)
	}
	if s.Precision != 0.5 {
		t.Fatalf("expected precision 0.5, got %v", s.Precision)
	}
	if s.MRR != 0.5 {
		t.Fatalf("expected mrr 0.5, got %v", s.MRR)
	}
	dcg := 1/math.Log2(3) + 1/math.Log2(5)
	idcg := 1 + 1/math.Log2(3)
	if math.Abs(s.NDCG-dcg/idcg) > 1e-12 {
		t.Fatalf("expected ndcg %v, got %v", dcg/idcg, s.NDCG)
	}
}

func TestScoreStageMiss(t *testing.T) {
	s := scoreStage([]string{"x"}, []string{"d1"}, 5)
	if s.HitRate != 0 || s.Precision != 0 || s.MRR != 0 || s.NDCG != 0 {
		t.Fatalf("expected zero scores, got %+v", s)
	}
}

func TestEvaluateAggregatesPerStage(t *testing.T) {
	stages := stagesFake{
		dense:   []domain.SearchHit{docHit("d1")},
		lexical: []domain.SearchHit{docHit("x"), {Chunk: domain.KnowledgeChunk{}}},
		hybrid:  []domain.SearchHit{docHit("x"), docHit("d1")},
	}
	uc := NewEvaluateUseCase(stages, 2)

	report, err := uc.Evaluate(context.Background(), []domain.EvaluationCase{
		{Question: "q1", Context: []string{"d1"}},
		{Question: "q2", Context: []string{"d5"}},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(report.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(report.Rows))
	}
	if got := report.Summary[domain.StageDense].HitRate; got != 0.5 {
		t.Fatalf("expected dense hit rate 0.5, got %v", got)
	}
	if got := report.Summary[domain.StageLexical].HitRate; got != 0 {
		t.Fatalf("expected lexical hit rate 0, got %v", got)
	}
	if got := report.Summary[domain.StageHybrid].MRR; got != 0.25 {
		t.Fatalf("expected hybrid mrr 0.25, got %v", got)
	}
	if got := report.Rows[0].Stages[domain.StageLexical].Retrieved; len(got) != 1 {
		t.Fatalf("chunks without doc id must be skipped, got %v", got)
	}
}

func TestEvaluateEmptyTestSet(t *testing.T) {
	_, err := NewEvaluateUseCase(stagesFake{}, 5).Evaluate(context.Background(), nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
