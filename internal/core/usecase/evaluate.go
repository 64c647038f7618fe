package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

// RetrievalStages exposes each retrieval stage separately for evaluation.
type RetrievalStages interface {
	DenseSearch(ctx context.Context, query string, k int) ([]domain.SearchHit, error)
	LexicalSearch(ctx context.Context, query string, k int) []domain.SearchHit
	HybridSearch(ctx context.Context, query string, topK int) ([]domain.SearchHit, error)
}

type EvaluateUseCase struct {
	stages RetrievalStages
	topK   int
}

func NewEvaluateUseCase(stages RetrievalStages, topK int) *EvaluateUseCase {
	if topK <= 0 {
		topK = 5
	}
	return &EvaluateUseCase{stages: stages, topK: topK}
}

// Evaluate scores every stage against the labeled cases at k = topK.
func (uc *EvaluateUseCase) Evaluate(ctx context.Context, cases []domain.EvaluationCase) (domain.EvaluationReport, error) {
	if len(cases) == 0 {
		return domain.EvaluationReport{}, domain.WrapError(domain.ErrInvalidInput, "evaluate", errors.New("test set is empty"))
	}

	report := domain.EvaluationReport{
		TopK:    uc.topK,
		Rows:    make([]domain.EvaluationRow, 0, len(cases)),
		Summary: make(map[domain.EvaluationStage]domain.StageScores, len(domain.EvaluationStages)),
	}

	for i, c := range cases {
		if err := ctx.Err(); err != nil {
			return domain.EvaluationReport{}, err
		}
		retrieved, err := uc.retrieve(ctx, c.Question)
		if err != nil {
			return domain.EvaluationReport{}, fmt.Errorf("evaluate case %d: %w", i, err)
		}

		row := domain.EvaluationRow{
			Question:    c.Question,
			GroundTruth: c.Context,
			Stages:      make(map[domain.EvaluationStage]domain.StageScores, len(retrieved)),
		}
		for stage, docs := range retrieved {
			row.Stages[stage] = scoreStage(docs, c.Context, uc.topK)
		}
		report.Rows = append(report.Rows, row)
	}

	n := float64(len(report.Rows))
	for _, stage := range domain.EvaluationStages {
		var sum domain.StageScores
		for _, row := range report.Rows {
			s := row.Stages[stage]
			sum.HitRate += s.HitRate
			sum.Precision += s.Precision
			sum.MRR += s.MRR
			sum.NDCG += s.NDCG
		}
		report.Summary[stage] = domain.StageScores{
			HitRate:   sum.HitRate / n,
			Precision: sum.Precision / n,
			MRR:       sum.MRR / n,
			NDCG:      sum.NDCG / n,
		}
		slog.Info("evaluation_stage_summary",
			"stage", stage,
			"hit_rate", report.Summary[stage].HitRate,
			"precision", report.Summary[stage].Precision,
			"mrr", report.Summary[stage].MRR,
			"ndcg", report.Summary[stage].NDCG,
		)
	}
	return report, nil
}

func (uc *EvaluateUseCase) retrieve(ctx context.Context, question string) (map[domain.EvaluationStage][]string, error) {
	dense, err := uc.stages.DenseSearch(ctx, question, uc.topK)
	if err != nil {
		return nil, fmt.Errorf("dense stage: %w", err)
	}
	lexical := uc.stages.LexicalSearch(ctx, question, uc.topK)
	hybrid, err := uc.stages.HybridSearch(ctx, question, uc.topK)
	if err != nil {
		return nil, fmt.Errorf("hybrid stage: %w", err)
	}
	return map[domain.EvaluationStage][]string{
		domain.StageDense:   docIDs(dense),
		domain.StageLexical: docIDs(lexical),
		domain.StageHybrid:  docIDs(hybrid),
	}, nil
}

// docIDs maps hits to their source document ids, skipping chunks without one.
func docIDs(hits []domain.SearchHit) []string {
	out := make([]string, 0, len(hits))
	for _, hit := range hits {
		if hit.Chunk.DocID != "" {
			out = append(out, hit.Chunk.DocID)
		}
	}
	return out
}

func scoreStage(retrieved, truth []string, k int) domain.StageScores {
	relevant := make(map[string]struct{}, len(truth))
	for _, id := range truth {
		relevant[id] = struct{}{}
	}
	top := retrieved
	if len(top) > k {
		top = top[:k]
	}

	scores := domain.StageScores{Retrieved: retrieved}

	matched := make(map[string]struct{}, len(top))
	for _, id := range top {
		if _, ok := relevant[id]; ok {
			scores.HitRate = 1
			matched[id] = struct{}{}
		}
	}
	scores.Precision = float64(len(matched)) / float64(k)

	for i, id := range retrieved {
		if _, ok := relevant[id]; ok {
			scores.MRR = 1 / float64(i+1)
			break
		}
	}

	var dcg float64
	hits := 0
	for i, id := range top {
		if _, ok := relevant[id]; ok {
			dcg += 1 / math.Log2(float64(i+2))
			hits++
		}
	}
	// Ideal ordering of the same retrieved relevance list.
	var idcg float64
	for i := 0; i < hits; i++ {
		idcg += 1 / math.Log2(float64(i+2))
	}
	if idcg > 0 {
		scores.NDCG = dcg / idcg
	}
	return scores
}
