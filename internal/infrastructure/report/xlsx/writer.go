// Package xlsx writes retrieval evaluation reports as spreadsheets.
package xlsx

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// WriteReport writes one row per question with every stage's retrieved doc
// ids and scores, plus a summary sheet of per-stage means.
func (w *Writer) WriteReport(path string, report domain.EvaluationReport) (err error) {
	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", closeErr)
		}
	}()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("rename results sheet: %w", err)
	}
	header := []any{"question", "ground_truth"}
	for _, stage := range domain.EvaluationStages {
		s := string(stage)
		header = append(header, s+"_retrieved", s+"_hit_rate", s+"_precision", s+"_mrr", s+"_ndcg")
	}
	if err := setRow(f, resultsSheet, 1, header); err != nil {
		return err
	}
	for i, row := range report.Rows {
		values := []any{row.Question, strings.Join(row.GroundTruth, ", ")}
		for _, stage := range domain.EvaluationStages {
			s := row.Stages[stage]
			values = append(values, strings.Join(s.Retrieved, ", "), s.HitRate, s.Precision, s.MRR, s.NDCG)
		}
		if err := setRow(f, resultsSheet, i+2, values); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	if err := setRow(f, summarySheet, 1, []any{"stage", "top_k", "hit_rate", "precision", "mrr", "ndcg", "questions"}); err != nil {
		return err
	}
	for i, stage := range domain.EvaluationStages {
		s := report.Summary[stage]
		values := []any{string(stage), report.TopK, s.HitRate, s.Precision, s.MRR, s.NDCG, len(report.Rows)}
		if err := setRow(f, summarySheet, i+2, values); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
