package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/floraqa/internal/bootstrap"
	"github.com/kirillkom/floraqa/internal/config"
	"github.com/kirillkom/floraqa/internal/core/domain"
	"github.com/kirillkom/floraqa/internal/core/ports"
	"github.com/kirillkom/floraqa/internal/core/usecase"
	"github.com/kirillkom/floraqa/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/floraqa/internal/observability/logging"
)

func main() {
	testSetPath := flag.String("testset", "./data/eval/testset.json", "JSON test set [{question, context: [doc_id]}]")
	outPath := flag.String("out", "./data/eval/retrieval_report.xlsx", "xlsx report path")
	topK := flag.Int("k", 0, "cutoff k; defaults to RAG_TOP_K")
	flag.Parse()

	cfg := config.Load()
	_, syncLogs := logging.New(logging.Config{Service: "floraqa-evaluate", Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer syncLogs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *testSetPath, *outPath, *topK); err != nil {
		slog.Error("evaluation_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, testSetPath, outPath string, topK int) error {
	cases, err := readTestSet(testSetPath)
	if err != nil {
		return err
	}

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{ClientName: "floraqa-evaluate"})
	if err != nil {
		return err
	}
	defer app.Close()
	if !app.Query.Ready() {
		return domain.WrapError(domain.ErrIndexUnavailable, "evaluate", fmt.Errorf("index at %s could not be loaded or built", cfg.IndexDir))
	}

	if topK <= 0 {
		topK = app.Query.TopK()
	}
	return evaluate(ctx, app.Query, xlsx.NewWriter(), cases, topK, outPath)
}

func evaluate(
	ctx context.Context,
	stages usecase.RetrievalStages,
	writer ports.ReportWriter,
	cases []domain.EvaluationCase,
	topK int,
	outPath string,
) error {
	report, err := usecase.NewEvaluateUseCase(stages, topK).Evaluate(ctx, cases)
	if err != nil {
		return err
	}
	if err := writer.WriteReport(outPath, report); err != nil {
		return err
	}
	slog.Info("evaluation_report_written", "path", outPath, "questions", len(report.Rows), "k", topK)
	return nil
}

func readTestSet(path string) ([]domain.EvaluationCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "read test set", err)
	}
	var cases []domain.EvaluationCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse test set", err)
	}
	return cases, nil
}
