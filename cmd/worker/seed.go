package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/floraqa/internal/config"
	"github.com/kirillkom/floraqa/internal/infrastructure/knowledge"
	"github.com/kirillkom/floraqa/internal/infrastructure/metadata"
	"github.com/kirillkom/floraqa/internal/infrastructure/repository/postgres"
)

// seed copies the JSON knowledge files into whichever database backends are
// selected. JSON backends need no seeding and are skipped.
func seed(ctx context.Context, cfg config.Config) error {
	if cfg.MetadataBackend == "postgres" {
		if err := seedPostgres(ctx, cfg); err != nil {
			return err
		}
	}
	if cfg.RelationalBackend == "neo4j" {
		if err := seedNeo4j(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

func seedPostgres(ctx context.Context, cfg config.Config) error {
	records, err := metadata.NewFileSource(cfg.MetadataPath).LoadRecords(ctx)
	if err != nil {
		return err
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	repo := postgres.NewPlantRecordRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := repo.Upsert(ctx, records); err != nil {
		return err
	}
	slog.Info("seed_postgres_done", "records", len(records))
	return nil
}

func seedNeo4j(ctx context.Context, cfg config.Config) error {
	relational, err := knowledge.NewJSONSource(cfg.KnowledgeGeneralPath, cfg.KnowledgeRelationalPath).LoadRelational(ctx)
	if err != nil {
		return err
	}
	graph, err := knowledge.NewGraphSource(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase, cfg.KnowledgeGeneralPath)
	if err != nil {
		return err
	}
	defer func() { _ = graph.Close(context.Background()) }()

	if err := graph.Seed(ctx, relational); err != nil {
		return err
	}
	slog.Info("seed_neo4j_done", "plants", len(relational))
	return nil
}
