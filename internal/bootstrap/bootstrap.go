package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/floraqa/internal/config"
	"github.com/kirillkom/floraqa/internal/core/ports"
	"github.com/kirillkom/floraqa/internal/core/usecase"
	memorycache "github.com/kirillkom/floraqa/internal/infrastructure/cache/memory"
	rediscache "github.com/kirillkom/floraqa/internal/infrastructure/cache/redis"
	"github.com/kirillkom/floraqa/internal/infrastructure/indexstore"
	"github.com/kirillkom/floraqa/internal/infrastructure/knowledge"
	"github.com/kirillkom/floraqa/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/floraqa/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/floraqa/internal/infrastructure/metadata"
	"github.com/kirillkom/floraqa/internal/infrastructure/queue/nats"
	"github.com/kirillkom/floraqa/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/floraqa/internal/infrastructure/resilience"
	"github.com/kirillkom/floraqa/internal/infrastructure/vector/ann"
	"github.com/kirillkom/floraqa/internal/rules"
)

// Options carries the observers of the hosting process.
type Options struct {
	ClientName      string
	AnswerObserver  ports.AnswerObserver
	RebuildObserver ports.RebuildObserver
	BreakerListener resilience.StateListener
	OnSweep         func(evicted, remaining int)
	// SkipIndexLoad leaves the engine unloaded; the caller loads or rebuilds.
	SkipIndexLoad bool
}

type App struct {
	Config config.Config

	Query    *usecase.QueryUseCase
	Index    *usecase.IndexService
	Sessions *usecase.SessionManager
	Answers  *usecase.AnswerUseCase
	Records  *metadata.Store
	Queue    *nats.Queue

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	ruleSet, err := rules.Load(cfg.RulesPath)
	if err != nil {
		return nil, err
	}

	executor := resilience.NewExecutor(cfg.ResiliencePolicies)
	if opts.BreakerListener != nil {
		executor.OnStateChange(opts.BreakerListener)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator, err := newGenerator(cfg, ollamaClient, executor)
	if err != nil {
		return nil, err
	}

	source, err := app.knowledgeSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	records, err := app.metadataStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Records = records

	denseCache, lexicalCache := app.stageCaches(cfg)
	app.Query = usecase.NewQueryUseCase(embedder, denseCache, lexicalCache, usecase.RetrievalConfig{
		TopK:                cfg.RAGTopK,
		MinSimilarity:       cfg.RAGMinSimilarity,
		LexicalCutoff:       cfg.RAGLexicalCutoff,
		RRFK:                cfg.RAGFusionRRFK,
		CandidateMultiplier: cfg.RAGCandidateMultiplier,
	})

	store, err := indexstore.New(cfg.IndexDir, ann.Options{NProbe: cfg.RAGIVFNProbe})
	if err != nil {
		return nil, err
	}
	app.Index = usecase.NewIndexService(source, store, embedder, app.Query, opts.RebuildObserver, cfg.RAGEmbedBatchSize)

	meta := usecase.NewMetaMatcher(ruleSet, records)
	app.Sessions = usecase.NewSessionManager(meta, usecase.SessionOptions{
		Timeout:    cfg.SessionTimeout(),
		MaxHistory: cfg.ConversationMaxHistory,
		OnSweep:    opts.OnSweep,
	})
	app.Answers = usecase.NewAnswerUseCase(
		app.Sessions,
		app.Query,
		records,
		generator,
		ruleSet,
		usecase.PromptSet{AssistantName: cfg.AssistantName},
		opts.AnswerObserver,
		usecase.AnswerConfig{TopK: cfg.RAGTopK, Temperature: cfg.GenerationTemperature},
	)

	if cfg.NATSEnabled {
		queue, err := nats.New(cfg.NATSURL, nats.Options{
			ClientName:         opts.ClientName,
			RebuildSubject:     cfg.NATSRebuildSubject,
			UpdatedSubject:     cfg.NATSUpdatedSubject,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)
	}

	if !opts.SkipIndexLoad {
		if err := app.Index.LoadOrBuild(ctx); err != nil {
			return nil, err
		}
	}

	slog.Info("bootstrap_ready",
		"generator", cfg.GeneratorProvider,
		"relational_backend", cfg.RelationalBackend,
		"metadata_backend", cfg.MetadataBackend,
		"cache_backend", cfg.RAGCacheBackend,
		"records", records.Len(),
		"index_chunks", app.Query.Size(),
		"nats", cfg.NATSEnabled,
	)
	return app, nil
}

func newGenerator(cfg config.Config, ollamaClient *ollama.Client, executor *resilience.Executor) (ports.Generator, error) {
	switch cfg.GeneratorProvider {
	case "ollama":
		return ollama.NewGenerator(ollamaClient), nil
	case "gemini":
		return gemini.New(gemini.Config{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiModel,
		}, executor), nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.GeneratorProvider)
	}
}

func (a *App) knowledgeSource(ctx context.Context, cfg config.Config) (ports.KnowledgeSource, error) {
	if cfg.RelationalBackend != "neo4j" {
		return knowledge.NewJSONSource(cfg.KnowledgeGeneralPath, cfg.KnowledgeRelationalPath), nil
	}
	graph, err := knowledge.NewGraphSource(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase, cfg.KnowledgeGeneralPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = graph.Close(context.Background()) })
	return graph, nil
}

func (a *App) metadataStore(ctx context.Context, cfg config.Config) (*metadata.Store, error) {
	if cfg.MetadataBackend != "postgres" {
		return metadata.Load(ctx, metadata.NewFileSource(cfg.MetadataPath))
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	a.closers = append(a.closers, func() { _ = db.Close() })

	repo := postgres.NewPlantRecordRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return metadata.Load(ctx, repo)
}

func (a *App) stageCaches(cfg config.Config) (ports.StageCache, ports.StageCache) {
	if cfg.RAGCacheBackend != "redis" {
		return memorycache.New(cfg.RAGCacheCapacity), memorycache.New(cfg.RAGCacheCapacity)
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	a.closers = append(a.closers, func() { _ = client.Close() })
	return rediscache.New(client, "floraqa:dense:", cfg.RAGCacheCapacity, 0),
		rediscache.New(client, "floraqa:lexical:", cfg.RAGCacheCapacity, 0)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
