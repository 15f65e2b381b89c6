package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/config"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/guardrail"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/ports"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/usecase"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/infrastructure/cache"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/infrastructure/llm/ollama"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/infrastructure/llm/openai"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/infrastructure/repository/postgres"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/infrastructure/resilience"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/infrastructure/vector/qdrant"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/infrastructure/websearch/tavily"
)

const (
	providerOpenAI = "openai"
	providerOllama = "ollama"
	serviceTavily  = "tavily"
)

type App struct {
	Config config.Config

	Chat    ports.ChatAnswerer
	History ports.ConversationStore

	closeFn func()
}

// New wires the service. observer receives the retry and circuit breaker
// events of every upstream client; it may be nil.
func New(ctx context.Context, cfg config.Config, observer resilience.Observer, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	closers := []func(){func() { _ = db.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	messages := postgres.NewMessageRepository(db)
	if cfg.PostgresEnsureSchema {
		if err := messages.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.Open(ctx, cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	models, embedder, err := buildModels(cfg, observer, logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	if redisClient != nil {
		embedCache := cache.New(redisClient, "rag:", cfg.CacheTTL(), logger)
		embedder = cache.NewCachedEmbedder(embedder, embedCache, embeddingModelName(cfg))
	}

	vector, keyword := buildSearchers(cfg, db, logger)

	var web ports.WebSearcher
	if cfg.TavilyAPIKey != "" {
		web = tavily.New(tavily.Config{
			APIKey:            cfg.TavilyAPIKey,
			BaseURL:           cfg.TavilyURL,
			RequestsPerMinute: cfg.WebSearchRPM,
		}, newExecutor(cfg, serviceTavily, observer, logger))
		if redisClient != nil {
			web = cache.NewCachedWebSearcher(web, cache.New(redisClient, "rag:", cfg.CacheTTL(), logger))
		}
	} else {
		logger.Warn("web_search_disabled", zap.String("reason", "TAVILY_API_KEY is not set"))
	}

	planner := usecase.NewQueryPlanner(models, logger)
	assembler := usecase.NewContextAssembler(postgres.NewDocumentRepository(db), logger)
	retriever := usecase.NewRetriever(embedder, vector, keyword, planner, assembler, usecase.RetrieverOptions{
		MaxParallelVariants: cfg.MultiQueryParallelism,
	}, logger)

	guard := guardrail.NewEngine(guardrail.Config{MaxInputChars: cfg.GuardrailMaxInputChars})
	agent := usecase.NewAgentRouter(guard, retriever, models, nil, web, usecase.RouterConfig{
		Defaults:      cfg.Retrieval,
		WebMaxResults: cfg.WebSearchMaxResults,
		StageTimeout:  cfg.AgentTimeout(),
	}, logger)

	chat := usecase.NewChatService(agent, messages, cfg.AgentHistoryMessages, logger)

	logger.Info("bootstrap_complete",
		zap.String("vector_backend", cfg.VectorBackend),
		zap.String("llm_default_provider", cfg.LLMDefaultProvider),
		zap.Strings("chat_providers", models.Providers()),
		zap.String("embedding_provider", cfg.EmbeddingProvider),
		zap.String("rag_strategy", string(cfg.Retrieval.Strategy)),
		zap.Bool("cache_enabled", redisClient != nil),
		zap.Bool("web_search_enabled", web != nil),
	)

	return &App{
		Config:  cfg,
		Chat:    chat,
		History: messages,
		closeFn: closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// buildModels registers every configured chat provider and picks the
// embedder named by EMBEDDING_PROVIDER.
func buildModels(cfg config.Config, observer resilience.Observer, logger *zap.Logger) (*usecase.ChatModels, ports.Embedder, error) {
	chatModels := make(map[string]ports.ChatModel, 2)

	var openaiClient *openai.Client
	if cfg.OpenAIAPIKey != "" || cfg.OpenAIBaseURL != "" {
		openaiClient = openai.New(openai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			ChatModel:  cfg.OpenAIChatModel,
			EmbedModel: cfg.OpenAIEmbedModel,
			Timeout:    time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
		}, newExecutor(cfg, providerOpenAI, observer, logger), logger)
		chatModels[providerOpenAI] = openai.NewChatModel(openaiClient)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel, newExecutor(cfg, providerOllama, observer, logger))
	chatModels[providerOllama] = ollama.NewChatModel(ollamaClient)

	defaultProvider := strings.ToLower(strings.TrimSpace(cfg.LLMDefaultProvider))
	if _, ok := chatModels[defaultProvider]; !ok {
		logger.Warn("llm_default_provider_unavailable",
			zap.String("requested", cfg.LLMDefaultProvider),
			zap.String("using", providerOllama),
		)
		defaultProvider = providerOllama
	}

	var embedder ports.Embedder
	switch strings.ToLower(strings.TrimSpace(cfg.EmbeddingProvider)) {
	case providerOllama:
		embedder = ollama.NewEmbedder(ollamaClient)
	case providerOpenAI:
		if openaiClient == nil {
			return nil, nil, fmt.Errorf("embedding provider openai requires OPENAI_API_KEY or OPENAI_BASE_URL")
		}
		embedder = openai.NewEmbedder(openaiClient)
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}

	return usecase.NewChatModels(defaultProvider, chatModels), embedder, nil
}

// buildSearchers selects the dense vector backend. Keyword search uses the
// Qdrant sparse vector when one is configured and Postgres full text
// search otherwise.
func buildSearchers(cfg config.Config, db *sql.DB, logger *zap.Logger) (ports.VectorSearcher, ports.KeywordSearcher) {
	chunks := postgres.NewChunkRepository(db)
	if !strings.EqualFold(cfg.VectorBackend, "qdrant") {
		return chunks, chunks
	}
	client := qdrant.New(qdrant.Config{
		BaseURL:      cfg.QdrantURL,
		Collection:   cfg.QdrantCollection,
		DenseVector:  cfg.QdrantDenseVector,
		SparseVector: cfg.QdrantSparseVector,
	})
	if client.KeywordEnabled() {
		return client, client
	}
	logger.Info("keyword_search_backend", zap.String("backend", "postgres_fts"))
	return client, chunks
}

func embeddingModelName(cfg config.Config) string {
	if strings.EqualFold(cfg.EmbeddingProvider, providerOllama) {
		return providerOllama + ":" + cfg.OllamaEmbedModel
	}
	return providerOpenAI + ":" + cfg.OpenAIEmbedModel
}

// DefaultVariant resolves the configured agent variant.
func DefaultVariant(cfg config.Config) domain.AgentVariant {
	return domain.ParseAgentVariant(cfg.AgentVariant)
}
