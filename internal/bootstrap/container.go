package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"

	"rag-agent-be/internal/config"
	"rag-agent-be/internal/controller"
	"rag-agent-be/internal/observability"
	"rag-agent-be/internal/pkg/logger"
	"rag-agent-be/internal/repository/memory"
	"rag-agent-be/internal/repository/unitofwork"
	"rag-agent-be/internal/service"
	"rag-agent-be/pkg/embedding"
	"rag-agent-be/pkg/events"
	"rag-agent-be/pkg/llm"
	"rag-agent-be/pkg/llm/factory"

	pktNats "rag-agent-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatbotController controller.IChatbotController
	HealthController  controller.IHealthController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	Metrics *observability.Metrics
	Logger  logger.ILogger

	closers []func() error
}

// NewContainer wires the application. A nil db runs on in-memory stores.
// Redis and NATS are optional: when their URLs are empty or unreachable the
// service runs without the shared embedding cache or the external event stream.
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	auditLogger := logger.NewIsolatedLogger(cfg.App.AuditLogFilePath)
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()
	c := &Container{Metrics: metrics, Logger: sysLogger}

	var uowFactory unitofwork.RepositoryFactory
	if db != nil {
		uowFactory = unitofwork.NewRepositoryFactory(db)
	} else {
		log.Println("[WARN] DB_CONNECTION_STRING is empty, sessions and passages are kept in memory")
		uowFactory = memory.NewRepositoryFactory()
	}

	// 2. Event Bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermill.NewStdLogger(false, false),
	)
	c.closers = append(c.closers, pubSub.Close)
	publisher := events.FanOut{events.NewChannelPublisher(pubSub, cfg.Events.TurnTopic)}

	var natsPub *pktNats.Publisher
	if cfg.App.NatsURL != "" {
		p, err := pktNats.NewPublisher(ctx, cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			natsPub = p
			publisher = append(publisher, natsPub)
			c.closers = append(c.closers, func() error { natsPub.Close(); return nil })
		}
	}

	// 3. Redis
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		c.closers = append(c.closers, rdb.Close)
	}

	// 4. Providers
	baseEmbedder, err := embedding.NewEmbeddingProvider(ctx, embedding.FactoryConfig{
		Provider:      cfg.Ai.EmbeddingProvider,
		Model:         cfg.Ai.EmbeddingModel,
		OllamaBaseURL: cfg.Ai.OllamaBaseURL,
		OpenAIBaseURL: cfg.Ai.OpenAIBaseURL,
		OpenAIKey:     cfg.Keys.OpenAI,
		GeminiKey:     cfg.Keys.GoogleGemini,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	namespace := cfg.Ai.EmbeddingProvider + ":" + cfg.Ai.EmbeddingModel
	var cacheClient redis.UniversalClient
	if rdb != nil {
		cacheClient = rdb
	}
	embeddingProvider := embedding.NewCachedProvider(baseEmbedder, namespace, cacheClient, cfg.Ai.EmbeddingCacheTTL)
	log.Printf("[INFO] Using Embedding Provider: %s (%s)", cfg.Ai.EmbeddingProvider, cfg.Ai.EmbeddingModel)

	llmProvider, err := factory.NewLLMProvider(ctx, factory.Config{
		Provider:      cfg.Ai.LLMProvider,
		Model:         cfg.Ai.LLMModel,
		OllamaBaseURL: cfg.Ai.OllamaBaseURL,
		OpenAIBaseURL: cfg.Ai.OpenAIBaseURL,
		OpenAIKey:     cfg.Keys.OpenAI,
		GeminiKey:     cfg.Keys.GoogleGemini,
		RPS:           cfg.Ai.GenerationRPS,
		Burst:         cfg.Ai.GenerationBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 5. Health
	registerHealthChecks(health, uowFactory, cfg.Ai.VectorDimensions, baseEmbedder, llmProvider, rdb, natsPub)

	// 6. Services
	consumerService := service.NewConsumerService(pubSub, cfg.Events.TurnTopic, auditLogger, sysLogger)
	chatbotService := service.NewChatbotService(
		cfg,
		uowFactory,
		embeddingProvider,
		llmProvider,
		publisher,
		metrics,
		sysLogger,
	)

	// 7. Controllers
	c.ChatbotController = controller.NewChatbotController(chatbotService)
	c.HealthController = controller.NewHealthController(health, metrics)
	c.ConsumerService = consumerService

	return c, nil
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func registerHealthChecks(
	health *observability.HealthChecker,
	uowFactory unitofwork.RepositoryFactory,
	dimensions int,
	embedder embedding.EmbeddingProvider,
	generator llm.LLMProvider,
	rdb *redis.Client,
	natsPub *pktNats.Publisher,
) {
	if p, ok := generator.(llm.Pinger); ok {
		health.RegisterCheck(&observability.HealthCheck{Name: "generation", CheckFunc: p.Ping, Critical: true})
	}
	if p, ok := embedder.(embedding.Pinger); ok {
		health.RegisterCheck(&observability.HealthCheck{Name: "embedding", CheckFunc: p.Ping})
	}
	health.RegisterCheck(&observability.HealthCheck{Name: "retrieval", CheckFunc: retrievalCheck(uowFactory, dimensions)})
	health.RegisterCheck(&observability.HealthCheck{Name: "persistence", CheckFunc: uowFactory.Ping, Critical: true})
	if rdb != nil {
		health.RegisterCheck(&observability.HealthCheck{
			Name:      "cache",
			CheckFunc: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	if natsPub != nil {
		health.RegisterCheck(&observability.HealthCheck{Name: "events", CheckFunc: natsPub.Ping})
	}
}

// retrievalCheck runs a one-row similarity search through the vector index.
func retrievalCheck(uowFactory unitofwork.RepositoryFactory, dimensions int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		query := make([]float32, dimensions)
		if dimensions > 0 {
			query[0] = 1
		}
		found, err := uowFactory.NewUnitOfWork(ctx).PassageRepository().SearchSimilar(ctx, query, 1, -1)
		if err != nil {
			return fmt.Errorf("similarity search: %w", err)
		}
		if len(found) == 0 {
			return errors.New("no passages indexed")
		}
		return nil
	}
}
