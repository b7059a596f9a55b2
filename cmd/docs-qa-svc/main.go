// Package main 文档问答服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"z-docs-voice-api/internal/application/rag"
	"z-docs-voice-api/internal/config"
	"z-docs-voice-api/internal/infrastructure/crawler"
	"z-docs-voice-api/internal/infrastructure/embedding"
	"z-docs-voice-api/internal/infrastructure/llm"
	"z-docs-voice-api/internal/infrastructure/persistence/milvus"
	"z-docs-voice-api/internal/infrastructure/persistence/postgres"
	redisinfra "z-docs-voice-api/internal/infrastructure/persistence/redis"
	"z-docs-voice-api/internal/infrastructure/speech"
	"z-docs-voice-api/internal/interfaces/http/handler"
	"z-docs-voice-api/internal/interfaces/http/router"
	"z-docs-voice-api/pkg/logger"
	"z-docs-voice-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting docs-qa-svc",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Env,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// 初始化存储客户端
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to init postgres", err)
	}
	defer func() { _ = pgClient.Close() }()

	redisClient, err := redisinfra.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Fatal(ctx, "failed to init milvus", err)
	}
	defer func() { _ = milvusClient.Close() }()

	// 仓储与适配器
	passageRepo := milvus.NewPassageRepository(milvusClient, cfg.Embedding.Dimension)
	if err := passageRepo.EnsureReady(ctx); err != nil {
		logger.Fatal(ctx, "failed to prepare passage collection", err)
	}

	runRepo, err := postgres.NewIngestionRunRepository(pgClient)
	if err != nil {
		logger.Fatal(ctx, "failed to init ingestion run repository", err)
	}

	manifestStore := redisinfra.NewManifestStore(redisClient)
	ingestLock := redisinfra.NewIngestLock(redisClient)
	answerCache := redisinfra.NewAnswerCache(redisClient)
	rateLimiter := redisinfra.NewRateLimiter(redisClient)

	// 外部服务客户端
	embedder, err := embedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Fatal(ctx, "failed to init eino embedder", err)
	}

	llmFactory := llm.NewEinoFactory(&cfg.LLM)
	chatModel, err := llmFactory.Default(ctx)
	if err != nil {
		logger.Fatal(ctx, "failed to init chat model", err)
	}

	crawlClient := crawler.NewClient(&cfg.Crawler)
	speechClient := speech.NewClient(&cfg.Speech)

	// 应用层组装
	chunker := rag.NewChunker(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap, cfg.Ingestion.ChunkMinSize)
	pipeline := rag.NewPipeline(crawlClient, chunker, embedder, passageRepo, manifestStore, ingestLock, runRepo, rag.PipelineConfig{
		PageLimit:      cfg.Crawler.PageLimit,
		EmbedBatchSize: cfg.Embedding.BatchSize,
		EmbedWorkers:   cfg.Ingestion.EmbedWorkers,
		BatchRetries:   cfg.Ingestion.BatchRetries,
		RetryBackoff:   cfg.Ingestion.RetryBackoff,
		LockTTL:        cfg.Ingestion.LockTTL,
		RunTimeout:     cfg.Ingestion.RunTimeout,
		EmbeddingModel: cfg.Embedding.Model,
		Dimension:      cfg.Embedding.Dimension,
		Metric:         cfg.Vector.Milvus.MetricType,
	})

	retriever := rag.NewRetriever(embedder, passageRepo, manifestStore, rag.RetrieverConfig{
		DefaultTopK:    cfg.Retrieval.DefaultTopK,
		MaxTopK:        cfg.Retrieval.MaxTopK,
		MinSimilarity:  cfg.Retrieval.MinSimilarity,
		EmbeddingModel: cfg.Embedding.Model,
		Dimension:      cfg.Embedding.Dimension,
		Metric:         cfg.Vector.Milvus.MetricType,
	})
	composer := rag.NewComposer(chatModel, 0)
	packager := rag.NewPackager(speechClient)
	service := rag.NewService(retriever, composer, packager, answerCache, cfg.Retrieval.CacheTTL)

	// HTTP 路由
	r := router.New(cfg, router.Handlers{
		Health:     handler.NewHealthHandler(pgClient, redisClient, milvusClient),
		Ingest:     handler.NewIngestHandler(pipeline),
		Collection: handler.NewCollectionHandler(manifestStore),
		Query:      handler.NewQueryHandler(service),
	}, rateLimiter)

	// 创建 HTTP 服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	// 启动服务器
	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
