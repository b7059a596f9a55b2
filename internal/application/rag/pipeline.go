package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"z-docs-voice-api/internal/domain/entity"
	"z-docs-voice-api/pkg/logger"
	"z-docs-voice-api/pkg/metrics"
	"z-docs-voice-api/pkg/tracer"
)

// PipelineConfig 摄取流水线配置
type PipelineConfig struct {
	PageLimit      int
	EmbedBatchSize int
	EmbedWorkers   int
	BatchRetries   int
	RetryBackoff   time.Duration
	LockTTL        time.Duration
	RunTimeout     time.Duration

	EmbeddingModel string
	Dimension      int
	Metric         string
}

// Pipeline 摄取流水线：crawl -> chunk -> embed -> index
// 每个集合同一时刻至多一次运行；失败的运行不影响集合先前已就绪的索引。
type Pipeline struct {
	crawler   Crawler
	chunker   *Chunker
	embedder  embedding.Embedder
	store     PassageStore
	manifests ManifestStore
	lock      IngestionLock
	runs      RunStore
	cfg       PipelineConfig
}

func NewPipeline(
	crawler Crawler,
	chunker *Chunker,
	embedder embedding.Embedder,
	store PassageStore,
	manifests ManifestStore,
	lock IngestionLock,
	runs RunStore,
	cfg PipelineConfig,
) *Pipeline {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 5
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 64
	}
	if cfg.EmbedWorkers <= 0 {
		cfg.EmbedWorkers = 4
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 15 * time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Minute
	}
	if cfg.Metric == "" {
		cfg.Metric = "COSINE"
	}
	return &Pipeline{
		crawler:   crawler,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		manifests: manifests,
		lock:      lock,
		runs:      runs,
		cfg:       cfg,
	}
}

// StartIngestion 启动一次异步摄取运行，返回运行 ID。
// 同一集合已有运行时返回 ErrIngestionInProgress。
func (p *Pipeline) StartIngestion(ctx context.Context, collection, rootURL string, pageLimit int) (string, error) {
	collection = strings.TrimSpace(collection)
	rootURL = strings.TrimSpace(rootURL)
	if collection == "" || rootURL == "" {
		return "", fmt.Errorf("collection and root_url are required")
	}
	if pageLimit <= 0 {
		pageLimit = p.cfg.PageLimit
	}

	release, err := p.lock.Acquire(ctx, collection, p.cfg.LockTTL)
	if err != nil {
		return "", err
	}

	run := &entity.IngestionRun{
		ID:         uuid.NewString(),
		Collection: collection,
		RootURL:    rootURL,
		PageLimit:  pageLimit,
		Status:     entity.IngestionStatusRunning,
		Phase:      entity.PhaseIdle,
		StartedAt:  time.Now(),
	}
	if err := p.runs.Create(ctx, run); err != nil {
		release(ctx)
		return "", fmt.Errorf("failed to record ingestion run: %w", err)
	}

	// 请求结束后运行继续，因此脱离请求 context 的取消链
	bg := context.WithoutCancel(ctx)
	bg = logger.WithContext(bg, logger.CollectionKey, collection)
	bg = logger.WithContext(bg, logger.RunIDKey, run.ID)
	go func() {
		runCtx, cancel := context.WithTimeout(bg, p.cfg.RunTimeout)
		defer cancel()
		defer release(bg)
		p.execute(runCtx, run)
	}()

	return run.ID, nil
}

// execute 执行运行并落库终态
func (p *Pipeline) execute(ctx context.Context, run *entity.IngestionRun) {
	start := time.Now()
	err := p.Run(ctx, run)

	now := time.Now()
	run.FinishedAt = &now
	if err != nil {
		run.Status = entity.IngestionStatusFailed
		run.Phase = entity.PhaseFailed
		run.Error = err.Error()
		logger.Error(ctx, "ingestion run failed", err)
		metrics.IngestionRunTotal.WithLabelValues(run.Collection, string(entity.IngestionStatusFailed)).Inc()
	} else {
		run.Status = entity.IngestionStatusSucceeded
		logger.Info(ctx, "ingestion run succeeded",
			"pages", run.PageCount, "passages", run.PassageCount, "duration", now.Sub(start).String())
		metrics.IngestionRunTotal.WithLabelValues(run.Collection, string(entity.IngestionStatusSucceeded)).Inc()
	}
	metrics.IngestionRunDuration.WithLabelValues(run.Collection).Observe(time.Since(start).Seconds())

	if err := p.runs.Update(ctx, run); err != nil {
		logger.Error(ctx, "failed to persist ingestion run result", err)
	}
}

// Run 同步执行一次摄取运行，依次推进各阶段并就地更新 run。
// 返回的错误是携带出错阶段的 *PhaseError。
func (p *Pipeline) Run(ctx context.Context, run *entity.IngestionRun) error {
	ctx, span := tracer.Start(ctx, "rag.Pipeline.Run")
	defer span.End()

	// Crawling
	p.setPhase(ctx, run, entity.PhaseCrawling)
	docs, err := p.crawler.Crawl(ctx, run.RootURL, run.PageLimit)
	if err != nil {
		return p.fail(span, entity.PhaseCrawling, err)
	}
	valid := docs[:0:0]
	for _, d := range docs {
		if d.Valid() {
			valid = append(valid, d)
		}
	}
	run.PageCount = len(valid)

	// Chunking
	p.setPhase(ctx, run, entity.PhaseChunking)
	var passages []entity.Passage
	for _, d := range valid {
		passages = append(passages, p.chunker.Chunk(run.Collection, d)...)
	}
	run.PassageCount = len(passages)

	// Embedding
	p.setPhase(ctx, run, entity.PhaseEmbedding)
	indexed, err := p.embedAll(ctx, passages)
	if err != nil {
		return p.fail(span, entity.PhaseEmbedding, err)
	}

	// Indexing：同一来源先删后写，重抓取完全取代旧内容
	p.setPhase(ctx, run, entity.PhaseIndexing)
	if err := p.store.EnsureReady(ctx); err != nil {
		return p.fail(span, entity.PhaseIndexing, err)
	}
	if err := p.index(ctx, run.Collection, indexed); err != nil {
		return p.fail(span, entity.PhaseIndexing, err)
	}

	// Ready：写入清单后集合才可查询
	manifest := entity.CollectionManifest{
		Collection:     run.Collection,
		EmbeddingModel: p.cfg.EmbeddingModel,
		Dimension:      p.cfg.Dimension,
		Metric:         p.cfg.Metric,
		PassageCount:   len(indexed),
		ReadyAt:        time.Now(),
	}
	if err := p.manifests.Save(ctx, manifest); err != nil {
		return p.fail(span, entity.PhaseIndexing, fmt.Errorf("failed to save collection manifest: %w", err))
	}
	p.setPhase(ctx, run, entity.PhaseReady)
	metrics.IngestionPassagesIndexed.WithLabelValues(run.Collection).Add(float64(len(indexed)))
	return nil
}

// Runs 返回集合最近的摄取运行
func (p *Pipeline) Runs(ctx context.Context, collection string, limit int) ([]entity.IngestionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return p.runs.ListByCollection(ctx, collection, limit)
}

func (p *Pipeline) setPhase(ctx context.Context, run *entity.IngestionRun, phase entity.IngestionPhase) {
	run.Phase = phase
	logger.Info(ctx, "ingestion phase", "phase", string(phase))
	if err := p.runs.Update(ctx, run); err != nil {
		logger.Warn(ctx, "failed to persist ingestion phase", "phase", string(phase), "error", err.Error())
	}
}

func (p *Pipeline) fail(span trace.Span, phase entity.IngestionPhase, err error) error {
	perr := &PhaseError{Phase: phase, Err: err}
	tracer.RecordError(span, perr)
	return perr
}

// embedAll 并行分批嵌入，按批次序号回填结果保证段落顺序不变
func (p *Pipeline) embedAll(ctx context.Context, passages []entity.Passage) ([]entity.IndexedPassage, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	batchSize := p.cfg.EmbedBatchSize
	out := make([]entity.IndexedPassage, len(passages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.EmbedWorkers)
	for lo := 0; lo < len(passages); lo += batchSize {
		lo := lo
		hi := lo + batchSize
		if hi > len(passages) {
			hi = len(passages)
		}
		g.Go(func() error {
			texts := make([]string, 0, hi-lo)
			for _, pa := range passages[lo:hi] {
				texts = append(texts, pa.Text)
			}
			vectors, err := p.embedBatch(gctx, texts)
			if err != nil {
				return err
			}
			if len(vectors) != len(texts) {
				return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
			}
			for j, vec := range vectors {
				if p.cfg.Dimension > 0 && len(vec) != p.cfg.Dimension {
					return fmt.Errorf("%w: got dimension %d, collection expects %d", ErrEmbeddingSpaceMismatch, len(vec), p.cfg.Dimension)
				}
				out[lo+j] = entity.IndexedPassage{Passage: passages[lo+j], Vector: toFloat32(vec)}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// embedBatch 单批嵌入，失败时有界退避重试
func (p *Pipeline) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.BatchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, ctx.Err())
			case <-time.After(p.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
		vectors, err := p.embedder.EmbedStrings(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrEmbeddingFailed, p.cfg.BatchRetries+1, lastErr)
}

// index 按来源页面分组写入，保持首次出现顺序
func (p *Pipeline) index(ctx context.Context, collection string, indexed []entity.IndexedPassage) error {
	var order []string
	bySource := make(map[string][]entity.IndexedPassage)
	for _, ip := range indexed {
		if _, ok := bySource[ip.SourceURL]; !ok {
			order = append(order, ip.SourceURL)
		}
		bySource[ip.SourceURL] = append(bySource[ip.SourceURL], ip)
	}
	for _, src := range order {
		if err := p.store.DeleteBySource(ctx, collection, src); err != nil {
			return fmt.Errorf("failed to delete stale passages for %s: %w", src, err)
		}
		if err := p.store.Upsert(ctx, collection, bySource[src]); err != nil {
			return fmt.Errorf("failed to upsert passages for %s: %w", src, err)
		}
	}
	return nil
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
