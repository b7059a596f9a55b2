package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel/attribute"

	"z-docs-voice-api/internal/domain/entity"
	"z-docs-voice-api/pkg/metrics"
	"z-docs-voice-api/pkg/tracer"
)

// RetrieverConfig 检索配置
type RetrieverConfig struct {
	DefaultTopK   int
	MaxTopK       int
	MinSimilarity float64

	EmbeddingModel string
	Dimension      int
	Metric         string
}

// Retriever 将问题嵌入后在集合内做 top-k 相似检索。
// 查询侧与摄取侧必须共享同一嵌入空间，由集合清单在查询时校验。
type Retriever struct {
	embedder  embedding.Embedder
	store     PassageStore
	manifests ManifestStore
	cfg       RetrieverConfig
}

func NewRetriever(embedder embedding.Embedder, store PassageStore, manifests ManifestStore, cfg RetrieverConfig) *Retriever {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 20
	}
	if cfg.Metric == "" {
		cfg.Metric = "COSINE"
	}
	return &Retriever{embedder: embedder, store: store, manifests: manifests, cfg: cfg}
}

// Retrieve 检索问题最相近的段落。
// topK 为 0 时使用默认值，超出 [1, MaxTopK] 返回 ErrInvalidTopK；
// 低于相似度阈值的命中在截断到 topK 之前丢弃；
// 结果按相似度降序排列，同分时按段落序号升序保证确定性。
func (r *Retriever) Retrieve(ctx context.Context, collection, question string, topK int) (*entity.RetrievalResult, error) {
	ctx, span := tracer.Start(ctx, "rag.Retriever.Retrieve",
		attribute.String("collection", collection))
	defer span.End()

	if topK == 0 {
		topK = r.cfg.DefaultTopK
	}
	if topK < 1 || topK > r.cfg.MaxTopK {
		return nil, fmt.Errorf("top_k must be within [1, %d]: %w", r.cfg.MaxTopK, ErrInvalidTopK)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	manifest, err := r.manifests.Get(ctx, collection)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if !manifest.Compatible(r.cfg.EmbeddingModel, r.cfg.Dimension, r.cfg.Metric) {
		return nil, fmt.Errorf(
			"collection %q was indexed with model=%s dim=%d metric=%s, query side uses model=%s dim=%d metric=%s: %w",
			collection, manifest.EmbeddingModel, manifest.Dimension, manifest.Metric,
			r.cfg.EmbeddingModel, r.cfg.Dimension, r.cfg.Metric, ErrEmbeddingSpaceMismatch)
	}

	vector, err := r.embedQuestion(ctx, question)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if len(vector) != manifest.Dimension {
		return nil, fmt.Errorf("query vector dimension %d does not match collection dimension %d: %w",
			len(vector), manifest.Dimension, ErrEmbeddingSpaceMismatch)
	}

	// 先超量召回再按阈值过滤，避免过滤后不足 topK
	start := time.Now()
	hits, err := r.store.Search(ctx, collection, vector, topK*2)
	metrics.RetrievalSearchDuration.WithLabelValues(collection).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RetrievalSearchTotal.WithLabelValues(collection, "error").Inc()
		tracer.RecordError(span, err)
		return nil, err
	}
	metrics.RetrievalSearchTotal.WithLabelValues(collection, "ok").Inc()

	kept := hits[:0:0]
	for _, h := range hits {
		if h.Score >= r.cfg.MinSimilarity {
			kept = append(kept, h)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].Ordinal < kept[j].Ordinal
	})
	if len(kept) > topK {
		kept = kept[:topK]
	}

	return &entity.RetrievalResult{
		Collection: collection,
		Question:   question,
		Passages:   kept,
	}, nil
}

func (r *Retriever) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	vectors, err := r.embedder.EmbedStrings(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for one question", ErrEmbeddingFailed, len(vectors))
	}
	return toFloat32(vectors[0]), nil
}
