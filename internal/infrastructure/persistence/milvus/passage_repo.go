// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"

	milvusentity "github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-docs-voice-api/internal/application/rag"
	"z-docs-voice-api/internal/domain/entity"
)

// PassageRepository 段落向量仓储，实现 rag.PassageStore。
// 文档集合之间通过分区隔离；主键为确定性段落 ID，Upsert 为覆盖语义。
type PassageRepository struct {
	client    *Client
	dimension int
}

// NewPassageRepository 创建段落向量仓储
func NewPassageRepository(client *Client, dimension int) *PassageRepository {
	return &PassageRepository{client: client, dimension: dimension}
}

// EnsureReady 确保段落集合存在、已建索引并加载到内存
func (r *PassageRepository) EnsureReady(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("%w: milvus client not configured", rag.ErrStoreUnavailable)
	}
	ctx, span := tracer.Start(ctx, "milvus.EnsureReady")
	defer span.End()

	name := r.client.config.Collection
	has, err := r.client.milvus.HasCollection(ctx, name)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: failed to check collection: %v", rag.ErrStoreUnavailable, err)
	}
	if !has {
		if err := r.client.milvus.CreateCollection(ctx, PassagesSchema(name, r.dimension), milvusentity.DefaultShardNumber); err != nil {
			span.RecordError(err)
			return fmt.Errorf("%w: failed to create collection: %v", rag.ErrStoreUnavailable, err)
		}
		idx, err := milvusentity.NewIndexHNSW(
			milvusentity.COSINE,
			r.client.config.HNSWM,
			r.client.config.HNSWEfConstruction,
		)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("%w: failed to build index definition: %v", rag.ErrStoreUnavailable, err)
		}
		if err := r.client.milvus.CreateIndex(ctx, name, "vector", idx, false); err != nil {
			span.RecordError(err)
			return fmt.Errorf("%w: failed to create index: %v", rag.ErrStoreUnavailable, err)
		}
	}
	if err := r.client.milvus.LoadCollection(ctx, name, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: failed to load collection: %v", rag.ErrStoreUnavailable, err)
	}
	return nil
}

// Upsert 写入段落向量，同主键覆盖
func (r *PassageRepository) Upsert(ctx context.Context, collection string, passages []entity.IndexedPassage) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("%w: milvus client not configured", rag.ErrStoreUnavailable)
	}
	ctx, span := tracer.Start(ctx, "milvus.Upsert",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("count", len(passages)),
		))
	defer span.End()

	if len(passages) == 0 {
		return nil
	}

	name := r.client.config.Collection
	partition := PartitionName(collection)
	if err := r.ensurePartition(ctx, name, partition); err != nil {
		span.RecordError(err)
		return err
	}

	ids := make([]string, len(passages))
	vectors := make([][]float32, len(passages))
	collections := make([]string, len(passages))
	sourceURLs := make([]string, len(passages))
	titles := make([]string, len(passages))
	ordinals := make([]int64, len(passages))
	texts := make([]string, len(passages))
	for i, p := range passages {
		ids[i] = p.ID
		vectors[i] = p.Vector
		collections[i] = p.Collection
		sourceURLs[i] = p.SourceURL
		titles[i] = p.Title
		ordinals[i] = int64(p.Ordinal)
		texts[i] = p.Text
	}

	_, err := r.client.milvus.Upsert(ctx, name, partition,
		milvusentity.NewColumnVarChar("id", ids),
		milvusentity.NewColumnFloatVector("vector", r.dimension, vectors),
		milvusentity.NewColumnVarChar("collection_id", collections),
		milvusentity.NewColumnVarChar("source_url", sourceURLs),
		milvusentity.NewColumnVarChar("title", titles),
		milvusentity.NewColumnInt64("ordinal", ordinals),
		milvusentity.NewColumnVarChar("text_content", texts),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: failed to upsert passages: %v", rag.ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteBySource 删除某来源页面在集合内的全部段落
func (r *PassageRepository) DeleteBySource(ctx context.Context, collection, sourceURL string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("%w: milvus client not configured", rag.ErrStoreUnavailable)
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteBySource",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.String("source_url", sourceURL),
		))
	defer span.End()

	name := r.client.config.Collection
	partition := PartitionName(collection)

	// 分区尚不存在说明该集合还没有任何段落，无需删除
	if has, err := r.client.milvus.HasPartition(ctx, name, partition); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: failed to check partition: %v", rag.ErrStoreUnavailable, err)
	} else if !has {
		return nil
	}

	filter := fmt.Sprintf(`source_url == "%s"`, sourceURL)
	if err := r.client.milvus.Delete(ctx, name, partition, filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: failed to delete passages: %v", rag.ErrStoreUnavailable, err)
	}
	return nil
}

// Search 在集合分区内做 top-k 相似检索，返回相似度得分
func (r *PassageRepository) Search(ctx context.Context, collection string, vector []float32, limit int) ([]entity.ScoredPassage, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("%w: milvus client not configured", rag.ErrStoreUnavailable)
	}
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("limit", limit),
		))
	defer span.End()

	name := r.client.config.Collection
	partition := PartitionName(collection)

	// 分区尚未创建（集合为空）时返回空结果而不是报错
	if has, err := r.client.milvus.HasPartition(ctx, name, partition); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: failed to check partition: %v", rag.ErrStoreUnavailable, err)
	} else if !has {
		return nil, nil
	}

	sp, err := milvusentity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: failed to create search param: %v", rag.ErrStoreUnavailable, err)
	}

	results, err := r.client.milvus.Search(ctx,
		name,
		[]string{partition},
		fmt.Sprintf(`collection_id == "%s"`, collection),
		[]string{"id", "source_url", "title", "ordinal", "text_content"},
		[]milvusentity.Vector{milvusentity.FloatVector(vector)},
		"vector",
		milvusentity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: failed to search: %v", rag.ErrStoreUnavailable, err)
	}

	var out []entity.ScoredPassage
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			p := entity.ScoredPassage{
				// COSINE 下 Milvus 返回余弦相似度，越大越相似
				Score: float64(result.Scores[i]),
			}
			p.Collection = collection
			if col, ok := result.Fields.GetColumn("id").(*milvusentity.ColumnVarChar); ok {
				p.ID = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn("source_url").(*milvusentity.ColumnVarChar); ok {
				p.SourceURL = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn("title").(*milvusentity.ColumnVarChar); ok {
				p.Title = col.Data()[i]
			}
			if col, ok := result.Fields.GetColumn("ordinal").(*milvusentity.ColumnInt64); ok {
				p.Ordinal = int(col.Data()[i])
			}
			if col, ok := result.Fields.GetColumn("text_content").(*milvusentity.ColumnVarChar); ok {
				p.Text = col.Data()[i]
			}
			out = append(out, p)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

func (r *PassageRepository) ensurePartition(ctx context.Context, collectionName, partition string) error {
	has, err := r.client.milvus.HasPartition(ctx, collectionName, partition)
	if err != nil {
		return fmt.Errorf("%w: failed to check partition: %v", rag.ErrStoreUnavailable, err)
	}
	if has {
		return nil
	}
	if err := r.client.milvus.CreatePartition(ctx, collectionName, partition); err != nil {
		return fmt.Errorf("%w: failed to create partition: %v", rag.ErrStoreUnavailable, err)
	}
	return nil
}
