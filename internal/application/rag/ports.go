package rag

import (
	"context"
	"time"

	"z-docs-voice-api/internal/domain/entity"
)

// Crawler 定义应用层对抓取服务的最小依赖（port）。
// 由基础设施层提供具体实现（例如 Firecrawl 风格的作业轮询客户端）。
type Crawler interface {
	Crawl(ctx context.Context, rootURL string, pageLimit int) ([]entity.Document, error)
}

// PassageStore 定义应用层对向量存储/检索的最小依赖（port）。
// 实现必须保证集合之间相互隔离，且同一 (collection, source_url, ordinal)
// 重复写入为覆盖语义。
type PassageStore interface {
	EnsureReady(ctx context.Context) error
	Upsert(ctx context.Context, collection string, passages []entity.IndexedPassage) error
	DeleteBySource(ctx context.Context, collection, sourceURL string) error
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]entity.ScoredPassage, error)
}

// ManifestStore 集合嵌入空间标签的存取。
// Get 在集合从未摄取完成时返回 ErrCollectionNotFound。
type ManifestStore interface {
	Save(ctx context.Context, manifest entity.CollectionManifest) error
	Get(ctx context.Context, collection string) (*entity.CollectionManifest, error)
}

// IngestionLock 按集合互斥的摄取锁。
// Acquire 在锁已被持有时返回 ErrIngestionInProgress。
type IngestionLock interface {
	Acquire(ctx context.Context, collection string, ttl time.Duration) (release func(context.Context), err error)
}

// RunStore 摄取运行记录的持久化
type RunStore interface {
	Create(ctx context.Context, run *entity.IngestionRun) error
	Update(ctx context.Context, run *entity.IngestionRun) error
	ListByCollection(ctx context.Context, collection string, limit int) ([]entity.IngestionRun, error)
}

// SpeechSynthesizer 语音合成服务
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (*entity.AudioArtifact, error)
}

// AnswerCache 回答缓存，读穿透加载（实现侧负责并发去重）
type AnswerCache interface {
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (*entity.Answer, error)) (*entity.Answer, error)
}
