package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-docs-voice-api/internal/application/rag"
	"z-docs-voice-api/pkg/logger"
)

const lockKeyPrefix = "ingest_lock:"

// releaseScript 只释放自己持有的锁
var releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// IngestLock 按集合互斥的摄取锁，实现 rag.IngestionLock。
// SET NX + 持有者令牌，TTL 兜底防止崩溃后锁永久滞留。
type IngestLock struct {
	client *Client
}

// NewIngestLock 创建摄取锁
func NewIngestLock(client *Client) *IngestLock {
	return &IngestLock{client: client}
}

// Acquire 获取集合锁，已被持有时返回 rag.ErrIngestionInProgress
func (l *IngestLock) Acquire(ctx context.Context, collection string, ttl time.Duration) (func(context.Context), error) {
	ctx, span := tracer.Start(ctx, "redis.IngestLock.Acquire",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	key := lockKeyPrefix + collection
	token := uuid.NewString()

	ok, err := l.client.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to acquire ingestion lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, rag.ErrIngestionInProgress)
	}

	release := func(ctx context.Context) {
		if err := l.client.rdb.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
			logger.Warn(ctx, "failed to release ingestion lock", "collection", collection, "error", err.Error())
		}
	}
	return release, nil
}
