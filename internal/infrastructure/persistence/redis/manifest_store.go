package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-docs-voice-api/internal/application/rag"
	"z-docs-voice-api/internal/domain/entity"
)

const manifestKeyPrefix = "manifest:"

// ManifestStore 集合清单存储，实现 rag.ManifestStore。
// 清单在摄取成功后写入；缺失的清单即集合不存在。
type ManifestStore struct {
	client *Client
}

// NewManifestStore 创建集合清单存储
func NewManifestStore(client *Client) *ManifestStore {
	return &ManifestStore{client: client}
}

// Save 写入集合清单
func (s *ManifestStore) Save(ctx context.Context, manifest entity.CollectionManifest) error {
	ctx, span := tracer.Start(ctx, "redis.ManifestStore.Save",
		trace.WithAttributes(attribute.String("collection", manifest.Collection)))
	defer span.End()

	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := s.client.rdb.Set(ctx, manifestKeyPrefix+manifest.Collection, data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	return nil
}

// Get 读取集合清单，集合从未摄取完成时返回 rag.ErrCollectionNotFound
func (s *ManifestStore) Get(ctx context.Context, collection string) (*entity.CollectionManifest, error) {
	ctx, span := tracer.Start(ctx, "redis.ManifestStore.Get",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	data, err := s.client.rdb.Get(ctx, manifestKeyPrefix+collection).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("collection %q: %w", collection, rag.ErrCollectionNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest entity.CollectionManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &manifest, nil
}
