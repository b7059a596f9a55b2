package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"z-docs-voice-api/internal/domain/entity"
	"z-docs-voice-api/pkg/logger"
)

var cacheTracer = otel.Tracer("redis.cache")

// AnswerCache 回答缓存，实现 rag.AnswerCache。
// Read-Through 模式，singleflight 合并并发加载防止缓存击穿。
type AnswerCache struct {
	client *Client
	group  singleflight.Group
}

// NewAnswerCache 创建回答缓存
func NewAnswerCache(client *Client) *AnswerCache {
	return &AnswerCache{client: client}
}

// GetOrLoad 读取缓存，未命中时加载并回填
func (c *AnswerCache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (*entity.Answer, error)) (*entity.Answer, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrLoad",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	if answer, ok := c.get(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return answer, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// 再次检查缓存（可能已被并发请求填充）
		if answer, ok := c.get(ctx, key); ok {
			return answer, nil
		}

		answer, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(answer)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal answer: %w", err)
		}
		if err := c.client.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
			// 缓存写入失败不影响返回结果
			span.RecordError(err)
		}
		return answer, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*entity.Answer), nil
}

func (c *AnswerCache) get(ctx context.Context, key string) (*entity.Answer, bool) {
	data, err := c.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		// redis.Nil 为未命中；其他错误退化为直接加载
		if !errors.Is(err, redis.Nil) {
			logger.Warn(ctx, "answer cache read failed", "error", err.Error())
		}
		return nil, false
	}
	var answer entity.Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		return nil, false
	}
	return &answer, true
}
