package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"z-docs-voice-api/internal/infrastructure/persistence/milvus"
	"z-docs-voice-api/internal/infrastructure/persistence/postgres"
	"z-docs-voice-api/internal/infrastructure/persistence/redis"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	pg     *postgres.Client
	redis  *redis.Client
	milvus *milvus.Client
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(pg *postgres.Client, rdb *redis.Client, mv *milvus.Client) *HealthHandler {
	return &HealthHandler{
		pg:     pg,
		redis:  rdb,
		milvus: mv,
	}
}

// readinessCheck 单项依赖检查结果
type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Health 健康检查
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Live 存活探针
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready 就绪探针，检查下游依赖。
// Postgres 或 Redis 不可用视为未就绪；Milvus 不可用降级报告，
// 查询路径会在检索时返回存储不可用错误。
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]*readinessCheck{
		"postgres": h.check(ctx, func(ctx context.Context) error { return h.pg.HealthCheck(ctx) }),
		"redis":    h.check(ctx, func(ctx context.Context) error { return h.redis.HealthCheck(ctx) }),
		"milvus":   h.check(ctx, func(ctx context.Context) error { return h.milvus.HealthCheck(ctx) }),
	}

	status := "ready"
	code := http.StatusOK
	if checks["postgres"].Status != "ok" || checks["redis"].Status != "ok" {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	} else if checks["milvus"].Status != "ok" {
		status = "degraded"
	}

	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
	})
}

func (h *HealthHandler) check(ctx context.Context, fn func(context.Context) error) *readinessCheck {
	start := time.Now()
	err := fn(ctx)
	result := &readinessCheck{
		Status:    "ok",
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Status = "error"
		result.Error = err.Error()
	}
	return result
}
