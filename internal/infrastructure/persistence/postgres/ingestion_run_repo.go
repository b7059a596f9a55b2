package postgres

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-docs-voice-api/internal/domain/entity"
)

// IngestionRunRepository 摄取运行记录仓储，实现 rag.RunStore
type IngestionRunRepository struct {
	client *Client
}

// NewIngestionRunRepository 创建摄取运行仓储并确保表结构存在
func NewIngestionRunRepository(client *Client) (*IngestionRunRepository, error) {
	if err := client.db.AutoMigrate(&entity.IngestionRun{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ingestion_runs: %w", err)
	}
	return &IngestionRunRepository{client: client}, nil
}

// Create 记录新的摄取运行
func (r *IngestionRunRepository) Create(ctx context.Context, run *entity.IngestionRun) error {
	ctx, span := tracer.Start(ctx, "postgres.IngestionRunRepository.Create",
		trace.WithAttributes(attribute.String("run_id", run.ID)))
	defer span.End()

	if err := r.client.db.WithContext(ctx).Create(run).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create ingestion run: %w", err)
	}
	return nil
}

// Update 更新摄取运行的阶段与终态
func (r *IngestionRunRepository) Update(ctx context.Context, run *entity.IngestionRun) error {
	ctx, span := tracer.Start(ctx, "postgres.IngestionRunRepository.Update",
		trace.WithAttributes(attribute.String("run_id", run.ID)))
	defer span.End()

	if err := r.client.db.WithContext(ctx).Save(run).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update ingestion run: %w", err)
	}
	return nil
}

// ListByCollection 返回集合最近的摄取运行，按开始时间倒序
func (r *IngestionRunRepository) ListByCollection(ctx context.Context, collection string, limit int) ([]entity.IngestionRun, error) {
	ctx, span := tracer.Start(ctx, "postgres.IngestionRunRepository.ListByCollection",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	var runs []entity.IngestionRun
	err := r.client.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list ingestion runs: %w", err)
	}
	return runs, nil
}
