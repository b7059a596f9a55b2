package dto

import (
	"time"

	"z-docs-voice-api/internal/domain/entity"
)

// IngestRequest 摄取请求
type IngestRequest struct {
	RootURL   string `json:"root_url" binding:"required,url"`
	PageLimit int    `json:"page_limit" binding:"omitempty,min=1,max=100"`
}

// IngestResponse 摄取启动响应
type IngestResponse struct {
	RunID      string `json:"run_id"`
	Collection string `json:"collection"`
}

// CollectionResponse 集合状态响应
type CollectionResponse struct {
	Collection     string    `json:"collection"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	Metric         string    `json:"metric"`
	PassageCount   int       `json:"passage_count"`
	ReadyAt        time.Time `json:"ready_at"`
}

// NewCollectionResponse 从集合清单构建响应
func NewCollectionResponse(m *entity.CollectionManifest) CollectionResponse {
	return CollectionResponse{
		Collection:     m.Collection,
		EmbeddingModel: m.EmbeddingModel,
		Dimension:      m.Dimension,
		Metric:         m.Metric,
		PassageCount:   m.PassageCount,
		ReadyAt:        m.ReadyAt,
	}
}

// IngestionRunResponse 摄取运行记录
type IngestionRunResponse struct {
	ID           string     `json:"id"`
	Collection   string     `json:"collection"`
	RootURL      string     `json:"root_url"`
	Status       string     `json:"status"`
	Phase        string     `json:"phase"`
	PageCount    int        `json:"page_count"`
	PassageCount int        `json:"passage_count"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// NewIngestionRunResponses 转换运行记录列表
func NewIngestionRunResponses(runs []entity.IngestionRun) []IngestionRunResponse {
	out := make([]IngestionRunResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, IngestionRunResponse{
			ID:           r.ID,
			Collection:   r.Collection,
			RootURL:      r.RootURL,
			Status:       string(r.Status),
			Phase:        string(r.Phase),
			PageCount:    r.PageCount,
			PassageCount: r.PassageCount,
			Error:        r.Error,
			StartedAt:    r.StartedAt,
			FinishedAt:   r.FinishedAt,
		})
	}
	return out
}
