package entity

import "time"

// IngestionPhase 摄取流水线阶段
type IngestionPhase string

const (
	PhaseIdle      IngestionPhase = "idle"
	PhaseCrawling  IngestionPhase = "crawling"
	PhaseChunking  IngestionPhase = "chunking"
	PhaseEmbedding IngestionPhase = "embedding"
	PhaseIndexing  IngestionPhase = "indexing"
	PhaseReady     IngestionPhase = "ready"
	PhaseFailed    IngestionPhase = "failed"
)

// IngestionStatus 摄取运行终态
type IngestionStatus string

const (
	IngestionStatusRunning   IngestionStatus = "running"
	IngestionStatusSucceeded IngestionStatus = "succeeded"
	IngestionStatusFailed    IngestionStatus = "failed"
)

// IngestionRun 一次摄取运行的记录
type IngestionRun struct {
	ID           string          `json:"id" gorm:"type:uuid;primaryKey"`
	Collection   string          `json:"collection" gorm:"type:varchar(128);index;not null"`
	RootURL      string          `json:"root_url" gorm:"type:text;not null"`
	PageLimit    int             `json:"page_limit" gorm:"not null"`
	Status       IngestionStatus `json:"status" gorm:"type:varchar(16);not null"`
	Phase        IngestionPhase  `json:"phase" gorm:"type:varchar(16);not null"`
	PageCount    int             `json:"page_count"`
	PassageCount int             `json:"passage_count"`
	Error        string          `json:"error,omitempty" gorm:"type:text"`
	StartedAt    time.Time       `json:"started_at" gorm:"autoCreateTime"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

func (IngestionRun) TableName() string {
	return "ingestion_runs"
}
