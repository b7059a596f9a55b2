package rag

import (
	"errors"
	"fmt"

	"z-docs-voice-api/internal/domain/entity"
)

var (
	// ErrCrawlFailed 表示抓取服务不可达或拒绝访问
	ErrCrawlFailed = errors.New("documentation crawl failed")
	// ErrEmbeddingFailed 表示嵌入服务调用失败（限流、载荷过大等）
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrEmbeddingSpaceMismatch 表示查询侧嵌入配置与集合记录的嵌入空间不一致
	ErrEmbeddingSpaceMismatch = errors.New("embedding space mismatch")
	// ErrStoreUnavailable 表示向量库不可达
	ErrStoreUnavailable = errors.New("passage store unavailable")
	// ErrCollectionNotFound 表示集合从未完成过摄取
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrIngestionInProgress 表示该集合已有一次摄取在运行
	ErrIngestionInProgress = errors.New("ingestion already in progress")
	// ErrInvalidTopK 表示 top_k 超出允许范围
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidVoice 表示请求了未知的语音风格
	ErrInvalidVoice = errors.New("invalid voice style")
	// ErrReasoningFailed 表示推理服务调用失败或返回不可用内容
	ErrReasoningFailed = errors.New("reasoning failed")
	// ErrSynthesisFailed 表示语音合成失败
	ErrSynthesisFailed = errors.New("speech synthesis failed")
)

// PhaseError 摄取运行失败时携带出错阶段
type PhaseError struct {
	Phase entity.IngestionPhase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("ingestion failed during %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
