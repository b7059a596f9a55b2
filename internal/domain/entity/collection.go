package entity

import "time"

// CollectionManifest 集合的嵌入空间标签
// 摄取完成时写入，查询时校验，防止跨嵌入空间比较向量
type CollectionManifest struct {
	Collection     string    `json:"collection"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	Metric         string    `json:"metric"`
	PassageCount   int       `json:"passage_count"`
	ReadyAt        time.Time `json:"ready_at"`
}

// Compatible 校验查询侧嵌入配置与集合是否一致
func (m CollectionManifest) Compatible(model string, dimension int, metric string) bool {
	return m.EmbeddingModel == model && m.Dimension == dimension && m.Metric == metric
}
