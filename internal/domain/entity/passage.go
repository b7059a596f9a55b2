package entity

import (
	"fmt"

	"github.com/google/uuid"
)

// passageNamespace 段落 ID 命名空间，保证同一段落重复摄取时 ID 稳定
var passageNamespace = uuid.MustParse("7b9a54c2-3f1d-4e8a-9c06-5d2f8a1e6b43")

// Passage 文档切分后的段落
type Passage struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	SourceURL  string `json:"source_url"`
	Title      string `json:"title,omitempty"`
	Ordinal    int    `json:"ordinal"`
	Text       string `json:"text"`
}

// PassageID 生成确定性段落 ID
// 同一 collection、来源页面、序号组合总是得到同一 ID，
// 重复摄取时覆盖旧向量而不是产生重复条目
func PassageID(collection, sourceURL string, ordinal int) string {
	name := fmt.Sprintf("%s|%s|%d", collection, sourceURL, ordinal)
	return uuid.NewSHA1(passageNamespace, []byte(name)).String()
}

// IndexedPassage 带向量的段落，用于写入向量库
type IndexedPassage struct {
	Passage
	Vector []float32 `json:"-"`
}

// ScoredPassage 检索命中的段落及其相似度得分
type ScoredPassage struct {
	Passage
	Score float64 `json:"score"`
}
