// Package entity 定义领域实体
package entity

import "strings"

// Document 抓取到的单个文档页面
type Document struct {
	SourceURL string `json:"source_url"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
}

// Valid 判断页面是否可用于切分
// 缺少正文或来源地址的页面在边界处丢弃
func (d Document) Valid() bool {
	return strings.TrimSpace(d.SourceURL) != "" && strings.TrimSpace(d.Content) != ""
}
