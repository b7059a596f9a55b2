package rag

import (
	"regexp"
	"strings"

	"z-docs-voice-api/internal/domain/entity"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
	defaultChunkMinSize = 80
)

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// Chunker 将文档切分为有界、可嵌入的段落。
// 优先按段落边界切分，超长段落退化为按字符数硬切；
// 相邻段落共享 overlap 个字符的上下文，避免边界处丢失语义。
// 纯函数：同样的输入总是产生同样的段落序列。
type Chunker struct {
	targetSize int
	overlap    int
	minSize    int
}

// NewChunker 创建切分器，参数非法时回退到默认值。
// overlap 必须严格小于 targetSize。
func NewChunker(targetSize, overlap, minSize int) *Chunker {
	if targetSize <= 0 {
		targetSize = defaultChunkSize
	}
	if overlap < 0 || overlap >= targetSize {
		overlap = targetSize / 5
	}
	if minSize < 0 || minSize > targetSize {
		minSize = defaultChunkMinSize
	}
	return &Chunker{targetSize: targetSize, overlap: overlap, minSize: minSize}
}

// Chunk 切分单个文档，按出现顺序分配段落序号。
// 空文档返回空序列；短于 targetSize 的文档恰好产生一个段落。
func (c *Chunker) Chunk(collection string, doc entity.Document) []entity.Passage {
	content := strings.TrimSpace(doc.Content)
	if content == "" {
		return nil
	}

	chunks := c.pack(c.segments(content))
	chunks = c.applyOverlap(chunks)
	chunks = c.mergeShort(chunks)

	passages := make([]entity.Passage, 0, len(chunks))
	for i, text := range chunks {
		passages = append(passages, entity.Passage{
			ID:         entity.PassageID(collection, doc.SourceURL, i),
			Collection: collection,
			SourceURL:  doc.SourceURL,
			Title:      doc.Title,
			Ordinal:    i,
			Text:       text,
		})
	}
	return passages
}

// segments 按段落边界拆分，超过 targetSize 的段落再按字符数硬切
func (c *Chunker) segments(content string) []string {
	var out []string
	for _, para := range paragraphSplit.Split(content, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len([]rune(para)) <= c.targetSize {
			out = append(out, para)
			continue
		}
		out = append(out, hardSplit(para, c.targetSize)...)
	}
	return out
}

// pack 将相邻片段贪心合并到 targetSize 以内
func (c *Chunker) pack(segments []string) []string {
	var chunks []string
	var buf []rune
	for _, seg := range segments {
		runes := []rune(seg)
		if len(buf) > 0 && len(buf)+2+len(runes) > c.targetSize {
			chunks = append(chunks, string(buf))
			buf = buf[:0]
		}
		if len(buf) > 0 {
			buf = append(buf, '\n', '\n')
		}
		buf = append(buf, runes...)
	}
	if len(buf) > 0 {
		chunks = append(chunks, string(buf))
	}
	return chunks
}

// applyOverlap 每个后续块前置上一块末尾 overlap 个字符
func (c *Chunker) applyOverlap(chunks []string) []string {
	if c.overlap <= 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := prev
		if len(prev) > c.overlap {
			tail = prev[len(prev)-c.overlap:]
		}
		out[i] = strings.TrimSpace(string(tail)) + "\n" + chunks[i]
	}
	return out
}

// mergeShort 将过短的块并入前一块，避免产生无意义的碎片
func (c *Chunker) mergeShort(chunks []string) []string {
	if c.minSize <= 0 || len(chunks) < 2 {
		return chunks
	}
	out := chunks[:0:0]
	for _, chunk := range chunks {
		if len(out) > 0 && len([]rune(chunk)) < c.minSize {
			out[len(out)-1] = out[len(out)-1] + "\n\n" + chunk
			continue
		}
		out = append(out, chunk)
	}
	return out
}

func hardSplit(s string, maxRunes int) []string {
	runes := []rune(s)
	out := make([]string, 0, len(runes)/maxRunes+1)
	for start := 0; start < len(runes); start += maxRunes {
		end := start + maxRunes
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}
