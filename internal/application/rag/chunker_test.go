package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-docs-voice-api/internal/domain/entity"
)

func TestChunkerEmptyDocument(t *testing.T) {
	c := NewChunker(500, 100, 50)
	got := c.Chunk("docs", entity.Document{SourceURL: "https://example.com/a", Content: "   \n\n  "})
	assert.Empty(t, got)
}

func TestChunkerShortDocumentSinglePassage(t *testing.T) {
	c := NewChunker(500, 100, 50)
	doc := entity.Document{SourceURL: "https://example.com/a", Title: "Intro", Content: "A short page about installation."}

	got := c.Chunk("docs", doc)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Ordinal)
	assert.Equal(t, doc.Content, got[0].Text)
	assert.Equal(t, doc.SourceURL, got[0].SourceURL)
	assert.Equal(t, "Intro", got[0].Title)
	assert.Equal(t, entity.PassageID("docs", doc.SourceURL, 0), got[0].ID)
}

func TestChunkerSplitsOnParagraphs(t *testing.T) {
	paraA := strings.Repeat("alpha ", 100) // ~600 runes
	paraB := strings.Repeat("bravo ", 100)
	doc := entity.Document{
		SourceURL: "https://example.com/b",
		Content:   paraA + "\n\n" + paraB,
	}

	c := NewChunker(700, 100, 50)
	got := c.Chunk("docs", doc)
	require.Len(t, got, 2)
	assert.Contains(t, got[0].Text, "alpha")
	assert.NotContains(t, got[0].Text, "bravo")
	assert.Contains(t, got[1].Text, "bravo")
	// 相邻块共享上一块末尾的上下文
	assert.Contains(t, got[1].Text, "alpha")
	assert.Equal(t, []int{0, 1}, []int{got[0].Ordinal, got[1].Ordinal})
}

func TestChunkerHardSplitsOversizedParagraph(t *testing.T) {
	doc := entity.Document{
		SourceURL: "https://example.com/c",
		Content:   strings.Repeat("x", 2500),
	}

	c := NewChunker(1000, 0, 0)
	got := c.Chunk("docs", doc)
	require.GreaterOrEqual(t, len(got), 3)

	var total int
	for _, p := range got {
		assert.LessOrEqual(t, len([]rune(p.Text)), 1000+2)
		total += len(p.Text)
	}
	// 无重叠时拼接覆盖全文，无缺口
	assert.Equal(t, 2500, total)
}

func TestChunkerDeterministic(t *testing.T) {
	doc := entity.Document{
		SourceURL: "https://example.com/d",
		Content:   strings.Repeat("one two three. ", 200),
	}

	c := NewChunker(400, 80, 40)
	first := c.Chunk("docs", doc)
	second := c.Chunk("docs", doc)
	assert.Equal(t, first, second)
}

func TestChunkerMergesShortTail(t *testing.T) {
	paraA := strings.Repeat("a", 380)
	tiny := "tail"
	doc := entity.Document{
		SourceURL: "https://example.com/e",
		Content:   paraA + "\n\n" + tiny,
	}

	c := NewChunker(400, 0, 50)
	got := c.Chunk("docs", doc)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Text, "tail")
}

func TestChunkerRejectsOverlapNotBelowTarget(t *testing.T) {
	c := NewChunker(100, 100, 10)
	doc := entity.Document{SourceURL: "https://example.com/f", Content: strings.Repeat("y", 350)}
	got := c.Chunk("docs", doc)
	require.NotEmpty(t, got)
	// overlap 被钳制到 target 的 1/5，切分仍然推进而不会死循环
	assert.GreaterOrEqual(t, len(got), 3)
}

func TestPassageIDStable(t *testing.T) {
	a := entity.PassageID("docs", "https://example.com/a", 3)
	b := entity.PassageID("docs", "https://example.com/a", 3)
	c := entity.PassageID("docs", "https://example.com/a", 4)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
