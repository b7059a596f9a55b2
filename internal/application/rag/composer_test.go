package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-docs-voice-api/internal/domain/entity"
)

func retrievalResult(passages ...entity.ScoredPassage) *entity.RetrievalResult {
	return &entity.RetrievalResult{Collection: "docs", Question: "how to install?", Passages: passages}
}

func TestComposeEmptyResultSkipsModel(t *testing.T) {
	chat := &fakeChatModel{reply: "should not be called"}
	c := NewComposer(chat, 0)

	got, err := c.Compose(context.Background(), retrievalResult())
	require.NoError(t, err)
	assert.False(t, got.Grounded)
	assert.Empty(t, got.Sources)
	assert.Equal(t, insufficientContextText, got.Text)
	assert.Zero(t, chat.calls, "empty retrieval must not invoke the model")
}

func TestComposeGroundedAnswer(t *testing.T) {
	chat := &fakeChatModel{reply: "Run the installer from page one."}
	c := NewComposer(chat, 0)

	got, err := c.Compose(context.Background(), retrievalResult(
		scored("https://d/p1", 0, 0.9),
		scored("https://d/p2", 1, 0.8),
		scored("https://d/p1", 2, 0.7), // 重复来源，只引用一次
	))
	require.NoError(t, err)
	assert.True(t, got.Grounded)
	assert.Equal(t, "Run the installer from page one.", got.Text)
	assert.Equal(t, []string{"https://d/p1", "https://d/p2"}, got.Sources)
	assert.Equal(t, 1, chat.calls)

	// 提示词包含来源标注与问题
	joined := strings.Join(chat.prompts, "\n")
	assert.Contains(t, joined, "[source: https://d/p1]")
	assert.Contains(t, joined, "how to install?")
}

func TestComposeModelFailure(t *testing.T) {
	chat := &fakeChatModel{err: errors.New("timeout")}
	c := NewComposer(chat, 0)

	_, err := c.Compose(context.Background(), retrievalResult(scored("https://d/p1", 0, 0.9)))
	assert.ErrorIs(t, err, ErrReasoningFailed)
}

func TestComposeEmptyModelOutput(t *testing.T) {
	chat := &fakeChatModel{reply: "   "}
	c := NewComposer(chat, 0)

	_, err := c.Compose(context.Background(), retrievalResult(scored("https://d/p1", 0, 0.9)))
	assert.ErrorIs(t, err, ErrReasoningFailed)
}

func TestComposeBudgetDropsLowestSimilarityFirst(t *testing.T) {
	long := strings.Repeat("w", 400)
	high := scored("https://d/high", 0, 0.95)
	high.Text = long
	low := scored("https://d/low", 1, 0.55)
	low.Text = long

	chat := &fakeChatModel{reply: "answer"}
	// 预算只够容纳一个段落
	c := NewComposer(chat, 500)

	got, err := c.Compose(context.Background(), retrievalResult(high, low))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://d/high"}, got.Sources, "lowest-similarity passage is dropped first")

	joined := strings.Join(chat.prompts, "\n")
	assert.NotContains(t, joined, "https://d/low")
}

func TestBuildGroundedPromptKeepsAtLeastOnePassage(t *testing.T) {
	p := scored("https://d/p1", 0, 0.9)
	p.Text = strings.Repeat("x", 5000)

	prompt, included := BuildGroundedPrompt("q", []entity.ScoredPassage{p}, 100)
	assert.Len(t, included, 1)
	assert.Contains(t, prompt, "https://d/p1")
}
