package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"z-docs-voice-api/internal/domain/entity"
	"z-docs-voice-api/pkg/metrics"
	"z-docs-voice-api/pkg/tracer"
)

// Composer 基于检索上下文生成有据可依的回答。
// 检索结果为空时直接返回兜底回答，不调用推理服务。
type Composer struct {
	model        model.BaseChatModel
	promptBudget int
}

func NewComposer(chatModel model.BaseChatModel, promptBudget int) *Composer {
	if promptBudget <= 0 {
		promptBudget = defaultPromptBudget
	}
	return &Composer{model: chatModel, promptBudget: promptBudget}
}

// Compose 生成回答。
// 引用来源为实际进入提示词的段落来源，按首次出现顺序去重；
// groundedness 仅在至少一个段落通过相似度阈值（即检索结果非空）时为 true。
func (c *Composer) Compose(ctx context.Context, result *entity.RetrievalResult) (*entity.Answer, error) {
	ctx, span := tracer.Start(ctx, "rag.Composer.Compose")
	defer span.End()

	if result == nil || result.Empty() {
		return &entity.Answer{Text: insufficientContextText, Grounded: false}, nil
	}

	prompt, included := BuildGroundedPrompt(result.Question, result.Passages, c.promptBudget)
	messages := []*schema.Message{
		schema.SystemMessage(answerSystemPrompt),
		schema.UserMessage(prompt),
	}

	start := time.Now()
	out, err := c.model.Generate(ctx, messages)
	metrics.LLMCallDuration.WithLabelValues("compose").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCallTotal.WithLabelValues("compose", "error").Inc()
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("%w: %v", ErrReasoningFailed, err)
	}
	metrics.LLMCallTotal.WithLabelValues("compose", "ok").Inc()

	text := ""
	if out != nil {
		text = strings.TrimSpace(out.Content)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: model returned empty content", ErrReasoningFailed)
	}

	return &entity.Answer{
		Text:     text,
		Sources:  CitedSources(included),
		Grounded: true,
	}, nil
}
