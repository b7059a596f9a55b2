package rag

import (
	"fmt"
	"strings"

	"z-docs-voice-api/internal/domain/entity"
)

const defaultPromptBudget = 12000

// answerSystemPrompt 回答生成的系统提示词
const answerSystemPrompt = `You are a documentation assistant. Answer the user's question using only the provided documentation context. Be concise and precise. If the context does not contain the answer, say so plainly instead of guessing.`

// insufficientContextText 上下文不足时的兜底回答
const insufficientContextText = "I don't have enough documentation context to answer that question. Try ingesting the relevant documentation first."

// BuildGroundedPrompt 将检索到的段落与问题组装为有界长度的提示词。
// passages 按相似度降序传入；超出预算时从尾部（相似度最低）丢弃，
// 返回实际进入提示词的段落以便计算引用来源。
func BuildGroundedPrompt(question string, passages []entity.ScoredPassage, budget int) (string, []entity.ScoredPassage) {
	if budget <= 0 {
		budget = defaultPromptBudget
	}
	included := append([]entity.ScoredPassage(nil), passages...)
	for len(included) > 1 && promptLen(question, included) > budget {
		included = included[:len(included)-1]
	}

	var b strings.Builder
	b.WriteString("Documentation context:\n\n")
	for _, p := range included {
		fmt.Fprintf(&b, "[source: %s]\n%s\n\n", p.SourceURL, p.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String(), included
}

// CitedSources 按首次出现顺序去重来源地址
func CitedSources(passages []entity.ScoredPassage) []string {
	seen := make(map[string]struct{}, len(passages))
	var sources []string
	for _, p := range passages {
		if _, ok := seen[p.SourceURL]; ok {
			continue
		}
		seen[p.SourceURL] = struct{}{}
		sources = append(sources, p.SourceURL)
	}
	return sources
}

func promptLen(question string, passages []entity.ScoredPassage) int {
	n := len([]rune(question))
	for _, p := range passages {
		n += len([]rune(p.Text)) + len(p.SourceURL) + 16
	}
	return n
}
