package rag

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"z-docs-voice-api/internal/domain/entity"
)

// QueryInput 一次问答请求
type QueryInput struct {
	Collection string
	Question   string
	TopK       int
	Voice      string
}

// Service 查询侧编排：检索 -> 生成 -> 打包。
// 文字回答按 (collection, question, top_k) 缓存；
// 语音依赖 voice 参数，在缓存之后合成。
type Service struct {
	retriever *Retriever
	composer  *Composer
	packager  *Packager
	cache     AnswerCache
	cacheTTL  time.Duration
}

func NewService(retriever *Retriever, composer *Composer, packager *Packager, cache AnswerCache, cacheTTL time.Duration) *Service {
	return &Service{
		retriever: retriever,
		composer:  composer,
		packager:  packager,
		cache:     cache,
		cacheTTL:  cacheTTL,
	}
}

// Query 回答问题并附带可选的语音
func (s *Service) Query(ctx context.Context, in QueryInput) (*entity.SpokenAnswer, error) {
	voice, ok := NormalizeVoice(strings.TrimSpace(in.Voice))
	if !ok {
		return nil, fmt.Errorf("%w: unsupported voice style %q", ErrInvalidVoice, in.Voice)
	}

	load := func(ctx context.Context) (*entity.Answer, error) {
		result, err := s.retriever.Retrieve(ctx, in.Collection, in.Question, in.TopK)
		if err != nil {
			return nil, err
		}
		return s.composer.Compose(ctx, result)
	}

	var answer *entity.Answer
	var err error
	if s.cache != nil && s.cacheTTL > 0 {
		answer, err = s.cache.GetOrLoad(ctx, answerCacheKey(in), s.cacheTTL, load)
	} else {
		answer, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}

	return s.packager.Package(ctx, answer, voice), nil
}

func answerCacheKey(in QueryInput) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(in.Question)))
	return fmt.Sprintf("answer:%s:%d:%x", in.Collection, in.TopK, sum[:16])
}
