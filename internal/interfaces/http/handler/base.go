// Package handler 提供 HTTP 请求处理器
package handler

import (
	stderrors "errors"

	"github.com/gin-gonic/gin"

	"z-docs-voice-api/internal/application/rag"
	"z-docs-voice-api/internal/interfaces/http/dto"
	"z-docs-voice-api/pkg/errors"
	"z-docs-voice-api/pkg/logger"
)

// respondError 将应用层错误映射为 HTTP 响应。
// rag 层的哨兵错误先归一化为 AppError，未识别的错误按内部错误处理。
func respondError(c *gin.Context, err error, fallback string) {
	appErr := toAppError(err)
	if appErr == nil {
		logger.Error(c.Request.Context(), fallback, err)
		dto.InternalError(c, fallback)
		return
	}
	dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, &dto.ErrorDetail{
		ErrorCode: string(appErr.Code),
		Details:   appErr.Detail,
	})
}

// toAppError 归一化错误。已是 AppError 的直接返回，
// rag 哨兵错误按错误码映射，其余返回 nil。
func toAppError(err error) *errors.AppError {
	if errors.IsAppError(err) {
		return errors.AsAppError(err)
	}

	var code errors.ErrorCode
	switch {
	case stderrors.Is(err, rag.ErrInvalidTopK):
		code = errors.CodeInvalidTopK
	case stderrors.Is(err, rag.ErrInvalidVoice):
		code = errors.CodeInvalidParam
	case stderrors.Is(err, rag.ErrCollectionNotFound):
		code = errors.CodeCollectionNotFound
	case stderrors.Is(err, rag.ErrEmbeddingSpaceMismatch):
		code = errors.CodeEmbeddingMismatch
	case stderrors.Is(err, rag.ErrIngestionInProgress):
		code = errors.CodeIngestionConflict
	case stderrors.Is(err, rag.ErrCrawlFailed):
		code = errors.CodeCrawlFailed
	case stderrors.Is(err, rag.ErrEmbeddingFailed):
		code = errors.CodeEmbeddingFailed
	case stderrors.Is(err, rag.ErrReasoningFailed):
		code = errors.CodeReasoningFailed
	case stderrors.Is(err, rag.ErrSynthesisFailed):
		code = errors.CodeSynthesisFailed
	case stderrors.Is(err, rag.ErrStoreUnavailable):
		code = errors.CodeVectorDBError
	default:
		return nil
	}
	return errors.New(code, err.Error())
}
