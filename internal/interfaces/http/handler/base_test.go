package handler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"z-docs-voice-api/internal/application/rag"
	"z-docs-voice-api/pkg/errors"
)

func TestToAppErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   errors.ErrorCode
	}{
		{rag.ErrInvalidTopK, 400, errors.CodeInvalidTopK},
		{rag.ErrInvalidVoice, 400, errors.CodeInvalidParam},
		{rag.ErrEmbeddingSpaceMismatch, 400, errors.CodeEmbeddingMismatch},
		{rag.ErrCollectionNotFound, 404, errors.CodeCollectionNotFound},
		{rag.ErrIngestionInProgress, 409, errors.CodeIngestionConflict},
		{rag.ErrCrawlFailed, 502, errors.CodeCrawlFailed},
		{rag.ErrEmbeddingFailed, 502, errors.CodeEmbeddingFailed},
		{rag.ErrReasoningFailed, 502, errors.CodeReasoningFailed},
		{rag.ErrSynthesisFailed, 502, errors.CodeSynthesisFailed},
		{rag.ErrStoreUnavailable, 503, errors.CodeVectorDBError},
	}

	for _, tc := range cases {
		appErr := toAppError(fmt.Errorf("%w: details", tc.err))
		assert.NotNil(t, appErr, tc.err.Error())
		assert.Equal(t, tc.status, appErr.HTTPStatus, tc.err.Error())
		assert.Equal(t, tc.code, appErr.Code, tc.err.Error())
	}
}

func TestToAppErrorUnknownError(t *testing.T) {
	assert.Nil(t, toAppError(fmt.Errorf("something else")))
}

func TestToAppErrorPassesThroughAppError(t *testing.T) {
	orig := errors.New(errors.CodeNotFound, "missing")
	assert.Equal(t, orig, toAppError(orig))
}
