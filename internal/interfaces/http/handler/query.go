package handler

import (
	"github.com/gin-gonic/gin"

	"z-docs-voice-api/internal/application/rag"
	"z-docs-voice-api/internal/interfaces/http/dto"
)

// QueryHandler 问答处理器
type QueryHandler struct {
	service *rag.Service
}

// NewQueryHandler 创建问答处理器
func NewQueryHandler(service *rag.Service) *QueryHandler {
	return &QueryHandler{
		service: service,
	}
}

// Query 文档问答
// @Summary 文档问答
// @Description 检索集合中的相关段落，生成带引用的回答并合成语音
// @Tags Query
// @Accept json
// @Produce json
// @Param body body dto.QueryRequest true "问答请求"
// @Success 200 {object} dto.Response[dto.QueryResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/query [post]
func (h *QueryHandler) Query(c *gin.Context) {
	var req dto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	spoken, err := h.service.Query(c.Request.Context(), rag.QueryInput{
		Collection: req.Collection,
		Question:   req.Question,
		TopK:       req.TopK,
		Voice:      req.Voice,
	})
	if err != nil {
		respondError(c, err, "failed to answer question")
		return
	}

	dto.Success(c, dto.NewQueryResponse(spoken))
}
