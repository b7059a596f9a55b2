package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"z-docs-voice-api/internal/application/rag"
	"z-docs-voice-api/internal/interfaces/http/dto"
)

// IngestHandler 文档摄取处理器
type IngestHandler struct {
	pipeline *rag.Pipeline
}

// NewIngestHandler 创建摄取处理器
func NewIngestHandler(pipeline *rag.Pipeline) *IngestHandler {
	return &IngestHandler{
		pipeline: pipeline,
	}
}

// StartIngestion 启动文档摄取
// @Summary 启动文档摄取
// @Description 抓取指定站点并重建集合索引，异步执行
// @Tags Ingestion
// @Accept json
// @Produce json
// @Param collection path string true "集合名称"
// @Param body body dto.IngestRequest true "摄取请求"
// @Success 202 {object} dto.Response[dto.IngestResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/collections/{collection}/ingest [post]
func (h *IngestHandler) StartIngestion(c *gin.Context) {
	collection := c.Param("collection")
	if collection == "" {
		dto.BadRequest(c, "collection is required")
		return
	}

	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	runID, err := h.pipeline.StartIngestion(c.Request.Context(), collection, req.RootURL, req.PageLimit)
	if err != nil {
		respondError(c, err, "failed to start ingestion")
		return
	}

	dto.Accepted(c, dto.IngestResponse{
		RunID:      runID,
		Collection: collection,
	})
}

// ListRuns 查询摄取运行记录
// @Summary 查询摄取运行记录
// @Description 按启动时间倒序返回集合的摄取运行记录
// @Tags Ingestion
// @Produce json
// @Param collection path string true "集合名称"
// @Param limit query int false "返回条数" default(20)
// @Success 200 {object} dto.Response[[]dto.IngestionRunResponse]
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/collections/{collection}/runs [get]
func (h *IngestHandler) ListRuns(c *gin.Context) {
	collection := c.Param("collection")
	if collection == "" {
		dto.BadRequest(c, "collection is required")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			dto.BadRequest(c, "invalid limit")
			return
		}
		limit = parsed
	}

	runs, err := h.pipeline.Runs(c.Request.Context(), collection, limit)
	if err != nil {
		respondError(c, err, "failed to list ingestion runs")
		return
	}

	dto.Success(c, dto.NewIngestionRunResponses(runs))
}
