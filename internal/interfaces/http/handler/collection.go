package handler

import (
	"github.com/gin-gonic/gin"

	"z-docs-voice-api/internal/application/rag"
	"z-docs-voice-api/internal/interfaces/http/dto"
)

// CollectionHandler 集合状态处理器
type CollectionHandler struct {
	manifests rag.ManifestStore
}

// NewCollectionHandler 创建集合处理器
func NewCollectionHandler(manifests rag.ManifestStore) *CollectionHandler {
	return &CollectionHandler{
		manifests: manifests,
	}
}

// GetCollection 查询集合状态
// @Summary 查询集合状态
// @Description 返回集合的嵌入空间标签和段落统计，未摄取的集合返回 404
// @Tags Collections
// @Produce json
// @Param collection path string true "集合名称"
// @Success 200 {object} dto.Response[dto.CollectionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/collections/{collection} [get]
func (h *CollectionHandler) GetCollection(c *gin.Context) {
	collection := c.Param("collection")
	if collection == "" {
		dto.BadRequest(c, "collection is required")
		return
	}

	manifest, err := h.manifests.Get(c.Request.Context(), collection)
	if err != nil {
		respondError(c, err, "failed to get collection")
		return
	}

	dto.Success(c, dto.NewCollectionResponse(manifest))
}
