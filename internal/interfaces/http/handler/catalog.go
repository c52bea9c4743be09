package handler

import (
	"github.com/gin-gonic/gin"

	"ai-novel-orchestrator/internal/interfaces/http/dto"
	"ai-novel-orchestrator/internal/workflow/prompt"
)

// CatalogHandler 题材与文风目录
type CatalogHandler struct {
	catalog *prompt.Catalog
}

// NewCatalogHandler 创建目录处理器
func NewCatalogHandler(catalog *prompt.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// List 列出全部题材与文风
// @Summary 题材与文风目录
// @Tags Catalog
// @Produce json
// @Success 200 {object} dto.Response[dto.CatalogResponse]
// @Router /v1/catalog [get]
func (h *CatalogHandler) List(c *gin.Context) {
	dto.Success(c, &dto.CatalogResponse{
		Genres: h.catalog.Genres,
		Styles: h.catalog.Styles,
	})
}
