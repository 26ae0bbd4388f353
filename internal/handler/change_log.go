package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/service"
)

// ChangeLogHandler 单个实体的变更历史
type ChangeLogHandler struct {
	service service.ChangeLogService
}

func NewChangeLogHandler(service service.ChangeLogService) *ChangeLogHandler {
	return &ChangeLogHandler{service: service}
}

func (h *ChangeLogHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/change-logs/:entity/:id", h.ListByEntity)
}

func (h *ChangeLogHandler) ListByEntity(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	page, pageSize := pageParams(c)
	logs, err := h.service.ListByEntity(c.Request.Context(), actorFrom(c), domain.EntityType(c.Param("entity")), id, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}
