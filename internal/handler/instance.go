package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// InstanceHandler 房间实例：实例树、两种视图、进度、报价和历史
type InstanceHandler struct {
	materializer service.MaterializerService
	items        service.ItemService
	tree         service.InstanceTreeService
	pricing      service.PricingService
	changeLogs   service.ChangeLogService
}

func NewInstanceHandler(
	materializer service.MaterializerService,
	items service.ItemService,
	tree service.InstanceTreeService,
	pricing service.PricingService,
	changeLogs service.ChangeLogService,
) *InstanceHandler {
	return &InstanceHandler{
		materializer: materializer,
		items:        items,
		tree:         tree,
		pricing:      pricing,
		changeLogs:   changeLogs,
	}
}

// RegisterRoutes 注册路由
func (h *InstanceHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/instances/:id", h.Get)
	router.POST("/instances/:id/resync", h.Resync)
	router.GET("/instances/:id/curation", h.CurationView)
	router.GET("/instances/:id/execution", h.ExecutionView)
	router.GET("/instances/:id/progress", h.Progress)
	router.GET("/instances/:id/quote", h.Quote)
	router.GET("/instances/:id/quote/export", h.ExportQuote)
	router.GET("/instances/:id/change-logs", h.ChangeLogs)
	router.POST("/instances/:id/sections", h.AddSection)
	router.PUT("/instances/:id/visibility", h.BulkVisibility)

	router.DELETE("/sections/:id", h.DeleteSection)
	router.PUT("/sections/:id/visibility", h.BulkSectionVisibility)
}

// VisibilityRequest 单条或批量修改可见性
type VisibilityRequest struct {
	Visibility domain.Visibility `json:"visibility" binding:"required"`
}

func (h *InstanceHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	instance, err := h.materializer.GetInstance(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": instance})
}

// Resync 只补充模板新增的分区和条目
func (h *InstanceHandler) Resync(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	result, err := h.materializer.Resync(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// CurationView 设计师视图：包含隐藏条目
func (h *InstanceHandler) CurationView(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	view, err := h.items.CurationView(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// ExecutionView 执行视图：只含可见条目及进度
func (h *InstanceHandler) ExecutionView(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	view, err := h.items.ExecutionView(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (h *InstanceHandler) Progress(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	progress, err := h.items.Progress(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": progress})
}

func (h *InstanceHandler) Quote(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	quote, err := h.pricing.InstanceQuote(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": quote})
}

// ExportQuote 下载 XLSX 报价单
func (h *InstanceHandler) ExportQuote(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	data, err := h.pricing.ExportQuote(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=instance-%d-quote.xlsx", id))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *InstanceHandler) ChangeLogs(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	page, pageSize := pageParams(c)
	logs, err := h.changeLogs.ListByInstance(c.Request.Context(), actorFrom(c), id, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}

func (h *InstanceHandler) AddSection(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.AddSectionRequest
	if !bindJSON(c, &req) {
		return
	}
	section, err := h.tree.AddSection(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": section})
}

// DeleteSection 删除分区及其条目
func (h *InstanceHandler) DeleteSection(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.tree.DeleteSection(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *InstanceHandler) BulkVisibility(c *gin.Context) {
	h.bulkVisibility(c, domain.ScopeInstance)
}

func (h *InstanceHandler) BulkSectionVisibility(c *gin.Context) {
	h.bulkVisibility(c, domain.ScopeSection)
}

func (h *InstanceHandler) bulkVisibility(c *gin.Context, scope domain.BulkScope) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req VisibilityRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.items.BulkSetVisibility(c.Request.Context(), actorFrom(c), service.BulkVisibilityRequest{
		Scope:      scope,
		ScopeID:    id,
		Visibility: req.Visibility,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// pageParams 非法的分页参数交给服务层归一
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))
	return page, pageSize
}
