package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studiodesk/ffetrack/internal/service"
)

// TemplateHandler 模板及其分区、条目的维护
type TemplateHandler struct {
	service service.TemplateService
}

func NewTemplateHandler(service service.TemplateService) *TemplateHandler {
	return &TemplateHandler{service: service}
}

// RegisterRoutes 注册路由
func (h *TemplateHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/templates", h.List)
	router.POST("/templates", h.Create)
	router.GET("/templates/:id", h.Get)
	router.PUT("/templates/:id", h.Update)
	router.DELETE("/templates/:id", h.Delete)
	router.POST("/templates/:id/clone", h.Clone)
	router.POST("/templates/:id/sections", h.AddSection)

	router.PUT("/template-sections/:id", h.UpdateSection)
	router.DELETE("/template-sections/:id", h.DeleteSection)
	router.POST("/template-sections/:id/items", h.AddItem)

	router.PUT("/template-items/:id", h.UpdateItem)
	router.DELETE("/template-items/:id", h.DeleteItem)
}

// CloneTemplateRequest 克隆模板请求，名称为空时自动生成
type CloneTemplateRequest struct {
	Name string `json:"name" binding:"max=100"`
}

// List 获取模板列表
func (h *TemplateHandler) List(c *gin.Context) {
	templates, err := h.service.List(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": templates})
}

// Get 获取模板详情
func (h *TemplateHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	template, err := h.service.GetByID(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": template})
}

// Create 创建模板
func (h *TemplateHandler) Create(c *gin.Context) {
	var req service.CreateTemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	template, err := h.service.Create(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": template})
}

// Update 更新模板
func (h *TemplateHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateTemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	template, err := h.service.Update(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": template})
}

// Delete 删除模板
func (h *TemplateHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// Clone 克隆模板
func (h *TemplateHandler) Clone(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req CloneTemplateRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	template, err := h.service.Clone(c.Request.Context(), actorFrom(c), id, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": template})
}

func (h *TemplateHandler) AddSection(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.TemplateSectionRequest
	if !bindJSON(c, &req) {
		return
	}
	section, err := h.service.AddSection(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": section})
}

func (h *TemplateHandler) UpdateSection(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.TemplateSectionRequest
	if !bindJSON(c, &req) {
		return
	}
	section, err := h.service.UpdateSection(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": section})
}

func (h *TemplateHandler) DeleteSection(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteSection(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *TemplateHandler) AddItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.TemplateItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.service.AddItem(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (h *TemplateHandler) UpdateItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.TemplateItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.service.UpdateItem(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (h *TemplateHandler) DeleteItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteItem(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
