package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/service"
)

// ItemHandler 实例条目：可见性、状态、备注、部件和需求/规格挂接
type ItemHandler struct {
	items   service.ItemService
	tree    service.InstanceTreeService
	linking service.LinkingService
	pricing service.PricingService
}

func NewItemHandler(items service.ItemService, tree service.InstanceTreeService, linking service.LinkingService, pricing service.PricingService) *ItemHandler {
	return &ItemHandler{items: items, tree: tree, linking: linking, pricing: pricing}
}

// RegisterRoutes 注册路由
func (h *ItemHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/sections/:id/items", h.Add)

	router.GET("/items/:id", h.Get)
	router.PATCH("/items/:id", h.Update)
	router.DELETE("/items/:id", h.Delete)
	router.PUT("/items/:id/visibility", h.SetVisibility)
	router.PUT("/items/:id/state", h.SetState)
	router.PUT("/items/:id/notes", h.SetNotes)
	router.GET("/items/:id/total", h.Total)
	router.POST("/items/:id/components", h.AddComponent)

	// 需求条目下的规格选项
	router.GET("/items/:id/options", h.ListOptions)
	router.POST("/items/:id/options", h.CreateOption)
	router.POST("/items/:id/link", h.Link)
	// 规格条目自身
	router.DELETE("/items/:id/link", h.Unlink)
	router.POST("/items/:id/promote", h.Promote)

	router.PUT("/components/:id", h.UpdateComponent)
	router.DELETE("/components/:id", h.DeleteComponent)
}

// StateRequest 状态迁移请求
type StateRequest struct {
	State domain.ItemState `json:"state" binding:"required"`
}

// NotesRequest 备注可以清空
type NotesRequest struct {
	Notes string `json:"notes"`
}

// LinkRequest 把规格条目挂到路径中的需求条目下
type LinkRequest struct {
	SpecItemID uint `json:"spec_item_id" binding:"required"`
}

func (h *ItemHandler) Add(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.AddItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.tree.AddItem(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (h *ItemHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	item, err := h.items.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (h *ItemHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.tree.UpdateItem(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (h *ItemHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.tree.DeleteItem(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// SetVisibility 只改可见性，不影响状态
func (h *ItemHandler) SetVisibility(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req VisibilityRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.items.SetVisibility(c.Request.Context(), actorFrom(c), id, req.Visibility)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

// SetState 非法迁移返回 422
func (h *ItemHandler) SetState(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req StateRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.items.SetState(c.Request.Context(), actorFrom(c), id, req.State)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (h *ItemHandler) SetNotes(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req NotesRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.items.SetNotes(c.Request.Context(), actorFrom(c), id, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (h *ItemHandler) Total(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	total, err := h.pricing.ComputeTotal(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": total})
}

func (h *ItemHandler) AddComponent(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.ComponentRequest
	if !bindJSON(c, &req) {
		return
	}
	component, err := h.tree.AddComponent(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": component})
}

func (h *ItemHandler) UpdateComponent(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.ComponentRequest
	if !bindJSON(c, &req) {
		return
	}
	component, err := h.tree.UpdateComponent(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": component})
}

func (h *ItemHandler) DeleteComponent(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.tree.DeleteComponent(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *ItemHandler) ListOptions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	options, err := h.linking.ListOptions(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": options})
}

func (h *ItemHandler) CreateOption(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.AddItemRequest
	if !bindJSON(c, &req) {
		return
	}
	spec, err := h.linking.CreateOption(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": spec})
}

func (h *ItemHandler) Link(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req LinkRequest
	if !bindJSON(c, &req) {
		return
	}
	spec, err := h.linking.Link(c.Request.Context(), actorFrom(c), id, req.SpecItemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": spec})
}

func (h *ItemHandler) Unlink(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	spec, err := h.linking.Unlink(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": spec})
}

// Promote 选中规格，返回整个兄弟集合
func (h *ItemHandler) Promote(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	siblings, err := h.linking.Promote(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": siblings})
}
