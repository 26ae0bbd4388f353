package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studiodesk/ffetrack/internal/service"
)

// RoomHandler 房间管理与 FFE 物化入口
type RoomHandler struct {
	rooms        service.RoomService
	materializer service.MaterializerService
}

func NewRoomHandler(rooms service.RoomService, materializer service.MaterializerService) *RoomHandler {
	return &RoomHandler{rooms: rooms, materializer: materializer}
}

// RegisterRoutes 注册路由
func (h *RoomHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/rooms", h.Create)
	router.GET("/rooms/:id", h.Get)
	router.DELETE("/rooms/:id", h.Delete)
	router.POST("/rooms/:id/archive", h.Archive)
	router.POST("/rooms/:id/materialize", h.Materialize)
	router.GET("/rooms/:id/instance", h.GetInstance)
}

// MaterializeBody 物化请求体，模板为空时创建空白实例
type MaterializeBody struct {
	TemplateID *uint `json:"template_id"`
}

func (h *RoomHandler) Create(c *gin.Context) {
	var req service.CreateRoomRequest
	if !bindJSON(c, &req) {
		return
	}
	room, err := h.rooms.Create(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": room})
}

func (h *RoomHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	room, err := h.rooms.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": room})
}

func (h *RoomHandler) Archive(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	room, err := h.rooms.Archive(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": room})
}

// Delete 删除房间，实例随之删除
func (h *RoomHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.rooms.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// Materialize 幂等：房间已有实例时返回 200 和现有实例
func (h *RoomHandler) Materialize(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body MaterializeBody
	if c.Request.ContentLength > 0 && !bindJSON(c, &body) {
		return
	}
	result, err := h.materializer.Materialize(c.Request.Context(), actorFrom(c), service.MaterializeRequest{RoomID: id, TemplateID: body.TemplateID})
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": result.Instance, "created": result.Created})
}

func (h *RoomHandler) GetInstance(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	instance, err := h.materializer.GetInstanceByRoom(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": instance})
}
