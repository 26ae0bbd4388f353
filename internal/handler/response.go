package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/service"
	"k8s.io/klog/v2"
)

const (
	headerActor     = "X-Actor"
	headerOrgID     = "X-Org-ID"
	headerRequestID = "X-Request-ID"

	actorKey = "ffe.actor"
)

// ActorMiddleware 从请求头解析操作人和组织；X-Request-ID 作为变更日志的关联 ID
func ActorMiddleware(defaultOrgID uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := service.Actor{OrganizationID: defaultOrgID, Name: c.GetHeader(headerActor)}
		if raw := c.GetHeader(headerOrgID); raw != "" {
			orgID, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || orgID == 0 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + headerOrgID})
				return
			}
			actor.OrganizationID = uint(orgID)
		}
		if actor.Name == "" {
			actor.Name = "anonymous"
		}
		c.Set(actorKey, actor)

		if requestID := c.GetHeader(headerRequestID); requestID != "" {
			c.Request = c.Request.WithContext(service.WithCorrelationID(c.Request.Context(), requestID))
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) service.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(service.Actor); ok {
			return actor
		}
	}
	return service.Actor{}
}

// parseID 解析路径参数中的 ID，失败时已写入 400
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": domain.KindInvalidArgument})
		return false
	}
	return true
}

func statusOf(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindInvalidTransition, domain.KindCurrencyMismatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError 业务错误按分类映射状态码，其余视为存储故障
func respondError(c *gin.Context, err error) {
	var domainErr *domain.Error
	if !errors.As(err, &domainErr) {
		klog.Errorf("请求处理失败: %s %s, error=%v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(statusOf(domainErr.Kind), gin.H{
		"error":  domainErr.Error(),
		"kind":   domainErr.Kind,
		"entity": domainErr.Entity,
		"id":     domainErr.ID,
	})
}
