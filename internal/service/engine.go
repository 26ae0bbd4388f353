package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/eventbus"
	"github.com/studiodesk/ffetrack/internal/model"
	"github.com/studiodesk/ffetrack/internal/pkg/metrics"
	"github.com/studiodesk/ffetrack/internal/repository"
	"gorm.io/datatypes"
	"k8s.io/klog/v2"
)

type correlationKey struct{}

// WithCorrelationID 让同一次请求写入的变更日志共享一个关联 ID
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// newCorrelation 多条日志的操作在开始前固定关联 ID
func newCorrelation(ctx context.Context) context.Context {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return ctx
	}
	return WithCorrelationID(ctx, uuid.NewString())
}

// engine FFE 各服务共享的存储、事件和指标
type engine struct {
	store   repository.Store
	bus     *eventbus.ChangeEventBus
	metrics *metrics.Metrics
}

func newEngine(store repository.Store, bus *eventbus.ChangeEventBus, m *metrics.Metrics) engine {
	return engine{store: store, bus: bus, metrics: m}
}

// finish 记录指标；成功时在事务提交后发布事件，事件失败不影响结果
func (e *engine) finish(ctx context.Context, operation string, err error, event *eventbus.ChangeEvent) error {
	if err != nil {
		kind := string(domain.KindOf(err))
		if kind == "" {
			kind = "error"
		}
		e.metrics.ObserveMutation(operation, kind)
		klog.V(6).Infof("FFE 变更被拒绝: op=%s, error=%v", operation, err)
		return err
	}
	e.metrics.ObserveMutation(operation, "ok")
	if event != nil && e.bus != nil {
		event.Operation = operation
		if pubErr := e.bus.Publish(ctx, *event); pubErr != nil {
			klog.Warningf("FFE 变更事件处理失败: op=%s, instanceID=%d, error=%v", operation, event.InstanceID, pubErr)
		}
	}
	return nil
}

// changeEntry 构造一条变更日志
func changeEntry(ctx context.Context, entity domain.EntityType, entityID, instanceID uint, action domain.ChangeAction, oldValue, newValue interface{}, actor string) model.ChangeLog {
	return model.ChangeLog{
		EntityType:    entity,
		EntityID:      entityID,
		InstanceID:    instanceID,
		Action:        action,
		OldValue:      toJSON(oldValue),
		NewValue:      toJSON(newValue),
		Actor:         actor,
		CorrelationID: correlationID(ctx),
	}
}

func toJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		klog.Warningf("变更日志序列化失败: %v", err)
		return nil
	}
	return datatypes.JSON(data)
}

// lookupError 把 repository.ErrNotFound 转为带实体的 NotFound
func lookupError(err error, entity domain.EntityType, id uint) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NotFound(entity, id)
	}
	return fmt.Errorf("failed to get %s %d: %w", entity, id, err)
}
