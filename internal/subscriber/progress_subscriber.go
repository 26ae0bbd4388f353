package subscriber

import (
	"context"
	"fmt"

	"github.com/studiodesk/ffetrack/internal/eventbus"
	"k8s.io/klog/v2"
)

// progressInvalidator 执行进度缓存的失效操作
type progressInvalidator interface {
	Invalidate(ctx context.Context, instanceID uint) error
}

// ProgressEventSubscriber 条目或实例树变化后清掉该实例的进度缓存
type ProgressEventSubscriber struct {
	cache progressInvalidator
}

func NewProgressEventSubscriber(cache progressInvalidator) *ProgressEventSubscriber {
	return &ProgressEventSubscriber{cache: cache}
}

func (s *ProgressEventSubscriber) Register(bus *eventbus.ChangeEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.ChangeEventItem, s.handleChange)
	bus.Subscribe(eventbus.ChangeEventInstance, s.handleChange)
}

func (s *ProgressEventSubscriber) handleChange(ctx context.Context, event eventbus.ChangeEvent) error {
	if event.InstanceID == 0 {
		return fmt.Errorf("实例ID为空: op=%s", event.Operation)
	}
	if err := s.cache.Invalidate(ctx, event.InstanceID); err != nil {
		klog.Errorf("进度缓存失效失败: instanceID=%d, error=%v", event.InstanceID, err)
		return err
	}
	klog.V(6).Infof("进度缓存已失效: type=%s, op=%s, instanceID=%d", event.Type, event.Operation, event.InstanceID)
	return nil
}
