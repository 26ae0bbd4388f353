package subscriber

import (
	"context"

	"github.com/studiodesk/ffetrack/internal/eventbus"
	"github.com/studiodesk/ffetrack/internal/pkg/metrics"
	"k8s.io/klog/v2"
)

// MetricsEventSubscriber 统计已提交的变更事件
type MetricsEventSubscriber struct {
	metrics *metrics.Metrics
}

func NewMetricsEventSubscriber(m *metrics.Metrics) *MetricsEventSubscriber {
	return &MetricsEventSubscriber{metrics: m}
}

func (s *MetricsEventSubscriber) Register(bus *eventbus.ChangeEventBus) {
	if bus == nil || s.metrics == nil {
		return
	}
	bus.Subscribe(eventbus.ChangeEventItem, s.handleChange)
	bus.Subscribe(eventbus.ChangeEventInstance, s.handleChange)
	bus.Subscribe(eventbus.ChangeEventTemplate, s.handleChange)
}

func (s *MetricsEventSubscriber) handleChange(ctx context.Context, event eventbus.ChangeEvent) error {
	s.metrics.ChangeLogWrites.Inc()
	klog.V(8).Infof("变更事件: type=%s, op=%s, actor=%s, entities=%v", event.Type, event.Operation, event.Actor, event.EntityIDs)
	return nil
}
