package eventbus

import "github.com/studiodesk/ffetrack/internal/domain"

type ChangeEventType string

// 事务提交之后才发布
const (
	ChangeEventItem     ChangeEventType = "ItemChanged"     // 单条目或一组条目变更
	ChangeEventInstance ChangeEventType = "InstanceChanged" // 实例树结构变更（物化、同步、删除分区）
	ChangeEventTemplate ChangeEventType = "TemplateChanged"
)

type ChangeEvent struct {
	Type       ChangeEventType
	Operation  string
	InstanceID uint
	EntityType domain.EntityType
	EntityIDs  []uint
	Actor      string
}

func (e ChangeEvent) EventType() ChangeEventType {
	return e.Type
}

type ChangeEventHandler = Handler[ChangeEvent]
type ChangeEventBus = Bus[ChangeEventType, ChangeEvent]

func NewChangeEventBus() *ChangeEventBus {
	return NewBus[ChangeEventType, ChangeEvent]()
}
