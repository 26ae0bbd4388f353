package model

import (
	"time"

	"github.com/studiodesk/ffetrack/internal/domain"
	"gorm.io/datatypes"
)

// ChangeLog 只追加的变更日志，仅用于展示与恢复
type ChangeLog struct {
	ID            uint                `json:"id" gorm:"primaryKey"`
	EntityType    domain.EntityType   `json:"entity_type" gorm:"size:32;not null;index:idx_change_logs_entity,priority:1"`
	EntityID      uint                `json:"entity_id" gorm:"not null;index:idx_change_logs_entity,priority:2"`
	InstanceID    uint                `json:"instance_id" gorm:"index;default:0"`
	Action        domain.ChangeAction `json:"action" gorm:"size:32;not null"`
	OldValue      datatypes.JSON      `json:"old_value"`
	NewValue      datatypes.JSON      `json:"new_value"`
	Actor         string              `json:"actor" gorm:"size:255;not null;default:''"`
	CorrelationID string              `json:"correlation_id" gorm:"size:64;index"` // 同一次调用产生的多条记录共享
	CreatedAt     time.Time           `json:"created_at" gorm:"index:idx_change_logs_entity,priority:3"`
}

func (ChangeLog) TableName() string {
	return "ffe_change_logs"
}
