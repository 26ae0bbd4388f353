package model

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/studiodesk/ffetrack/internal/domain"
)

// FFETemplate FFE 模板（按组织隔离）
type FFETemplate struct {
	ID             uint              `json:"id" gorm:"primaryKey"`
	OrganizationID uint              `json:"organization_id" gorm:"index;not null;default:0"`
	Name           string            `json:"name" gorm:"size:100;not null;default:''"` // 模板名称，如 "Master Bath v2"
	Description    string            `json:"description" gorm:"size:500"`
	Version        int               `json:"version" gorm:"not null;default:1"` // 每次编辑递增
	IsSystem       bool              `json:"is_system" gorm:"default:false"`    // 是否系统预置
	SortOrder      int               `json:"sort_order" gorm:"default:0"`
	CreatedAt      time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
	Sections       []TemplateSection `json:"sections,omitempty" gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE;"`
}

// TableName 指定表名
func (FFETemplate) TableName() string {
	return "ffe_templates"
}

// TemplateSection 模板分区，如 "Plumbing"
type TemplateSection struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	TemplateID uint           `json:"template_id" gorm:"index;not null;default:0"`
	Name       string         `json:"name" gorm:"size:100;not null;default:''"`
	SortOrder  int            `json:"sort_order" gorm:"default:0"`
	CreatedAt  time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	Items      []TemplateItem `json:"items,omitempty" gorm:"foreignKey:SectionID;constraint:OnDelete:CASCADE;"`
}

// TableName 指定表名
func (TemplateSection) TableName() string {
	return "ffe_template_sections"
}

// TemplateItem 模板条目
type TemplateItem struct {
	ID           uint             `json:"id" gorm:"primaryKey"`
	SectionID    uint             `json:"section_id" gorm:"index;not null;default:0"`
	Name         string           `json:"name" gorm:"size:200;not null;default:''"`
	Category     string           `json:"category" gorm:"size:100;default:''"`
	DefaultState domain.ItemState `json:"default_state" gorm:"size:20;not null;default:PENDING"`
	Required     bool             `json:"required" gorm:"default:false"`
	CostHint     decimal.Decimal  `json:"cost_hint" gorm:"type:decimal(15,4);default:0"`
	LeadTimeDays int              `json:"lead_time_days" gorm:"default:0"`
	SortOrder    int              `json:"sort_order" gorm:"default:0"`
	CreatedAt    time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (TemplateItem) TableName() string {
	return "ffe_template_items"
}
