package model

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/studiodesk/ffetrack/internal/domain"
)

// Room 房间（外部 CRUD 系统的最小映射）
type Room struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	OrganizationID uint       `json:"organization_id" gorm:"index;not null"`
	ProjectID      uint       `json:"project_id" gorm:"index;default:0"`
	Name           string     `json:"name" gorm:"size:255;not null"`
	Archived       bool       `json:"archived" gorm:"default:false"`
	ArchivedAt     *time.Time `json:"archived_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Room) TableName() string {
	return "rooms"
}

// RoomInstance 房间的 FFE 实例，每个房间唯一
type RoomInstance struct {
	ID              uint              `json:"id" gorm:"primaryKey"`
	RoomID          uint              `json:"room_id" gorm:"uniqueIndex;not null"`
	OrganizationID  uint              `json:"organization_id" gorm:"index;not null"`
	TemplateID      *uint             `json:"template_id" gorm:"index"` // 空白创建时为空
	TemplateVersion int               `json:"template_version" gorm:"default:0"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Sections        []InstanceSection `json:"sections,omitempty" gorm:"foreignKey:InstanceID;constraint:OnDelete:CASCADE;"`
}

func (RoomInstance) TableName() string {
	return "ffe_room_instances"
}

// InstanceSection 实例分区
type InstanceSection struct {
	ID                uint           `json:"id" gorm:"primaryKey"`
	InstanceID        uint           `json:"instance_id" gorm:"index;not null"`
	TemplateSectionID *uint          `json:"template_section_id" gorm:"index"`
	Name              string         `json:"name" gorm:"size:100;not null"`
	SortOrder         int            `json:"sort_order" gorm:"default:0"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	Items             []InstanceItem `json:"items,omitempty" gorm:"foreignKey:SectionID;constraint:OnDelete:CASCADE;"`
}

func (InstanceSection) TableName() string {
	return "ffe_instance_sections"
}

// InstanceItem 实例条目，IsSpecItem 区分需求条目与规格条目
type InstanceItem struct {
	ID             uint              `json:"id" gorm:"primaryKey"`
	InstanceID     uint              `json:"instance_id" gorm:"index;not null"`
	SectionID      uint              `json:"section_id" gorm:"index;not null"`
	TemplateItemID *uint             `json:"template_item_id" gorm:"index"`
	Name           string            `json:"name" gorm:"size:200;not null"`
	Category       string            `json:"category" gorm:"size:100;default:''"`
	State          domain.ItemState  `json:"state" gorm:"size:20;not null;default:PENDING"`
	Visibility     domain.Visibility `json:"visibility" gorm:"size:20;not null;default:HIDDEN"`
	Required       bool              `json:"required" gorm:"default:false"`
	IsSpecItem     bool              `json:"is_spec_item" gorm:"default:false"`
	RequirementID  *uint             `json:"requirement_id" gorm:"index"` // 仅规格条目非空
	OptionNumber   int               `json:"option_number" gorm:"default:0"`
	Chosen         bool              `json:"chosen" gorm:"default:false"`
	Vendor         string            `json:"vendor" gorm:"size:200;default:''"`
	ModelNumber    string            `json:"model_number" gorm:"size:200;default:''"`
	Quantity       decimal.Decimal   `json:"quantity" gorm:"type:decimal(15,4);default:1"`
	UnitCost       decimal.Decimal   `json:"unit_cost" gorm:"type:decimal(15,4);default:0"`
	MarkupPercent  decimal.Decimal   `json:"markup_percent" gorm:"type:decimal(9,4);default:0"`
	Currency       string            `json:"currency" gorm:"size:3;not null"`
	LeadTimeDays   int               `json:"lead_time_days" gorm:"default:0"`
	Notes          string            `json:"notes" gorm:"type:text"`
	SortOrder      int               `json:"sort_order" gorm:"default:0"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Components     []ItemComponent   `json:"components,omitempty" gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE;"`
}

func (InstanceItem) TableName() string {
	return "ffe_instance_items"
}

// IsRequirement 是否为需求条目
func (i *InstanceItem) IsRequirement() bool {
	return !i.IsSpecItem
}

// ItemComponent 规格条目的组成部件
type ItemComponent struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	ItemID    uint            `json:"item_id" gorm:"index;not null"`
	Name      string          `json:"name" gorm:"size:200;not null"`
	Model     string          `json:"model" gorm:"size:200;default:''"`
	UnitPrice decimal.Decimal `json:"unit_price" gorm:"type:decimal(15,4);default:0"`
	Quantity  decimal.Decimal `json:"quantity" gorm:"type:decimal(15,4);default:1"`
	Currency  string          `json:"currency" gorm:"size:3;default:''"` // 为空时沿用所属条目币种
	SortOrder int             `json:"sort_order" gorm:"default:0"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (ItemComponent) TableName() string {
	return "ffe_item_components"
}
