package service

import (
	"github.com/shopspring/decimal"
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/model"
	"gorm.io/gorm"
)

// InitDefaultTemplates 为默认组织初始化预置模板
func InitDefaultTemplates(db *gorm.DB, orgID uint) error {
	// 检查是否已存在预置模板
	var count int64
	db.Model(&model.FFETemplate{}).Where("organization_id = ? AND is_system = ?", orgID, true).Count(&count)
	if count > 0 {
		// 已存在，跳过初始化
		return nil
	}

	// 使用事务创建预置模板
	return db.Transaction(func(tx *gorm.DB) error {
		// 1. 主卫模板
		masterBath := &model.FFETemplate{
			OrganizationID: orgID,
			Name:           "Master Bath v2",
			Description:    "Primary bathroom fixtures, lighting and accessories",
			Version:        1,
			IsSystem:       true,
			SortOrder:      1,
			Sections: []model.TemplateSection{
				{
					Name:      "Plumbing",
					SortOrder: 1,
					Items: []model.TemplateItem{
						{Name: "Vanity Faucet", Category: "Plumbing Fixtures", DefaultState: domain.StatePending, Required: true, CostHint: decimal.NewFromInt(450), LeadTimeDays: 21, SortOrder: 1},
						{Name: "Shower System", Category: "Plumbing Fixtures", DefaultState: domain.StatePending, Required: true, CostHint: decimal.NewFromInt(1200), LeadTimeDays: 28, SortOrder: 2},
						{Name: "Tub Filler", Category: "Plumbing Fixtures", DefaultState: domain.StatePending, CostHint: decimal.NewFromInt(900), LeadTimeDays: 28, SortOrder: 3},
						{Name: "Toilet", Category: "Plumbing Fixtures", DefaultState: domain.StatePending, Required: true, CostHint: decimal.NewFromInt(650), LeadTimeDays: 14, SortOrder: 4},
					},
				},
				{
					Name:      "Lighting",
					SortOrder: 2,
					Items: []model.TemplateItem{
						{Name: "Vanity Sconce", Category: "Lighting", DefaultState: domain.StatePending, Required: true, CostHint: decimal.NewFromInt(320), LeadTimeDays: 21, SortOrder: 1},
						{Name: "Ceiling Fixture", Category: "Lighting", DefaultState: domain.StatePending, CostHint: decimal.NewFromInt(280), LeadTimeDays: 14, SortOrder: 2},
					},
				},
				{
					Name:      "Accessories",
					SortOrder: 3,
					Items: []model.TemplateItem{
						{Name: "Towel Bar", Category: "Hardware", DefaultState: domain.StatePending, CostHint: decimal.NewFromInt(90), LeadTimeDays: 7, SortOrder: 1},
						{Name: "Mirror", Category: "Decor", DefaultState: domain.StatePending, Required: true, CostHint: decimal.NewFromInt(400), LeadTimeDays: 21, SortOrder: 2},
					},
				},
			},
		}

		if err := tx.Create(masterBath).Error; err != nil {
			return err
		}

		// 2. 客厅模板
		livingRoom := &model.FFETemplate{
			OrganizationID: orgID,
			Name:           "Living Room",
			Description:    "Seating, tables, lighting and window treatments",
			Version:        1,
			IsSystem:       true,
			SortOrder:      2,
			Sections: []model.TemplateSection{
				{
					Name:      "Seating",
					SortOrder: 1,
					Items: []model.TemplateItem{
						{Name: "Sofa", Category: "Furniture", DefaultState: domain.StatePending, Required: true, CostHint: decimal.NewFromInt(3500), LeadTimeDays: 56, SortOrder: 1},
						{Name: "Lounge Chair", Category: "Furniture", DefaultState: domain.StatePending, CostHint: decimal.NewFromInt(1400), LeadTimeDays: 42, SortOrder: 2},
					},
				},
				{
					Name:      "Tables",
					SortOrder: 2,
					Items: []model.TemplateItem{
						{Name: "Coffee Table", Category: "Furniture", DefaultState: domain.StatePending, Required: true, CostHint: decimal.NewFromInt(1100), LeadTimeDays: 35, SortOrder: 1},
						{Name: "Side Table", Category: "Furniture", DefaultState: domain.StatePending, CostHint: decimal.NewFromInt(450), LeadTimeDays: 28, SortOrder: 2},
					},
				},
				{
					Name:      "Lighting",
					SortOrder: 3,
					Items: []model.TemplateItem{
						{Name: "Floor Lamp", Category: "Lighting", DefaultState: domain.StatePending, CostHint: decimal.NewFromInt(600), LeadTimeDays: 21, SortOrder: 1},
					},
				},
				{
					Name:      "Window Treatments",
					SortOrder: 4,
					Items: []model.TemplateItem{
						{Name: "Drapery", Category: "Soft Goods", DefaultState: domain.StatePending, CostHint: decimal.NewFromInt(2200), LeadTimeDays: 42, SortOrder: 1},
					},
				},
			},
		}

		return tx.Create(livingRoom).Error
	})
}
