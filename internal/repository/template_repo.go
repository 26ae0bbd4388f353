package repository

import (
	"github.com/studiodesk/ffetrack/internal/model"
	"gorm.io/gorm"
)

// templateRepository 实现
type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository 创建 Repository 实例
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

// ListByOrganization 获取组织下的模板列表（不含分区和条目）
func (r *templateRepository) ListByOrganization(orgID uint) ([]model.FFETemplate, error) {
	var templates []model.FFETemplate
	result := r.db.Where("organization_id = ?", orgID).
		Order("sort_order ASC, id ASC").
		Find(&templates)
	return templates, result.Error
}

// GetByID 根据ID获取模板详情（含分区和条目）
func (r *templateRepository) GetByID(id uint) (*model.FFETemplate, error) {
	var template model.FFETemplate
	result := r.db.Preload("Sections", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC, id ASC")
	}).Preload("Sections.Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC, id ASC")
	}).First(&template, id)
	if result.Error != nil {
		return nil, notFound(result.Error)
	}
	return &template, nil
}

// GetBasic 只获取模板本身
func (r *templateRepository) GetBasic(id uint) (*model.FFETemplate, error) {
	var template model.FFETemplate
	if err := r.db.First(&template, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &template, nil
}

// GetByName 根据组织和名称获取模板
func (r *templateRepository) GetByName(orgID uint, name string) (*model.FFETemplate, error) {
	var template model.FFETemplate
	result := r.db.Where("organization_id = ? AND name = ?", orgID, name).First(&template)
	if result.Error != nil {
		return nil, notFound(result.Error)
	}
	return &template, nil
}

// Create 创建模板（含嵌套的分区和条目）
func (r *templateRepository) Create(template *model.FFETemplate) error {
	return r.db.Create(template).Error
}

// Update 更新模板基本信息
func (r *templateRepository) Update(template *model.FFETemplate) error {
	return r.db.Omit("Sections").Save(template).Error
}

// BumpVersion 模板内容变化后版本号加一
func (r *templateRepository) BumpVersion(id uint) error {
	return r.db.Model(&model.FFETemplate{}).
		Where("id = ?", id).
		Update("version", gorm.Expr("version + 1")).Error
}

// Delete 删除模板（级联删除分区和条目）
func (r *templateRepository) Delete(id uint) error {
	sectionIDs := r.db.Model(&model.TemplateSection{}).Select("id").Where("template_id = ?", id)
	if err := r.db.Where("section_id IN (?)", sectionIDs).Delete(&model.TemplateItem{}).Error; err != nil {
		return err
	}
	if err := r.db.Where("template_id = ?", id).Delete(&model.TemplateSection{}).Error; err != nil {
		return err
	}
	return r.db.Delete(&model.FFETemplate{}, id).Error
}
