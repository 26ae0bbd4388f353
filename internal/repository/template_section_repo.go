package repository

import (
	"github.com/studiodesk/ffetrack/internal/model"
	"gorm.io/gorm"
)

type templateSectionRepository struct {
	db *gorm.DB
}

// NewTemplateSectionRepository 创建 Repository 实例
func NewTemplateSectionRepository(db *gorm.DB) TemplateSectionRepository {
	return &templateSectionRepository{db: db}
}

// GetByID 根据ID获取分区（含条目）
func (r *templateSectionRepository) GetByID(id uint) (*model.TemplateSection, error) {
	var section model.TemplateSection
	result := r.db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC, id ASC")
	}).First(&section, id)
	if result.Error != nil {
		return nil, notFound(result.Error)
	}
	return &section, nil
}

// GetByTemplateID 获取模板下的所有分区
func (r *templateSectionRepository) GetByTemplateID(templateID uint) ([]model.TemplateSection, error) {
	var sections []model.TemplateSection
	result := r.db.Where("template_id = ?", templateID).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, id ASC")
		}).
		Order("sort_order ASC, id ASC").
		Find(&sections)
	return sections, result.Error
}

func (r *templateSectionRepository) Create(section *model.TemplateSection) error {
	return r.db.Create(section).Error
}

func (r *templateSectionRepository) Update(section *model.TemplateSection) error {
	return r.db.Omit("Items").Save(section).Error
}

// Delete 删除分区（级联删除条目）
func (r *templateSectionRepository) Delete(id uint) error {
	if err := r.db.Where("section_id = ?", id).Delete(&model.TemplateItem{}).Error; err != nil {
		return err
	}
	return r.db.Delete(&model.TemplateSection{}, id).Error
}

type templateItemRepository struct {
	db *gorm.DB
}

// NewTemplateItemRepository 创建 Repository 实例
func NewTemplateItemRepository(db *gorm.DB) TemplateItemRepository {
	return &templateItemRepository{db: db}
}

func (r *templateItemRepository) GetByID(id uint) (*model.TemplateItem, error) {
	var item model.TemplateItem
	if err := r.db.First(&item, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// GetBySectionID 获取分区下的所有条目
func (r *templateItemRepository) GetBySectionID(sectionID uint) ([]model.TemplateItem, error) {
	var items []model.TemplateItem
	result := r.db.Where("section_id = ?", sectionID).
		Order("sort_order ASC, id ASC").
		Find(&items)
	return items, result.Error
}

func (r *templateItemRepository) Create(item *model.TemplateItem) error {
	return r.db.Create(item).Error
}

func (r *templateItemRepository) Update(item *model.TemplateItem) error {
	return r.db.Save(item).Error
}

func (r *templateItemRepository) Delete(id uint) error {
	return r.db.Delete(&model.TemplateItem{}, id).Error
}
