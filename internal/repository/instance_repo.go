package repository

import (
	"github.com/studiodesk/ffetrack/internal/model"
	"gorm.io/gorm"
)

type instanceRepository struct {
	db *gorm.DB
}

func NewInstanceRepository(db *gorm.DB) InstanceRepository {
	return &instanceRepository{db: db}
}

// Create 创建实例，嵌套的分区和条目一并写入
func (r *instanceRepository) Create(instance *model.RoomInstance) error {
	return r.db.Create(instance).Error
}

// GetTree 获取实例完整树（分区 → 条目 → 部件），均按排序序号
func (r *instanceRepository) GetTree(id uint) (*model.RoomInstance, error) {
	var instance model.RoomInstance
	result := r.db.Preload("Sections", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC, id ASC")
	}).Preload("Sections.Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC, id ASC")
	}).Preload("Sections.Items.Components", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC, id ASC")
	}).First(&instance, id)
	if result.Error != nil {
		return nil, notFound(result.Error)
	}
	return &instance, nil
}

func (r *instanceRepository) GetBasic(id uint) (*model.RoomInstance, error) {
	var instance model.RoomInstance
	if err := r.db.First(&instance, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &instance, nil
}

func (r *instanceRepository) GetBasicByRoomID(roomID uint) (*model.RoomInstance, error) {
	var instance model.RoomInstance
	if err := r.db.Where("room_id = ?", roomID).First(&instance).Error; err != nil {
		return nil, notFound(err)
	}
	return &instance, nil
}

// CountByTemplateID 统计引用该模板的实例数
func (r *instanceRepository) CountByTemplateID(templateID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.RoomInstance{}).Where("template_id = ?", templateID).Count(&count).Error
	return count, err
}

// SetTemplateVersion 同步后记录实例对齐的模板版本
func (r *instanceRepository) SetTemplateVersion(id uint, version int) error {
	return r.db.Model(&model.RoomInstance{}).
		Where("id = ?", id).
		Update("template_version", version).Error
}

// Delete 删除实例（级联删除分区、条目、部件）
func (r *instanceRepository) Delete(id uint) error {
	itemIDs := r.db.Model(&model.InstanceItem{}).Select("id").Where("instance_id = ?", id)
	if err := r.db.Where("item_id IN (?)", itemIDs).Delete(&model.ItemComponent{}).Error; err != nil {
		return err
	}
	if err := r.db.Where("instance_id = ?", id).Delete(&model.InstanceItem{}).Error; err != nil {
		return err
	}
	if err := r.db.Where("instance_id = ?", id).Delete(&model.InstanceSection{}).Error; err != nil {
		return err
	}
	return r.db.Delete(&model.RoomInstance{}, id).Error
}

type sectionRepository struct {
	db *gorm.DB
}

func NewSectionRepository(db *gorm.DB) SectionRepository {
	return &sectionRepository{db: db}
}

func (r *sectionRepository) Create(section *model.InstanceSection) error {
	return r.db.Create(section).Error
}

func (r *sectionRepository) Get(id uint) (*model.InstanceSection, error) {
	var section model.InstanceSection
	if err := r.db.First(&section, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &section, nil
}

// GetByInstanceID 获取实例下的分区（不含条目）
func (r *sectionRepository) GetByInstanceID(instanceID uint) ([]model.InstanceSection, error) {
	var sections []model.InstanceSection
	err := r.db.Where("instance_id = ?", instanceID).
		Order("sort_order ASC, id ASC").
		Find(&sections).Error
	return sections, err
}

func (r *sectionRepository) MaxSortOrder(instanceID uint) (int, error) {
	var max int
	err := r.db.Model(&model.InstanceSection{}).
		Where("instance_id = ?", instanceID).
		Select("COALESCE(MAX(sort_order), 0)").
		Scan(&max).Error
	return max, err
}

// Delete 删除分区（级联删除条目和部件）
func (r *sectionRepository) Delete(id uint) error {
	itemIDs := r.db.Model(&model.InstanceItem{}).Select("id").Where("section_id = ?", id)
	if err := r.db.Where("item_id IN (?)", itemIDs).Delete(&model.ItemComponent{}).Error; err != nil {
		return err
	}
	if err := r.db.Where("section_id = ?", id).Delete(&model.InstanceItem{}).Error; err != nil {
		return err
	}
	return r.db.Delete(&model.InstanceSection{}, id).Error
}
