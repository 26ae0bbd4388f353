package repository

import (
	"time"

	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/model"
	"gorm.io/gorm"
)

type itemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) Create(item *model.InstanceItem) error {
	return r.db.Create(item).Error
}

// Get 获取条目（含部件）
func (r *itemRepository) Get(id uint) (*model.InstanceItem, error) {
	var item model.InstanceItem
	err := r.db.Preload("Components", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC, id ASC")
	}).First(&item, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// GetForUpdate 加行锁读取条目，只能在事务内使用
func (r *itemRepository) GetForUpdate(id uint) (*model.InstanceItem, error) {
	var item model.InstanceItem
	if err := forUpdate(r.db).First(&item, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (r *itemRepository) ListByInstance(instanceID uint) ([]model.InstanceItem, error) {
	var items []model.InstanceItem
	err := r.db.Where("instance_id = ?", instanceID).
		Order("section_id ASC, sort_order ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (r *itemRepository) ListBySection(sectionID uint) ([]model.InstanceItem, error) {
	var items []model.InstanceItem
	err := r.db.Where("section_id = ?", sectionID).
		Order("sort_order ASC, id ASC").
		Find(&items).Error
	return items, err
}

// ListVisibleByInstance 执行视图使用：只返回可见条目
func (r *itemRepository) ListVisibleByInstance(instanceID uint) ([]model.InstanceItem, error) {
	var items []model.InstanceItem
	err := r.db.Where("instance_id = ? AND visibility = ?", instanceID, domain.VisibilityVisible).
		Order("section_id ASC, sort_order ASC, id ASC").
		Find(&items).Error
	return items, err
}

// ListByRequirement 获取需求下挂接的规格条目，按选项号排序
func (r *itemRepository) ListByRequirement(requirementID uint) ([]model.InstanceItem, error) {
	var items []model.InstanceItem
	err := r.db.Preload("Components", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC, id ASC")
	}).Where("requirement_id = ?", requirementID).
		Order("option_number ASC, id ASC").
		Find(&items).Error
	return items, err
}

// ListByRequirementForUpdate 锁定整个兄弟集合
func (r *itemRepository) ListByRequirementForUpdate(requirementID uint) ([]model.InstanceItem, error) {
	var items []model.InstanceItem
	err := forUpdate(r.db).Where("requirement_id = ?", requirementID).
		Order("option_number ASC, id ASC").
		Find(&items).Error
	return items, err
}

// ListChosenSpecs 获取实例下所有被选中的规格条目（含部件）
func (r *itemRepository) ListChosenSpecs(instanceID uint) ([]model.InstanceItem, error) {
	var items []model.InstanceItem
	err := r.db.Preload("Components", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC, id ASC")
	}).Where("instance_id = ? AND is_spec_item = ? AND chosen = ?", instanceID, true, true).
		Order("section_id ASC, sort_order ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (r *itemRepository) MaxSortOrder(sectionID uint) (int, error) {
	var max int
	err := r.db.Model(&model.InstanceItem{}).
		Where("section_id = ?", sectionID).
		Select("COALESCE(MAX(sort_order), 0)").
		Scan(&max).Error
	return max, err
}

func (r *itemRepository) Save(item *model.InstanceItem) error {
	return r.db.Omit("Components").Save(item).Error
}

func (r *itemRepository) UpdateFields(id uint, fields map[string]interface{}) error {
	return r.db.Model(&model.InstanceItem{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// SetVisibility 单条 UPDATE 修改一批条目的可见性
func (r *itemRepository) SetVisibility(ids []uint, visibility domain.Visibility) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&model.InstanceItem{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"visibility": visibility,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// UnlinkByRequirements 解除指向这些需求的全部规格挂接
func (r *itemRepository) UnlinkByRequirements(requirementIDs []uint) (int64, error) {
	if len(requirementIDs) == 0 {
		return 0, nil
	}
	result := r.db.Model(&model.InstanceItem{}).
		Where("requirement_id IN ?", requirementIDs).
		Updates(map[string]interface{}{
			"requirement_id": nil,
			"option_number":  0,
			"chosen":         false,
			"updated_at":     time.Now(),
		})
	return result.RowsAffected, result.Error
}

// Delete 删除条目（级联删除部件）
func (r *itemRepository) Delete(id uint) error {
	if err := r.db.Where("item_id = ?", id).Delete(&model.ItemComponent{}).Error; err != nil {
		return err
	}
	return r.db.Delete(&model.InstanceItem{}, id).Error
}
