package repository

import (
	"github.com/studiodesk/ffetrack/internal/model"
	"gorm.io/gorm"
)

type componentRepository struct {
	db *gorm.DB
}

func NewComponentRepository(db *gorm.DB) ComponentRepository {
	return &componentRepository{db: db}
}

func (r *componentRepository) Create(component *model.ItemComponent) error {
	return r.db.Create(component).Error
}

func (r *componentRepository) Get(id uint) (*model.ItemComponent, error) {
	var component model.ItemComponent
	if err := r.db.First(&component, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &component, nil
}

func (r *componentRepository) ListByItems(itemIDs []uint) ([]model.ItemComponent, error) {
	var components []model.ItemComponent
	if len(itemIDs) == 0 {
		return components, nil
	}
	err := r.db.Where("item_id IN ?", itemIDs).
		Order("item_id ASC, sort_order ASC, id ASC").
		Find(&components).Error
	return components, err
}

func (r *componentRepository) Save(component *model.ItemComponent) error {
	return r.db.Save(component).Error
}

func (r *componentRepository) Delete(id uint) error {
	return r.db.Delete(&model.ItemComponent{}, id).Error
}
