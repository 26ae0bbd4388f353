package repository

import (
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/model"
	"gorm.io/gorm"
)

type changeLogRepository struct {
	db *gorm.DB
}

func NewChangeLogRepository(db *gorm.DB) ChangeLogRepository {
	return &changeLogRepository{db: db}
}

func (r *changeLogRepository) Create(log *model.ChangeLog) error {
	return r.db.Create(log).Error
}

func (r *changeLogRepository) CreateBatch(logs []model.ChangeLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.CreateInBatches(&logs, 200).Error
}

// ListByEntity 按实体查询，最新在前
func (r *changeLogRepository) ListByEntity(entityType domain.EntityType, entityID uint, limit, offset int) ([]model.ChangeLog, error) {
	var logs []model.ChangeLog
	err := r.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	return logs, err
}

func (r *changeLogRepository) ListByInstance(instanceID uint, limit, offset int) ([]model.ChangeLog, error) {
	var logs []model.ChangeLog
	err := r.db.Where("instance_id = ?", instanceID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	return logs, err
}

func (r *changeLogRepository) CountByInstance(instanceID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.ChangeLog{}).Where("instance_id = ?", instanceID).Count(&count).Error
	return count, err
}
