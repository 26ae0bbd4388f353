package service

import (
	"context"
	"fmt"

	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/model"
	"github.com/studiodesk/ffetrack/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ChangeLogPage 分页结果，最新在前
type ChangeLogPage struct {
	Items    []model.ChangeLog `json:"items"`
	Total    int64             `json:"total,omitempty"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ChangeLogService 变更日志只读查询；日志仅用于展示和恢复，不参与业务判断
type ChangeLogService interface {
	ListByEntity(ctx context.Context, actor Actor, entity domain.EntityType, entityID uint, page, pageSize int) (*ChangeLogPage, error)
	ListByInstance(ctx context.Context, actor Actor, instanceID uint, page, pageSize int) (*ChangeLogPage, error)
}

type changeLogService struct {
	store repository.Store
}

func NewChangeLogService(store repository.Store) ChangeLogService {
	return &changeLogService{store: store}
}

// ListByEntity 查询单个实体的历史；实例内实体校验组织归属
func (s *changeLogService) ListByEntity(ctx context.Context, actor Actor, entity domain.EntityType, entityID uint, page, pageSize int) (*ChangeLogPage, error) {
	repos := s.store.Repos(ctx)
	if err := s.authorize(repos, actor, entity, entityID); err != nil {
		return nil, err
	}
	page, pageSize = normalizePage(page, pageSize)
	logs, err := repos.ChangeLogs.ListByEntity(entity, entityID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list change logs: %w", err)
	}
	return &ChangeLogPage{Items: nonNilLogs(logs), Page: page, PageSize: pageSize}, nil
}

// ListByInstance 查询实例下的所有变更（含已删除条目的记录）
func (s *changeLogService) ListByInstance(ctx context.Context, actor Actor, instanceID uint, page, pageSize int) (*ChangeLogPage, error) {
	repos := s.store.Repos(ctx)
	if _, err := ownedInstance(repos, actor, instanceID); err != nil {
		return nil, err
	}
	page, pageSize = normalizePage(page, pageSize)
	logs, err := repos.ChangeLogs.ListByInstance(instanceID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list change logs: %w", err)
	}
	total, err := repos.ChangeLogs.CountByInstance(instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to count change logs: %w", err)
	}
	return &ChangeLogPage{Items: nonNilLogs(logs), Total: total, Page: page, PageSize: pageSize}, nil
}

// authorize 仍存在的实体校验组织归属；已删除实体的历史按实体 ID 直接返回
func (s *changeLogService) authorize(repos *repository.Repos, actor Actor, entity domain.EntityType, id uint) error {
	var err error
	switch entity {
	case domain.EntityTemplate:
		_, err = ownedTemplate(repos, actor, id)
	case domain.EntityRoom:
		_, err = ownedRoom(repos, actor, id)
	case domain.EntityInstance:
		_, err = ownedInstance(repos, actor, id)
	case domain.EntityItem:
		var item *model.InstanceItem
		if item, err = repos.Items.Get(id); err == nil {
			_, err = ownedInstance(repos, actor, item.InstanceID)
		} else {
			err = lookupError(err, entity, id)
		}
	case domain.EntitySection:
		var section *model.InstanceSection
		if section, err = repos.Sections.Get(id); err == nil {
			_, err = ownedInstance(repos, actor, section.InstanceID)
		} else {
			err = lookupError(err, entity, id)
		}
	case domain.EntityTemplateSection, domain.EntityTemplateItem, domain.EntityComponent:
		return nil
	default:
		return domain.InvalidArgument(entity, id, fmt.Sprintf("unknown entity type %q", entity))
	}
	if domain.KindOf(err) == domain.KindNotFound {
		return nil
	}
	return err
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func nonNilLogs(logs []model.ChangeLog) []model.ChangeLog {
	if logs == nil {
		return []model.ChangeLog{}
	}
	return logs
}
