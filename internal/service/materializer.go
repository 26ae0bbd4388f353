package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/eventbus"
	"github.com/studiodesk/ffetrack/internal/model"
	"github.com/studiodesk/ffetrack/internal/pkg/metrics"
	"github.com/studiodesk/ffetrack/internal/repository"
	"k8s.io/klog/v2"
)

// MaterializeRequest 物化请求，TemplateID 为空时创建空白实例
type MaterializeRequest struct {
	RoomID     uint  `json:"room_id" binding:"required"`
	TemplateID *uint `json:"template_id"`
}

// MaterializeResult Created 为 false 表示房间已有实例，本次调用没有任何写入
type MaterializeResult struct {
	Instance *model.RoomInstance `json:"instance"`
	Created  bool                `json:"created"`
}

// ResyncResult 模板同步新增的分区和条目
type ResyncResult struct {
	InstanceID      uint `json:"instance_id"`
	TemplateVersion int  `json:"template_version"`
	AddedSections   int  `json:"added_sections"`
	AddedItems      int  `json:"added_items"`
}

// MaterializerService 把模板复制为房间的 FFE 实例，之后两者互不影响
type MaterializerService interface {
	Materialize(ctx context.Context, actor Actor, req MaterializeRequest) (*MaterializeResult, error)
	Resync(ctx context.Context, actor Actor, instanceID uint) (*ResyncResult, error)
	GetInstance(ctx context.Context, actor Actor, instanceID uint) (*model.RoomInstance, error)
	GetInstanceByRoom(ctx context.Context, actor Actor, roomID uint) (*model.RoomInstance, error)
}

type materializerService struct {
	engine
	defaultCurrency string
}

func NewMaterializerService(store repository.Store, bus *eventbus.ChangeEventBus, m *metrics.Metrics, defaultCurrency string) MaterializerService {
	return &materializerService{engine: newEngine(store, bus, m), defaultCurrency: canonicalCurrency(defaultCurrency)}
}

// Materialize 幂等：房间已有实例时原样返回
func (s *materializerService) Materialize(ctx context.Context, actor Actor, req MaterializeRequest) (*MaterializeResult, error) {
	var result *MaterializeResult
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		room, err := ownedRoom(tx, actor, req.RoomID)
		if err != nil {
			return err
		}
		if room.Archived {
			return domain.Conflict(domain.EntityRoom, room.ID, "room is archived")
		}

		existing, err := tx.Instances.GetBasicByRoomID(room.ID)
		if err == nil {
			tree, err := tx.Instances.GetTree(existing.ID)
			if err != nil {
				return lookupError(err, domain.EntityInstance, existing.ID)
			}
			result = &MaterializeResult{Instance: tree}
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to get room instance: %w", err)
		}

		instance, err := s.createInstance(ctx, tx, actor, room, req.TemplateID)
		if err != nil {
			return err
		}
		result = &MaterializeResult{Instance: instance, Created: true}
		return nil
	})
	if err != nil {
		// 并发物化时唯一索引会拒绝第二次插入，此时返回胜出的实例
		if raced := s.racedInstance(ctx, actor, req.RoomID, err); raced != nil {
			return &MaterializeResult{Instance: raced}, s.finish(ctx, "materialize", nil, nil)
		}
		return nil, s.finish(ctx, "materialize", err, nil)
	}
	if !result.Created {
		return result, s.finish(ctx, "materialize", nil, nil)
	}
	return result, s.finish(ctx, "materialize", nil, instanceEvent(result.Instance.ID, actor))
}

func (s *materializerService) createInstance(ctx context.Context, tx *repository.Repos, actor Actor, room *model.Room, templateID *uint) (*model.RoomInstance, error) {
	var template *model.FFETemplate
	if templateID != nil {
		if _, err := ownedTemplate(tx, actor, *templateID); err != nil {
			return nil, err
		}
		var err error
		template, err = tx.Templates.GetByID(*templateID)
		if err != nil {
			return nil, lookupError(err, domain.EntityTemplate, *templateID)
		}
	}

	instance := &model.RoomInstance{
		RoomID:         room.ID,
		OrganizationID: room.OrganizationID,
	}
	if template != nil {
		instance.TemplateID = &template.ID
		instance.TemplateVersion = template.Version
	}
	if err := tx.Instances.Create(instance); err != nil {
		return nil, fmt.Errorf("failed to create room instance: %w", err)
	}

	itemCount := 0
	if template != nil {
		for i := range template.Sections {
			section := s.copySection(instance.ID, &template.Sections[i], template.Sections[i].Items)
			if err := tx.Sections.Create(&section); err != nil {
				return nil, fmt.Errorf("failed to create instance section: %w", err)
			}
			itemCount += len(section.Items)
			instance.Sections = append(instance.Sections, section)
		}
	}

	entry := changeEntry(ctx, domain.EntityInstance, instance.ID, instance.ID, domain.ActionMaterialized, nil,
		map[string]interface{}{
			"room_id":          room.ID,
			"template_id":      instance.TemplateID,
			"template_version": instance.TemplateVersion,
			"sections":         len(instance.Sections),
			"items":            itemCount,
		}, actor.Name)
	if err := tx.ChangeLogs.Create(&entry); err != nil {
		return nil, err
	}
	klog.V(6).Infof("房间实例已物化: roomID=%d, instanceID=%d, sections=%d, items=%d", room.ID, instance.ID, len(instance.Sections), itemCount)
	return instance, nil
}

// copySection 复制模板分区及给定条目；条目的 InstanceID 需显式写入
func (s *materializerService) copySection(instanceID uint, src *model.TemplateSection, items []model.TemplateItem) model.InstanceSection {
	sectionID := src.ID
	section := model.InstanceSection{
		InstanceID:        instanceID,
		TemplateSectionID: &sectionID,
		Name:              src.Name,
		SortOrder:         src.SortOrder,
	}
	for i := range items {
		section.Items = append(section.Items, s.copyItem(instanceID, 0, &items[i]))
	}
	return section
}

// copyItem 必选条目初始可见，其余隐藏
func (s *materializerService) copyItem(instanceID, sectionID uint, src *model.TemplateItem) model.InstanceItem {
	templateItemID := src.ID
	visibility := domain.VisibilityHidden
	if src.Required {
		visibility = domain.VisibilityVisible
	}
	state := src.DefaultState
	if !state.Valid() {
		state = domain.StatePending
	}
	return model.InstanceItem{
		InstanceID:     instanceID,
		SectionID:      sectionID,
		TemplateItemID: &templateItemID,
		Name:           src.Name,
		Category:       src.Category,
		State:          state,
		Visibility:     visibility,
		Required:       src.Required,
		Quantity:       decimal.NewFromInt(1),
		UnitCost:       src.CostHint,
		Currency:       s.defaultCurrency,
		LeadTimeDays:   src.LeadTimeDays,
		SortOrder:      src.SortOrder,
	}
}

func (s *materializerService) racedInstance(ctx context.Context, actor Actor, roomID uint, cause error) *model.RoomInstance {
	if domain.KindOf(cause) != "" {
		return nil
	}
	repos := s.store.Repos(ctx)
	existing, err := repos.Instances.GetBasicByRoomID(roomID)
	if err != nil || existing.OrganizationID != actor.OrganizationID {
		return nil
	}
	tree, err := repos.Instances.GetTree(existing.ID)
	if err != nil {
		return nil
	}
	klog.V(6).Infof("并发物化，返回已存在的实例: roomID=%d, instanceID=%d, cause=%v", roomID, existing.ID, cause)
	return tree
}

// Resync 只做增量：补齐模板新增的分区和条目，不修改、不删除已有内容
func (s *materializerService) Resync(ctx context.Context, actor Actor, instanceID uint) (*ResyncResult, error) {
	result := &ResyncResult{InstanceID: instanceID}
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		instance, err := ownedInstance(tx, actor, instanceID)
		if err != nil {
			return err
		}
		if instance.TemplateID == nil {
			return domain.InvalidArgument(domain.EntityInstance, instanceID, "instance was not created from a template")
		}
		if _, err := ownedTemplate(tx, actor, *instance.TemplateID); err != nil {
			return err
		}
		template, err := tx.Templates.GetByID(*instance.TemplateID)
		if err != nil {
			return lookupError(err, domain.EntityTemplate, *instance.TemplateID)
		}
		result.TemplateVersion = template.Version

		sections, err := tx.Sections.GetByInstanceID(instanceID)
		if err != nil {
			return fmt.Errorf("failed to list instance sections: %w", err)
		}
		items, err := tx.Items.ListByInstance(instanceID)
		if err != nil {
			return fmt.Errorf("failed to list instance items: %w", err)
		}
		sectionByTemplate := make(map[uint]uint, len(sections))
		for _, section := range sections {
			if section.TemplateSectionID != nil {
				sectionByTemplate[*section.TemplateSectionID] = section.ID
			}
		}
		knownItems := make(map[uint]bool, len(items))
		for _, item := range items {
			if item.TemplateItemID != nil {
				knownItems[*item.TemplateItemID] = true
			}
		}

		for i := range template.Sections {
			src := &template.Sections[i]
			var missing []model.TemplateItem
			for _, item := range src.Items {
				if !knownItems[item.ID] {
					missing = append(missing, item)
				}
			}

			sectionID, ok := sectionByTemplate[src.ID]
			if !ok {
				section := s.copySection(instanceID, src, missing)
				if err := tx.Sections.Create(&section); err != nil {
					return fmt.Errorf("failed to create instance section: %w", err)
				}
				result.AddedSections++
				result.AddedItems += len(section.Items)
				continue
			}
			for j := range missing {
				item := s.copyItem(instanceID, sectionID, &missing[j])
				if err := tx.Items.Create(&item); err != nil {
					return fmt.Errorf("failed to create instance item: %w", err)
				}
				result.AddedItems++
			}
		}

		if result.AddedSections == 0 && result.AddedItems == 0 && instance.TemplateVersion == template.Version {
			return nil
		}
		if err := tx.Instances.SetTemplateVersion(instanceID, template.Version); err != nil {
			return fmt.Errorf("failed to update template version: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityInstance, instanceID, instanceID, domain.ActionResynced,
			map[string]interface{}{"template_version": instance.TemplateVersion},
			map[string]interface{}{
				"template_version": template.Version,
				"added_sections":   result.AddedSections,
				"added_items":      result.AddedItems,
			}, actor.Name)
		return tx.ChangeLogs.Create(&entry)
	})
	var event *eventbus.ChangeEvent
	if result.AddedSections > 0 || result.AddedItems > 0 {
		event = instanceEvent(instanceID, actor)
	}
	if err := s.finish(ctx, "resync", err, event); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *materializerService) GetInstance(ctx context.Context, actor Actor, instanceID uint) (*model.RoomInstance, error) {
	repos := s.store.Repos(ctx)
	if _, err := ownedInstance(repos, actor, instanceID); err != nil {
		return nil, err
	}
	tree, err := repos.Instances.GetTree(instanceID)
	if err != nil {
		return nil, lookupError(err, domain.EntityInstance, instanceID)
	}
	return tree, nil
}

func (s *materializerService) GetInstanceByRoom(ctx context.Context, actor Actor, roomID uint) (*model.RoomInstance, error) {
	repos := s.store.Repos(ctx)
	if _, err := ownedRoom(repos, actor, roomID); err != nil {
		return nil, err
	}
	instance, err := repos.Instances.GetBasicByRoomID(roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(domain.EntityInstance, 0)
		}
		return nil, fmt.Errorf("failed to get room instance: %w", err)
	}
	tree, err := repos.Instances.GetTree(instance.ID)
	if err != nil {
		return nil, lookupError(err, domain.EntityInstance, instance.ID)
	}
	return tree, nil
}

// ownedInstance 读取实例并校验组织归属
func ownedInstance(repos *repository.Repos, actor Actor, id uint) (*model.RoomInstance, error) {
	instance, err := repos.Instances.GetBasic(id)
	if err != nil {
		return nil, lookupError(err, domain.EntityInstance, id)
	}
	if instance.OrganizationID != actor.OrganizationID {
		return nil, domain.Forbidden(domain.EntityInstance, id, "instance belongs to another organization")
	}
	return instance, nil
}
