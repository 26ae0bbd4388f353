package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/eventbus"
	"github.com/studiodesk/ffetrack/internal/model"
	"github.com/studiodesk/ffetrack/internal/pkg/metrics"
	"github.com/studiodesk/ffetrack/internal/repository"
)

// TemplateDTO 模板数据传输对象
type TemplateDTO struct {
	ID             uint   `json:"id"`
	OrganizationID uint   `json:"organization_id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Version        int    `json:"version"`
	IsSystem       bool   `json:"is_system"`
	SortOrder      int    `json:"sort_order"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// TemplateDetailDTO 模板详情（含分区和条目）
type TemplateDetailDTO struct {
	TemplateDTO
	Sections []TemplateSectionDTO `json:"sections"`
}

// TemplateSectionDTO 模板分区
type TemplateSectionDTO struct {
	ID        uint              `json:"id"`
	Name      string            `json:"name"`
	SortOrder int               `json:"sort_order"`
	Items     []TemplateItemDTO `json:"items"`
}

// TemplateItemDTO 模板条目
type TemplateItemDTO struct {
	ID           uint             `json:"id"`
	SectionID    uint             `json:"section_id"`
	Name         string           `json:"name"`
	Category     string           `json:"category"`
	DefaultState domain.ItemState `json:"default_state"`
	Required     bool             `json:"required"`
	CostHint     decimal.Decimal  `json:"cost_hint"`
	LeadTimeDays int              `json:"lead_time_days"`
	SortOrder    int              `json:"sort_order"`
}

// CreateTemplateRequest 创建模板请求，可携带完整的分区和条目
type CreateTemplateRequest struct {
	Name        string                   `json:"name" binding:"required,min=1,max=100"`
	Description string                   `json:"description" binding:"max=500"`
	SortOrder   int                      `json:"sort_order"`
	Sections    []TemplateSectionRequest `json:"sections"`
}

// UpdateTemplateRequest 更新模板请求
type UpdateTemplateRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	Description string `json:"description" binding:"max=500"`
	SortOrder   int    `json:"sort_order"`
}

// TemplateSectionRequest 创建/更新模板分区
type TemplateSectionRequest struct {
	Name      string                `json:"name" binding:"required,min=1,max=100"`
	SortOrder int                   `json:"sort_order"`
	Items     []TemplateItemRequest `json:"items"`
}

// TemplateItemRequest 创建/更新模板条目
type TemplateItemRequest struct {
	Name         string           `json:"name" binding:"required,min=1,max=200"`
	Category     string           `json:"category" binding:"max=100"`
	DefaultState domain.ItemState `json:"default_state"`
	Required     bool             `json:"required"`
	CostHint     decimal.Decimal  `json:"cost_hint"`
	LeadTimeDays int              `json:"lead_time_days"`
	SortOrder    int              `json:"sort_order"`
}

// TemplateService 模板服务接口，所有编辑都会递增模板版本
type TemplateService interface {
	List(ctx context.Context, actor Actor) ([]*TemplateDTO, error)
	GetByID(ctx context.Context, actor Actor, id uint) (*TemplateDetailDTO, error)
	Create(ctx context.Context, actor Actor, req CreateTemplateRequest) (*TemplateDetailDTO, error)
	Update(ctx context.Context, actor Actor, id uint, req UpdateTemplateRequest) (*TemplateDTO, error)
	Delete(ctx context.Context, actor Actor, id uint) error
	Clone(ctx context.Context, actor Actor, id uint, newName string) (*TemplateDetailDTO, error)

	AddSection(ctx context.Context, actor Actor, templateID uint, req TemplateSectionRequest) (*TemplateSectionDTO, error)
	UpdateSection(ctx context.Context, actor Actor, sectionID uint, req TemplateSectionRequest) (*TemplateSectionDTO, error)
	DeleteSection(ctx context.Context, actor Actor, sectionID uint) error
	AddItem(ctx context.Context, actor Actor, sectionID uint, req TemplateItemRequest) (*TemplateItemDTO, error)
	UpdateItem(ctx context.Context, actor Actor, itemID uint, req TemplateItemRequest) (*TemplateItemDTO, error)
	DeleteItem(ctx context.Context, actor Actor, itemID uint) error
}

type templateService struct {
	engine
}

// NewTemplateService 创建服务实例
func NewTemplateService(store repository.Store, bus *eventbus.ChangeEventBus, m *metrics.Metrics) TemplateService {
	return &templateService{engine: newEngine(store, bus, m)}
}

// List 获取组织下的模板列表
func (s *templateService) List(ctx context.Context, actor Actor) ([]*TemplateDTO, error) {
	templates, err := s.store.Repos(ctx).Templates.ListByOrganization(actor.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	result := make([]*TemplateDTO, len(templates))
	for i := range templates {
		result[i] = toTemplateDTO(&templates[i])
	}
	return result, nil
}

// GetByID 获取模板详情
func (s *templateService) GetByID(ctx context.Context, actor Actor, id uint) (*TemplateDetailDTO, error) {
	repos := s.store.Repos(ctx)
	if _, err := ownedTemplate(repos, actor, id); err != nil {
		return nil, err
	}
	template, err := repos.Templates.GetByID(id)
	if err != nil {
		return nil, lookupError(err, domain.EntityTemplate, id)
	}
	return toTemplateDetailDTO(template), nil
}

// Create 创建模板，同一组织内名称唯一
func (s *templateService) Create(ctx context.Context, actor Actor, req CreateTemplateRequest) (*TemplateDetailDTO, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, s.finish(ctx, "template.create", domain.InvalidArgument(domain.EntityTemplate, 0, "name is required"), nil)
	}
	sections, err := buildTemplateSections(req.Sections)
	if err != nil {
		return nil, s.finish(ctx, "template.create", err, nil)
	}

	template := &model.FFETemplate{
		OrganizationID: actor.OrganizationID,
		Name:           name,
		Description:    req.Description,
		Version:        1,
		SortOrder:      req.SortOrder,
		Sections:       sections,
	}
	err = s.store.Transaction(ctx, func(tx *repository.Repos) error {
		if err := ensureTemplateNameFree(tx, actor.OrganizationID, name); err != nil {
			return err
		}
		if err := tx.Templates.Create(template); err != nil {
			return fmt.Errorf("failed to create template: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityTemplate, template.ID, 0, domain.ActionCreated, nil, templateSnapshot(template), actor.Name)
		return tx.ChangeLogs.Create(&entry)
	})
	if err := s.finish(ctx, "template.create", err, templateEvent(template.ID, actor)); err != nil {
		return nil, err
	}
	return toTemplateDetailDTO(template), nil
}

// Update 更新模板基本信息
func (s *templateService) Update(ctx context.Context, actor Actor, id uint, req UpdateTemplateRequest) (*TemplateDTO, error) {
	var updated *model.FFETemplate
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		template, err := ownedTemplate(tx, actor, id)
		if err != nil {
			return err
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return domain.InvalidArgument(domain.EntityTemplate, id, "name is required")
		}
		if name != template.Name {
			if err := ensureTemplateNameFree(tx, actor.OrganizationID, name); err != nil {
				return err
			}
		}
		before := templateSnapshot(template)

		template.Name = name
		template.Description = req.Description
		template.SortOrder = req.SortOrder
		template.Version++
		if err := tx.Templates.Update(template); err != nil {
			return fmt.Errorf("failed to update template: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityTemplate, id, 0, domain.ActionUpdated, before, templateSnapshot(template), actor.Name)
		if err := tx.ChangeLogs.Create(&entry); err != nil {
			return err
		}
		updated = template
		return nil
	})
	if err := s.finish(ctx, "template.update", err, templateEvent(id, actor)); err != nil {
		return nil, err
	}
	return toTemplateDTO(updated), nil
}

// Delete 删除模板，仍被实例引用时拒绝
func (s *templateService) Delete(ctx context.Context, actor Actor, id uint) error {
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		template, err := ownedTemplate(tx, actor, id)
		if err != nil {
			return err
		}
		refs, err := tx.Instances.CountByTemplateID(id)
		if err != nil {
			return fmt.Errorf("failed to count template references: %w", err)
		}
		if refs > 0 {
			return domain.Conflict(domain.EntityTemplate, id, fmt.Sprintf("template is referenced by %d room instance(s)", refs))
		}
		if err := tx.Templates.Delete(id); err != nil {
			return fmt.Errorf("failed to delete template: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityTemplate, id, 0, domain.ActionDeleted, templateSnapshot(template), nil, actor.Name)
		return tx.ChangeLogs.Create(&entry)
	})
	return s.finish(ctx, "template.delete", err, templateEvent(id, actor))
}

// Clone 克隆模板，新模板版本从 1 开始
func (s *templateService) Clone(ctx context.Context, actor Actor, id uint, newName string) (*TemplateDetailDTO, error) {
	var clone *model.FFETemplate
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		if _, err := ownedTemplate(tx, actor, id); err != nil {
			return err
		}
		source, err := tx.Templates.GetByID(id)
		if err != nil {
			return lookupError(err, domain.EntityTemplate, id)
		}

		name := strings.TrimSpace(newName)
		if name == "" {
			name = source.Name + " (copy)"
		}
		if err := ensureTemplateNameFree(tx, actor.OrganizationID, name); err != nil {
			return err
		}

		clone = &model.FFETemplate{
			OrganizationID: actor.OrganizationID,
			Name:           name,
			Description:    source.Description,
			Version:        1,
			SortOrder:      source.SortOrder,
			Sections:       make([]model.TemplateSection, len(source.Sections)),
		}
		for i, section := range source.Sections {
			clone.Sections[i] = model.TemplateSection{
				Name:      section.Name,
				SortOrder: section.SortOrder,
				Items:     make([]model.TemplateItem, len(section.Items)),
			}
			for j, item := range section.Items {
				item.ID = 0
				item.SectionID = 0
				clone.Sections[i].Items[j] = item
			}
		}
		if err := tx.Templates.Create(clone); err != nil {
			return fmt.Errorf("failed to create cloned template: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityTemplate, clone.ID, 0, domain.ActionCreated,
			map[string]interface{}{"cloned_from": id}, templateSnapshot(clone), actor.Name)
		return tx.ChangeLogs.Create(&entry)
	})
	var cloneID uint
	if clone != nil {
		cloneID = clone.ID
	}
	if err := s.finish(ctx, "template.clone", err, templateEvent(cloneID, actor)); err != nil {
		return nil, err
	}
	return toTemplateDetailDTO(clone), nil
}

// AddSection 新增模板分区
func (s *templateService) AddSection(ctx context.Context, actor Actor, templateID uint, req TemplateSectionRequest) (*TemplateSectionDTO, error) {
	sections, err := buildTemplateSections([]TemplateSectionRequest{req})
	if err != nil {
		return nil, s.finish(ctx, "template.section.add", err, nil)
	}
	section := sections[0]
	err = s.store.Transaction(ctx, func(tx *repository.Repos) error {
		if _, err := ownedTemplate(tx, actor, templateID); err != nil {
			return err
		}
		section.TemplateID = templateID
		if err := tx.TemplateSections.Create(&section); err != nil {
			return fmt.Errorf("failed to create template section: %w", err)
		}
		return s.touchTemplate(ctx, tx, actor, templateID, domain.EntityTemplateSection, section.ID, domain.ActionCreated, nil, section.Name)
	})
	if err := s.finish(ctx, "template.section.add", err, templateEvent(templateID, actor)); err != nil {
		return nil, err
	}
	dto := toTemplateSectionDTO(&section)
	return &dto, nil
}

// UpdateSection 更新模板分区
func (s *templateService) UpdateSection(ctx context.Context, actor Actor, sectionID uint, req TemplateSectionRequest) (*TemplateSectionDTO, error) {
	var section *model.TemplateSection
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		var err error
		section, err = ownedTemplateSection(tx, actor, sectionID)
		if err != nil {
			return err
		}
		if strings.TrimSpace(req.Name) == "" {
			return domain.InvalidArgument(domain.EntityTemplateSection, sectionID, "name is required")
		}
		before := section.Name
		section.Name = strings.TrimSpace(req.Name)
		section.SortOrder = req.SortOrder
		if err := tx.TemplateSections.Update(section); err != nil {
			return fmt.Errorf("failed to update template section: %w", err)
		}
		return s.touchTemplate(ctx, tx, actor, section.TemplateID, domain.EntityTemplateSection, sectionID, domain.ActionUpdated, before, section.Name)
	})
	if err != nil {
		return nil, s.finish(ctx, "template.section.update", err, nil)
	}
	if err := s.finish(ctx, "template.section.update", nil, templateEvent(section.TemplateID, actor)); err != nil {
		return nil, err
	}
	dto := toTemplateSectionDTO(section)
	return &dto, nil
}

// DeleteSection 删除模板分区及其条目
func (s *templateService) DeleteSection(ctx context.Context, actor Actor, sectionID uint) error {
	var templateID uint
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		section, err := ownedTemplateSection(tx, actor, sectionID)
		if err != nil {
			return err
		}
		templateID = section.TemplateID
		if err := tx.TemplateSections.Delete(sectionID); err != nil {
			return fmt.Errorf("failed to delete template section: %w", err)
		}
		return s.touchTemplate(ctx, tx, actor, templateID, domain.EntityTemplateSection, sectionID, domain.ActionDeleted, section.Name, nil)
	})
	return s.finish(ctx, "template.section.delete", err, templateEvent(templateID, actor))
}

// AddItem 新增模板条目
func (s *templateService) AddItem(ctx context.Context, actor Actor, sectionID uint, req TemplateItemRequest) (*TemplateItemDTO, error) {
	item, err := buildTemplateItem(req)
	if err != nil {
		return nil, s.finish(ctx, "template.item.add", err, nil)
	}
	var templateID uint
	err = s.store.Transaction(ctx, func(tx *repository.Repos) error {
		section, err := ownedTemplateSection(tx, actor, sectionID)
		if err != nil {
			return err
		}
		templateID = section.TemplateID
		item.SectionID = sectionID
		if err := tx.TemplateItems.Create(&item); err != nil {
			return fmt.Errorf("failed to create template item: %w", err)
		}
		return s.touchTemplate(ctx, tx, actor, templateID, domain.EntityTemplateItem, item.ID, domain.ActionCreated, nil, item.Name)
	})
	if err := s.finish(ctx, "template.item.add", err, templateEvent(templateID, actor)); err != nil {
		return nil, err
	}
	dto := toTemplateItemDTO(&item)
	return &dto, nil
}

// UpdateItem 更新模板条目
func (s *templateService) UpdateItem(ctx context.Context, actor Actor, itemID uint, req TemplateItemRequest) (*TemplateItemDTO, error) {
	built, err := buildTemplateItem(req)
	if err != nil {
		return nil, s.finish(ctx, "template.item.update", err, nil)
	}
	var item *model.TemplateItem
	var templateID uint
	err = s.store.Transaction(ctx, func(tx *repository.Repos) error {
		item, err = tx.TemplateItems.GetByID(itemID)
		if err != nil {
			return lookupError(err, domain.EntityTemplateItem, itemID)
		}
		section, err := ownedTemplateSection(tx, actor, item.SectionID)
		if err != nil {
			return err
		}
		templateID = section.TemplateID
		before := toTemplateItemDTO(item)

		built.ID = item.ID
		built.SectionID = item.SectionID
		built.CreatedAt = item.CreatedAt
		*item = built
		if err := tx.TemplateItems.Update(item); err != nil {
			return fmt.Errorf("failed to update template item: %w", err)
		}
		return s.touchTemplate(ctx, tx, actor, templateID, domain.EntityTemplateItem, itemID, domain.ActionUpdated, before, toTemplateItemDTO(item))
	})
	if err := s.finish(ctx, "template.item.update", err, templateEvent(templateID, actor)); err != nil {
		return nil, err
	}
	dto := toTemplateItemDTO(item)
	return &dto, nil
}

// DeleteItem 删除模板条目，已物化的实例条目不受影响
func (s *templateService) DeleteItem(ctx context.Context, actor Actor, itemID uint) error {
	var templateID uint
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		item, err := tx.TemplateItems.GetByID(itemID)
		if err != nil {
			return lookupError(err, domain.EntityTemplateItem, itemID)
		}
		section, err := ownedTemplateSection(tx, actor, item.SectionID)
		if err != nil {
			return err
		}
		templateID = section.TemplateID
		if err := tx.TemplateItems.Delete(itemID); err != nil {
			return fmt.Errorf("failed to delete template item: %w", err)
		}
		return s.touchTemplate(ctx, tx, actor, templateID, domain.EntityTemplateItem, itemID, domain.ActionDeleted, item.Name, nil)
	})
	return s.finish(ctx, "template.item.delete", err, templateEvent(templateID, actor))
}

// touchTemplate 递增模板版本并记录分区/条目的变更
func (s *templateService) touchTemplate(ctx context.Context, tx *repository.Repos, actor Actor, templateID uint, entity domain.EntityType, entityID uint, action domain.ChangeAction, oldValue, newValue interface{}) error {
	if err := tx.Templates.BumpVersion(templateID); err != nil {
		return fmt.Errorf("failed to bump template version: %w", err)
	}
	entry := changeEntry(ctx, entity, entityID, 0, action, oldValue, newValue, actor.Name)
	return tx.ChangeLogs.Create(&entry)
}

// ownedTemplate 读取模板并校验组织归属
func ownedTemplate(repos *repository.Repos, actor Actor, id uint) (*model.FFETemplate, error) {
	template, err := repos.Templates.GetBasic(id)
	if err != nil {
		return nil, lookupError(err, domain.EntityTemplate, id)
	}
	if template.OrganizationID != actor.OrganizationID {
		return nil, domain.Forbidden(domain.EntityTemplate, id, "template belongs to another organization")
	}
	return template, nil
}

func ownedTemplateSection(repos *repository.Repos, actor Actor, id uint) (*model.TemplateSection, error) {
	section, err := repos.TemplateSections.GetByID(id)
	if err != nil {
		return nil, lookupError(err, domain.EntityTemplateSection, id)
	}
	if _, err := ownedTemplate(repos, actor, section.TemplateID); err != nil {
		return nil, err
	}
	return section, nil
}

func ensureTemplateNameFree(repos *repository.Repos, orgID uint, name string) error {
	existing, err := repos.Templates.GetByName(orgID, name)
	if err == nil {
		return domain.Conflict(domain.EntityTemplate, existing.ID, fmt.Sprintf("template name %q already exists", name))
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to check template name: %w", err)
	}
	return nil
}

func buildTemplateSections(reqs []TemplateSectionRequest) ([]model.TemplateSection, error) {
	sections := make([]model.TemplateSection, 0, len(reqs))
	for i, req := range reqs {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, domain.InvalidArgument(domain.EntityTemplateSection, 0, "section name is required")
		}
		section := model.TemplateSection{Name: name, SortOrder: req.SortOrder}
		if section.SortOrder == 0 {
			section.SortOrder = i + 1
		}
		for j, itemReq := range req.Items {
			item, err := buildTemplateItem(itemReq)
			if err != nil {
				return nil, err
			}
			if item.SortOrder == 0 {
				item.SortOrder = j + 1
			}
			section.Items = append(section.Items, item)
		}
		sections = append(sections, section)
	}
	return sections, nil
}

func buildTemplateItem(req TemplateItemRequest) (model.TemplateItem, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return model.TemplateItem{}, domain.InvalidArgument(domain.EntityTemplateItem, 0, "item name is required")
	}
	state := req.DefaultState
	if state == "" {
		state = domain.StatePending
	}
	if !state.Valid() {
		return model.TemplateItem{}, domain.InvalidArgument(domain.EntityTemplateItem, 0, fmt.Sprintf("unknown state %q", state))
	}
	if req.CostHint.IsNegative() {
		return model.TemplateItem{}, domain.InvalidArgument(domain.EntityTemplateItem, 0, "cost hint must not be negative")
	}
	return model.TemplateItem{
		Name:         name,
		Category:     req.Category,
		DefaultState: state,
		Required:     req.Required,
		CostHint:     req.CostHint,
		LeadTimeDays: req.LeadTimeDays,
		SortOrder:    req.SortOrder,
	}, nil
}

func templateEvent(templateID uint, actor Actor) *eventbus.ChangeEvent {
	return &eventbus.ChangeEvent{
		Type:       eventbus.ChangeEventTemplate,
		EntityType: domain.EntityTemplate,
		EntityIDs:  []uint{templateID},
		Actor:      actor.Name,
	}
}

func templateSnapshot(t *model.FFETemplate) map[string]interface{} {
	return map[string]interface{}{
		"name":        t.Name,
		"description": t.Description,
		"version":     t.Version,
		"sections":    len(t.Sections),
	}
}

// toTemplateDTO 转换为 DTO
func toTemplateDTO(t *model.FFETemplate) *TemplateDTO {
	return &TemplateDTO{
		ID:             t.ID,
		OrganizationID: t.OrganizationID,
		Name:           t.Name,
		Description:    t.Description,
		Version:        t.Version,
		IsSystem:       t.IsSystem,
		SortOrder:      t.SortOrder,
		CreatedAt:      t.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:      t.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// toTemplateDetailDTO 转换为详情 DTO
func toTemplateDetailDTO(t *model.FFETemplate) *TemplateDetailDTO {
	sections := make([]TemplateSectionDTO, len(t.Sections))
	for i := range t.Sections {
		sections[i] = toTemplateSectionDTO(&t.Sections[i])
	}
	return &TemplateDetailDTO{TemplateDTO: *toTemplateDTO(t), Sections: sections}
}

func toTemplateSectionDTO(s *model.TemplateSection) TemplateSectionDTO {
	items := make([]TemplateItemDTO, len(s.Items))
	for i := range s.Items {
		items[i] = toTemplateItemDTO(&s.Items[i])
	}
	return TemplateSectionDTO{ID: s.ID, Name: s.Name, SortOrder: s.SortOrder, Items: items}
}

func toTemplateItemDTO(i *model.TemplateItem) TemplateItemDTO {
	return TemplateItemDTO{
		ID:           i.ID,
		SectionID:    i.SectionID,
		Name:         i.Name,
		Category:     i.Category,
		DefaultState: i.DefaultState,
		Required:     i.Required,
		CostHint:     i.CostHint,
		LeadTimeDays: i.LeadTimeDays,
		SortOrder:    i.SortOrder,
	}
}
