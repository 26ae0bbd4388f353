package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/eventbus"
	"github.com/studiodesk/ffetrack/internal/model"
	"github.com/studiodesk/ffetrack/internal/pkg/metrics"
	"github.com/studiodesk/ffetrack/internal/repository"
)

// AddSectionRequest 新增实例分区
type AddSectionRequest struct {
	Name      string `json:"name" binding:"required,min=1,max=100"`
	SortOrder int    `json:"sort_order"`
}

// AddItemRequest 新增实例条目；可见性默认 VISIBLE
type AddItemRequest struct {
	Name          string             `json:"name" binding:"required,min=1,max=200"`
	Category      string             `json:"category" binding:"max=100"`
	IsSpecItem    bool               `json:"is_spec_item"`
	Required      bool               `json:"required"`
	Visibility    domain.Visibility  `json:"visibility"`
	State         domain.ItemState   `json:"state"`
	Vendor        string             `json:"vendor" binding:"max=200"`
	ModelNumber   string             `json:"model_number" binding:"max=200"`
	Quantity      *decimal.Decimal   `json:"quantity"`
	UnitCost      decimal.Decimal    `json:"unit_cost"`
	MarkupPercent decimal.Decimal    `json:"markup_percent"`
	Currency      string             `json:"currency"`
	LeadTimeDays  int                `json:"lead_time_days"`
	Notes         string             `json:"notes"`
	SortOrder     int                `json:"sort_order"`
	Components    []ComponentRequest `json:"components"`
}

// UpdateItemRequest 部分更新；状态、可见性、挂接走各自的操作
type UpdateItemRequest struct {
	Name          *string          `json:"name"`
	Category      *string          `json:"category"`
	Required      *bool            `json:"required"`
	Vendor        *string          `json:"vendor"`
	ModelNumber   *string          `json:"model_number"`
	Quantity      *decimal.Decimal `json:"quantity"`
	UnitCost      *decimal.Decimal `json:"unit_cost"`
	MarkupPercent *decimal.Decimal `json:"markup_percent"`
	Currency      *string          `json:"currency"`
	LeadTimeDays  *int             `json:"lead_time_days"`
	SortOrder     *int             `json:"sort_order"`
}

// ComponentRequest 部件；Currency 为空沿用条目币种
type ComponentRequest struct {
	Name      string           `json:"name" binding:"required,min=1,max=200"`
	Model     string           `json:"model" binding:"max=200"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	Quantity  *decimal.Decimal `json:"quantity"`
	Currency  string           `json:"currency"`
	SortOrder int              `json:"sort_order"`
}

// InstanceTreeService 物化之后对实例树的自由编辑，不影响模板
type InstanceTreeService interface {
	AddSection(ctx context.Context, actor Actor, instanceID uint, req AddSectionRequest) (*model.InstanceSection, error)
	DeleteSection(ctx context.Context, actor Actor, sectionID uint) error
	AddItem(ctx context.Context, actor Actor, sectionID uint, req AddItemRequest) (*model.InstanceItem, error)
	UpdateItem(ctx context.Context, actor Actor, itemID uint, req UpdateItemRequest) (*model.InstanceItem, error)
	DeleteItem(ctx context.Context, actor Actor, itemID uint) error

	AddComponent(ctx context.Context, actor Actor, itemID uint, req ComponentRequest) (*model.ItemComponent, error)
	UpdateComponent(ctx context.Context, actor Actor, componentID uint, req ComponentRequest) (*model.ItemComponent, error)
	DeleteComponent(ctx context.Context, actor Actor, componentID uint) error
}

type instanceTreeService struct {
	engine
	defaultCurrency string
}

func NewInstanceTreeService(store repository.Store, bus *eventbus.ChangeEventBus, m *metrics.Metrics, defaultCurrency string) InstanceTreeService {
	return &instanceTreeService{engine: newEngine(store, bus, m), defaultCurrency: canonicalCurrency(defaultCurrency)}
}

func (s *instanceTreeService) AddSection(ctx context.Context, actor Actor, instanceID uint, req AddSectionRequest) (*model.InstanceSection, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, s.finish(ctx, "section.add", domain.InvalidArgument(domain.EntitySection, 0, "name is required"), nil)
	}
	section := &model.InstanceSection{InstanceID: instanceID, Name: name, SortOrder: req.SortOrder}
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		if _, err := ownedInstance(tx, actor, instanceID); err != nil {
			return err
		}
		if section.SortOrder == 0 {
			maxSort, err := tx.Sections.MaxSortOrder(instanceID)
			if err != nil {
				return fmt.Errorf("failed to get max sort order: %w", err)
			}
			section.SortOrder = maxSort + 1
		}
		if err := tx.Sections.Create(section); err != nil {
			return fmt.Errorf("failed to create section: %w", err)
		}
		entry := changeEntry(ctx, domain.EntitySection, section.ID, instanceID, domain.ActionCreated, nil, map[string]interface{}{"name": name}, actor.Name)
		return tx.ChangeLogs.Create(&entry)
	})
	if err := s.finish(ctx, "section.add", err, instanceEvent(instanceID, actor)); err != nil {
		return nil, err
	}
	return section, nil
}

// DeleteSection 级联删除分区内条目；其他分区中挂在这些需求下的规格被解除挂接
func (s *instanceTreeService) DeleteSection(ctx context.Context, actor Actor, sectionID uint) error {
	ctx = newCorrelation(ctx)
	var instanceID uint
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		section, err := tx.Sections.Get(sectionID)
		if err != nil {
			return lookupError(err, domain.EntitySection, sectionID)
		}
		if _, err := ownedInstance(tx, actor, section.InstanceID); err != nil {
			return err
		}
		instanceID = section.InstanceID
		items, err := tx.Items.ListBySection(sectionID)
		if err != nil {
			return fmt.Errorf("failed to list section items: %w", err)
		}

		inSection := make(map[uint]bool, len(items))
		var requirementIDs []uint
		affected := make(map[uint]bool)
		for _, item := range items {
			inSection[item.ID] = true
			if item.IsRequirement() {
				requirementIDs = append(requirementIDs, item.ID)
			}
		}
		for _, item := range items {
			if item.RequirementID != nil && !inSection[*item.RequirementID] {
				affected[*item.RequirementID] = true
			}
		}
		if err := unlinkDangling(ctx, tx, actor, requirementIDs, inSection); err != nil {
			return err
		}
		if err := tx.Sections.Delete(sectionID); err != nil {
			return fmt.Errorf("failed to delete section: %w", err)
		}
		for reqID := range affected {
			if err := renumberOptions(tx, reqID); err != nil {
				return err
			}
		}
		entry := changeEntry(ctx, domain.EntitySection, sectionID, instanceID, domain.ActionDeleted,
			map[string]interface{}{"name": section.Name, "items": len(items)}, nil, actor.Name)
		return tx.ChangeLogs.Create(&entry)
	})
	return s.finish(ctx, "section.delete", err, instanceEvent(instanceID, actor))
}

func (s *instanceTreeService) AddItem(ctx context.Context, actor Actor, sectionID uint, req AddItemRequest) (*model.InstanceItem, error) {
	item, err := buildInstanceItem(req, s.defaultCurrency)
	if err != nil {
		return nil, s.finish(ctx, "item.add", err, nil)
	}
	err = s.store.Transaction(ctx, func(tx *repository.Repos) error {
		section, err := tx.Sections.Get(sectionID)
		if err != nil {
			return lookupError(err, domain.EntitySection, sectionID)
		}
		if _, err := ownedInstance(tx, actor, section.InstanceID); err != nil {
			return err
		}
		item.InstanceID = section.InstanceID
		item.SectionID = sectionID
		if item.SortOrder == 0 {
			maxSort, err := tx.Items.MaxSortOrder(sectionID)
			if err != nil {
				return fmt.Errorf("failed to get max sort order: %w", err)
			}
			item.SortOrder = maxSort + 1
		}
		if err := tx.Items.Create(item); err != nil {
			return fmt.Errorf("failed to create item: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityItem, item.ID, item.InstanceID, domain.ActionCreated, nil, itemSnapshot(item), actor.Name)
		return tx.ChangeLogs.Create(&entry)
	})
	if err != nil {
		return nil, s.finish(ctx, "item.add", err, nil)
	}
	return item, s.finish(ctx, "item.add", nil, itemEvent(item.InstanceID, actor, item.ID))
}

func (s *instanceTreeService) UpdateItem(ctx context.Context, actor Actor, itemID uint, req UpdateItemRequest) (*model.InstanceItem, error) {
	var item *model.InstanceItem
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		var err error
		item, err = lockedItem(tx, actor, itemID)
		if err != nil {
			return err
		}
		before := itemSnapshot(item)
		if err := applyItemUpdate(item, req); err != nil {
			return err
		}
		if err := tx.Items.Save(item); err != nil {
			return fmt.Errorf("failed to update item: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityItem, itemID, item.InstanceID, domain.ActionUpdated, before, itemSnapshot(item), actor.Name)
		return tx.ChangeLogs.Create(&entry)
	})
	if err != nil {
		return nil, s.finish(ctx, "item.update", err, nil)
	}
	return item, s.finish(ctx, "item.update", nil, itemEvent(item.InstanceID, actor, itemID))
}

// DeleteItem 删除需求时解除其规格挂接；删除已挂接规格时重排兄弟选项号
func (s *instanceTreeService) DeleteItem(ctx context.Context, actor Actor, itemID uint) error {
	ctx = newCorrelation(ctx)
	var instanceID uint
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		item, err := lockedItem(tx, actor, itemID)
		if err != nil {
			return err
		}
		instanceID = item.InstanceID
		if item.IsRequirement() {
			if err := unlinkDangling(ctx, tx, actor, []uint{itemID}, nil); err != nil {
				return err
			}
		}
		if err := tx.Items.Delete(itemID); err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}
		if item.IsSpecItem && item.RequirementID != nil {
			if err := renumberOptions(tx, *item.RequirementID); err != nil {
				return err
			}
		}
		entry := changeEntry(ctx, domain.EntityItem, itemID, instanceID, domain.ActionDeleted, itemSnapshot(item), nil, actor.Name)
		return tx.ChangeLogs.Create(&entry)
	})
	return s.finish(ctx, "item.delete", err, itemEvent(instanceID, actor, itemID))
}

// AddComponent 部件只属于规格条目
func (s *instanceTreeService) AddComponent(ctx context.Context, actor Actor, itemID uint, req ComponentRequest) (*model.ItemComponent, error) {
	component, err := buildComponent(req)
	if err != nil {
		return nil, s.finish(ctx, "component.add", err, nil)
	}
	var instanceID uint
	err = s.store.Transaction(ctx, func(tx *repository.Repos) error {
		item, err := lockedItem(tx, actor, itemID)
		if err != nil {
			return err
		}
		if !item.IsSpecItem {
			return domain.InvalidArgument(domain.EntityItem, itemID, "components belong to specification items")
		}
		instanceID = item.InstanceID
		component.ItemID = itemID
		if err := tx.Components.Create(component); err != nil {
			return fmt.Errorf("failed to create component: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityComponent, component.ID, instanceID, domain.ActionCreated, nil, component, actor.Name)
		return tx.ChangeLogs.Create(&entry)
	})
	if err := s.finish(ctx, "component.add", err, itemEvent(instanceID, actor, itemID)); err != nil {
		return nil, err
	}
	return component, nil
}

func (s *instanceTreeService) UpdateComponent(ctx context.Context, actor Actor, componentID uint, req ComponentRequest) (*model.ItemComponent, error) {
	built, err := buildComponent(req)
	if err != nil {
		return nil, s.finish(ctx, "component.update", err, nil)
	}
	var component *model.ItemComponent
	var instanceID uint
	err = s.store.Transaction(ctx, func(tx *repository.Repos) error {
		var err error
		component, err = tx.Components.Get(componentID)
		if err != nil {
			return lookupError(err, domain.EntityComponent, componentID)
		}
		item, err := lockedItem(tx, actor, component.ItemID)
		if err != nil {
			return err
		}
		instanceID = item.InstanceID
		before := *component
		component.Name = built.Name
		component.Model = built.Model
		component.UnitPrice = built.UnitPrice
		component.Quantity = built.Quantity
		component.Currency = built.Currency
		component.SortOrder = built.SortOrder
		if err := tx.Components.Save(component); err != nil {
			return fmt.Errorf("failed to update component: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityComponent, componentID, instanceID, domain.ActionUpdated, before, component, actor.Name)
		return tx.ChangeLogs.Create(&entry)
	})
	if err != nil {
		return nil, s.finish(ctx, "component.update", err, nil)
	}
	return component, s.finish(ctx, "component.update", nil, itemEvent(instanceID, actor, component.ItemID))
}

func (s *instanceTreeService) DeleteComponent(ctx context.Context, actor Actor, componentID uint) error {
	var instanceID, itemID uint
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		component, err := tx.Components.Get(componentID)
		if err != nil {
			return lookupError(err, domain.EntityComponent, componentID)
		}
		item, err := lockedItem(tx, actor, component.ItemID)
		if err != nil {
			return err
		}
		instanceID, itemID = item.InstanceID, item.ID
		if err := tx.Components.Delete(componentID); err != nil {
			return fmt.Errorf("failed to delete component: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityComponent, componentID, instanceID, domain.ActionDeleted, component, nil, actor.Name)
		return tx.ChangeLogs.Create(&entry)
	})
	return s.finish(ctx, "component.delete", err, itemEvent(instanceID, actor, itemID))
}

func buildInstanceItem(req AddItemRequest, defaultCurrency string) (*model.InstanceItem, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.InvalidArgument(domain.EntityItem, 0, "name is required")
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = domain.VisibilityVisible
	}
	if !visibility.Valid() {
		return nil, domain.InvalidArgument(domain.EntityItem, 0, fmt.Sprintf("unknown visibility %q", visibility))
	}
	state := req.State
	if state == "" {
		state = domain.StatePending
	}
	if !state.Valid() {
		return nil, domain.InvalidArgument(domain.EntityItem, 0, fmt.Sprintf("unknown state %q", state))
	}
	currency, err := normalizeCurrency(req.Currency, defaultCurrency)
	if err != nil {
		return nil, err
	}
	quantity := decimal.NewFromInt(1)
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if err := validateAmounts(0, quantity, req.UnitCost, req.MarkupPercent); err != nil {
		return nil, err
	}

	item := &model.InstanceItem{
		Name:          name,
		Category:      req.Category,
		State:         state,
		Visibility:    visibility,
		Required:      req.Required,
		IsSpecItem:    req.IsSpecItem,
		Vendor:        req.Vendor,
		ModelNumber:   req.ModelNumber,
		Quantity:      quantity,
		UnitCost:      req.UnitCost,
		MarkupPercent: req.MarkupPercent,
		Currency:      currency,
		LeadTimeDays:  req.LeadTimeDays,
		Notes:         req.Notes,
		SortOrder:     req.SortOrder,
	}
	if len(req.Components) > 0 && !req.IsSpecItem {
		return nil, domain.InvalidArgument(domain.EntityItem, 0, "components belong to specification items")
	}
	for _, cr := range req.Components {
		c, err := buildComponent(cr)
		if err != nil {
			return nil, err
		}
		item.Components = append(item.Components, *c)
	}
	return item, nil
}

func applyItemUpdate(item *model.InstanceItem, req UpdateItemRequest) error {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.InvalidArgument(domain.EntityItem, item.ID, "name is required")
		}
		item.Name = name
	}
	if req.Category != nil {
		item.Category = *req.Category
	}
	if req.Required != nil {
		item.Required = *req.Required
	}
	if req.Vendor != nil {
		item.Vendor = *req.Vendor
	}
	if req.ModelNumber != nil {
		item.ModelNumber = *req.ModelNumber
	}
	if req.Quantity != nil {
		item.Quantity = *req.Quantity
	}
	if req.UnitCost != nil {
		item.UnitCost = *req.UnitCost
	}
	if req.MarkupPercent != nil {
		item.MarkupPercent = *req.MarkupPercent
	}
	if req.Currency != nil {
		currency, err := normalizeCurrency(*req.Currency, "")
		if err != nil {
			return err
		}
		item.Currency = currency
	}
	if req.LeadTimeDays != nil {
		item.LeadTimeDays = *req.LeadTimeDays
	}
	if req.SortOrder != nil {
		item.SortOrder = *req.SortOrder
	}
	return validateAmounts(item.ID, item.Quantity, item.UnitCost, item.MarkupPercent)
}

func buildComponent(req ComponentRequest) (*model.ItemComponent, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.InvalidArgument(domain.EntityComponent, 0, "name is required")
	}
	quantity := decimal.NewFromInt(1)
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity.IsNegative() || req.UnitPrice.IsNegative() {
		return nil, domain.InvalidArgument(domain.EntityComponent, 0, "price and quantity must not be negative")
	}
	var currency string
	if req.Currency != "" {
		var err error
		if currency, err = normalizeCurrency(req.Currency, ""); err != nil {
			return nil, err
		}
	}
	return &model.ItemComponent{
		Name:      name,
		Model:     req.Model,
		UnitPrice: req.UnitPrice,
		Quantity:  quantity,
		Currency:  currency,
		SortOrder: req.SortOrder,
	}, nil
}

// canonicalCurrency 去空白并转大写，不做校验
func canonicalCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// normalizeCurrency ISO 4217 三位字母代码，统一大写
func normalizeCurrency(code, fallback string) (string, error) {
	code = canonicalCurrency(code)
	if code == "" {
		code = canonicalCurrency(fallback)
	}
	if len(code) != 3 {
		return "", domain.InvalidArgument(domain.EntityItem, 0, fmt.Sprintf("invalid currency code %q", code))
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", domain.InvalidArgument(domain.EntityItem, 0, fmt.Sprintf("invalid currency code %q", code))
		}
	}
	return code, nil
}

func validateAmounts(itemID uint, quantity, unitCost, markup decimal.Decimal) error {
	if quantity.IsNegative() {
		return domain.InvalidArgument(domain.EntityItem, itemID, "quantity must not be negative")
	}
	if unitCost.IsNegative() {
		return domain.InvalidArgument(domain.EntityItem, itemID, "unit cost must not be negative")
	}
	if markup.LessThanOrEqual(decimal.NewFromInt(-100)) {
		return domain.InvalidArgument(domain.EntityItem, itemID, "markup must be greater than -100%")
	}
	return nil
}

func itemSnapshot(item *model.InstanceItem) map[string]interface{} {
	return map[string]interface{}{
		"name":           item.Name,
		"category":       item.Category,
		"required":       item.Required,
		"is_spec_item":   item.IsSpecItem,
		"vendor":         item.Vendor,
		"model_number":   item.ModelNumber,
		"quantity":       item.Quantity,
		"unit_cost":      item.UnitCost,
		"markup_percent": item.MarkupPercent,
		"currency":       item.Currency,
		"lead_time_days": item.LeadTimeDays,
		"sort_order":     item.SortOrder,
	}
}
