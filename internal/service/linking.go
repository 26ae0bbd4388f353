package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/eventbus"
	"github.com/studiodesk/ffetrack/internal/model"
	"github.com/studiodesk/ffetrack/internal/pkg/metrics"
	"github.com/studiodesk/ffetrack/internal/repository"
	"github.com/studiodesk/ffetrack/internal/service/rollup"
)

// OptionView 需求下的一个规格选项及其价格汇总
type OptionView struct {
	model.InstanceItem
	Total        *rollup.Total `json:"total,omitempty"`
	PricingError string        `json:"pricing_error,omitempty"`
}

// LinkingService 需求条目与规格条目之间的挂接，每个需求最多一个被选中的规格
type LinkingService interface {
	Link(ctx context.Context, actor Actor, requirementID, specItemID uint) (*model.InstanceItem, error)
	Unlink(ctx context.Context, actor Actor, specItemID uint) (*model.InstanceItem, error)
	Promote(ctx context.Context, actor Actor, specItemID uint) ([]model.InstanceItem, error)
	ListOptions(ctx context.Context, actor Actor, requirementID uint) ([]OptionView, error)
	CreateOption(ctx context.Context, actor Actor, requirementID uint, req AddItemRequest) (*model.InstanceItem, error)
}

type linkingService struct {
	engine
	validator       linkValidator
	defaultCurrency string
}

func NewLinkingService(store repository.Store, bus *eventbus.ChangeEventBus, m *metrics.Metrics, defaultCurrency string) LinkingService {
	return &linkingService{engine: newEngine(store, bus, m), defaultCurrency: canonicalCurrency(defaultCurrency)}
}

// Link 规格条目挂到需求下，选项号取当前兄弟数 +1，初始不选中
func (s *linkingService) Link(ctx context.Context, actor Actor, requirementID, specItemID uint) (*model.InstanceItem, error) {
	var spec *model.InstanceItem
	changed := false
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		requirement, err := lockedItem(tx, actor, requirementID)
		if err != nil {
			return err
		}
		spec, err = lockedItem(tx, actor, specItemID)
		if err != nil {
			return err
		}
		already, err := s.validator.link(requirement, spec)
		if err != nil || already {
			return err
		}
		siblings, err := tx.Items.ListByRequirementForUpdate(requirementID)
		if err != nil {
			return fmt.Errorf("failed to list options: %w", err)
		}
		option := len(siblings) + 1
		if err := tx.Items.UpdateFields(specItemID, map[string]interface{}{
			"requirement_id": requirementID,
			"option_number":  option,
			"chosen":         false,
		}); err != nil {
			return fmt.Errorf("failed to link specification: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityItem, specItemID, spec.InstanceID, domain.ActionLinked, nil,
			map[string]interface{}{"requirement_id": requirementID, "option_number": option}, actor.Name)
		if err := tx.ChangeLogs.Create(&entry); err != nil {
			return err
		}
		spec.RequirementID = &requirementID
		spec.OptionNumber = option
		spec.Chosen = false
		changed = true
		return nil
	})
	return s.specResult(ctx, "link", actor, spec, changed, err, requirementID)
}

// Unlink 解除挂接，剩余兄弟的选项号重新压缩为 1..N
func (s *linkingService) Unlink(ctx context.Context, actor Actor, specItemID uint) (*model.InstanceItem, error) {
	ctx = newCorrelation(ctx)
	var spec *model.InstanceItem
	var requirementID uint
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		var err error
		spec, requirementID, err = s.lockLinkedSpec(tx, actor, specItemID)
		if err != nil {
			return err
		}
		if err := tx.Items.UpdateFields(specItemID, map[string]interface{}{
			"requirement_id": nil,
			"option_number":  0,
			"chosen":         false,
		}); err != nil {
			return fmt.Errorf("failed to unlink specification: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityItem, specItemID, spec.InstanceID, domain.ActionUnlinked,
			map[string]interface{}{"requirement_id": requirementID, "option_number": spec.OptionNumber, "chosen": spec.Chosen}, nil, actor.Name)
		if err := tx.ChangeLogs.Create(&entry); err != nil {
			return err
		}
		if err := renumberOptions(tx, requirementID); err != nil {
			return err
		}
		spec.RequirementID = nil
		spec.OptionNumber = 0
		spec.Chosen = false
		return nil
	})
	return s.specResult(ctx, "unlink", actor, spec, true, err, requirementID)
}

// Promote 选中一个规格，同一需求下的其他规格全部取消选中；整个兄弟集合在一个事务内加锁
func (s *linkingService) Promote(ctx context.Context, actor Actor, specItemID uint) ([]model.InstanceItem, error) {
	ctx = newCorrelation(ctx)
	var siblings []model.InstanceItem
	var instanceID, requirementID uint
	var touched []uint
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		spec, reqID, err := s.lockLinkedSpec(tx, actor, specItemID)
		if err != nil {
			return err
		}
		instanceID, requirementID = spec.InstanceID, reqID
		siblings, err = tx.Items.ListByRequirementForUpdate(reqID)
		if err != nil {
			return fmt.Errorf("failed to list options: %w", err)
		}

		var logs []model.ChangeLog
		for i := range siblings {
			sibling := &siblings[i]
			switch {
			case sibling.ID == specItemID && !sibling.Chosen:
				sibling.Chosen = true
				logs = append(logs, changeEntry(ctx, domain.EntityItem, sibling.ID, instanceID, domain.ActionPromoted,
					map[string]interface{}{"chosen": false}, map[string]interface{}{"chosen": true, "requirement_id": reqID}, actor.Name))
			case sibling.ID != specItemID && sibling.Chosen:
				sibling.Chosen = false
				logs = append(logs, changeEntry(ctx, domain.EntityItem, sibling.ID, instanceID, domain.ActionDemoted,
					map[string]interface{}{"chosen": true}, map[string]interface{}{"chosen": false, "requirement_id": reqID}, actor.Name))
			default:
				continue
			}
			touched = append(touched, sibling.ID)
			if err := tx.Items.UpdateFields(sibling.ID, map[string]interface{}{"chosen": sibling.Chosen}); err != nil {
				return fmt.Errorf("failed to update chosen flag: %w", err)
			}
		}
		return tx.ChangeLogs.CreateBatch(logs)
	})
	var event *eventbus.ChangeEvent
	if err == nil && len(touched) > 0 {
		event = itemEvent(instanceID, actor, append(touched, requirementID)...)
	}
	if err := s.finish(ctx, "promote", err, event); err != nil {
		return nil, err
	}
	return siblings, nil
}

// ListOptions 按选项号列出需求下的规格及其汇总价格
func (s *linkingService) ListOptions(ctx context.Context, actor Actor, requirementID uint) ([]OptionView, error) {
	repos := s.store.Repos(ctx)
	requirement, err := repos.Items.Get(requirementID)
	if err != nil {
		return nil, lookupError(err, domain.EntityItem, requirementID)
	}
	if _, err := ownedInstance(repos, actor, requirement.InstanceID); err != nil {
		return nil, err
	}
	if err := s.validator.requirement(requirement); err != nil {
		return nil, err
	}
	specs, err := repos.Items.ListByRequirement(requirementID)
	if err != nil {
		return nil, fmt.Errorf("failed to list options: %w", err)
	}

	options := make([]OptionView, len(specs))
	for i := range specs {
		options[i] = OptionView{InstanceItem: specs[i]}
		total, err := rollup.Compute(rollupInput(&specs[i]))
		if err != nil {
			options[i].PricingError = err.Error()
			continue
		}
		options[i].Total = &total
	}
	return options, nil
}

// CreateOption 在需求所在分区新建规格条目并直接挂接
func (s *linkingService) CreateOption(ctx context.Context, actor Actor, requirementID uint, req AddItemRequest) (*model.InstanceItem, error) {
	req.IsSpecItem = true
	item, err := buildInstanceItem(req, s.defaultCurrency)
	if err != nil {
		return nil, s.finish(ctx, "option.create", err, nil)
	}
	ctx = newCorrelation(ctx)
	err = s.store.Transaction(ctx, func(tx *repository.Repos) error {
		requirement, err := lockedItem(tx, actor, requirementID)
		if err != nil {
			return err
		}
		if err := s.validator.requirement(requirement); err != nil {
			return err
		}
		siblings, err := tx.Items.ListByRequirementForUpdate(requirementID)
		if err != nil {
			return fmt.Errorf("failed to list options: %w", err)
		}
		maxSort, err := tx.Items.MaxSortOrder(requirement.SectionID)
		if err != nil {
			return fmt.Errorf("failed to get max sort order: %w", err)
		}
		item.InstanceID = requirement.InstanceID
		item.SectionID = requirement.SectionID
		item.RequirementID = &requirementID
		item.OptionNumber = len(siblings) + 1
		if item.SortOrder == 0 {
			item.SortOrder = maxSort + 1
		}
		if item.Category == "" {
			item.Category = requirement.Category
		}
		if err := tx.Items.Create(item); err != nil {
			return fmt.Errorf("failed to create specification: %w", err)
		}
		logs := []model.ChangeLog{
			changeEntry(ctx, domain.EntityItem, item.ID, item.InstanceID, domain.ActionCreated, nil, itemSnapshot(item), actor.Name),
			changeEntry(ctx, domain.EntityItem, item.ID, item.InstanceID, domain.ActionLinked, nil,
				map[string]interface{}{"requirement_id": requirementID, "option_number": item.OptionNumber}, actor.Name),
		}
		return tx.ChangeLogs.CreateBatch(logs)
	})
	return s.specResult(ctx, "option.create", actor, item, true, err, requirementID)
}

// lockLinkedSpec 先锁需求再锁规格，与 Link 的加锁顺序一致
func (s *linkingService) lockLinkedSpec(tx *repository.Repos, actor Actor, specItemID uint) (*model.InstanceItem, uint, error) {
	peek, err := tx.Items.Get(specItemID)
	if err != nil {
		return nil, 0, lookupError(err, domain.EntityItem, specItemID)
	}
	if err := s.validator.linked(peek); err != nil {
		return nil, 0, err
	}
	requirementID := *peek.RequirementID
	if _, err := lockedItem(tx, actor, requirementID); err != nil {
		return nil, 0, err
	}
	spec, err := lockedItem(tx, actor, specItemID)
	if err != nil {
		return nil, 0, err
	}
	if spec.RequirementID == nil || *spec.RequirementID != requirementID {
		return nil, 0, domain.Conflict(domain.EntityItem, specItemID, "specification link changed concurrently")
	}
	return spec, requirementID, nil
}

func (s *linkingService) specResult(ctx context.Context, operation string, actor Actor, spec *model.InstanceItem, changed bool, err error, requirementID uint) (*model.InstanceItem, error) {
	var event *eventbus.ChangeEvent
	if err == nil && changed {
		event = itemEvent(spec.InstanceID, actor, spec.ID, requirementID)
	}
	if err := s.finish(ctx, operation, err, event); err != nil {
		return nil, err
	}
	return spec, nil
}

// renumberOptions 把需求下剩余规格的选项号压缩为 1..N
func renumberOptions(tx *repository.Repos, requirementID uint) error {
	siblings, err := tx.Items.ListByRequirementForUpdate(requirementID)
	if err != nil {
		return fmt.Errorf("failed to list options: %w", err)
	}
	for i, sibling := range siblings {
		if sibling.OptionNumber == i+1 {
			continue
		}
		if err := tx.Items.UpdateFields(sibling.ID, map[string]interface{}{"option_number": i + 1}); err != nil {
			return fmt.Errorf("failed to renumber option: %w", err)
		}
	}
	return nil
}

// unlinkDangling 需求被删除前解除所有挂在其下的规格，并逐条记日志
func unlinkDangling(ctx context.Context, tx *repository.Repos, actor Actor, requirementIDs []uint, skip map[uint]bool) error {
	var logs []model.ChangeLog
	for _, reqID := range requirementIDs {
		specs, err := tx.Items.ListByRequirement(reqID)
		if err != nil {
			return fmt.Errorf("failed to list options: %w", err)
		}
		for _, spec := range specs {
			if skip[spec.ID] {
				continue
			}
			logs = append(logs, changeEntry(ctx, domain.EntityItem, spec.ID, spec.InstanceID, domain.ActionUnlinked,
				map[string]interface{}{"requirement_id": reqID, "option_number": spec.OptionNumber, "chosen": spec.Chosen}, nil, actor.Name))
		}
	}
	if _, err := tx.Items.UnlinkByRequirements(requirementIDs); err != nil {
		return fmt.Errorf("failed to unlink specifications: %w", err)
	}
	return tx.ChangeLogs.CreateBatch(logs)
}

func rollupInput(item *model.InstanceItem) rollup.Input {
	in := rollup.Input{
		UnitCost:      item.UnitCost,
		Quantity:      item.Quantity,
		MarkupPercent: item.MarkupPercent,
		Currency:      item.Currency,
		Components:    make([]rollup.Component, len(item.Components)),
	}
	for i, c := range item.Components {
		in.Components[i] = rollup.Component{UnitPrice: c.UnitPrice, Quantity: c.Quantity, Currency: c.Currency}
	}
	return in
}

// pricingError 把汇总的币种错误转为带条目 ID 的业务错误
func pricingError(err error, itemID uint) error {
	var mismatch *rollup.MismatchError
	if errors.As(err, &mismatch) {
		return domain.CurrencyMismatch(domain.EntityItem, itemID, mismatch.Want, mismatch.Got)
	}
	return err
}
