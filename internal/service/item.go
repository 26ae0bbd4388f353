package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/eventbus"
	"github.com/studiodesk/ffetrack/internal/model"
	"github.com/studiodesk/ffetrack/internal/pkg/cache"
	"github.com/studiodesk/ffetrack/internal/pkg/metrics"
	"github.com/studiodesk/ffetrack/internal/repository"
	"github.com/studiodesk/ffetrack/internal/service/statemachine"
	"k8s.io/klog/v2"
)

// BulkVisibilityRequest 批量显示/隐藏
type BulkVisibilityRequest struct {
	Scope      domain.BulkScope  `json:"scope" binding:"required"`
	ScopeID    uint              `json:"scope_id" binding:"required"`
	Visibility domain.Visibility `json:"visibility" binding:"required"`
}

// BulkVisibilityResult Changed 为实际发生变化的条目数
type BulkVisibilityResult struct {
	Changed       int                  `json:"changed"`
	CorrelationID string               `json:"correlation_id,omitempty"`
	Items         []model.InstanceItem `json:"items"`
}

// ItemService 可见性与完成状态是两个互不影响的维度
type ItemService interface {
	Get(ctx context.Context, actor Actor, itemID uint) (*model.InstanceItem, error)
	SetVisibility(ctx context.Context, actor Actor, itemID uint, visibility domain.Visibility) (*model.InstanceItem, error)
	SetState(ctx context.Context, actor Actor, itemID uint, state domain.ItemState) (*model.InstanceItem, error)
	SetNotes(ctx context.Context, actor Actor, itemID uint, notes string) (*model.InstanceItem, error)
	BulkSetVisibility(ctx context.Context, actor Actor, req BulkVisibilityRequest) (*BulkVisibilityResult, error)

	CurationView(ctx context.Context, actor Actor, instanceID uint) (*InstanceView, error)
	ExecutionView(ctx context.Context, actor Actor, instanceID uint) (*InstanceView, error)
	Progress(ctx context.Context, actor Actor, instanceID uint) (*Progress, error)
}

type itemService struct {
	engine
	sm       *statemachine.ItemStateMachine
	progress cache.ProgressCache
}

func NewItemService(store repository.Store, bus *eventbus.ChangeEventBus, m *metrics.Metrics, progress cache.ProgressCache) ItemService {
	if progress == nil {
		progress = cache.NoopProgressCache{}
	}
	return &itemService{
		engine:   newEngine(store, bus, m),
		sm:       statemachine.NewItemStateMachine(),
		progress: progress,
	}
}

func (s *itemService) Get(ctx context.Context, actor Actor, itemID uint) (*model.InstanceItem, error) {
	repos := s.store.Repos(ctx)
	item, err := repos.Items.Get(itemID)
	if err != nil {
		return nil, lookupError(err, domain.EntityItem, itemID)
	}
	if _, err := ownedInstance(repos, actor, item.InstanceID); err != nil {
		return nil, err
	}
	return item, nil
}

// SetVisibility 只修改可见性；目标值与当前值相同时不写入
func (s *itemService) SetVisibility(ctx context.Context, actor Actor, itemID uint, visibility domain.Visibility) (*model.InstanceItem, error) {
	if !visibility.Valid() {
		return nil, s.finish(ctx, "item.visibility", domain.InvalidArgument(domain.EntityItem, itemID, fmt.Sprintf("unknown visibility %q", visibility)), nil)
	}
	var item *model.InstanceItem
	changed := false
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		var err error
		item, err = lockedItem(tx, actor, itemID)
		if err != nil {
			return err
		}
		if item.Visibility == visibility {
			return nil
		}
		if _, err := tx.Items.SetVisibility([]uint{itemID}, visibility); err != nil {
			return fmt.Errorf("failed to set visibility: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityItem, itemID, item.InstanceID, domain.ActionVisibility, item.Visibility, visibility, actor.Name)
		if err := tx.ChangeLogs.Create(&entry); err != nil {
			return err
		}
		item.Visibility = visibility
		changed = true
		return nil
	})
	return s.itemResult(ctx, "item.visibility", actor, item, changed, err)
}

// SetState 按状态机迁移完成状态，不触碰可见性
func (s *itemService) SetState(ctx context.Context, actor Actor, itemID uint, state domain.ItemState) (*model.InstanceItem, error) {
	if !state.Valid() {
		return nil, s.finish(ctx, "item.state", domain.InvalidArgument(domain.EntityItem, itemID, fmt.Sprintf("unknown state %q", state)), nil)
	}
	var item *model.InstanceItem
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		var err error
		item, err = lockedItem(tx, actor, itemID)
		if err != nil {
			return err
		}
		if err := s.sm.Transition(item.State, state, itemID); err != nil {
			return domain.InvalidTransition(domain.EntityItem, itemID, err)
		}
		if err := tx.Items.UpdateFields(itemID, map[string]interface{}{"state": state}); err != nil {
			return fmt.Errorf("failed to set state: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityItem, itemID, item.InstanceID, domain.ActionState, item.State, state, actor.Name)
		if err := tx.ChangeLogs.Create(&entry); err != nil {
			return err
		}
		item.State = state
		return nil
	})
	return s.itemResult(ctx, "item.state", actor, item, true, err)
}

func (s *itemService) SetNotes(ctx context.Context, actor Actor, itemID uint, notes string) (*model.InstanceItem, error) {
	var item *model.InstanceItem
	changed := false
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		var err error
		item, err = lockedItem(tx, actor, itemID)
		if err != nil {
			return err
		}
		if item.Notes == notes {
			return nil
		}
		if err := tx.Items.UpdateFields(itemID, map[string]interface{}{"notes": notes}); err != nil {
			return fmt.Errorf("failed to set notes: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityItem, itemID, item.InstanceID, domain.ActionNotes, item.Notes, notes, actor.Name)
		if err := tx.ChangeLogs.Create(&entry); err != nil {
			return err
		}
		item.Notes = notes
		changed = true
		return nil
	})
	return s.itemResult(ctx, "item.notes", actor, item, changed, err)
}

func (s *itemService) itemResult(ctx context.Context, operation string, actor Actor, item *model.InstanceItem, changed bool, err error) (*model.InstanceItem, error) {
	var event *eventbus.ChangeEvent
	if err == nil && changed {
		event = itemEvent(item.InstanceID, actor, item.ID)
	}
	if err := s.finish(ctx, operation, err, event); err != nil {
		return nil, err
	}
	return item, nil
}

// BulkSetVisibility 整个分区或实例一次性显示/隐藏；单事务内一条 UPDATE，
// 每个变化的条目一条日志，共享同一个关联 ID。任何一步失败全部回滚
func (s *itemService) BulkSetVisibility(ctx context.Context, actor Actor, req BulkVisibilityRequest) (*BulkVisibilityResult, error) {
	if !req.Visibility.Valid() {
		return nil, s.finish(ctx, "item.bulk_visibility", domain.InvalidArgument(domain.EntityItem, 0, fmt.Sprintf("unknown visibility %q", req.Visibility)), nil)
	}
	if req.Scope != domain.ScopeSection && req.Scope != domain.ScopeInstance {
		return nil, s.finish(ctx, "item.bulk_visibility", domain.InvalidArgument(domain.EntityItem, 0, fmt.Sprintf("unknown scope %q", req.Scope)), nil)
	}

	correlation := correlationID(ctx)
	ctx = WithCorrelationID(ctx, correlation)
	result := &BulkVisibilityResult{}
	var instanceID uint
	var changedIDs []uint
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		var items []model.InstanceItem
		switch req.Scope {
		case domain.ScopeSection:
			section, err := tx.Sections.Get(req.ScopeID)
			if err != nil {
				return lookupError(err, domain.EntitySection, req.ScopeID)
			}
			if _, err := ownedInstance(tx, actor, section.InstanceID); err != nil {
				return err
			}
			instanceID = section.InstanceID
			items, err = tx.Items.ListBySection(section.ID)
			if err != nil {
				return fmt.Errorf("failed to list section items: %w", err)
			}
		case domain.ScopeInstance:
			if _, err := ownedInstance(tx, actor, req.ScopeID); err != nil {
				return err
			}
			instanceID = req.ScopeID
			var err error
			items, err = tx.Items.ListByInstance(req.ScopeID)
			if err != nil {
				return fmt.Errorf("failed to list instance items: %w", err)
			}
		}

		var logs []model.ChangeLog
		for i := range items {
			if items[i].Visibility == req.Visibility {
				continue
			}
			changedIDs = append(changedIDs, items[i].ID)
			logs = append(logs, changeEntry(ctx, domain.EntityItem, items[i].ID, instanceID, domain.ActionVisibility, items[i].Visibility, req.Visibility, actor.Name))
			items[i].Visibility = req.Visibility
		}
		result.Items = items
		if len(changedIDs) == 0 {
			return nil
		}
		if _, err := tx.Items.SetVisibility(changedIDs, req.Visibility); err != nil {
			return fmt.Errorf("failed to set visibility: %w", err)
		}
		return tx.ChangeLogs.CreateBatch(logs)
	})
	var event *eventbus.ChangeEvent
	if err == nil && len(changedIDs) > 0 {
		event = itemEvent(instanceID, actor, changedIDs...)
		result.Changed = len(changedIDs)
		result.CorrelationID = correlation
	}
	if err := s.finish(ctx, "item.bulk_visibility", err, event); err != nil {
		return nil, err
	}
	if result.Items == nil {
		result.Items = []model.InstanceItem{}
	}
	return result, nil
}

// CurationView 设置页：全部条目，不论可见性
func (s *itemService) CurationView(ctx context.Context, actor Actor, instanceID uint) (*InstanceView, error) {
	repos := s.store.Repos(ctx)
	if _, err := ownedInstance(repos, actor, instanceID); err != nil {
		return nil, err
	}
	tree, err := repos.Instances.GetTree(instanceID)
	if err != nil {
		return nil, lookupError(err, domain.EntityInstance, instanceID)
	}
	var items []model.InstanceItem
	for _, section := range tree.Sections {
		items = append(items, section.Items...)
	}
	chosen, err := chosenRequirements(repos, instanceID)
	if err != nil {
		return nil, err
	}
	b := &viewBuilder{sm: s.sm, chosen: chosen}
	return b.build(tree, tree.Sections, items), nil
}

// ExecutionView 工作区：只列出可见条目，并刷新进度缓存
func (s *itemService) ExecutionView(ctx context.Context, actor Actor, instanceID uint) (*InstanceView, error) {
	repos := s.store.Repos(ctx)
	instance, err := ownedInstance(repos, actor, instanceID)
	if err != nil {
		return nil, err
	}
	// 代数必须在读取条目之前取得
	generation, genErr := s.progress.Generation(ctx, instanceID)
	if genErr != nil {
		klog.Warningf("读取进度缓存代数失败: instanceID=%d, error=%v", instanceID, genErr)
	}
	sections, err := repos.Sections.GetByInstanceID(instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	items, err := repos.Items.ListVisibleByInstance(instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list visible items: %w", err)
	}
	if err := attachComponents(repos, items); err != nil {
		return nil, err
	}
	chosen, err := chosenRequirements(repos, instanceID)
	if err != nil {
		return nil, err
	}
	b := &viewBuilder{sm: s.sm, chosen: chosen}
	view := b.build(instance, sections, items)
	if genErr == nil {
		s.storeProgress(ctx, instanceID, generation, view.Progress)
	}
	return view, nil
}

// Progress 优先读缓存，未命中时由条目状态重算
func (s *itemService) Progress(ctx context.Context, actor Actor, instanceID uint) (*Progress, error) {
	if _, err := ownedInstance(s.store.Repos(ctx), actor, instanceID); err != nil {
		return nil, err
	}
	data, ok, err := s.progress.Get(ctx, instanceID)
	if err != nil {
		klog.Warningf("读取进度缓存失败: instanceID=%d, error=%v", instanceID, err)
	}
	if ok {
		var p Progress
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
	}
	view, err := s.ExecutionView(ctx, actor, instanceID)
	if err != nil {
		return nil, err
	}
	return &view.Progress, nil
}

func (s *itemService) storeProgress(ctx context.Context, instanceID uint, generation int64, p Progress) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.progress.Set(ctx, instanceID, generation, data); err != nil {
		klog.Warningf("写入进度缓存失败: instanceID=%d, error=%v", instanceID, err)
	}
}

// lockedItem 加锁读取条目并校验组织归属，只能在事务内使用
func lockedItem(tx *repository.Repos, actor Actor, itemID uint) (*model.InstanceItem, error) {
	item, err := tx.Items.GetForUpdate(itemID)
	if err != nil {
		return nil, lookupError(err, domain.EntityItem, itemID)
	}
	if _, err := ownedInstance(tx, actor, item.InstanceID); err != nil {
		return nil, err
	}
	return item, nil
}

// chosenRequirements 返回存在被选中规格的需求 ID
func chosenRequirements(repos *repository.Repos, instanceID uint) (map[uint]bool, error) {
	specs, err := repos.Items.ListChosenSpecs(instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chosen specifications: %w", err)
	}
	chosen := make(map[uint]bool, len(specs))
	for _, spec := range specs {
		if spec.RequirementID != nil {
			chosen[*spec.RequirementID] = true
		}
	}
	return chosen, nil
}

func attachComponents(repos *repository.Repos, items []model.InstanceItem) error {
	var ids []uint
	for _, item := range items {
		if item.IsSpecItem {
			ids = append(ids, item.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	components, err := repos.Components.ListByItems(ids)
	if err != nil {
		return fmt.Errorf("failed to list components: %w", err)
	}
	byItem := make(map[uint][]model.ItemComponent)
	for _, c := range components {
		byItem[c.ItemID] = append(byItem[c.ItemID], c)
	}
	for i := range items {
		items[i].Components = byItem[items[i].ID]
	}
	return nil
}
