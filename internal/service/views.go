package service

import (
	"math"
	"sort"

	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/model"
	"github.com/studiodesk/ffetrack/internal/service/statemachine"
)

// ItemView 视图中的条目；需求条目下挂接其规格选项
type ItemView struct {
	model.InstanceItem
	Decided       bool               `json:"decided"`
	AllowedStates []domain.ItemState `json:"allowed_states"`
	Options       []ItemView         `json:"options,omitempty"`
}

// Progress 只统计需求条目；有可见必选需求时以其为分母
type Progress struct {
	Total             int     `json:"total"`
	Completed         int     `json:"completed"`
	Decided           int     `json:"decided"`
	CompletionPercent float64 `json:"completion_percent"`
	DecisionPercent   float64 `json:"decision_percent"`
}

type SectionView struct {
	ID        uint       `json:"id"`
	Name      string     `json:"name"`
	SortOrder int        `json:"sort_order"`
	Items     []ItemView `json:"items"`
	Progress  Progress   `json:"progress"`
}

// InstanceView 策划视图（全部条目）或执行视图（仅可见条目）
type InstanceView struct {
	InstanceID      uint          `json:"instance_id"`
	RoomID          uint          `json:"room_id"`
	TemplateID      *uint         `json:"template_id"`
	TemplateVersion int           `json:"template_version"`
	Sections        []SectionView `json:"sections"`
	Progress        Progress      `json:"progress"`
}

// viewBuilder 把平铺的条目按分区组装，并把规格条目挂到其需求下
type viewBuilder struct {
	sm *statemachine.ItemStateMachine
	// 需求 ID -> 是否存在被选中的规格（不论可见性）
	chosen map[uint]bool
}

func (b *viewBuilder) build(instance *model.RoomInstance, sections []model.InstanceSection, items []model.InstanceItem) *InstanceView {
	view := &InstanceView{
		InstanceID:      instance.ID,
		RoomID:          instance.RoomID,
		TemplateID:      instance.TemplateID,
		TemplateVersion: instance.TemplateVersion,
		Sections:        make([]SectionView, 0, len(sections)),
	}

	present := make(map[uint]bool, len(items))
	for _, item := range items {
		if item.IsRequirement() {
			present[item.ID] = true
		}
	}
	options := make(map[uint][]ItemView)
	bySection := make(map[uint][]ItemView)
	for _, item := range items {
		if item.IsSpecItem && item.RequirementID != nil && present[*item.RequirementID] {
			options[*item.RequirementID] = append(options[*item.RequirementID], b.itemView(item))
			continue
		}
		bySection[item.SectionID] = append(bySection[item.SectionID], b.itemView(item))
	}

	var all []model.InstanceItem
	for _, section := range sections {
		rows := bySection[section.ID]
		var requirements []model.InstanceItem
		for i := range rows {
			if opts, ok := options[rows[i].ID]; ok {
				sort.SliceStable(opts, func(a, c int) bool { return opts[a].OptionNumber < opts[c].OptionNumber })
				rows[i].Options = opts
			}
			if rows[i].IsRequirement() {
				requirements = append(requirements, rows[i].InstanceItem)
			}
		}
		if rows == nil {
			rows = []ItemView{}
		}
		view.Sections = append(view.Sections, SectionView{
			ID:        section.ID,
			Name:      section.Name,
			SortOrder: section.SortOrder,
			Items:     rows,
			Progress:  computeProgress(requirements, b.chosen),
		})
		all = append(all, requirements...)
	}
	view.Progress = computeProgress(all, b.chosen)
	return view
}

func (b *viewBuilder) itemView(item model.InstanceItem) ItemView {
	return ItemView{
		InstanceItem:  item,
		Decided:       item.IsRequirement() && isDecided(item, b.chosen),
		AllowedStates: b.sm.AllowedTargets(item.State),
	}
}

// isDecided 自身状态已决策，或存在被选中的挂接规格
func isDecided(item model.InstanceItem, chosen map[uint]bool) bool {
	return statemachine.IsDecided(item.State) || chosen[item.ID]
}

// computeProgress 只计入可见的需求条目
func computeProgress(items []model.InstanceItem, chosen map[uint]bool) Progress {
	var visible, required []model.InstanceItem
	for _, item := range items {
		if item.IsSpecItem || item.Visibility != domain.VisibilityVisible {
			continue
		}
		visible = append(visible, item)
		if item.Required {
			required = append(required, item)
		}
	}
	considered := visible
	if len(required) > 0 {
		considered = required
	}

	p := Progress{Total: len(considered)}
	for _, item := range considered {
		if item.State == domain.StateCompleted {
			p.Completed++
		}
		if isDecided(item, chosen) {
			p.Decided++
		}
	}
	p.CompletionPercent = percent(p.Completed, p.Total)
	p.DecisionPercent = percent(p.Decided, p.Total)
	return p
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)*10000/float64(total)) / 100
}
