package domain

// ItemState FFE 条目的完成状态
type ItemState string

const (
	StatePending   ItemState = "PENDING"    // 初始态/重新打开
	StateUndecided ItemState = "UNDECIDED"  // 待决策
	StateSelected  ItemState = "SELECTED"   // 已选型
	StateConfirmed ItemState = "CONFIRMED"  // 已确认
	StateNotNeeded ItemState = "NOT_NEEDED" // 不需要
	StateCompleted ItemState = "COMPLETED"  // 已完成
)

// Valid 判断是否为已知状态
func (s ItemState) Valid() bool {
	switch s {
	case StatePending, StateUndecided, StateSelected, StateConfirmed, StateNotNeeded, StateCompleted:
		return true
	}
	return false
}

// Visibility 条目在执行视图中是否可见，与状态相互独立
type Visibility string

const (
	VisibilityVisible Visibility = "VISIBLE"
	VisibilityHidden  Visibility = "HIDDEN"
)

func (v Visibility) Valid() bool {
	return v == VisibilityVisible || v == VisibilityHidden
}

// EntityType 变更日志与错误中使用的实体类型
type EntityType string

const (
	EntityTemplate        EntityType = "template"
	EntityTemplateSection EntityType = "template_section"
	EntityTemplateItem    EntityType = "template_item"
	EntityRoom            EntityType = "room"
	EntityInstance        EntityType = "instance"
	EntitySection         EntityType = "section"
	EntityItem            EntityType = "item"
	EntityComponent       EntityType = "component"
)

// ChangeAction 变更日志动作
type ChangeAction string

const (
	ActionMaterialized    ChangeAction = "materialized"
	ActionResynced        ChangeAction = "resynced"
	ActionVisibility      ChangeAction = "visibility_changed"
	ActionState           ChangeAction = "state_changed"
	ActionNotes           ChangeAction = "notes_changed"
	ActionLinked          ChangeAction = "linked"
	ActionUnlinked        ChangeAction = "unlinked"
	ActionPromoted        ChangeAction = "promoted"
	ActionDemoted         ChangeAction = "demoted"
	ActionCreated         ChangeAction = "created"
	ActionUpdated         ChangeAction = "updated"
	ActionDeleted         ChangeAction = "deleted"
	ActionInstanceDeleted ChangeAction = "instance_deleted"
)

// BulkScope 批量可见性操作的作用域
type BulkScope string

const (
	ScopeSection  BulkScope = "section"
	ScopeInstance BulkScope = "instance"
)
