package statemachine

import (
	"fmt"

	"github.com/studiodesk/ffetrack/internal/domain"
	"k8s.io/klog/v2"
)

// ItemTransition 定义条目状态迁移
type ItemTransition struct {
	From domain.ItemState
	To   domain.ItemState
}

// ItemStateMachine 条目完成状态机，与可见性无关
type ItemStateMachine struct {
	// 定义所有合法的状态迁移
	allowedTransitions map[ItemTransition]bool
}

// NewItemStateMachine 创建新的条目状态机
func NewItemStateMachine() *ItemStateMachine {
	sm := &ItemStateMachine{
		allowedTransitions: make(map[ItemTransition]bool),
	}

	// 定义合法的状态迁移路径
	// PENDING -> UNDECIDED -> SELECTED -> CONFIRMED/NOT_NEEDED -> COMPLETED
	// 任意状态 -> PENDING（重新打开）
	transitions := []ItemTransition{
		// 决策流程
		{domain.StatePending, domain.StateUndecided},
		{domain.StateUndecided, domain.StateSelected},
		{domain.StateSelected, domain.StateConfirmed},
		{domain.StateSelected, domain.StateNotNeeded},

		// 完成
		{domain.StateSelected, domain.StateCompleted},
		{domain.StateConfirmed, domain.StateCompleted},
		{domain.StateNotNeeded, domain.StateCompleted},

		// 重新打开
		{domain.StateUndecided, domain.StatePending},
		{domain.StateSelected, domain.StatePending},
		{domain.StateConfirmed, domain.StatePending},
		{domain.StateNotNeeded, domain.StatePending},
		{domain.StateCompleted, domain.StatePending},
	}

	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}

	return sm
}

// CanTransition 检查状态迁移是否合法
func (sm *ItemStateMachine) CanTransition(from, to domain.ItemState) bool {
	if from == to {
		return false // 不允许状态不变
	}
	return sm.allowedTransitions[ItemTransition{From: from, To: to}]
}

// ValidateTransition 验证状态迁移并返回错误
func (sm *ItemStateMachine) ValidateTransition(from, to domain.ItemState) error {
	if !sm.CanTransition(from, to) {
		return &InvalidItemStateTransitionError{
			From: string(from),
			To:   string(to),
		}
	}
	return nil
}

// Transition 执行状态迁移（带日志）
func (sm *ItemStateMachine) Transition(from, to domain.ItemState, itemID uint) error {
	if err := sm.ValidateTransition(from, to); err != nil {
		klog.V(6).Infof("条目状态迁移被拒绝: itemID=%d, %s -> %s, error=%v",
			itemID, from, to, err)
		return err
	}

	klog.V(6).Infof("条目状态迁移成功: itemID=%d, %s -> %s", itemID, from, to)
	return nil
}

// AllowedTargets 返回从 from 出发的合法目标状态，供前端渲染按钮
func (sm *ItemStateMachine) AllowedTargets(from domain.ItemState) []domain.ItemState {
	var targets []domain.ItemState
	for _, to := range []domain.ItemState{
		domain.StatePending, domain.StateUndecided, domain.StateSelected,
		domain.StateConfirmed, domain.StateNotNeeded, domain.StateCompleted,
	} {
		if sm.CanTransition(from, to) {
			targets = append(targets, to)
		}
	}
	return targets
}

// InvalidItemStateTransitionError 无效的条目状态迁移错误
type InvalidItemStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidItemStateTransitionError) Error() string {
	return fmt.Sprintf("invalid item state transition: %s -> %s", e.From, e.To)
}

// IsDecided 需求条目自身状态是否已表明完成决策
func IsDecided(state domain.ItemState) bool {
	switch state {
	case domain.StateSelected, domain.StateConfirmed, domain.StateNotNeeded, domain.StateCompleted:
		return true
	}
	return false
}
