package service

import (
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/model"
)

// linkValidator 挂接规则：需求条目与规格条目同属一个实例，规格条目只能挂在一个需求下
type linkValidator struct{}

func (linkValidator) requirement(item *model.InstanceItem) error {
	if item.IsSpecItem {
		return domain.InvalidArgument(domain.EntityItem, item.ID, "item is a specification, not a requirement")
	}
	if item.RequirementID != nil {
		return domain.InvalidArgument(domain.EntityItem, item.ID, "requirement item must not reference another requirement")
	}
	return nil
}

func (linkValidator) spec(item *model.InstanceItem) error {
	if !item.IsSpecItem {
		return domain.InvalidArgument(domain.EntityItem, item.ID, "item is not a specification")
	}
	return nil
}

// link 返回 nil 且 already 为 true 表示已挂在同一需求下
func (v linkValidator) link(requirement, spec *model.InstanceItem) (already bool, err error) {
	if requirement.ID == spec.ID {
		return false, domain.InvalidArgument(domain.EntityItem, spec.ID, "item cannot be linked to itself")
	}
	if err := v.requirement(requirement); err != nil {
		return false, err
	}
	if err := v.spec(spec); err != nil {
		return false, err
	}
	if requirement.InstanceID != spec.InstanceID {
		return false, domain.Forbidden(domain.EntityItem, spec.ID, "cannot link items across room instances")
	}
	if spec.RequirementID != nil {
		if *spec.RequirementID == requirement.ID {
			return true, nil
		}
		return false, domain.Conflict(domain.EntityItem, spec.ID, "specification is already linked elsewhere")
	}
	return false, nil
}

// linked 规格条目必须已挂接
func (v linkValidator) linked(spec *model.InstanceItem) error {
	if err := v.spec(spec); err != nil {
		return err
	}
	if spec.RequirementID == nil {
		return domain.InvalidArgument(domain.EntityItem, spec.ID, "specification is not linked to a requirement")
	}
	return nil
}
