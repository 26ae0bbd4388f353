package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/eventbus"
	"github.com/studiodesk/ffetrack/internal/model"
	"github.com/studiodesk/ffetrack/internal/pkg/metrics"
	"github.com/studiodesk/ffetrack/internal/repository"
	"k8s.io/klog/v2"
)

// CreateRoomRequest 创建房间请求
type CreateRoomRequest struct {
	Name      string `json:"name" binding:"required,min=1,max=255"`
	ProjectID uint   `json:"project_id"`
}

// RoomService 房间的最小管理：创建、归档、删除（删除时级联删除 FFE 实例）
type RoomService interface {
	Create(ctx context.Context, actor Actor, req CreateRoomRequest) (*model.Room, error)
	Get(ctx context.Context, actor Actor, id uint) (*model.Room, error)
	Archive(ctx context.Context, actor Actor, id uint) (*model.Room, error)
	Delete(ctx context.Context, actor Actor, id uint) error
}

type roomService struct {
	engine
}

func NewRoomService(store repository.Store, bus *eventbus.ChangeEventBus, m *metrics.Metrics) RoomService {
	return &roomService{engine: newEngine(store, bus, m)}
}

func (s *roomService) Create(ctx context.Context, actor Actor, req CreateRoomRequest) (*model.Room, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, s.finish(ctx, "room.create", domain.InvalidArgument(domain.EntityRoom, 0, "name is required"), nil)
	}
	room := &model.Room{
		OrganizationID: actor.OrganizationID,
		ProjectID:      req.ProjectID,
		Name:           name,
	}
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		if err := tx.Rooms.Create(room); err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityRoom, room.ID, 0, domain.ActionCreated, nil, map[string]interface{}{"name": room.Name}, actor.Name)
		return tx.ChangeLogs.Create(&entry)
	})
	if err := s.finish(ctx, "room.create", err, nil); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *roomService) Get(ctx context.Context, actor Actor, id uint) (*model.Room, error) {
	return ownedRoom(s.store.Repos(ctx), actor, id)
}

// Archive 归档后不能再物化；已存在的实例保留
func (s *roomService) Archive(ctx context.Context, actor Actor, id uint) (*model.Room, error) {
	var room *model.Room
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		var err error
		room, err = ownedRoom(tx, actor, id)
		if err != nil {
			return err
		}
		if room.Archived {
			return nil
		}
		now := time.Now()
		room.Archived = true
		room.ArchivedAt = &now
		if err := tx.Rooms.Save(room); err != nil {
			return fmt.Errorf("failed to archive room: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityRoom, id, 0, domain.ActionUpdated,
			map[string]interface{}{"archived": false}, map[string]interface{}{"archived": true}, actor.Name)
		return tx.ChangeLogs.Create(&entry)
	})
	if err := s.finish(ctx, "room.archive", err, nil); err != nil {
		return nil, err
	}
	return room, nil
}

// Delete 删除房间，其 FFE 实例整棵树一并删除
func (s *roomService) Delete(ctx context.Context, actor Actor, id uint) error {
	var instanceID uint
	err := s.store.Transaction(ctx, func(tx *repository.Repos) error {
		room, err := ownedRoom(tx, actor, id)
		if err != nil {
			return err
		}
		instance, err := tx.Instances.GetBasicByRoomID(id)
		switch {
		case err == nil:
			instanceID = instance.ID
			if err := tx.Instances.Delete(instance.ID); err != nil {
				return fmt.Errorf("failed to delete room instance: %w", err)
			}
			entry := changeEntry(ctx, domain.EntityInstance, instance.ID, instance.ID, domain.ActionInstanceDeleted,
				map[string]interface{}{"room_id": id, "template_id": instance.TemplateID}, nil, actor.Name)
			if err := tx.ChangeLogs.Create(&entry); err != nil {
				return err
			}
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("failed to get room instance: %w", err)
		}

		if err := tx.Rooms.Delete(id); err != nil {
			return fmt.Errorf("failed to delete room: %w", err)
		}
		entry := changeEntry(ctx, domain.EntityRoom, id, instanceID, domain.ActionDeleted, map[string]interface{}{"name": room.Name}, nil, actor.Name)
		return tx.ChangeLogs.Create(&entry)
	})
	var event *eventbus.ChangeEvent
	if instanceID != 0 {
		event = instanceEvent(instanceID, actor)
		klog.V(6).Infof("房间删除，实例已级联删除: roomID=%d, instanceID=%d", id, instanceID)
	}
	return s.finish(ctx, "room.delete", err, event)
}

// ownedRoom 读取房间并校验组织归属
func ownedRoom(repos *repository.Repos, actor Actor, id uint) (*model.Room, error) {
	room, err := repos.Rooms.Get(id)
	if err != nil {
		return nil, lookupError(err, domain.EntityRoom, id)
	}
	if room.OrganizationID != actor.OrganizationID {
		return nil, domain.Forbidden(domain.EntityRoom, id, "room belongs to another organization")
	}
	return room, nil
}

func instanceEvent(instanceID uint, actor Actor) *eventbus.ChangeEvent {
	return &eventbus.ChangeEvent{
		Type:       eventbus.ChangeEventInstance,
		InstanceID: instanceID,
		EntityType: domain.EntityInstance,
		EntityIDs:  []uint{instanceID},
		Actor:      actor.Name,
	}
}

func itemEvent(instanceID uint, actor Actor, ids ...uint) *eventbus.ChangeEvent {
	return &eventbus.ChangeEvent{
		Type:       eventbus.ChangeEventItem,
		InstanceID: instanceID,
		EntityType: domain.EntityItem,
		EntityIDs:  ids,
		Actor:      actor.Name,
	}
}
