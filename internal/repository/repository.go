package repository

import (
	"context"
	"errors"

	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

type RoomRepository interface {
	Create(room *model.Room) error
	Get(id uint) (*model.Room, error)
	Save(room *model.Room) error
	Delete(id uint) error
}

// TemplateRepository FFE 模板 Repository 接口
type TemplateRepository interface {
	ListByOrganization(orgID uint) ([]model.FFETemplate, error)
	GetByID(id uint) (*model.FFETemplate, error)
	GetBasic(id uint) (*model.FFETemplate, error)
	GetByName(orgID uint, name string) (*model.FFETemplate, error)
	Create(template *model.FFETemplate) error
	Update(template *model.FFETemplate) error
	BumpVersion(id uint) error
	Delete(id uint) error
}

// TemplateSectionRepository 模板分区 Repository 接口
type TemplateSectionRepository interface {
	GetByID(id uint) (*model.TemplateSection, error)
	GetByTemplateID(templateID uint) ([]model.TemplateSection, error)
	Create(section *model.TemplateSection) error
	Update(section *model.TemplateSection) error
	Delete(id uint) error
}

// TemplateItemRepository 模板条目 Repository 接口
type TemplateItemRepository interface {
	GetByID(id uint) (*model.TemplateItem, error)
	GetBySectionID(sectionID uint) ([]model.TemplateItem, error)
	Create(item *model.TemplateItem) error
	Update(item *model.TemplateItem) error
	Delete(id uint) error
}

type InstanceRepository interface {
	Create(instance *model.RoomInstance) error
	GetTree(id uint) (*model.RoomInstance, error)
	GetBasic(id uint) (*model.RoomInstance, error)
	GetBasicByRoomID(roomID uint) (*model.RoomInstance, error)
	CountByTemplateID(templateID uint) (int64, error)
	SetTemplateVersion(id uint, version int) error
	Delete(id uint) error
}

type SectionRepository interface {
	Create(section *model.InstanceSection) error
	Get(id uint) (*model.InstanceSection, error)
	GetByInstanceID(instanceID uint) ([]model.InstanceSection, error)
	MaxSortOrder(instanceID uint) (int, error)
	Delete(id uint) error
}

type ItemRepository interface {
	Create(item *model.InstanceItem) error
	Get(id uint) (*model.InstanceItem, error)
	GetForUpdate(id uint) (*model.InstanceItem, error)
	ListByInstance(instanceID uint) ([]model.InstanceItem, error)
	ListBySection(sectionID uint) ([]model.InstanceItem, error)
	ListVisibleByInstance(instanceID uint) ([]model.InstanceItem, error)
	ListByRequirement(requirementID uint) ([]model.InstanceItem, error)
	ListByRequirementForUpdate(requirementID uint) ([]model.InstanceItem, error)
	ListChosenSpecs(instanceID uint) ([]model.InstanceItem, error)
	MaxSortOrder(sectionID uint) (int, error)
	Save(item *model.InstanceItem) error
	UpdateFields(id uint, fields map[string]interface{}) error
	SetVisibility(ids []uint, visibility domain.Visibility) (int64, error)
	UnlinkByRequirements(requirementIDs []uint) (int64, error)
	Delete(id uint) error
}

type ComponentRepository interface {
	Create(component *model.ItemComponent) error
	Get(id uint) (*model.ItemComponent, error)
	ListByItems(itemIDs []uint) ([]model.ItemComponent, error)
	Save(component *model.ItemComponent) error
	Delete(id uint) error
}

type ChangeLogRepository interface {
	Create(log *model.ChangeLog) error
	CreateBatch(logs []model.ChangeLog) error
	ListByEntity(entityType domain.EntityType, entityID uint, limit, offset int) ([]model.ChangeLog, error)
	ListByInstance(instanceID uint, limit, offset int) ([]model.ChangeLog, error)
	CountByInstance(instanceID uint) (int64, error)
}

// Repos 同一个 *gorm.DB（或事务）上的全部 Repository
type Repos struct {
	Rooms            RoomRepository
	Templates        TemplateRepository
	TemplateSections TemplateSectionRepository
	TemplateItems    TemplateItemRepository
	Instances        InstanceRepository
	Sections         SectionRepository
	Items            ItemRepository
	Components       ComponentRepository
	ChangeLogs       ChangeLogRepository
}

// NewRepos 基于 db 构造全部 Repository
func NewRepos(db *gorm.DB) *Repos {
	return &Repos{
		Rooms:            NewRoomRepository(db),
		Templates:        NewTemplateRepository(db),
		TemplateSections: NewTemplateSectionRepository(db),
		TemplateItems:    NewTemplateItemRepository(db),
		Instances:        NewInstanceRepository(db),
		Sections:         NewSectionRepository(db),
		Items:            NewItemRepository(db),
		Components:       NewComponentRepository(db),
		ChangeLogs:       NewChangeLogRepository(db),
	}
}

// Store 提供只读访问和单事务的读改写
type Store interface {
	Repos(ctx context.Context) *Repos
	Transaction(ctx context.Context, fn func(tx *Repos) error) error
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Repos(ctx context.Context) *Repos {
	return NewRepos(s.db.WithContext(ctx))
}

// Transaction fn 返回错误时整体回滚
func (s *gormStore) Transaction(ctx context.Context, fn func(tx *Repos) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepos(tx))
	})
}

// forUpdate 行锁；SQLite 不支持 FOR UPDATE，写事务本身已串行
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
