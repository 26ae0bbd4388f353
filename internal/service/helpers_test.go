package service

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/eventbus"
	"github.com/studiodesk/ffetrack/internal/model"
	"github.com/studiodesk/ffetrack/internal/pkg/database"
	"github.com/studiodesk/ffetrack/internal/pkg/metrics"
	"github.com/studiodesk/ffetrack/internal/repository"
	"gorm.io/gorm"
)

type testEnv struct {
	db      *gorm.DB
	store   repository.Store
	bus     *eventbus.ChangeEventBus
	metrics *metrics.Metrics
	actor   Actor

	templates    TemplateService
	rooms        RoomService
	materializer MaterializerService
	items        ItemService
	tree         InstanceTreeService
	linking      LinkingService
	pricing      PricingService
	changeLogs   ChangeLogService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	store := repository.NewStore(db)
	bus := eventbus.NewChangeEventBus()
	m := metrics.New(prometheus.NewRegistry())
	return &testEnv{
		db:           db,
		store:        store,
		bus:          bus,
		metrics:      m,
		actor:        Actor{OrganizationID: 1, Name: "designer@studio.test"},
		templates:    NewTemplateService(store, bus, m),
		rooms:        NewRoomService(store, bus, m),
		materializer: NewMaterializerService(store, bus, m, "USD"),
		items:        NewItemService(store, bus, m, nil),
		tree:         NewInstanceTreeService(store, bus, m, "USD"),
		linking:      NewLinkingService(store, bus, m, "USD"),
		pricing:      NewPricingService(store),
		changeLogs:   NewChangeLogService(store),
	}
}

// createMasterBath 创建 "Master Bath v2"：Plumbing(Vanity Faucet 必选, Shower Head)、Lighting(Sconce)
func (e *testEnv) createMasterBath(t *testing.T) *TemplateDetailDTO {
	t.Helper()
	template, err := e.templates.Create(context.Background(), e.actor, CreateTemplateRequest{
		Name: "Master Bath v2",
		Sections: []TemplateSectionRequest{
			{Name: "Plumbing", Items: []TemplateItemRequest{
				{Name: "Vanity Faucet", Category: "Plumbing Fixtures", Required: true},
				{Name: "Shower Head", Category: "Plumbing Fixtures"},
			}},
			{Name: "Lighting", Items: []TemplateItemRequest{
				{Name: "Sconce", Category: "Lighting"},
			}},
		},
	})
	require.NoError(t, err)
	return template
}

func (e *testEnv) createRoom(t *testing.T, name string) *model.Room {
	t.Helper()
	room, err := e.rooms.Create(context.Background(), e.actor, CreateRoomRequest{Name: name, ProjectID: 10})
	require.NoError(t, err)
	return room
}

// materializeMasterBath 返回物化后的实例树
func (e *testEnv) materializeMasterBath(t *testing.T) *model.RoomInstance {
	t.Helper()
	template := e.createMasterBath(t)
	room := e.createRoom(t, "Room R")
	result, err := e.materializer.Materialize(context.Background(), e.actor, MaterializeRequest{RoomID: room.ID, TemplateID: &template.ID})
	require.NoError(t, err)
	require.True(t, result.Created)
	return result.Instance
}

// addSpec 在需求下新建规格条目
func (e *testEnv) addSpec(t *testing.T, requirementID uint, name string, unitCost int64) *model.InstanceItem {
	t.Helper()
	spec, err := e.linking.CreateOption(context.Background(), e.actor, requirementID, AddItemRequest{
		Name:     name,
		UnitCost: decimal.NewFromInt(unitCost),
	})
	require.NoError(t, err)
	return spec
}

func (e *testEnv) reload(t *testing.T, itemID uint) *model.InstanceItem {
	t.Helper()
	item, err := e.store.Repos(context.Background()).Items.Get(itemID)
	require.NoError(t, err)
	return item
}

func (e *testEnv) countLogs(t *testing.T, action domain.ChangeAction) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&model.ChangeLog{}).Where("action = ?", action).Count(&count).Error)
	return count
}

func (e *testEnv) totalLogs(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&model.ChangeLog{}).Count(&count).Error)
	return count
}

func findItem(t *testing.T, instance *model.RoomInstance, name string) model.InstanceItem {
	t.Helper()
	for _, section := range instance.Sections {
		for _, item := range section.Items {
			if item.Name == name {
				return item
			}
		}
	}
	t.Fatalf("item %q not found", name)
	return model.InstanceItem{}
}

func findSection(t *testing.T, instance *model.RoomInstance, name string) model.InstanceSection {
	t.Helper()
	for _, section := range instance.Sections {
		if section.Name == name {
			return section
		}
	}
	t.Fatalf("section %q not found", name)
	return model.InstanceSection{}
}
