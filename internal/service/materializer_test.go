package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/model"
)

func TestMaterializeCopiesTemplate(t *testing.T) {
	env := newTestEnv(t)
	instance := env.materializeMasterBath(t)

	require.Len(t, instance.Sections, 2)
	plumbing := findSection(t, instance, "Plumbing")
	require.Len(t, plumbing.Items, 2)

	faucet := findItem(t, instance, "Vanity Faucet")
	assert.Equal(t, domain.StatePending, faucet.State)
	assert.Equal(t, domain.VisibilityVisible, faucet.Visibility)
	assert.Equal(t, instance.ID, faucet.InstanceID)
	assert.False(t, faucet.IsSpecItem)
	assert.Equal(t, "USD", faucet.Currency)

	shower := findItem(t, instance, "Shower Head")
	assert.Equal(t, domain.VisibilityHidden, shower.Visibility)

	stored, err := env.materializer.GetInstance(context.Background(), env.actor, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "Plumbing", stored.Sections[0].Name)
	assert.Equal(t, "Vanity Faucet", stored.Sections[0].Items[0].Name)
	assert.Equal(t, 1, stored.TemplateVersion)

	assert.EqualValues(t, 1, env.countLogs(t, domain.ActionMaterialized))
}

func TestMaterializeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	instance := env.materializeMasterBath(t)
	template, err := env.templates.List(context.Background(), env.actor)
	require.NoError(t, err)

	before := env.totalLogs(t)
	result, err := env.materializer.Materialize(context.Background(), env.actor, MaterializeRequest{RoomID: instance.RoomID, TemplateID: &template[0].ID})
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, instance.ID, result.Instance.ID)
	assert.Equal(t, before, env.totalLogs(t), "second materialize must not write")

	var instances, items int64
	env.db.Model(&model.RoomInstance{}).Count(&instances)
	env.db.Model(&model.InstanceItem{}).Count(&items)
	assert.EqualValues(t, 1, instances)
	assert.EqualValues(t, 3, items)
}

func TestMaterializeBlankInstance(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, "Powder Room")

	result, err := env.materializer.Materialize(context.Background(), env.actor, MaterializeRequest{RoomID: room.ID})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Nil(t, result.Instance.TemplateID)
	assert.Empty(t, result.Instance.Sections)
}

func TestMaterializeErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	template := env.createMasterBath(t)

	_, err := env.materializer.Materialize(ctx, env.actor, MaterializeRequest{RoomID: 404, TemplateID: &template.ID})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	room := env.createRoom(t, "Guest Bath")
	missing := uint(999)
	_, err = env.materializer.Materialize(ctx, env.actor, MaterializeRequest{RoomID: room.ID, TemplateID: &missing})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	other := Actor{OrganizationID: 2, Name: "other@studio.test"}
	foreign, err := env.templates.Create(ctx, other, CreateTemplateRequest{Name: "Foreign"})
	require.NoError(t, err)
	_, err = env.materializer.Materialize(ctx, env.actor, MaterializeRequest{RoomID: room.ID, TemplateID: &foreign.ID})
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	_, err = env.rooms.Archive(ctx, env.actor, room.ID)
	require.NoError(t, err)
	_, err = env.materializer.Materialize(ctx, env.actor, MaterializeRequest{RoomID: room.ID, TemplateID: &template.ID})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	var instances int64
	env.db.Model(&model.RoomInstance{}).Count(&instances)
	assert.EqualValues(t, 0, instances)
}

func TestTemplateEditsDoNotAffectInstances(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	instance := env.materializeMasterBath(t)
	plumbing := findSection(t, instance, "Plumbing")
	faucet := findItem(t, instance, "Vanity Faucet")

	_, err := env.templates.UpdateItem(ctx, env.actor, *faucet.TemplateItemID, TemplateItemRequest{Name: "Widespread Faucet", Required: true})
	require.NoError(t, err)
	_, err = env.templates.AddItem(ctx, env.actor, *plumbing.TemplateSectionID, TemplateItemRequest{Name: "Tub Filler"})
	require.NoError(t, err)

	assert.Equal(t, "Vanity Faucet", env.reload(t, faucet.ID).Name)
	tree, err := env.materializer.GetInstance(ctx, env.actor, instance.ID)
	require.NoError(t, err)
	assert.Len(t, findSection(t, tree, "Plumbing").Items, 2)
}

func TestResyncAddsOnlyMissing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	instance := env.materializeMasterBath(t)
	plumbing := findSection(t, instance, "Plumbing")
	faucet := findItem(t, instance, "Vanity Faucet")

	_, err := env.items.SetState(ctx, env.actor, faucet.ID, domain.StateUndecided)
	require.NoError(t, err)
	_, err = env.templates.AddItem(ctx, env.actor, *plumbing.TemplateSectionID, TemplateItemRequest{Name: "Tub Filler"})
	require.NoError(t, err)
	_, err = env.templates.AddSection(ctx, env.actor, *instance.TemplateID, TemplateSectionRequest{
		Name:  "Accessories",
		Items: []TemplateItemRequest{{Name: "Towel Bar"}, {Name: "Mirror", Required: true}},
	})
	require.NoError(t, err)

	result, err := env.materializer.Resync(ctx, env.actor, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.AddedSections)
	assert.Equal(t, 3, result.AddedItems)
	assert.Equal(t, 3, result.TemplateVersion)

	tree, err := env.materializer.GetInstance(ctx, env.actor, instance.ID)
	require.NoError(t, err)
	assert.Len(t, tree.Sections, 3)
	assert.Len(t, findSection(t, tree, "Plumbing").Items, 3)
	mirror := findItem(t, tree, "Mirror")
	assert.Equal(t, instance.ID, mirror.InstanceID)
	assert.Equal(t, domain.VisibilityVisible, mirror.Visibility)
	assert.Equal(t, domain.StateUndecided, env.reload(t, faucet.ID).State, "resync must not touch existing items")
	assert.EqualValues(t, 1, env.countLogs(t, domain.ActionResynced))

	again, err := env.materializer.Resync(ctx, env.actor, instance.ID)
	require.NoError(t, err)
	assert.Zero(t, again.AddedItems)
	assert.EqualValues(t, 1, env.countLogs(t, domain.ActionResynced))
}

func TestRoomDeleteCascadesInstance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	instance := env.materializeMasterBath(t)

	require.NoError(t, env.rooms.Delete(ctx, env.actor, instance.RoomID))

	_, err := env.materializer.GetInstance(ctx, env.actor, instance.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	var items int64
	env.db.Model(&model.InstanceItem{}).Count(&items)
	assert.Zero(t, items)
	assert.EqualValues(t, 1, env.countLogs(t, domain.ActionInstanceDeleted))
}
