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

func TestTemplateCreateAndGet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createMasterBath(t)

	assert.Equal(t, 1, created.Version)
	assert.Equal(t, env.actor.OrganizationID, created.OrganizationID)

	got, err := env.templates.GetByID(ctx, env.actor, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Sections, 2)
	assert.Equal(t, "Plumbing", got.Sections[0].Name)
	require.Len(t, got.Sections[0].Items, 2)
	assert.True(t, got.Sections[0].Items[0].Required)
	assert.Equal(t, domain.StatePending, got.Sections[0].Items[0].DefaultState)

	_, err = env.templates.Create(ctx, env.actor, CreateTemplateRequest{Name: "Master Bath v2"})
	assert.True(t, errors.Is(err, domain.ErrConflict))
	_, err = env.templates.Create(ctx, env.actor, CreateTemplateRequest{Name: "   "})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	// 其他组织可以使用相同名称，但看不到本组织的模板
	other := Actor{OrganizationID: 2, Name: "other@studio.test"}
	_, err = env.templates.Create(ctx, other, CreateTemplateRequest{Name: "Master Bath v2"})
	require.NoError(t, err)
	_, err = env.templates.GetByID(ctx, other, created.ID)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
	list, err := env.templates.List(ctx, other)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTemplateEditsBumpVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createMasterBath(t)

	updated, err := env.templates.Update(ctx, env.actor, created.ID, UpdateTemplateRequest{Name: "Master Bath v3", Description: "refresh"})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	lighting := created.Sections[1]
	section, err := env.templates.UpdateSection(ctx, env.actor, lighting.ID, TemplateSectionRequest{Name: "Lights", SortOrder: 5})
	require.NoError(t, err)
	assert.Equal(t, "Lights", section.Name)

	item, err := env.templates.AddItem(ctx, env.actor, lighting.ID, TemplateItemRequest{Name: "Pendant", Category: "Lighting"})
	require.NoError(t, err)
	require.NoError(t, env.templates.DeleteItem(ctx, env.actor, item.ID))

	got, err := env.templates.GetByID(ctx, env.actor, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Version)
	assert.Equal(t, "Master Bath v3", got.Name)

	_, err = env.templates.UpdateItem(ctx, env.actor, 999, TemplateItemRequest{Name: "Ghost"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = env.templates.AddItem(ctx, env.actor, lighting.ID, TemplateItemRequest{Name: "Bad", DefaultState: "DONE"})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestTemplateDeleteRefusedWhileReferenced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	instance := env.materializeMasterBath(t)

	err := env.templates.Delete(ctx, env.actor, *instance.TemplateID)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	require.NoError(t, env.rooms.Delete(ctx, env.actor, instance.RoomID))
	require.NoError(t, env.templates.Delete(ctx, env.actor, *instance.TemplateID))

	var sections, items int64
	env.db.Model(&model.TemplateSection{}).Count(&sections)
	env.db.Model(&model.TemplateItem{}).Count(&items)
	assert.Zero(t, sections)
	assert.Zero(t, items)

	err = env.templates.Delete(ctx, env.actor, *instance.TemplateID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestTemplateDeleteSection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createMasterBath(t)

	require.NoError(t, env.templates.DeleteSection(ctx, env.actor, created.Sections[0].ID))
	got, err := env.templates.GetByID(ctx, env.actor, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Sections, 1)
	assert.Equal(t, "Lighting", got.Sections[0].Name)
	assert.Equal(t, 2, got.Version)
}

func TestTemplateClone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := env.createMasterBath(t)
	_, err := env.templates.Update(ctx, env.actor, created.ID, UpdateTemplateRequest{Name: created.Name})
	require.NoError(t, err)

	clone, err := env.templates.Clone(ctx, env.actor, created.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Master Bath v2 (copy)", clone.Name)
	assert.Equal(t, 1, clone.Version)
	assert.NotEqual(t, created.ID, clone.ID)
	require.Len(t, clone.Sections, 2)
	assert.Len(t, clone.Sections[0].Items, 2)
	assert.NotEqual(t, created.Sections[0].Items[0].ID, clone.Sections[0].Items[0].ID)

	_, err = env.templates.Clone(ctx, env.actor, created.ID, "")
	assert.True(t, errors.Is(err, domain.ErrConflict))
	named, err := env.templates.Clone(ctx, env.actor, created.ID, "Guest Bath")
	require.NoError(t, err)
	assert.Equal(t, "Guest Bath", named.Name)
}

func TestInitDefaultTemplates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, InitDefaultTemplates(env.db, env.actor.OrganizationID))
	require.NoError(t, InitDefaultTemplates(env.db, env.actor.OrganizationID))

	list, err := env.templates.List(ctx, env.actor)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Master Bath v2", list[0].Name)
	assert.True(t, list[0].IsSystem)

	detail, err := env.templates.GetByID(ctx, env.actor, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Plumbing", detail.Sections[0].Name)
	assert.Len(t, detail.Sections[0].Items, 4)
}
