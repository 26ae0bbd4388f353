package service

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/model"
	"github.com/studiodesk/ffetrack/internal/repository"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func sectionItems(t *testing.T, view *InstanceView, name string) []ItemView {
	t.Helper()
	for _, section := range view.Sections {
		if section.Name == name {
			return section.Items
		}
	}
	t.Fatalf("section %q not in view", name)
	return nil
}

func TestHiddenItemsLeaveExecutionView(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	instance := env.materializeMasterBath(t)
	faucet := findItem(t, instance, "Vanity Faucet")

	item, err := env.items.SetVisibility(ctx, env.actor, faucet.ID, domain.VisibilityHidden)
	require.NoError(t, err)
	assert.Equal(t, domain.VisibilityHidden, item.Visibility)

	execution, err := env.items.ExecutionView(ctx, env.actor, instance.ID)
	require.NoError(t, err)
	assert.Empty(t, sectionItems(t, execution, "Plumbing"))

	curation, err := env.items.CurationView(ctx, env.actor, instance.ID)
	require.NoError(t, err)
	assert.Len(t, sectionItems(t, curation, "Plumbing"), 2)
	assert.EqualValues(t, 1, env.countLogs(t, domain.ActionVisibility))
}

func TestVisibilityAndStateAreOrthogonal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	instance := env.materializeMasterBath(t)
	faucet := findItem(t, instance, "Vanity Faucet")
	plumbing := findSection(t, instance, "Plumbing")
	const notes = "brushed nickel, confirm rough-in"

	_, err := env.items.SetNotes(ctx, env.actor, faucet.ID, notes)
	require.NoError(t, err)

	for _, target := range []domain.ItemState{domain.StateUndecided, domain.StateSelected, domain.StateConfirmed} {
		_, err := env.items.SetState(ctx, env.actor, faucet.ID, target)
		require.NoError(t, err)
		reloaded := env.reload(t, faucet.ID)
		assert.Equal(t, domain.VisibilityVisible, reloaded.Visibility)
		assert.Equal(t, notes, reloaded.Notes)
	}

	_, err = env.items.SetVisibility(ctx, env.actor, faucet.ID, domain.VisibilityHidden)
	require.NoError(t, err)
	reloaded := env.reload(t, faucet.ID)
	assert.Equal(t, domain.StateConfirmed, reloaded.State)
	assert.Equal(t, notes, reloaded.Notes)

	_, err = env.items.SetState(ctx, env.actor, faucet.ID, domain.StateCompleted)
	require.NoError(t, err)
	reloaded = env.reload(t, faucet.ID)
	assert.Equal(t, domain.VisibilityHidden, reloaded.Visibility)
	assert.Equal(t, domain.StateCompleted, reloaded.State)
	assert.Equal(t, notes, reloaded.Notes)

	_, err = env.items.BulkSetVisibility(ctx, env.actor, BulkVisibilityRequest{Scope: domain.ScopeSection, ScopeID: plumbing.ID, Visibility: domain.VisibilityVisible})
	require.NoError(t, err)
	reloaded = env.reload(t, faucet.ID)
	assert.Equal(t, domain.VisibilityVisible, reloaded.Visibility)
	assert.Equal(t, domain.StateCompleted, reloaded.State)
	assert.Equal(t, notes, reloaded.Notes)

	name := "Vanity Faucet (widespread)"
	_, err = env.tree.UpdateItem(ctx, env.actor, faucet.ID, UpdateItemRequest{Name: &name})
	require.NoError(t, err)
	reloaded = env.reload(t, faucet.ID)
	assert.Equal(t, name, reloaded.Name)
	assert.Equal(t, domain.VisibilityVisible, reloaded.Visibility)
	assert.Equal(t, domain.StateCompleted, reloaded.State)
	assert.Equal(t, notes, reloaded.Notes)

	// 备注变更也不影响另外两个维度
	_, err = env.items.SetNotes(ctx, env.actor, faucet.ID, "")
	require.NoError(t, err)
	reloaded = env.reload(t, faucet.ID)
	assert.Empty(t, reloaded.Notes)
	assert.Equal(t, domain.VisibilityVisible, reloaded.Visibility)
	assert.Equal(t, domain.StateCompleted, reloaded.State)
}

func TestSetStateRejectsInvalidTransition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	instance := env.materializeMasterBath(t)
	faucet := findItem(t, instance, "Vanity Faucet")

	_, err := env.items.SetState(ctx, env.actor, faucet.ID, domain.StateCompleted)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	_, err = env.items.SetState(ctx, env.actor, faucet.ID, domain.StatePending)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	_, err = env.items.SetState(ctx, env.actor, faucet.ID, domain.ItemState("DONE"))
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	assert.Equal(t, domain.StatePending, env.reload(t, faucet.ID).State)
	assert.Zero(t, env.countLogs(t, domain.ActionState))
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.MutationsTotal.WithLabelValues("item.state", string(domain.KindInvalidTransition))))
}

func TestSetVisibilityNoopWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	instance := env.materializeMasterBath(t)
	faucet := findItem(t, instance, "Vanity Faucet")

	before := env.totalLogs(t)
	_, err := env.items.SetVisibility(ctx, env.actor, faucet.ID, domain.VisibilityVisible)
	require.NoError(t, err)
	assert.Equal(t, before, env.totalLogs(t))

	_, err = env.items.SetVisibility(ctx, env.actor, 9999, domain.VisibilityVisible)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	other := Actor{OrganizationID: 2, Name: "intruder"}
	_, err = env.items.SetVisibility(ctx, other, faucet.ID, domain.VisibilityHidden)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestSetNotes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	instance := env.materializeMasterBath(t)
	faucet := findItem(t, instance, "Vanity Faucet")

	item, err := env.items.SetNotes(ctx, env.actor, faucet.ID, "Client prefers brushed nickel")
	require.NoError(t, err)
	assert.Equal(t, "Client prefers brushed nickel", item.Notes)
	assert.Equal(t, domain.StatePending, env.reload(t, faucet.ID).State)
	assert.EqualValues(t, 1, env.countLogs(t, domain.ActionNotes))
}

func TestBulkSetVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	instance := env.materializeMasterBath(t)
	plumbing := findSection(t, instance, "Plumbing")

	result, err := env.items.BulkSetVisibility(ctx, env.actor, BulkVisibilityRequest{
		Scope: domain.ScopeSection, ScopeID: plumbing.ID, Visibility: domain.VisibilityVisible,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Changed, "only Shower Head was hidden")
	require.Len(t, result.Items, 2)
	for _, item := range result.Items {
		assert.Equal(t, domain.VisibilityVisible, item.Visibility)
	}

	result, err = env.items.BulkSetVisibility(ctx, env.actor, BulkVisibilityRequest{
		Scope: domain.ScopeInstance, ScopeID: instance.ID, Visibility: domain.VisibilityHidden,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Changed, "Sconce was already hidden")
	require.NotEmpty(t, result.CorrelationID)

	var logs []model.ChangeLog
	require.NoError(t, env.db.Where("correlation_id = ?", result.CorrelationID).Find(&logs).Error)
	assert.Len(t, logs, 2)

	for _, item := range []string{"Vanity Faucet", "Shower Head", "Sconce"} {
		reloaded := env.reload(t, findItem(t, instance, item).ID)
		assert.Equal(t, domain.VisibilityHidden, reloaded.Visibility)
		assert.Equal(t, domain.StatePending, reloaded.State)
	}
}

func TestBulkSetVisibilityIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	instance := env.materializeMasterBath(t)

	injected := errors.New("injected change log failure")
	require.NoError(t, env.db.Callback().Create().Before("gorm:create").Register("test:fail_change_logs", func(tx *gorm.DB) {
		if tx.Statement.Table == "ffe_change_logs" {
			tx.AddError(injected)
		}
	}))

	_, err := env.items.BulkSetVisibility(ctx, env.actor, BulkVisibilityRequest{
		Scope: domain.ScopeInstance, ScopeID: instance.ID, Visibility: domain.VisibilityVisible,
	})
	require.ErrorIs(t, err, injected)

	assert.Equal(t, domain.VisibilityVisible, env.reload(t, findItem(t, instance, "Vanity Faucet").ID).Visibility)
	assert.Equal(t, domain.VisibilityHidden, env.reload(t, findItem(t, instance, "Shower Head").ID).Visibility)
	assert.Equal(t, domain.VisibilityHidden, env.reload(t, findItem(t, instance, "Sconce").ID).Visibility)
	assert.Zero(t, env.countLogs(t, domain.ActionVisibility))
}

func TestBulkSetVisibilityErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.items.BulkSetVisibility(ctx, env.actor, BulkVisibilityRequest{Scope: domain.ScopeSection, ScopeID: 77, Visibility: domain.VisibilityVisible})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = env.items.BulkSetVisibility(ctx, env.actor, BulkVisibilityRequest{Scope: "room", ScopeID: 1, Visibility: domain.VisibilityVisible})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	_, err = env.items.BulkSetVisibility(ctx, env.actor, BulkVisibilityRequest{Scope: domain.ScopeInstance, ScopeID: 1, Visibility: "GREY"})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestExecutionProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	instance := env.materializeMasterBath(t)
	faucet := findItem(t, instance, "Vanity Faucet")

	view, err := env.items.ExecutionView(ctx, env.actor, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, Progress{Total: 1}, view.Progress)

	spec := env.addSpec(t, faucet.ID, "Faucet Model X", 300)
	_, err = env.linking.Promote(ctx, env.actor, spec.ID)
	require.NoError(t, err)

	view, err = env.items.ExecutionView(ctx, env.actor, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Progress.Decided)
	assert.Equal(t, 100.0, view.Progress.DecisionPercent)
	assert.Zero(t, view.Progress.CompletionPercent)

	items := sectionItems(t, view, "Plumbing")
	require.Len(t, items, 1)
	assert.True(t, items[0].Decided)
	require.Len(t, items[0].Options, 1)
	assert.True(t, items[0].Options[0].Chosen)

	// 显示非必选条目不改变分母：仍以必选需求计算
	shower := findItem(t, instance, "Shower Head")
	_, err = env.items.SetVisibility(ctx, env.actor, shower.ID, domain.VisibilityVisible)
	require.NoError(t, err)
	for _, target := range []domain.ItemState{domain.StateUndecided, domain.StateSelected, domain.StateCompleted} {
		_, err = env.items.SetState(ctx, env.actor, faucet.ID, target)
		require.NoError(t, err)
	}
	progress, err := env.items.Progress(ctx, env.actor, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Total)
	assert.Equal(t, 100.0, progress.CompletionPercent)
}

func TestStorageFailurePropagates(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	down := errors.New("connection refused")
	mock.ExpectBegin().WillReturnError(down)
	mock.ExpectBegin().WillReturnError(down)

	store := repository.NewStore(db)
	items := NewItemService(store, nil, nil, nil)
	_, err = items.SetVisibility(context.Background(), Actor{OrganizationID: 1}, 1, domain.VisibilityHidden)
	require.ErrorIs(t, err, down)
	assert.Empty(t, domain.KindOf(err))

	linking := NewLinkingService(store, nil, nil, "USD")
	_, err = linking.Promote(context.Background(), Actor{OrganizationID: 1}, 1)
	require.ErrorIs(t, err, down)
	require.NoError(t, mock.ExpectationsWereMet())
}
