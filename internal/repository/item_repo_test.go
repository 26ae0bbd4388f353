package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/studiodesk/ffetrack/internal/domain"
	"github.com/studiodesk/ffetrack/internal/model"
)

func TestItemRepositorySetVisibilityAndVisibleList(t *testing.T) {
	db := openTestDB(t)
	instance := seedInstance(t, db)
	repo := NewItemRepository(db)

	visible, err := repo.ListVisibleByInstance(instance.ID)
	if err != nil {
		t.Fatalf("ListVisibleByInstance error: %v", err)
	}
	if len(visible) != 1 {
		t.Fatalf("expected 1 visible item, got %d", len(visible))
	}

	all, err := repo.ListByInstance(instance.ID)
	if err != nil {
		t.Fatalf("ListByInstance error: %v", err)
	}
	ids := make([]uint, 0, len(all))
	for _, item := range all {
		ids = append(ids, item.ID)
	}
	affected, err := repo.SetVisibility(ids, domain.VisibilityVisible)
	if err != nil {
		t.Fatalf("SetVisibility error: %v", err)
	}
	if affected != 3 {
		t.Fatalf("expected 3 rows affected, got %d", affected)
	}

	visible, _ = repo.ListVisibleByInstance(instance.ID)
	if len(visible) != 3 {
		t.Fatalf("expected 3 visible items, got %d", len(visible))
	}
	for _, item := range visible {
		if item.State != domain.StatePending {
			t.Fatalf("visibility update touched state: %+v", item)
		}
	}
}

func TestItemRepositoryRequirementSiblings(t *testing.T) {
	db := openTestDB(t)
	instance := seedInstance(t, db)
	repo := NewItemRepository(db)
	requirement := instance.Sections[0].Items[0]

	for i, name := range []string{"Faucet Model X", "Faucet Model Y"} {
		spec := &model.InstanceItem{
			InstanceID:    instance.ID,
			SectionID:     requirement.SectionID,
			Name:          name,
			IsSpecItem:    true,
			RequirementID: &requirement.ID,
			OptionNumber:  i + 1,
			State:         domain.StatePending,
			Visibility:    domain.VisibilityVisible,
			Currency:      "USD",
		}
		if err := repo.Create(spec); err != nil {
			t.Fatalf("create spec error: %v", err)
		}
	}

	siblings, err := repo.ListByRequirement(requirement.ID)
	if err != nil {
		t.Fatalf("ListByRequirement error: %v", err)
	}
	if len(siblings) != 2 || siblings[0].OptionNumber != 1 || siblings[1].Name != "Faucet Model Y" {
		t.Fatalf("unexpected siblings: %+v", siblings)
	}

	affected, err := repo.UnlinkByRequirements([]uint{requirement.ID})
	if err != nil {
		t.Fatalf("UnlinkByRequirements error: %v", err)
	}
	if affected != 2 {
		t.Fatalf("expected 2 unlinked, got %d", affected)
	}
	siblings, _ = repo.ListByRequirement(requirement.ID)
	if len(siblings) != 0 {
		t.Fatalf("expected no siblings after unlink, got %d", len(siblings))
	}
}

func TestStoreTransactionRollsBack(t *testing.T) {
	db := openTestDB(t)
	instance := seedInstance(t, db)
	store := NewStore(db)
	itemID := instance.Sections[0].Items[1].ID
	boom := errors.New("boom")

	err := store.Transaction(context.Background(), func(tx *Repos) error {
		if _, err := tx.Items.SetVisibility([]uint{itemID}, domain.VisibilityVisible); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	item, err := store.Repos(context.Background()).Items.Get(itemID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if item.Visibility != domain.VisibilityHidden {
		t.Fatalf("expected rollback to keep HIDDEN, got %s", item.Visibility)
	}
}
