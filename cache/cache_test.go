package cache

import (
	"context"
	"errors"
	"testing"

	"git.skobk.in/skobkin/study-group-sync/group"
	"git.skobk.in/skobkin/study-group-sync/storage"
)

func TestGroupsEmptyStore(t *testing.T) {
	c := New(storage.NewMemory())

	groups, err := c.Groups(context.Background())
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("Groups = %v, want empty", groups)
	}
}

func TestGroupsAreNormalizedOnRead(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	_ = store.Put(ctx, GroupsKey, []byte(`[{"id": 1, "name": "Legacy", "memberCount": "3"}]`))

	groups, err := New(store).Groups(ctx)
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 1 || groups[0].MemberCount != 3 || groups[0].ID != "1" {
		t.Errorf("Groups = %+v", groups)
	}
}

func TestCorruptEntry(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	_ = store.Put(ctx, GroupsKey, []byte(`{not json`))

	_, err := New(store).Groups(ctx)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestUpdateAndRemoveGroup(t *testing.T) {
	c := New(storage.NewMemory())
	ctx := context.Background()

	if err := c.AppendGroup(ctx, group.Group{ID: "g1", CreatedBy: "u1", Members: []string{"u1"}, MemberCount: 1}); err != nil {
		t.Fatalf("AppendGroup: %v", err)
	}

	found, err := c.UpdateGroup(ctx, "g1", func(g *group.Group) bool { return g.AddMember("u2") })
	if err != nil || !found {
		t.Fatalf("UpdateGroup found=%v err=%v", found, err)
	}

	groups, _ := c.Groups(ctx)
	if groups[0].MemberCount != 2 {
		t.Errorf("MemberCount = %d, want 2", groups[0].MemberCount)
	}

	if found, _ := c.UpdateGroup(ctx, "missing", func(*group.Group) bool { return true }); found {
		t.Error("UpdateGroup reported a missing group as found")
	}

	removed, err := c.RemoveGroup(ctx, "g1")
	if err != nil || !removed {
		t.Fatalf("RemoveGroup removed=%v err=%v", removed, err)
	}
	if groups, _ := c.Groups(ctx); len(groups) != 0 {
		t.Errorf("Groups after remove = %v", groups)
	}
}

func TestAddPendingReplacesSameGroup(t *testing.T) {
	c := New(storage.NewMemory())
	ctx := context.Background()
	g := group.Group{ID: "g2", Name: "Advanced Algo", Privacy: group.PrivacyPrivate, MemberCount: 1}

	if _, err := c.AddPending(ctx, g, "u2"); err != nil {
		t.Fatalf("AddPending: %v", err)
	}
	if _, err := c.AddPending(ctx, g, "u2"); err != nil {
		t.Fatalf("second AddPending: %v", err)
	}

	mine, err := c.PendingFor(ctx, "u2")
	if err != nil {
		t.Fatalf("PendingFor: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "g2" || mine[0].Name != "Advanced Algo" {
		t.Errorf("PendingFor = %+v", mine)
	}

	if others, _ := c.PendingFor(ctx, "u3"); len(others) != 0 {
		t.Errorf("PendingFor(u3) = %+v, want none", others)
	}

	removed, err := c.RemovePending(ctx, "g2")
	if err != nil || !removed {
		t.Fatalf("RemovePending removed=%v err=%v", removed, err)
	}
	if removed, _ := c.RemovePending(ctx, "g2"); removed {
		t.Error("RemovePending removed a record twice")
	}
}

func TestAddPendingKeepsOtherRequesters(t *testing.T) {
	c := New(storage.NewMemory())
	ctx := context.Background()
	g := group.Group{ID: "g2", Name: "Advanced Algo", Privacy: group.PrivacyPrivate, MemberCount: 1}

	for _, requester := range []string{"u2", "u3", "u2"} {
		if _, err := c.AddPending(ctx, g, requester); err != nil {
			t.Fatalf("AddPending(%s): %v", requester, err)
		}
	}

	all, err := c.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Pending = %+v, want one record per requester", all)
	}
	for _, requester := range []string{"u2", "u3"} {
		if mine, _ := c.PendingFor(ctx, requester); len(mine) != 1 || mine[0].ID != "g2" {
			t.Errorf("PendingFor(%s) = %+v", requester, mine)
		}
	}

	if removed, err := c.RemovePending(ctx, "g2"); err != nil || !removed {
		t.Fatalf("RemovePending removed=%v err=%v", removed, err)
	}
	if all, _ := c.Pending(ctx); len(all) != 0 {
		t.Errorf("Pending after group resolved = %+v", all)
	}
}
