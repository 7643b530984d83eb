package group

import (
	"errors"
	"testing"
)

func sampleGroups() []Group {
	return []Group{
		{ID: "1", Name: "CS101 Study", CourseName: "Computer Science 101", Privacy: PrivacyPublic, CreatedBy: "u1", Members: []string{"u1"}, MemberCount: 1},
		{ID: "2", Name: "Advanced Algo", CourseName: "Algorithms", Privacy: PrivacyPrivate, CreatedBy: "u1", Members: []string{"u1", "u3"}, MemberCount: 2},
		{ID: "3", Name: "Calc crew", CourseName: "Calculus I", Privacy: PrivacyPublic, CreatedBy: "u3", Members: []string{"u3", "u2"}, MemberCount: 2},
		{ID: "4", Name: "Physics night", CourseName: "Physics I", Privacy: PrivacyPrivate, CreatedBy: "u3", Members: []string{"u3"}, MemberCount: 1},
		{ID: "5", Name: "Ghost town", CourseName: "Physics I", Privacy: PrivacyPublic, CreatedBy: "u4", Members: []string{}, MemberCount: 0},
	}
}

func ids(groups []Group) map[string]bool {
	m := map[string]bool{}
	for _, g := range groups {
		m[g.ID] = true
	}
	return m
}

func TestPartitionIsDisjoint(t *testing.T) {
	for _, user := range []string{"u1", "u2", "u3", "u4", "nobody"} {
		p := PartitionFor(sampleGroups(), user)
		owned, joined, available := ids(p.Owned), ids(p.Joined), ids(p.Available)

		for id := range owned {
			if joined[id] || available[id] {
				t.Errorf("user %s: group %s is owned and also listed elsewhere", user, id)
			}
		}
		for id := range joined {
			if available[id] {
				t.Errorf("user %s: group %s is joined and available", user, id)
			}
		}
	}
}

func TestPartitionRules(t *testing.T) {
	p := PartitionFor(sampleGroups(), "u2")

	if len(p.Owned) != 0 {
		t.Errorf("owned = %v, want none", p.Owned)
	}
	if got := ids(p.Joined); len(got) != 1 || !got["3"] {
		t.Errorf("joined = %v, want [3]", got)
	}
	// private groups without membership are hidden
	if got := ids(p.Available); len(got) != 2 || !got["1"] || !got["5"] {
		t.Errorf("available = %v, want [1 5]", got)
	}
}

func TestFilterAvailable(t *testing.T) {
	two := 2
	all := sampleGroups()

	tests := []struct {
		name     string
		criteria Criteria
		want     []string
	}{
		{"no criteria skips empty groups", Criteria{}, []string{"1", "2", "3", "4"}},
		{"search is case insensitive", Criteria{Search: "cs1"}, []string{"1"}},
		{"privacy", Criteria{Privacy: PrivacyPrivate}, []string{"2", "4"}},
		{"privacy all", Criteria{Privacy: PrivacyAll}, []string{"1", "2", "3", "4"}},
		{"course exact", Criteria{CourseName: "physics i"}, []string{"4"}},
		{"course is not substring", Criteria{CourseName: "Physics"}, []string{}},
		{"member count", Criteria{ExactMemberCount: &two}, []string{"2", "3"}},
		{"empty group never matches", Criteria{Search: "ghost"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterAvailable(all, tt.criteria)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d groups %v, want %v", len(got), got, tt.want)
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("result[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestCreateSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    CreateSpec
		wantErr bool
	}{
		{"ok", CreateSpec{CreatorID: "u1", Name: " CS101 Study ", CourseCode: "CS101"}, false},
		{"missing name", CreateSpec{CreatorID: "u1", Name: "  ", CourseCode: "CS101"}, true},
		{"missing course", CreateSpec{CreatorID: "u1", Name: "CS101 Study"}, true},
		{"bad privacy", CreateSpec{CreatorID: "u1", Name: "x", CourseCode: "CS101", Privacy: "SECRET"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("err = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.spec.Privacy != PrivacyPublic || tt.spec.Name != "CS101 Study" {
				t.Errorf("defaults not applied: %+v", tt.spec)
			}
		})
	}
}
