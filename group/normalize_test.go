package group

import (
	"encoding/json"
	"math"
	"testing"
)

func TestNormalizeMemberCount(t *testing.T) {
	tests := []struct {
		name string
		json string
		want int
	}{
		{"number", `{"memberCount": 3}`, 3},
		{"string", `{"memberCount": "7"}`, 7},
		{"fraction", `{"memberCount": 2.9}`, 2},
		{"negative", `{"memberCount": -4}`, 0},
		{"null", `{"memberCount": null}`, 0},
		{"missing", `{}`, 0},
		{"garbage", `{"memberCount": "lots"}`, 0},
		{"beyond int32", `{"memberCount": "3000000000"}`, 3000000000},
		{"overflow", `{"memberCount": 1e300}`, math.MaxInt},
		{"bool", `{"memberCount": true}`, 0},
		{"object", `{"memberCount": {"n": 1}}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw RawGroup
			if err := json.Unmarshal([]byte(tt.json), &raw); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := Normalize(raw).MemberCount; got != tt.want {
				t.Errorf("MemberCount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNormalizeDefaultsCourseName(t *testing.T) {
	var raw RawGroup
	if err := json.Unmarshal([]byte(`{"id": 12, "name": "CS101 Study", "createdBy": 5, "members": [5, "6"]}`), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	g := Normalize(raw)
	if g.CourseName != "" {
		t.Errorf("CourseName = %q, want empty", g.CourseName)
	}
	if g.ID != "12" || g.CreatedBy != "5" {
		t.Errorf("numeric ids not converted: id=%q createdBy=%q", g.ID, g.CreatedBy)
	}
	if len(g.Members) != 2 || g.Members[0] != "5" || g.Members[1] != "6" {
		t.Errorf("Members = %v", g.Members)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	var raw RawGroup
	if err := json.Unmarshal([]byte(`{"id": "g1", "memberCount": "-2", "coursename": "Calculus I", "createdAt": "2025-01-02T03:04:05Z"}`), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	once := Normalize(raw)
	twice := Normalize(once.Raw())

	if once.MemberCount != twice.MemberCount || once.CourseName != twice.CourseName || !once.CreatedAt.Equal(twice.CreatedAt) {
		t.Errorf("normalize not idempotent: %+v vs %+v", once, twice)
	}
}

func TestMemberEditsReconcileCount(t *testing.T) {
	g := Group{ID: "g1", CreatedBy: "u1", Members: []string{"u1"}, MemberCount: 1}

	if !g.AddMember("u2") {
		t.Fatal("AddMember returned false for a new member")
	}
	if g.AddMember("u2") {
		t.Error("AddMember returned true for an existing member")
	}
	if g.MemberCount != 2 {
		t.Errorf("MemberCount = %d, want 2", g.MemberCount)
	}

	if !g.RemoveMember("u2") {
		t.Fatal("RemoveMember returned false for a member")
	}
	if g.RemoveMember("u2") {
		t.Error("RemoveMember returned true for a non-member")
	}
	if g.MemberCount != 1 {
		t.Errorf("MemberCount = %d, want 1", g.MemberCount)
	}
}
