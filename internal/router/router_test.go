package router

import (
	"testing"

	"github.com/opsforge/foreman/pkg/models"
)

func task(id string, tags ...string) *models.Task {
	return &models.Task{ID: id, Title: id, Tags: tags, Status: models.TaskStatusPending, Priority: 3}
}

func TestMatches(t *testing.T) {
	role := RoleConfig{
		Name:       "backend",
		WatchTags:  []string{"backend", "api"},
		IgnoreTags: []string{"frontend"},
	}

	cases := []struct {
		name string
		task *models.Task
		want bool
	}{
		{"watched tag", task("t1", "backend"), true},
		{"second watched tag", task("t2", "api"), true},
		{"unwatched tag", task("t3", "docs"), false},
		{"no tags", task("t4"), false},
		{"ignored tag wins over watched", task("t5", "backend", "frontend"), false},
		{"ignored tag alone", task("t6", "frontend"), false},
		{"nil task", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Matches(tc.task, role); got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMatchesEmptyWatchSet(t *testing.T) {
	role := RoleConfig{Name: "idle"}
	if Matches(task("t1", "backend"), role) {
		t.Error("role with no watch tags matched a task")
	}
}

func TestRoutePreservesOrder(t *testing.T) {
	role := RoleConfig{Name: "backend", WatchTags: []string{"backend"}}

	in := []*models.Task{
		task("t1", "backend"),
		task("t2", "frontend"),
		task("t3", "backend", "urgent"),
		task("t4", "backend"),
	}

	got := Route(in, role)
	want := []string{"t1", "t3", "t4"}
	if len(got) != len(want) {
		t.Fatalf("routed %d tasks, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestRouteEmptyInput(t *testing.T) {
	role := RoleConfig{Name: "backend", WatchTags: []string{"backend"}}
	if got := Route(nil, role); len(got) != 0 {
		t.Errorf("routing nil input returned %d tasks", len(got))
	}
}
