package graph

import (
	"errors"
	"testing"

	"github.com/opsforge/foreman/pkg/models"
)

func task(id string, status models.TaskStatus, deps ...string) *models.Task {
	return &models.Task{ID: id, Title: id, Status: status, Priority: 3, Dependencies: deps}
}

func TestBuildAndSize(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{
		task("a", models.TaskStatusPending),
		task("b", models.TaskStatusPending, "a"),
		task("c", models.TaskStatusPending, "a", "b"),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if g.Size() != 3 {
		t.Errorf("Size = %d, want 3", g.Size())
	}
	if got := g.Dependencies("c"); len(got) != 2 {
		t.Errorf("Dependencies(c) = %v", got)
	}
	if got := g.Dependents("a"); len(got) != 2 {
		t.Errorf("Dependents(a) = %v", got)
	}
}

func TestBuildUnknownDependency(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{task("a", models.TaskStatusPending, "ghost")})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestBuildDetectsCycle(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{
		task("a", models.TaskStatusPending, "c"),
		task("b", models.TaskStatusPending, "a"),
		task("c", models.TaskStatusPending, "b"),
	})
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("got %v, want ErrCycleDetected", err)
	}
}

func TestBuildSelfLoop(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{task("a", models.TaskStatusPending, "a")})
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("got %v, want ErrCycleDetected", err)
	}
}

func TestTopologicalSort(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{
		task("a", models.TaskStatusPending),
		task("b", models.TaskStatusPending, "a"),
		task("c", models.TaskStatusPending, "b"),
		task("d", models.TaskStatusPending, "a"),
	}); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort failed: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("sorted %d nodes, want 4", len(order))
	}

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	// Every dependency must sort before its dependent.
	for _, edge := range [][2]string{{"a", "b"}, {"b", "c"}, {"a", "d"}} {
		if pos[edge[0]] > pos[edge[1]] {
			t.Errorf("%s sorted after its dependent %s: %v", edge[0], edge[1], order)
		}
	}
}

func TestReady(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{
		task("done", models.TaskStatusCompleted),
		task("free", models.TaskStatusPending),
		task("unlocked", models.TaskStatusPending, "done"),
		task("gated", models.TaskStatusPending, "free"),
		task("claimed", models.TaskStatusInProgress),
	}); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ready := g.Ready()
	want := map[string]bool{"free": true, "unlocked": true}
	if len(ready) != len(want) {
		t.Fatalf("Ready = %v, want %v", ready, want)
	}
	for _, id := range ready {
		if !want[id] {
			t.Errorf("unexpected ready task %s", id)
		}
	}
}

func TestGetTask(t *testing.T) {
	g := New()
	g.Build([]*models.Task{task("a", models.TaskStatusPending)})

	if got := g.GetTask("a"); got == nil || got.ID != "a" {
		t.Errorf("GetTask(a) = %v", got)
	}
	if got := g.GetTask("missing"); got != nil {
		t.Errorf("GetTask(missing) = %v, want nil", got)
	}
}
