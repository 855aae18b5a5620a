package models

import (
	"testing"
	"time"
)

func TestTaskStatusValid(t *testing.T) {
	for _, s := range []TaskStatus{TaskStatusPending, TaskStatusInProgress,
		TaskStatusBlocked, TaskStatusCompleted, TaskStatusCancelled} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if TaskStatus("paused").Valid() {
		t.Error("unknown status reported valid")
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	if !TaskStatusCompleted.Terminal() || !TaskStatusCancelled.Terminal() {
		t.Error("completed and cancelled are terminal")
	}
	for _, s := range []TaskStatus{TaskStatusPending, TaskStatusInProgress, TaskStatusBlocked} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskStatusPending, TaskStatusInProgress, true},
		{TaskStatusPending, TaskStatusBlocked, true},
		{TaskStatusPending, TaskStatusCancelled, true},
		{TaskStatusPending, TaskStatusCompleted, false},
		{TaskStatusInProgress, TaskStatusCompleted, true},
		{TaskStatusInProgress, TaskStatusBlocked, true},
		{TaskStatusInProgress, TaskStatusPending, false},
		{TaskStatusBlocked, TaskStatusPending, true},
		{TaskStatusBlocked, TaskStatusInProgress, false},
		{TaskStatusBlocked, TaskStatusCancelled, true},
		{TaskStatusCompleted, TaskStatusPending, false},
		{TaskStatusCompleted, TaskStatusCancelled, false},
		{TaskStatusCancelled, TaskStatusPending, false},
		{TaskStatusPending, TaskStatusPending, true},
		{TaskStatusCompleted, TaskStatusCompleted, true},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTaskHasTag(t *testing.T) {
	task := &Task{Tags: []string{"backend", "urgent"}}
	if !task.HasTag("backend") || !task.HasTag("urgent") {
		t.Error("HasTag missed present tags")
	}
	if task.HasTag("frontend") {
		t.Error("HasTag matched an absent tag")
	}
}

func TestTaskClone(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	orig := &Task{
		ID:           "t1",
		Tags:         []string{"a"},
		Dependencies: []string{"t0"},
		CompletedAt:  &at,
		Results: &TaskResults{
			FilesTouched: []string{"main.go"},
			Metrics:      map[string]float64{"loc": 42},
		},
	}

	cp := orig.Clone()
	cp.Tags[0] = "b"
	cp.Dependencies[0] = "x"
	*cp.CompletedAt = at.Add(time.Hour)
	cp.Results.FilesTouched[0] = "other.go"
	cp.Results.Metrics["loc"] = 0

	if orig.Tags[0] != "a" || orig.Dependencies[0] != "t0" {
		t.Error("Clone shares slice backing arrays")
	}
	if !orig.CompletedAt.Equal(at) {
		t.Error("Clone shares CompletedAt pointer")
	}
	if orig.Results.FilesTouched[0] != "main.go" || orig.Results.Metrics["loc"] != 42 {
		t.Error("Clone shares results")
	}

	var nilTask *Task
	if nilTask.Clone() != nil {
		t.Error("cloning nil should return nil")
	}
}
