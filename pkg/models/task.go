package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task has been claimed and is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusBlocked indicates the task cannot proceed.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusCompleted indicates the task finished successfully. Terminal.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusCancelled indicates the task was abandoned. Terminal.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusBlocked,
		TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if no transition out of the status is permitted.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// CanTransition reports whether the status may legally move to the target.
// A no-op transition (same status) is always permitted.
func (s TaskStatus) CanTransition(to TaskStatus) bool {
	if s == to {
		return true
	}
	if s.Terminal() {
		return false
	}
	// Any non-terminal status may be cancelled.
	if to == TaskStatusCancelled {
		return true
	}
	switch s {
	case TaskStatusPending:
		return to == TaskStatusInProgress || to == TaskStatusBlocked
	case TaskStatusInProgress:
		return to == TaskStatusCompleted || to == TaskStatusBlocked
	case TaskStatusBlocked:
		return to == TaskStatusPending
	default:
		return false
	}
}

// Priority bounds for tasks. Higher numbers are more urgent.
const (
	MinPriority = 1
	MaxPriority = 5
)

// Task represents a unit of work in the shared backlog.
type Task struct {
	// ID is the unique identifier for this task. Assigned at creation, immutable.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Tags route the task to interested workers. Order carries no meaning.
	Tags []string `json:"tags,omitempty"`
	// Role is an optional hint naming the worker role best suited for the task.
	// It is not an access-control constraint.
	Role string `json:"role,omitempty"`
	// AssignedTo is the ID of the worker that claimed this task.
	AssignedTo string `json:"assigned_to,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Priority ranks the task from 1 (lowest) to 5 (highest).
	Priority int `json:"priority"`
	// Dependencies lists task IDs that must complete before this task may be claimed.
	Dependencies []string `json:"dependencies,omitempty"`
	// BlockedBy records why the task is blocked. Set only while status is blocked.
	BlockedBy string `json:"blocked_by,omitempty"`
	// CreatedBy identifies the caller that created the task.
	CreatedBy string `json:"created_by,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task was last modified.
	UpdatedAt time.Time `json:"updated_at"`
	// CompletedAt is when the task was completed, if applicable.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Results holds the structured payload attached on completion.
	Results *TaskResults `json:"results,omitempty"`
}

// TaskResults is the structured payload a worker attaches when completing a task.
type TaskResults struct {
	// FilesTouched lists files created or modified while working the task.
	FilesTouched []string `json:"files_touched,omitempty"`
	// CommandsRun lists commands executed while working the task.
	CommandsRun []string `json:"commands_run,omitempty"`
	// Metrics holds arbitrary numeric measurements (durations, counts, scores).
	Metrics map[string]float64 `json:"metrics,omitempty"`
	// Notes is free-text commentary from the worker.
	Notes string `json:"notes,omitempty"`
}

// HasTag returns true if the task carries the given tag.
func (t *Task) HasTag(tag string) bool {
	for _, have := range t.Tags {
		if have == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Tags = append([]string(nil), t.Tags...)
	cp.Dependencies = append([]string(nil), t.Dependencies...)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	if t.Results != nil {
		res := *t.Results
		res.FilesTouched = append([]string(nil), t.Results.FilesTouched...)
		res.CommandsRun = append([]string(nil), t.Results.CommandsRun...)
		if t.Results.Metrics != nil {
			res.Metrics = make(map[string]float64, len(t.Results.Metrics))
			for k, v := range t.Results.Metrics {
				res.Metrics[k] = v
			}
		}
		cp.Results = &res
	}
	return &cp
}
