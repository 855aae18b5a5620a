// Package registry provides the in-memory task index backed by the state store.
//
// The registry is the authoritative view of tasks: operations validate and
// mutate the index under one lock (so claim races resolve to exactly one
// winner), then persist through the store's queued commit path.
package registry

import (
	"fmt"
	"time"

	"sync"

	"github.com/google/uuid"

	"github.com/opsforge/foreman/internal/graph"
	"github.com/opsforge/foreman/pkg/models"
)

// Committer is the slice of the state store the registry persists through.
type Committer interface {
	Commit(paths map[string]any, actor string) error
}

// Registry is the task index. All exported methods are safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
	store Committer
	now   func() time.Time
	newID func() string
}

// New creates an empty registry persisting through the given committer.
func New(store Committer) *Registry {
	return &Registry{
		tasks: make(map[string]*models.Task),
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Restore seeds the index from a loaded state snapshot. Called once at boot,
// before the registry is handed to callers.
func (r *Registry) Restore(state *models.CoordinationState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range state.Tasks {
		r.tasks[id] = t.Clone()
	}
}

// CreateOptions holds the optional fields of Create.
type CreateOptions struct {
	// Priority ranks the task 1-5. Zero means the default (3).
	Priority int
	// Role is an optional role hint.
	Role string
	// Dependencies lists task ids that must complete before this task may be
	// claimed.
	Dependencies []string
}

// Create registers a new pending task, assigns it a fresh id, and persists it.
// Dependencies must reference existing tasks; self-loops and cycles are
// rejected with ErrValidation.
func (r *Registry) Create(title, description string, tags []string, creator string, opts CreateOptions) (*models.Task, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	priority := opts.Priority
	if priority == 0 {
		priority = 3
	}
	if priority < models.MinPriority || priority > models.MaxPriority {
		return nil, fmt.Errorf("%w: priority %d out of range [%d,%d]",
			ErrValidation, priority, models.MinPriority, models.MaxPriority)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	if err := r.validateDependenciesLocked(id, opts.Dependencies); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	task := &models.Task{
		ID:           id,
		Title:        title,
		Description:  description,
		Tags:         append([]string(nil), tags...),
		Role:         opts.Role,
		Status:       models.TaskStatusPending,
		Priority:     priority,
		Dependencies: append([]string(nil), opts.Dependencies...),
		CreatedBy:    creator,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.tasks[id] = task
	r.persistLocked(task, creator)
	return task.Clone(), nil
}

// TaskPatch describes a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title        *string
	Description  *string
	Tags         *[]string
	Role         *string
	Status       *models.TaskStatus
	Priority     *int
	Dependencies *[]string
	BlockedBy    *string
	AssignedTo   *string
	Results      *models.TaskResults
}

// Update merges a patch into an existing task. Status changes are checked
// against the task state machine; a transition into completed stamps
// CompletedAt if it is unset.
func (r *Registry) Update(id string, patch TaskPatch, actor string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *patch.Status)
		}
		if !task.Status.CanTransition(*patch.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, *patch.Status)
		}
	}
	if patch.Priority != nil && (*patch.Priority < models.MinPriority || *patch.Priority > models.MaxPriority) {
		return nil, fmt.Errorf("%w: priority %d out of range [%d,%d]",
			ErrValidation, *patch.Priority, models.MinPriority, models.MaxPriority)
	}
	if patch.Dependencies != nil {
		if err := r.validateDependenciesLocked(id, *patch.Dependencies); err != nil {
			return nil, err
		}
	}

	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Tags != nil {
		task.Tags = append([]string(nil), (*patch.Tags)...)
	}
	if patch.Role != nil {
		task.Role = *patch.Role
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.Dependencies != nil {
		task.Dependencies = append([]string(nil), (*patch.Dependencies)...)
	}
	if patch.AssignedTo != nil {
		task.AssignedTo = *patch.AssignedTo
	}
	if patch.Results != nil {
		task.Results = patch.Results
	}
	if patch.BlockedBy != nil {
		task.BlockedBy = *patch.BlockedBy
	}
	if patch.Status != nil && *patch.Status != task.Status {
		task.Status = *patch.Status
		switch task.Status {
		case models.TaskStatusCompleted:
			if task.CompletedAt == nil {
				at := r.now().UTC()
				task.CompletedAt = &at
			}
		case models.TaskStatusBlocked:
			// BlockedBy stays as patched (or empty).
		default:
			// The blocked reason only has meaning while blocked.
			task.BlockedBy = ""
		}
	}
	task.UpdatedAt = r.now().UTC()

	r.persistLocked(task, actor)
	return task.Clone(), nil
}

// Claim gives the worker exclusive ownership of a pending task. It fails with
// ErrConflict if another worker got there first, and with ErrDependencyUnmet
// if any dependency has not completed. Claiming a task one already owns is a
// no-op.
func (r *Registry) Claim(id, workerID string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if task.AssignedTo != "" && task.AssignedTo != workerID {
		return nil, fmt.Errorf("%w: %s is assigned to %s", ErrConflict, id, task.AssignedTo)
	}
	if task.AssignedTo == workerID && task.Status == models.TaskStatusInProgress {
		return task.Clone(), nil
	}
	if task.Status != models.TaskStatusPending {
		return nil, fmt.Errorf("%w: cannot claim task in status %s", ErrInvalidTransition, task.Status)
	}
	if !r.dependenciesMetLocked(task) {
		return nil, fmt.Errorf("%w: %s", ErrDependencyUnmet, id)
	}

	task.AssignedTo = workerID
	task.Status = models.TaskStatusInProgress
	task.UpdatedAt = r.now().UTC()

	r.persistLocked(task, workerID)
	return task.Clone(), nil
}

// Complete marks a task completed and attaches the worker's results. If the
// task is assigned, only the owner may complete it (ErrForbidden otherwise);
// an unassigned task may be completed by any caller, which also records the
// caller as the owner.
func (r *Registry) Complete(id, workerID string, results *models.TaskResults) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if task.AssignedTo != "" && task.AssignedTo != workerID {
		return nil, fmt.Errorf("%w: %s is owned by %s", ErrForbidden, id, task.AssignedTo)
	}
	// Completing an unclaimed pending task is permitted: it implicitly passes
	// through in_progress.
	switch task.Status {
	case models.TaskStatusPending, models.TaskStatusInProgress:
	default:
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, models.TaskStatusCompleted)
	}

	now := r.now().UTC()
	task.AssignedTo = workerID
	task.Status = models.TaskStatusCompleted
	task.Results = results
	task.UpdatedAt = now
	if task.CompletedAt == nil {
		task.CompletedAt = &now
	}

	r.persistLocked(task, workerID)
	return task.Clone(), nil
}

// Get returns a copy of the task with the given id.
func (r *Registry) Get(id string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return task.Clone(), nil
}

// All returns copies of every task in the index.
func (r *Registry) All() []*models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// Count returns the number of tasks in the index.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// BacklogSize returns the number of tasks still waiting to be worked.
func (r *Registry) BacklogSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range r.tasks {
		if t.Status == models.TaskStatusPending || t.Status == models.TaskStatusBlocked {
			n++
		}
	}
	return n
}

// ReadyIDs returns the ids of tasks whose dependencies have all completed,
// in dependency order. Used by administrative views.
func (r *Registry) ReadyIDs() ([]string, error) {
	g := graph.New()
	if err := g.Build(r.All()); err != nil {
		return nil, err
	}
	return g.Ready(), nil
}

// validateDependenciesLocked checks that every dependency exists, that the
// task does not depend on itself, and that the edge set stays acyclic.
func (r *Registry) validateDependenciesLocked(taskID string, deps []string) error {
	for _, dep := range deps {
		if dep == taskID {
			return fmt.Errorf("%w: task cannot depend on itself", ErrValidation)
		}
		if _, ok := r.tasks[dep]; !ok {
			return fmt.Errorf("%w: unknown dependency %s", ErrValidation, dep)
		}
	}

	// Reachability check: rebuild the graph with the candidate edges in place.
	candidate := &models.Task{ID: taskID, Status: models.TaskStatusPending, Dependencies: deps}
	all := make([]*models.Task, 0, len(r.tasks)+1)
	for id, t := range r.tasks {
		if id == taskID {
			continue
		}
		all = append(all, t)
	}
	all = append(all, candidate)

	g := graph.New()
	if err := g.Build(all); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// dependenciesMetLocked reports whether every dependency of the task has
// completed.
func (r *Registry) dependenciesMetLocked(task *models.Task) bool {
	for _, dep := range task.Dependencies {
		depTask, ok := r.tasks[dep]
		if !ok || depTask.Status != models.TaskStatusCompleted {
			return false
		}
	}
	return true
}

// persistLocked queues the task's current state for the next flush. The store
// retries persistence internally, so registry callers never see I/O errors.
func (r *Registry) persistLocked(task *models.Task, actor string) {
	if r.store == nil {
		return
	}
	_ = r.store.Commit(map[string]any{"tasks." + task.ID: task}, actor)
}
