package registry

import (
	"sort"

	"github.com/opsforge/foreman/pkg/models"
)

// Filter selects tasks for Query. Zero-valued fields match everything.
type Filter struct {
	// Tags matches tasks carrying any of these tags.
	Tags []string
	// ExcludeTags rejects tasks carrying any of these tags.
	ExcludeTags []string
	// Roles matches tasks whose role hint is any of these.
	Roles []string
	// Statuses matches tasks in any of these statuses.
	Statuses []models.TaskStatus
	// Priorities matches tasks at any of these priorities.
	Priorities []int
	// AssignedTo matches tasks assigned to exactly this worker.
	AssignedTo string
	// IncludeCompleted includes completed tasks, which are otherwise hidden.
	IncludeCompleted bool
	// EligibleOnly excludes tasks with incomplete dependencies. Worker polling
	// sets this; administrative queries leave it false to see gated tasks.
	EligibleOnly bool
}

// Query returns tasks matching the filter, sorted by priority descending and
// then by creation time ascending. The ordering is a public contract: worker
// polling relies on the stable FIFO within each priority band to avoid
// starvation.
func (r *Registry) Query(f Filter) []*models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Task
	for _, t := range r.tasks {
		if !r.matchesLocked(t, f) {
			continue
		}
		out = append(out, t.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// matchesLocked applies the filter to one task.
func (r *Registry) matchesLocked(t *models.Task, f Filter) bool {
	if t.Status == models.TaskStatusCompleted && !f.IncludeCompleted &&
		!containsStatus(f.Statuses, models.TaskStatusCompleted) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Tags) > 0 && !anyTag(t, f.Tags) {
		return false
	}
	if anyTag(t, f.ExcludeTags) {
		return false
	}
	if len(f.Roles) > 0 && !containsString(f.Roles, t.Role) {
		return false
	}
	if len(f.Priorities) > 0 && !containsInt(f.Priorities, t.Priority) {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	if f.EligibleOnly && !r.dependenciesMetLocked(t) {
		return false
	}
	return true
}

func anyTag(t *models.Task, tags []string) bool {
	for _, tag := range tags {
		if t.HasTag(tag) {
			return true
		}
	}
	return false
}

func containsStatus(haystack []models.TaskStatus, needle models.TaskStatus) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, needle int) bool {
	for _, n := range haystack {
		if n == needle {
			return true
		}
	}
	return false
}
