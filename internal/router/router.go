// Package router maps worker role configurations to the tasks they should see.
// Routing is a pure set-intersection function with no state of its own.
package router

import "github.com/opsforge/foreman/pkg/models"

// RoleConfig declares which tags a worker role watches and which it ignores.
type RoleConfig struct {
	// Name identifies the role.
	Name string `yaml:"name"`
	// WatchTags lists tags the role is interested in.
	WatchTags []string `yaml:"watch_tags"`
	// IgnoreTags lists tags that disqualify a task even if watched.
	IgnoreTags []string `yaml:"ignore_tags"`
}

// Matches reports whether a task should be routed to the role: the task must
// share at least one tag with the watch set and none with the ignore set.
func Matches(task *models.Task, role RoleConfig) bool {
	if task == nil {
		return false
	}
	for _, tag := range role.IgnoreTags {
		if task.HasTag(tag) {
			return false
		}
	}
	for _, tag := range role.WatchTags {
		if task.HasTag(tag) {
			return true
		}
	}
	return false
}

// Route filters tasks down to those matching the role, preserving input order.
func Route(tasks []*models.Task, role RoleConfig) []*models.Task {
	var out []*models.Task
	for _, t := range tasks {
		if Matches(t, role) {
			out = append(out, t)
		}
	}
	return out
}
