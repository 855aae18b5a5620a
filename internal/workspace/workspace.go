// Package workspace gives each worker a private, conflict-free file tree.
// The coordination core only consumes success or failure from these calls;
// conflict resolution stays inside the implementation.
package workspace

// Manager creates and maintains isolated workspaces for workers.
type Manager interface {
	// Create prepares a workspace for the worker and returns its path.
	// Creating an existing workspace returns the same path.
	Create(workerID string) (string, error)
	// CommitChanges records the worker's current changes and returns the
	// resulting revision id.
	CommitChanges(workerID, message string) (string, error)
	// Sync brings the worker's workspace up to date with the shared base.
	Sync(workerID string) error
	// Remove tears the workspace down.
	Remove(workerID string) error
}
