// Package proc manages worker process lifecycles for the coordinator.
package proc

import (
	"context"
	"time"
)

// ExitEvent reports that a worker process has exited.
type ExitEvent struct {
	// WorkerID identifies the worker whose process exited.
	WorkerID string
	// Err is the process exit error, nil on a clean exit.
	Err error
	// At is when the exit was observed.
	At time.Time
}

// Lifecycle starts and stops worker processes. The health supervisor drives
// restarts through this interface and consumes exit notifications from Exits.
type Lifecycle interface {
	// Start launches the worker process for the given worker id.
	Start(ctx context.Context, workerID string) error
	// Stop terminates the worker process. Stopping a worker that is not
	// running is a no-op.
	Stop(ctx context.Context, workerID string) error
	// Exits delivers exit notifications for workers started through Start.
	Exits() <-chan ExitEvent
}
