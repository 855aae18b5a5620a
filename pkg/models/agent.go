package models

import "time"

// AgentState represents the current state of a worker process.
type AgentState string

const (
	// AgentStateIdle indicates the worker is alive but has no task.
	AgentStateIdle AgentState = "idle"
	// AgentStateWorking indicates the worker is executing a task.
	AgentStateWorking AgentState = "working"
	// AgentStateError indicates the worker reported an unrecoverable problem.
	AgentStateError AgentState = "error"
	// AgentStateOffline indicates the worker is no longer running.
	AgentStateOffline AgentState = "offline"
)

// Valid returns true if the state is a known value.
func (s AgentState) Valid() bool {
	switch s {
	case AgentStateIdle, AgentStateWorking, AgentStateError, AgentStateOffline:
		return true
	default:
		return false
	}
}

// AgentMetrics accumulates per-worker counters across the worker's lifetime.
type AgentMetrics struct {
	// Completed counts tasks this worker finished successfully.
	Completed int `json:"completed"`
	// Failed counts tasks this worker failed or abandoned.
	Failed int `json:"failed"`
	// TotalActiveTime is the cumulative time spent in the working state.
	TotalActiveTime time.Duration `json:"total_active_time"`
}

// AgentRecord tracks one worker process in the coordination state.
// Records are created on first heartbeat and updated in place; they are never
// deleted, only transitioned to offline.
type AgentRecord struct {
	// ID is the unique identifier for this worker.
	ID string `json:"id"`
	// Role names the worker's configured role.
	Role string `json:"role"`
	// State is the worker's self-reported state.
	State AgentState `json:"state"`
	// CurrentTaskID is the task the worker is executing. Non-empty only while
	// State is working, and must name a task assigned to this worker.
	CurrentTaskID string `json:"current_task_id,omitempty"`
	// LastHeartbeat is the time of the most recent liveness signal.
	LastHeartbeat time.Time `json:"last_heartbeat"`
	// Metrics holds lifetime counters for this worker.
	Metrics AgentMetrics `json:"metrics"`
}

// Clone returns a copy of the record.
func (a *AgentRecord) Clone() *AgentRecord {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}
