package models

import "time"

// CoordinationState is the versioned document holding all coordination state.
// It is created empty on first boot, loaded from durable storage thereafter,
// and mutated only through the state store's commit path.
type CoordinationState struct {
	// Version increases monotonically, once per committed flush.
	Version int64 `json:"version"`
	// Tasks maps task ID to task.
	Tasks map[string]*Task `json:"tasks"`
	// Agents maps worker ID to its record.
	Agents map[string]*AgentRecord `json:"agents"`
	// LastUpdated is the timestamp of the last commit.
	LastUpdated time.Time `json:"last_updated"`
}

// NewCoordinationState returns an empty state document.
func NewCoordinationState() *CoordinationState {
	return &CoordinationState{
		Tasks:  make(map[string]*Task),
		Agents: make(map[string]*AgentRecord),
	}
}

// Clone returns a deep copy of the state.
func (s *CoordinationState) Clone() *CoordinationState {
	if s == nil {
		return nil
	}
	cp := &CoordinationState{
		Version:     s.Version,
		LastUpdated: s.LastUpdated,
		Tasks:       make(map[string]*Task, len(s.Tasks)),
		Agents:      make(map[string]*AgentRecord, len(s.Agents)),
	}
	for id, t := range s.Tasks {
		cp.Tasks[id] = t.Clone()
	}
	for id, a := range s.Agents {
		cp.Agents[id] = a.Clone()
	}
	return cp
}
