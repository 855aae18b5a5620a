package models

import (
	"testing"
	"time"
)

func TestAgentStateValid(t *testing.T) {
	for _, s := range []AgentState{AgentStateIdle, AgentStateWorking, AgentStateError, AgentStateOffline} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if AgentState("sleeping").Valid() {
		t.Error("unknown agent state reported valid")
	}
}

func TestCoordinationStateClone(t *testing.T) {
	s := NewCoordinationState()
	s.Version = 7
	s.Tasks["t1"] = &Task{ID: "t1", Title: "original", Tags: []string{"a"}}
	s.Agents["w1"] = &AgentRecord{ID: "w1", State: AgentStateIdle, LastHeartbeat: time.Now()}

	cp := s.Clone()
	cp.Tasks["t1"].Title = "tampered"
	cp.Tasks["t1"].Tags[0] = "b"
	cp.Agents["w1"].State = AgentStateError
	cp.Tasks["t2"] = &Task{ID: "t2"}

	if s.Tasks["t1"].Title != "original" || s.Tasks["t1"].Tags[0] != "a" {
		t.Error("Clone shares task data")
	}
	if s.Agents["w1"].State != AgentStateIdle {
		t.Error("Clone shares agent records")
	}
	if len(s.Tasks) != 1 {
		t.Error("Clone shares the task map")
	}
	if cp.Version != 7 {
		t.Error("Clone lost version")
	}
}
