// Package health monitors worker liveness and drives bounded process recovery.
//
// The supervisor polls the last committed coordination snapshot on a fixed
// interval and runs a small state machine per agent: healthy, suspect,
// recovering, failed. It never blocks on the state store's flush queue.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/opsforge/foreman/internal/proc"
	"github.com/opsforge/foreman/pkg/models"
)

// Health is the supervisor's judgment of one agent.
type Health string

const (
	// Healthy means the heartbeat is fresh and the agent is not in error.
	Healthy Health = "healthy"
	// Suspect means the agent looked unhealthy on the last poll.
	Suspect Health = "suspect"
	// Recovering means a stop-then-start restart is in flight or the agent is
	// inside its post-restart backoff window.
	Recovering Health = "recovering"
	// Failed means the restart ceiling was exhausted. Terminal until manual
	// intervention via ResetAgent.
	Failed Health = "failed"
)

// Snapshotter is the slice of the state store the supervisor reads.
type Snapshotter interface {
	Read() (*models.CoordinationState, error)
}

// Config holds the supervisor's tunables.
type Config struct {
	// PollInterval is how often agents are re-evaluated.
	PollInterval time.Duration
	// StalenessThreshold is the maximum heartbeat age before an agent is
	// considered unhealthy. Typically a small multiple of PollInterval.
	StalenessThreshold time.Duration
	// MaxRestarts bounds restart attempts per agent before it is marked failed.
	MaxRestarts int
	// Backoff computes the delay between restart attempts. Defaults to a fixed
	// delay equal to PollInterval.
	Backoff Backoff
}

// track is the supervisor's per-agent bookkeeping.
type track struct {
	health     Health
	restarts   int
	notBefore  time.Time // backoff gate: no re-evaluation before this time
	recovering bool      // a stop-then-start is in flight
}

// Supervisor watches agent heartbeats and restarts wedged workers through the
// process-lifecycle collaborator.
type Supervisor struct {
	store     Snapshotter
	lifecycle proc.Lifecycle
	cfg       Config

	mu     sync.Mutex
	agents map[string]*track

	onFailed func(workerID string)
	logf     func(format string, args ...any)
	wg       sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithFailedHandler sets the callback fired once when an agent reaches the
// failed state. The handler is the fatal signal for external alerting; the
// supervisor itself keeps running.
func WithFailedHandler(fn func(workerID string)) Option {
	return func(s *Supervisor) {
		if fn != nil {
			s.onFailed = fn
		}
	}
}

// WithLogf sets the debug log function.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(s *Supervisor) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// New creates a supervisor. Zero config fields get working defaults.
func New(store Snapshotter, lifecycle proc.Lifecycle, cfg Config, opts ...Option) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.StalenessThreshold <= 0 {
		cfg.StalenessThreshold = 3 * cfg.PollInterval
	}
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = 3
	}
	if cfg.Backoff == nil {
		cfg.Backoff = FixedBackoff{Interval: cfg.PollInterval}
	}

	s := &Supervisor{
		store:     store,
		lifecycle: lifecycle,
		cfg:       cfg,
		agents:    make(map[string]*track),
		onFailed:  func(string) {},
		logf:      func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run polls until the context is cancelled. Exit notifications from the
// lifecycle collaborator clear the affected agent's backoff gate so the next
// poll acts on it immediately.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Evaluate(ctx, time.Now())
		case ev := <-s.lifecycle.Exits():
			s.logf("[health] worker %s exited: %v", ev.WorkerID, ev.Err)
			s.clearGate(ev.WorkerID)
		case <-ctx.Done():
			s.wg.Wait()
			return
		}
	}
}

// Evaluate runs one polling pass against the given time. Exposed so heartbeat
// timelines can be tested without real timers.
func (s *Supervisor) Evaluate(ctx context.Context, now time.Time) {
	state, err := s.store.Read()
	if err != nil {
		s.logf("[health] read state: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, agent := range state.Agents {
		tr, ok := s.agents[id]
		if !ok {
			tr = &track{health: Healthy}
			s.agents[id] = tr
		}

		if tr.health == Failed {
			continue
		}
		// A recovery in progress suppresses re-triggering until it resolves.
		if tr.recovering || now.Before(tr.notBefore) {
			continue
		}

		if s.isHealthy(agent, now) {
			if tr.health != Healthy {
				s.logf("[health] worker %s recovered (heartbeat fresh)", id)
			}
			tr.health = Healthy
			tr.restarts = 0
			continue
		}

		if tr.restarts >= s.cfg.MaxRestarts {
			tr.health = Failed
			s.logf("[health] worker %s FAILED after %d restart attempts, giving up", id, tr.restarts)
			s.onFailed(id)
			continue
		}

		tr.health = Recovering
		tr.recovering = true
		tr.restarts++
		tr.notBefore = now.Add(s.cfg.Backoff.Delay(tr.restarts))
		s.logf("[health] worker %s unhealthy, restart attempt %d/%d",
			id, tr.restarts, s.cfg.MaxRestarts)

		s.wg.Add(1)
		go s.recover(ctx, id, tr)
	}
}

// isHealthy applies the staleness rule: heartbeat age below the threshold and
// the agent not self-reporting an error.
func (s *Supervisor) isHealthy(agent *models.AgentRecord, now time.Time) bool {
	if agent.State == models.AgentStateError {
		return false
	}
	return now.Sub(agent.LastHeartbeat) <= s.cfg.StalenessThreshold
}

// recover performs the stop-then-start sequence for one agent.
func (s *Supervisor) recover(ctx context.Context, workerID string, tr *track) {
	defer s.wg.Done()

	if err := s.lifecycle.Stop(ctx, workerID); err != nil {
		s.logf("[health] stop worker %s: %v", workerID, err)
	}
	if err := s.lifecycle.Start(ctx, workerID); err != nil {
		s.logf("[health] start worker %s: %v", workerID, err)
	}

	s.mu.Lock()
	tr.recovering = false
	s.mu.Unlock()
}

// WaitRecoveries blocks until all in-flight recoveries finish. Test helper and
// shutdown aid.
func (s *Supervisor) WaitRecoveries() {
	s.wg.Wait()
}

// Status returns the supervisor's judgment of one agent. Agents never seen by
// a poll report healthy.
func (s *Supervisor) Status(workerID string) Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tr, ok := s.agents[workerID]; ok {
		return tr.health
	}
	return Healthy
}

// Statuses returns the judgment of every tracked agent.
func (s *Supervisor) Statuses() map[string]Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Health, len(s.agents))
	for id, tr := range s.agents {
		out[id] = tr.health
	}
	return out
}

// RestartCount returns the number of restarts attempted for an agent.
func (s *Supervisor) RestartCount(workerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tr, ok := s.agents[workerID]; ok {
		return tr.restarts
	}
	return 0
}

// ResetAgent clears a failed agent's bookkeeping so supervision resumes. This
// is the manual-intervention escape hatch for the failed state.
func (s *Supervisor) ResetAgent(workerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.agents, workerID)
}

// clearGate drops an agent's backoff gate so the next poll re-evaluates it.
func (s *Supervisor) clearGate(workerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tr, ok := s.agents[workerID]; ok && tr.health != Failed {
		tr.notBefore = time.Time{}
	}
}
