package coordinator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/opsforge/foreman/internal/config"
	"github.com/opsforge/foreman/internal/health"
	"github.com/opsforge/foreman/internal/memory"
	"github.com/opsforge/foreman/internal/proc"
	"github.com/opsforge/foreman/internal/registry"
	"github.com/opsforge/foreman/internal/router"
	"github.com/opsforge/foreman/internal/store"
	"github.com/opsforge/foreman/internal/workspace"
	"github.com/opsforge/foreman/pkg/models"
)

// Coordinator owns the state store, task registry, and health supervisor, and
// exposes the boundary worker processes call into: poll, claim, heartbeat,
// complete, fail.
type Coordinator struct {
	cfg   *config.Config
	roles *config.RolesFile

	store      *store.Store
	registry   *registry.Registry
	supervisor *health.Supervisor
	lifecycle  proc.Lifecycle
	workspaces workspace.Manager
	memory     memory.Store
	logger     *DebugLogger

	mu     sync.Mutex
	agents map[string]*models.AgentRecord
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options carries the optional collaborators for New.
type Options struct {
	// Lifecycle starts and stops worker processes. Nil disables supervision
	// restarts and worker launching.
	Lifecycle proc.Lifecycle
	// Workspaces provisions isolated file trees per worker. Optional.
	Workspaces workspace.Manager
	// Memory is the semantic memory collaborator. Optional.
	Memory memory.Store
	// Logger receives debug output. Nil means no-op.
	Logger *DebugLogger
}

// New opens the state store, restores the registry from the last committed
// snapshot, and assembles the supervisor. Nothing runs until Run is called.
func New(cfg *config.Config, roles *config.RolesFile, opts Options) (*Coordinator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = NopLogger()
	}

	st, err := store.Open(cfg.State.Path,
		store.WithFlushInterval(cfg.State.FlushInterval),
		store.WithMaxFlushFailures(cfg.State.MaxFlushFailures),
		store.WithLogf(logger.Log),
	)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	snapshot, err := st.Read()
	if err != nil {
		return nil, fmt.Errorf("read state snapshot: %w", err)
	}

	reg := registry.New(st)
	reg.Restore(snapshot)

	c := &Coordinator{
		cfg:        cfg,
		roles:      roles,
		store:      st,
		registry:   reg,
		lifecycle:  opts.Lifecycle,
		workspaces: opts.Workspaces,
		memory:     opts.Memory,
		logger:     logger,
		agents:     make(map[string]*models.AgentRecord),
		now:        time.Now,
	}
	for id, a := range snapshot.Agents {
		c.agents[id] = a.Clone()
	}

	if opts.Lifecycle != nil {
		c.supervisor = health.New(st, opts.Lifecycle, health.Config{
			PollInterval:       cfg.Health.PollInterval,
			StalenessThreshold: cfg.Health.StalenessThreshold,
			MaxRestarts:        cfg.Health.MaxRestarts,
			Backoff:            backoffFromConfig(cfg.Health),
		},
			health.WithLogf(logger.Log),
			health.WithFailedHandler(func(workerID string) {
				logger.Log("[coordinator] worker %s declared FAILED, manual intervention required", workerID)
			}),
		)
	}

	return c, nil
}

// backoffFromConfig selects the restart delay policy.
func backoffFromConfig(cfg config.HealthConfig) health.Backoff {
	if cfg.Backoff == "exponential" {
		return health.ExponentialBackoff{Base: cfg.RestartDelay, Max: 10 * cfg.RestartDelay}
	}
	return health.FixedBackoff{Interval: cfg.RestartDelay}
}

// Run starts the store flush loop, the health supervisor, and the declared
// worker processes. It returns once everything is launched; Stop shuts down.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.store.Run(ctx)
	}()

	if c.supervisor != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.supervisor.Run(ctx)
		}()
	}

	if c.lifecycle != nil && c.roles != nil {
		for _, w := range c.roles.Workers {
			if c.workspaces != nil {
				if _, err := c.workspaces.Create(w.ID); err != nil {
					c.logger.Log("[coordinator] create workspace for %s: %v", w.ID, err)
				}
			}
			if err := c.lifecycle.Start(ctx, w.ID); err != nil {
				c.logger.Log("[coordinator] start worker %s: %v", w.ID, err)
			}
		}
	}
	return nil
}

// Stop shuts the coordinator down: workers are stopped, agents are marked
// offline, and queued mutations get a final flush.
func (c *Coordinator) Stop() {
	if c.lifecycle != nil && c.roles != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		for _, w := range c.roles.Workers {
			_ = c.lifecycle.Stop(stopCtx, w.ID)
		}
		cancel()
	}

	c.mu.Lock()
	for _, rec := range c.agents {
		if rec.State != models.AgentStateOffline {
			rec.State = models.AgentStateOffline
			rec.CurrentTaskID = ""
			c.persistAgentLocked(rec)
		}
	}
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Close()
}

// Heartbeat records a liveness signal from a worker. The AgentRecord is
// created on the first beat. currentTaskID may be set only with the working
// state, and only for a task assigned to this worker.
func (c *Coordinator) Heartbeat(workerID string, state models.AgentState, currentTaskID string) (*models.AgentRecord, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: unknown agent state %q", registry.ErrValidation, state)
	}
	if currentTaskID != "" && state != models.AgentStateWorking {
		return nil, fmt.Errorf("%w: current task set while not working", registry.ErrValidation)
	}
	if currentTaskID != "" {
		task, err := c.registry.Get(currentTaskID)
		if err != nil {
			return nil, err
		}
		if task.AssignedTo != workerID {
			return nil, fmt.Errorf("%w: task %s is assigned to %q", registry.ErrForbidden, currentTaskID, task.AssignedTo)
		}
	}

	now := c.now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.agents[workerID]
	if !ok {
		role := ""
		if c.roles != nil {
			role = c.roles.WorkerRoles()[workerID]
		}
		rec = &models.AgentRecord{ID: workerID, Role: role}
		c.agents[workerID] = rec
		c.logger.Log("[coordinator] first heartbeat from worker %s (role %q)", workerID, role)
	}

	// Accumulate active time across consecutive working beats.
	if rec.State == models.AgentStateWorking && !rec.LastHeartbeat.IsZero() {
		rec.Metrics.TotalActiveTime += now.Sub(rec.LastHeartbeat)
	}

	rec.State = state
	rec.CurrentTaskID = currentTaskID
	rec.LastHeartbeat = now

	c.persistAgentLocked(rec)
	return rec.Clone(), nil
}

// Poll returns the tasks the worker should consider claiming: pending,
// dependency-eligible, and routed through the worker's role tags. Ordering
// follows the registry's priority/FIFO contract.
func (c *Coordinator) Poll(workerID string) ([]*models.Task, error) {
	role, err := c.roleFor(workerID)
	if err != nil {
		return nil, err
	}

	candidates := c.registry.Query(registry.Filter{
		Statuses:     []models.TaskStatus{models.TaskStatusPending},
		EligibleOnly: true,
	})
	return router.Route(candidates, role), nil
}

// roleFor resolves a worker's role config from the roles file.
func (c *Coordinator) roleFor(workerID string) (router.RoleConfig, error) {
	if c.roles == nil {
		return router.RoleConfig{}, fmt.Errorf("%w: no roles configured", registry.ErrValidation)
	}
	roleName, ok := c.roles.WorkerRoles()[workerID]
	if !ok {
		return router.RoleConfig{}, fmt.Errorf("%w: unknown worker %s", registry.ErrNotFound, workerID)
	}
	role, ok := c.roles.Role(roleName)
	if !ok {
		return router.RoleConfig{}, fmt.Errorf("%w: unknown role %s", registry.ErrNotFound, roleName)
	}
	return role, nil
}

// ClaimTask claims a task for the worker and moves the agent record to
// working.
func (c *Coordinator) ClaimTask(taskID, workerID string) (*models.Task, error) {
	task, err := c.registry.Claim(taskID, workerID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if rec, ok := c.agents[workerID]; ok {
		rec.State = models.AgentStateWorking
		rec.CurrentTaskID = task.ID
		c.persistAgentLocked(rec)
	}
	c.mu.Unlock()
	return task, nil
}

// CompleteTask completes a task for the worker, attaches results, and updates
// the agent record and its lifetime counters.
func (c *Coordinator) CompleteTask(taskID, workerID string, results *models.TaskResults) (*models.Task, error) {
	task, err := c.registry.Complete(taskID, workerID, results)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if rec, ok := c.agents[workerID]; ok {
		rec.Metrics.Completed++
		rec.State = models.AgentStateIdle
		rec.CurrentTaskID = ""
		c.persistAgentLocked(rec)
	}
	c.mu.Unlock()
	return task, nil
}

// FailTask reports that the worker could not finish a task. The task is moved
// to blocked with the given reason and stays claimable by others once
// unblocked; the worker's failure counter is bumped.
func (c *Coordinator) FailTask(taskID, workerID, reason string) (*models.Task, error) {
	blocked := models.TaskStatusBlocked
	empty := ""
	task, err := c.registry.Update(taskID, registry.TaskPatch{
		Status:     &blocked,
		BlockedBy:  &reason,
		AssignedTo: &empty,
	}, workerID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if rec, ok := c.agents[workerID]; ok {
		rec.Metrics.Failed++
		rec.State = models.AgentStateIdle
		rec.CurrentTaskID = ""
		c.persistAgentLocked(rec)
	}
	c.mu.Unlock()
	return task, nil
}

// Annotate stores content in semantic memory, tagged with the worker id.
func (c *Coordinator) Annotate(workerID, content string, metadata map[string]string) (string, error) {
	if c.memory == nil {
		return "", fmt.Errorf("semantic memory not configured")
	}
	if metadata == nil {
		metadata = make(map[string]string, 1)
	}
	metadata["worker_id"] = workerID
	return c.memory.Store(content, metadata)
}

// Recall searches semantic memory.
func (c *Coordinator) Recall(text string, maxResults int, threshold float64) ([]memory.Result, error) {
	if c.memory == nil {
		return nil, fmt.Errorf("semantic memory not configured")
	}
	return c.memory.Query(text, maxResults, threshold)
}

// persistAgentLocked queues the agent record for the next flush.
func (c *Coordinator) persistAgentLocked(rec *models.AgentRecord) {
	_ = c.store.Commit(map[string]any{"agents." + rec.ID: rec}, rec.ID)
}

// Agents returns copies of all known agent records.
func (c *Coordinator) Agents() []*models.AgentRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*models.AgentRecord, 0, len(c.agents))
	for _, rec := range c.agents {
		out = append(out, rec.Clone())
	}
	return out
}

// Registry exposes the task registry for CLI and dashboard use.
func (c *Coordinator) Registry() *registry.Registry {
	return c.registry
}

// Store exposes the state store for CLI and dashboard use.
func (c *Coordinator) Store() *store.Store {
	return c.store
}

// Supervisor exposes the health supervisor; nil when no lifecycle is
// configured.
func (c *Coordinator) Supervisor() *health.Supervisor {
	return c.supervisor
}

// StateDir returns the directory holding the durable document, used for logs
// and auxiliary files.
func (c *Coordinator) StateDir() string {
	return filepath.Dir(c.cfg.State.Path)
}
