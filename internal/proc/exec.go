package proc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// stopGrace is how long Stop waits after SIGTERM before sending SIGKILL.
const stopGrace = 5 * time.Second

// ExecLifecycle launches workers as child processes of the coordinator.
// Each worker runs the configured command with its id and role exported in
// the environment.
type ExecLifecycle struct {
	command string
	args    []string
	workDir string
	roles   map[string]string

	mu      sync.Mutex
	running map[string]*exec.Cmd
	exits   chan ExitEvent
	logf    func(format string, args ...any)
}

// NewExecLifecycle creates a lifecycle manager that runs the given command for
// every worker. roles maps worker id to role name for the worker environment.
func NewExecLifecycle(command string, args []string, workDir string, roles map[string]string) *ExecLifecycle {
	return &ExecLifecycle{
		command: command,
		args:    args,
		workDir: workDir,
		roles:   roles,
		running: make(map[string]*exec.Cmd),
		exits:   make(chan ExitEvent, 16),
		logf:    func(string, ...any) {},
	}
}

// SetLogf sets the debug log function.
func (l *ExecLifecycle) SetLogf(logf func(format string, args ...any)) {
	if logf != nil {
		l.logf = logf
	}
}

// Start launches the worker process. Starting an already-running worker is an
// error; callers stop first.
func (l *ExecLifecycle) Start(ctx context.Context, workerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.running[workerID]; ok {
		return fmt.Errorf("worker %s already running", workerID)
	}

	cmd := exec.Command(l.command, l.args...)
	if l.workDir != "" {
		cmd.Dir = l.workDir
	}
	cmd.Env = append(os.Environ(),
		"FOREMAN_WORKER_ID="+workerID,
		"FOREMAN_WORKER_ROLE="+l.roles[workerID],
	)
	// Own process group so Stop can signal the worker and its children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker %s: %w", workerID, err)
	}
	l.running[workerID] = cmd
	l.logf("[proc] started worker %s (pid %d)", workerID, cmd.Process.Pid)

	go l.wait(workerID, cmd)
	return nil
}

// wait blocks on the process and publishes its exit.
func (l *ExecLifecycle) wait(workerID string, cmd *exec.Cmd) {
	err := cmd.Wait()

	l.mu.Lock()
	if l.running[workerID] == cmd {
		delete(l.running, workerID)
	}
	l.mu.Unlock()

	l.logf("[proc] worker %s exited: %v", workerID, err)
	select {
	case l.exits <- ExitEvent{WorkerID: workerID, Err: err, At: time.Now()}:
	default:
		// Nobody draining exits; drop rather than block the waiter.
	}
}

// Stop terminates the worker with SIGTERM, escalating to SIGKILL after a grace
// period. Stopping a worker that is not running is a no-op.
func (l *ExecLifecycle) Stop(ctx context.Context, workerID string) error {
	l.mu.Lock()
	cmd, ok := l.running[workerID]
	l.mu.Unlock()
	if !ok || cmd.Process == nil {
		return nil
	}

	pgid := -cmd.Process.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
		// Process may have exited between the lookup and the signal.
		return nil
	}

	deadline := time.NewTimer(stopGrace)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = syscall.Kill(pgid, syscall.SIGKILL)
			return ctx.Err()
		case <-deadline.C:
			l.logf("[proc] worker %s did not exit after SIGTERM, killing", workerID)
			_ = syscall.Kill(pgid, syscall.SIGKILL)
			return nil
		case <-tick.C:
			l.mu.Lock()
			_, stillRunning := l.running[workerID]
			l.mu.Unlock()
			if !stillRunning {
				return nil
			}
		}
	}
}

// Exits returns the exit notification channel.
func (l *ExecLifecycle) Exits() <-chan ExitEvent {
	return l.exits
}

// RunningCount returns the number of live worker processes.
func (l *ExecLifecycle) RunningCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.running)
}

// Verify ExecLifecycle implements Lifecycle at compile time.
var _ Lifecycle = (*ExecLifecycle)(nil)
