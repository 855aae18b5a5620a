package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opsforge/foreman/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	s := newTestStore(t)

	if got := s.Version(); got != 0 {
		t.Errorf("expected version 0, got %d", got)
	}
	state, err := s.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(state.Tasks) != 0 || len(state.Agents) != 0 {
		t.Errorf("expected empty state, got %d tasks, %d agents",
			len(state.Tasks), len(state.Agents))
	}
}

func TestFlushBumpsVersionOncePerBatch(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"t1", "t2", "t3"} {
		task := &models.Task{ID: id, Title: id, Status: models.TaskStatusPending, Priority: 3}
		if err := s.Commit(map[string]any{"tasks." + id: task}, "test"); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := s.Version(); got != 1 {
		t.Errorf("expected version 1 after one flush of three commits, got %d", got)
	}

	state, err := s.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(state.Tasks) != 3 {
		t.Errorf("expected 3 tasks after flush, got %d", len(state.Tasks))
	}
}

func TestFlushEmptyQueueIsNoOp(t *testing.T) {
	s := newTestStore(t)

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := s.Version(); got != 0 {
		t.Errorf("no-op flush bumped version to %d", got)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Error("no-op flush wrote the document")
	}
}

func TestReadSeesOnlyCommittedState(t *testing.T) {
	s := newTestStore(t)

	task := &models.Task{ID: "t1", Title: "pending write", Status: models.TaskStatusPending, Priority: 3}
	if err := s.Commit(map[string]any{"tasks.t1": task}, "test"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	state, _ := s.Read()
	if len(state.Tasks) != 0 {
		t.Error("Read exposed a queued, unflushed mutation")
	}
	if got := s.PendingCount(); got != 1 {
		t.Errorf("expected 1 pending mutation, got %d", got)
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	state, _ = s.Read()
	if _, ok := state.Tasks["t1"]; !ok {
		t.Error("flushed mutation not visible to Read")
	}
}

func TestCommitNilDeletesPath(t *testing.T) {
	s := newTestStore(t)

	task := &models.Task{ID: "t1", Title: "doomed", Status: models.TaskStatusPending, Priority: 3}
	s.Commit(map[string]any{"tasks.t1": task}, "test")
	s.Flush()

	s.Commit(map[string]any{"tasks.t1": nil}, "test")
	s.Flush()

	state, _ := s.Read()
	if _, ok := state.Tasks["t1"]; ok {
		t.Error("nil commit did not delete the task")
	}
	if got := s.Version(); got != 2 {
		t.Errorf("expected version 2, got %d", got)
	}
}

func TestMutationOrderPreserved(t *testing.T) {
	s := newTestStore(t)

	s.Commit(map[string]any{"tasks.t1": &models.Task{ID: "t1", Title: "first", Status: models.TaskStatusPending, Priority: 3}}, "a")
	s.Commit(map[string]any{"tasks.t1": &models.Task{ID: "t1", Title: "second", Status: models.TaskStatusPending, Priority: 3}}, "b")
	s.Flush()

	state, _ := s.Read()
	if got := state.Tasks["t1"].Title; got != "second" {
		t.Errorf("later mutation did not win: got title %q", got)
	}
}

func TestCommitSnapshotsValueAtEnqueue(t *testing.T) {
	s := newTestStore(t)

	task := &models.Task{ID: "t1", Title: "original", Status: models.TaskStatusPending, Priority: 3}
	s.Commit(map[string]any{"tasks.t1": task}, "test")
	task.Title = "mutated after commit"
	s.Flush()

	state, _ := s.Read()
	if got := state.Tasks["t1"].Title; got != "original" {
		t.Errorf("caller-side mutation leaked into flush: got %q", got)
	}
}

func TestBackupRotation(t *testing.T) {
	s := newTestStore(t)

	s.Commit(map[string]any{"tasks.t1": &models.Task{ID: "t1", Title: "v1", Status: models.TaskStatusPending, Priority: 3}}, "test")
	s.Flush()
	s.Commit(map[string]any{"tasks.t2": &models.Task{ID: "t2", Title: "v2", Status: models.TaskStatusPending, Priority: 3}}, "test")
	s.Flush()

	bak, err := loadDocument(s.BackupPath())
	if err != nil {
		t.Fatalf("backup unreadable after second flush: %v", err)
	}
	if got := docVersion(bak); got != 1 {
		t.Errorf("backup should hold the previous generation (version 1), got %d", got)
	}
}

func TestOpenRecoversFromBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.Commit(map[string]any{"tasks.t1": &models.Task{ID: "t1", Title: "keep", Status: models.TaskStatusPending, Priority: 3}}, "test")
	s.Flush()
	s.Commit(map[string]any{"tasks.t2": &models.Task{ID: "t2", Title: "lost", Status: models.TaskStatusPending, Priority: 3}}, "test")
	s.Flush()

	// Simulate a torn primary write.
	if err := os.WriteFile(path, []byte(`{"version": 2, "tasks": {`), 0644); err != nil {
		t.Fatalf("corrupt primary: %v", err)
	}

	recovered, err := Open(path)
	if err != nil {
		t.Fatalf("Open with corrupt primary failed: %v", err)
	}
	state, _ := recovered.Read()
	if _, ok := state.Tasks["t1"]; !ok {
		t.Error("backup recovery lost task t1")
	}
	if recovered.Version() != 1 {
		t.Errorf("expected backup version 1, got %d", recovered.Version())
	}
}

func TestOpenBothCorruptFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	os.WriteFile(path, []byte("not json"), 0644)
	os.WriteFile(path+".bak", []byte("also not json"), 0644)

	_, err := Open(path)
	if !errors.Is(err, ErrCorruptState) {
		t.Errorf("expected ErrCorruptState, got %v", err)
	}
}

func TestFlushFailureRequeuesMutations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	var fatal error
	s, err := Open(path,
		WithMaxFlushFailures(2),
		WithFatalHandler(func(err error) { fatal = err }),
	)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// Occupy the temp path with a directory so the write fails.
	if err := os.Mkdir(path+".tmp", 0755); err != nil {
		t.Fatalf("block temp path: %v", err)
	}

	s.Commit(map[string]any{"tasks.t1": &models.Task{ID: "t1", Title: "survives", Status: models.TaskStatusPending, Priority: 3}}, "test")

	if err := s.Flush(); err != nil {
		t.Fatalf("first failed flush should not be fatal: %v", err)
	}
	if got := s.PendingCount(); got != 1 {
		t.Errorf("failed flush dropped mutations: pending %d", got)
	}
	if got := s.Version(); got != 0 {
		t.Errorf("failed flush bumped version to %d", got)
	}

	// Second consecutive failure reaches the ceiling.
	if err := s.Flush(); err == nil {
		t.Error("flush at the failure ceiling should return an error")
	}
	if fatal == nil {
		t.Error("fatal handler did not fire at the failure ceiling")
	}

	// Clearing the obstruction lets the retried mutation land.
	os.Remove(path + ".tmp")
	if err := s.Flush(); err != nil {
		t.Fatalf("flush after clearing obstruction failed: %v", err)
	}
	state, _ := s.Read()
	if _, ok := state.Tasks["t1"]; !ok {
		t.Error("re-queued mutation was lost")
	}
	if got := s.Version(); got != 1 {
		t.Errorf("expected version 1 after recovery, got %d", got)
	}
}

func TestReadPath(t *testing.T) {
	s := newTestStore(t)

	s.Commit(map[string]any{"tasks.t1": &models.Task{ID: "t1", Title: "needle", Status: models.TaskStatusPending, Priority: 3}}, "test")
	s.Flush()

	v, ok := s.ReadPath("tasks.t1")
	if !ok {
		t.Fatal("ReadPath missed an existing path")
	}
	if m, ok := v.(map[string]any); !ok || m["title"] != "needle" {
		t.Errorf("unexpected value at path: %#v", v)
	}
	if _, ok := s.ReadPath("tasks.nope"); ok {
		t.Error("ReadPath found a missing path")
	}
	if _, ok := s.ReadPath("tasks.t1.title.deeper"); ok {
		t.Error("ReadPath traversed through a scalar")
	}
}

func TestReopenPreservesState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s, _ := Open(path)
	s.Commit(map[string]any{"tasks.t1": &models.Task{ID: "t1", Title: "durable", Status: models.TaskStatusCompleted, Priority: 4}}, "test")
	s.Flush()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	state, _ := reopened.Read()
	task, ok := state.Tasks["t1"]
	if !ok {
		t.Fatal("task lost across reopen")
	}
	if task.Status != models.TaskStatusCompleted || task.Priority != 4 {
		t.Errorf("task fields lost across reopen: %+v", task)
	}
	if reopened.Version() != 1 {
		t.Errorf("version lost across reopen: %d", reopened.Version())
	}
}
