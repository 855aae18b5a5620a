package workspace

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// initRepo creates a git repository with one commit on main.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	repo := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %s: %v: %s", strings.Join(args, " "), err, out)
		}
	}

	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(repo, "README"), []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}
	run("add", "-A")
	run("commit", "-q", "-m", "initial")
	return repo
}

func TestCreateWorktree(t *testing.T) {
	repo := initRepo(t)
	m := NewGitManager(repo, filepath.Join(repo, ".worktrees"), "main")

	path, err := m.Create("w1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(path, "README")); err != nil {
		t.Errorf("worktree missing repo contents: %v", err)
	}

	// Idempotent: a second create returns the same path.
	again, err := m.Create("w1")
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if again != path {
		t.Errorf("second Create returned %s, want %s", again, path)
	}
}

func TestCommitChanges(t *testing.T) {
	repo := initRepo(t)
	m := NewGitManager(repo, filepath.Join(repo, ".worktrees"), "main")

	path, err := m.Create("w1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(path, "work.txt"), []byte("output\n"), 0644); err != nil {
		t.Fatal(err)
	}
	rev, err := m.CommitChanges("w1", "worker output")
	if err != nil {
		t.Fatalf("CommitChanges failed: %v", err)
	}
	if len(rev) != 40 {
		t.Errorf("revision = %q, want a full sha", rev)
	}

	// Committing with nothing staged returns the same head.
	same, err := m.CommitChanges("w1", "no changes")
	if err != nil {
		t.Fatalf("empty CommitChanges failed: %v", err)
	}
	if same != rev {
		t.Errorf("empty commit moved head from %s to %s", rev, same)
	}
}

func TestSyncMergesBase(t *testing.T) {
	repo := initRepo(t)
	m := NewGitManager(repo, filepath.Join(repo, ".worktrees"), "main")

	path, err := m.Create("w1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Advance main behind the worker's back.
	if err := os.WriteFile(filepath.Join(repo, "upstream.txt"), []byte("new\n"), 0644); err != nil {
		t.Fatal(err)
	}
	for _, args := range [][]string{{"add", "-A"}, {"commit", "-q", "-m", "upstream"}} {
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}

	if err := m.Sync("w1"); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(path, "upstream.txt")); err != nil {
		t.Errorf("sync did not bring in upstream file: %v", err)
	}
}

func TestRemoveWorktree(t *testing.T) {
	repo := initRepo(t)
	m := NewGitManager(repo, filepath.Join(repo, ".worktrees"), "main")

	path, err := m.Create("w1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.Remove("w1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("worktree directory survived Remove")
	}
}
