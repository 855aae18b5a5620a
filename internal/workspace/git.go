package workspace

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitManager implements Manager with git worktrees: one branch and worktree
// per worker under the configured root.
type GitManager struct {
	repoPath   string
	root       string
	baseBranch string
}

// NewGitManager creates a worktree manager for the repository at repoPath.
// Worktrees are created under root; workers sync from baseBranch.
func NewGitManager(repoPath, root, baseBranch string) *GitManager {
	if baseBranch == "" {
		baseBranch = "main"
	}
	return &GitManager{repoPath: repoPath, root: root, baseBranch: baseBranch}
}

// run executes a git command in the given directory and returns its output.
func (m *GitManager) run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// branchName returns the per-worker branch name.
func (m *GitManager) branchName(workerID string) string {
	return "foreman/" + workerID
}

// workerPath returns the per-worker worktree path.
func (m *GitManager) workerPath(workerID string) string {
	return filepath.Join(m.root, workerID)
}

// Create adds a worktree with a fresh branch for the worker. If the worktree
// already exists, its path is returned unchanged.
func (m *GitManager) Create(workerID string) (string, error) {
	path := m.workerPath(workerID)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.MkdirAll(m.root, 0755); err != nil {
		return "", fmt.Errorf("create worktree root: %w", err)
	}

	branch := m.branchName(workerID)
	if m.branchExists(branch) {
		if _, err := m.run(m.repoPath, "worktree", "add", path, branch); err != nil {
			return "", err
		}
		return path, nil
	}
	if _, err := m.run(m.repoPath, "worktree", "add", path, "-b", branch); err != nil {
		return "", err
	}
	return path, nil
}

// branchExists returns true if the branch exists in the repository.
func (m *GitManager) branchExists(branch string) bool {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	cmd.Dir = m.repoPath
	return cmd.Run() == nil
}

// CommitChanges stages and commits everything in the worker's worktree and
// returns the new revision. Committing with no changes is not an error; the
// current HEAD revision is returned.
func (m *GitManager) CommitChanges(workerID, message string) (string, error) {
	path := m.workerPath(workerID)

	status, err := m.run(path, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	if status != "" {
		if _, err := m.run(path, "add", "-A"); err != nil {
			return "", err
		}
		if _, err := m.run(path, "commit", "-m", message); err != nil {
			return "", err
		}
	}
	return m.run(path, "rev-parse", "HEAD")
}

// Sync merges the base branch into the worker's branch. A merge conflict is
// surfaced as an error after aborting the merge; resolution policy belongs to
// the caller.
func (m *GitManager) Sync(workerID string) error {
	path := m.workerPath(workerID)
	if _, err := m.run(path, "merge", "--no-edit", m.baseBranch); err != nil {
		_, _ = m.run(path, "merge", "--abort")
		return fmt.Errorf("sync worker %s from %s: %w", workerID, m.baseBranch, err)
	}
	return nil
}

// Remove deletes the worker's worktree and branch.
func (m *GitManager) Remove(workerID string) error {
	path := m.workerPath(workerID)
	if _, err := m.run(m.repoPath, "worktree", "remove", "--force", path); err != nil {
		return err
	}
	_, _ = m.run(m.repoPath, "branch", "-D", m.branchName(workerID))
	return nil
}

// Verify GitManager implements Manager at compile time.
var _ Manager = (*GitManager)(nil)
