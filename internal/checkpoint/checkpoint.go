package checkpoint

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/lucasnoah/buildmedic/internal/safety"
)

// GitRunner provides git commands. Interface for testing.
type GitRunner interface {
	Run(dir string, args ...string) (string, error)
}

// ExecGit implements GitRunner using exec.Command.
type ExecGit struct{}

func (g *ExecGit) Run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Snapshot is a checkpoint marker recorded before a run mutates the tree.
// Used only as a rollback target; never mutated.
type Snapshot struct {
	CommitHash string    `json:"commit_hash"`
	Branch     string    `json:"branch"`
	CreatedAt  time.Time `json:"created_at"`
}

// RepoStatus describes the version-control state of a directory.
type RepoStatus struct {
	IsRepo bool   `json:"is_repo"`
	Branch string `json:"branch"`
	Dirty  bool   `json:"dirty"`
}

// maxDiffBytes bounds Diff output so a huge diff cannot grow memory without
// limit.
const maxDiffBytes = 256 * 1024

var hashPattern = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

// Client runs checkpoint operations against one working tree. Every
// operation fails soft: a project without version control degrades to
// "no rollback available" instead of crashing the orchestrator.
type Client struct {
	git GitRunner
	dir string
}

// NewClient creates a Client for the given working tree.
func NewClient(git GitRunner, dir string) *Client {
	return &Client{git: git, dir: dir}
}

// Status reports whether the directory is a git repository, its current
// branch, and whether the tree has uncommitted changes.
func (c *Client) Status() *RepoStatus {
	if _, err := c.git.Run(c.dir, "rev-parse", "--git-dir"); err != nil {
		return &RepoStatus{}
	}
	status := &RepoStatus{IsRepo: true}
	if branch, err := c.git.Run(c.dir, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		status.Branch = branch
	}
	if out, err := c.git.Run(c.dir, "status", "--porcelain"); err == nil {
		status.Dirty = strings.TrimSpace(out) != ""
	}
	return status
}

// Snapshot records the current HEAD as a rollback target. Returns nil when
// the directory is not a repository or has no commits yet.
func (c *Client) Snapshot() *Snapshot {
	hash, err := c.git.Run(c.dir, "rev-parse", "HEAD")
	if err != nil || !hashPattern.MatchString(hash) {
		return nil
	}
	branch, _ := c.git.Run(c.dir, "rev-parse", "--abbrev-ref", "HEAD")
	return &Snapshot{
		CommitHash: hash,
		Branch:     branch,
		CreatedAt:  time.Now().UTC(),
	}
}

// Diff returns the working-tree diff against HEAD, truncated to maxDiffBytes.
func (c *Client) Diff() string {
	out, err := c.git.Run(c.dir, "diff", "HEAD")
	if err != nil {
		return ""
	}
	if len(out) > maxDiffBytes {
		return out[:maxDiffBytes] + "\n... (diff truncated)"
	}
	return out
}

// ChangedFiles lists paths that differ from HEAD, including untracked files.
func (c *Client) ChangedFiles() []string {
	out, err := c.git.Run(c.dir, "status", "--porcelain")
	if err != nil || strings.TrimSpace(out) == "" {
		return nil
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) > 3 {
			files = append(files, strings.TrimSpace(line[3:]))
		}
	}
	return files
}

// Commit stages all changes and commits with the escaped message. Returns
// the new commit hash, or "" when there is nothing to commit or the commit
// fails.
func (c *Client) Commit(message string) string {
	if _, err := c.git.Run(c.dir, "add", "-A"); err != nil {
		return ""
	}
	msg := safety.EscapeCommitMessage(message)
	if msg == "" {
		msg = "buildmedic checkpoint"
	}
	if _, err := c.git.Run(c.dir, "commit", "-m", msg); err != nil {
		return ""
	}
	hash, err := c.git.Run(c.dir, "rev-parse", "HEAD")
	if err != nil || !hashPattern.MatchString(hash) {
		return ""
	}
	return hash
}

// Rollback hard-resets the tree to the given commit. The hash is validated
// against a strict hex pattern before any git command runs, so an
// attacker-controlled hash string cannot smuggle arguments into git.
// Returns false without mutating anything on malformed input or git failure.
func (c *Client) Rollback(commitHash string) bool {
	if !hashPattern.MatchString(commitHash) {
		return false
	}
	if _, err := c.git.Run(c.dir, "reset", "--hard", commitHash); err != nil {
		return false
	}
	return true
}

// RollbackOne undoes the most recent commit (reset --hard HEAD~1). Used by
// the regression guard to drop a just-made fix commit.
func (c *Client) RollbackOne() bool {
	if _, err := c.git.Run(c.dir, "reset", "--hard", "HEAD~1"); err != nil {
		return false
	}
	return true
}

// DiscardChanges reverts tracked-file modifications and removes untracked
// files and directories. Used when a fix attempt is abandoned and commits
// are disabled.
func (c *Client) DiscardChanges() bool {
	if _, err := c.git.Run(c.dir, "checkout", "--", "."); err != nil {
		return false
	}
	if _, err := c.git.Run(c.dir, "clean", "-fd"); err != nil {
		return false
	}
	return true
}
