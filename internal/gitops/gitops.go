// Package gitops versions the Home Assistant config directory with git,
// so every automation or script the agent writes leaves a reviewable
// commit trail. All operations are failure-tolerant: a broken or absent
// git setup degrades to warnings, never to errors in the conversation.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// commandTimeout bounds every git invocation.
const commandTimeout = 30 * time.Second

// ErrNoChanges is returned by Snapshot when the working tree is clean.
var ErrNoChanges = errors.New("gitops: no changes to commit")

// Config parameterizes a Manager.
type Config struct {
	Enabled     bool
	RepoPath    string
	AuthorName  string
	AuthorEmail string
}

// Commit describes one commit in the config repository.
type Commit struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
	Author  string `json:"author"`
	Date    string `json:"date"`
}

// Manager runs git against the config repository.
type Manager struct {
	cfg         Config
	log         *slog.Logger
	initialized bool
}

// NewManager creates a manager. Call Initialize before the first
// Snapshot, or let Snapshot do it lazily.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg: cfg,
		log: slog.With("component", "gitops"),
	}
}

// Enabled reports whether git versioning is turned on.
func (m *Manager) Enabled() bool {
	return m.cfg.Enabled
}

func (m *Manager) runGit(ctx context.Context, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	full := append([]string{"-C", m.cfg.RepoPath}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String()), err
}

// Initialize makes sure the repo path is a git repository with the
// configured identity, creating it if needed. Returns false when git is
// disabled or the path is unusable.
func (m *Manager) Initialize(ctx context.Context) bool {
	if !m.cfg.Enabled {
		m.log.Info("git versioning disabled")
		return false
	}

	if _, _, err := m.runGit(ctx, "rev-parse", "--git-dir"); err != nil {
		m.log.Info("initializing git repository", "path", m.cfg.RepoPath)
		if _, stderr, err := m.runGit(ctx, "init"); err != nil {
			m.log.Warn("git init failed", "error", err, "stderr", stderr)
			return false
		}
		m.runGit(ctx, "config", "user.name", m.cfg.AuthorName)
		m.runGit(ctx, "config", "user.email", m.cfg.AuthorEmail)
		m.runGit(ctx, "add", "-A")
		m.runGit(ctx, "commit", "-m", "Initial commit", "--allow-empty")
	}

	m.initialized = true
	return true
}

// Snapshot stages the given files (or everything, when none are named)
// and commits them. Returns ErrNoChanges for a clean tree.
func (m *Manager) Snapshot(ctx context.Context, message string, files ...string) (*Commit, error) {
	if !m.cfg.Enabled {
		return nil, ErrNoChanges
	}
	if !m.initialized && !m.Initialize(ctx) {
		return nil, fmt.Errorf("gitops: repository unavailable at %s", m.cfg.RepoPath)
	}

	if len(files) > 0 {
		for _, f := range files {
			m.runGit(ctx, "add", f)
		}
	} else {
		m.runGit(ctx, "add", "-A")
	}

	status, _, err := m.runGit(ctx, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("gitops: status: %w", err)
	}
	if status == "" {
		return nil, ErrNoChanges
	}

	author := fmt.Sprintf("%s <%s>", m.cfg.AuthorName, m.cfg.AuthorEmail)
	if _, stderr, err := m.runGit(ctx, "commit", "-m", message, "--author="+author); err != nil {
		return nil, fmt.Errorf("gitops: commit: %w: %s", err, stderr)
	}

	commit, err := m.LatestCommit(ctx)
	if err != nil {
		return nil, err
	}
	m.log.Info("config snapshot committed", "sha", shortSHA(commit.SHA), "message", message)
	return commit, nil
}

// LatestCommit returns the most recent commit, or nil for an empty repo.
func (m *Manager) LatestCommit(ctx context.Context) (*Commit, error) {
	commits, err := m.Commits(ctx, 1)
	if err != nil || len(commits) == 0 {
		return nil, err
	}
	return &commits[0], nil
}

// Commits returns up to limit recent commits, newest first.
func (m *Manager) Commits(ctx context.Context, limit int) ([]Commit, error) {
	out, stderr, err := m.runGit(ctx, "log", fmt.Sprintf("-%d", limit), "--format=%H|%s|%an|%ai")
	if err != nil {
		if strings.Contains(stderr, "does not have any commits") {
			return nil, nil
		}
		return nil, fmt.Errorf("gitops: log: %w: %s", err, stderr)
	}

	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "|", 4)
		if len(parts) < 4 {
			continue
		}
		commits = append(commits, Commit{
			SHA:     parts[0],
			Message: parts[1],
			Author:  parts[2],
			Date:    parts[3],
		})
	}
	return commits, nil
}

// Diff returns the patch for one commit.
func (m *Manager) Diff(ctx context.Context, sha string) (string, error) {
	out, stderr, err := m.runGit(ctx, "show", sha, "--format=")
	if err != nil {
		return "", fmt.Errorf("gitops: show %s: %w: %s", shortSHA(sha), err, stderr)
	}
	return out, nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
