// Package worktree manages isolated git worktrees for parallel sub-task
// fan-out during a package build.
//
// Each sub-task gets its own branch and working copy so concurrent agents
// never touch the same files. Worktree paths and branch names are derived
// deterministically from (repository, base branch, task name), so a crashed
// and resumed build reuses the same locations.
//
// IMPORTANT: This package may import internal/constants, internal/errors,
// internal/config, internal/domain, and internal/git. It MUST NOT import
// internal/engine, internal/spec, or internal/orchestrator.
package worktree

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fabrica-build/fabrica/internal/config"
	"github.com/fabrica-build/fabrica/internal/constants"
	"github.com/fabrica-build/fabrica/internal/domain"
	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
	"github.com/fabrica-build/fabrica/internal/git"
)

// branchPrefix namespaces all Fabrica-managed branches.
const branchPrefix = "fabrica"

// Task is one unit of parallel work: a name plus the function executed
// inside the task's worktree.
type Task struct {
	// Name identifies the task and seeds branch and path naming.
	Name string

	// Fn is executed with the task's worktree. It must confine all file
	// mutation to the worktree path.
	Fn TaskFunc
}

// TaskFunc is the work executed inside a worktree.
type TaskFunc func(ctx context.Context, wt domain.Worktree) error

// Conflict records a branch whose merge back into the base branch failed.
// The branch is preserved for manual resolution.
type Conflict struct {
	// TaskName is the originating task.
	TaskName string `json:"task_name"`

	// Branch is the preserved branch name.
	Branch string `json:"branch"`

	// Detail is the merge error text.
	Detail string `json:"detail"`
}

// MergeReport summarizes the sequential merge phase of a fan-out.
type MergeReport struct {
	// Merged lists the task names merged back into the base branch.
	Merged []string `json:"merged"`

	// Conflicts lists tasks whose branches could not be merged.
	Conflicts []Conflict `json:"conflicts"`
}

// Manager creates, runs, merges, and cleans up task worktrees for one
// repository.
type Manager struct {
	repoPath        string
	baseBranch      string
	baseDir         string
	abortOnConflict bool
	maxParallel     int
	logger          zerolog.Logger
}

// NewManager creates a Manager rooted at the given repository. Returns
// ErrNotGitRepo when repoPath is not inside a git repository.
func NewManager(ctx context.Context, repoPath string, wtCfg config.WorktreeConfig, gitCfg config.GitConfig, logger zerolog.Logger) (*Manager, error) {
	root, err := git.DetectRepoRoot(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	baseDir := wtCfg.BaseDir
	if baseDir == "" {
		baseDir = filepath.Join(filepath.Dir(root), filepath.Base(root)+"-worktrees")
	}

	maxParallel := wtCfg.MaxParallel
	if maxParallel < 1 {
		maxParallel = constants.DefaultWorktreeParallel
	}

	return &Manager{
		repoPath:        root,
		baseBranch:      gitCfg.BaseBranch,
		baseDir:         baseDir,
		abortOnConflict: wtCfg.AbortOnConflict,
		maxParallel:     maxParallel,
		logger:          logger,
	}, nil
}

// BranchName derives the deterministic branch for a task.
func (m *Manager) BranchName(taskName string) string {
	return fmt.Sprintf("%s/%s/%s", branchPrefix, git.SanitizeBranchName(m.baseBranch), git.SanitizeBranchName(taskName))
}

// Path derives the deterministic worktree path for a task.
func (m *Manager) Path(taskName string) string {
	return filepath.Join(m.baseDir, git.SanitizeBranchName(taskName))
}

// Create adds a worktree for the task on a fresh branch off the base branch.
// Returns ErrWorktreeExists if the path is already occupied.
func (m *Manager) Create(ctx context.Context, taskName string) (*domain.Worktree, error) {
	if taskName == "" {
		return nil, fmt.Errorf("task name cannot be empty: %w", fabricaerrors.ErrEmptyValue)
	}

	branch := m.BranchName(taskName)
	path := m.Path(taskName)

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", fabricaerrors.ErrWorktreeExists, path)
	}
	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create worktree base dir: %w", err)
	}

	// A leftover branch from a crashed run is reset to the base branch.
	if exists, err := git.BranchExists(ctx, m.repoPath, branch); err == nil && exists {
		if err := git.DeleteBranch(ctx, m.repoPath, branch, true); err != nil {
			return nil, err
		}
	}

	_, err := git.RunCommand(ctx, m.repoPath, "worktree", "add", "-b", branch, path, m.baseBranch)
	if err != nil {
		return nil, err
	}

	m.logger.Debug().
		Str("task", taskName).
		Str("branch", branch).
		Str("path", path).
		Msg("worktree created")

	return &domain.Worktree{
		Path:       path,
		BranchName: branch,
		TaskName:   taskName,
	}, nil
}

// Remove deletes a worktree. When keepBranch is false the branch is force
// deleted as well.
func (m *Manager) Remove(ctx context.Context, wt *domain.Worktree, keepBranch bool) error {
	if _, err := git.RunCommand(ctx, m.repoPath, "worktree", "remove", "--force", wt.Path); err != nil {
		return err
	}
	if keepBranch {
		return nil
	}
	return git.DeleteBranch(ctx, m.repoPath, wt.BranchName, true)
}

// Run executes the tasks in parallel worktrees, at most maxParallel at a
// time, then sequentially merges each completed branch back into the base
// branch. Worktrees are removed on every path; branches survive only when
// their merge conflicted.
//
// Task errors cancel the remaining tasks and fail the whole run. Merge
// conflicts are reported in the MergeReport: with abort_on_conflict set the
// merge phase stops at the first conflict, otherwise the conflicting branch
// is skipped and the merge continues.
func (m *Manager) Run(ctx context.Context, tasks []Task) (*MergeReport, error) {
	if len(tasks) == 0 {
		return &MergeReport{}, nil
	}

	worktrees := make([]*domain.Worktree, 0, len(tasks))
	defer func() {
		for _, wt := range worktrees {
			if wt.Path == "" {
				continue
			}
			// Cleanup must run even when ctx is canceled.
			if err := m.Remove(context.WithoutCancel(ctx), wt, false); err != nil {
				m.logger.Warn().Err(err).Str("path", wt.Path).Msg("worktree cleanup failed")
			}
		}
	}()

	for _, task := range tasks {
		wt, err := m.Create(ctx, task.Name)
		if err != nil {
			return nil, err
		}
		worktrees = append(worktrees, wt)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxParallel)
	for i, task := range tasks {
		wt := *worktrees[i]
		fn := task.Fn
		g.Go(func() error {
			if err := fn(gctx, wt); err != nil {
				return fmt.Errorf("task %s: %w", wt.TaskName, err)
			}
			return git.CommitAll(gctx, wt.Path, "fabrica: "+wt.TaskName)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return m.mergeSequentially(ctx, worktrees)
}

// mergeSequentially merges each task branch into the base branch, one at a
// time, in task order. Conflicting branches are preserved; their worktree
// entry is flagged so the deferred cleanup keeps the branch.
func (m *Manager) mergeSequentially(ctx context.Context, worktrees []*domain.Worktree) (*MergeReport, error) {
	if err := git.Checkout(ctx, m.repoPath, m.baseBranch); err != nil {
		return nil, err
	}

	report := &MergeReport{}
	skip := false
	for _, wt := range worktrees {
		if skip {
			m.preserveBranch(ctx, wt, report, "merge phase aborted by earlier conflict")
			continue
		}

		err := git.Merge(ctx, m.repoPath, wt.BranchName)
		switch {
		case err == nil:
			report.Merged = append(report.Merged, wt.TaskName)
		case stderrors.Is(err, fabricaerrors.ErrMergeConflict):
			m.preserveBranch(ctx, wt, report, err.Error())
			if m.abortOnConflict {
				skip = true
			}
		default:
			return nil, err
		}
	}

	m.logger.Info().
		Int("merged", len(report.Merged)).
		Int("conflicts", len(report.Conflicts)).
		Msg("worktree merge complete")
	return report, nil
}

// preserveBranch records a conflict and detaches the worktree from the
// branch so the deferred cleanup does not delete it. The worktree itself is
// removed; re-creating it from the preserved branch is a manual step.
func (m *Manager) preserveBranch(ctx context.Context, wt *domain.Worktree, report *MergeReport, detail string) {
	report.Conflicts = append(report.Conflicts, Conflict{
		TaskName: wt.TaskName,
		Branch:   wt.BranchName,
		Detail:   detail,
	})
	if err := m.Remove(context.WithoutCancel(ctx), wt, true); err != nil {
		m.logger.Warn().Err(err).Str("path", wt.Path).Msg("conflicted worktree cleanup failed")
	}
	// Mark as already removed for the deferred cleanup.
	wt.Path = ""
}
