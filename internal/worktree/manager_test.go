package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fabrica-build/fabrica/internal/config"
	"github.com/fabrica-build/fabrica/internal/domain"
	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
	"github.com/fabrica-build/fabrica/internal/git"
	"github.com/fabrica-build/fabrica/internal/testutil"
)

// initTestRepo creates a git repository with one commit on main.
func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	ctx := context.Background()

	run := func(args ...string) {
		t.Helper()
		_, err := git.RunCommand(ctx, dir, args...)
		require.NoError(t, err)
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o600))
	require.NoError(t, git.CommitAll(ctx, dir, "initial commit"))
	return dir
}

func newTestManager(t *testing.T, repo string, abortOnConflict bool) *Manager {
	t.Helper()
	m, err := NewManager(context.Background(), repo,
		config.WorktreeConfig{
			BaseDir:         filepath.Join(t.TempDir(), "worktrees"),
			AbortOnConflict: abortOnConflict,
		},
		config.GitConfig{BaseBranch: "main"},
		zerolog.Nop(),
	)
	require.NoError(t, err)
	return m
}

func TestNewManager_RejectsNonRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	_, err := NewManager(context.Background(), t.TempDir(),
		config.WorktreeConfig{}, config.GitConfig{BaseBranch: "main"}, zerolog.Nop())
	require.ErrorIs(t, err, fabricaerrors.ErrNotGitRepo)
}

func TestManager_DeterministicNaming(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t, repo, false)

	branch := m.BranchName("Add HTTP client")
	require.Equal(t, "fabrica/main/add-http-client", branch)
	require.Equal(t, branch, m.BranchName("Add HTTP client"))

	path := m.Path("Add HTTP client")
	require.Equal(t, path, m.Path("Add HTTP client"))
	require.NotEqual(t, path, m.Path("other task"))
}

func TestManager_CreateAndRemove(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t, repo, false)
	ctx := context.Background()

	wt, err := m.Create(ctx, "task one")
	require.NoError(t, err)
	require.DirExists(t, wt.Path)

	branch, err := git.CurrentBranch(ctx, wt.Path)
	require.NoError(t, err)
	require.Equal(t, wt.BranchName, branch)

	// A second create for the same task collides on the path.
	_, err = m.Create(ctx, "task one")
	require.ErrorIs(t, err, fabricaerrors.ErrWorktreeExists)

	require.NoError(t, m.Remove(ctx, wt, false))
	require.NoDirExists(t, wt.Path)

	exists, err := git.BranchExists(ctx, repo, wt.BranchName)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestManager_RunMergesAllTasks(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t, repo, false)
	ctx := context.Background()

	writeTask := func(name string) Task {
		return Task{
			Name: name,
			Fn: func(_ context.Context, wt domain.Worktree) error {
				return os.WriteFile(filepath.Join(wt.Path, name+".txt"), []byte(name+"\n"), 0o600)
			},
		}
	}

	report, err := m.Run(ctx, []Task{writeTask("alpha"), writeTask("beta"), writeTask("gamma")})
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta", "gamma"}, report.Merged)
	require.Empty(t, report.Conflicts)

	// All task files landed on main.
	for _, name := range []string{"alpha", "beta", "gamma"} {
		require.FileExists(t, filepath.Join(repo, name+".txt"))
	}

	// Every worktree and branch was cleaned up.
	for _, name := range []string{"alpha", "beta", "gamma"} {
		require.NoDirExists(t, m.Path(name))
		exists, bErr := git.BranchExists(ctx, repo, m.BranchName(name))
		require.NoError(t, bErr)
		require.False(t, exists)
	}
}

func TestManager_RunBoundsParallelism(t *testing.T) {
	repo := initTestRepo(t)
	m, err := NewManager(context.Background(), repo,
		config.WorktreeConfig{
			BaseDir:     filepath.Join(t.TempDir(), "worktrees"),
			MaxParallel: 2,
		},
		config.GitConfig{BaseBranch: "main"},
		zerolog.Nop(),
	)
	require.NoError(t, err)

	var active, peak atomic.Int32
	task := func(name string) Task {
		return Task{
			Name: name,
			Fn: func(_ context.Context, wt domain.Worktree) error {
				cur := active.Add(1)
				for {
					p := peak.Load()
					if cur <= p || peak.CompareAndSwap(p, cur) {
						break
					}
				}
				time.Sleep(30 * time.Millisecond)
				active.Add(-1)
				return os.WriteFile(filepath.Join(wt.Path, name+".txt"), []byte("x\n"), 0o600)
			},
		}
	}

	report, err := m.Run(context.Background(), []Task{
		task("one"), task("two"), task("three"), task("four"), task("five"),
	})
	require.NoError(t, err)
	require.Len(t, report.Merged, 5)
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestManager_RunEmptyTaskList(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t, repo, false)

	report, err := m.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, report.Merged)
	require.Empty(t, report.Conflicts)
}

func TestManager_RunTaskFailureCleansUp(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t, repo, false)

	tasks := []Task{
		{
			Name: "good",
			Fn: func(_ context.Context, wt domain.Worktree) error {
				return os.WriteFile(filepath.Join(wt.Path, "good.txt"), []byte("x\n"), 0o600)
			},
		},
		{
			Name: "bad",
			Fn: func(_ context.Context, _ domain.Worktree) error {
				return testutil.ErrMockTaskFailure
			},
		},
	}

	_, err := m.Run(context.Background(), tasks)
	require.ErrorIs(t, err, testutil.ErrMockTaskFailure)

	// Nothing merged, all worktrees removed.
	require.NoFileExists(t, filepath.Join(repo, "good.txt"))
	require.NoDirExists(t, m.Path("good"))
	require.NoDirExists(t, m.Path("bad"))
}

func TestManager_RunConflictPreservesBranch(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t, repo, false)
	ctx := context.Background()

	// Both tasks rewrite README.md so the second merge conflicts.
	conflictTask := func(name, content string) Task {
		return Task{
			Name: name,
			Fn: func(_ context.Context, wt domain.Worktree) error {
				return os.WriteFile(filepath.Join(wt.Path, "README.md"), []byte(content), 0o600)
			},
		}
	}

	report, err := m.Run(ctx, []Task{
		conflictTask("first", "first version\n"),
		conflictTask("second", "second version\n"),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"first"}, report.Merged)
	require.Len(t, report.Conflicts, 1)
	require.Equal(t, "second", report.Conflicts[0].TaskName)

	// The conflicting branch survives for manual resolution.
	exists, err := git.BranchExists(ctx, repo, report.Conflicts[0].Branch)
	require.NoError(t, err)
	require.True(t, exists)

	// The base branch carries the first task's version.
	content, err := os.ReadFile(filepath.Join(repo, "README.md"))
	require.NoError(t, err)
	require.Equal(t, "first version\n", string(content))
}

func TestManager_RunAbortOnConflictStopsMerging(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t, repo, true)
	ctx := context.Background()

	writeReadme := func(name, content string) Task {
		return Task{
			Name: name,
			Fn: func(_ context.Context, wt domain.Worktree) error {
				return os.WriteFile(filepath.Join(wt.Path, "README.md"), []byte(content), 0o600)
			},
		}
	}
	writeFile := func(name string) Task {
		return Task{
			Name: name,
			Fn: func(_ context.Context, wt domain.Worktree) error {
				return os.WriteFile(filepath.Join(wt.Path, name+".txt"), []byte("x\n"), 0o600)
			},
		}
	}

	report, err := m.Run(ctx, []Task{
		writeReadme("first", "first version\n"),
		writeReadme("second", "second version\n"),
		writeFile("third"),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"first"}, report.Merged)

	// Both the conflicting task and everything after it are reported.
	require.Len(t, report.Conflicts, 2)
	require.Equal(t, "second", report.Conflicts[0].TaskName)
	require.Equal(t, "third", report.Conflicts[1].TaskName)
	require.NoFileExists(t, filepath.Join(repo, "third.txt"))
}
