// Package git provides git operations for Fabrica build workspaces.
// This file provides shared git command execution utilities.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
)

// RunCommand executes a git command in the specified directory and returns
// its output. All errors are wrapped with ErrGitOperation and include stderr
// for debugging. Exported for use by the worktree manager.
func RunCommand(ctx context.Context, workDir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...) //#nosec G204 -- args are constructed internally, not user input
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// Some subcommands (merge among them) report failure on stdout with
		// an empty stderr, so fall back to stdout for the error detail.
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail != "" {
			return "", fmt.Errorf("git %s failed: %s: %w",
				args[0], detail, fabricaerrors.ErrGitOperation)
		}
		return "", fmt.Errorf("git %s failed: %w", args[0], fabricaerrors.ErrGitOperation)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// DetectRepoRoot returns the repository root for the given path. Returns
// ErrNotGitRepo when the path is not inside a git repository.
func DetectRepoRoot(ctx context.Context, path string) (string, error) {
	root, err := RunCommand(ctx, path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("%w: %s", fabricaerrors.ErrNotGitRepo, path)
	}
	return root, nil
}

// CurrentBranch returns the checked-out branch name in workDir.
func CurrentBranch(ctx context.Context, workDir string) (string, error) {
	return RunCommand(ctx, workDir, "rev-parse", "--abbrev-ref", "HEAD")
}

// HeadCommit returns the HEAD commit SHA in workDir.
func HeadCommit(ctx context.Context, workDir string) (string, error) {
	return RunCommand(ctx, workDir, "rev-parse", "HEAD")
}
