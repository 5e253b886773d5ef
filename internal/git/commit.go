package git

import (
	"context"
	"fmt"

	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
)

// HasChanges reports whether workDir has uncommitted changes, staged or not.
func HasChanges(ctx context.Context, workDir string) (bool, error) {
	out, err := RunCommand(ctx, workDir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// CommitAll stages every change in workDir and commits with the given
// message. It is a no-op when there is nothing to commit.
func CommitAll(ctx context.Context, workDir, message string) error {
	if message == "" {
		return fmt.Errorf("commit message cannot be empty: %w", fabricaerrors.ErrEmptyValue)
	}

	dirty, err := HasChanges(ctx, workDir)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}

	if _, err := RunCommand(ctx, workDir, "add", "-A"); err != nil {
		return err
	}
	_, err = RunCommand(ctx, workDir, "commit", "-m", message)
	return err
}

// Push pushes the given branch to the remote.
func Push(ctx context.Context, workDir, remote, branch string) error {
	if remote == "" {
		remote = "origin"
	}
	_, err := RunCommand(ctx, workDir, "push", "-u", remote, branch)
	return err
}
