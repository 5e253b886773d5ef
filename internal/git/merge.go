package git

import (
	"context"
	"fmt"
	"strings"

	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
)

// Merge merges the given branch into the branch checked out in workDir using
// a merge commit. On conflict the merge is aborted, leaving the working copy
// clean, and ErrMergeConflict is returned with the conflicting files listed.
//
// A failed merge is classified by asking git for unmerged paths rather than
// by parsing the command output: git writes its conflict report to stdout,
// which the command error does not carry.
func Merge(ctx context.Context, workDir, branch string) error {
	_, err := RunCommand(ctx, workDir, "merge", "--no-ff", "--no-edit", branch)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	conflicts, listErr := conflictingFiles(ctx, workDir)
	if listErr != nil || len(conflicts) == 0 {
		// No unmerged paths: the merge failed for some other reason.
		return err
	}
	if abortErr := abortMerge(ctx, workDir); abortErr != nil {
		return fmt.Errorf("merge of %s conflicted and abort failed: %w", branch, abortErr)
	}
	return fmt.Errorf("%w: merging %s: %s",
		fabricaerrors.ErrMergeConflict, branch, strings.Join(conflicts, ", "))
}

// conflictingFiles lists the unmerged paths of an in-progress merge.
func conflictingFiles(ctx context.Context, workDir string) ([]string, error) {
	out, err := RunCommand(ctx, workDir, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// abortMerge resets workDir out of a conflicted merge state.
func abortMerge(ctx context.Context, workDir string) error {
	_, err := RunCommand(ctx, workDir, "merge", "--abort")
	return err
}
