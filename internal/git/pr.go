// This file implements pull request creation via the gh CLI.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
)

// PRCreateOptions configures the PR creation operation.
type PRCreateOptions struct {
	// Title is the PR title (required).
	Title string
	// Body is the PR description.
	Body string
	// BaseBranch is the target branch (default: "main").
	BaseBranch string
	// HeadBranch is the source branch with changes (required).
	HeadBranch string
	// Draft creates the PR as a draft if true.
	Draft bool
}

// CreatePR creates a pull request via the gh CLI and returns its URL.
func CreatePR(ctx context.Context, workDir string, opts PRCreateOptions) (string, error) {
	if opts.Title == "" {
		return "", fmt.Errorf("pr title cannot be empty: %w", fabricaerrors.ErrEmptyValue)
	}
	if opts.HeadBranch == "" {
		return "", fmt.Errorf("pr head branch cannot be empty: %w", fabricaerrors.ErrEmptyValue)
	}

	base := opts.BaseBranch
	if base == "" {
		base = "main"
	}

	args := []string{
		"pr", "create",
		"--title", opts.Title,
		"--body", opts.Body,
		"--base", base,
		"--head", opts.HeadBranch,
	}
	if opts.Draft {
		args = append(args, "--draft")
	}

	cmd := exec.CommandContext(ctx, "gh", args...) //#nosec G204 -- args are constructed internally
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("gh pr create failed: %s: %w",
			strings.TrimSpace(stderr.String()), fabricaerrors.ErrGitOperation)
	}

	// gh prints the PR URL on the last line of stdout.
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	return lines[len(lines)-1], nil
}
