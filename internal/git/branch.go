package git

import (
	"context"
	"fmt"
	"strings"

	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
)

// BranchExists checks if a local branch exists in the repository at workDir.
func BranchExists(ctx context.Context, workDir, name string) (bool, error) {
	_, err := RunCommand(ctx, workDir, "rev-parse", "--verify", "refs/heads/"+name)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// rev-parse --verify fails when the ref does not exist.
		return false, nil
	}
	return true, nil
}

// CreateBranch creates a branch from the given base without checking it out.
func CreateBranch(ctx context.Context, workDir, name, base string) error {
	if name == "" {
		return fmt.Errorf("branch name cannot be empty: %w", fabricaerrors.ErrEmptyValue)
	}
	args := []string{"branch", name}
	if base != "" {
		args = append(args, base)
	}
	_, err := RunCommand(ctx, workDir, args...)
	return err
}

// DeleteBranch deletes a local branch. If force is true, deletes even if the
// branch is not merged.
func DeleteBranch(ctx context.Context, workDir, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := RunCommand(ctx, workDir, "branch", flag, name)
	return err
}

// Checkout switches workDir to the given branch.
func Checkout(ctx context.Context, workDir, name string) error {
	_, err := RunCommand(ctx, workDir, "checkout", name)
	return err
}

// SanitizeBranchName converts an arbitrary task name into a valid git branch
// component: lowercased, spaces and unsupported characters replaced with
// hyphens, consecutive hyphens collapsed.
func SanitizeBranchName(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastHyphen := false
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '/', r == '.':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
