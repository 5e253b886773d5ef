// Package pkgregistry provides the package registry client used to check
// and publish build outputs.
//
// The production implementation shells out to the npm CLI; the Client
// interface and executor seam keep workflow code and tests independent of
// the binary.
package pkgregistry

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fabrica-build/fabrica/internal/config"
	fabricaerrors "github.com/fabrica-build/fabrica/internal/errors"
)

// Client is the registry surface package builds need: existence checks for
// dependency admission and publishing for finished packages.
type Client interface {
	// Exists reports whether a package name (optionally at a version) is
	// present in the registry.
	Exists(ctx context.Context, name, version string) (bool, error)

	// Publish publishes the package located at dir and returns the
	// published version.
	Publish(ctx context.Context, dir string) (string, error)
}

// CommandExecutor abstracts command execution for testing.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd *exec.Cmd) (stdout, stderr []byte, err error)
}

// defaultExecutor runs commands as real subprocesses.
type defaultExecutor struct{}

func (defaultExecutor) Execute(_ context.Context, cmd *exec.Cmd) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// NPMClient implements Client via the npm CLI.
type NPMClient struct {
	cfg      config.RegistryConfig
	executor CommandExecutor
	logger   zerolog.Logger
}

// NewNPMClient creates an NPMClient. If executor is nil a production
// subprocess executor is used.
func NewNPMClient(cfg config.RegistryConfig, executor CommandExecutor, logger zerolog.Logger) *NPMClient {
	if executor == nil {
		executor = defaultExecutor{}
	}
	return &NPMClient{cfg: cfg, executor: executor, logger: logger}
}

// Exists checks the registry for the package via `npm view`. A missing
// package (E404) is not an error.
func (c *NPMClient) Exists(ctx context.Context, name, version string) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("package name cannot be empty: %w", fabricaerrors.ErrEmptyValue)
	}

	spec := name
	if version != "" {
		spec = name + "@" + version
	}
	args := c.withRegistry("view", spec, "version")

	cmd := exec.CommandContext(ctx, c.command(), args...) //#nosec G204 -- args are constructed internally
	stdout, stderr, err := c.executor.Execute(ctx, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if strings.Contains(string(stderr), "E404") || strings.Contains(string(stderr), "404 Not Found") {
			return false, nil
		}
		return false, fmt.Errorf("%w: npm view %s: %s",
			fabricaerrors.ErrRegistryOperation, spec, strings.TrimSpace(string(stderr)))
	}
	return len(bytes.TrimSpace(stdout)) > 0, nil
}

// Publish publishes the package at dir via `npm publish` and returns the
// version npm reports.
func (c *NPMClient) Publish(ctx context.Context, dir string) (string, error) {
	args := c.withRegistry("publish")
	if c.cfg.DryRun {
		args = append(args, "--dry-run")
	}

	cmd := exec.CommandContext(ctx, c.command(), args...) //#nosec G204 -- args are constructed internally
	cmd.Dir = dir

	stdout, stderr, err := c.executor.Execute(ctx, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: npm publish in %s: %s",
			fabricaerrors.ErrRegistryOperation, dir, strings.TrimSpace(string(stderr)))
	}

	version := parsePublishedVersion(stdout, stderr)
	c.logger.Info().
		Str("dir", dir).
		Str("version", version).
		Bool("dry_run", c.cfg.DryRun).
		Msg("package published")
	return version, nil
}

func (c *NPMClient) command() string {
	if c.cfg.Command != "" {
		return c.cfg.Command
	}
	return "npm"
}

// withRegistry appends --registry when a custom endpoint is configured.
func (c *NPMClient) withRegistry(args ...string) []string {
	if c.cfg.URL != "" {
		return append(args, "--registry", c.cfg.URL)
	}
	return args
}

// parsePublishedVersion extracts "name@version" from npm publish output.
// npm prints "+ name@version" to stdout (stderr in notice mode).
func parsePublishedVersion(stdout, stderr []byte) string {
	for _, out := range [][]byte{stdout, stderr} {
		for _, line := range strings.Split(string(out), "\n") {
			line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "+"))
			if at := strings.LastIndex(line, "@"); at > 0 && !strings.ContainsAny(line, " \t") {
				return line[at+1:]
			}
		}
	}
	return ""
}

// Compile-time check that NPMClient implements Client.
var _ Client = (*NPMClient)(nil)
