package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fabrica-build/fabrica/internal/config"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	flags := &GlobalFlags{}
	cmd := newRootCmd(flags, BuildInfo{})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestInitCommand_WritesProjectConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("FABRICA_HOME", filepath.Join(dir, "home"))

	out, err := runCommand(t, "init")
	require.NoError(t, err)
	require.Contains(t, out, "Wrote")

	data, err := os.ReadFile(filepath.Join(dir, ".fabrica", "config.yaml"))
	require.NoError(t, err)
	require.Contains(t, string(data), "max_concurrent: 4")
	require.Contains(t, string(data), "require_approval: true")

	// The generated file must round-trip through the loader.
	cfg, err := config.LoadFromPath(filepath.Join(dir, ".fabrica", "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, config.Validate(cfg))
}

func TestInitCommand_RefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("FABRICA_HOME", filepath.Join(dir, "home"))

	_, err := runCommand(t, "init")
	require.NoError(t, err)

	_, err = runCommand(t, "init")
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")

	_, err = runCommand(t, "init", "--force")
	require.NoError(t, err)
}
