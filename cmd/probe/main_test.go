package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/config"
	"github.com/GriffinCanCode/methodprobe/internal/snapshot"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("PROBE_TREE_THRESHOLD_MS", "250")

	out, _, err := run(t, "config", "--format", "json")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, sonic.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, int64(250), cfg.Tree.ThresholdMs)
	assert.Equal(t, config.OutputConsole, cfg.Output.Mode)
}

func TestConfigCommandFormats(t *testing.T) {
	out, _, err := run(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "threshold_ms: 0")

	out, _, err = run(t, "config", "-f", "toml")
	require.NoError(t, err)
	assert.Contains(t, out, "[tree]")

	_, _, err = run(t, "config", "-f", "xml")
	assert.Error(t, err)
}

func TestConfigCommandReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.toml")
	require.NoError(t, os.WriteFile(path, []byte("[tree]\nentry_methods = [\"orders.Service.Place\"]\n"), 0o644))

	out, _, err := run(t, "--config", path, "config", "-f", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"orders.Service.Place"`)
}

func TestReadCommandNoMatch(t *testing.T) {
	_, _, err := run(t, "read", filepath.Join(t.TempDir(), "*.snapshot"))
	assert.ErrorIs(t, err, snapshot.ErrNoMatch)
}

func TestReadCommandRequiresArgument(t *testing.T) {
	_, _, err := run(t, "read")
	assert.Error(t, err)
}

func TestDemoCommand(t *testing.T) {
	dir := t.TempDir()

	out, _, err := run(t, "demo", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Method Call Tree")
	assert.Contains(t, out, "└── A.run")
	assert.Contains(t, out, "└── B.work")
	assert.Contains(t, out, "└── C.query")
	assert.Contains(t, out, "File: ")

	files, err := snapshot.Find(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	out, _, err = run(t, "read", files[0])
	require.NoError(t, err)
	assert.Contains(t, out, "A.run")
	assert.Contains(t, out, "1 file(s) matched, 1 printed, 0 failed")
}

func TestDemoCommandFailure(t *testing.T) {
	out, errOut, err := run(t, "demo", "--dir", t.TempDir(), "--fail")
	require.NoError(t, err)
	assert.Contains(t, out, "EXCEPTION")
	assert.Contains(t, errOut, "out of stock")
}
