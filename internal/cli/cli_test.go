package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI(nil)

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "scancore", cmd.Use)

	commands := cmd.Commands()
	commandNames := make(map[string]bool, len(commands))
	for _, c := range commands {
		commandNames[c.Use] = true
	}
	assert.True(t, commandNames["run"], "should have 'run' command")
	assert.True(t, commandNames["status"], "should have 'status' command")

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "should have --config flag")
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue)
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()

	assert.Equal(t, "run", cmd.Use)
	assert.NotNil(t, cmd.RunE)

	seedFlag := cmd.Flags().Lookup("seed-type")
	require.NotNil(t, seedFlag, "should have --seed-type flag")
	assert.Equal(t, "SEED", seedFlag.DefValue)
}

func TestBuildStatusCommand(t *testing.T) {
	cmd := buildStatusCommand()

	assert.Equal(t, "status", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestShowStatusReadsConfiguredFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scan:
  scope_search_distance: 3
metrics:
  enabled: false
`), 0644))

	orig := configFile
	configFile = path
	defer func() { configFile = orig }()

	assert.NoError(t, showStatus())
}

func TestShowStatusErrorsOnMissingFile(t *testing.T) {
	orig := configFile
	configFile = filepath.Join(t.TempDir(), "missing.yaml")
	defer func() { configFile = orig }()

	assert.Error(t, showStatus())
}
