package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "hogqueue", cmd.Use)

	commands := cmd.Commands()
	assert.Len(t, commands, 8, "should have 8 subcommands")

	names := make(map[string]bool)
	for _, c := range commands {
		names[c.Name()] = true
	}
	for _, want := range []string{"init", "submit", "cancel", "check", "show", "cleanup", "hog", "monitor"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}

	dbFlag := cmd.PersistentFlags().Lookup("db")
	assert.NotNil(t, dbFlag, "should have --db flag")
	assert.Equal(t, "jobs.sqlite", dbFlag.DefValue)

	timeoutFlag := cmd.PersistentFlags().Lookup("timeout")
	assert.NotNil(t, timeoutFlag, "should have --timeout flag")
	assert.Equal(t, "300", timeoutFlag.DefValue)
}

func TestShowCommandFlags(t *testing.T) {
	cmd := buildShowCommand()

	statusFlag := cmd.Flags().Lookup("status")
	assert.NotNil(t, statusFlag)
	assert.Equal(t, "s", statusFlag.Shorthand)

	hogsFlag := cmd.Flags().Lookup("hogs")
	assert.NotNil(t, hogsFlag)
	assert.Equal(t, "H", hogsFlag.Shorthand)
}

func TestHogCommandRequiresHogID(t *testing.T) {
	cmd := buildHogCommand()
	assert.Equal(t, "hog <hogid>", cmd.Use)
	require.NotNil(t, cmd.Args)
}

// TestEndToEndInitSubmitShow exercises the CLI exactly as a user would:
// init a fresh store, submit a job, then show it.
func TestEndToEndInitSubmitShow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.sqlite")

	root := BuildCLI()
	root.SetArgs([]string{"--db", path, "init"})
	require.NoError(t, root.Execute())

	var submitOut bytes.Buffer
	root = BuildCLI()
	root.SetOut(&submitOut)
	root.SetArgs([]string{"--db", path, "submit", "/bin/true"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "1\n", submitOut.String())

	var showOut bytes.Buffer
	root = BuildCLI()
	root.SetOut(&showOut)
	root.SetArgs([]string{"--db", path, "show"})
	require.NoError(t, root.Execute())
	assert.Contains(t, showOut.String(), "waiting")
	assert.Contains(t, showOut.String(), "/bin/true")
}

func TestInitRefusesExistingStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.sqlite")

	root := BuildCLI()
	root.SetArgs([]string{"--db", path, "init"})
	require.NoError(t, root.Execute())

	root = BuildCLI()
	root.SetArgs([]string{"--db", path, "init"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	assert.Error(t, err)
}

func TestSubmitWithoutInitFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.sqlite")

	root := BuildCLI()
	root.SetArgs([]string{"--db", path, "submit", "/bin/true"})
	err := root.Execute()
	assert.Error(t, err)
}
