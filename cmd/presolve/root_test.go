package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mgorny/pkgcore/resolver"
)

func TestRootCommandWithoutSubcommandSucceeds(t *testing.T) {
	global = globalFlags{logLevel: "error"}
	root := newRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{})

	err := root.Execute()
	require.NoError(t, err)
}

func TestRootCommandFlagOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFixture(t, dir, "config.toml", `
repo = "/from/config"
vdb = "/from/config/vdb"
log_level = "debug"
`)

	global = globalFlags{configFile: configPath, logLevel: "info"}
	root := newRootCommand()
	root.SetArgs([]string{"--config", configPath, "--repo", "/from/flag", "list-updates", dir})
	root.SetOut(&bytes.Buffer{})

	_ = root.Execute()
	require.Equal(t, "/from/flag", global.repoDir)
	require.Equal(t, "/from/config/vdb", global.vdbFile)
	require.Equal(t, "debug", global.logLevel)
}

func TestExitCodeMapsAmbiguousQueryToTwo(t *testing.T) {
	dir := t.TempDir()
	vdbPath := writeFixture(t, dir, "vdb.toml", `
[[installed]]
category = "dev-lang"
package = "tool"
version = "1"
slot = "0"

[[installed]]
category = "app-misc"
package = "tool"
version = "1"
slot = "0"
`)
	installed, err := loadVDB(vdbPath)
	require.NoError(t, err)

	_, unmergeErr := resolver.Unmerge(installed, "tool", "8")
	require.Error(t, unmergeErr)
	require.Equal(t, 2, exitCode(unmergeErr))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, parseLevel("debug").String(), "DEBUG")
	require.Equal(t, parseLevel("warn").String(), "WARN")
	require.Equal(t, parseLevel("error").String(), "ERROR")
	require.Equal(t, parseLevel("bogus").String(), "INFO")
}

func TestLoadRepoMissingFile(t *testing.T) {
	_, err := loadRepo(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadRepoEmptyPathReturnsEmptyTree(t *testing.T) {
	tree, err := loadRepo("")
	require.NoError(t, err)
	require.NotNil(t, tree)
}
