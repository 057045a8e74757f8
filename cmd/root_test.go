// -- cmd/root_test.go --
package cmd

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/clearance-cli/internal/config"
	"github.com/xkilldash9x/clearance-cli/internal/observability"
)

func resetGlobals(t *testing.T) {
	t.Helper()
	viper.Reset()
	observability.ResetForTest()
	t.Cleanup(func() {
		viper.Reset()
		observability.ResetForTest()
	})
}

func TestNewRootCommand(t *testing.T) {
	resetGlobals(t)
	root := NewRootCommand()

	assert.Equal(t, "clearance-cli", root.Use)
	assert.Equal(t, Version, root.Version)

	solve, _, err := root.Find([]string{"solve"})
	require.NoError(t, err)
	assert.Equal(t, "solve [urls...]", solve.Use)
}

func TestSolveCommandFlags(t *testing.T) {
	resetGlobals(t)
	root := NewRootCommand()
	solve, _, err := root.Find([]string{"solve"})
	require.NoError(t, err)

	for _, name := range []string{
		"cdp", "file", "timeout", "proxy", "browser-path", "user-agent",
		"disable-http2", "disable-http3", "headed", "all-cookies",
		"save", "refresh-agents", "parallel", "curl", "wget", "aria2",
	} {
		assert.NotNil(t, solve.Flags().Lookup(name), "missing flag %q", name)
	}

	// Shorthands mirror the historical single-letter switches.
	assert.Equal(t, "f", solve.Flags().Lookup("file").Shorthand)
	assert.Equal(t, "t", solve.Flags().Lookup("timeout").Shorthand)
	assert.Equal(t, "p", solve.Flags().Lookup("proxy").Shorthand)
	assert.Equal(t, "c", solve.Flags().Lookup("curl").Shorthand)
	assert.Equal(t, "w", solve.Flags().Lookup("wget").Shorthand)
	assert.Equal(t, "a", solve.Flags().Lookup("aria2").Shorthand)
}

func TestInitializeConfigDefaults(t *testing.T) {
	resetGlobals(t)
	require.NoError(t, initializeConfig(""))

	cfg, err := config.NewConfigFromViper(viper.GetViper())
	require.NoError(t, err)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 30*time.Second, cfg.Solver.Timeout)
}

func TestInitializeConfigEnvOverride(t *testing.T) {
	resetGlobals(t)
	t.Setenv("CLEARANCE_SOLVER_TIMEOUT", "90s")

	require.NoError(t, initializeConfig(""))

	cfg, err := config.NewConfigFromViper(viper.GetViper())
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Solver.Timeout)
}

func TestInitializeConfigMissingExplicitFile(t *testing.T) {
	resetGlobals(t)
	err := initializeConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}
