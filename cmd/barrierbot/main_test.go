package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "check", "rollover", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}

	roll, _, err := root.Find([]string{"rollover"})
	require.NoError(t, err)
	assert.NotNil(t, roll.Flags().Lookup("date"))
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestRollover_BadDate(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"rollover", "--date", "15/06/2026"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--date")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}
