package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUsageErrorWrapsAndUnwraps(t *testing.T) {
	inner := errors.New("bad flag")
	err := UsageError{Err: inner}

	require.Equal(t, "bad flag", err.Error())
	require.ErrorIs(t, err, inner)
}

func TestNewRunCmdRegistersExpectedFlagsWithDefaults(t *testing.T) {
	cmd := newRunCmd()

	base, err := cmd.Flags().GetString("base")
	require.NoError(t, err)
	require.Empty(t, base)

	outDir, err := cmd.Flags().GetString("outDir")
	require.NoError(t, err)
	require.Equal(t, "./dist", outDir)

	concurrency, err := cmd.Flags().GetInt("concurrency")
	require.NoError(t, err)
	require.Equal(t, 4, concurrency)

	headless, err := cmd.Flags().GetBool("headless")
	require.NoError(t, err)
	require.True(t, headless)

	threshold, err := cmd.Flags().GetFloat64("comparisonFuzzyThreshold")
	require.NoError(t, err)
	require.InDelta(t, 0.6, threshold, 1e-9)
}

func TestNewWorkerCmdIsHiddenWithFrontierModeDefault(t *testing.T) {
	cmd := newWorkerCmd()
	require.True(t, cmd.Hidden)

	mode, err := cmd.Flags().GetString("mode")
	require.NoError(t, err)
	require.Equal(t, "frontier", mode)

	workerTotal, err := cmd.Flags().GetInt("workerTotal")
	require.NoError(t, err)
	require.Equal(t, 1, workerTotal)
}

func TestNewRootCmdRegistersRunAndWorkerSubcommands(t *testing.T) {
	root := newRootCmd()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["run"])
	require.True(t, names["worker"])
}
