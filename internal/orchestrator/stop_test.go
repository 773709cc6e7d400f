package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitecrawl/orchestrator/internal/config"
)

func TestStopRequestedReflectsFlagFileLifecycle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "telemetry"), 0o755))
	o := &Orchestrator{cfg: config.RunConfig{OutDir: dir}, logger: zap.NewNop()}

	require.False(t, o.StopRequested(), "no flag file written yet")

	require.NoError(t, o.RequestStop())
	require.True(t, o.StopRequested(), "RequestStop's flag file must be visible to StopRequested")
}
