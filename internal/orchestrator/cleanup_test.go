package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitecrawl/orchestrator/internal/config"
)

func TestCleanupRemovesFrontierLedgerAndPartials(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "frontier"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "disco-locks"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "urls-final.part0.json"), []byte("[]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "url-existence.part0.json"), []byte("[]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fetch-cache.part0.json"), []byte("[]"), 0o644))

	o := &Orchestrator{cfg: config.RunConfig{OutDir: dir, DropCache: true}, logger: zap.NewNop()}
	require.NoError(t, o.Cleanup())

	_, err := os.Stat(filepath.Join(dir, "frontier"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "disco-locks"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "urls-final.part0.json"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "fetch-cache.part0.json"))
	require.True(t, os.IsNotExist(err), "DropCache true must remove fetch-cache partials too")
}

func TestCleanupKeepsFetchCacheWhenDropCacheFalse(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fetch-cache.part0.json"), []byte("[]"), 0o644))

	o := &Orchestrator{cfg: config.RunConfig{OutDir: dir, DropCache: false}, logger: zap.NewNop()}
	require.NoError(t, o.Cleanup())

	_, err := os.Stat(filepath.Join(dir, "fetch-cache.part0.json"))
	require.NoError(t, err, "fetch-cache partials survive when DropCache is false")
}
