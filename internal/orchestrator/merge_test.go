package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitecrawl/orchestrator/internal/config"
)

func writeJSONPart(t *testing.T, dir, name string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestMergeUnionsFinalURLsAndLastWriterWinsOnExistence(t *testing.T) {
	dir := t.TempDir()
	writeJSONPart(t, dir, "urls-final.part0.json", []string{"https://a.com/1", "https://a.com/2"})
	writeJSONPart(t, dir, "urls-final.part1.json", []string{"https://a.com/2", "https://a.com/3"})

	type rawExistence struct {
		InputURL   string `json:"inputUrl"`
		Exists     bool   `json:"exists"`
		HTTPStatus int    `json:"httpStatus"`
		FinalURL   string `json:"finalUrl"`
	}
	writeJSONPart(t, dir, "url-existence.part0.json", []rawExistence{{InputURL: "https://a.com/1", Exists: false, HTTPStatus: 500}})
	writeJSONPart(t, dir, "url-existence.part1.json", []rawExistence{{InputURL: "https://a.com/1", Exists: true, HTTPStatus: 200}})

	o := &Orchestrator{cfg: config.RunConfig{OutDir: dir}, logger: zap.NewNop()}
	result, err := o.Merge()
	require.NoError(t, err)

	require.Equal(t, []string{"https://a.com/1", "https://a.com/2", "https://a.com/3"}, result.FinalURLs)
	require.True(t, result.ExistenceByURL["https://a.com/1"].Exists, "part1 sorts after part0 so it wins")

	data, err := os.ReadFile(filepath.Join(dir, "urls-final.txt"))
	require.NoError(t, err)
	require.Equal(t, "https://a.com/1\nhttps://a.com/2\nhttps://a.com/3\n", string(data))

	working, err := os.ReadFile(filepath.Join(dir, "working-urls.txt"))
	require.NoError(t, err)
	require.Equal(t, "https://a.com/1\n", string(working))
}

func TestMergeSkipsUnreadablePartFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "urls-final.part0.json"), []byte("not json"), 0o644))

	o := &Orchestrator{cfg: config.RunConfig{OutDir: dir}, logger: zap.NewNop()}
	result, err := o.Merge()
	require.NoError(t, err)
	require.Empty(t, result.FinalURLs)
}
