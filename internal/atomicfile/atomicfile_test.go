package atomicfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicThenReadRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "state.json")

	require.NoError(t, WriteFileAtomic(path, []byte("hello"), 0o644))
	data, err := ReadRetry(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "sub"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no leftover temp file after atomic rename")
}

func TestAppendRetryAppendsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bucket.ndjson")

	require.NoError(t, AppendRetry(path, []byte("a\n")))
	require.NoError(t, AppendRetry(path, []byte("b\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "a\nb\n", string(data))
}

func TestExclusiveCreateIsCompetitiveOnSecondCall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.lock")

	h, err := ExclusiveCreate(path)
	require.NoError(t, err)
	require.NoError(t, h.WriteAndClose([]byte("owner")))

	_, err = ExclusiveCreate(path)
	require.ErrorIs(t, err, ErrCompetitive)
}

func TestClassify(t *testing.T) {
	require.Equal(t, Fatal, Classify(nil))
	require.Equal(t, Competitive, Classify(ErrCompetitive))
	require.Equal(t, Competitive, Classify(os.ErrExist))
}

func TestCopyLinesNormalizesCRLFAndStripsBOM(t *testing.T) {
	bom := []byte{0xEF, 0xBB, 0xBF}
	input := append(bom, []byte("first\r\nsecond\nthird")...)

	var lines []string
	consumed, err := CopyLines(strings.NewReader(string(input)), func(line string) error {
		lines = append(lines, line)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second", "third"}, lines)
	require.Equal(t, int64(len(input)), consumed)
}

func TestRenameRetryMovesFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	require.NoError(t, RenameRetry(src, dst))
	_, err := os.Stat(src)
	require.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "x", string(data))
}
