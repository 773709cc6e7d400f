package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	require.NoError(t, BindEnv(v))
	return v
}

func TestLoadRequiresBase(t *testing.T) {
	v := newTestViper(t)
	v.Set("outDir", "./dist")
	v.Set("shards", 1)
	v.Set("bucketParts", 16)
	v.Set("concurrency", 4)
	_, err := Load(v)
	require.Error(t, err)
}

func TestLoadDefaultsOutputsWhenUnset(t *testing.T) {
	v := newTestViper(t)
	v.Set("base", "https://example.com")
	v.Set("outDir", "./dist")
	v.Set("shards", 1)
	v.Set("bucketParts", 16)
	v.Set("concurrency", 4)

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, []OutputKind{OutputURLs, OutputSiteCatalog, OutputInternalLinks, OutputTree}, cfg.Outputs)
	require.Equal(t, 4, cfg.ComparisonPrefixTokens)
	require.InDelta(t, 0.6, cfg.ComparisonFuzzyThreshold, 1e-9)
}

func TestValidateRejectsBadRanges(t *testing.T) {
	base := RunConfig{Base: "https://a.com", OutDir: "./dist", Shards: 1, BucketParts: 1, Concurrency: 1, ComparisonPrefixTokens: 4, ComparisonFuzzyThreshold: 0.6}
	require.NoError(t, base.Validate())

	bad := base
	bad.ComparisonFuzzyThreshold = 1.5
	require.Error(t, bad.Validate())

	bad2 := base
	bad2.Concurrency = 0
	require.Error(t, bad2.Validate())
}

func TestBindEnvAppliesPoliteDelayFromMilliseconds(t *testing.T) {
	v := viper.New()
	v.Set("politeDelay", int64(250))
	require.NoError(t, BindEnv(v))
	require.Equal(t, 250*time.Millisecond, v.Get("politeDelay"))
}

func TestLoadWorkerRequiresWorkerTotalAndBucketParts(t *testing.T) {
	v := newTestViper(t)
	v.Set("base", "https://example.com")
	v.Set("workerTotal", 0)
	v.Set("bucketParts", 16)
	_, err := LoadWorker(v)
	require.Error(t, err)

	v.Set("workerTotal", 2)
	v.Set("bucketParts", 0)
	_, err = LoadWorker(v)
	require.Error(t, err)

	v.Set("bucketParts", 16)
	cfg, err := LoadWorker(v)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.WorkerTotal)
	require.Equal(t, 4, cfg.Concurrency, "concurrency defaults to 4 when unset")
}

func TestParseOutputsDedupesAndTrims(t *testing.T) {
	v := newTestViper(t)
	v.Set("base", "https://example.com")
	v.Set("outDir", "./dist")
	v.Set("shards", 1)
	v.Set("bucketParts", 16)
	v.Set("concurrency", 4)
	v.Set("outputs", []string{" urls ", "urls", "tree"})

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, []OutputKind{OutputURLs, OutputTree}, cfg.Outputs)
}
