// Package config resolves the orchestrator's configuration into a single
// validated record. Per the "dynamic config objects -> typed records"
// design note, callers never pass around a bag of anonymous flags: they
// build a RunConfig once, validate it, and hand it to the components that
// need it.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Mode is the worker-internal crawl mode. cmd/run.go picks WorkerModeRootURLs
// when the Input Classifier's Run Mode is explicit-urls and
// WorkerModeFrontier otherwise.
type Mode string

// Worker-internal run modes (passed via --mode to spawned worker
// processes). These are distinct from the classifier's Run Mode.
const (
	WorkerModeFrontier Mode = "frontier"
	WorkerModeRootURLs Mode = "root-urls"
)

// OutputKind enumerates the report kinds selectable via --outputs and
// validated by the Output Gate (internal/gate).
type OutputKind string

// Selectable output kinds, per spec.md Section 3 ("Selected Outputs").
const (
	OutputURLs          OutputKind = "urls"
	OutputSiteCatalog   OutputKind = "site_catalog"
	OutputInternalLinks OutputKind = "internal_links"
	OutputTree          OutputKind = "tree"
	OutputExistenceCSV  OutputKind = "existence_csv"
	OutputComparisonCSV OutputKind = "comparison_csv"
)

// RunConfig is the single validated configuration record for an
// orchestrator run. All fields originate from CLI flags, environment
// variables, or defaults, resolved once via Viper.
type RunConfig struct {
	Base            string
	Input           string
	PathPrefix      string
	OutDir          string
	Shards          int
	BucketParts     int
	Concurrency     int
	KeepPageParam   bool
	RebuildLinks    bool
	DropCache       bool
	Headless        bool
	TelemetryPort   int
	Outputs         []OutputKind
	ComparisonPrefixTokens int
	ComparisonFuzzyThreshold float64

	// Ambient tuning knobs, sourced from environment variables per
	// spec.md Section 6.
	PoliteDelay   time.Duration
	BucketMaxBytes int64
	LockTries     int
	LockSleep     time.Duration
	MaxDoneFiles  int

	// Optional domain-stack integrations; empty/zero disables each.
	DatabaseDSN  string
	PubSubTopic  string
	PubSubProject string
	ArchiveDir   string
	ArchiveBucket string
	APIKey       string
	Development  bool
}

// WorkerConfig is the analogous validated record for a spawned worker
// process (see spec.md Section 6, "--mode <frontier|root-urls> (worker
// internal)").
type WorkerConfig struct {
	Base          string
	PathPrefix    string
	OutDir        string
	WorkerIndex   int
	WorkerTotal   int
	BucketParts   int
	Concurrency   int
	Headless      bool
	Mode          Mode
	KeepPageParam bool
	TelemetryPort int
	ExistenceOnly bool

	PoliteDelay    time.Duration
	BucketMaxBytes int64
	LockTries      int
	LockSleep      time.Duration
}

// BindEnv wires the ambient environment variables from spec.md Section 6
// into v, applying their defaults. These use mixed prefixes (MC_ for
// crawl-tuning knobs, CRAWLORCH_ for optional domain-stack integrations)
// so they aren't covered by a single viper.SetEnvPrefix call.
func BindEnv(v *viper.Viper) error {
	v.SetDefault("politeDelay", 0)
	v.SetDefault("bucketMaxBytes", int64(8<<20))
	v.SetDefault("lockTries", 60)
	v.SetDefault("lockSleep", 100*time.Millisecond)
	v.SetDefault("maxDoneFiles", 5000)

	bindings := map[string]string{
		"politeDelay":    "MC_POLITE_DELAY_MS",
		"bucketMaxBytes": "MC_BUCKET_MAX_BYTES",
		"lockTries":      "MC_LOCK_TRIES",
		"lockSleep":      "MC_LOCK_SLEEP",
		"maxDoneFiles":   "MC_MAX_DONE",
		"telemetryPort":  "TELEMETRY_PORT",
		"databaseDSN":    "CRAWLORCH_DB_DSN",
		"pubsubTopic":    "CRAWLORCH_PUBSUB_TOPIC",
		"archiveDir":     "CRAWLORCH_ARCHIVE_DIR",
		"archiveBucket":  "CRAWLORCH_ARCHIVE_BUCKET",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	if ms := v.GetInt64("politeDelay"); ms > 0 {
		v.Set("politeDelay", time.Duration(ms)*time.Millisecond)
	}
	return nil
}

// LoadWorker builds a WorkerConfig from a Viper instance populated by the
// spawned worker process's own flags plus the ambient MC_* environment
// variables from spec.md Section 6.
func LoadWorker(v *viper.Viper) (WorkerConfig, error) {
	cfg := WorkerConfig{
		Base:          v.GetString("base"),
		PathPrefix:    v.GetString("pathPrefix"),
		OutDir:        v.GetString("outDir"),
		WorkerIndex:   v.GetInt("workerIndex"),
		WorkerTotal:   v.GetInt("workerTotal"),
		BucketParts:   v.GetInt("bucketParts"),
		Concurrency:   v.GetInt("concurrency"),
		Headless:      v.GetBool("headless"),
		Mode:          Mode(v.GetString("mode")),
		KeepPageParam: v.GetBool("keepPageParam"),
		TelemetryPort: v.GetInt("telemetryPort"),
		ExistenceOnly: v.GetBool("existenceOnly"),

		PoliteDelay:    v.GetDuration("politeDelay"),
		BucketMaxBytes: v.GetInt64("bucketMaxBytes"),
		LockTries:      v.GetInt("lockTries"),
		LockSleep:      v.GetDuration("lockSleep"),
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.WorkerTotal <= 0 {
		return cfg, fmt.Errorf("--workerTotal must be > 0")
	}
	if cfg.BucketParts <= 0 {
		return cfg, fmt.Errorf("--bucketParts must be > 0")
	}
	if strings.TrimSpace(cfg.Base) == "" {
		return cfg, fmt.Errorf("--base is required")
	}
	return cfg, nil
}

// Load builds a RunConfig from a Viper instance already populated by
// cobra/pflag bindings, applying the defaults from spec.md Section 6.
func Load(v *viper.Viper) (RunConfig, error) {
	cfg := RunConfig{
		Base:          v.GetString("base"),
		Input:         v.GetString("input"),
		PathPrefix:    v.GetString("pathPrefix"),
		OutDir:        v.GetString("outDir"),
		Shards:        v.GetInt("shards"),
		BucketParts:   v.GetInt("bucketParts"),
		Concurrency:   v.GetInt("concurrency"),
		KeepPageParam: v.GetBool("keepPageParam"),
		RebuildLinks:  v.GetBool("rebuildLinks"),
		DropCache:     v.GetBool("dropCache"),
		Headless:      v.GetBool("headless"),
		TelemetryPort: v.GetInt("telemetryPort"),
		Outputs:       parseOutputs(v.GetStringSlice("outputs")),

		ComparisonPrefixTokens:   valueOrDefaultInt(v.GetInt("comparisonPrefixTokens"), 4),
		ComparisonFuzzyThreshold: valueOrDefaultFloat(v.GetFloat64("comparisonFuzzyThreshold"), 0.6),

		PoliteDelay:    v.GetDuration("politeDelay"),
		BucketMaxBytes: v.GetInt64("bucketMaxBytes"),
		LockTries:      v.GetInt("lockTries"),
		LockSleep:      v.GetDuration("lockSleep"),
		MaxDoneFiles:   v.GetInt("maxDoneFiles"),

		DatabaseDSN:   v.GetString("databaseDSN"),
		PubSubTopic:   v.GetString("pubsubTopic"),
		PubSubProject: v.GetString("pubsubProject"),
		ArchiveDir:    v.GetString("archiveDir"),
		ArchiveBucket: v.GetString("archiveBucket"),
		APIKey:        v.GetString("apiKey"),
		Development:   v.GetBool("development"),
	}
	if len(cfg.Outputs) == 0 {
		cfg.Outputs = []OutputKind{OutputURLs, OutputSiteCatalog, OutputInternalLinks, OutputTree}
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations that cannot possibly run, matching the
// "Config/Setup failure" error kind in spec.md Section 7 (fatal, exit
// non-zero).
func (c RunConfig) Validate() error {
	if strings.TrimSpace(c.Base) == "" {
		return fmt.Errorf("--base is required")
	}
	if c.OutDir == "" {
		return fmt.Errorf("--outDir must be set")
	}
	if c.Shards <= 0 {
		return fmt.Errorf("--shards must be > 0")
	}
	if c.BucketParts <= 0 {
		return fmt.Errorf("--bucketParts must be > 0")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("--concurrency must be > 0")
	}
	if c.ComparisonPrefixTokens <= 0 {
		return fmt.Errorf("comparisonPrefixTokens must be > 0")
	}
	if c.ComparisonFuzzyThreshold <= 0 || c.ComparisonFuzzyThreshold > 1 {
		return fmt.Errorf("comparisonFuzzyThreshold must be in (0,1]")
	}
	return nil
}

func parseOutputs(raw []string) []OutputKind {
	out := make([]OutputKind, 0, len(raw))
	seen := make(map[OutputKind]struct{})
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		k := OutputKind(r)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func valueOrDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func valueOrDefaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
