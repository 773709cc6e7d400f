package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sitecrawl/orchestrator/internal/claims"
	"github.com/sitecrawl/orchestrator/internal/config"
	"github.com/sitecrawl/orchestrator/internal/crawlweb"
	"github.com/sitecrawl/orchestrator/internal/frontier"
	"github.com/sitecrawl/orchestrator/internal/logging"
	"github.com/sitecrawl/orchestrator/internal/telemetry"
	"github.com/sitecrawl/orchestrator/internal/worker"
)

const (
	workerNavTimeout   = 30 * time.Second
	workerProbeTimeout = 10 * time.Second
	workerUserAgent    = "sitecrawl-orchestrator/1.0 (+worker)"
)

// newWorkerCmd builds the hidden `worker` subcommand: the re-exec target
// internal/orchestrator.SpawnWorkers launches for itself, never invoked
// directly by an operator.
func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Internal: run one crawl worker process (spawned by 'run').",
		Hidden: true,
		RunE:   runWorkerCommand,
	}

	flags := cmd.Flags()
	flags.String("base", "", "target site origin")
	flags.String("pathPrefix", "", "restrict discovered URLs to this path prefix")
	flags.String("outDir", "./dist", "shared output directory")
	flags.Int("workerIndex", 0, "this worker's index")
	flags.Int("workerTotal", 1, "total worker count")
	flags.Int("bucketParts", 16, "number of frontier buckets")
	flags.String("mode", string(config.WorkerModeFrontier), "frontier|root-urls")
	flags.Bool("headless", true, "use a headless browser to render pages")
	flags.Bool("existenceOnly", false, "probe existence only, skip rendering")
	flags.Bool("keepPageParam", false, "keep the 'page' query parameter during URL normalization")
	flags.Int("telemetryPort", 0, "orchestrator's control channel port")
	flags.Int("concurrency", 4, "browser tab / prober concurrency for this worker")
	flags.String("apiKey", "", "control channel API key, if the orchestrator requires one")

	return cmd
}

func runWorkerCommand(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return UsageError{fmt.Errorf("bind flags: %w", err)}
	}
	if err := config.BindEnv(v); err != nil {
		return fmt.Errorf("bind environment: %w", err)
	}

	cfg, err := config.LoadWorker(v)
	if err != nil {
		return UsageError{err}
	}

	logger, err := logging.New(false)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	logger = logger.With(zap.Int("worker", cfg.WorkerIndex))
	defer func() { _ = logger.Sync() }()

	front, err := frontier.New(filepath.Join(cfg.OutDir, "frontier"), cfg.BucketParts, cfg.BucketMaxBytes, cfg.LockTries, cfg.LockSleep)
	if err != nil {
		return fmt.Errorf("open frontier: %w", err)
	}
	ledger, err := claims.New(filepath.Join(cfg.OutDir, "disco-locks"), cfg.LockTries, cfg.LockSleep)
	if err != nil {
		return fmt.Errorf("open claim ledger: %w", err)
	}

	hub := telemetry.NewRemoteHub(fmt.Sprintf("http://127.0.0.1:%d", cfg.TelemetryPort), v.GetString("apiKey"), logger)

	var browser crawlweb.Browser
	if cfg.Headless && !cfg.ExistenceOnly {
		b, berr := crawlweb.NewChromedpBrowser(cfg.Concurrency, workerNavTimeout, workerUserAgent, logger)
		if berr != nil {
			logger.Warn("headless browser unavailable, falling back to prober-only fetches", zap.Error(berr))
		} else {
			browser = b
		}
	}
	prober := crawlweb.NewProber(workerUserAgent, workerProbeTimeout, cfg.Concurrency)

	w := worker.New(cfg, front, ledger, hub, browser, prober, logger)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("worker %d: %w", cfg.WorkerIndex, err)
	}
	return nil
}
