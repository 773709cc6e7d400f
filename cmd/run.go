package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sitecrawl/orchestrator/internal/archive"
	"github.com/sitecrawl/orchestrator/internal/atomicfile"
	"github.com/sitecrawl/orchestrator/internal/classify"
	"github.com/sitecrawl/orchestrator/internal/config"
	"github.com/sitecrawl/orchestrator/internal/controlchannel"
	"github.com/sitecrawl/orchestrator/internal/gate"
	"github.com/sitecrawl/orchestrator/internal/idgen"
	"github.com/sitecrawl/orchestrator/internal/logging"
	"github.com/sitecrawl/orchestrator/internal/notify"
	"github.com/sitecrawl/orchestrator/internal/orchestrator"
	"github.com/sitecrawl/orchestrator/internal/report"
	"github.com/sitecrawl/orchestrator/internal/runstore"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Seed, spawn workers, and crawl a target site to completion.",
		Long: `run resolves the input shape, validates the requested outputs against
it, seeds the frontier, spawns worker processes, waits for quiescence, and
writes the requested reports.`,
		RunE: runRunCommand,
	}

	flags := cmd.Flags()
	flags.String("base", "", "target site origin (required)")
	flags.String("input", "", "path to an input file (URLs, or title/description ground truth)")
	flags.String("pathPrefix", "", "restrict discovered URLs to this path prefix")
	flags.String("outDir", "./dist", "output directory for all run artifacts")
	flags.Int("shards", 1, "shard count (must be > 0; not otherwise used by the crawl)")
	flags.Int("bucketParts", 16, "number of frontier buckets")
	flags.Int("concurrency", 4, "number of worker processes to spawn")
	flags.Bool("keepPageParam", false, "keep the 'page' query parameter during URL normalization")
	flags.Bool("rebuildLinks", false, "has no effect; internal-links.csv is rewritten on every run that selects internal_links")
	flags.Bool("dropCache", false, "delete fetch-cache partitions during cleanup")
	flags.Bool("headless", true, "use a headless browser to render pages")
	flags.Int("telemetryPort", 8089, "port the control channel listens on (0 disables it)")
	flags.StringSlice("outputs", nil, "selected outputs: urls,site_catalog,internal_links,tree,existence_csv,comparison_csv")
	flags.Int("comparisonPrefixTokens", 4, "prefix-match token count for the comparison report")
	flags.Float64("comparisonFuzzyThreshold", 0.6, "Jaccard threshold for the comparison report's fuzzy tier")
	flags.String("apiKey", "", "if set, requires X-API-Key (or ?api_key=) on the control channel")
	flags.Bool("development", false, "use human-readable development logging")

	return cmd
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	v := viper.GetViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return UsageError{fmt.Errorf("bind flags: %w", err)}
	}
	if err := config.BindEnv(v); err != nil {
		return fmt.Errorf("bind environment: %w", err)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return UsageError{err}
	}

	logger, err := logging.New(cfg.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	shape, err := resolveShape(cfg.Input)
	if err != nil {
		return fmt.Errorf("classify input: %w", err)
	}

	if result := gate.Evaluate(shape, cfg.Outputs); !result.OK {
		for _, e := range result.Errors {
			logger.Error("output rejected by gate", zap.String("output", string(e.Key)), zap.String("reason", e.Reason))
		}
		return UsageError{fmt.Errorf("%d requested output(s) rejected by the output gate", len(result.Errors))}
	}

	orch, err := orchestrator.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}
	defer func() {
		if cerr := orch.Close(context.Background()); cerr != nil {
			logger.Warn("close orchestrator", zap.Error(cerr))
		}
	}()

	var controlSrv *http.Server
	if cfg.TelemetryPort > 0 {
		srv := controlchannel.New(logger, cfg.OutDir, cfg.APIKey, shape, orch, nil)
		controlSrv = &http.Server{Addr: fmt.Sprintf(":%d", cfg.TelemetryPort), Handler: srv.Handler()}
		ln, lerr := net.Listen("tcp", controlSrv.Addr)
		if lerr != nil {
			logger.Warn("control channel disabled: listen failed", zap.Error(lerr))
			controlSrv = nil
		} else {
			go func() {
				if serveErr := controlSrv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
					logger.Warn("control channel server stopped", zap.Error(serveErr))
				}
			}()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = controlSrv.Shutdown(ctx)
			}()
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runID, err := idgen.New().NewID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}

	store, storeErr := runstore.New(ctx, cfg.DatabaseDSN)
	if storeErr != nil {
		logger.Warn("run history store unavailable", zap.Error(storeErr))
		store = nil
	}

	mode, crawlErr := runCrawl(ctx, orch, cfg, shape, logger, store, runID)

	if err := writeReports(cfg, shape); err != nil {
		logger.Warn("report writing failed", zap.Error(err))
	}

	outcome := runstore.OutcomeSuccess
	if crawlErr != nil {
		outcome = runstore.OutcomeError
	}
	recordAmbientHooks(ctx, cfg, runID, string(mode), outcome, logger)
	if store != nil {
		store.Close()
	}

	if crawlErr != nil {
		return fmt.Errorf("run crawl: %w", crawlErr)
	}

	logger.Info("crawl finished", zap.String("runId", runID), zap.String("outDir", cfg.OutDir))
	return nil
}

func resolveShape(input string) (classify.Shape, error) {
	if input == "" {
		return classify.Shape{}, nil
	}
	data, err := atomicfile.ReadRetry(input)
	if err != nil {
		return classify.Shape{}, fmt.Errorf("read input file: %w", err)
	}
	return classify.Classify(data)
}

func runCrawl(ctx context.Context, orch *orchestrator.Orchestrator, cfg config.RunConfig, shape classify.Shape, logger *zap.Logger, store runstore.Store, runID string) (config.Mode, error) {
	mode := config.WorkerModeFrontier
	if shape.Mode() == classify.ModeExplicitURLs {
		mode = config.WorkerModeRootURLs
	}
	existenceOnly := len(cfg.Outputs) == 1 && cfg.Outputs[0] == config.OutputExistenceCSV

	if store != nil {
		if err := store.UpsertRunStart(ctx, runID, cfg.Base, string(mode), time.Now().UTC()); err != nil {
			logger.Warn("record run start failed", zap.Error(err))
		}
	}

	outcome := runstore.OutcomeSuccess
	runErr := func() error {
		if err := orch.Seed(ctx, shape); err != nil {
			return fmt.Errorf("seed frontier: %w", err)
		}

		cmds, err := orch.SpawnWorkers(ctx, mode, existenceOnly)
		if err != nil {
			return fmt.Errorf("spawn workers: %w", err)
		}

		if err := orch.MonitorAndWaitForQuiescence(ctx, cmds); err != nil {
			return fmt.Errorf("wait for quiescence: %w", err)
		}

		if orch.StopRequested() {
			logger.Info("stop requested, skipping merge and cleanup", zap.String("runId", runID))
			return nil
		}

		if _, err := orch.Merge(); err != nil {
			logger.Warn("merge partial outputs failed", zap.Error(err))
		}
		if err := orch.Cleanup(); err != nil {
			logger.Warn("cleanup failed", zap.Error(err))
		}
		return nil
	}()

	if runErr != nil {
		outcome = runstore.OutcomeError
	}
	if store != nil {
		msg := (*string)(nil)
		if runErr != nil {
			s := runErr.Error()
			msg = &s
		}
		if err := store.CompleteRun(ctx, runID, time.Now().UTC(), outcome, msg); err != nil {
			logger.Warn("record run completion failed", zap.Error(err))
		}
	}
	return mode, runErr
}

func writeReports(cfg config.RunConfig, shape classify.Shape) error {
	writer := report.New(cfg.OutDir)
	pages, err := report.LoadPages(cfg.OutDir)
	if err != nil {
		return fmt.Errorf("load pages: %w", err)
	}
	edges, err := report.LoadEdges(cfg.OutDir)
	if err != nil {
		return fmt.Errorf("load edges: %w", err)
	}

	for _, out := range cfg.Outputs {
		switch out {
		case config.OutputSiteCatalog:
			if err := writer.SiteCatalog(pages); err != nil {
				return err
			}
			if err := writer.DuplicateTitles(pages); err != nil {
				return err
			}
		case config.OutputInternalLinks:
			if err := writer.InternalLinks(edges); err != nil {
				return err
			}
		case config.OutputTree:
			urls := make([]string, 0, len(pages))
			for _, p := range pages {
				urls = append(urls, p.FinalURL)
			}
			if err := writer.Tree(urls); err != nil {
				return err
			}
		case config.OutputExistenceCSV:
			// url-existence.csv is written by internal/orchestrator's Merge
			// step from the workers' url-existence partitions; nothing more
			// is written here.
		case config.OutputComparisonCSV:
			expected := expectedFromShape(shape)
			rows := report.Comparison(expected, pages, cfg.ComparisonPrefixTokens, cfg.ComparisonFuzzyThreshold)
			if err := writer.WriteComparison(rows); err != nil {
				return err
			}
			if err := writer.Extras(pages, expected, shape.HasRole(classify.RoleDescription)); err != nil {
				return err
			}
		}
	}
	return nil
}

func expectedFromShape(shape classify.Shape) []report.Expected {
	urlCol, titleCol, descCol := -1, -1, -1
	for i, role := range shape.InferredRoles {
		switch role {
		case classify.RoleURL:
			urlCol = i
		case classify.RoleTitle:
			titleCol = i
		case classify.RoleDescription:
			descCol = i
		}
	}
	expected := make([]report.Expected, 0, len(shape.Rows))
	for _, row := range shape.Rows {
		e := report.Expected{}
		if urlCol >= 0 {
			e.ExpectedURL = row.Get(urlCol)
		}
		if titleCol >= 0 {
			e.Title = row.Get(titleCol)
		}
		if descCol >= 0 {
			e.Description = row.Get(descCol)
		}
		expected = append(expected, e)
	}
	return expected
}

func recordAmbientHooks(ctx context.Context, cfg config.RunConfig, runID, mode string, outcome runstore.Outcome, logger *zap.Logger) {
	publisher, closer, err := notify.New(ctx, cfg.PubSubProject, cfg.PubSubTopic)
	if err != nil {
		logger.Warn("notifier unavailable", zap.Error(err))
	} else {
		defer closer()
		summary := notify.RunSummary{RunID: runID, Base: cfg.Base, Mode: mode, Outcome: string(outcome)}
		if _, err := publisher.Publish(ctx, summary); err != nil {
			logger.Warn("publish run summary failed", zap.Error(err))
		}
	}

	blobs, err := archive.New(ctx, cfg.ArchiveDir, cfg.ArchiveBucket)
	if err != nil {
		logger.Warn("archive store unavailable", zap.Error(err))
		return
	}
	archiver := archive.NewArchiver(blobs)
	open := func(name string) (io.ReadCloser, error) {
		return os.Open(filepath.Join(cfg.OutDir, name))
	}
	if _, err := archiver.ArchiveRun(ctx, runID, open); err != nil {
		logger.Warn("archive run failed", zap.Error(err))
	}
}
