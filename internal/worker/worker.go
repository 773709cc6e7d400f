// Package worker implements the Worker (C7): a spawned process that
// claims URLs from its home bucket set, fetches and classifies them, and
// writes its slice of the run's partial output.
//
// The teacher's own internal/worker/worker.go is unusable as source: it
// contains unresolved merge-conflict markers mixing a zap-based and a
// slog-based version of the same type. This package borrows only its
// dependency shape (queue, sinks, fetchers, a policy, a clock) and is
// written fresh against zap, the logger used everywhere else in the pack.
package worker

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sitecrawl/orchestrator/internal/claims"
	"github.com/sitecrawl/orchestrator/internal/config"
	"github.com/sitecrawl/orchestrator/internal/crawlweb"
	"github.com/sitecrawl/orchestrator/internal/frontier"
	"github.com/sitecrawl/orchestrator/internal/metrics"
	"github.com/sitecrawl/orchestrator/internal/telemetry"
)

// Phase is one state in the worker's `init -> discover -> fetch -> report
// -> done` machine (spec.md Section 4.7).
type Phase string

// Supported phases.
const (
	PhaseInit     Phase = "init"
	PhaseDiscover Phase = "discover"
	PhaseFetch    Phase = "fetch"
	PhaseReport   Phase = "report"
	PhaseDone     Phase = "done"
)

// DiscoverSubphase is one of discover's sub-phases.
type DiscoverSubphase string

// Supported discover sub-phases.
const (
	SubphaseSitemap  DiscoverSubphase = "sitemap"
	SubphaseBucket   DiscoverSubphase = "frontier-bucket"
	SubphaseIdle     DiscoverSubphase = "idle"
	SubphaseStealing DiscoverSubphase = "stealing"
)

// Emitter is the subset of telemetry.Hub a Worker needs. Spawned worker
// processes run in a separate OS process from the Hub they report to, so
// they emit through telemetry.RemoteHub (an HTTP client) rather than the
// in-process *telemetry.Hub the orchestrator itself uses; both satisfy
// this interface identically from the Worker's point of view.
type Emitter interface {
	Emit(telemetry.TelemetryEvent)
}

// Worker owns one worker process's claim loop and fetch/report cycle.
type Worker struct {
	cfg      config.WorkerConfig
	front    *frontier.Frontier
	ledger   *claims.Ledger
	hub      Emitter
	browser  crawlweb.Browser
	prober   *crawlweb.Prober
	logger   *zap.Logger
	out      *outputWriter
	threadID string
	pid      int

	homeBuckets []int
	accept      func(string) bool
}

// New constructs a Worker. browser may be nil (existence-only mode, or
// headless disabled); prober must not be nil.
func New(cfg config.WorkerConfig, front *frontier.Frontier, ledger *claims.Ledger, hub Emitter, browser crawlweb.Browser, prober *crawlweb.Prober, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	pid := os.Getpid()
	return &Worker{
		cfg:         cfg,
		front:       front,
		ledger:      ledger,
		hub:         hub,
		browser:     browser,
		prober:      prober,
		logger:      logger.With(zap.Int("worker", cfg.WorkerIndex)),
		out:         newOutputWriter(cfg.OutDir, cfg.WorkerIndex),
		threadID:    fmt.Sprintf("w%d-%d", cfg.WorkerIndex, pid),
		pid:         pid,
		homeBuckets: frontier.HomeBucketSet(cfg.WorkerIndex, cfg.WorkerTotal, cfg.BucketParts),
		accept:      func(string) bool { return true },
	}
}

// stopRequested reports whether the orchestrator has written the
// cooperative stop signal (spec.md Section 6's telemetry/stop.flag).
func (w *Worker) stopRequested() bool {
	_, err := os.Stat(fmt.Sprintf("%s/telemetry/stop.flag", w.cfg.OutDir))
	return err == nil
}

func (w *Worker) emitThread(phase, url string, bucket, idle int) {
	w.hub.Emit(telemetry.TelemetryEvent{Kind: telemetry.KindThread, TS: time.Now().UTC(), ThreadID: w.threadID, Phase: phase, URL: url, Bucket: bucket, Idle: idle})
}

func (w *Worker) bump(counter string, delta int64) {
	w.hub.Emit(telemetry.TelemetryEvent{Kind: telemetry.KindBump, TS: time.Now().UTC(), Counter: counter, Delta: delta})
}

// Run drives the worker through its full lifecycle until the frontier is
// exhausted or Stop is requested.
func (w *Worker) Run(ctx context.Context) error {
	w.emitThread(string(PhaseInit), "", 0, 0)
	defer func() {
		w.emitThread(string(PhaseDone), "", 0, 0)
		if err := w.out.Flush(); err != nil {
			w.logger.Warn("flush partial output failed", zap.Error(err))
		}
	}()

	if w.cfg.Mode == config.WorkerModeRootURLs {
		return w.runExplicitURLs(ctx)
	}
	return w.runFrontierCrawl(ctx)
}

// runExplicitURLs handles explicit-urls mode: the frontier already holds
// the given URL list (seeded by the orchestrator); discovery is skipped
// entirely per spec.md Section 4.7.
func (w *Worker) runExplicitURLs(ctx context.Context) error {
	return w.claimLoop(ctx, false)
}

// runFrontierCrawl handles discovery mode: sitemap discovery first, then
// frontier-based claiming with link extraction feeding back into buckets.
func (w *Worker) runFrontierCrawl(ctx context.Context) error {
	if w.cfg.WorkerIndex == 0 {
		w.emitThread(string(SubphaseSitemap), "", 0, 0)
		client := crawlweb.DefaultHTTPClient(10 * time.Second)
		urls, err := crawlweb.DiscoverSitemap(ctx, client, w.cfg.Base)
		if err != nil {
			w.logger.Debug("sitemap discovery failed", zap.Error(err))
		}
		if len(urls) > 0 {
			if err := w.front.Append(urls, w.cfg.BucketParts); err != nil {
				w.logger.Warn("seed sitemap urls failed", zap.Error(err))
			}
			w.bump("urlsFound", int64(len(urls)))
		}
	}
	return w.claimLoop(ctx, true)
}

// claimLoop is the shared home-bucket-iteration-plus-work-stealing engine
// for both run modes; discover indicates whether successful fetches should
// extract and enqueue further links.
func (w *Worker) claimLoop(ctx context.Context, discover bool) error {
	idleCycles := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if w.stopRequested() {
			return nil
		}

		claimed, subphase, err := w.claimAny(ctx)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		if claimed == nil {
			idleCycles++
			w.emitThread(string(SubphaseIdle), "", 0, idleCycles)
			if idleCycles >= 50 {
				return nil
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}
		idleCycles = 0
		w.emitThread(string(subphase), claimed.URL, claimed.Bucket, 0)

		if err := w.processClaim(ctx, claimed, discover); err != nil {
			w.logger.Warn("process claim failed", zap.String("url", claimed.URL), zap.Error(err))
			claimed.Claim.Release()
			continue
		}

		if w.cfg.PoliteDelay > 0 {
			time.Sleep(w.cfg.PoliteDelay)
		}
	}
}

func (w *Worker) claimAny(ctx context.Context) (*frontier.Claimed, DiscoverSubphase, error) {
	for _, bucket := range w.homeBuckets {
		for try := 0; try < idleClaimsBeforeRelease; try++ {
			pendingBefore, err := w.front.PendingBytes(bucket)
			if err != nil {
				return nil, SubphaseBucket, err
			}
			if pendingBefore == 0 {
				break // nothing queued in this bucket right now; move on
			}

			claimed, err := w.front.ClaimNext(bucket, w.ledger, w.pid, w.accept)
			if err != nil {
				return nil, SubphaseBucket, err
			}
			if claimed != nil {
				return claimed, SubphaseBucket, nil
			}

			pendingAfter, err := w.front.PendingBytes(bucket)
			if err != nil {
				return nil, SubphaseBucket, err
			}
			if pendingAfter != pendingBefore {
				// the scan ran to completion and found nothing claimable;
				// retrying immediately can't change that outcome.
				break
			}
			// pendingBefore didn't move, meaning the bucket lease was held
			// by another worker rather than genuinely scanned empty. Give it
			// idleClaimsBeforeRelease chances to free up before moving on.
			if ctx.Err() != nil {
				return nil, SubphaseBucket, ctx.Err()
			}
			if try < idleClaimsBeforeRelease-1 {
				time.Sleep(claimRetrySleep)
			}
		}
	}
	if len(w.homeBuckets) == 0 {
		return nil, SubphaseStealing, nil
	}
	claimed, err := w.front.ClaimNextAny(w.homeBuckets[0], w.ledger, w.pid, w.accept)
	if err != nil {
		return nil, SubphaseStealing, err
	}
	if claimed != nil {
		metrics.WorkStealsTotal.Inc()
	}
	return claimed, SubphaseStealing, nil
}

// processClaim fetches the claimed URL, records its outcome, and (in
// discover mode) extracts and enqueues further link candidates.
func (w *Worker) processClaim(ctx context.Context, claimed *frontier.Claimed, discover bool) error {
	if w.cfg.ExistenceOnly {
		return w.processExistenceOnly(ctx, claimed)
	}

	w.emitThread(string(PhaseFetch), claimed.URL, claimed.Bucket, 0)
	page, err := w.loadWithRetry(ctx, claimed.URL)
	if err != nil {
		probe := w.prober.Probe(ctx, claimed.URL)
		w.out.recordExistence(existenceRecord{InputURL: claimed.URL, Exists: probe.Exists, HTTPStatus: probe.StatusCode, FinalURL: probe.FinalURL})
		return claimed.Claim.Complete()
	}

	finalClaim, abandon, err := w.reclaimAfterRedirect(claimed, page.FinalURL)
	if err != nil {
		return err
	}
	if abandon {
		claimed.Claim.Release()
		return nil
	}
	if !crawlweb.HasPathPrefix(pathOf(page.FinalURL), w.cfg.PathPrefix) {
		if err := finalClaim.Complete(); err != nil {
			return err
		}
		if finalClaim != claimed.Claim {
			return claimed.Claim.Complete()
		}
		return nil
	}

	if w.browser != nil {
		page.Title, page.Description = w.browser.ReadMeta(page)
	}
	w.out.recordPage(page)
	w.bump("pagesFetched", 1)

	if discover {
		w.emitThread(string(PhaseReport), claimed.URL, claimed.Bucket, 0)
		w.discoverLinks(page)
	}

	if err := finalClaim.Complete(); err != nil {
		return err
	}
	if finalClaim != claimed.Claim {
		return claimed.Claim.Complete()
	}
	return nil
}

// reclaimAfterRedirect re-computes the claim key for the final URL after
// redirects and, if it differs from the seed claim, also claims the final
// URL; abandon reports true if that second claim is already held
// elsewhere, in which case the seed claim should be released without
// completion (spec.md Section 4.7 step 4).
func (w *Worker) reclaimAfterRedirect(claimed *frontier.Claimed, finalURL string) (*claims.Claim, bool, error) {
	if finalURL == "" || finalURL == claimed.URL {
		return claimed.Claim, false, nil
	}
	claim, ok, err := w.ledger.TryClaim(finalURL, w.pid)
	if err != nil {
		return nil, false, fmt.Errorf("reclaim final url %s: %w", finalURL, err)
	}
	if !ok {
		return nil, true, nil
	}
	return claim, false, nil
}

func (w *Worker) processExistenceOnly(ctx context.Context, claimed *frontier.Claimed) error {
	probe := w.prober.Probe(ctx, claimed.URL)
	w.out.recordExistence(existenceRecord{InputURL: claimed.URL, Exists: probe.Exists, HTTPStatus: probe.StatusCode, FinalURL: probe.FinalURL})
	return claimed.Claim.Complete()
}

// loadWithRetry retries navigation at most twice with the fixed backoff
// spec.md Section 4.7 names, falling back to nothing (caller probes) on
// exhaustion.
func (w *Worker) loadWithRetry(ctx context.Context, url string) (crawlweb.Page, error) {
	var lastErr error
	for attempt := 0; attempt < maxNavAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(navRetryDelays[attempt-1])
		}
		metrics.FetchesTotal.Inc()
		var page crawlweb.Page
		var err error
		if w.browser != nil {
			page, err = w.browser.Load(ctx, url)
		} else {
			probe := w.prober.Probe(ctx, url)
			if probe.Err != nil || !probe.Exists {
				err = fmt.Errorf("probe %s: status=%d err=%v", url, probe.StatusCode, probe.Err)
			} else {
				page = crawlweb.Page{URL: url, FinalURL: probe.FinalURL, StatusCode: probe.StatusCode, FetchedAt: time.Now().UTC()}
			}
		}
		if err == nil {
			return page, nil
		}
		lastErr = err
	}
	metrics.FetchErrorsTotal.Inc()
	return crawlweb.Page{}, lastErr
}

func (w *Worker) discoverLinks(page crawlweb.Page) {
	if w.browser == nil {
		return
	}
	candidates := w.browser.ExtractLinks(page)
	survivors, normalized := crawlweb.ResolveAndFilter(page.FinalURL, candidates, crawlweb.FilterConfig{
		PathPrefix:    w.cfg.PathPrefix,
		KeepPageParam: w.cfg.KeepPageParam,
	})
	if len(normalized) == 0 {
		return
	}
	if err := w.front.Append(normalized, w.cfg.BucketParts); err != nil {
		w.logger.Warn("append discovered links failed", zap.Error(err))
		return
	}
	w.bump("urlsFound", int64(len(normalized)))
	w.bump("internalEdges", int64(len(survivors)))

	edges := make([]crawlweb.Edge, 0, len(survivors))
	for i, c := range survivors {
		edges = append(edges, crawlweb.Edge{PageURL: page.FinalURL, LinkURL: normalized[i], Text: c.Text, Kind: c.Kind})
	}
	w.out.recordEdges(edges)

	for _, n := range normalized {
		segments := pathSegments(n)
		if len(segments) > 0 {
			w.hub.Emit(telemetry.TelemetryEvent{Kind: telemetry.KindTree, TS: time.Now().UTC(), PathSegments: segments})
		}
	}
}

func pathOf(rawURL string) string {
	idx := strings.Index(rawURL, "://")
	if idx < 0 {
		return rawURL
	}
	rest := rawURL[idx+3:]
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return "/"
	}
	return rest[slash:]
}

func pathSegments(rawURL string) []string {
	p := pathOf(rawURL)
	parts := strings.Split(strings.Trim(p, "/"), "/")
	var out []string
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
