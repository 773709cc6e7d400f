// Package orchestrator implements the Orchestrator (C8): it seeds the
// frontier, spawns and monitors worker processes, detects quiescence,
// merges partial output, and runs cleanup.
package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sitecrawl/orchestrator/internal/claims"
	"github.com/sitecrawl/orchestrator/internal/classify"
	"github.com/sitecrawl/orchestrator/internal/config"
	"github.com/sitecrawl/orchestrator/internal/crawlweb"
	"github.com/sitecrawl/orchestrator/internal/frontier"
	"github.com/sitecrawl/orchestrator/internal/telemetry"
)

// Orchestrator coordinates one crawl run.
type Orchestrator struct {
	cfg    config.RunConfig
	logger *zap.Logger

	front  *frontier.Frontier
	ledger *claims.Ledger
	hub    *telemetry.Hub
}

// New constructs an Orchestrator, creating the frontier and claim ledger
// directories under cfg.OutDir.
func New(cfg config.RunConfig, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	front, err := frontier.New(filepath.Join(cfg.OutDir, "frontier"), cfg.BucketParts, cfg.BucketMaxBytes, cfg.LockTries, cfg.LockSleep)
	if err != nil {
		return nil, fmt.Errorf("init frontier: %w", err)
	}
	ledger, err := claims.New(filepath.Join(cfg.OutDir, "disco-locks"), cfg.LockTries, cfg.LockSleep)
	if err != nil {
		return nil, fmt.Errorf("init claim ledger: %w", err)
	}
	hub := telemetry.New(logger, filepath.Join(cfg.OutDir, "telemetry", "state.json"))
	return &Orchestrator{cfg: cfg, logger: logger, front: front, ledger: ledger, hub: hub}, nil
}

// Seed seeds the frontier from the base-prefix URL plus a one-shot
// seed-scan of the base page's first-level section links, per spec.md
// Section 4.8(b). In explicit-urls mode, seeds directly from the input
// shape's URL column instead.
func (o *Orchestrator) Seed(ctx context.Context, shape classify.Shape) error {
	if shape.Mode() == classify.ModeExplicitURLs {
		return o.seedExplicit(shape)
	}
	return o.seedDiscovery(ctx)
}

func (o *Orchestrator) seedExplicit(shape classify.Shape) error {
	urlColumn := 0
	for i, role := range shape.InferredRoles {
		if role == classify.RoleURL {
			urlColumn = i
			break
		}
	}
	urls := make([]string, 0, len(shape.Rows))
	for _, row := range shape.Rows {
		u := row.Get(urlColumn)
		if u == "" {
			continue
		}
		norm, err := crawlweb.NormalizeURL(u, o.cfg.KeepPageParam)
		if err != nil {
			continue
		}
		urls = append(urls, norm)
	}
	return o.front.Seed(urls, o.cfg.BucketParts)
}

func (o *Orchestrator) seedDiscovery(ctx context.Context) error {
	base, err := crawlweb.NormalizeURL(o.cfg.Base, o.cfg.KeepPageParam)
	if err != nil {
		return fmt.Errorf("normalize base url: %w", err)
	}
	seeds := []string{base}

	client := crawlweb.DefaultHTTPClient(10 * time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
	if err == nil {
		if resp, err := client.Do(req); err == nil {
			body := make([]byte, 0)
			buf := make([]byte, 32*1024)
			for {
				n, rerr := resp.Body.Read(buf)
				if n > 0 {
					body = append(body, buf[:n]...)
				}
				if rerr != nil {
					break
				}
				if len(body) > 4<<20 {
					break
				}
			}
			resp.Body.Close()
			page := crawlweb.Page{URL: base, FinalURL: base, Body: body}
			candidates := crawlweb.ExtractStaticLinks(page)
			_, normalized := crawlweb.ResolveAndFilter(base, candidates, crawlweb.FilterConfig{PathPrefix: o.cfg.PathPrefix, KeepPageParam: o.cfg.KeepPageParam})
			seeds = append(seeds, normalized...)
		}
	}
	return o.front.Seed(seeds, o.cfg.BucketParts)
}

// SpawnWorkers spawns cfg.Concurrency worker child processes, passing each
// its index, total, bucket count, and artifact paths (spec.md Section
// 4.8(c)). Self-reexec via os.Args[0] is used since coordinating worker
// processes is the run's whole point and no third-party process-
// supervision library appears anywhere in the example pack.
func (o *Orchestrator) SpawnWorkers(ctx context.Context, mode config.Mode, existenceOnly bool) ([]*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	cmds := make([]*exec.Cmd, 0, o.cfg.Concurrency)
	for i := 0; i < o.cfg.Concurrency; i++ {
		args := []string{
			"worker",
			"--base", o.cfg.Base,
			"--pathPrefix", o.cfg.PathPrefix,
			"--outDir", o.cfg.OutDir,
			"--workerIndex", strconv.Itoa(i),
			"--workerTotal", strconv.Itoa(o.cfg.Concurrency),
			"--bucketParts", strconv.Itoa(o.cfg.BucketParts),
			"--mode", string(mode),
			"--headless", strconv.FormatBool(o.cfg.Headless),
			"--existenceOnly", strconv.FormatBool(existenceOnly),
			"--keepPageParam", strconv.FormatBool(o.cfg.KeepPageParam),
			"--concurrency", strconv.Itoa(o.cfg.Concurrency),
		}
		cmd := exec.CommandContext(ctx, exe, args...)
		cmd.Env = append(os.Environ(), fmt.Sprintf("TELEMETRY_PORT=%d", o.cfg.TelemetryPort))
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return cmds, fmt.Errorf("spawn worker %d: %w", i, err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// MonitorAndWaitForQuiescence watches worker liveness and the frontier's
// quiescence fingerprint concurrently, returning once the run is
// quiescent or every worker has exited.
func (o *Orchestrator) MonitorAndWaitForQuiescence(ctx context.Context, cmds []*exec.Cmd) error {
	exited := make(chan struct{})
	var once sync.Once
	go func() {
		var wg sync.WaitGroup
		for _, cmd := range cmds {
			wg.Add(1)
			go func(c *exec.Cmd) {
				defer wg.Done()
				_ = c.Wait()
			}(cmd)
		}
		wg.Wait()
		once.Do(func() { close(exited) })
	}()

	detector := &quiescenceDetector{}
	ticker := time.NewTicker(quiescenceTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-exited:
			return nil
		case <-ticker.C:
			snap, err := o.front.TakeSnapshot(o.ledger)
			if err != nil {
				o.logger.Warn("quiescence snapshot failed", zap.Error(err))
				continue
			}
			if detector.tick(snap) {
				return nil
			}
		}
	}
}

// RequestStop writes the cooperative stop flag workers poll between URL
// processing steps.
func (o *Orchestrator) RequestStop() error {
	path := filepath.Join(o.cfg.OutDir, "telemetry", "stop.flag")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write stop flag: %w", err)
	}
	return f.Close()
}

// StopRequested reports whether RequestStop's flag file is present.
// MonitorAndWaitForQuiescence returns nil both when the frontier goes
// quiescent and when every worker exits early because of a stop request
// (worker.stopRequested polls the same file), so callers that need to
// distinguish the two — skipping Merge/Cleanup on a stopped run per
// spec.md Section 8 scenario 6 — must check this after it returns.
func (o *Orchestrator) StopRequested() bool {
	_, err := os.Stat(filepath.Join(o.cfg.OutDir, "telemetry", "stop.flag"))
	return err == nil
}

// Close shuts down the telemetry hub, flushing a final snapshot.
func (o *Orchestrator) Close(ctx context.Context) error {
	return o.hub.Close(ctx)
}

// Hub exposes the telemetry hub for the control channel server.
func (o *Orchestrator) Hub() *telemetry.Hub { return o.hub }
