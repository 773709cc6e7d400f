package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitecrawl/orchestrator/internal/atomicfile"
	"github.com/sitecrawl/orchestrator/internal/claims"
	"github.com/sitecrawl/orchestrator/internal/config"
	"github.com/sitecrawl/orchestrator/internal/crawlweb"
	"github.com/sitecrawl/orchestrator/internal/frontier"
	"github.com/sitecrawl/orchestrator/internal/telemetry"
)

type fakeEmitter struct {
	events []telemetry.TelemetryEvent
}

func (f *fakeEmitter) Emit(e telemetry.TelemetryEvent) {
	f.events = append(f.events, e)
}

func newTestWorker(t *testing.T, baseURL string, existenceOnly bool) (*Worker, *fakeEmitter) {
	t.Helper()
	dir := t.TempDir()
	front, err := frontier.New(filepath.Join(dir, "frontier"), 1, 8<<20, 60, 0)
	require.NoError(t, err)
	require.NoError(t, front.Seed([]string{baseURL + "/page"}, 1))

	ledger, err := claims.New(filepath.Join(dir, "disco-locks"), 60, 0)
	require.NoError(t, err)

	prober := crawlweb.NewProber("test-agent", 0, 1)
	emitter := &fakeEmitter{}

	cfg := config.WorkerConfig{
		Base:          baseURL,
		OutDir:        dir,
		WorkerIndex:   0,
		WorkerTotal:   1,
		BucketParts:   1,
		Mode:          config.WorkerModeRootURLs,
		ExistenceOnly: existenceOnly,
	}
	w := New(cfg, front, ledger, emitter, nil, prober, zap.NewNop())
	return w, emitter
}

func TestWorkerRunExistenceOnlyRecordsProbeResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w, emitter := newTestWorker(t, srv.URL, true)
	require.NoError(t, w.Run(context.Background()))

	require.NotEmpty(t, emitter.events)

	var sawDone bool
	for _, e := range emitter.events {
		if e.Kind == telemetry.KindThread && e.Phase == string(PhaseDone) {
			sawDone = true
		}
	}
	require.True(t, sawDone, "worker must emit a done thread event on exit")

	existence, err := os.ReadFile(filepath.Join(w.cfg.OutDir, "url-existence.part0.json"))
	require.NoError(t, err)
	require.Contains(t, string(existence), srv.URL+"/page")
}

func TestClaimAnyRetriesContendedLeaseBeforeMovingOn(t *testing.T) {
	dir := t.TempDir()
	frontierDir := filepath.Join(dir, "frontier")
	front, err := frontier.New(frontierDir, 1, 8<<20, 60, time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, front.Seed([]string{"https://x.com/1"}, 1))

	ledger, err := claims.New(filepath.Join(dir, "disco-locks"), 60, time.Millisecond)
	require.NoError(t, err)

	// simulate another worker holding bucket 0's lease for the whole call:
	// pendingBefore/pendingAfter can never move, so claimAny must retry
	// idleClaimsBeforeRelease times (not give up on the first nil claim).
	ownerPath := filepath.Join(frontierDir, "assign", "bucket.0.owner")
	lease, err := atomicfile.ExclusiveCreate(ownerPath)
	require.NoError(t, err)

	w := New(config.WorkerConfig{
		Base:        "https://x.com",
		OutDir:      dir,
		WorkerTotal: 1,
		BucketParts: 1,
	}, front, ledger, &fakeEmitter{}, nil, crawlweb.NewProber("test-agent", 0, 1), zap.NewNop())

	start := time.Now()
	claimed, subphase, err := w.claimAny(context.Background())
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.Nil(t, claimed, "bucket 0 is leased elsewhere for the whole call, nothing should be claimable")
	require.Equal(t, SubphaseStealing, subphase, "falls through to stealing once the home bucket's retries are exhausted")
	require.GreaterOrEqualf(t, elapsed, 4*claimRetrySleep, "must actually retry the contended lease rather than give up after the first nil claim (elapsed %s)", elapsed)

	lease.Close()
	require.NoError(t, os.Remove(ownerPath))

	claimed, subphase, err = w.claimAny(context.Background())
	require.NoError(t, err)
	require.NotNil(t, claimed, "once the lease frees up the seeded URL should be claimable again")
	require.Equal(t, SubphaseBucket, subphase)
}

func TestPathOfExtractsPathFromAbsoluteURL(t *testing.T) {
	require.Equal(t, "/a/b", pathOf("https://x.com/a/b"))
	require.Equal(t, "/", pathOf("https://x.com"))
	require.Equal(t, "no-scheme", pathOf("no-scheme"))
}

func TestPathSegmentsSplitsNonEmptyParts(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, pathSegments("https://x.com/a/b/"))
	require.Nil(t, pathSegments("https://x.com/"))
}
