package controlchannel

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sitecrawl/orchestrator/internal/classify"
	"github.com/sitecrawl/orchestrator/internal/config"
	"github.com/sitecrawl/orchestrator/internal/telemetry"
)

const (
	shortTick  = 5 * time.Millisecond
	mediumWait = 2 * time.Second
)

type fakeRunner struct {
	stopped bool
	hub     *telemetry.Hub
}

func (f *fakeRunner) RequestStop() error {
	f.stopped = true
	return nil
}

func (f *fakeRunner) Hub() *telemetry.Hub { return f.hub }

func newTestServer(t *testing.T) (*Server, *fakeRunner, string) {
	t.Helper()
	outDir := t.TempDir()
	hub := telemetry.New(nil, filepath.Join(outDir, "telemetry", "state.json"))
	t.Cleanup(func() { _ = hub.Close(nil) })
	runner := &fakeRunner{hub: hub}
	shape := classify.Shape{
		Exists:              true,
		ColumnCount:         1,
		FirstColumnURLShare: 1,
		InferredRoles:       []classify.Role{classify.RoleURL},
	}
	srv := New(nil, outDir, "", shape, runner, func(_ context.Context, _ AppliedConfig) error {
		return nil
	})
	return srv, runner, outDir
}

func TestPreflightReportsShapeAndUnappliedState(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/preflight", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp preflightResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Applied)
	require.False(t, resp.Started)
	require.True(t, resp.Shape.Exists)
}

func TestPostConfigRejectsUngatedOutput(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body, _ := json.Marshal(AppliedConfig{Outputs: []config.OutputKind{config.OutputComparisonCSV}})
	req := httptest.NewRequest(http.MethodPost, "/config", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp configResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Valid)
	require.NotEmpty(t, resp.Errors)
}

func TestPostConfigAcceptsGatedOutputAndPersists(t *testing.T) {
	srv, _, outDir := newTestServer(t)
	body, _ := json.Marshal(AppliedConfig{Outputs: []config.OutputKind{config.OutputURLs, config.OutputSiteCatalog}})
	req := httptest.NewRequest(http.MethodPost, "/config", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp configResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Valid)
	require.FileExists(t, filepath.Join(outDir, "telemetry", "config.json"))
}

func TestPostStopWritesFlagThroughRunner(t *testing.T) {
	srv, runner, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/stop", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, runner.stopped)
}

func TestPostUpdateFeedsHub(t *testing.T) {
	srv, runner, _ := newTestServer(t)
	body, _ := json.Marshal(telemetry.TelemetryEvent{Kind: telemetry.KindBump, Counter: "urlsFound", Delta: 3})
	req := httptest.NewRequest(http.MethodPost, "/update", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		return runner.hub.Snapshot().Totals["urlsFound"] == 3
	}, mediumWait, shortTick)
}

func TestGetDownloadRefusesEscape(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/download?file=../../etc/passwd", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPIKeyMiddlewareBlocksMissingKey(t *testing.T) {
	outDir := t.TempDir()
	hub := telemetry.New(nil, filepath.Join(outDir, "telemetry", "state.json"))
	t.Cleanup(func() { _ = hub.Close(nil) })
	srv := New(nil, outDir, "secret", classify.Shape{}, &fakeRunner{hub: hub}, nil)

	req := httptest.NewRequest(http.MethodGet, "/preflight", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/preflight?api_key=secret", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
