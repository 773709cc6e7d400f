package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoteHubEmitPostsEventAndAPIKey(t *testing.T) {
	var gotKey string
	var gotEvent TelemetryEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/update", r.URL.Path)
		gotKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEvent))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hub := NewRemoteHub(srv.URL, "secret", nil)
	hub.Emit(TelemetryEvent{Kind: KindBump, Counter: "urlsFound", Delta: 1})

	require.Equal(t, "secret", gotKey)
	require.Equal(t, KindBump, gotEvent.Kind)
	require.Equal(t, int64(1), gotEvent.Delta)
}

func TestRemoteHubEmitOnNilReceiverIsNoop(t *testing.T) {
	var hub *RemoteHub
	require.NotPanics(t, func() { hub.Emit(TelemetryEvent{Kind: KindMode, Mode: "discovery"}) })
}

func TestRemoteHubEmitSurvivesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hub := NewRemoteHub(srv.URL, "", nil)
	require.NotPanics(t, func() { hub.Emit(TelemetryEvent{Kind: KindEvent, Note: "hi"}) })
}
