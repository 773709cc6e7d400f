package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RemoteHub emits TelemetryEvents to an orchestrator process's Control
// Channel POST /update endpoint over HTTP, standing in for the in-process
// Hub inside a spawned worker process. Spec.md Section 5 requires a single
// writer for telemetry state; the orchestrator's Hub remains that sole
// writer, and every worker process forwards events to it rather than
// keeping (and persisting) its own local aggregate.
type RemoteHub struct {
	client  *http.Client
	url     string
	logger  *zap.Logger
	apiKey  string
}

// NewRemoteHub builds a RemoteHub that posts to baseURL+"/update".
func NewRemoteHub(baseURL, apiKey string, logger *zap.Logger) *RemoteHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteHub{
		client: &http.Client{Timeout: 2 * time.Second},
		url:    baseURL + "/update",
		logger: logger,
		apiKey: apiKey,
	}
}

// Emit posts evt to the orchestrator's hub, logging (not returning) any
// failure: a dropped telemetry update never fails the worker's crawl.
func (r *RemoteHub) Emit(evt TelemetryEvent) {
	if r == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		r.logger.Warn("telemetry: marshal event failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(data))
	if err != nil {
		r.logger.Warn("telemetry: build request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("X-API-Key", r.apiKey)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("telemetry: post event failed", zap.Error(err))
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		r.logger.Debug("telemetry: post event rejected", zap.Int("status", resp.StatusCode), zap.String("kind", fmt.Sprint(evt.Kind)))
	}
}
