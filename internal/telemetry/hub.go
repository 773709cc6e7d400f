package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sitecrawl/orchestrator/internal/atomicfile"
)

const (
	defaultBufferSize   = 4096
	defaultSnapshotPath = "telemetry.json"
	snapshotCadence     = 700 * time.Millisecond
	eventRingSize       = 200
)

// ThreadRecord is the per-worker state exposed in a Snapshot.
type ThreadRecord struct {
	Phase string `json:"phase"`
	URL   string `json:"url,omitempty"`
	Bucket int   `json:"bucket"`
	Idle  int    `json:"idle"`
}

// BucketRecord is the per-bucket state exposed in a Snapshot.
type BucketRecord struct {
	Owner     string `json:"owner,omitempty"`
	Processed int64  `json:"processed"`
	Pending   int64  `json:"pending"`
	LastURL   string `json:"lastUrl,omitempty"`
}

// TreeNode is one level of the discovered path-segment tree.
type TreeNode struct {
	Children map[string]*TreeNode `json:"children,omitempty"`
	Count    int64                `json:"count"`
}

func newTreeNode() *TreeNode { return &TreeNode{Children: make(map[string]*TreeNode)} }

// Snapshot is the JSON document persisted at the configured cadence.
type Snapshot struct {
	Mode      string                   `json:"mode"`
	Steps     []string                 `json:"steps"`
	StepIndex int                      `json:"stepIndex"`
	Totals    map[string]int64         `json:"totals"`
	Threads   map[string]ThreadRecord  `json:"threads"`
	Buckets   map[int]BucketRecord     `json:"buckets"`
	Tree      *TreeNode                `json:"tree"`
	Events    []string                 `json:"events"`
	UpdatedAt time.Time                `json:"updatedAt"`
}

// Hub aggregates TelemetryEvents into a Snapshot and persists it
// atomically at a fixed cadence, following the teacher's channel-plus-
// background-goroutine batching shape but folding events into running
// state instead of forwarding batches to sinks.
type Hub struct {
	logger       *zap.Logger
	snapshotPath string

	events chan TelemetryEvent
	stopCh chan struct{}
	doneCh chan struct{}

	mu    sync.Mutex
	state Snapshot

	closeOnce sync.Once
}

// New starts a Hub that persists snapshots to snapshotPath.
func New(logger *zap.Logger, snapshotPath string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if snapshotPath == "" {
		snapshotPath = defaultSnapshotPath
	}
	h := &Hub{
		logger:       logger,
		snapshotPath: snapshotPath,
		events:       make(chan TelemetryEvent, defaultBufferSize),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		state: Snapshot{
			Totals:  make(map[string]int64),
			Threads: make(map[string]ThreadRecord),
			Buckets: make(map[int]BucketRecord),
			Tree:    newTreeNode(),
		},
	}
	go h.run()
	return h
}

// Emit enqueues an event for aggregation. It never blocks; a full buffer
// drops the event.
func (h *Hub) Emit(evt TelemetryEvent) {
	if h == nil {
		return
	}
	select {
	case h.events <- evt:
	default:
		h.logger.Warn("telemetry event dropped due to backpressure")
	}
}

// Close stops the background goroutine after writing a final snapshot.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() { close(h.stopCh) })
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telemetry hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	ticker := time.NewTicker(snapshotCadence)
	defer ticker.Stop()
	dirty := false
	for {
		select {
		case evt := <-h.events:
			h.apply(evt)
			dirty = true
		case <-ticker.C:
			if dirty {
				h.persist()
				dirty = false
			}
		case <-h.stopCh:
			h.drain()
			h.persist()
			return
		}
	}
}

func (h *Hub) drain() {
	for {
		select {
		case evt := <-h.events:
			h.apply(evt)
		default:
			return
		}
	}
}

// apply folds one event into the running state, dispatching by Kind.
func (h *Hub) apply(evt TelemetryEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch evt.Kind {
	case KindThread:
		h.state.Threads[evt.ThreadID] = ThreadRecord{Phase: evt.Phase, URL: evt.URL, Bucket: evt.Bucket, Idle: evt.Idle}
	case KindBucket:
		h.state.Buckets[evt.Bucket] = BucketRecord{Owner: evt.BucketOwner, Processed: evt.BucketProcessed, Pending: evt.BucketPending, LastURL: evt.BucketLastURL}
	case KindTree:
		h.insertPath(evt.PathSegments)
	case KindBump:
		h.state.Totals[evt.Counter] += evt.Delta
	case KindStep:
		h.advanceStep(evt.Step)
	case KindMode:
		h.state.Mode = evt.Mode
	case KindEvent:
		h.pushEvent(evt.Note)
	default:
		h.logger.Debug("telemetry: unknown event kind", zap.String("kind", string(evt.Kind)))
	}
}

func (h *Hub) insertPath(segments []string) {
	node := h.state.Tree
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		child, ok := node.Children[seg]
		if !ok {
			child = newTreeNode()
			node.Children[seg] = child
		}
		child.Count++
		node = child
	}
}

func (h *Hub) advanceStep(step string) {
	for _, s := range h.state.Steps {
		if s == step {
			return
		}
	}
	h.state.Steps = append(h.state.Steps, step)
	h.state.StepIndex = len(h.state.Steps) - 1
}

func (h *Hub) pushEvent(note string) {
	if note == "" {
		return
	}
	h.state.Events = append(h.state.Events, note)
	if len(h.state.Events) > eventRingSize {
		h.state.Events = h.state.Events[len(h.state.Events)-eventRingSize:]
	}
}

// Snapshot returns a copy of the current aggregated state. The copy is
// made through a JSON round trip so its maps, slices and tree share
// nothing with the hub's live state.
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	data, err := json.Marshal(h.state)
	h.mu.Unlock()
	var snap Snapshot
	if err != nil {
		h.logger.Warn("telemetry: copy snapshot failed", zap.Error(err))
		return snap
	}
	_ = json.Unmarshal(data, &snap)
	return snap
}

func (h *Hub) persist() {
	h.mu.Lock()
	h.state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(h.state, "", "  ")
	h.mu.Unlock()
	if err != nil {
		h.logger.Warn("telemetry: marshal snapshot failed", zap.Error(err))
		return
	}
	if err := atomicfile.WriteFileAtomic(h.snapshotPath, data, 0o644); err != nil {
		h.logger.Warn("telemetry: persist snapshot failed", zap.Error(err))
	}
}
