package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sitecrawl/orchestrator/internal/frontier"
)

func TestQuiescenceDetectorRequiresStableCyclesBeforeDeclaring(t *testing.T) {
	q := &quiescenceDetector{}
	empty := frontier.Snapshot{SumPendingBytes: 0, ClaimLockCount: 0}

	// The first tick only records the baseline fingerprint; each later
	// unchanged tick adds one stable cycle.
	for i := 0; i < stableCyclesThreshold; i++ {
		require.False(t, q.tick(empty), "must not declare quiescent before threshold cycles")
	}
	require.True(t, q.tick(empty))
}

func TestQuiescenceDetectorResetsOnChange(t *testing.T) {
	q := &quiescenceDetector{}
	empty := frontier.Snapshot{SumPendingBytes: 0, ClaimLockCount: 0}
	busy := frontier.Snapshot{SumPendingBytes: 10, ClaimLockCount: 0}

	for i := 0; i < stableCyclesThreshold-1; i++ {
		q.tick(empty)
	}
	require.False(t, q.tick(busy), "nonzero pending bytes must never be quiescent")
	require.False(t, q.tick(empty), "stable-cycle counter resets after the change")
}

func TestQuiescenceDetectorNeverDeclaresWithPendingLocks(t *testing.T) {
	q := &quiescenceDetector{}
	snap := frontier.Snapshot{SumPendingBytes: 0, ClaimLockCount: 1}
	for i := 0; i < stableCyclesThreshold+5; i++ {
		require.False(t, q.tick(snap))
	}
}

func TestQuiescenceDetectorDeclaresAfterManyIdleCyclesEvenIfFingerprintChanges(t *testing.T) {
	q := &quiescenceDetector{}
	base := time.Now()
	declared := false
	for i := 0; i < workersIdleThreshold; i++ {
		snap := frontier.Snapshot{SumPendingBytes: 0, ClaimLockCount: 0, NewestModTime: base.Add(time.Duration(i) * time.Millisecond)}
		if q.tick(snap) {
			declared = true
			break
		}
	}
	require.True(t, declared)
}
