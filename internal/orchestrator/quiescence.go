package orchestrator

import (
	"time"

	"github.com/sitecrawl/orchestrator/internal/frontier"
	"github.com/sitecrawl/orchestrator/internal/metrics"
)

const (
	quiescenceTick        = 200 * time.Millisecond
	stableCyclesThreshold = 5
	workersIdleThreshold  = 50
)

// fingerprint is the Frontier Snapshot fingerprint from spec.md Section
// 4.8: (sumPendingBytes, newestMtime, claimLockCount).
type fingerprint struct {
	sumPendingBytes int64
	newestModTime   time.Time
	claimLockCount  int
}

func (f fingerprint) equal(other fingerprint) bool {
	return f.sumPendingBytes == other.sumPendingBytes &&
		f.newestModTime.Equal(other.newestModTime) &&
		f.claimLockCount == other.claimLockCount
}

// quiescenceDetector tracks stable-cycle and idle-cycle counters across
// ticks, guarding against the two race modes spec.md Section 4.8 names: a
// worker that just started reading a bucket (locks nonzero, pending zero)
// and a worker mid-discovery emitting a batch (pending briefly nonzero).
type quiescenceDetector struct {
	last         fingerprint
	stableCycles int
	workersIdle  int
	haveLast     bool
}

// tick folds one Frontier Snapshot into the detector and reports whether
// the run should be declared quiescent.
func (q *quiescenceDetector) tick(snap frontier.Snapshot) bool {
	fp := fingerprint{sumPendingBytes: snap.SumPendingBytes, newestModTime: snap.NewestModTime, claimLockCount: snap.ClaimLockCount}

	if q.haveLast && fp.equal(q.last) {
		q.stableCycles++
	} else {
		q.stableCycles = 0
	}
	q.last = fp
	q.haveLast = true

	if snap.SumPendingBytes == 0 {
		q.workersIdle++
	} else {
		q.workersIdle = 0
	}

	metrics.QuiescenceStableCycles.Set(float64(q.stableCycles))
	metrics.FrontierPendingBytes.Set(float64(snap.SumPendingBytes))

	if snap.SumPendingBytes != 0 || snap.ClaimLockCount != 0 {
		return false
	}
	return q.stableCycles >= stableCyclesThreshold || q.workersIdle >= workersIdleThreshold
}
