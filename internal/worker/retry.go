package worker

import "time"

// navRetryDelays implements the "at most 2, exponential wait ~0.6s, ~1.2s"
// rule from spec.md Section 4.7, grounded on the shape of the teacher's
// ExponentialRetryPolicy (internal/crawler/retry_policy.go) but fixed to
// the two concrete waits the spec names instead of a general formula.
var navRetryDelays = []time.Duration{
	600 * time.Millisecond,
	1200 * time.Millisecond,
}

const maxNavAttempts = 3 // initial attempt + 2 retries

// claimRetrySleep is the pause between claimAny's retries of a home
// bucket whose owner lease another worker holds. claimRetryAttempts is not
// referenced; claim acquisition on transient-busy errors is bounded by the
// claim ledger's own lockTries and lockSleep.
const (
	claimRetryAttempts = 60
	claimRetrySleep    = 100 * time.Millisecond
)

// idleClaimsBeforeRelease is the "after 6 consecutive empty claims on a
// single bucket, release the lease" threshold: retries only apply while the
// bucket's lease is held by another worker, not once a scan genuinely finds
// the bucket drained.
const idleClaimsBeforeRelease = 6
