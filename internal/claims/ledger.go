// Package claims implements the URL Claim Ledger (spec.md Section 4.3):
// at-most-once processing of a URL across cooperating worker processes on
// one host, backed by exclusive-create ".lock" files promoted to ".done"
// markers. The exclusive-create-as-mutex pattern is grounded on the
// teacher pack's discovery job lock file (see DESIGN.md), generalized from
// a single writer lock to a per-URL claim.
package claims

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sitecrawl/orchestrator/internal/atomicfile"
	"github.com/sitecrawl/orchestrator/internal/clock"
	"github.com/sitecrawl/orchestrator/internal/metrics"
)

// Ledger manages claim files under a directory.
type Ledger struct {
	dir       string
	lockTries int
	lockSleep time.Duration
	clock     clock.Clock
}

// New constructs a Ledger rooted at dir, creating it if necessary.
func New(dir string, lockTries int, lockSleep time.Duration) (*Ledger, error) {
	return NewWithClock(dir, lockTries, lockSleep, clock.System{})
}

// NewWithClock is New with an injectable time source, so tests can pin the
// timestamp stamped into a claim's lock payload.
func NewWithClock(dir string, lockTries int, lockSleep time.Duration, c clock.Clock) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create claim ledger dir %s: %w", dir, err)
	}
	if lockTries <= 0 {
		lockTries = 60
	}
	if lockSleep <= 0 {
		lockSleep = 100 * time.Millisecond
	}
	if c == nil {
		c = clock.System{}
	}
	return &Ledger{dir: dir, lockTries: lockTries, lockSleep: lockSleep, clock: c}, nil
}

// ID computes the ledger key for a URL: hex sha1, matching the
// "{sha1(url)}.lock | .done" layout in spec.md Section 6.
func ID(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (l *Ledger) lockPath(id string) string { return filepath.Join(l.dir, id+".lock") }
func (l *Ledger) donePath(id string) string { return filepath.Join(l.dir, id+".done") }

// Claim is the handle returned by a successful TryClaim.
type Claim struct {
	ledger *Ledger
	id     string
	url    string
	done   bool
	released bool
}

// IsDone reports whether url already has a completion marker.
func (l *Ledger) IsDone(url string) bool {
	_, err := os.Stat(l.donePath(ID(url)))
	return err == nil
}

// TryClaim attempts to acquire exclusive ownership of url. It returns
// (nil, false, nil) if the URL is already completed or another process
// holds it ("competitive", never retried per spec.md Section 4.3 step 4),
// and retries only on transient busy errors up to lockTries.
func (l *Ledger) TryClaim(url string, ownerPID int) (*Claim, bool, error) {
	id := ID(url)
	if l.IsDone(url) {
		return nil, false, nil
	}

	var handle *atomicfile.Handle
	var claimErr error
	for attempt := 0; attempt < l.lockTries; attempt++ {
		h, err := atomicfile.ExclusiveCreate(l.lockPath(id))
		if err == nil {
			handle = h
			claimErr = nil
			break
		}
		if err == atomicfile.ErrCompetitive {
			return nil, false, nil
		}
		claimErr = err
		time.Sleep(l.lockSleep)
	}
	if handle == nil {
		if claimErr == nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("claim %s: %w", url, claimErr)
	}

	payload := fmt.Sprintf("{\"pid\":%d,\"time\":%d,\"url\":%q}\n", ownerPID, l.clock.Now().Unix(), url)
	if err := handle.WriteAndClose([]byte(payload)); err != nil {
		os.Remove(l.lockPath(id))
		return nil, false, fmt.Errorf("stamp claim %s: %w", url, err)
	}
	metrics.URLsClaimed.Inc()
	return &Claim{ledger: l, id: id, url: url}, true, nil
}

// Complete promotes the claim to a completion marker. It is terminal: a
// URL with a .done file is never reprocessed in the same run.
func (c *Claim) Complete() error {
	if c.done {
		return nil
	}
	if err := atomicfile.RenameRetry(c.ledger.lockPath(c.id), c.ledger.donePath(c.id)); err != nil {
		return fmt.Errorf("complete claim %s: %w", c.url, err)
	}
	c.done = true
	metrics.URLsCompleted.Inc()
	return nil
}

// Release unlinks the .lock file without completing, leaving the URL free
// for re-claim. Idempotent: calling it twice, or after Complete, is a
// no-op.
func (c *Claim) Release() {
	if c.done || c.released {
		return
	}
	os.Remove(c.ledger.lockPath(c.id))
	c.released = true
	metrics.URLsAbandoned.Inc()
}

// LockCount returns the number of outstanding .lock files, used by the
// Orchestrator's quiescence fingerprint (spec.md Section 4.8).
func (l *Ledger) LockCount() (int, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read claim dir %s: %w", l.dir, err)
	}
	count := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".lock" {
			count++
		}
	}
	return count, nil
}

// Trim prunes the oldest .done files once their count exceeds maxDone. It
// is a pure space optimization: it never touches .lock files, and since it
// only ever removes files whose name already ends in ".done" it cannot
// race with an in-flight claim (spec.md Section 4.3).
func (l *Ledger) Trim(maxDone int) error {
	if maxDone <= 0 {
		return nil
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read claim dir %s: %w", l.dir, err)
	}
	type doneFile struct {
		name    string
		modTime time.Time
	}
	var done []doneFile
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".done" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		done = append(done, doneFile{name: e.Name(), modTime: info.ModTime()})
	}
	if len(done) <= maxDone {
		return nil
	}
	for i := 0; i < len(done); i++ {
		for j := i + 1; j < len(done); j++ {
			if done[j].modTime.Before(done[i].modTime) {
				done[i], done[j] = done[j], done[i]
			}
		}
	}
	excess := len(done) - maxDone
	for i := 0; i < excess; i++ {
		os.Remove(filepath.Join(l.dir, done[i].name))
	}
	return nil
}
