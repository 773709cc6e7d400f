// Package frontier implements the Bucket Frontier (spec.md Section 4.2):
// an append-only, hash-partitioned set of per-bucket queues with a
// byte-cursor recording consumed work, supporting work-stealing reads
// across buckets. It is built entirely on internal/atomicfile so that many
// worker processes on one host can coordinate without a shared database.
package frontier

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/sitecrawl/orchestrator/internal/atomicfile"
	"github.com/sitecrawl/orchestrator/internal/claims"
)

// errLineClaimed stops CopyLines from replaying lines past the one that was
// just claimed; ClaimNext must advance the cursor only over the claimed
// line, not over every line still sitting in the bucket.
var errLineClaimed = errors.New("frontier: line claimed")

// Frontier manages bucket files under a root directory.
type Frontier struct {
	dir            string
	buckets        int
	maxBucketBytes int64
	lockTries      int
	lockSleep      time.Duration
}

// New constructs a Frontier with B buckets rooted at dir.
func New(dir string, buckets int, maxBucketBytes int64, lockTries int, lockSleep time.Duration) (*Frontier, error) {
	if err := os.MkdirAll(filepath.Join(dir, "assign"), 0o750); err != nil {
		return nil, fmt.Errorf("create frontier dir %s: %w", dir, err)
	}
	if maxBucketBytes <= 0 {
		maxBucketBytes = 8 << 20
	}
	if lockTries <= 0 {
		lockTries = 60
	}
	if lockSleep <= 0 {
		lockSleep = 100 * time.Millisecond
	}
	return &Frontier{dir: dir, buckets: buckets, maxBucketBytes: maxBucketBytes, lockTries: lockTries, lockSleep: lockSleep}, nil
}

// Bucket computes r = hash(url) mod B over a fixed 32-bit hash, per
// spec.md Section 4's Bucket glossary entry: the same URL always lands in
// the same bucket.
func Bucket(url string, buckets int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(url))
	return int(h.Sum32() % uint32(buckets))
}

func (f *Frontier) bucketPath(r int) string { return filepath.Join(f.dir, fmt.Sprintf("bucket.%d.ndjson", r)) }
func (f *Frontier) offsetPath(r int) string { return filepath.Join(f.dir, fmt.Sprintf("bucket.%d.offset", r)) }
func (f *Frontier) ownerPath(r int) string  { return filepath.Join(f.dir, "assign", fmt.Sprintf("bucket.%d.owner", r)) }

// Seed creates the B bucket files (empty if absent) and appends each URL to
// its hash-partitioned bucket.
func (f *Frontier) Seed(urls []string, buckets int) error {
	for r := 0; r < buckets; r++ {
		if _, err := os.OpenFile(f.bucketPath(r), os.O_CREATE|os.O_WRONLY, 0o644); err != nil {
			return fmt.Errorf("seed bucket %d: %w", r, err)
		}
	}
	return f.Append(urls, buckets)
}

// Append partitions urls by hash and appends each per-bucket sub-batch with
// a single atomic append call. If a bucket file grows past maxBucketBytes,
// it is rotated to a timestamped sibling first.
func (f *Frontier) Append(urls []string, buckets int) error {
	byBucket := make(map[int][]byte)
	for _, u := range urls {
		r := Bucket(u, buckets)
		byBucket[r] = append(byBucket[r], []byte(u+"\n")...)
	}
	for r, payload := range byBucket {
		if err := f.rotateIfOversize(r); err != nil {
			return err
		}
		if err := atomicfile.AppendRetry(f.bucketPath(r), payload); err != nil {
			return fmt.Errorf("append bucket %d: %w", r, err)
		}
	}
	return nil
}

func (f *Frontier) rotateIfOversize(r int) error {
	info, err := os.Stat(f.bucketPath(r))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() < f.maxBucketBytes {
		return nil
	}
	sibling := fmt.Sprintf("%s.%d", f.bucketPath(r), time.Now().UnixNano())
	if err := atomicfile.RenameRetry(f.bucketPath(r), sibling); err != nil {
		return fmt.Errorf("rotate bucket %d: %w", r, err)
	}
	return nil
}

func (f *Frontier) cursor(r int) (int64, error) {
	data, err := os.ReadFile(f.offsetPath(r))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, nil
	}
	return v, nil
}

func (f *Frontier) setCursor(r int, offset int64) error {
	return atomicfile.WriteFileAtomic(f.offsetPath(r), []byte(strconv.FormatInt(offset, 10)), 0o644)
}

// leaseBucket acquires the bucket-owner lease, held only for the duration
// of a single claim-scanning pass.
func (f *Frontier) leaseBucket(r int) (*atomicfile.Handle, error) {
	var handle *atomicfile.Handle
	for attempt := 0; attempt < f.lockTries; attempt++ {
		h, err := atomicfile.ExclusiveCreate(f.ownerPath(r))
		if err == nil {
			handle = h
			break
		}
		if err == atomicfile.ErrCompetitive {
			return nil, nil
		}
		time.Sleep(f.lockSleep)
	}
	return handle, nil
}

func (f *Frontier) releaseBucket(r int, h *atomicfile.Handle) {
	if h != nil {
		h.Close()
	}
	os.Remove(f.ownerPath(r))
}

// Claimed is a successfully claimed URL and its owning claim, ready for
// Complete or Release once the worker finishes processing it.
type Claimed struct {
	URL    string
	Bucket int
	Claim  *claims.Claim
}

// ClaimNext acquires the bucket-owner lease for r, reads bucket r from its
// current cursor, and returns the first line where accept(url) is true and
// the ledger grants a claim. Every scanned line up to and including the
// claimed line advances the cursor; lines after it are left unread for the
// next call. Returns (nil, nil) if the bucket is leased elsewhere or no
// claimable line exists.
func (f *Frontier) ClaimNext(r int, ledger *claims.Ledger, ownerPID int, accept func(string) bool) (*Claimed, error) {
	lease, err := f.leaseBucket(r)
	if err != nil {
		return nil, err
	}
	if lease == nil {
		return nil, nil
	}
	defer f.releaseBucket(r, lease)

	start, err := f.cursor(r)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(f.bucketPath(r))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if start > info.Size() {
		start = info.Size()
	}

	file, err := os.Open(f.bucketPath(r))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if _, err := file.Seek(start, 0); err != nil {
		return nil, err
	}

	var found *Claimed
	advanced := int64(0)
	_, err = atomicfile.CopyLines(file, func(line string) error {
		lineBytes := int64(len(line)) + 1
		if line == "" || !accept(line) {
			advanced += lineBytes
			return nil
		}
		claim, ok, claimErr := ledger.TryClaim(line, ownerPID)
		if claimErr != nil {
			return claimErr
		}
		if !ok {
			advanced += lineBytes
			return nil
		}
		advanced += lineBytes
		found = &Claimed{URL: line, Bucket: r, Claim: claim}
		return errLineClaimed
	})
	if err != nil && err != errLineClaimed {
		return nil, fmt.Errorf("scan bucket %d: %w", r, err)
	}
	if err := f.setCursor(r, start+advanced); err != nil {
		return nil, err
	}
	return found, nil
}

// PendingBytes returns fileSize(r) - cursor(r).
func (f *Frontier) PendingBytes(r int) (int64, error) {
	info, err := os.Stat(f.bucketPath(r))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	cur, err := f.cursor(r)
	if err != nil {
		return 0, err
	}
	pending := info.Size() - cur
	if pending < 0 {
		return 0, nil
	}
	return pending, nil
}

// ClaimNextAny first attempts ClaimNext(homeR, ...); on empty, it consults
// pending bytes across all other buckets in descending order and tries
// each in turn. This is the work-stealing path (spec.md Section 4.4).
func (f *Frontier) ClaimNextAny(homeR int, ledger *claims.Ledger, ownerPID int, accept func(string) bool) (*Claimed, error) {
	if c, err := f.ClaimNext(homeR, ledger, ownerPID, accept); err != nil || c != nil {
		return c, err
	}

	type candidate struct {
		bucket  int
		pending int64
	}
	candidates := make([]candidate, 0, f.buckets-1)
	for r := 0; r < f.buckets; r++ {
		if r == homeR {
			continue
		}
		pending, err := f.PendingBytes(r)
		if err != nil {
			continue
		}
		if pending > 0 {
			candidates = append(candidates, candidate{bucket: r, pending: pending})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].pending > candidates[j].pending })

	for _, c := range candidates {
		claimed, err := f.ClaimNext(c.bucket, ledger, ownerPID, accept)
		if err != nil {
			return nil, err
		}
		if claimed != nil {
			return claimed, nil
		}
	}
	return nil, nil
}

// Snapshot is the Frontier Snapshot fingerprint used by the Orchestrator's
// quiescence detector (spec.md Section 4.8).
type Snapshot struct {
	SumPendingBytes int64
	NewestModTime   time.Time
	ClaimLockCount  int
}

// TakeSnapshot computes (sumPendingBytes, newestMtime, claimLockCount)
// across all buckets and the given ledger.
func (f *Frontier) TakeSnapshot(ledger *claims.Ledger) (Snapshot, error) {
	var snap Snapshot
	for r := 0; r < f.buckets; r++ {
		pending, err := f.PendingBytes(r)
		if err != nil {
			return snap, err
		}
		snap.SumPendingBytes += pending
		if info, err := os.Stat(f.bucketPath(r)); err == nil {
			if info.ModTime().After(snap.NewestModTime) {
				snap.NewestModTime = info.ModTime()
			}
		}
	}
	count, err := ledger.LockCount()
	if err != nil {
		return snap, err
	}
	snap.ClaimLockCount = count
	return snap, nil
}

// HomeBucketSet returns the buckets assigned to worker me out of total
// workers, round-robin: {me, me+W, me+2W, ...} (spec.md Section 4.4).
func HomeBucketSet(me, total, buckets int) []int {
	if total <= 0 {
		total = 1
	}
	var set []int
	for r := me; r < buckets; r += total {
		set = append(set, r)
	}
	return set
}
