package frontier

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sitecrawl/orchestrator/internal/claims"
)

func acceptAll(string) bool { return true }

func TestClaimNextAdvancesOnlyPastTheClaimedLine(t *testing.T) {
	dir := t.TempDir()
	f, err := New(dir, 1, 0, 5, time.Millisecond)
	require.NoError(t, err)
	ledger, err := claims.New(t.TempDir(), 5, time.Millisecond)
	require.NoError(t, err)

	urls := []string{"https://a.com/1", "https://a.com/2", "https://a.com/3"}
	require.NoError(t, f.Seed(urls, 1))

	for i, want := range urls {
		claimed, err := f.ClaimNext(0, ledger, os.Getpid(), acceptAll)
		require.NoError(t, err)
		require.NotNilf(t, claimed, "claim %d should still be available", i)
		require.Equal(t, want, claimed.URL, "a single ClaimNext call must not skip past unclaimed lines")
	}

	none, err := f.ClaimNext(0, ledger, os.Getpid(), acceptAll)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestSeedAndClaimNextConsumesInOrder(t *testing.T) {
	dir := t.TempDir()
	f, err := New(dir, 4, 0, 5, time.Millisecond)
	require.NoError(t, err)

	ledger, err := claims.New(t.TempDir(), 5, time.Millisecond)
	require.NoError(t, err)

	urls := []string{"https://a.com/1", "https://a.com/2", "https://a.com/3"}
	require.NoError(t, f.Seed(urls, 4))

	seen := make(map[string]bool)
	for i := 0; i < len(urls); i++ {
		for r := 0; r < 4; r++ {
			claimed, err := f.ClaimNext(r, ledger, os.Getpid(), acceptAll)
			require.NoError(t, err)
			if claimed != nil {
				seen[claimed.URL] = true
			}
		}
	}
	require.Len(t, seen, len(urls))
	for _, u := range urls {
		require.True(t, seen[u])
	}
}

func TestClaimNextSkipsAlreadyClaimedURLs(t *testing.T) {
	dir := t.TempDir()
	f, err := New(dir, 1, 0, 5, time.Millisecond)
	require.NoError(t, err)
	ledger, err := claims.New(t.TempDir(), 5, time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, f.Seed([]string{"https://a.com/1"}, 1))

	first, err := f.ClaimNext(0, ledger, 1, acceptAll)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.ClaimNext(0, ledger, 2, acceptAll)
	require.NoError(t, err)
	require.Nil(t, second, "bucket exhausted, URL already claimed by the first pass")
}

func TestPendingBytesShrinksAsCursorAdvances(t *testing.T) {
	dir := t.TempDir()
	f, err := New(dir, 1, 0, 5, time.Millisecond)
	require.NoError(t, err)
	ledger, err := claims.New(t.TempDir(), 5, time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, f.Seed([]string{"https://a.com/1", "https://a.com/2"}, 1))

	before, err := f.PendingBytes(0)
	require.NoError(t, err)
	require.Positive(t, before)

	_, err = f.ClaimNext(0, ledger, 1, acceptAll)
	require.NoError(t, err)

	after, err := f.PendingBytes(0)
	require.NoError(t, err)
	require.Less(t, after, before)
}

func TestClaimNextAnyStealsFromOtherBuckets(t *testing.T) {
	dir := t.TempDir()
	f, err := New(dir, 2, 0, 5, time.Millisecond)
	require.NoError(t, err)
	ledger, err := claims.New(t.TempDir(), 5, time.Millisecond)
	require.NoError(t, err)

	// force both URLs into bucket 0 or 1 deterministically by seeding many
	// candidates and letting the hash decide; then drain whichever bucket is
	// non-empty via ClaimNextAny anchored at the *other* bucket.
	urls := []string{"https://a.com/x", "https://a.com/y", "https://a.com/z"}
	require.NoError(t, f.Seed(urls, 2))

	claimedURLs := make(map[string]bool)
	for i := 0; i < len(urls); i++ {
		homeR := i % 2
		claimed, err := f.ClaimNextAny(homeR, ledger, 1, acceptAll)
		require.NoError(t, err)
		if claimed != nil {
			claimedURLs[claimed.URL] = true
		}
	}
	require.Len(t, claimedURLs, len(urls))
}

func TestHomeBucketSetRoundRobin(t *testing.T) {
	require.Equal(t, []int{0, 3, 6}, HomeBucketSet(0, 3, 8))
	require.Equal(t, []int{1, 4, 7}, HomeBucketSet(1, 3, 8))
	require.Equal(t, []int{2, 5}, HomeBucketSet(2, 3, 8))
}

func TestBucketIsStableForSameURL(t *testing.T) {
	require.Equal(t, Bucket("https://a.com/1", 16), Bucket("https://a.com/1", 16))
}
