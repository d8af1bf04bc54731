package source

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/quantumVector/app-mtla-me/db"
	"github.com/quantumVector/app-mtla-me/metrics"
	"github.com/quantumVector/app-mtla-me/models"
	"github.com/quantumVector/app-mtla-me/repository"
)

type countingUpstream struct {
	mu           sync.Mutex
	records      []models.RawMember
	accounts     map[string]models.RawMember
	err          error
	memberCalls  int
	accountCalls int
}

func (u *countingUpstream) FetchMembers(ctx context.Context, asset models.Asset) ([]models.RawMember, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.memberCalls++
	if u.err != nil {
		return nil, u.err
	}
	return u.records, nil
}

func (u *countingUpstream) FetchMember(ctx context.Context, id string) (*models.RawMember, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.accountCalls++
	rec, ok := u.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &rec, nil
}

func newCached(t *testing.T, up Upstream) (*Cached, *metrics.Metrics) {
	t.Helper()
	ldb, err := db.NewLevelDB(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })

	m := metrics.New(prometheus.NewRegistry())
	return NewCached(up, repository.NewSnapshotRepository(ldb), 16, time.Hour, m), m
}

func TestCachedServesFreshSnapshot(t *testing.T) {
	up := &countingUpstream{records: []models.RawMember{{ID: "GA"}}}
	c, m := newCached(t, up)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := c.FetchMembers(ctx, mtlap)
		require.NoError(t, err)
		require.Equal(t, "GA", got[0].ID)
	}
	require.Equal(t, 1, up.memberCalls)
	require.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("registry", "hit")))
}

func TestCachedRefetchesStaleSnapshot(t *testing.T) {
	up := &countingUpstream{records: []models.RawMember{{ID: "GA"}}}
	c, _ := newCached(t, up)
	ctx := context.Background()

	start := time.Now()
	c.now = func() time.Time { return start }
	_, err := c.FetchMembers(ctx, mtlap)
	require.NoError(t, err)

	c.now = func() time.Time { return start.Add(2 * time.Hour) }
	_, err = c.FetchMembers(ctx, mtlap)
	require.NoError(t, err)
	require.Equal(t, 2, up.memberCalls)
}

func TestCachedSkipsEmptyResults(t *testing.T) {
	up := &countingUpstream{}
	c, _ := newCached(t, up)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := c.FetchMembers(ctx, mtlap)
		require.NoError(t, err)
		require.Empty(t, got)
	}
	require.Equal(t, 2, up.memberCalls)
}

func TestCachedPropagatesUpstreamFailure(t *testing.T) {
	boom := &models.SourceUnavailableError{Op: "fetch members", Err: errors.New("boom")}
	c, _ := newCached(t, &countingUpstream{err: boom})

	_, err := c.FetchMembers(context.Background(), mtlap)
	require.ErrorIs(t, err, boom)
}

func TestCachedAccountsAndInvalidate(t *testing.T) {
	up := &countingUpstream{
		records:  []models.RawMember{{ID: "GA"}},
		accounts: map[string]models.RawMember{"GA": {ID: "GA"}},
	}
	c, _ := newCached(t, up)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rec, err := c.FetchMember(ctx, "GA")
		require.NoError(t, err)
		require.Equal(t, "GA", rec.ID)
	}
	require.Equal(t, 1, up.accountCalls)

	// not found is not cached
	for i := 0; i < 2; i++ {
		_, err := c.FetchMember(ctx, "GZ")
		require.ErrorIs(t, err, models.ErrNotFound)
	}
	require.Equal(t, 3, up.accountCalls)

	_, err := c.FetchMembers(ctx, mtlap)
	require.NoError(t, err)

	require.NoError(t, c.Invalidate())
	_, err = c.FetchMember(ctx, "GA")
	require.NoError(t, err)
	_, err = c.FetchMembers(ctx, mtlap)
	require.NoError(t, err)
	require.Equal(t, 4, up.accountCalls)
	require.Equal(t, 2, up.memberCalls)
}

// blockingUpstream holds registry queries until release is closed and
// reports whether the query context was still live when it resumed.
type blockingUpstream struct {
	countingUpstream
	started chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (u *blockingUpstream) FetchMembers(ctx context.Context, asset models.Asset) ([]models.RawMember, error) {
	u.started <- struct{}{}
	<-u.release
	u.ctxErr <- ctx.Err()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return u.countingUpstream.FetchMembers(ctx, asset)
}

func TestCachedCancelledCallerDoesNotFailOthers(t *testing.T) {
	up := &blockingUpstream{
		countingUpstream: countingUpstream{records: []models.RawMember{{ID: "GA"}}},
		started:          make(chan struct{}, 2),
		release:          make(chan struct{}),
		ctxErr:           make(chan error, 2),
	}
	c, _ := newCached(t, up)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.FetchMembers(firstCtx, mtlap)
		firstErr <- err
	}()
	<-up.started

	// the first caller gives up while the shared query is still running
	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	type result struct {
		records []models.RawMember
		err     error
	}
	second := make(chan result, 1)
	go func() {
		records, err := c.FetchMembers(context.Background(), mtlap)
		second <- result{records, err}
	}()

	close(up.release)
	require.NoError(t, <-up.ctxErr)

	got := <-second
	require.NoError(t, got.err)
	require.Equal(t, []models.RawMember{{ID: "GA"}}, got.records)
}
