package source

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/quantumVector/app-mtla-me/logger"
	"github.com/quantumVector/app-mtla-me/metrics"
	"github.com/quantumVector/app-mtla-me/models"
	"github.com/quantumVector/app-mtla-me/repository"
)

const (
	// DefaultTTL is how long fetched records are considered fresh.
	DefaultTTL = 24 * time.Hour

	// DefaultFetchTimeout bounds a shared registry query, which pages
	// through every holder.
	DefaultFetchTimeout = 5 * time.Minute
)

// Upstream is the uncached member source.
type Upstream interface {
	FetchMembers(ctx context.Context, asset models.Asset) ([]models.RawMember, error)
	FetchMember(ctx context.Context, id string) (*models.RawMember, error)
}

// Cached serves registry queries from persisted snapshots and single
// accounts from an in-memory LRU, refetching once entries are older than
// the TTL.
type Cached struct {
	upstream     Upstream
	repo         repository.SnapshotRepositoryInterface
	accounts     *expirable.LRU[string, models.RawMember]
	ttl          time.Duration
	fetchTimeout time.Duration
	group        singleflight.Group
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewCached wraps upstream. m may be nil.
func NewCached(upstream Upstream, repo repository.SnapshotRepositoryInterface, accountSize int, ttl time.Duration, m *metrics.Metrics) *Cached {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cached{
		upstream:     upstream,
		repo:         repo,
		accounts:     expirable.NewLRU[string, models.RawMember](accountSize, nil, ttl),
		ttl:          ttl,
		fetchTimeout: DefaultFetchTimeout,
		metrics:      m,
		now:          time.Now,
	}
}

// FetchMembers returns the holders of asset. Concurrent misses for the same
// asset share one upstream query. Empty results are never cached.
func (c *Cached) FetchMembers(ctx context.Context, asset models.Asset) ([]models.RawMember, error) {
	key := "accounts:" + asset.String()

	snap, err := c.repo.GetSnapshot(key)
	if err != nil {
		logger.Logger.Warn("Failed reading snapshot", zap.String("key", key), zap.Error(err))
	}
	if snap != nil && c.fresh(snap.FetchedAt) {
		c.observe("registry", true)
		return snap.Records, nil
	}
	c.observe("registry", false)

	// The shared query outlives any single caller: a caller that gives up
	// stops waiting but does not cancel the fetch for the others.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		records, err := c.upstream.FetchMembers(fetchCtx, asset)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			err := c.repo.PutSnapshot(&models.RecordSnapshot{
				Key:       key,
				Records:   records,
				FetchedAt: c.now().UnixMilli(),
			})
			if err != nil {
				logger.Logger.Warn("Failed storing snapshot", zap.String("key", key), zap.Error(err))
			}
		}
		return records, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.RawMember), nil
	}
}

// FetchMember returns a single account. Not-found answers are not cached.
func (c *Cached) FetchMember(ctx context.Context, id string) (*models.RawMember, error) {
	if rec, ok := c.accounts.Get(id); ok {
		c.observe("account", true)
		return &rec, nil
	}
	c.observe("account", false)

	rec, err := c.upstream.FetchMember(ctx, id)
	if err != nil {
		return nil, err
	}
	c.accounts.Add(id, *rec)
	return rec, nil
}

// FetchCurrentSigners returns the signers configured on account.
func (c *Cached) FetchCurrentSigners(ctx context.Context, account string) ([]models.Signer, error) {
	return currentSigners(ctx, c, account)
}

// Invalidate drops every cached record.
func (c *Cached) Invalidate() error {
	c.accounts.Purge()
	return c.repo.DeleteSnapshots()
}

func (c *Cached) fresh(fetchedAt int64) bool {
	return c.now().Sub(time.UnixMilli(fetchedAt)) < c.ttl
}

func (c *Cached) observe(kind string, hit bool) {
	if c.metrics != nil {
		c.metrics.ObserveCache(kind, hit)
	}
}
