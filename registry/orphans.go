package registry

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quantumVector/app-mtla-me/logger"
	"github.com/quantumVector/app-mtla-me/metrics"
	"github.com/quantumVector/app-mtla-me/models"
)

// DefaultDepthBudget bounds how many levels of missing delegates are fetched.
const DefaultDepthBudget = 10

// MemberLookup fetches a single account. Unknown accounts yield
// models.ErrNotFound.
type MemberLookup interface {
	FetchMember(ctx context.Context, id string) (*models.RawMember, error)
}

// Resolver fetches delegation targets that are missing from the registry.
type Resolver struct {
	lookup     MemberLookup
	normalizer *Normalizer
	metrics    *metrics.Metrics
}

// NewResolver creates a Resolver. m may be nil.
func NewResolver(lookup MemberLookup, normalizer *Normalizer, m *metrics.Metrics) *Resolver {
	return &Resolver{lookup: lookup, normalizer: normalizer, metrics: m}
}

// Resolve returns members extended with synthetic members for the missing
// ids and, level by level, for the delegates those introduce. At most
// depthBudget levels are fetched. Ids that cannot be fetched stay missing so
// the forest builder reports them. The input slice is not modified.
func (r *Resolver) Resolve(ctx context.Context, members []models.Member, missing []string, depthBudget int) ([]models.Member, error) {
	out := make([]models.Member, len(members), len(members)+len(missing))
	copy(out, members)

	missing = Missing(out, dedupe(missing))
	for level := 1; level <= depthBudget && len(missing) > 0; level++ {
		fetched, err := r.fetchLevel(ctx, missing)
		if err != nil {
			return nil, err
		}
		out = append(out, fetched...)

		logger.Logger.Debug("Resolved orphan level",
			zap.Int("level", level),
			zap.Int("requested", len(missing)),
			zap.Int("fetched", len(fetched)))

		missing = Missing(out, Delegations(fetched))
	}

	if len(missing) > 0 {
		logger.Logger.Warn("Delegation targets left unresolved",
			zap.Int("depth_budget", depthBudget),
			zap.Strings("ids", missing))
	}
	return out, nil
}

// fetchLevel fetches ids concurrently. Results keep the order of ids.
func (r *Resolver) fetchLevel(ctx context.Context, ids []string) ([]models.Member, error) {
	results := make([]*models.Member, len(ids))
	failures := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			rec, err := r.lookup.FetchMember(gctx, id)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failures[i] = err
				return nil
			}
			m := r.normalizer.Decode(*rec)
			m.ID = id
			m.Balance = 0
			m.CouncilReady = false
			m.Synthetic = true
			results[i] = &m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fetched := make([]models.Member, 0, len(ids))
	var transportErr error
	transportFailures := 0
	for i, id := range ids {
		switch err := failures[i]; {
		case err == nil:
			fetched = append(fetched, *results[i])
			r.observe("fetched")
		case errors.Is(err, models.ErrNotFound):
			logger.Logger.Warn("Delegation target not found", zap.String("id", id))
			r.observe("not_found")
		default:
			logger.Logger.Warn("Failed fetching delegation target", zap.String("id", id), zap.Error(err))
			r.observe("error")
			transportFailures++
			if transportErr == nil {
				transportErr = err
			}
		}
	}

	if transportFailures == len(ids) {
		return nil, &models.SourceUnavailableError{Op: "fetch member", Err: transportErr}
	}
	return fetched, nil
}

func (r *Resolver) observe(result string) {
	if r.metrics != nil {
		r.metrics.ObserveOrphanFetch(result)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
