// Package governance runs the delegation resolution pipeline against a
// member source.
package governance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quantumVector/app-mtla-me/dag"
	"github.com/quantumVector/app-mtla-me/diff"
	"github.com/quantumVector/app-mtla-me/logger"
	"github.com/quantumVector/app-mtla-me/metrics"
	"github.com/quantumVector/app-mtla-me/models"
	"github.com/quantumVector/app-mtla-me/registry"
	"github.com/quantumVector/app-mtla-me/repository"
	"github.com/quantumVector/app-mtla-me/txplan"
)

// MemberSource supplies registry records, single accounts and the signers
// currently configured on the governance account.
type MemberSource interface {
	FetchMembers(ctx context.Context, asset models.Asset) ([]models.RawMember, error)
	FetchMember(ctx context.Context, id string) (*models.RawMember, error)
	FetchCurrentSigners(ctx context.Context, account string) ([]models.Signer, error)
}

// Invalidator is implemented by sources that cache.
type Invalidator interface {
	Invalidate() error
}

// DomainMetaSource resolves stellar.toml metadata of a home domain.
type DomainMetaSource interface {
	FetchDomainMeta(ctx context.Context, domain string) (json.RawMessage, error)
}

const (
	// DefaultCheckpointRetention is how many resolution checkpoints are kept.
	DefaultCheckpointRetention = 100

	// domainMetaConcurrency bounds parallel domain-meta lookups.
	domainMetaConcurrency = 8
)

// Settings configures the pipeline.
type Settings struct {
	MainAccount    string
	MemberToken    models.Asset
	CorporateToken models.Asset
	Exclude        []string
	DepthBudget    int
	CouncilSize    int
	BaseFee        int64
	Memo           string

	CheckpointRetention int
}

// Service resolves delegations on every call. It keeps no state between
// calls apart from the checkpoints written to the repository.
type Service struct {
	source     MemberSource
	repo       repository.SnapshotRepositoryInterface
	normalizer *registry.Normalizer
	resolver   *registry.Resolver
	settings   Settings
	metrics    *metrics.Metrics
	domainMeta DomainMetaSource
	now        func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithDomainMeta enriches corporate members with home domain metadata.
func WithDomainMeta(d DomainMetaSource) Option {
	return func(s *Service) {
		s.domainMeta = d
	}
}

// NewService wires the pipeline. repo and m may be nil.
func NewService(src MemberSource, repo repository.SnapshotRepositoryInterface, settings Settings, m *metrics.Metrics, opts ...Option) *Service {
	if settings.CouncilSize <= 0 {
		settings.CouncilSize = dag.DefaultCouncilSize
	}
	if settings.CheckpointRetention <= 0 {
		settings.CheckpointRetention = DefaultCheckpointRetention
	}
	normalizer := registry.NewNormalizer(settings.MemberToken, settings.Exclude)
	s := &Service{
		source:     src,
		repo:       repo,
		normalizer: normalizer,
		resolver:   registry.NewResolver(src, normalizer, m),
		settings:   settings,
		metrics:    m,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Members returns the registry closed over missing delegation targets.
func (s *Service) Members(ctx context.Context) ([]models.Member, error) {
	records, err := s.source.FetchMembers(ctx, s.settings.MemberToken)
	if err != nil {
		return nil, err
	}
	members := s.normalizer.Normalize(records)
	if len(members) == 0 {
		return nil, &models.NotReadyError{Reason: "member registry is empty"}
	}

	missing := registry.Missing(members, registry.Delegations(members))
	resolved, err := s.resolver.Resolve(ctx, members, missing, s.settings.DepthBudget)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SyntheticMembers.Set(float64(len(resolved) - len(members)))
	}
	return resolved, nil
}

// Forest resolves members and links them by the given delegate field.
func (s *Service) Forest(ctx context.Context, field models.Field) (*dag.Forest, error) {
	start := s.now()
	members, err := s.Members(ctx)
	if err == nil {
		var f *dag.Forest
		f, err = dag.Build(members, field)
		if err == nil {
			s.observe("ok", start)
			return f, nil
		}
	}

	s.observe(outcome(err), start)
	if id, ok := models.OffendingID(err); ok {
		logger.Logger.Warn("Delegation resolution failed",
			zap.String("field", string(field)),
			zap.String("offending_id", id),
			zap.Error(err))
	}
	return nil, err
}

// Tree returns the nested view of the forest for field.
func (s *Service) Tree(ctx context.Context, field models.Field) ([]*models.TreeNode, error) {
	f, err := s.Forest(ctx, field)
	if err != nil {
		return nil, err
	}
	return dag.Tree(f), nil
}

// Council returns the new council candidates.
func (s *Service) Council(ctx context.Context) ([]models.AggregatedMember, error) {
	f, err := s.Forest(ctx, models.FieldCouncil)
	if err != nil {
		return nil, err
	}
	return dag.Council(f, s.settings.CouncilSize), nil
}

// Assembly returns the assembly view.
func (s *Service) Assembly(ctx context.Context) ([]models.AggregatedMember, error) {
	f, err := s.Forest(ctx, models.FieldAssembly)
	if err != nil {
		return nil, err
	}
	return dag.Assembly(f), nil
}

// CurrentSigners returns the signers recorded on the governance account.
func (s *Service) CurrentSigners(ctx context.Context) ([]models.Signer, error) {
	return s.source.FetchCurrentSigners(ctx, s.settings.MainAccount)
}

// Changes diffs the current signers against the new council and stores a
// checkpoint of the result.
func (s *Service) Changes(ctx context.Context) (diff.Result, error) {
	var (
		council []models.AggregatedMember
		current []models.Signer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		council, err = s.Council(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		current, err = s.CurrentSigners(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return diff.Result{}, err
	}

	res, err := diff.Compute(current, diff.Signers(council))
	if err != nil {
		return diff.Result{}, err
	}
	s.checkpoint(council, res)
	return res, nil
}

// Transaction builds the plan applying the pending changes.
func (s *Service) Transaction(ctx context.Context) (*txplan.Plan, error) {
	res, err := s.Changes(ctx)
	if err != nil {
		return nil, err
	}
	return txplan.Build(s.settings.MainAccount, res, txplan.Options{
		BaseFee: s.settings.BaseFee,
		Memo:    s.settings.Memo,
	})
}

// CorporateMembers lists holders of the corporate token.
func (s *Service) CorporateMembers(ctx context.Context) ([]models.CorporateMember, error) {
	records, err := s.source.FetchMembers(ctx, s.settings.CorporateToken)
	if err != nil {
		return nil, err
	}
	members := registry.NewNormalizer(s.settings.CorporateToken, s.settings.Exclude).Corporate(records)
	if len(members) == 0 {
		return nil, &models.NotReadyError{Reason: "corporate registry is empty"}
	}
	if s.domainMeta != nil {
		if err := s.enrichDomains(ctx, members); err != nil {
			return nil, err
		}
	}
	return members, nil
}

// enrichDomains attaches home domain metadata to members in place. A failed
// lookup leaves that member without metadata.
func (s *Service) enrichDomains(ctx context.Context, members []models.CorporateMember) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(domainMetaConcurrency)
	for i := range members {
		domain := members[i].HomeDomain
		if domain == "" {
			continue
		}
		g.Go(func() error {
			meta, err := s.domainMeta.FetchDomainMeta(gctx, domain)
			if err != nil {
				logger.Logger.Debug("Domain metadata unavailable",
					zap.String("id", members[i].ID),
					zap.String("domain", domain),
					zap.Error(err))
				return nil
			}
			members[i].Toml = meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// LatestResolution returns the last stored checkpoint.
func (s *Service) LatestResolution() (*models.Resolution, error) {
	if s.repo == nil {
		return nil, &models.NotReadyError{Reason: "no checkpoint store"}
	}
	res, err := s.repo.GetLatestResolution()
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, &models.NotReadyError{Reason: "no resolution recorded yet"}
	}
	return res, nil
}

// Refresh drops cached source data so the next call refetches.
func (s *Service) Refresh() error {
	inv, ok := s.source.(Invalidator)
	if !ok {
		return nil
	}
	return inv.Invalidate()
}

func (s *Service) checkpoint(council []models.AggregatedMember, res diff.Result) {
	if s.repo == nil {
		return
	}
	err := s.repo.PutResolution(&models.Resolution{
		ID:        uuid.NewString(),
		Timestamp: s.now().UnixMilli(),
		Council:   council,
		Changes:   res.Changes,
		Threshold: res.Threshold,
	})
	if err != nil {
		logger.Logger.Warn("Failed storing resolution checkpoint", zap.Error(err))
		return
	}
	if err := s.repo.PruneResolutions(s.settings.CheckpointRetention); err != nil {
		logger.Logger.Warn("Failed pruning resolution checkpoints", zap.Error(err))
	}
}

func (s *Service) observe(outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveResolution(outcome, s.now().Sub(start))
	}
}

func outcome(err error) string {
	var (
		cycle       *models.CycleError
		dangling    *models.DanglingReferenceError
		unavailable *models.SourceUnavailableError
	)
	switch {
	case errors.As(err, &cycle):
		return "cycle"
	case errors.As(err, &dangling):
		return "dangling"
	case errors.Is(err, models.ErrNotReady):
		return "not_ready"
	case errors.As(err, &unavailable):
		return "source_unavailable"
	}
	return "error"
}
