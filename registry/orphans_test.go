package registry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/quantumVector/app-mtla-me/dag"
	"github.com/quantumVector/app-mtla-me/metrics"
	"github.com/quantumVector/app-mtla-me/models"
)

type fakeLookup struct {
	accounts map[string]models.RawMember
	failures map[string]error
	calls    atomic.Int32
}

func (f *fakeLookup) FetchMember(ctx context.Context, id string) (*models.RawMember, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.failures[id]; ok {
		return nil, err
	}
	rec, ok := f.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &rec, nil
}

// chain returns accounts X1..Xn where each Xi delegates to Xi+1.
func chain(n int) map[string]models.RawMember {
	accounts := make(map[string]models.RawMember, n)
	for i := 1; i <= n; i++ {
		data := map[string]string{}
		if i < n {
			data[KeyDelegate] = b64(fmt.Sprintf("X%d", i+1))
		}
		accounts[fmt.Sprintf("X%d", i)] = models.RawMember{ID: fmt.Sprintf("X%d", i), Data: data}
	}
	return accounts
}

func TestResolveStopsAtDepthBudget(t *testing.T) {
	lookup := &fakeLookup{accounts: chain(15)}
	r := NewResolver(lookup, NewNormalizer(mtlap, nil), nil)

	members := []models.Member{{ID: "M", Balance: 5, DelegateCouncil: "X1", DelegateAssembly: "X1"}}
	got, err := r.Resolve(context.Background(), members, []string{"X1"}, DefaultDepthBudget)
	require.NoError(t, err)

	var synthetic []string
	for _, m := range got {
		if m.Synthetic {
			synthetic = append(synthetic, m.ID)
			require.Zero(t, m.Balance)
		}
	}
	require.Len(t, synthetic, 10)
	require.Equal(t, "X10", synthetic[9])
	require.EqualValues(t, 10, lookup.calls.Load())

	_, err = dag.Build(got, models.FieldCouncil)
	var dangling *models.DanglingReferenceError
	require.ErrorAs(t, err, &dangling)
	require.Equal(t, "X11", dangling.ID)
	require.Equal(t, "X10", dangling.From)
}

func TestResolveCompletesShortChain(t *testing.T) {
	lookup := &fakeLookup{accounts: chain(4)}
	r := NewResolver(lookup, NewNormalizer(mtlap, nil), nil)

	members := []models.Member{{ID: "M", Balance: 5, DelegateCouncil: "X1"}}
	got, err := r.Resolve(context.Background(), members, Missing(members, Delegations(members)), DefaultDepthBudget)
	require.NoError(t, err)
	require.Len(t, got, 5)

	f, err := dag.Build(got, models.FieldCouncil)
	require.NoError(t, err)
	require.Equal(t, []string{"X4"}, f.Roots())
	require.Equal(t, int64(5), dag.Powers(f)["X4"])
}

func TestResolveSyntheticKeepsOnlyDelegation(t *testing.T) {
	lookup := &fakeLookup{accounts: map[string]models.RawMember{
		"X": {
			ID: "X",
			Balances: []models.Balance{
				{AssetType: "credit_alphanum12", AssetCode: "MTLAP", AssetIssuer: "GISSUER", Balance: "50"},
			},
			Data: map[string]string{KeyCouncilDelegate: b64("ready"), KeyAssemblyDelegate: b64("M")},
		},
	}}
	r := NewResolver(lookup, NewNormalizer(mtlap, nil), nil)

	got, err := r.Resolve(context.Background(), []models.Member{{ID: "M", DelegateCouncil: "X"}}, []string{"X"}, 1)
	require.NoError(t, err)
	require.Equal(t, models.Member{ID: "X", DelegateAssembly: "M", Synthetic: true}, got[1])
}

func TestResolveToleratesSingleFailures(t *testing.T) {
	lookup := &fakeLookup{
		accounts: map[string]models.RawMember{"X": {ID: "X"}},
		failures: map[string]error{"Y": errors.New("connection reset")},
	}
	m := metrics.New(prometheus.NewRegistry())
	r := NewResolver(lookup, NewNormalizer(mtlap, nil), m)

	got, err := r.Resolve(context.Background(), nil, []string{"X", "Y", "Z", "X"}, DefaultDepthBudget)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "X", got[0].ID)

	require.Equal(t, 1.0, testutil.ToFloat64(m.OrphanFetches.WithLabelValues("fetched")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OrphanFetches.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OrphanFetches.WithLabelValues("not_found")))
}

func TestResolveWholeLevelUnavailable(t *testing.T) {
	down := errors.New("dial tcp: connection refused")
	lookup := &fakeLookup{failures: map[string]error{"X": down, "Y": down}}
	r := NewResolver(lookup, NewNormalizer(mtlap, nil), nil)

	_, err := r.Resolve(context.Background(), nil, []string{"X", "Y"}, DefaultDepthBudget)
	var unavailable *models.SourceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.ErrorIs(t, err, down)
}

func TestResolveZeroBudgetFetchesNothing(t *testing.T) {
	lookup := &fakeLookup{accounts: chain(2)}
	r := NewResolver(lookup, NewNormalizer(mtlap, nil), nil)

	members := []models.Member{{ID: "M", DelegateCouncil: "X1"}}
	got, err := r.Resolve(context.Background(), members, []string{"X1"}, 0)
	require.NoError(t, err)
	require.Equal(t, members, got)
	require.Zero(t, lookup.calls.Load())
}

func TestResolveCancelled(t *testing.T) {
	lookup := &fakeLookup{accounts: chain(3)}
	r := NewResolver(lookup, NewNormalizer(mtlap, nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx, nil, []string{"X1"}, DefaultDepthBudget)
	require.ErrorIs(t, err, context.Canceled)
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	lookup := &fakeLookup{accounts: chain(2)}
	r := NewResolver(lookup, NewNormalizer(mtlap, nil), nil)

	members := make([]models.Member, 1, 8)
	members[0] = models.Member{ID: "M", DelegateCouncil: "X1"}
	got, err := r.Resolve(context.Background(), members, []string{"X1"}, DefaultDepthBudget)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, models.Member{}, members[:2][1])
}
