package dag

import (
	"fmt"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantumVector/app-mtla-me/models"
)

func TestCouncilScenario(t *testing.T) {
	a := council("A", 100, "")
	a.CouncilReady = true
	f, err := Build([]models.Member{a, council("B", 50, "A"), council("C", 10, "A")}, models.FieldCouncil)
	require.NoError(t, err)

	got := Council(f, DefaultCouncilSize)
	require.Len(t, got, 1)
	require.Equal(t, "A", got[0].ID)
	require.Equal(t, int64(160), got[0].Power)
	require.Equal(t, int64(3), got[0].Weight)
	require.Equal(t, int64(60), got[0].DelegationCount)
}

func TestCouncilRequiresOwnReadiness(t *testing.T) {
	b := council("B", 50, "A")
	b.CouncilReady = true
	f, err := Build([]models.Member{council("A", 100, ""), b}, models.FieldCouncil)
	require.NoError(t, err)

	require.Empty(t, Council(f, DefaultCouncilSize))
}

func TestCouncilSkipsZeroPower(t *testing.T) {
	a := council("A", 0, "")
	a.CouncilReady = true
	f, err := Build([]models.Member{a}, models.FieldCouncil)
	require.NoError(t, err)
	require.Empty(t, Council(f, DefaultCouncilSize))
}

func TestCouncilOrderingAndTruncation(t *testing.T) {
	var members []models.Member
	for i := 0; i < 25; i++ {
		m := council(fmt.Sprintf("M%02d", i), int64(1+i%5), "")
		m.CouncilReady = true
		members = append(members, m)
	}
	f, err := Build(members, models.FieldCouncil)
	require.NoError(t, err)

	got := Council(f, DefaultCouncilSize)
	require.Len(t, got, DefaultCouncilSize)
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		require.True(t, prev.Power > cur.Power || (prev.Power == cur.Power && prev.ID < cur.ID),
			"%s(%d) before %s(%d)", prev.ID, prev.Power, cur.ID, cur.Power)
	}
	require.Equal(t, "M04", got[0].ID)
}

func TestAssemblyIncludesDirectHolders(t *testing.T) {
	members := []models.Member{
		{ID: "A", Balance: 10},
		{ID: "B", Balance: 5, DelegateAssembly: "A"},
		{ID: "C", Balance: 0, DelegateAssembly: "A"},
		{ID: "S", Synthetic: true},
		{ID: "D", Balance: 1, DelegateAssembly: "S"},
	}
	f, err := Build(members, models.FieldAssembly)
	require.NoError(t, err)

	got := Assembly(f)
	ids := make([]string, 0, len(got))
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	require.Equal(t, []string{"A", "B", "D", "S"}, ids)

	require.Equal(t, int64(15), got[0].Power)
	require.Equal(t, int64(5), got[0].DelegationCount)
	require.Equal(t, int64(15), got[0].Weight)
	// a delegating member appears with its own balance only
	require.Equal(t, int64(5), got[1].Power)
	require.Zero(t, got[1].DelegationCount)
	// a synthetic root carries delegated power only
	require.Equal(t, int64(1), got[3].Power)
	require.Equal(t, int64(1), got[3].DelegationCount)
}

func TestPowersConserveBalance(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(60)
		members := make([]models.Member, n)
		var total int64
		for i := range members {
			members[i] = council(fmt.Sprintf("M%d", i), rng.Int63n(1000), "")
			// delegate only to earlier members so the graph stays acyclic
			if i > 0 && rng.Intn(3) > 0 {
				members[i].DelegateCouncil = fmt.Sprintf("M%d", rng.Intn(i))
			}
			total += members[i].Balance
		}
		rng.Shuffle(n, func(i, j int) { members[i], members[j] = members[j], members[i] })

		f, err := Build(members, models.FieldCouncil)
		require.NoError(t, err)

		powers := Powers(f)
		var atRoots int64
		for _, id := range f.Roots() {
			atRoots += powers[id]
		}
		require.Equal(t, total, atRoots)
	}
}

func TestCouncilWeight(t *testing.T) {
	cases := map[int64]int64{
		0: 1, 1: 1, 2: 1, 10: 1, 11: 2, 100: 2, 101: 3, 160: 3, 1000: 3, 1001: 4,
	}
	for power, want := range cases {
		require.Equal(t, want, CouncilWeight(power), "power %d", power)
	}
	for power := int64(2); power < 100000; power += 37 {
		want := int64(len(strconv.FormatInt(power-1, 10)))
		require.Equal(t, want, CouncilWeight(power), "power %d", power)
	}
}

func TestWeightsMonotone(t *testing.T) {
	for _, weight := range []func(int64) int64{CouncilWeight, AssemblyWeight} {
		prev := weight(0)
		for p := int64(1); p < 20000; p++ {
			cur := weight(p)
			require.LessOrEqual(t, prev, cur, "power %d", p)
			prev = cur
		}
	}
}

func TestTree(t *testing.T) {
	f, err := Build([]models.Member{
		council("A", 100, ""),
		council("B", 50, "A"),
		council("C", 10, "B"),
		council("E", 1, ""),
	}, models.FieldCouncil)
	require.NoError(t, err)

	tree := Tree(f)
	require.Len(t, tree, 2)
	require.Equal(t, "A", tree[0].ID)
	require.Equal(t, int64(160), tree[0].Power)
	require.Equal(t, "B", tree[0].Children[0].ID)
	require.Equal(t, int64(60), tree[0].Children[0].Power)
	require.Equal(t, "C", tree[0].Children[0].Children[0].ID)
	require.Empty(t, tree[1].Children)
}
