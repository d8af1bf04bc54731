package dag

import (
	"sort"

	"github.com/quantumVector/app-mtla-me/models"
)

// DefaultCouncilSize is the number of council seats.
const DefaultCouncilSize = 20

// Powers computes the aggregated power of every node: its own balance plus
// the power of all its children.
func Powers(f *Forest) map[string]int64 {
	cumWeight := make(map[string]int64, f.Len())

	// compute cumulative weights with memoized DFS
	var computeCum func(id string) int64
	computeCum = func(id string) int64 {
		if v, ok := cumWeight[id]; ok {
			return v
		}
		n := f.nodesByID[id]
		sum := n.Member.Balance
		for _, childID := range n.Children {
			sum += computeCum(childID)
		}
		cumWeight[id] = sum
		return sum
	}

	for _, id := range f.roots {
		computeCum(id)
	}
	return cumWeight
}

// Council returns the council candidates: roots with positive power whose
// own council readiness flag is set, ordered by power then id, at most size.
func Council(f *Forest, size int) []models.AggregatedMember {
	powers := Powers(f)
	var out []models.AggregatedMember
	for _, id := range f.roots {
		m := f.nodesByID[id].Member
		if powers[id] <= 0 || !m.CouncilReady {
			continue
		}
		out = append(out, aggregated(m, powers[id], CouncilWeight))
	}
	sortByPower(out)
	if size >= 0 && len(out) > size {
		out = out[:size]
	}
	return out
}

// Assembly returns every root with positive power together with every other
// member holding a positive balance of its own. Non-root members count only
// their own balance.
func Assembly(f *Forest) []models.AggregatedMember {
	powers := Powers(f)
	seen := make(map[string]struct{}, f.Len())
	var out []models.AggregatedMember
	for _, id := range f.roots {
		if powers[id] <= 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, aggregated(f.nodesByID[id].Member, powers[id], AssemblyWeight))
	}
	for _, id := range f.order {
		if _, ok := seen[id]; ok {
			continue
		}
		m := f.nodesByID[id].Member
		if m.Balance <= 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, aggregated(m, m.Balance, AssemblyWeight))
	}
	sortByPower(out)
	return out
}

// CouncilWeight maps power to floor(log10(max(power, 2) - 1)) + 1, that is
// the number of decimal digits of max(power, 2) - 1.
func CouncilWeight(power int64) int64 {
	n := max(power, 2) - 1
	var digits int64
	for ; n > 0; n /= 10 {
		digits++
	}
	return digits
}

// AssemblyWeight maps power to assembly votes: one vote per token held
// across the whole delegation subtree.
func AssemblyWeight(power int64) int64 {
	return max(power, 0)
}

// Tree returns a nested view of the forest rooted at its roots.
func Tree(f *Forest) []*models.TreeNode {
	powers := Powers(f)
	var build func(id string) *models.TreeNode
	build = func(id string) *models.TreeNode {
		n := f.nodesByID[id]
		tn := &models.TreeNode{
			ID:      id,
			Balance: n.Member.Balance,
			Power:   powers[id],
			Ready:   n.Member.CouncilReady,
			Synth:   n.Member.Synthetic,
		}
		for _, childID := range n.Children {
			tn.Children = append(tn.Children, build(childID))
		}
		return tn
	}

	out := make([]*models.TreeNode, 0, len(f.roots))
	for _, id := range f.roots {
		out = append(out, build(id))
	}
	return out
}

func aggregated(m models.Member, power int64, weight func(int64) int64) models.AggregatedMember {
	return models.AggregatedMember{
		Member:          m,
		Power:           power,
		Weight:          weight(power),
		DelegationCount: power - m.Balance,
	}
}

func sortByPower(ms []models.AggregatedMember) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Power != ms[j].Power {
			return ms[i].Power > ms[j].Power
		}
		return ms[i].ID < ms[j].ID
	})
}
