// Package dag links members into a delegation forest and aggregates voting
// power along it.
package dag

import (
	"github.com/quantumVector/app-mtla-me/models"
)

// Forest is an arena of nodes keyed by member id. It is immutable once built.
type Forest struct {
	field     models.Field
	nodesByID map[string]*models.Node
	order     []string // member ids in input order
	roots     []string
}

// node visit states used by cycle detection
const (
	unvisited = iota
	onPath
	done
)

// Build links members by their delegate for field. It fails with
// DanglingReferenceError when a delegate is not a member and with CycleError
// when a delegation chain loops. Members are checked in input order, so the
// reported id is deterministic.
func Build(members []models.Member, field models.Field) (*Forest, error) {
	f := &Forest{
		field:     field,
		nodesByID: make(map[string]*models.Node, len(members)),
		order:     make([]string, 0, len(members)),
	}
	for _, m := range members {
		if _, exists := f.nodesByID[m.ID]; exists {
			continue
		}
		f.nodesByID[m.ID] = &models.Node{Member: m, Parent: m.Delegate(field)}
		f.order = append(f.order, m.ID)
	}

	// check all parents exist and build children adjacency
	for _, id := range f.order {
		n := f.nodesByID[id]
		if n.IsRoot() {
			f.roots = append(f.roots, id)
			continue
		}
		parent, ok := f.nodesByID[n.Parent]
		if !ok {
			return nil, &models.DanglingReferenceError{ID: n.Parent, From: id}
		}
		parent.Children = append(parent.Children, id)
	}

	if err := f.checkAcyclic(); err != nil {
		return nil, err
	}
	return f, nil
}

// checkAcyclic follows parent links from every node. A node met again while
// still on the current path closes a cycle.
func (f *Forest) checkAcyclic() error {
	state := make(map[string]int, len(f.order))
	var path []string
	for _, start := range f.order {
		path = path[:0]
		for id := start; id != "" && state[id] != done; id = f.nodesByID[id].Parent {
			if state[id] == onPath {
				return &models.CycleError{ID: id}
			}
			state[id] = onPath
			path = append(path, id)
		}
		for _, id := range path {
			state[id] = done
		}
	}
	return nil
}

// Field returns the delegate field the forest was built from.
func (f *Forest) Field() models.Field {
	return f.field
}

// Node returns the node for id.
func (f *Forest) Node(id string) (*models.Node, bool) {
	n, ok := f.nodesByID[id]
	return n, ok
}

// Roots returns root ids in input order.
func (f *Forest) Roots() []string {
	return f.roots
}

// Members returns the members in input order.
func (f *Forest) Members() []models.Member {
	out := make([]models.Member, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.nodesByID[id].Member)
	}
	return out
}

// Len returns the number of nodes.
func (f *Forest) Len() int {
	return len(f.order)
}
