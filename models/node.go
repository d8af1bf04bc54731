package models

// Node is an arena entry of a delegation forest. Parent and children are
// member ids, never pointers.
type Node struct {
	Member   Member   `json:"member"`
	Parent   string   `json:"parent,omitempty"`   // resolved delegate id, empty for roots
	Children []string `json:"children,omitempty"` // ids whose resolved parent is this node
}

// IsRoot reports whether the node delegates to nobody.
func (n *Node) IsRoot() bool {
	return n.Parent == ""
}

// AggregatedMember is a member after delegated power has been summed up.
type AggregatedMember struct {
	Member
	Power           int64 `json:"power"`            // own balance plus all delegating descendants
	Weight          int64 `json:"weight"`           // quantized voting weight
	DelegationCount int64 `json:"delegation_count"` // power received through delegation
}

// TreeNode is a nested view of a forest used for display.
type TreeNode struct {
	ID       string      `json:"id"`
	Balance  int64       `json:"balance"`
	Power    int64       `json:"power"`
	Ready    bool        `json:"council_ready,omitempty"`
	Synth    bool        `json:"synthetic,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}
