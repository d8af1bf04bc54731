package models

// ChangeKind classifies a diff row.
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "add"
	ChangeRemove ChangeKind = "remove"
	ChangeUpdate ChangeKind = "update"
)

// ChangeRecord is one signer weight change. Weight 0 revokes the signer.
type ChangeRecord struct {
	ID     string     `json:"id"`
	Weight int        `json:"weight"`
	Diff   string     `json:"diff"`
	Kind   ChangeKind `json:"kind"`
}

// Resolution is a checkpoint of a completed resolution run.
type Resolution struct {
	ID        string             `json:"id"`
	Timestamp int64              `json:"timestamp"` // unix timestamp in ms
	Council   []AggregatedMember `json:"council"`
	Changes   []ChangeRecord     `json:"changes"`
	Threshold int                `json:"threshold"`
}
