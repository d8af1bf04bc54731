// Package diff compares the recorded signer configuration with a proposed
// one.
package diff

import (
	"strconv"

	"github.com/quantumVector/app-mtla-me/models"
)

// LabelNew marks a change whose previous weight was zero.
const LabelNew = "новый"

// Result is the outcome of a comparison.
type Result struct {
	Changes   []models.ChangeRecord `json:"changes"`
	Threshold int                   `json:"threshold"`
}

// Compute returns the changes turning current into proposed and the quorum
// threshold of proposed. Removals come first in current order, then
// additions and updates in proposed order. An empty side is not ready.
func Compute(current, proposed []models.Signer) (Result, error) {
	if len(current) == 0 {
		return Result{}, &models.NotReadyError{Reason: "current signers unavailable"}
	}
	if len(proposed) == 0 {
		return Result{}, &models.NotReadyError{Reason: "proposed signers unavailable"}
	}

	currentByID := make(map[string]int, len(current))
	for _, s := range current {
		currentByID[s.ID] = s.Weight
	}
	proposedByID := make(map[string]int, len(proposed))
	for _, s := range proposed {
		proposedByID[s.ID] = s.Weight
	}

	changes := make([]models.ChangeRecord, 0)
	for _, s := range current {
		to, inProposed := proposedByID[s.ID]
		if Classify(s.Weight, to, true, inProposed) == models.ChangeRemove {
			changes = append(changes, record(s.ID, s.Weight, 0, models.ChangeRemove))
		}
	}
	var updates []models.ChangeRecord
	for _, s := range proposed {
		from, inCurrent := currentByID[s.ID]
		switch kind := Classify(from, s.Weight, inCurrent, true); kind {
		case models.ChangeAdd:
			changes = append(changes, record(s.ID, 0, s.Weight, kind))
		case models.ChangeUpdate:
			updates = append(updates, record(s.ID, from, s.Weight, kind))
		}
	}
	changes = append(changes, updates...)

	return Result{Changes: dedupeByID(changes), Threshold: QuorumThreshold(proposed)}, nil
}

// Classify returns the change kind for one id, or "" when nothing changes.
func Classify(from, to int, inCurrent, inProposed bool) models.ChangeKind {
	switch {
	case inCurrent && !inProposed:
		return models.ChangeRemove
	case !inCurrent && inProposed:
		return models.ChangeAdd
	case inCurrent && inProposed && from != to:
		return models.ChangeUpdate
	}
	return ""
}

// QuorumThreshold is the smallest weight exceeding half of the total
// proposed weight.
func QuorumThreshold(proposed []models.Signer) int {
	total := 0
	for _, s := range proposed {
		total += s.Weight
	}
	return total/2 + 1
}

// Label renders a weight change for operators.
func Label(from, to int) string {
	switch {
	case from == 0:
		return LabelNew
	case to < from:
		return "-" + strconv.Itoa(from-to)
	default:
		return "+" + strconv.Itoa(to-from)
	}
}

// Signers converts aggregated council members into a signer configuration.
func Signers(ms []models.AggregatedMember) []models.Signer {
	out := make([]models.Signer, 0, len(ms))
	for _, m := range ms {
		out = append(out, models.Signer{ID: m.ID, Weight: int(m.Weight)})
	}
	return out
}

func record(id string, from, to int, kind models.ChangeKind) models.ChangeRecord {
	return models.ChangeRecord{ID: id, Weight: to, Diff: Label(from, to), Kind: kind}
}

// dedupeByID keeps the first record per id. Repeated ids in the inputs
// would otherwise emit more than one operation for the same signer.
func dedupeByID(changes []models.ChangeRecord) []models.ChangeRecord {
	seen := make(map[string]struct{}, len(changes))
	out := changes[:0]
	for _, c := range changes {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
