// Package txplan lays out the signer updates of the governance account as an
// ordered list of set-options operations, ready to be turned into a
// transaction envelope by a signing tool.
package txplan

import (
	"github.com/quantumVector/app-mtla-me/diff"
	"github.com/quantumVector/app-mtla-me/models"
)

const (
	DefaultBaseFee = 100000
	DefaultMemo    = "Update sign weights"
)

// Operation is one set-options operation. Threshold fields are only set on
// the last operation of a plan.
type Operation struct {
	Type          string `json:"type"`
	Signer        string `json:"signer"`
	Weight        int    `json:"weight"`
	MasterWeight  *int   `json:"master_weight,omitempty"`
	LowThreshold  *int   `json:"low_threshold,omitempty"`
	MedThreshold  *int   `json:"med_threshold,omitempty"`
	HighThreshold *int   `json:"high_threshold,omitempty"`
}

// Plan is an unsigned transaction description.
type Plan struct {
	SourceAccount string      `json:"source_account"`
	Memo          string      `json:"memo"`
	BaseFee       int64       `json:"base_fee"`
	Fee           int64       `json:"fee"`
	Timeout       int64       `json:"timeout"` // 0 means no time bound
	Threshold     int         `json:"threshold"`
	Operations    []Operation `json:"operations"`
}

// Options customizes a plan.
type Options struct {
	BaseFee int64
	Memo    string
}

// Build applies the changes in their given order. The master key weight and
// the quorum thresholds ride on the last operation. A result without
// changes is not ready.
func Build(source string, res diff.Result, opts Options) (*Plan, error) {
	if len(res.Changes) == 0 {
		return nil, &models.NotReadyError{Reason: "no signer changes"}
	}
	if opts.BaseFee <= 0 {
		opts.BaseFee = DefaultBaseFee
	}
	if opts.Memo == "" {
		opts.Memo = DefaultMemo
	}

	ops := make([]Operation, 0, len(res.Changes))
	for _, c := range res.Changes {
		ops = append(ops, Operation{Type: "set_options", Signer: c.ID, Weight: c.Weight})
	}
	master, threshold := 0, res.Threshold
	last := &ops[len(ops)-1]
	last.MasterWeight = &master
	last.LowThreshold = &threshold
	last.MedThreshold = &threshold
	last.HighThreshold = &threshold

	return &Plan{
		SourceAccount: source,
		Memo:          opts.Memo,
		BaseFee:       opts.BaseFee,
		Fee:           opts.BaseFee * int64(len(ops)),
		Threshold:     res.Threshold,
		Operations:    ops,
	}, nil
}
