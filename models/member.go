package models

import (
	"encoding/json"
	"fmt"
)

// Field selects which delegate pointer a forest is built from.
type Field string

const (
	FieldCouncil  Field = "council"
	FieldAssembly Field = "assembly"
)

// ParseField converts a query value into a Field.
func ParseField(s string) (Field, error) {
	switch Field(s) {
	case FieldCouncil, "":
		return FieldCouncil, nil
	case FieldAssembly:
		return FieldAssembly, nil
	}
	return "", fmt.Errorf("unknown delegation field %q", s)
}

// ReadySentinel is the delegate value meaning "ready for council, votes for self".
const ReadySentinel = "ready"

// Member is one registry entrant.
type Member struct {
	ID               string `json:"id"`
	Balance          int64  `json:"balance"`
	DelegateCouncil  string `json:"delegate_council,omitempty"`
	DelegateAssembly string `json:"delegate_assembly,omitempty"`
	CouncilReady     bool   `json:"council_ready"`
	Synthetic        bool   `json:"synthetic,omitempty"` // fetched only to resolve a delegation target
}

// Delegate returns the delegate id for the given field. Self references and
// the ready sentinel resolve to the empty string.
func (m Member) Delegate(f Field) string {
	var d string
	switch f {
	case FieldCouncil:
		d = m.DelegateCouncil
	case FieldAssembly:
		d = m.DelegateAssembly
	}
	if d == m.ID || d == ReadySentinel {
		return ""
	}
	return d
}

// CorporateMember is a holder of the corporate membership token.
type CorporateMember struct {
	ID         string          `json:"id"`
	Balance    int64           `json:"balance"`
	HomeDomain string          `json:"home_domain,omitempty"`
	Toml       json.RawMessage `json:"toml,omitempty"` // stellar.toml metadata of the home domain
}

// Asset identifies an issued token.
type Asset struct {
	Code   string `json:"code" mapstructure:"code"`
	Issuer string `json:"issuer" mapstructure:"issuer"`
}

// String renders the asset the way Horizon filters expect it.
func (a Asset) String() string {
	return a.Code + ":" + a.Issuer
}
