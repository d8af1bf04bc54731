package models

// RawMember is an account record as served by the member source.
type RawMember struct {
	ID         string            `json:"account_id"`
	Balances   []Balance         `json:"balances"`
	Data       map[string]string `json:"data"` // base64 encoded values
	HomeDomain string            `json:"home_domain,omitempty"`
	Signers    []RawSigner       `json:"signers,omitempty"`
}

// Balance is one trust line of an account.
type Balance struct {
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code,omitempty"`
	AssetIssuer string `json:"asset_issuer,omitempty"`
	Balance     string `json:"balance"`
}

// RawSigner is a signer entry of an account record.
type RawSigner struct {
	Key    string `json:"key"`
	Weight int    `json:"weight"`
	Type   string `json:"type"`
}

// Signer is one entry of a weighted signer configuration.
type Signer struct {
	ID     string `json:"id"`
	Weight int    `json:"weight"`
}

// RecordSnapshot is a cached result of a member source query.
type RecordSnapshot struct {
	Key       string      `json:"key"`
	Records   []RawMember `json:"records"`
	FetchedAt int64       `json:"fetched_at"` // unix timestamp in ms
}
