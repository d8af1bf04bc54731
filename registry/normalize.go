// Package registry turns raw account records into members and closes the
// member set over delegation targets missing from the registry.
package registry

import (
	"encoding/base64"
	"sort"
	"strconv"
	"strings"

	"github.com/quantumVector/app-mtla-me/models"
)

// Data entry keys carrying delegation settings.
const (
	KeyCouncilDelegate  = "mtla_c_delegate"
	KeyAssemblyDelegate = "mtla_a_delegate"
	KeyDelegate         = "mtla_delegate" // fallback for both fields
	KeyCouncilReady     = "MTLA Council"
)

// Normalizer decodes raw records into members.
type Normalizer struct {
	Asset   models.Asset
	Exclude []string
}

// NewNormalizer creates a Normalizer for the given governance token.
func NewNormalizer(asset models.Asset, exclude []string) *Normalizer {
	return &Normalizer{Asset: asset, Exclude: exclude}
}

// Normalize decodes records into members. Excluded ids are dropped and
// duplicate ids keep their first occurrence.
func (n *Normalizer) Normalize(records []models.RawMember) []models.Member {
	excluded := make(map[string]struct{}, len(n.Exclude))
	for _, id := range n.Exclude {
		excluded[id] = struct{}{}
	}

	seen := make(map[string]struct{}, len(records))
	members := make([]models.Member, 0, len(records))
	for _, rec := range records {
		if _, ok := excluded[rec.ID]; ok {
			continue
		}
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		seen[rec.ID] = struct{}{}
		members = append(members, n.Decode(rec))
	}
	return members
}

// Decode converts a single record into a member.
func (n *Normalizer) Decode(rec models.RawMember) models.Member {
	council := decodeAttr(rec.Data, KeyCouncilDelegate)
	assembly := decodeAttr(rec.Data, KeyAssemblyDelegate)

	ready := decodeAttr(rec.Data, KeyCouncilReady) == models.ReadySentinel
	if council == models.ReadySentinel {
		ready = true
	}

	return models.Member{
		ID:               rec.ID,
		Balance:          n.balance(rec.Balances),
		DelegateCouncil:  clearSelf(rec.ID, council),
		DelegateAssembly: clearSelf(rec.ID, assembly),
		CouncilReady:     ready,
	}
}

// Delegations lists the delegate ids referenced by members in first-seen
// order, without duplicates.
func Delegations(members []models.Member) []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, m := range members {
		add(m.Delegate(models.FieldAssembly))
		add(m.Delegate(models.FieldCouncil))
	}
	return ids
}

// Missing returns the ids that are not members.
func Missing(members []models.Member, ids []string) []string {
	present := make(map[string]struct{}, len(members))
	for _, m := range members {
		present[m.ID] = struct{}{}
	}
	var out []string
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (n *Normalizer) balance(lines []models.Balance) int64 {
	for _, b := range lines {
		if b.AssetType != "credit_alphanum12" && b.AssetType != "credit_alphanum4" {
			continue
		}
		if b.AssetCode != n.Asset.Code || b.AssetIssuer != n.Asset.Issuer {
			continue
		}
		return parseAmount(b.Balance)
	}
	return 0
}

// parseAmount truncates a decimal amount such as "12.5000000" to its
// integer part. Malformed or negative amounts count as zero.
func parseAmount(s string) int64 {
	whole, _, _ := strings.Cut(strings.TrimSpace(s), ".")
	if whole == "" {
		return 0
	}
	v, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// decodeAttr reads a base64 data entry, falling back to the combined
// delegate key for the two delegate fields.
func decodeAttr(data map[string]string, key string) string {
	raw, ok := data[key]
	if (!ok || raw == "") && (key == KeyCouncilDelegate || key == KeyAssemblyDelegate) {
		raw = data[KeyDelegate]
	}
	if raw == "" {
		return ""
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func clearSelf(id, delegate string) string {
	if delegate == id || delegate == models.ReadySentinel {
		return ""
	}
	return delegate
}

// Corporate decodes holders of the corporate token, heaviest first.
func (n *Normalizer) Corporate(records []models.RawMember) []models.CorporateMember {
	members := n.Normalize(records)
	domains := make(map[string]string, len(records))
	for _, rec := range records {
		if _, ok := domains[rec.ID]; !ok {
			domains[rec.ID] = rec.HomeDomain
		}
	}

	out := make([]models.CorporateMember, 0, len(members))
	for _, m := range members {
		out = append(out, models.CorporateMember{ID: m.ID, Balance: m.Balance, HomeDomain: domains[m.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].ID < out[j].ID
	})
	return out
}
