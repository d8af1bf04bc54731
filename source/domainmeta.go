package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultDomainMetaURL is the stellar.expert endpoint serving parsed
// stellar.toml files by home domain.
const DefaultDomainMetaURL = "https://api.stellar.expert/explorer/public/domain-meta"

// maxDomainMetaSize caps a single domain-meta response.
const maxDomainMetaSize = 1 << 20

// DomainMeta fetches stellar.toml metadata of home domains. Successful
// answers are kept for the TTL.
type DomainMeta struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	cache      *expirable.LRU[string, json.RawMessage]
}

// NewDomainMeta creates a DomainMeta client for endpoint.
func NewDomainMeta(endpoint string, timeout time.Duration, size int, ttl time.Duration) *DomainMeta {
	if endpoint == "" {
		endpoint = DefaultDomainMetaURL
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DomainMeta{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		timeout:    timeout,
		cache:      expirable.NewLRU[string, json.RawMessage](size, nil, ttl),
	}
}

// FetchDomainMeta returns the metadata document for domain as raw JSON.
func (d *DomainMeta) FetchDomainMeta(ctx context.Context, domain string) (json.RawMessage, error) {
	if meta, ok := d.cache.Get(domain); ok {
		return meta, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	target := d.endpoint + "?" + url.Values{"domain": {domain}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach domain-meta: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDomainMetaSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read domain-meta response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("domain-meta %s: status %d", domain, resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("domain-meta %s: invalid json", domain)
	}

	meta := json.RawMessage(body)
	d.cache.Add(domain, meta)
	return meta, nil
}
